package replica

// Progress describes how much of a segment has reached some stage —
// sent to a backup, acknowledged by a backup, or queued for
// replication by the log module. It is totally ordered: first by
// Open (false < true), then by Bytes, then by Close (false < true).
//
// Every replica carries two Progress values, Sent and Acked; the
// segment carries one, Queued. The engine maintains Acked <= Sent <=
// Queued for every replica at all times.
type Progress struct {
	Open  bool
	Bytes uint32
	Close bool
}

// Compare returns -1, 0, or 1 as p orders before, equal to, or after
// other.
func (p Progress) Compare(other Progress) int {
	if p.Open != other.Open {
		if !p.Open {
			return -1
		}
		return 1
	}
	if p.Bytes != other.Bytes {
		if p.Bytes < other.Bytes {
			return -1
		}
		return 1
	}
	if p.Close != other.Close {
		if !p.Close {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether p orders strictly before other.
func (p Progress) Less(other Progress) bool { return p.Compare(other) < 0 }

// AtLeast reports whether p orders at or after other.
func (p Progress) AtLeast(other Progress) bool { return p.Compare(other) >= 0 }

// Equal reports whether p and other order identically.
func (p Progress) Equal(other Progress) bool { return p.Compare(other) == 0 }
