// Package replicapb defines the wire-level vocabulary shared by master
// and backup: the flags and request/response shapes for the two RPCs
// the replicated segment engine issues, BackupWrite and BackupFree.
// It carries no behavior of its own, the same way an etcd raft
// package's raftpb sibling carries only message shapes.
package replicapb

import (
	"fmt"

	"github.com/gyuho/replog/pkg/types"
)

// WriteFlags is a bitmask describing what a BackupWrite RPC is doing
// in addition to depositing bytes.
type WriteFlags uint8

const (
	// NONE is a plain data write: neither the first write for this
	// replica nor its last.
	NONE WriteFlags = 0
	// OPEN creates the replica on the backup; idempotent if the
	// (MasterID, SegmentID) pair already names an open replica.
	OPEN WriteFlags = 1 << 0
	// CLOSE finalizes the replica: no further writes are accepted,
	// and the backup must persist it durably enough that recovery
	// will enumerate it.
	CLOSE WriteFlags = 1 << 1
	// PRIMARY additionally marks the replica as the one to be used
	// for the read path during recovery. Only ever set together with
	// OPEN.
	PRIMARY WriteFlags = 1 << 2
)

// Has reports whether f contains every bit in other.
func (f WriteFlags) Has(other WriteFlags) bool { return f&other == other }

func (f WriteFlags) String() string {
	if f == NONE {
		return "NONE"
	}
	s := ""
	add := func(bit WriteFlags, name string) {
		if f.Has(bit) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(OPEN, "OPEN")
	add(PRIMARY, "PRIMARY")
	add(CLOSE, "CLOSE")
	return s
}

// WriteRequest is the request half of a BackupWrite RPC.
type WriteRequest struct {
	MasterID  types.ServerID
	SegmentID types.SegmentID

	// Offset and Length describe the byte range of Data within the
	// segment. The backup rejects a write whose Offset does not
	// immediately follow the bytes it has already accepted for this
	// replica as a protocol error.
	Offset uint32
	Length uint32
	Data   []byte

	Flags WriteFlags
}

func (r WriteRequest) String() string {
	return fmt.Sprintf("BackupWrite(%s, %s, offset=%d, length=%d, flags=%s)",
		r.MasterID, r.SegmentID, r.Offset, r.Length, r.Flags)
}

// WriteResponse is the response half of a BackupWrite RPC.
type WriteResponse struct{}

// FreeRequest is the request half of a BackupFree RPC. Deletes a
// replica by (MasterID, SegmentID); idempotent.
type FreeRequest struct {
	MasterID  types.ServerID
	SegmentID types.SegmentID
}

func (r FreeRequest) String() string {
	return fmt.Sprintf("BackupFree(%s, %s)", r.MasterID, r.SegmentID)
}

// FreeResponse is the response half of a BackupFree RPC.
type FreeResponse struct{}
