package replica

import (
	"github.com/gyuho/replog/backup"
	"github.com/gyuho/replog/pkg/types"
)

// replicaState is one backup's copy of one segment. A *replicaState of
// nil on a ReplicatedSegment's replicas slice means the slot is
// absent: not yet opened, or reset after a transport failure before
// its OPEN was acked.
type replicaState struct {
	backupID types.ServerID
	session  backup.Session

	sent  Progress
	acked Progress

	// writeRPC and freeRPC are mutually exclusive and each has at most
	// one outstanding value at a time; a nil field is the "no RPC
	// outstanding" state.
	writeRPC *backup.WriteCall
	freeRPC  *backup.FreeCall
}

// synced reports whether this replica has acknowledged everything
// queued so far.
func (r *replicaState) synced(queued Progress) bool {
	return r.acked.Equal(queued)
}
