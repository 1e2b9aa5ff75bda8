package replica

import (
	"sync"
	"time"

	"github.com/gyuho/replog/backup"
	"github.com/gyuho/replog/pkg/types"
	"github.com/gyuho/replog/task"
)

// Config configures a ReplicaManager. There is no flag/env parsing
// here; callers construct Config as a plain struct literal, the way
// an etcd raft.Config is typically built by its caller.
type Config struct {
	// MasterID is this master's own server id, sent with every RPC so
	// backups can key replicas by (MasterID, SegmentID).
	MasterID types.ServerID

	// NumReplicas is how many backup copies every segment this
	// manager opens must maintain.
	NumReplicas uint32

	// MaxWriteRPCsInFlight is the global bound on outstanding
	// BackupWrite RPCs across every segment this manager owns.
	MaxWriteRPCsInFlight uint32

	// MaxBytesPerWriteRPC is the largest single write RPC the engine
	// will issue; longer pending ranges are fragmented across several
	// RPCs, and a fragmented RPC never carries the CLOSE flag.
	MaxBytesPerWriteRPC uint32

	// DriverIdlePoll bounds how long the driver goroutine can sleep
	// between Proceed passes when nothing is scheduled. It exists
	// only as a defensive backstop against a missed wake signal; 0
	// selects a sane default.
	DriverIdlePoll time.Duration
}

// DefaultConfig returns a Config with the engine's standard bounds:
// 8 outstanding write RPCs across this manager's segments, and a 2 MiB
// per-RPC ceiling.
func DefaultConfig(masterID types.ServerID, numReplicas uint32) Config {
	return Config{
		MasterID:             masterID,
		NumReplicas:          numReplicas,
		MaxWriteRPCsInFlight: 8,
		MaxBytesPerWriteRPC:  1 << 21,
		DriverIdlePoll:       50 * time.Millisecond,
	}
}

// ManagerStats is a minimal observability surface: a real deployment
// would export these as metrics counters; this is the in-process
// equivalent a caller can poll directly.
type ManagerStats struct {
	Segments          int
	WriteRPCsInFlight uint32
	FreeRPCRetries    uint64
}

// ReplicaManager owns every ReplicatedSegment for one master, the
// shared dataMutex that serializes all access to them, the global
// writeRPCsInFlight throttle, and the task manager that drives their
// state machines forward.
type ReplicaManager struct {
	mu   sync.Mutex
	cond *sync.Cond

	cfg      Config
	tasks    *task.Manager
	tracker  backup.Tracker
	selector backup.Selector

	writeRPCsInFlight uint32
	freeRPCRetries    uint64

	segments map[types.SegmentID]*ReplicatedSegment

	stopCh chan struct{}
	doneCh chan struct{}
	closed bool
}

// NewReplicaManager returns a ReplicaManager using tracker to reach
// backups and selector to choose them. Call Start before opening any
// segments.
func NewReplicaManager(cfg Config, tracker backup.Tracker, selector backup.Selector) *ReplicaManager {
	if cfg.MaxWriteRPCsInFlight == 0 {
		cfg.MaxWriteRPCsInFlight = DefaultConfig(cfg.MasterID, cfg.NumReplicas).MaxWriteRPCsInFlight
	}
	if cfg.MaxBytesPerWriteRPC == 0 {
		cfg.MaxBytesPerWriteRPC = DefaultConfig(cfg.MasterID, cfg.NumReplicas).MaxBytesPerWriteRPC
	}
	if cfg.DriverIdlePoll == 0 {
		cfg.DriverIdlePoll = DefaultConfig(cfg.MasterID, cfg.NumReplicas).DriverIdlePoll
	}

	rm := &ReplicaManager{
		cfg:      cfg,
		tasks:    task.NewManager(),
		tracker:  tracker,
		selector: selector,
		segments: make(map[types.SegmentID]*ReplicatedSegment),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	rm.cond = sync.NewCond(&rm.mu)
	return rm
}

// Start launches the background driver goroutine that repeatedly
// proceeds the task loop. Exactly one must be running for a
// ReplicaManager to make progress.
func (rm *ReplicaManager) Start() {
	go rm.driverLoop()
}

// Stop signals the driver goroutine to exit and waits for it to do so.
// Any segments with outstanding work are left exactly where they were;
// Stop does not drain them.
func (rm *ReplicaManager) Stop() {
	rm.mu.Lock()
	if rm.closed {
		rm.mu.Unlock()
		return
	}
	rm.closed = true
	rm.mu.Unlock()

	close(rm.stopCh)
	<-rm.doneCh
}

func (rm *ReplicaManager) driverLoop() {
	defer close(rm.doneCh)
	for {
		rm.mu.Lock()
		rm.tasks.Proceed()
		rm.cond.Broadcast()
		rm.mu.Unlock()

		select {
		case <-rm.stopCh:
			return
		case <-rm.tasks.Wake():
		case <-time.After(rm.cfg.DriverIdlePoll):
		}
	}
}

// OpenSegment constructs a new ReplicatedSegment for segmentID backed
// by data (of which openLen bytes are sent atomically with the
// opening write), schedules it, and returns it. data is borrowed for
// the entire lifetime of the returned segment: the caller must not
// mutate or free it before the segment's Free method returns.
func (rm *ReplicaManager) OpenSegment(segmentID types.SegmentID, data []byte, openLen uint32) *ReplicatedSegment {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	seg := newReplicatedSegment(rm, rm.cfg.MasterID, segmentID, data, openLen, rm.cfg.NumReplicas)
	rm.segments[segmentID] = seg
	seg.schedule()
	return seg
}

// Sync blocks until every segment this manager owns is fully synced:
// every replica of every segment has acknowledged everything queued
// for it.
func (rm *ReplicaManager) Sync() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for !rm.allSyncedLocked() {
		rm.cond.Wait()
	}
}

func (rm *ReplicaManager) allSyncedLocked() bool {
	for _, seg := range rm.segments {
		if !seg.isSynced() {
			return false
		}
	}
	return true
}

// destroyAndFreeReplicatedSegment removes seg from this manager. Only
// ever called by seg's own PerformTask once every replica has been
// freed and nothing about seg remains scheduled.
func (rm *ReplicaManager) destroyAndFreeReplicatedSegment(seg *ReplicatedSegment) {
	delete(rm.segments, seg.segmentID)
	rm.cond.Broadcast()
}

// Stats returns a snapshot of the manager's in-process counters (see
// ManagerStats).
func (rm *ReplicaManager) Stats() ManagerStats {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return ManagerStats{
		Segments:          len(rm.segments),
		WriteRPCsInFlight: rm.writeRPCsInFlight,
		FreeRPCRetries:    rm.freeRPCRetries,
	}
}
