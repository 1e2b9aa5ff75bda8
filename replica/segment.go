package replica

import (
	"context"

	"github.com/gyuho/replog/pkg/types"
	"github.com/gyuho/replog/pkg/xlog"
	"github.com/gyuho/replog/replica/replicapb"
)

var logger = xlog.NewLogger("replica")

// ReplicatedSegment is the per-segment replication state machine: one
// instance per log segment, one replicaState sub-state per backup.
// All of its mutable state is guarded by its owning ReplicaManager's
// dataMutex; every exported method acquires it.
type ReplicatedSegment struct {
	mgr *ReplicaManager

	masterID  types.ServerID
	segmentID types.SegmentID

	data    []byte
	openLen uint32

	// queued is the cumulative durable commitment requested of this
	// segment by the log module so far.
	queued Progress

	// replicas[0] is always the primary.
	replicas []*replicaState

	freeQueued bool

	// followingSegment is a weak (non-owning) reference to the
	// segment that follows this one in the log; see Close. It is
	// cleared as soon as its purpose is served. Go's garbage collector
	// keeps this safe as a plain pointer: the referent can only be
	// destroyed once its own freeQueued cycle fully drains, and by
	// then every segment that could still be pointing at it has
	// already nulled the reference (see performWrite's close-ack
	// handling).
	followingSegment *ReplicatedSegment

	// precedingSegmentCloseAcked starts true and is set false by the
	// preceding segment's Close call, then back to true once some
	// replica of the preceding segment acknowledges its close.
	// performWrite reads this before sending any non-opening write.
	precedingSegmentCloseAcked bool
}

func newReplicatedSegment(mgr *ReplicaManager, masterID types.ServerID, segmentID types.SegmentID, data []byte, openLen uint32, numReplicas uint32) *ReplicatedSegment {
	return &ReplicatedSegment{
		mgr:                        mgr,
		masterID:                   masterID,
		segmentID:                  segmentID,
		data:                       data,
		openLen:                    openLen,
		queued:                     Progress{Open: true, Bytes: openLen, Close: false},
		replicas:                   make([]*replicaState, numReplicas),
		precedingSegmentCloseAcked: true,
	}
}

// SegmentID returns the segment's identifier.
func (s *ReplicatedSegment) SegmentID() types.SegmentID { return s.segmentID }

func (s *ReplicatedSegment) schedule() { s.mgr.tasks.Schedule(s) }

// Write requests the eventual replication of data ending at offset
// (non-inclusive) on every backup. Call Sync afterward to wait for
// durability; write alone only enqueues the request.
//
// offset must be >= the offset of every previous Write on this
// segment, and the segment must not already be closed; either
// violation is a programmer error.
func (s *ReplicatedSegment) Write(offset uint32) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()

	if s.queued.Close {
		logger.Errorf("write(%d) on closed segment %s", offset, s.segmentID)
		panic(ErrClosed)
	}
	if offset < s.queued.Bytes {
		logger.Errorf("write(%d) on segment %s moves offset backward from %d", offset, s.segmentID, s.queued.Bytes)
		panic(ErrNonMonotonicOffset)
	}

	s.queued.Bytes = offset
	s.schedule()
}

// Close requests the eventual close of every replica of this segment.
// followingSegment, if non-nil, is the segment that will logically
// follow this one in the log; binding it enforces that this segment's
// close RPCs wait for the following segment's open to be acked, and
// that the following segment's writes wait for this segment's close to
// be acked. Pass nil during log cleaning or in tests that don't need
// the ordering guarantee.
//
// No further Write calls are permitted once Close has been called;
// doing so is a programmer error.
func (s *ReplicatedSegment) Close(followingSegment *ReplicatedSegment) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()

	if s.queued.Close {
		logger.Errorf("close() called twice on segment %s", s.segmentID)
		panic(ErrClosed)
	}

	s.queued.Close = true
	s.followingSegment = followingSegment
	if followingSegment != nil {
		followingSegment.precedingSegmentCloseAcked = false
	}
	logger.Debugf("segment %s closed at %d bytes", s.segmentID, s.queued.Bytes)

	s.schedule()
}

// Sync blocks, cooperatively advancing the task loop, until every
// replica has durably received at least offset bytes with its open
// flag acknowledged. It never fails; an offset that is never queued
// via Write blocks forever, by design.
func (s *ReplicatedSegment) Sync(offset uint32) {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()
	for !s.ackedAtLeastLocked(offset) {
		s.mgr.cond.Wait()
	}
}

func (s *ReplicatedSegment) ackedAtLeastLocked(offset uint32) bool {
	for _, r := range s.replicas {
		if r == nil || !r.acked.Open || r.acked.Bytes < offset {
			return false
		}
	}
	return true
}

// Free requests the eventual freeing of every known replica of this
// segment. It blocks until every write RPC outstanding at the moment
// of the call has drained — so the caller's log memory is safe to
// reuse the instant Free returns — but does not wait for the
// subsequent free RPCs themselves to complete; those continue in the
// background. The caller's pointer to s must be treated as invalid as
// soon as Free returns.
func (s *ReplicatedSegment) Free() {
	s.mgr.mu.Lock()
	defer s.mgr.mu.Unlock()

	s.freeQueued = true

	for s.hasOutstandingWriteLocked() {
		s.mgr.cond.Wait()
	}

	s.schedule()
}

func (s *ReplicatedSegment) hasOutstandingWriteLocked() bool {
	for _, r := range s.replicas {
		if r != nil && r.writeRPC != nil {
			return true
		}
	}
	return false
}

// isSynced reports whether every replica has acknowledged everything
// queued.
func (s *ReplicatedSegment) isSynced() bool {
	for _, r := range s.replicas {
		if r == nil || !r.synced(s.queued) {
			return false
		}
	}
	return true
}

// PerformTask implements task.Task. It is invoked by the
// ReplicaManager's driver goroutine with dataMutex held.
func (s *ReplicatedSegment) PerformTask() {
	if s.freeQueued {
		for i := range s.replicas {
			s.performFree(i)
		}
		if !s.mgr.tasks.IsScheduled(s) {
			// Every replica is freed and nothing else is pending:
			// this segment has nothing left to do.
			s.mgr.destroyAndFreeReplicatedSegment(s)
		}
		return
	}

	for i := range s.replicas {
		s.performWrite(i)
	}
	if !s.isSynced() && !s.mgr.tasks.IsScheduled(s) {
		logger.Panicf("segment %s is neither synced nor scheduled after performTask", s.segmentID)
	}
}

// performWrite makes progress, if possible, toward durably writing
// queued data to replicas[i].
func (s *ReplicatedSegment) performWrite(i int) {
	r := s.replicas[i]

	if r != nil && r.synced(s.queued) {
		return
	}

	if r == nil {
		s.openReplica(i)
		return
	}

	if r.writeRPC != nil {
		s.reapWrite(i, r)
		return
	}

	// No outstanding write, not yet synced: some part of queued hasn't
	// been sent.
	if !r.sent.Less(s.queued) {
		logger.Panicf("segment %s replica %d: sent %+v not less than queued %+v with no outstanding write",
			s.segmentID, i, r.sent, s.queued)
	}
	if r.sent.Close {
		logger.Panicf("segment %s replica %d: sent.Close already true with no outstanding write", s.segmentID, i)
	}

	if !s.precedingSegmentCloseAcked {
		// Hold every non-opening write until the preceding segment's
		// close is durable.
		s.schedule()
		return
	}

	offset := r.sent.Bytes
	length := s.queued.Bytes - r.sent.Bytes
	flags := replicapb.NONE
	if s.queued.Close {
		flags = replicapb.CLOSE
	}

	if length > s.mgr.cfg.MaxBytesPerWriteRPC {
		length = s.mgr.cfg.MaxBytesPerWriteRPC
		flags = replicapb.NONE // close rides a later, unfragmented RPC
	}

	if flags.Has(replicapb.CLOSE) && s.followingSegment != nil {
		if !s.followingSegment.ackedOpenLocked() {
			// Never close this segment until the next one is durably
			// open.
			s.schedule()
			return
		}
	}

	call := r.session.SendWrite(context.Background(), replicapb.WriteRequest{
		MasterID:  s.masterID,
		SegmentID: s.segmentID,
		Offset:    offset,
		Length:    length,
		Data:      s.data[offset : offset+length],
		Flags:     flags,
	})
	r.writeRPC = call
	r.sent.Bytes += length
	r.sent.Close = flags.Has(replicapb.CLOSE)
	s.mgr.writeRPCsInFlight++
	s.schedule()
}

func (s *ReplicatedSegment) ackedOpenLocked() bool {
	for _, r := range s.replicas {
		if r != nil && r.acked.Open {
			return true
		}
	}
	return false
}

// openReplica handles the case where replicas[i] is absent: pick a
// backup, obtain a session, and issue the opening write.
func (s *ReplicatedSegment) openReplica(i int) {
	if s.mgr.writeRPCsInFlight >= s.mgr.cfg.MaxWriteRPCsInFlight {
		s.schedule() // throttled: the manager's write RPC bound reached
		return
	}

	avoid := make(map[types.ServerID]struct{}, len(s.replicas))
	for _, other := range s.replicas {
		if other != nil {
			avoid[other.backupID] = struct{}{}
		}
	}

	var backupID types.ServerID
	var err error
	flags := replicapb.OPEN
	if i == 0 {
		backupID, err = s.mgr.selector.SelectPrimary(avoid)
		flags |= replicapb.PRIMARY
	} else {
		backupID, err = s.mgr.selector.SelectSecondary(avoid)
	}
	if err != nil {
		// No candidate available right now (every live backup is
		// already a replica of this segment, or the cluster is
		// briefly short of backups); retry next tick rather than
		// blocking the driver thread. See DESIGN.md.
		s.schedule()
		return
	}

	session, err := s.mgr.tracker.GetSession(backupID)
	if err != nil {
		s.schedule()
		return
	}

	r := &replicaState{backupID: backupID, session: session}
	call := session.SendWrite(context.Background(), replicapb.WriteRequest{
		MasterID:  s.masterID,
		SegmentID: s.segmentID,
		Offset:    0,
		Length:    s.openLen,
		Data:      s.data[:s.openLen],
		Flags:     flags,
	})
	r.writeRPC = call
	r.sent = Progress{Open: true, Bytes: s.openLen, Close: false}
	s.replicas[i] = r
	s.mgr.writeRPCsInFlight++
	s.schedule()
}

// reapWrite handles the case where replicas[i] has an outstanding
// write RPC: poll it, and if it's done, fold the result into acked or
// roll back sent on failure.
func (s *ReplicatedSegment) reapWrite(i int, r *replicaState) {
	if !r.writeRPC.Ready() {
		s.schedule()
		return
	}

	_, err := r.writeRPC.Wait()
	if err == nil {
		r.acked = r.sent
		if r.sent.Close && s.followingSegment != nil {
			s.followingSegment.precedingSegmentCloseAcked = true
			s.followingSegment = nil
		}
	} else {
		logger.Warningf("write to backup %s failed for segment %s, retrying: %v", r.backupID, s.segmentID, err)
		r.sent = r.acked
	}

	r.writeRPC = nil
	s.mgr.writeRPCsInFlight--
	s.mgr.cond.Broadcast()

	if !r.acked.Equal(s.queued) {
		s.schedule()
	}
	if !r.acked.Open {
		// The open was never acknowledged; reset the slot so a fresh
		// attempt, possibly against a different backup, is made.
		s.replicas[i] = nil
		s.schedule()
	}
}

// performFree makes progress, if possible, toward freeing a known
// replica, regardless of what state it's in locally or remotely.
func (s *ReplicatedSegment) performFree(i int) {
	r := s.replicas[i]
	if r == nil {
		return
	}

	if r.freeRPC != nil {
		if !r.freeRPC.Ready() {
			s.schedule()
			return
		}
		_, err := r.freeRPC.Wait()
		if err != nil {
			// Retried indefinitely; no durable record exists that
			// this replica was ever freed.
			logger.Warningf("free of replica on backup %s failed for segment %s, retrying: %v", r.backupID, s.segmentID, err)
			s.mgr.freeRPCRetries++
			r.freeRPC = nil
			s.schedule()
			return
		}
		// The session itself is the tracker's cached, shared handle to
		// this backup, not this replica's to close: other replicas on
		// the same backup may still be using it. Just drop this
		// replica's own reference to it.
		s.replicas[i] = nil
		return
	}

	if r.writeRPC != nil {
		// Can't free while a write is outstanding; make progress on
		// it and stay scheduled to retry the free afterward.
		s.performWrite(i)
		s.schedule()
		return
	}

	r.freeRPC = r.session.SendFree(context.Background(), replicapb.FreeRequest{
		MasterID:  s.masterID,
		SegmentID: s.segmentID,
	})
	s.schedule()
}
