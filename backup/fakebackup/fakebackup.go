// Package fakebackup is an in-memory stand-in for a backup server. It
// honors the contract BackupWriteRpc and BackupFreeRpc are expected to
// uphold closely enough to drive realistic integration tests of the
// replicated segment engine without a network: OPEN creates a replica
// (idempotently), writes must be byte-exact and contiguous, CLOSE
// finalizes the replica, and FREE deletes it (idempotently).
package fakebackup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gyuho/replog/backup"
	"github.com/gyuho/replog/pkg/types"
	"github.com/gyuho/replog/replica/replicapb"
)

type replicaKey struct {
	masterID  types.ServerID
	segmentID types.SegmentID
}

type storedReplica struct {
	data   []byte
	open   bool
	closed bool
}

// Backup is one fake backup server: a set of stored replicas plus
// per-RPC injectable latency and failure, so tests can reproduce
// delayed acks and transport failures without a real network.
type Backup struct {
	mu       sync.Mutex
	id       types.ServerID
	replicas map[replicaKey]*storedReplica

	// writeDelay, if set, is applied before every write completes;
	// tests use this to hold a replica's OPEN ack pending.
	writeDelay time.Duration

	// failNextWrites causes the next n SendWrite calls to fail with a
	// transport error instead of completing; decremented per call.
	failNextWrites int

	// writeRPCs counts every SendWrite call issued against this
	// backup, successful or not; tests use it to confirm a long write
	// was fragmented into more than one RPC.
	writeRPCs int

	// ExpectedReadMBytesPerSec is not read by this package; the
	// bandwidth a Selector sees comes from the ServerInfo its caller
	// enrolls in a backup.ServerList.
	ExpectedReadMBytesPerSec uint32
}

// New returns an empty fake backup identified by id.
func New(id types.ServerID) *Backup {
	return &Backup{
		id:       id,
		replicas: make(map[replicaKey]*storedReplica),
	}
}

// SetWriteDelay configures a fixed delay applied before completing
// every subsequent write, until changed again.
func (b *Backup) SetWriteDelay(d time.Duration) {
	b.mu.Lock()
	b.writeDelay = d
	b.mu.Unlock()
}

// FailNextWrites makes the next n write RPCs fail with a transport
// error instead of completing successfully.
func (b *Backup) FailNextWrites(n int) {
	b.mu.Lock()
	b.failNextWrites = n
	b.mu.Unlock()
}

// Has reports whether the backup currently stores a replica for
// (masterID, segmentID), and if so, whether it has seen its close.
func (b *Backup) Has(masterID types.ServerID, segmentID types.SegmentID) (open, closed bool, exists bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.replicas[replicaKey{masterID, segmentID}]
	if !ok {
		return false, false, false
	}
	return r.open, r.closed, true
}

// WriteRPCs returns the number of SendWrite calls issued against b so
// far.
func (b *Backup) WriteRPCs() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeRPCs
}

// Bytes returns a copy of the bytes currently stored for the replica,
// for test assertions.
func (b *Backup) Bytes(masterID types.ServerID, segmentID types.SegmentID) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.replicas[replicaKey{masterID, segmentID}]
	if !ok {
		return nil
	}
	out := make([]byte, len(r.data))
	copy(out, r.data)
	return out
}

// session implements backup.Session against one Backup.
type session struct {
	backup *Backup
	id     types.ServerID
}

// NewSession returns a backup.Session talking to b, for use as a
// backup.Dialer: backup.NewServerList(func(info) backup.Session {
// return fakebackup.NewSession(b) }).
func NewSession(b *Backup) backup.Session {
	return &session{backup: b, id: b.id}
}

func (s *session) ServerID() types.ServerID { return s.id }

func (s *session) Close() {}

func (s *session) SendWrite(ctx context.Context, req replicapb.WriteRequest) *backup.WriteCall {
	s.backup.mu.Lock()
	s.backup.writeRPCs++
	s.backup.mu.Unlock()

	call := backup.NewWriteCall()
	go func() {
		delay, fail := s.backup.takeWriteOutcome()
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				call.Complete(replicapb.WriteResponse{}, ctx.Err())
				return
			}
		}
		if fail {
			call.Complete(replicapb.WriteResponse{}, fmt.Errorf("fakebackup: transport error writing to %s", s.id))
			return
		}
		resp, err := s.backup.write(req)
		call.Complete(resp, err)
	}()
	return call
}

func (s *session) SendFree(ctx context.Context, req replicapb.FreeRequest) *backup.FreeCall {
	call := backup.NewFreeCall()
	go func() {
		resp, err := s.backup.free(req)
		call.Complete(resp, err)
	}()
	return call
}

func (b *Backup) takeWriteOutcome() (delay time.Duration, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delay = b.writeDelay
	if b.failNextWrites > 0 {
		b.failNextWrites--
		fail = true
	}
	return delay, fail
}

func (b *Backup) write(req replicapb.WriteRequest) (replicapb.WriteResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := replicaKey{req.MasterID, req.SegmentID}
	r, exists := b.replicas[key]

	if req.Flags.Has(replicapb.OPEN) {
		if !exists {
			r = &storedReplica{}
			b.replicas[key] = r
		} else if r.open && req.Offset == 0 && int(req.Length) <= len(r.data) {
			// Idempotent: a duplicate OPEN for an already-open replica
			// whose opening bytes are already stored is a no-op rather
			// than an error.
			return replicapb.WriteResponse{}, nil
		}
		r.open = true
	} else if !exists || !r.open {
		return replicapb.WriteResponse{}, fmt.Errorf(
			"fakebackup: write to unopened replica (%s, %s)", req.MasterID, req.SegmentID)
	}

	if r.closed {
		return replicapb.WriteResponse{}, fmt.Errorf(
			"fakebackup: write to closed replica (%s, %s)", req.MasterID, req.SegmentID)
	}

	if int(req.Offset) != len(r.data) {
		return replicapb.WriteResponse{}, fmt.Errorf(
			"fakebackup: non-contiguous write to (%s, %s): offset=%d, have=%d",
			req.MasterID, req.SegmentID, req.Offset, len(r.data))
	}
	if int(req.Length) != len(req.Data) {
		return replicapb.WriteResponse{}, fmt.Errorf(
			"fakebackup: length=%d does not match payload of %d bytes", req.Length, len(req.Data))
	}
	r.data = append(r.data, req.Data...)

	if req.Flags.Has(replicapb.CLOSE) {
		r.closed = true
	}
	return replicapb.WriteResponse{}, nil
}

func (b *Backup) free(req replicapb.FreeRequest) (replicapb.FreeResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.replicas, replicaKey{req.MasterID, req.SegmentID})
	return replicapb.FreeResponse{}, nil
}
