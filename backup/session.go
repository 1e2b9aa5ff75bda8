// Package backup models the master's view of backup servers: the
// transport sessions used to reach them (Session), the policy for
// choosing which ones to use for a new replica (Selector), and the
// read-mostly membership view used to find a session for a given
// server (Tracker). None of it speaks a real wire protocol; the actual
// transport is treated as an external collaborator, so Session is the
// seam a real RPC client would be plugged in behind.
package backup

import (
	"context"

	"github.com/gyuho/replog/pkg/types"
	"github.com/gyuho/replog/replica/replicapb"
)

// Session is a shared, long-lived transport handle to one backup
// server, playing a role analogous to an etcd raft transport's Peer.
// A Tracker hands out the same Session to every replica, on every
// segment, that talks to a given backup; it is usable at the instant
// a Tracker returns it.
type Session interface {
	// ServerID is the backup this session talks to.
	ServerID() types.ServerID

	// SendWrite issues a BackupWrite RPC asynchronously and returns a
	// handle for polling or waiting on its outcome. At most one
	// outstanding write call is issued against a given replica at a
	// time by the replica package; Session itself places no such
	// restriction.
	SendWrite(ctx context.Context, req replicapb.WriteRequest) *WriteCall

	// SendFree issues a BackupFree RPC asynchronously.
	SendFree(ctx context.Context, req replicapb.FreeRequest) *FreeCall

	// Close releases the session. Only the Tracker that owns it calls
	// this, when the backup it names is no longer reachable; a
	// replica that is done with a session must not close it; other
	// replicas, on other segments, may still be using the very same
	// Session value.
	Close()
}

// WriteCall is an outstanding BackupWrite RPC: an optional value with
// explicit construct/observe semantics, never heap-shared with
// anything else, so presence of a non-nil *WriteCall on a replica slot
// is itself the "one write RPC outstanding" state discriminator.
type WriteCall struct {
	done chan struct{}
	resp replicapb.WriteResponse
	err  error
}

// NewWriteCall returns an unresolved WriteCall. Session implementations
// construct one per SendWrite call and resolve it with Complete once
// the RPC finishes, typically from a goroutine.
func NewWriteCall() *WriteCall {
	return &WriteCall{done: make(chan struct{})}
}

// Complete resolves the call. It must be called exactly once.
func (c *WriteCall) Complete(resp replicapb.WriteResponse, err error) {
	c.resp, c.err = resp, err
	close(c.done)
}

// Ready reports whether the RPC has completed, without blocking. This
// is the non-blocking poll performWrite uses every tick while a write
// is outstanding.
func (c *WriteCall) Ready() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the RPC completes and returns its outcome.
func (c *WriteCall) Wait() (replicapb.WriteResponse, error) {
	<-c.done
	return c.resp, c.err
}

// FreeCall is an outstanding BackupFree RPC; see WriteCall.
type FreeCall struct {
	done chan struct{}
	resp replicapb.FreeResponse
	err  error
}

// NewFreeCall returns an unresolved FreeCall. See NewWriteCall.
func NewFreeCall() *FreeCall {
	return &FreeCall{done: make(chan struct{})}
}

// Complete resolves the call. It must be called exactly once.
func (c *FreeCall) Complete(resp replicapb.FreeResponse, err error) {
	c.resp, c.err = resp, err
	close(c.done)
}

// Ready reports whether the RPC has completed, without blocking.
func (c *FreeCall) Ready() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the RPC completes and returns its outcome.
func (c *FreeCall) Wait() (replicapb.FreeResponse, error) {
	<-c.done
	return c.resp, c.err
}
