// Package types holds small identifier types shared across the
// replicated segment engine.
package types

import "fmt"

// ServerID is an opaque identifier for a backup server instance. It is
// stable for the life of that instance; a reused numeric value after a
// server crashes and restarts refers to a different instance and must
// not be treated as the same backup.
type ServerID uint64

// String renders id the same way the rest of the engine logs it.
func (id ServerID) String() string {
	return fmt.Sprintf("server:%x", uint64(id))
}

// SegmentID identifies a segment uniquely within one master's
// lifetime. The log module assigns these monotonically.
type SegmentID uint64

// String renders id the same way the rest of the engine logs it.
func (id SegmentID) String() string {
	return fmt.Sprintf("segment:%x", uint64(id))
}
