// Package idutil allocates unique 64-bit identifiers. Test harnesses
// use it to mint distinct ServerIDs and SegmentIDs per test, the way
// a real master or coordinator would mint them from its own Generator
// rather than from a shared counter.
package idutil

import (
	"math"
	"sync"
	"time"

	"github.com/gyuho/replog/pkg/types"
)

// Generator generates unique uint64 ids based on an owner ID,
// timestamp, and counter.
//
//	| prefix  | suffix              |
//	| 2 bytes | 5 bytes   | 1 byte  |
//	| ownerID | timestamp | counter |
type Generator struct {
	mu sync.Mutex

	// high order 2 bytes identify the owner (e.g. the master or
	// coordinator instance minting the id)
	prefix uint64

	// lower order 6 bytes: 5 bytes of timestamp, 1 byte of counter
	suffix uint64
}

func lowByteBits(x uint64, n uint) uint64 {
	return x & (math.MaxUint64 >> (8*8 - n))
}

// NewGenerator returns a new Generator scoped to ownerID.
func NewGenerator(ownerID uint16, now time.Time) *Generator {
	prefix := uint64(ownerID) << (8 * 6)

	msec := uint64(now.UnixNano()) / uint64(time.Millisecond)
	suffix := lowByteBits(msec, 8*5)
	suffix = suffix << 8

	return &Generator{
		prefix: prefix,
		suffix: suffix,
	}
}

// Next returns the next unique id.
func (g *Generator) Next() uint64 {
	g.mu.Lock()
	g.suffix++
	id := g.prefix | lowByteBits(g.suffix, 8*6)
	g.mu.Unlock()
	return id
}

// NextServerID returns the next unique id as a types.ServerID.
func (g *Generator) NextServerID() types.ServerID {
	return types.ServerID(g.Next())
}

// NextSegmentID returns the next unique id as a types.SegmentID.
func (g *Generator) NextSegmentID() types.SegmentID {
	return types.SegmentID(g.Next())
}
