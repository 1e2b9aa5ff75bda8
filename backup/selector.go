package backup

import (
	"math/rand"

	"github.com/google/btree"

	"github.com/gyuho/replog/pkg/types"
)

// Selector chooses backups for new replicas, given the set of
// ServerIDs the caller wants to avoid (to keep two replicas of the
// same segment off the same backup). It is a stateless policy: the
// same signature serves both roles, with SelectPrimary additionally
// biased toward read bandwidth.
type Selector interface {
	SelectPrimary(avoid map[types.ServerID]struct{}) (types.ServerID, error)
	SelectSecondary(avoid map[types.ServerID]struct{}) (types.ServerID, error)
}

// bandwidthItem orders ServerList entries by descending expected read
// bandwidth (ties broken by ServerID) so that the first item of a
// btree.BTree of them is the highest-bandwidth candidate.
type bandwidthItem struct {
	info ServerInfo
}

func (a bandwidthItem) Less(than btree.Item) bool {
	b := than.(bandwidthItem)
	if a.info.ExpectedReadMBytesPerSec != b.info.ExpectedReadMBytesPerSec {
		// BTree is ascending; invert the comparison so the highest
		// bandwidth sorts first and Ascend visits it first.
		return a.info.ExpectedReadMBytesPerSec > b.info.ExpectedReadMBytesPerSec
	}
	return a.info.ID < b.info.ID
}

// DefaultSelector is the bandwidth-biased Selector backed by a
// ServerList.
type DefaultSelector struct {
	list *ServerList
	rng  *rand.Rand
}

// NewDefaultSelector returns a Selector that reads candidates from
// list.
func NewDefaultSelector(list *ServerList) *DefaultSelector {
	return &DefaultSelector{
		list: list,
		rng:  rand.New(rand.NewSource(1)),
	}
}

// SelectPrimary implements Selector. It biases toward the highest
// ExpectedReadMBytesPerSec among candidates not in avoid.
func (s *DefaultSelector) SelectPrimary(avoid map[types.ServerID]struct{}) (types.ServerID, error) {
	candidates := s.list.snapshot()
	if len(candidates) == 0 {
		return 0, ErrNoBackupAvailable
	}

	index := btree.New(8)
	for _, info := range candidates {
		if _, skip := avoid[info.ID]; skip {
			continue
		}
		index.ReplaceOrInsert(bandwidthItem{info})
	}
	if index.Len() == 0 {
		return 0, ErrNoBackupAvailable
	}

	var best types.ServerID
	index.Ascend(func(item btree.Item) bool {
		best = item.(bandwidthItem).info.ID
		return false // bandwidthItem sorts highest-bandwidth first
	})
	return best, nil
}

// SelectSecondary implements Selector. Ties among candidates are
// broken uniformly at random.
func (s *DefaultSelector) SelectSecondary(avoid map[types.ServerID]struct{}) (types.ServerID, error) {
	candidates := s.list.snapshot()
	var pool []types.ServerID
	for _, info := range candidates {
		if _, skip := avoid[info.ID]; skip {
			continue
		}
		pool = append(pool, info.ID)
	}
	if len(pool) == 0 {
		return 0, ErrNoBackupAvailable
	}
	return pool[s.rng.Intn(len(pool))], nil
}
