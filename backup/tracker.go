package backup

import (
	"sync"
	"time"

	"github.com/gyuho/replog/pkg/types"
	"github.com/gyuho/replog/pkg/xlog"
)

var logger = xlog.NewLogger("backup")

// ServerInfo is what the membership layer knows about one backup:
// enough for Selector to rank it and for Tracker to dial a session to
// it. Real deployments learn this from the coordinator's server list;
// this module only needs the shape of it.
type ServerInfo struct {
	ID types.ServerID

	// ExpectedReadMBytesPerSec is the bandwidth estimate Selector uses
	// to bias primary selection toward backups that will serve
	// GetRecoveryData requests fastest during recovery.
	ExpectedReadMBytesPerSec uint32
}

// Dialer constructs a Session for a known-live backup. Production
// code plugs in a real RPC client here; tests plug in fakebackup.
type Dialer func(ServerInfo) Session

// Tracker is the read-mostly view of currently-reachable backup
// servers and a factory for sessions keyed by ServerID.
type Tracker interface {
	// GetSession returns a session for id, or ErrServerUnavailable if
	// the membership layer has since reported id gone.
	GetSession(id types.ServerID) (Session, error)
}

// ServerList is the shared backing store for Tracker and Selector: a
// read-mostly snapshot of currently-reachable backups, analogous to an
// etcd raft transport's peer map plus its liveness tracking, collapsed
// into one structure because both facets of this module read the same
// membership state.
type ServerList struct {
	mu sync.Mutex

	dial     Dialer
	servers  map[types.ServerID]ServerInfo
	sessions map[types.ServerID]Session

	activeSince map[types.ServerID]time.Time
}

// NewServerList returns an empty ServerList that dials sessions with
// dial.
func NewServerList(dial Dialer) *ServerList {
	return &ServerList{
		dial:        dial,
		servers:     make(map[types.ServerID]ServerInfo),
		sessions:    make(map[types.ServerID]Session),
		activeSince: make(map[types.ServerID]time.Time),
	}
}

// AddOrUpdate enrolls info as a currently-reachable backup. A second
// call for the same ServerID refreshes its ServerInfo (e.g. a new
// bandwidth estimate) without disturbing an existing session.
func (l *ServerList) AddOrUpdate(info ServerInfo) {
	l.mu.Lock()
	if _, ok := l.servers[info.ID]; !ok {
		logger.Infof("backup %s became active", info.ID)
		l.activeSince[info.ID] = time.Now()
	}
	l.servers[info.ID] = info
	l.mu.Unlock()
}

// Remove reports that id is no longer reachable. Any cached session is
// dropped; the next GetSession for id fails with ErrServerUnavailable
// and the next Select* call will no longer offer it as a candidate.
func (l *ServerList) Remove(id types.ServerID) {
	l.mu.Lock()
	if sess, ok := l.sessions[id]; ok {
		sess.Close()
		delete(l.sessions, id)
	}
	if _, ok := l.servers[id]; ok {
		logger.Infof("backup %s became inactive", id)
	}
	delete(l.servers, id)
	delete(l.activeSince, id)
	l.mu.Unlock()
}

// ActiveSince returns when id was last (re)enrolled, or the zero time
// if it is not currently known.
func (l *ServerList) ActiveSince(id types.ServerID) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.activeSince[id]
}

// GetSession implements Tracker.
func (l *ServerList) GetSession(id types.ServerID) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.servers[id]
	if !ok {
		return nil, ErrServerUnavailable
	}
	if sess, ok := l.sessions[id]; ok {
		return sess, nil
	}
	sess := l.dial(info)
	l.sessions[id] = sess
	return sess, nil
}

// snapshot returns the currently-known servers. Used by Selector.
func (l *ServerList) snapshot() []ServerInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ServerInfo, 0, len(l.servers))
	for _, info := range l.servers {
		out = append(out, info)
	}
	return out
}
