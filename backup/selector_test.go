package backup

import (
	"testing"

	"github.com/gyuho/replog/pkg/types"
)

func Test_DefaultSelector_SelectPrimary_prefers_highest_bandwidth(t *testing.T) {
	list := NewServerList(func(ServerInfo) Session { return nil })
	list.AddOrUpdate(ServerInfo{ID: 1, ExpectedReadMBytesPerSec: 10})
	list.AddOrUpdate(ServerInfo{ID: 2, ExpectedReadMBytesPerSec: 100})
	list.AddOrUpdate(ServerInfo{ID: 3, ExpectedReadMBytesPerSec: 50})

	sel := NewDefaultSelector(list)
	got, err := sel.SelectPrimary(nil)
	if err != nil {
		t.Fatalf("SelectPrimary: %v", err)
	}
	if got != types.ServerID(2) {
		t.Fatalf("SelectPrimary() = %v, want server 2 (highest bandwidth)", got)
	}
}

func Test_DefaultSelector_SelectPrimary_honors_avoid_set(t *testing.T) {
	list := NewServerList(func(ServerInfo) Session { return nil })
	list.AddOrUpdate(ServerInfo{ID: 1, ExpectedReadMBytesPerSec: 10})
	list.AddOrUpdate(ServerInfo{ID: 2, ExpectedReadMBytesPerSec: 100})

	sel := NewDefaultSelector(list)
	got, err := sel.SelectPrimary(map[types.ServerID]struct{}{2: {}})
	if err != nil {
		t.Fatalf("SelectPrimary: %v", err)
	}
	if got != types.ServerID(1) {
		t.Fatalf("SelectPrimary() = %v, want server 1 once server 2 is avoided", got)
	}
}

func Test_DefaultSelector_SelectPrimary_no_candidates(t *testing.T) {
	list := NewServerList(func(ServerInfo) Session { return nil })
	sel := NewDefaultSelector(list)
	if _, err := sel.SelectPrimary(nil); err != ErrNoBackupAvailable {
		t.Fatalf("SelectPrimary() error = %v, want ErrNoBackupAvailable", err)
	}
}

func Test_DefaultSelector_SelectSecondary_excludes_avoided(t *testing.T) {
	list := NewServerList(func(ServerInfo) Session { return nil })
	list.AddOrUpdate(ServerInfo{ID: 1})
	list.AddOrUpdate(ServerInfo{ID: 2})

	sel := NewDefaultSelector(list)
	for i := 0; i < 20; i++ {
		got, err := sel.SelectSecondary(map[types.ServerID]struct{}{1: {}})
		if err != nil {
			t.Fatalf("SelectSecondary: %v", err)
		}
		if got != types.ServerID(2) {
			t.Fatalf("SelectSecondary() = %v, want server 2 every time server 1 is avoided", got)
		}
	}
}

func Test_DefaultSelector_SelectSecondary_no_candidates(t *testing.T) {
	list := NewServerList(func(ServerInfo) Session { return nil })
	list.AddOrUpdate(ServerInfo{ID: 1})

	sel := NewDefaultSelector(list)
	if _, err := sel.SelectSecondary(map[types.ServerID]struct{}{1: {}}); err != ErrNoBackupAvailable {
		t.Fatalf("SelectSecondary() error = %v, want ErrNoBackupAvailable", err)
	}
}
