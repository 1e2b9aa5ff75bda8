package idutil

import (
	"testing"
	"time"
)

func Test_Generator_Next(t *testing.T) {
	g := NewGenerator(0x12, time.Unix(0, 0).Add(0x3456*time.Millisecond))
	want := uint64(0x12000000345601)
	for i := 0; i < 1000; i++ {
		id := g.Next()
		if id != want+uint64(i) {
			t.Fatalf("id #%d = %x, want %x", i, id, want+uint64(i))
		}
	}
}

func Test_Generator_Next_unique_across_owners(t *testing.T) {
	g := NewGenerator(0, time.Time{})
	id := g.Next()

	gRestart := NewGenerator(0, time.Now())
	if idRestart := gRestart.Next(); id == idRestart {
		t.Fatalf("expected restart to produce a different id, got %x twice", id)
	}

	gOther := NewGenerator(1, time.Now())
	if idOther := gOther.Next(); id == idOther {
		t.Fatalf("expected different owner to produce a different id, got %x twice", id)
	}
}

func Test_Generator_NextServerID_NextSegmentID(t *testing.T) {
	g := NewGenerator(7, time.Now())
	s1 := g.NextServerID()
	s2 := g.NextSegmentID()
	if uint64(s1) == 0 || uint64(s2) == 0 {
		t.Fatalf("expected non-zero ids, got server=%v segment=%v", s1, s2)
	}
	if uint64(s1) == uint64(s2) {
		t.Fatalf("expected distinct successive ids, got %v twice", s1)
	}
}
