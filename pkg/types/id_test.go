package types

import "testing"

func Test_ServerID_String(t *testing.T) {
	id := ServerID(0x2a)
	if g, w := id.String(), "server:2a"; g != w {
		t.Fatalf("String() = %q, want %q", g, w)
	}
}

func Test_SegmentID_String(t *testing.T) {
	id := SegmentID(10)
	if g, w := id.String(), "segment:a"; g != w {
		t.Fatalf("String() = %q, want %q", g, w)
	}
}
