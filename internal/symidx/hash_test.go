package symidx

import "testing"

func TestGNUHashKnownValues(t *testing.T) {
	// Reference values from the GNU hash algorithm's own specification
	// (Ulrich Drepper's "How to Write Shared Libraries", §2.2).
	cases := map[string]uint32{
		"":        0x00001505,
		"printf":  0x156b2bb8,
		"exit":    0x7c967e3f,
		"syscall": 0xbac212a0,
	}
	for name, want := range cases {
		if got := GNUHash(name); got != want {
			t.Errorf("GNUHash(%q) = %#x, want %#x", name, got, want)
		}
	}
}

func TestSysVHashKnownValues(t *testing.T) {
	cases := map[string]uint32{
		"":       0,
		"printf": 0x77905a6,
	}
	for name, want := range cases {
		if got := SysVHash(name); got != want {
			t.Errorf("SysVHash(%q) = %#x, want %#x", name, got, want)
		}
	}
}
