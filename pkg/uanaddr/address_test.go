package uanaddr

import (
	"errors"
	"testing"
)

func TestParseLong(t *testing.T) {
	tests := []struct {
		in      string
		want    Long
		wantErr bool
	}{
		{"00:00:00:00:00:01", Long{0, 0, 0, 0, 0, 1}, false},
		{"ff:ff:ff:ff:ff:ff", BroadcastLong, false},
		{"02-42-ac-11-00-02", Long{0x02, 0x42, 0xac, 0x11, 0x00, 0x02}, false},
		{"00:00:00:00:00", Long{}, true},
		{"00:00:5e:00:53:00:00:01", Long{}, true}, // EUI-64 is not a long address
		{"nonsense", Long{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLong(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidAddress) {
				t.Errorf("ParseLong(%q): expected ErrInvalidAddress, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLong(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLong(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLongEmbeddedZeroBytesAreDistinct(t *testing.T) {
	// Keys built from C strings would truncate both of these to the empty string.
	a := Long{0, 0, 0, 0, 0, 1}
	b := Long{0, 0, 0, 0, 0, 2}
	m := map[Long]int{a: 1, b: 2}
	if len(m) != 2 {
		t.Fatalf("Expected 2 distinct keys, got %d", len(m))
	}
}

func TestLongUint64(t *testing.T) {
	l := Long{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	if v := l.Uint64(); v != 0x010203040506 {
		t.Fatalf("Uint64 = %#x", v)
	}
	if back := LongFromUint64(l.Uint64()); back != l {
		t.Fatalf("LongFromUint64 = %s, want %s", back, l)
	}
	if !BroadcastLong.IsGroup() || !BroadcastLong.IsBroadcast() {
		t.Errorf("Broadcast should be a group address")
	}
}

func TestLongCopyTo(t *testing.T) {
	buf := make([]byte, 8)
	l := Long{1, 2, 3, 4, 5, 6}
	if n := l.CopyTo(buf); n != LongSize {
		t.Fatalf("CopyTo wrote %d bytes", n)
	}
	got, err := LongFromBytes(buf[:LongSize])
	if err != nil || got != l {
		t.Fatalf("LongFromBytes = %s, %v", got, err)
	}
}

func TestParseShort(t *testing.T) {
	s, err := ParseShort("42")
	if err != nil || s != 42 {
		t.Fatalf("ParseShort(42) = %d, %v", s, err)
	}
	s, err = ParseShort("255")
	if err != nil || !s.IsBroadcast() {
		t.Fatalf("ParseShort(255) = %d, %v", s, err)
	}
	if _, err := ParseShort("256"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ParseShort(256): expected ErrInvalidAddress, got %v", err)
	}
	if _, err := ShortFromBytes([]byte{1, 2}); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("ShortFromBytes with 2 bytes: expected ErrInvalidAddress, got %v", err)
	}
}
