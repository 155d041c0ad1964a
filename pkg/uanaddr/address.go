// Package uanaddr defines the two address spaces bridged by the translator:
// 48-bit link-layer addresses and one-byte UAN addresses.
package uanaddr

import (
	"fmt"
	"net"
	"strconv"
)

const (
	LongSize  = 6
	ShortSize = 1
)

// Long is a 48-bit link-layer address.
type Long [LongSize]byte

// Short is a compact UAN address.
type Short uint8

var (
	BroadcastLong = Long{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	NullLong      = Long{}
)

const BroadcastShort Short = 0xff

// ParseLong parses any MAC-48 notation accepted by net.ParseMAC.
func ParseLong(s string) (Long, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return Long{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return LongFromBytes(hw)
}

func LongFromBytes(b []byte) (Long, error) {
	var l Long
	if len(b) != LongSize {
		return l, fmt.Errorf("%w: long address needs %d bytes, got %d", ErrInvalidAddress, LongSize, len(b))
	}
	copy(l[:], b)
	return l, nil
}

func LongFromHardwareAddr(hw net.HardwareAddr) (Long, error) {
	return LongFromBytes(hw)
}

func (l Long) IsBroadcast() bool { return l == BroadcastLong }

// IsGroup reports whether the I/G bit is set (multicast or broadcast).
func (l Long) IsGroup() bool { return l[0]&0x01 != 0 }

func (l Long) Bytes() []byte {
	b := make([]byte, LongSize)
	copy(b, l[:])
	return b
}

// CopyTo writes the address into buf, which must hold LongSize bytes.
func (l Long) CopyTo(buf []byte) int { return copy(buf[:LongSize], l[:]) }

func (l Long) HardwareAddr() net.HardwareAddr { return net.HardwareAddr(l.Bytes()) }

func (l Long) String() string { return l.HardwareAddr().String() }

func (l Long) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

func (l *Long) UnmarshalText(text []byte) error {
	v, err := ParseLong(string(text))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Uint64 returns the address as a big-endian integer in the low 48 bits.
func (l Long) Uint64() uint64 {
	var v uint64
	for _, b := range l {
		v = v<<8 | uint64(b)
	}
	return v
}

func LongFromUint64(v uint64) Long {
	var l Long
	for i := LongSize - 1; i >= 0; i-- {
		l[i] = byte(v)
		v >>= 8
	}
	return l
}

// ParseShort accepts a decimal value in 0..255.
func ParseShort(s string) (Short, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("%w: short address %q: %v", ErrInvalidAddress, s, err)
	}
	return Short(v), nil
}

func ShortFromBytes(b []byte) (Short, error) {
	if len(b) != ShortSize {
		return 0, fmt.Errorf("%w: short address needs %d byte, got %d", ErrInvalidAddress, ShortSize, len(b))
	}
	return Short(b[0]), nil
}

func (s Short) IsBroadcast() bool { return s == BroadcastShort }

func (s Short) CopyTo(buf []byte) int {
	buf[0] = byte(s)
	return ShortSize
}

func (s Short) String() string { return strconv.Itoa(int(s)) }
