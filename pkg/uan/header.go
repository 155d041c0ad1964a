// Package uan encodes the compact frames carried over the UAN channel.
package uan

import (
	"encoding/binary"
	"errors"
	"fmt"

	"uantap/pkg/uanaddr"
)

const HeaderSize = 6

var (
	ErrFrameTooShort = errors.New("uan frame too short")
	ErrUnknownType   = errors.New("unknown uan frame type")
)

type FrameType uint8

const (
	TypeData FrameType = iota
)

func (t FrameType) String() string {
	switch t {
	case TypeData:
		return "data"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

type Flag uint8

const (
	// FlagTransformed marks a payload that went through the sender's
	// transform pipeline (compression, encryption).
	FlagTransformed Flag = 1 << iota
)

// Header is the compact UAN header: destination, source and type, followed
// by the flags and the ethertype of the bridged Ethernet frame.
//
//	0      1      2      3      4      5
//	+------+------+------+------+------+------+
//	| dest | src  | type | flags|  ethertype  |
//	+------+------+------+------+------+------+
type Header struct {
	Dest      uanaddr.Short
	Src       uanaddr.Short
	Type      FrameType
	Flags     Flag
	Ethertype uint16
}

func (h *Header) SetFlag(flag Flag, value bool) {
	if value {
		h.Flags |= flag
	} else {
		h.Flags &= ^flag
	}
}

func (h *Header) HasFlag(flag Flag) bool { return h.Flags&flag != 0 }

func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	if err := h.MarshalBinaryTo(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (h *Header) MarshalBinaryTo(buf []byte) error {
	if len(buf) < HeaderSize {
		return fmt.Errorf("uan: buffer of %d bytes too small for header", len(buf))
	}
	h.Dest.CopyTo(buf[0:1])
	h.Src.CopyTo(buf[1:2])
	buf[2] = byte(h.Type)
	buf[3] = byte(h.Flags)
	binary.BigEndian.PutUint16(buf[4:6], h.Ethertype)
	return nil
}

func (h *Header) UnmarshalBinary(data []byte) error {
	if len(data) < HeaderSize {
		return ErrFrameTooShort
	}
	h.Dest = uanaddr.Short(data[0])
	h.Src = uanaddr.Short(data[1])
	h.Type = FrameType(data[2])
	h.Flags = Flag(data[3])
	h.Ethertype = binary.BigEndian.Uint16(data[4:6])
	return nil
}

// Encode returns header followed by payload.
func Encode(h Header, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	_ = h.MarshalBinaryTo(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode splits a frame into its header and payload. The payload aliases frame.
func Decode(frame []byte) (Header, []byte, error) {
	var h Header
	if err := h.UnmarshalBinary(frame); err != nil {
		return h, nil, err
	}
	if h.Type != TypeData {
		return h, nil, fmt.Errorf("%w: %s", ErrUnknownType, h.Type)
	}
	return h, frame[HeaderSize:], nil
}
