// Package ether parses and builds the Ethernet II frames exchanged with the TAP side.
package ether

import (
	"errors"
	"fmt"

	"uantap/pkg/uanaddr"
)

var (
	ErrFrameTooShort = errors.New("mac frame too short")
	ErrNotTagged     = errors.New("frame is not VLAN tagged")
)

// Tagging is the number of bytes taken by VLAN tags after the source address.
type Tagging int

const (
	NotTagged    Tagging = 0
	Tagged       Tagging = 4 // 802.1Q
	DoubleTagged Tagging = 8 // 802.1ad
)

const (
	HeaderSize          = 14
	MinTaggedFrameSize  = 18
	MinDoubleTaggedSize = 22
	typeOffset          = 12
)

const (
	Dot1QTagType  uint16 = 0x8100
	Dot1AdTagType uint16 = 0x88a8
)

// Ethertype is the Ethernet II type field.
type Ethertype uint16

const (
	EthertypeIPv4 Ethertype = 0x0800
	EthertypeARP  Ethertype = 0x0806
	EthertypeIPv6 Ethertype = 0x86dd
)

func (e Ethertype) String() string {
	switch e {
	case EthertypeIPv4:
		return "ipv4"
	case EthertypeARP:
		return "arp"
	case EthertypeIPv6:
		return "ipv6"
	}
	return fmt.Sprintf("0x%04x", uint16(e))
}

// Frame is a decoded Ethernet II frame. VLAN tags, if any, stay at the
// front of Payload and Ethertype holds the outer tag protocol identifier, so
// Marshal reproduces the original bytes.
type Frame struct {
	Dst       uanaddr.Long
	Src       uanaddr.Long
	Ethertype Ethertype
	Payload   []byte
}

// Parse decodes frame. Payload aliases the input buffer.
func Parse(frame []byte) (Frame, error) {
	if len(frame) < HeaderSize {
		return Frame{}, ErrFrameTooShort
	}
	var f Frame
	copy(f.Dst[:], frame[0:6])
	copy(f.Src[:], frame[6:12])
	f.Ethertype = Ethertype(uint16(frame[12])<<8 | uint16(frame[13]))
	f.Payload = frame[HeaderSize:]
	return f, nil
}

// Marshal encodes the frame into a newly allocated buffer.
func (f Frame) Marshal() []byte {
	buf := make([]byte, HeaderSize+len(f.Payload))
	n, _ := f.MarshalInto(buf)
	return buf[:n]
}

// MarshalInto writes the frame into buf and returns the number of bytes written.
func (f Frame) MarshalInto(buf []byte) (int, error) {
	required := HeaderSize + len(f.Payload)
	if len(buf) < required {
		return 0, fmt.Errorf("ether: buffer of %d bytes too small for %d byte frame", len(buf), required)
	}
	f.Dst.CopyTo(buf[0:6])
	f.Src.CopyTo(buf[6:12])
	buf[12] = byte(f.Ethertype >> 8)
	buf[13] = byte(f.Ethertype)
	copy(buf[HeaderSize:], f.Payload)
	return required, nil
}

// DetectTagging reports which VLAN tagging the frame uses.
func DetectTagging(frame []byte) (Tagging, error) {
	if len(frame) < HeaderSize {
		return NotTagged, ErrFrameTooShort
	}
	typeField := uint16(frame[typeOffset])<<8 | uint16(frame[typeOffset+1])
	switch typeField {
	case Dot1QTagType:
		if len(frame) >= MinTaggedFrameSize && uint16(frame[16])<<8|uint16(frame[17]) == Dot1QTagType {
			return DoubleTagged, nil
		}
		return Tagged, nil
	case Dot1AdTagType:
		return DoubleTagged, nil
	}
	return NotTagged, nil
}

// InnerEthertype returns the ethertype after any VLAN tags.
func InnerEthertype(frame []byte) (Ethertype, error) {
	tagging, err := DetectTagging(frame)
	if err != nil {
		return 0, err
	}
	pos := typeOffset + int(tagging)
	if len(frame) < pos+2 {
		return 0, ErrFrameTooShort
	}
	return Ethertype(uint16(frame[pos])<<8 | uint16(frame[pos+1])), nil
}

// VLANID returns the outer VLAN ID of a tagged frame.
func VLANID(frame []byte) (uint16, error) {
	tagging, err := DetectTagging(frame)
	if err != nil {
		return 0, err
	}
	if tagging == NotTagged {
		return 0, ErrNotTagged
	}
	if len(frame) < MinTaggedFrameSize {
		return 0, ErrFrameTooShort
	}
	return uint16(frame[14]&0x0f)<<8 | uint16(frame[15]), nil
}
