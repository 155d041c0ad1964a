// Package tuntap opens the TAP device that carries Ethernet frames between
// the host stack and the bridge.
package tuntap

import (
	"errors"
	"os"
)

var ErrUnsupportedPlatform = errors.New("tuntap: TAP devices are only supported on linux")

const DefaultMTU = 1500

type Config struct {
	Name    string // name hint, the kernel may pick another
	Persist bool   // keep the device after the descriptor is closed
	Owner   int    // uid, -1 leaves it unchanged
	Group   int    // gid, -1 leaves it unchanged
}

func DefaultConfig(name string) Config {
	return Config{Name: name, Owner: -1, Group: -1}
}

// Interface is an open TAP device.
type Interface struct {
	file *os.File
	name string
}

func (i *Interface) Name() string { return i.name }

func (i *Interface) Read(b []byte) (int, error) {
	if i.file == nil {
		return 0, os.ErrClosed
	}
	return i.file.Read(b)
}

func (i *Interface) Write(b []byte) (int, error) {
	if i.file == nil {
		return 0, os.ErrClosed
	}
	return i.file.Write(b)
}

func (i *Interface) Close() error {
	if i.file == nil {
		return nil
	}
	return i.file.Close()
}

// LinkConfig describes how the interface is set up once created. Empty
// fields are left as the kernel made them.
type LinkConfig struct {
	MAC  string
	CIDR string
	MTU  int
}
