//go:build !linux

package tuntap

import "net"

func Create(config Config) (*Interface, error) {
	return nil, ErrUnsupportedPlatform
}

func (i *Interface) Configure(cfg LinkConfig) error {
	return ErrUnsupportedPlatform
}

func (i *Interface) HardwareAddr() (net.HardwareAddr, error) {
	return nil, ErrUnsupportedPlatform
}
