//go:build linux

package tuntap

import (
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/vishvananda/netlink"

	"uantap/pkg/log"
)

// Configure applies cfg to the interface with netlink and brings it up.
func (i *Interface) Configure(cfg LinkConfig) error {
	link, err := netlink.LinkByName(i.name)
	if err != nil {
		return fmt.Errorf("tuntap: find interface %q: %w", i.name, err)
	}

	if cfg.MAC != "" {
		hwAddr, err := net.ParseMAC(cfg.MAC)
		if err != nil {
			return fmt.Errorf("tuntap: parse MAC %q: %w", cfg.MAC, err)
		}
		if err := netlink.LinkSetHardwareAddr(link, hwAddr); err != nil {
			return fmt.Errorf("tuntap: set MAC %s on %s: %w", hwAddr, i.name, err)
		}
		log.Info().Str("tap", i.name).Str("mac", hwAddr.String()).Msg("tuntap: MAC set")
	}

	if cfg.CIDR != "" {
		addr, err := netlink.ParseAddr(cfg.CIDR)
		if err != nil {
			return fmt.Errorf("tuntap: parse address %q: %w", cfg.CIDR, err)
		}
		if err := netlink.AddrAdd(link, addr); err != nil {
			if !errors.Is(err, syscall.EEXIST) {
				return fmt.Errorf("tuntap: add address %s to %s: %w", cfg.CIDR, i.name, err)
			}
			log.Debug().Str("tap", i.name).Str("addr", cfg.CIDR).Msg("tuntap: address already present")
		} else {
			log.Info().Str("tap", i.name).Str("addr", cfg.CIDR).Msg("tuntap: address added")
		}
	}

	mtu := cfg.MTU
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("tuntap: set MTU %d on %s: %w", mtu, i.name, err)
	}

	// Frames from the far side carry stand-in destination addresses, so the
	// device has to accept unicast it does not own.
	if err := netlink.SetPromiscOn(link); err != nil {
		return fmt.Errorf("tuntap: promiscuous mode on %s: %w", i.name, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("tuntap: bring up %s: %w", i.name, err)
	}
	log.Info().Str("tap", i.name).Int("mtu", mtu).Msg("tuntap: interface up")
	return nil
}

// HardwareAddr returns the interface's current MAC address.
func (i *Interface) HardwareAddr() (net.HardwareAddr, error) {
	link, err := netlink.LinkByName(i.name)
	if err != nil {
		return nil, fmt.Errorf("tuntap: find interface %q: %w", i.name, err)
	}
	return link.Attrs().HardwareAddr, nil
}
