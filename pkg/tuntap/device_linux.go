//go:build linux

package tuntap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"uantap/pkg/log"
)

// Create opens /dev/net/tun as a TAP device without packet information.
func Create(config Config) (*Interface, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("tuntap: open /dev/net/tun: %w", err)
	}

	ifr, err := unix.NewIfreq(config.Name)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: ifreq %q: %w", config.Name, err)
	}
	ifr.SetUint16(unix.IFF_TAP | unix.IFF_NO_PI)
	if err := unix.IoctlIfreq(fd, unix.TUNSETIFF, ifr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: TUNSETIFF: %w", err)
	}

	if config.Persist {
		if err := unix.IoctlSetInt(fd, unix.TUNSETPERSIST, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tuntap: TUNSETPERSIST: %w", err)
		}
	}
	if config.Owner >= 0 {
		if err := unix.IoctlSetInt(fd, unix.TUNSETOWNER, config.Owner); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tuntap: TUNSETOWNER: %w", err)
		}
	}
	if config.Group >= 0 {
		if err := unix.IoctlSetInt(fd, unix.TUNSETGROUP, config.Group); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tuntap: TUNSETGROUP: %w", err)
		}
	}

	// non-blocking so the runtime poller can interrupt reads on Close
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tuntap: set nonblock: %w", err)
	}

	name := ifr.Name()
	log.Info().Str("tap", name).Msg("tuntap: device created")
	return &Interface{
		file: os.NewFile(uintptr(fd), "/dev/net/tun/"+name),
		name: name,
	}, nil
}
