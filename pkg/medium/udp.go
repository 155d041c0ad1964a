package medium

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"uantap/pkg/buffers"
	"uantap/pkg/log"
)

const udpPollInterval = 250 * time.Millisecond

// UDPLink emulates the shared medium between processes: each frame is sent
// as one datagram to every configured peer.
type UDPLink struct {
	conn  *net.UDPConn
	peers []*net.UDPAddr

	closeOnce sync.Once
	closed    chan struct{}
}

func NewUDPLink(listenAddr string, peers []string) (*UDPLink, error) {
	laddr, err := net.ResolveUDPAddr("udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("medium: resolve listen address %s: %w", listenAddr, err)
	}
	resolved := make([]*net.UDPAddr, 0, len(peers))
	for _, p := range peers {
		addr, err := net.ResolveUDPAddr("udp", p)
		if err != nil {
			return nil, fmt.Errorf("medium: resolve peer %s: %w", p, err)
		}
		resolved = append(resolved, addr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("medium: listen on %s: %w", listenAddr, err)
	}
	return &UDPLink{conn: conn, peers: resolved, closed: make(chan struct{})}, nil
}

func (u *UDPLink) LocalAddr() *net.UDPAddr { return u.conn.LocalAddr().(*net.UDPAddr) }

func (u *UDPLink) WriteFrame(frame []byte) error {
	if len(frame) > buffers.DefaultBufferSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	var errs []error
	for _, p := range u.peers {
		if _, err := u.conn.WriteToUDP(frame, p); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ErrClosed
			}
			errs = append(errs, fmt.Errorf("send to %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}

func (u *UDPLink) ReadFrame(ctx context.Context) ([]byte, error) {
	buf := buffers.PacketBufferPool.Get()
	defer buffers.PacketBufferPool.Put(buf)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(udpPollInterval)); err != nil {
			return nil, u.mapErr(err)
		}
		n, from, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			return nil, u.mapErr(err)
		}
		log.Debug().Str("from", from.String()).Int("len", n).Msg("medium: datagram received")
		frame := make([]byte, n)
		copy(frame, buf[:n])
		return frame, nil
	}
}

func (u *UDPLink) mapErr(err error) error {
	select {
	case <-u.closed:
		return ErrClosed
	default:
	}
	if errors.Is(err, net.ErrClosed) {
		return ErrClosed
	}
	return err
}

func (u *UDPLink) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
	})
	return err
}
