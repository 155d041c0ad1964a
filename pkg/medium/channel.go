package medium

import (
	"context"
	"sync"
	"sync/atomic"

	"uantap/pkg/log"
)

const DefaultPortBuffer = 64

// Channel is an in-memory broadcast medium: a frame written on one port is
// copied to every other attached port. A port whose buffer is full loses the
// frame, as a busy receiver would.
type Channel struct {
	mu      sync.RWMutex
	ports   map[int]*Port
	nextID  int
	buffer  int
	dropped atomic.Uint64
}

func NewChannel(buffer int) *Channel {
	if buffer <= 0 {
		buffer = DefaultPortBuffer
	}
	return &Channel{
		ports:  make(map[int]*Port),
		buffer: buffer,
	}
}

// Attach connects a new port to the channel.
func (c *Channel) Attach() *Port {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := &Port{
		id:      c.nextID,
		channel: c,
		rx:      make(chan []byte, c.buffer),
		done:    make(chan struct{}),
	}
	c.ports[p.id] = p
	c.nextID++
	return p
}

func (c *Channel) detach(p *Port) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ports, p.id)
}

// Dropped counts deliveries lost to full receive buffers.
func (c *Channel) Dropped() uint64 { return c.dropped.Load() }

func (c *Channel) broadcast(from *Port, frame []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, p := range c.ports {
		if id == from.id {
			continue
		}
		cp := make([]byte, len(frame))
		copy(cp, frame)
		select {
		case p.rx <- cp:
		case <-p.done:
		default:
			c.dropped.Add(1)
			log.Debug().Int("port", id).Msg("medium: receive buffer full, frame lost")
		}
	}
}

// Port is a Link on a Channel.
type Port struct {
	id        int
	channel   *Channel
	rx        chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (p *Port) ID() int { return p.id }

func (p *Port) WriteFrame(frame []byte) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	p.channel.broadcast(p, frame)
	return nil
}

func (p *Port) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case f := <-p.rx:
		return f, nil
	case <-p.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.channel.detach(p)
		close(p.done)
	})
	return nil
}
