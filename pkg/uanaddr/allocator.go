package uanaddr

import (
	"fmt"
	"sync"
)

const (
	DefaultShortFirst Short = 1
	DefaultShortLast  Short = BroadcastShort - 1
	maxLong                 = uint64(1)<<48 - 2 // last value below broadcast
)

// DefaultLongBase is where synthetic link-layer addresses start.
var DefaultLongBase = Long{0, 0, 0, 0, 0, 0x01}

type ShortAllocator interface {
	AllocateShort() (Short, error)
}

type LongAllocator interface {
	AllocateLong() (Long, error)
}

// ShortReleaser is implemented by allocators that can take a freed value back.
type ShortReleaser interface {
	ReleaseShort(s Short)
}

// ShortReserver is implemented by allocators that can withhold a value which
// entered the tables without being allocated (e.g. first seen on the air).
type ShortReserver interface {
	ReserveShort(s Short) bool
}

func checkShortRange(first, last Short) error {
	if first > last {
		return fmt.Errorf("%w: first %d > last %d", ErrInvalidRange, first, last)
	}
	if last >= BroadcastShort {
		return fmt.Errorf("%w: range [%d,%d] overlaps broadcast %d", ErrInvalidRange, first, last, BroadcastShort)
	}
	return nil
}

// ShortCounter hands out short addresses in increasing order and never
// reissues one, even after it was freed.
type ShortCounter struct {
	next int
	last int
}

// NewShortCounter hands out first..last once each and never reuses a value.
func NewShortCounter(first, last Short) (*ShortCounter, error) {
	if err := checkShortRange(first, last); err != nil {
		return nil, err
	}
	return &ShortCounter{next: int(first), last: int(last)}, nil
}

func (c *ShortCounter) AllocateShort() (Short, error) {
	if c.next > c.last {
		return 0, fmt.Errorf("%w: short counter passed %d", ErrAllocatorExhausted, c.last)
	}
	s := Short(c.next)
	c.next++
	return s, nil
}

// Remaining returns how many values the counter can still issue.
func (c *ShortCounter) Remaining() int {
	if c.next > c.last {
		return 0
	}
	return c.last - c.next + 1
}

// ShortPool manages a free list of short addresses. Never-used values are
// issued first, in ascending order; released values queue behind them.
type ShortPool struct {
	mu        sync.Mutex
	first     Short
	last      Short
	available []Short
	inUse     map[Short]struct{}
}

// NewShortPool hands out first..last, reissuing released values oldest first.
func NewShortPool(first, last Short) (*ShortPool, error) {
	if err := checkShortRange(first, last); err != nil {
		return nil, err
	}
	available := make([]Short, 0, int(last)-int(first)+1)
	for v := int(first); v <= int(last); v++ {
		available = append(available, Short(v))
	}
	return &ShortPool{
		first:     first,
		last:      last,
		available: available,
		inUse:     make(map[Short]struct{}),
	}, nil
}

func (p *ShortPool) contains(s Short) bool { return s >= p.first && s <= p.last }

func (p *ShortPool) AllocateShort() (Short, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) < 1 {
		return 0, fmt.Errorf("%w: no free short address in [%d,%d]", ErrAllocatorExhausted, p.first, p.last)
	}
	s := p.available[0]
	p.available = p.available[1:]
	p.inUse[s] = struct{}{}
	return s, nil
}

func (p *ShortPool) ReleaseShort(s Short) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.inUse[s]; !ok {
		return
	}
	delete(p.inUse, s)
	p.available = append(p.available, s)
}

// ReserveShort marks s as used without allocating it. It returns false when
// s is outside the pool or already in use.
func (p *ShortPool) ReserveShort(s Short) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.contains(s) {
		return false
	}
	if _, ok := p.inUse[s]; ok {
		return false
	}
	for i, v := range p.available {
		if v == s {
			p.available = append(p.available[:i], p.available[i+1:]...)
			break
		}
	}
	p.inUse[s] = struct{}{}
	return true
}

func (p *ShortPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// LongCounter issues synthetic link-layer addresses counting up from a base.
type LongCounter struct {
	next uint64
}

func NewLongCounter(base Long) (*LongCounter, error) {
	if base.IsBroadcast() {
		return nil, fmt.Errorf("%w: long counter cannot start at broadcast", ErrInvalidRange)
	}
	return &LongCounter{next: base.Uint64()}, nil
}

func (c *LongCounter) AllocateLong() (Long, error) {
	if c.next > maxLong {
		return Long{}, fmt.Errorf("%w: long counter reached %s", ErrAllocatorExhausted, BroadcastLong)
	}
	l := LongFromUint64(c.next)
	c.next++
	return l, nil
}
