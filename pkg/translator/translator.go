// Package translator keeps a bijective cache between link-layer (MAC-48)
// addresses and one-byte UAN addresses.
//
// Entries are created lazily, the first time an address is translated in
// either direction, and live until Remove is called for the link-layer side.
// Broadcast is a constant rule in both directions and never enters the tables.
//
// A Translator is not safe for concurrent use: callers that share one between
// goroutines must serialise every call.
package translator

import (
	"fmt"
	"sort"
	"strings"

	"uantap/pkg/uanaddr"
)

// ReversePolicy selects what Reverse does with a short address that was never
// produced by Translate.
type ReversePolicy int

const (
	// ReverseAllocate synthesizes a link-layer address for the unseen short
	// address, registers the pair and returns it.
	ReverseAllocate ReversePolicy = iota
	// ReverseStrict fails with ErrUnknownAddress.
	ReverseStrict
)

func (p ReversePolicy) String() string {
	switch p {
	case ReverseAllocate:
		return "allocate"
	case ReverseStrict:
		return "strict"
	default:
		return fmt.Sprintf("ReversePolicy(%d)", int(p))
	}
}

// ParseReversePolicy accepts the names printed by ReversePolicy.String. An
// empty string selects ReverseAllocate.
func ParseReversePolicy(s string) (ReversePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allocate":
		return ReverseAllocate, nil
	case "strict":
		return ReverseStrict, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// allocation retries skip values the allocator returns while they are still
// bound; 257 covers the whole short space plus broadcast.
const maxAllocAttempts = 257

// Entry is one (long, short) pair held by the translator.
type Entry struct {
	Long  uanaddr.Long  `json:"long"`
	Short uanaddr.Short `json:"short"`
}

type Translator struct {
	table  *biMap[uanaddr.Long, uanaddr.Short]
	shorts uanaddr.ShortAllocator
	longs  uanaddr.LongAllocator
	policy ReversePolicy
}

// New returns an empty translator. longs may be nil only with ReverseStrict.
func New(shorts uanaddr.ShortAllocator, longs uanaddr.LongAllocator, policy ReversePolicy) (*Translator, error) {
	if shorts == nil {
		return nil, fmt.Errorf("translator: short address allocator is required")
	}
	switch policy {
	case ReverseAllocate:
		if longs == nil {
			return nil, fmt.Errorf("translator: policy %s needs a long address allocator", policy)
		}
	case ReverseStrict:
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPolicy, int(policy))
	}
	return &Translator{
		table:  newBiMap[uanaddr.Long, uanaddr.Short](),
		shorts: shorts,
		longs:  longs,
		policy: policy,
	}, nil
}

// Policy reports how unseen short addresses are reversed.
func (t *Translator) Policy() ReversePolicy { return t.policy }

// Translate returns the short address bound to long, allocating one on first
// sight.
func (t *Translator) Translate(long uanaddr.Long) (uanaddr.Short, error) {
	if long.IsBroadcast() {
		return uanaddr.BroadcastShort, nil
	}
	if s, ok := t.table.byKey(long); ok {
		return s, nil
	}

	s, err := t.freshShort()
	if err != nil {
		return 0, fmt.Errorf("translate %s: %w", long, err)
	}
	t.table.put(long, s)
	return s, nil
}

// Reverse returns the link-layer address bound to short. Unseen short
// addresses are handled according to the translator's ReversePolicy.
func (t *Translator) Reverse(short uanaddr.Short) (uanaddr.Long, error) {
	if short.IsBroadcast() {
		return uanaddr.BroadcastLong, nil
	}
	if l, ok := t.table.byValue(short); ok {
		return l, nil
	}
	if t.policy == ReverseStrict {
		return uanaddr.Long{}, fmt.Errorf("reverse %s: %w", short, ErrUnknownAddress)
	}

	l, err := t.freshLong()
	if err != nil {
		return uanaddr.Long{}, fmt.Errorf("reverse %s: %w", short, err)
	}
	if r, ok := t.shorts.(uanaddr.ShortReserver); ok {
		r.ReserveShort(short)
	}
	t.table.put(l, short)
	return l, nil
}

// Remove forgets long and the short address bound to it. Removing an
// unmapped address is a no-op.
func (t *Translator) Remove(long uanaddr.Long) {
	s, ok := t.table.deleteKey(long)
	if !ok {
		return
	}
	if r, ok := t.shorts.(uanaddr.ShortReleaser); ok {
		r.ReleaseShort(s)
	}
}

// LookupShort reports the cached short address for long without allocating.
func (t *Translator) LookupShort(long uanaddr.Long) (uanaddr.Short, bool) {
	if long.IsBroadcast() {
		return uanaddr.BroadcastShort, true
	}
	return t.table.byKey(long)
}

// LookupLong reports the cached link-layer address for short without allocating.
func (t *Translator) LookupLong(short uanaddr.Short) (uanaddr.Long, bool) {
	if short.IsBroadcast() {
		return uanaddr.BroadcastLong, true
	}
	return t.table.byValue(short)
}

// Len is the number of bound address pairs.
func (t *Translator) Len() int { return t.table.len() }

// Entries returns a snapshot of the table ordered by short address.
func (t *Translator) Entries() []Entry {
	entries := make([]Entry, 0, t.table.len())
	t.table.each(func(l uanaddr.Long, s uanaddr.Short) {
		entries = append(entries, Entry{Long: l, Short: s})
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].Short < entries[j].Short })
	return entries
}

func (t *Translator) freshShort() (uanaddr.Short, error) {
	for i := 0; i < maxAllocAttempts; i++ {
		s, err := t.shorts.AllocateShort()
		if err != nil {
			return 0, err
		}
		if s.IsBroadcast() {
			continue
		}
		if _, bound := t.table.byValue(s); bound {
			continue
		}
		return s, nil
	}
	return 0, fmt.Errorf("%w: no unbound short address after %d attempts", uanaddr.ErrAllocatorExhausted, maxAllocAttempts)
}

func (t *Translator) freshLong() (uanaddr.Long, error) {
	for i := 0; i < maxAllocAttempts; i++ {
		l, err := t.longs.AllocateLong()
		if err != nil {
			return uanaddr.Long{}, err
		}
		if l.IsBroadcast() {
			continue
		}
		if _, bound := t.table.byKey(l); bound {
			continue
		}
		return l, nil
	}
	return uanaddr.Long{}, fmt.Errorf("%w: no unbound long address after %d attempts", uanaddr.ErrAllocatorExhausted, maxAllocAttempts)
}
