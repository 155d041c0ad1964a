// Package bridge connects an Ethernet (TAP) side to a UAN medium, rewriting
// 48-bit addresses to one-byte UAN addresses on the way out and back on the
// way in.
package bridge

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"uantap/pkg/ether"
	"uantap/pkg/log"
	"uantap/pkg/transform"
	"uantap/pkg/translator"
	"uantap/pkg/uan"
	"uantap/pkg/uanaddr"
)

const (
	DefaultExpiry          = 10 * time.Minute
	DefaultCleanupInterval = time.Minute
)

type Config struct {
	Name            string
	Expiry          time.Duration // neighbours silent for longer are forgotten
	CleanupInterval time.Duration
}

// Neighbour is a link-layer address the bridge has translated.
type Neighbour struct {
	Long      uanaddr.Long  `json:"long"`
	Short     uanaddr.Short `json:"short"`
	FirstSeen time.Time     `json:"firstSeen"`
	LastHeard time.Time     `json:"lastHeard"` // last time it was the source of a frame
	Local     bool          `json:"local"`     // bound with BindLocal, never expires
	FramesIn  uint64        `json:"framesIn"`
	FramesOut uint64        `json:"framesOut"`
}

type Bridge struct {
	name            string
	expiry          time.Duration
	cleanupInterval time.Duration
	processor       *transform.PayloadProcessor

	// mu serialises every call into the translator, which has no locking
	// of its own, and guards the neighbour table.
	mu         sync.Mutex
	tr         *translator.Translator
	neighbours map[uanaddr.Long]*Neighbour

	stats Stats
	now   func() time.Time
}

// New wraps tr. A nil processor means payloads travel untouched.
func New(cfg Config, tr *translator.Translator, processor *transform.PayloadProcessor) (*Bridge, error) {
	if tr == nil {
		return nil, errors.New("bridge: translator is required")
	}
	if processor == nil {
		var err error
		processor, err = transform.NewPayloadProcessor([]transform.Transform{transform.NewNoOpTransform()})
		if err != nil {
			return nil, err
		}
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = DefaultExpiry
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	return &Bridge{
		name:            cfg.Name,
		expiry:          cfg.Expiry,
		cleanupInterval: cfg.CleanupInterval,
		processor:       processor,
		tr:              tr,
		neighbours:      make(map[uanaddr.Long]*Neighbour),
		now:             time.Now,
	}, nil
}

func (b *Bridge) Name() string { return b.name }

// Outbound turns an Ethernet frame read from the TAP side into a UAN frame.
func (b *Bridge) Outbound(frame []byte) ([]byte, error) {
	f, err := ether.Parse(frame)
	if err != nil {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: outbound: %w", b.name, err)
	}
	if f.Src.IsBroadcast() {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: outbound: %w", b.name, ErrBroadcastSource)
	}

	b.mu.Lock()
	dst, src, err := b.translatePair(f.Dst, f.Src)
	b.mu.Unlock()
	if err != nil {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: outbound: %w", b.name, err)
	}
	if inner, err := ether.InnerEthertype(frame); err == nil && inner != f.Ethertype {
		log.Debug().Str("bridge", b.name).Stringer("outer", f.Ethertype).Stringer("inner", inner).Msg("bridge: tagged frame")
	}
	return b.encode(f, src, dst)
}

// translatePair must be called with b.mu held. Each address is recorded as
// soon as it is bound, so an entry created before a later failure can still
// expire.
func (b *Bridge) translatePair(dstLong, srcLong uanaddr.Long) (dst, src uanaddr.Short, err error) {
	if dst, err = b.tr.Translate(dstLong); err != nil {
		return 0, 0, err
	}
	b.seen(dstLong, dst, false, false)
	if src, err = b.tr.Translate(srcLong); err != nil {
		return 0, 0, err
	}
	b.seen(srcLong, src, true, false)
	return dst, src, nil
}

func (b *Bridge) encode(f ether.Frame, src, dst uanaddr.Short) ([]byte, error) {
	payload, err := b.processor.PrepareOutput(f.Payload)
	if err != nil {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: outbound: %w", b.name, err)
	}
	h := uan.Header{Dest: dst, Src: src, Type: uan.TypeData, Ethertype: uint16(f.Ethertype)}
	h.SetFlag(uan.FlagTransformed, !b.processor.IsNoOp())

	b.stats.FramesOut.Add(1)
	log.Debug().Str("bridge", b.name).Str("src", f.Src.String()).Str("dst", f.Dst.String()).
		Uint8("srcShort", uint8(src)).Uint8("dstShort", uint8(dst)).Int("len", len(payload)).Msg("bridge: frame out")
	return uan.Encode(h, payload), nil
}

// Inbound turns a UAN frame received from the medium into an Ethernet frame
// for the TAP side.
func (b *Bridge) Inbound(frame []byte) ([]byte, error) {
	h, payload, err := uan.Decode(frame)
	if err != nil {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: inbound: %w", b.name, err)
	}
	if h.Src.IsBroadcast() {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: inbound: %w", b.name, ErrBroadcastSource)
	}

	var out ether.Frame
	b.mu.Lock()
	out.Dst, err = b.tr.Reverse(h.Dest)
	if err == nil {
		b.seen(out.Dst, h.Dest, false, true)
		out.Src, err = b.tr.Reverse(h.Src)
	}
	if err == nil {
		b.seen(out.Src, h.Src, true, true)
	}
	b.mu.Unlock()
	if err != nil {
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: inbound: %w", b.name, err)
	}

	switch {
	case h.HasFlag(uan.FlagTransformed) && b.processor.IsNoOp():
		b.stats.FramesDropped.Add(1)
		return nil, fmt.Errorf("bridge %s: inbound from %s: %w", b.name, h.Src, ErrTransformMismatch)
	case h.HasFlag(uan.FlagTransformed):
		payload, err = b.processor.ParseInput(payload)
		if err != nil {
			b.stats.FramesDropped.Add(1)
			return nil, fmt.Errorf("bridge %s: inbound: %w", b.name, err)
		}
	}
	out.Ethertype = ether.Ethertype(h.Ethertype)
	out.Payload = payload

	b.stats.FramesIn.Add(1)
	log.Debug().Str("bridge", b.name).Uint8("srcShort", uint8(h.Src)).Uint8("dstShort", uint8(h.Dest)).
		Str("src", out.Src.String()).Str("dst", out.Dst.String()).Msg("bridge: frame in")
	return out.Marshal(), nil
}

// seen records traffic for a translated address. Must hold b.mu.
func (b *Bridge) seen(l uanaddr.Long, s uanaddr.Short, isSource, inbound bool) {
	if l.IsBroadcast() {
		return
	}
	now := b.now()
	n, ok := b.neighbours[l]
	if !ok {
		n = &Neighbour{Long: l, Short: s, FirstSeen: now, LastHeard: now}
		b.neighbours[l] = n
		b.stats.NeighboursLearned.Add(1)
		log.Info().Str("bridge", b.name).Str("long", l.String()).Uint8("short", uint8(s)).Msg("bridge: +neighbour")
	}
	n.Short = s
	if !isSource {
		return
	}
	n.LastHeard = now
	if inbound {
		n.FramesIn++
	} else {
		n.FramesOut++
	}
}

// Translate, Reverse and Remove expose the translator under the bridge lock.
func (b *Bridge) Translate(l uanaddr.Long) (uanaddr.Short, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.tr.Translate(l)
	if err == nil {
		b.seen(l, s, false, false)
	}
	return s, err
}

// BindLocal translates the address of a station behind this bridge and pins
// it, so it keeps its short address however long it stays silent.
func (b *Bridge) BindLocal(l uanaddr.Long) (uanaddr.Short, error) {
	if l.IsBroadcast() {
		return 0, fmt.Errorf("bridge %s: bind local: %w", b.name, ErrBroadcastSource)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.tr.Translate(l)
	if err != nil {
		return 0, fmt.Errorf("bridge %s: bind local: %w", b.name, err)
	}
	b.seen(l, s, false, false)
	b.neighbours[l].Local = true
	return s, nil
}

func (b *Bridge) Reverse(s uanaddr.Short) (uanaddr.Long, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, err := b.tr.Reverse(s)
	if err == nil {
		b.seen(l, s, false, true)
	}
	return l, err
}

// Remove forgets l in the translator and the neighbour table. It reports
// whether l was known.
func (b *Bridge) Remove(l uanaddr.Long) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(l)
}

func (b *Bridge) removeLocked(l uanaddr.Long) bool {
	_, known := b.tr.LookupShort(l)
	b.tr.Remove(l)
	delete(b.neighbours, l)
	return known && !l.IsBroadcast()
}

func (b *Bridge) Entries() []translator.Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tr.Entries()
}

// Neighbours returns a snapshot ordered by short address.
func (b *Bridge) Neighbours() []Neighbour {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Neighbour, 0, len(b.neighbours))
	for _, n := range b.neighbours {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Short < out[j].Short })
	return out
}
