package bridge

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"uantap/pkg/ether"
	"uantap/pkg/medium"
	"uantap/pkg/transform"
	"uantap/pkg/translator"
	"uantap/pkg/uan"
	"uantap/pkg/uanaddr"
)

var (
	hostA = uanaddr.Long{0x02, 0xaa, 0, 0, 0, 0x01}
	hostB = uanaddr.Long{0x02, 0xbb, 0, 0, 0, 0x02}
)

func newTestBridge(t *testing.T, name string, policy translator.ReversePolicy, processor *transform.PayloadProcessor) *Bridge {
	t.Helper()
	shorts, err := uanaddr.NewShortPool(uanaddr.DefaultShortFirst, uanaddr.DefaultShortLast)
	if err != nil {
		t.Fatalf("NewShortPool failed: %v", err)
	}
	longs, err := uanaddr.NewLongCounter(uanaddr.Long{0x02, 0, 0, 0, 0, 0x01})
	if err != nil {
		t.Fatalf("NewLongCounter failed: %v", err)
	}
	tr, err := translator.New(shorts, longs, policy)
	if err != nil {
		t.Fatalf("translator.New failed: %v", err)
	}
	b, err := New(Config{Name: name}, tr, processor)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func ethFrame(dst, src uanaddr.Long, payload string) []byte {
	return ether.Frame{Dst: dst, Src: src, Ethertype: ether.EthertypeIPv4, Payload: []byte(payload)}.Marshal()
}

func TestOutboundBroadcast(t *testing.T) {
	b := newTestBridge(t, "a", translator.ReverseAllocate, nil)

	out, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, "hello"))
	if err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	h, payload, err := uan.Decode(out)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if h.Dest != uanaddr.BroadcastShort {
		t.Errorf("Expected broadcast destination, got %s", h.Dest)
	}
	if h.Src != 1 {
		t.Errorf("Expected source short 1, got %s", h.Src)
	}
	if h.HasFlag(uan.FlagTransformed) {
		t.Errorf("No-op pipeline should not set the transformed flag")
	}
	if string(payload) != "hello" {
		t.Errorf("Payload mismatch: %q", payload)
	}
	if len(b.Entries()) != 1 {
		t.Errorf("Broadcast must not enter the table, entries: %v", b.Entries())
	}
}

func TestOutboundRejectsBroadcastSource(t *testing.T) {
	b := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	_, err := b.Outbound(ethFrame(hostA, uanaddr.BroadcastLong, "x"))
	if !errors.Is(err, ErrBroadcastSource) {
		t.Errorf("Expected ErrBroadcastSource, got %v", err)
	}
	if _, err := b.Outbound([]byte{1, 2, 3}); !errors.Is(err, ether.ErrFrameTooShort) {
		t.Errorf("Expected ErrFrameTooShort, got %v", err)
	}
	if got := b.Stats().FramesDropped; got != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", got)
	}
}

func TestRoundTripAcrossBridges(t *testing.T) {
	a := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	b := newTestBridge(t, "b", translator.ReverseAllocate, nil)

	// a -> b
	air, err := a.Outbound(ethFrame(hostB, hostA, "ping"))
	if err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	recv, err := b.Inbound(air)
	if err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	f, err := ether.Parse(recv)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if string(f.Payload) != "ping" || f.Ethertype != ether.EthertypeIPv4 {
		t.Errorf("Frame content lost: %+v", f)
	}

	// b has never seen either station; it synthesized stand-ins for both.
	if f.Src == hostA || f.Dst == hostB {
		t.Errorf("Expected synthesized addresses, got src=%s dst=%s", f.Src, f.Dst)
	}
	if f.Src == f.Dst {
		t.Errorf("Stand-ins must differ")
	}

	// b replies to the stand-in; a must resolve it back to the real station.
	air, err = b.Outbound(ethFrame(f.Src, f.Dst, "pong"))
	if err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	recv, err = a.Inbound(air)
	if err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	reply, err := ether.Parse(recv)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if reply.Dst != hostA || reply.Src != hostB {
		t.Errorf("Reply should map back to %s <- %s, got %s <- %s", hostA, hostB, reply.Dst, reply.Src)
	}
	if string(reply.Payload) != "pong" {
		t.Errorf("Payload mismatch: %q", reply.Payload)
	}
}

func TestInboundStrictPolicy(t *testing.T) {
	b := newTestBridge(t, "b", translator.ReverseStrict, nil)
	frame := uan.Encode(uan.Header{Dest: uanaddr.BroadcastShort, Src: 7, Type: uan.TypeData}, []byte("x"))
	if _, err := b.Inbound(frame); !errors.Is(err, translator.ErrUnknownAddress) {
		t.Errorf("Expected ErrUnknownAddress, got %v", err)
	}
	if len(b.Entries()) != 0 {
		t.Errorf("Strict reverse must not touch the table")
	}
}

func TestInboundRejectsBroadcastSource(t *testing.T) {
	b := newTestBridge(t, "b", translator.ReverseAllocate, nil)
	frame := uan.Encode(uan.Header{Dest: 1, Src: uanaddr.BroadcastShort, Type: uan.TypeData}, nil)
	if _, err := b.Inbound(frame); !errors.Is(err, ErrBroadcastSource) {
		t.Errorf("Expected ErrBroadcastSource, got %v", err)
	}
}

func TestTransformedPayload(t *testing.T) {
	pa, err := transform.NewProcessorFor(true, "secret")
	if err != nil {
		t.Fatalf("NewProcessorFor failed: %v", err)
	}
	pb, err := transform.NewProcessorFor(true, "secret")
	if err != nil {
		t.Fatalf("NewProcessorFor failed: %v", err)
	}
	a := newTestBridge(t, "a", translator.ReverseAllocate, pa)
	b := newTestBridge(t, "b", translator.ReverseAllocate, pb)
	plain := newTestBridge(t, "plain", translator.ReverseAllocate, nil)

	payload := string(bytes.Repeat([]byte("acoustic "), 40))
	air, err := a.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, payload))
	if err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	h, body, _ := uan.Decode(air)
	if !h.HasFlag(uan.FlagTransformed) {
		t.Errorf("Expected transformed flag")
	}
	if len(body) >= len(payload) {
		t.Errorf("Expected compressed payload, %d >= %d", len(body), len(payload))
	}

	recv, err := b.Inbound(air)
	if err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	f, _ := ether.Parse(recv)
	if string(f.Payload) != payload {
		t.Errorf("Payload did not survive the pipeline")
	}

	if _, err := plain.Inbound(air); !errors.Is(err, ErrTransformMismatch) {
		t.Errorf("Expected ErrTransformMismatch, got %v", err)
	}
}

func TestCleanupStaleNeighbours(t *testing.T) {
	b := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	if _, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, "x")); err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	now = now.Add(5 * time.Minute)
	if _, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostB, "x")); err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	shortA, _ := b.Translate(hostA)

	now = now.Add(6 * time.Minute)
	if removed := b.CleanupStaleNeighbours(10 * time.Minute); removed != 1 {
		t.Fatalf("Expected 1 stale neighbour, removed %d", removed)
	}
	if ns := b.Neighbours(); len(ns) != 1 || ns[0].Long != hostB {
		t.Errorf("Expected only %s to remain, got %+v", hostB, ns)
	}
	for _, e := range b.Entries() {
		if e.Long == hostA {
			t.Errorf("Expired neighbour still translated: %+v", e)
		}
	}

	st := b.Stats()
	if st.NeighboursExpired != 1 || st.LastCleanupCount != 1 || !st.LastCleanupTime.Equal(now) {
		t.Errorf("Unexpected stats: %+v", st)
	}

	// the pool hands the freed short out only after every unused one
	s, err := b.Translate(uanaddr.Long{0x02, 0xcc, 0, 0, 0, 3})
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if s == shortA {
		t.Errorf("Freed short %s reused before the pool was drained", s)
	}
}

func TestRemove(t *testing.T) {
	b := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	if b.Remove(hostA) {
		t.Errorf("Remove of unknown address reported true")
	}
	if _, err := b.Translate(hostA); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if !b.Remove(hostA) {
		t.Errorf("Remove of known address reported false")
	}
	if len(b.Entries()) != 0 || len(b.Neighbours()) != 0 {
		t.Errorf("Remove left state behind")
	}
}

// fakeTap is an in-memory TAP device.
type fakeTap struct {
	rx     chan []byte // frames the host sends
	tx     chan []byte // frames delivered to the host
	closed chan struct{}
}

func newFakeTap() *fakeTap {
	return &fakeTap{rx: make(chan []byte, 8), tx: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeTap) Read(p []byte) (int, error) {
	select {
	case frame := <-f.rx:
		return copy(p, frame), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeTap) Write(p []byte) (int, error) {
	select {
	case f.tx <- append([]byte(nil), p...):
		return len(p), nil
	case <-f.closed:
		return 0, io.ErrClosedPipe
	}
}

func (f *fakeTap) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func TestRun(t *testing.T) {
	ch := medium.NewChannel(8)
	a := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	b := newTestBridge(t, "b", translator.ReverseAllocate, nil)
	tapA, tapB := newFakeTap(), newFakeTap()

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 2)
	go func() { errs <- a.Run(ctx, tapA, ch.Attach()) }()
	go func() { errs <- b.Run(ctx, tapB, medium.Throttle(ch.Attach(), 1_000_000)) }()

	tapA.rx <- ethFrame(uanaddr.BroadcastLong, hostA, "who-has")
	var f ether.Frame
	select {
	case got := <-tapB.tx:
		var err error
		if f, err = ether.Parse(got); err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for frame on b")
	}
	if f.Dst != uanaddr.BroadcastLong || string(f.Payload) != "who-has" {
		t.Errorf("Unexpected frame on b: %+v", f)
	}

	tapB.rx <- ethFrame(f.Src, hostB, "is-at")
	select {
	case got := <-tapA.tx:
		reply, err := ether.Parse(got)
		if err != nil {
			t.Fatalf("Parse failed: %v", err)
		}
		if reply.Dst != hostA {
			t.Errorf("Reply addressed to %s, expected %s", reply.Dst, hostA)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for reply on a")
	}

	cancel()
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			if err != nil {
				t.Errorf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Run did not stop")
		}
	}
	if a.Stats().FramesOut != 1 || a.Stats().FramesIn != 1 {
		t.Errorf("Unexpected stats on a: %+v", a.Stats())
	}
}

func newBridgeWith(t *testing.T, shorts uanaddr.ShortAllocator, longs uanaddr.LongAllocator, policy translator.ReversePolicy) *Bridge {
	t.Helper()
	tr, err := translator.New(shorts, longs, policy)
	if err != nil {
		t.Fatalf("translator.New failed: %v", err)
	}
	b, err := New(Config{Name: "t"}, tr, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return b
}

func TestOutboundPartialFailureCanExpire(t *testing.T) {
	pool, err := uanaddr.NewShortPool(1, 1)
	if err != nil {
		t.Fatalf("NewShortPool failed: %v", err)
	}
	b := newBridgeWith(t, pool, nil, translator.ReverseStrict)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	// the destination takes the only slot, the source cannot be bound
	_, err = b.Outbound(ethFrame(hostB, hostA, "x"))
	if !errors.Is(err, uanaddr.ErrAllocatorExhausted) {
		t.Fatalf("Expected ErrAllocatorExhausted, got %v", err)
	}
	if ns := b.Neighbours(); len(ns) != 1 || ns[0].Long != hostB {
		t.Fatalf("Bound destination must be tracked, neighbours: %+v", ns)
	}

	now = now.Add(DefaultExpiry + time.Second)
	if removed := b.CleanupStaleNeighbours(DefaultExpiry); removed != 1 {
		t.Fatalf("Expected the orphaned destination to expire, removed %d", removed)
	}
	if len(b.Entries()) != 0 {
		t.Errorf("Translator still holds %v", b.Entries())
	}

	out, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, "x"))
	if err != nil {
		t.Fatalf("Outbound after expiry failed: %v", err)
	}
	if h, _, _ := uan.Decode(out); h.Src != 1 {
		t.Errorf("Expected reclaimed short 1, got %s", h.Src)
	}
}

func TestInboundPartialFailureCanExpire(t *testing.T) {
	shorts, _ := uanaddr.NewShortPool(1, 10)
	// one synthetic address left before the counter runs out
	longs, err := uanaddr.NewLongCounter(uanaddr.LongFromUint64(1<<48 - 2))
	if err != nil {
		t.Fatalf("NewLongCounter failed: %v", err)
	}
	b := newBridgeWith(t, shorts, longs, translator.ReverseAllocate)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	frame := uan.Encode(uan.Header{Dest: 5, Src: 6, Type: uan.TypeData}, []byte("x"))
	if _, err := b.Inbound(frame); !errors.Is(err, uanaddr.ErrAllocatorExhausted) {
		t.Fatalf("Expected ErrAllocatorExhausted, got %v", err)
	}
	ns := b.Neighbours()
	if len(ns) != 1 || ns[0].Short != 5 {
		t.Fatalf("Reversed destination must be tracked, neighbours: %+v", ns)
	}
	if got := b.Stats().FramesDropped; got != 1 {
		t.Errorf("Expected 1 dropped frame, got %d", got)
	}

	now = now.Add(DefaultExpiry + time.Second)
	if removed := b.CleanupStaleNeighbours(DefaultExpiry); removed != 1 {
		t.Errorf("Expected 1 removal, got %d", removed)
	}
	if len(b.Entries()) != 0 {
		t.Errorf("Translator still holds %v", b.Entries())
	}
}

func TestBridgeExhaustion(t *testing.T) {
	counter, _ := uanaddr.NewShortCounter(1, 2)
	b := newBridgeWith(t, counter, nil, translator.ReverseStrict)

	for i, host := range []uanaddr.Long{hostA, hostB} {
		if _, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, host, "x")); err != nil {
			t.Fatalf("Outbound %d failed: %v", i, err)
		}
	}
	third := uanaddr.Long{0x02, 0xcc, 0, 0, 0, 3}
	if _, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, third, "x")); !errors.Is(err, uanaddr.ErrAllocatorExhausted) {
		t.Errorf("Expected ErrAllocatorExhausted from Outbound, got %v", err)
	}
	if _, err := b.Translate(third); !errors.Is(err, uanaddr.ErrAllocatorExhausted) {
		t.Errorf("Expected ErrAllocatorExhausted from Translate, got %v", err)
	}
	// broadcast needs no slot
	if _, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, "x")); err != nil {
		t.Errorf("Known source should still work: %v", err)
	}
	st := b.Stats()
	if st.FramesOut != 3 || st.FramesDropped != 1 || st.Translations != 2 {
		t.Errorf("Unexpected stats %+v", st)
	}
}

func TestLocalStationNeverExpires(t *testing.T) {
	b := newTestBridge(t, "a", translator.ReverseAllocate, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	short, err := b.BindLocal(hostA)
	if err != nil {
		t.Fatalf("BindLocal failed: %v", err)
	}
	if _, err := b.Translate(hostB); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}

	now = now.Add(DefaultExpiry + time.Minute)
	if removed := b.CleanupStaleNeighbours(DefaultExpiry); removed != 1 {
		t.Fatalf("Expected only the remote neighbour to expire, removed %d", removed)
	}
	if ns := b.Neighbours(); len(ns) != 1 || ns[0].Long != hostA || !ns[0].Local {
		t.Fatalf("Local station should remain pinned, got %+v", ns)
	}

	out, err := b.Outbound(ethFrame(uanaddr.BroadcastLong, hostA, "x"))
	if err != nil {
		t.Fatalf("Outbound failed: %v", err)
	}
	if h, _, _ := uan.Decode(out); h.Src != short {
		t.Errorf("Local short changed from %s to %s", short, h.Src)
	}

	// a peer addressing the local short still reaches the local station
	in, err := b.Inbound(uan.Encode(uan.Header{Dest: short, Src: 40, Type: uan.TypeData}, []byte("y")))
	if err != nil {
		t.Fatalf("Inbound failed: %v", err)
	}
	if f, _ := ether.Parse(in); f.Dst != hostA {
		t.Errorf("Expected delivery to %s, got %s", hostA, f.Dst)
	}

	if _, err := b.BindLocal(uanaddr.BroadcastLong); !errors.Is(err, ErrBroadcastSource) {
		t.Errorf("Expected ErrBroadcastSource binding broadcast, got %v", err)
	}
}
