package buffers

import "sync"

const (
	// DefaultBufferSize holds a UAN header plus a maximum Ethernet frame.
	DefaultBufferSize = 2048

	// MaxFrameSize is the largest Ethernet frame read from the TAP side
	// (1500 byte MTU, header and two VLAN tags).
	MaxFrameSize = 1500 + 14 + 8
)

// BufferPool hands out fixed-size byte slices.
type BufferPool struct {
	pool sync.Pool
	size int
}

func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

// Get returns a buffer of exactly the pool size. Contents are not zeroed.
func (p *BufferPool) Get() []byte {
	buffer := *(p.pool.Get().(*[]byte))
	if cap(buffer) < p.size {
		return make([]byte, p.size)
	}
	return buffer[:p.size]
}

func (p *BufferPool) Put(buffer []byte) {
	if buffer == nil || cap(buffer) < p.size {
		return
	}
	buffer = buffer[:p.size]
	p.pool.Put(&buffer)
}

var (
	// PacketBufferPool backs reads from the UAN medium.
	PacketBufferPool = NewBufferPool(DefaultBufferSize)

	// FrameBufferPool backs reads from the TAP device.
	FrameBufferPool = NewBufferPool(DefaultBufferSize)
)
