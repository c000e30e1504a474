package compute

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/compute/gpucore"
)

// Buffer is an opaque handle to a pooled device buffer. Buffers are owned
// by the runtime's BufferPool for their entire lifetime; FreeBuffer returns
// them to a free list rather than releasing device memory.
type Buffer struct {
	id    gpucore.BufferID
	size  uint64
	state gpucore.ResourceState
}

// Size returns the buffer's byte size.
func (b *Buffer) Size() uint64 { return b.size }

// State returns the buffer's current resource state. The recorded state
// always equals the state the buffer was last transitioned to on the last
// stream in which it was used.
func (b *Buffer) State() gpucore.ResourceState { return b.state }

// BufferPool allocates and recycles device buffers keyed by exact byte
// size. Allocation during kernel launch is latency-critical; exact-size
// bucketing trades memory fragmentation for allocation-free steady-state
// operation.
//
// BufferPool is not safe for concurrent use.
type BufferPool struct {
	dev  gpucore.Device
	free map[uint64][]*Buffer
	log  *slog.Logger

	// Counters for diagnostics.
	created int
	reused  int
}

// NewBufferPool creates an empty pool over the given device.
func NewBufferPool(dev gpucore.Device, logger *slog.Logger) *BufferPool {
	if logger == nil {
		logger = newNopLogger()
	}
	return &BufferPool{
		dev:  dev,
		free: make(map[uint64][]*Buffer),
		log:  logger,
	}
}

// Allocate returns a device buffer of exactly size bytes. A buffer from the
// matching free-list bucket is reused when available; otherwise a new
// device-resident buffer is created in the Common state. Device allocation
// failure is a hard failure: there is no fallback allocator.
func (p *BufferPool) Allocate(size uint64) (*Buffer, error) {
	if bucket := p.free[size]; len(bucket) > 0 {
		b := bucket[len(bucket)-1]
		p.free[size] = bucket[:len(bucket)-1]
		p.reused++
		p.log.Debug("buffer pool hit", "size", size)
		return b, nil
	}

	id, err := p.dev.CreateBuffer(size, gpucore.MemoryDeviceLocal, "pool-buffer")
	if err != nil {
		return nil, fmt.Errorf("compute: device buffer allocation (%d bytes) failed: %w", size, err)
	}
	p.created++
	p.log.Debug("buffer pool miss", "size", size, "created", p.created)

	return &Buffer{
		id:    id,
		size:  size,
		state: gpucore.StateCommon,
	}, nil
}

// Release returns a buffer to its size bucket's free list. The underlying
// device memory is never released. A nil buffer is a no-op.
func (p *BufferPool) Release(b *Buffer) {
	if b == nil {
		return
	}
	p.free[b.size] = append(p.free[b.size], b)
}
