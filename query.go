package compute

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/gogpu/compute/gpucore"
)

// QueryHeapCapacity is the number of timestamp slots in one heap.
// Profiling data volume is small, so heaps are sized once and never freed.
const QueryHeapCapacity = 1024

// QueryHeap is a fixed-capacity block of timestamp slots paired with a
// host-readable staging buffer the slots are resolved into. Heaps are
// owned by the QueryPool and live for the process lifetime.
type QueryHeap struct {
	id      gpucore.QueryHeapID
	staging gpucore.BufferID
	used    uint32
}

// Query is a handle to one timestamp slot. Destroying a Query only returns
// the object to the pool's free list; the heap slot itself remains
// pool-owned.
type Query struct {
	heap *QueryHeap
	slot uint32
}

// QueryPool manages reusable GPU timestamp markers.
//
// Slots are never reclaimed within a heap; only whole Query objects are
// recycled through the free list. Heap count therefore only grows, which is
// acceptable because a query occupies negligible memory.
//
// QueryPool is not safe for concurrent use.
type QueryPool struct {
	dev   gpucore.Device
	heaps []*QueryHeap
	free  []*Query
	log   *slog.Logger
}

// NewQueryPool creates an empty pool over the given device.
func NewQueryPool(dev gpucore.Device, logger *slog.Logger) *QueryPool {
	if logger == nil {
		logger = newNopLogger()
	}
	return &QueryPool{dev: dev, log: logger}
}

// HeapCount returns the number of heaps allocated so far.
func (p *QueryPool) HeapCount() int { return len(p.heaps) }

// CreateQuery returns a timestamp query handle. A recycled Query is
// preferred; otherwise the next unused slot of the current heap is taken,
// allocating a new heap when none exists or the last one is full. Heap
// allocation failure is a hard failure.
func (p *QueryPool) CreateQuery() (*Query, error) {
	if n := len(p.free); n > 0 {
		q := p.free[n-1]
		p.free = p.free[:n-1]
		return q, nil
	}

	if len(p.heaps) == 0 || p.heaps[len(p.heaps)-1].used == QueryHeapCapacity {
		id, err := p.dev.CreateQueryHeap(QueryHeapCapacity)
		if err != nil {
			return nil, fmt.Errorf("compute: query heap allocation failed: %w", err)
		}
		staging, err := p.dev.CreateBuffer(QueryHeapCapacity*8, gpucore.MemoryReadback, "query-staging")
		if err != nil {
			return nil, fmt.Errorf("compute: query staging allocation failed: %w", err)
		}
		p.heaps = append(p.heaps, &QueryHeap{id: id, staging: staging})
		p.log.Debug("query heap allocated", "heaps", len(p.heaps))
	}

	h := p.heaps[len(p.heaps)-1]
	q := &Query{heap: h, slot: h.used}
	h.used++
	return q, nil
}

// DestroyQuery returns a query to the free list. Heap storage is never
// released. A nil query is a no-op.
func (p *QueryPool) DestroyQuery(q *Query) {
	if q == nil {
		return
	}
	p.free = append(p.free, q)
}

// Record writes a timestamp at the query's slot into the given stream and
// marks the owning heap pending-resolve on that stream.
func (p *QueryPool) Record(q *Query, s *Stream) error {
	if err := s.checkRecording(); err != nil {
		return err
	}
	s.rec.WriteTimestamp(q.heap.id, q.slot)
	s.markPending(q.heap)
	return nil
}

// ElapsedTime returns the device time in seconds between two resolved
// queries. Both owning heaps must already have been resolved, i.e. their
// streams submitted and completed; calling this earlier is undefined.
//
// When both queries share a heap a single staging mapping serves both
// reads.
func (p *QueryPool) ElapsedTime(start, end *Query) (float64, error) {
	var t0, t1 uint64

	if start.heap == end.heap {
		m, err := p.dev.MapBuffer(start.heap.staging)
		if err != nil {
			return 0, fmt.Errorf("compute: map query staging: %w", err)
		}
		t0 = binary.LittleEndian.Uint64(m[start.slot*8:])
		t1 = binary.LittleEndian.Uint64(m[end.slot*8:])
		p.dev.UnmapBuffer(start.heap.staging)
	} else {
		m, err := p.dev.MapBuffer(start.heap.staging)
		if err != nil {
			return 0, fmt.Errorf("compute: map query staging: %w", err)
		}
		t0 = binary.LittleEndian.Uint64(m[start.slot*8:])
		p.dev.UnmapBuffer(start.heap.staging)

		m, err = p.dev.MapBuffer(end.heap.staging)
		if err != nil {
			return 0, fmt.Errorf("compute: map query staging: %w", err)
		}
		t1 = binary.LittleEndian.Uint64(m[end.slot*8:])
		p.dev.UnmapBuffer(end.heap.staging)
	}

	freq := p.dev.TimestampFrequency()
	if freq == 0 {
		return 0, fmt.Errorf("compute: device reports zero timestamp frequency")
	}
	return float64(t1-t0) / float64(freq), nil
}
