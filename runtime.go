package compute

import (
	"errors"
	"sync"

	"github.com/gogpu/compute/gpucore"
)

// Runtime is the public entry point of the compute-dispatch runtime. It
// wires the buffer pool, kernel registry, query pool, and streams over one
// injected device and compiler.
//
// The lifecycle (New/Close) is guarded by a mutex; everything else assumes
// a single control thread, see the package documentation.
type Runtime struct {
	mu          sync.Mutex
	initialized bool

	dev      gpucore.Device
	compiler gpucore.Compiler
	opts     options

	pool    *BufferPool
	kernels *KernelRegistry
	queries *QueryPool
}

// New creates a runtime over the given device and compiler.
//
// The device provides memory allocation, the single execution queue,
// pipeline construction, and fence primitives; the compiler translates
// kernel source text to device bytecode. Both are required.
func New(dev gpucore.Device, compiler gpucore.Compiler, opts ...Option) (*Runtime, error) {
	if dev == nil {
		return nil, errors.New("compute: nil device")
	}
	if compiler == nil {
		return nil, errors.New("compute: nil compiler")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := Logger()
	r := &Runtime{
		initialized: true,
		dev:         dev,
		compiler:    compiler,
		opts:        o,
		pool:        NewBufferPool(dev, log),
		kernels:     NewKernelRegistry(dev, compiler, o.maxThreads, log),
		queries:     NewQueryPool(dev, log),
	}
	log.Info("compute runtime initialized",
		"profiling", o.profiling, "bindingTable", o.tableCapacity)
	return r, nil
}

// Close marks the runtime as uninitialized. Pooled buffers, kernels, and
// query heaps are process-lifetime resources and are not torn down; Close
// only prevents further use of this handle.
func (r *Runtime) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return
	}
	r.initialized = false
	Logger().Info("compute runtime closed")
}

// checkInit returns ErrNotInitialized after Close.
func (r *Runtime) checkInit() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return ErrNotInitialized
	}
	return nil
}

// AllocBuffer returns a device buffer of exactly size bytes, reusing a
// pooled buffer when one of that size is free.
func (r *Runtime) AllocBuffer(size uint64) (*Buffer, error) {
	if err := r.checkInit(); err != nil {
		return nil, err
	}
	return r.pool.Allocate(size)
}

// FreeBuffer returns a buffer to the pool. Device memory is not released.
func (r *Runtime) FreeBuffer(b *Buffer) {
	r.pool.Release(b)
}

// CreateKernel builds a kernel from source text. See
// KernelRegistry.CreateKernel for the source format and failure modes.
func (r *Runtime) CreateKernel(source string) (*Kernel, error) {
	if err := r.checkInit(); err != nil {
		return nil, err
	}
	return r.kernels.CreateKernel(source)
}

// DestroyKernel releases a kernel. A nil kernel is a no-op.
func (r *Runtime) DestroyKernel(k *Kernel) {
	r.kernels.DestroyKernel(k)
}

// CreateStream returns a new stream in the Recording state.
func (r *Runtime) CreateStream() (*Stream, error) {
	if err := r.checkInit(); err != nil {
		return nil, err
	}
	return newStream(r.dev, r.queries, r.opts.tableCapacity, r.opts.profiling, Logger())
}

// DestroyStream releases a stream handle. Work already submitted runs to
// completion; a nil stream is a no-op.
func (r *Runtime) DestroyStream(s *Stream) {
	if s == nil {
		return
	}
	s.queries = nil
	s.rec = nil
}

// Launch records a kernel dispatch on the given stream. Buffers must be
// passed in argument order, inputs then outputs.
func (r *Runtime) Launch(k *Kernel, buffers []*Buffer, s *Stream) error {
	return s.Launch(k, buffers)
}

// SubmitStream enqueues the stream's recorded work. Idempotent.
func (r *Runtime) SubmitStream(s *Stream) error {
	return s.Submit()
}

// SynchronizeStream blocks until the stream's work completes and resets it
// to the Recording state.
func (r *Runtime) SynchronizeStream(s *Stream) error {
	return s.Synchronize()
}

// CopyHostToDevice synchronously copies host bytes into a device buffer.
func (r *Runtime) CopyHostToDevice(dst *Buffer, data []byte) error {
	if err := r.checkInit(); err != nil {
		return err
	}
	return copyHostToDevice(r.dev, dst, data)
}

// CopyDeviceToHost synchronously copies device bytes into host memory.
func (r *Runtime) CopyDeviceToHost(dst []byte, src *Buffer) error {
	if err := r.checkInit(); err != nil {
		return err
	}
	return copyDeviceToHost(r.dev, dst, src)
}

// CreateQuery returns a reusable timestamp query.
func (r *Runtime) CreateQuery() (*Query, error) {
	if err := r.checkInit(); err != nil {
		return nil, err
	}
	return r.queries.CreateQuery()
}

// DestroyQuery recycles a query. Heap storage is never released.
func (r *Runtime) DestroyQuery(q *Query) {
	r.queries.DestroyQuery(q)
}

// RecordQuery writes a timestamp at the query's slot into the stream.
func (r *Runtime) RecordQuery(q *Query, s *Stream) error {
	return r.queries.Record(q, s)
}

// ElapsedTime returns the device seconds between two resolved queries.
func (r *Runtime) ElapsedTime(start, end *Query) (float64, error) {
	return r.queries.ElapsedTime(start, end)
}
