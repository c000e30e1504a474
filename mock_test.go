package compute

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/gogpu/compute/gpucore"
)

// mockDevice implements gpucore.Device with in-memory buffers so engine
// behavior can be exercised without a GPU. Individual operations can be
// overridden through the *Func fields.
type mockDevice struct {
	nextID      uint64
	buffers     map[gpucore.BufferID][]byte
	hostVisible map[gpucore.BufferID]bool
	pipelines   map[gpucore.ComputePipelineID]gpucore.PipelineDesc
	heaps       map[gpucore.QueryHeapID]uint32
	recorders   []*mockRecorder

	freq       uint64
	fenceValue uint64
	lastWaited uint64

	createBufferCalls    atomic.Int32
	destroyBufferCalls   atomic.Int32
	createPipelineCalls  atomic.Int32
	destroyPipelineCalls atomic.Int32
	submitCalls          atomic.Int32
	waitCalls            atomic.Int32
	idleCalls            atomic.Int32

	createBufferFunc   func(size uint64, kind gpucore.MemoryKind, label string) (gpucore.BufferID, error)
	createPipelineFunc func(desc *gpucore.PipelineDesc) (gpucore.ComputePipelineID, error)
	submitFunc         func(rec gpucore.Recorder) (uint64, error)
}

func newMockDevice() *mockDevice {
	return &mockDevice{
		buffers:     make(map[gpucore.BufferID][]byte),
		hostVisible: make(map[gpucore.BufferID]bool),
		pipelines:   make(map[gpucore.ComputePipelineID]gpucore.PipelineDesc),
		heaps:       make(map[gpucore.QueryHeapID]uint32),
		freq:        1_000_000_000,
	}
}

func (d *mockDevice) newID() uint64 {
	d.nextID++
	return d.nextID
}

func (d *mockDevice) CreateBuffer(size uint64, kind gpucore.MemoryKind, label string) (gpucore.BufferID, error) {
	d.createBufferCalls.Add(1)
	if d.createBufferFunc != nil {
		return d.createBufferFunc(size, kind, label)
	}
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = make([]byte, size)
	d.hostVisible[id] = kind != gpucore.MemoryDeviceLocal
	return id, nil
}

func (d *mockDevice) DestroyBuffer(id gpucore.BufferID) {
	d.destroyBufferCalls.Add(1)
	delete(d.buffers, id)
	delete(d.hostVisible, id)
}

func (d *mockDevice) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	m, ok := d.buffers[id]
	if !ok || !d.hostVisible[id] {
		return nil, fmt.Errorf("mock: buffer %d is not host-visible", id)
	}
	return m, nil
}

func (d *mockDevice) UnmapBuffer(id gpucore.BufferID) {}

func (d *mockDevice) CreatePipeline(desc *gpucore.PipelineDesc) (gpucore.ComputePipelineID, error) {
	d.createPipelineCalls.Add(1)
	if d.createPipelineFunc != nil {
		return d.createPipelineFunc(desc)
	}
	id := gpucore.ComputePipelineID(d.newID())
	d.pipelines[id] = *desc
	return id, nil
}

func (d *mockDevice) DestroyPipeline(id gpucore.ComputePipelineID) {
	d.destroyPipelineCalls.Add(1)
	delete(d.pipelines, id)
}

func (d *mockDevice) CreateQueryHeap(capacity uint32) (gpucore.QueryHeapID, error) {
	id := gpucore.QueryHeapID(d.newID())
	d.heaps[id] = capacity
	return id, nil
}

func (d *mockDevice) TimestampFrequency() uint64 { return d.freq }

func (d *mockDevice) CreateRecorder(label string) (gpucore.Recorder, error) {
	r := &mockRecorder{dev: d, label: label}
	d.recorders = append(d.recorders, r)
	return r, nil
}

func (d *mockDevice) Submit(rec gpucore.Recorder) (uint64, error) {
	d.submitCalls.Add(1)
	if d.submitFunc != nil {
		return d.submitFunc(rec)
	}
	r, ok := rec.(*mockRecorder)
	if !ok || !r.closed {
		return 0, errors.New("mock: submit of open recorder")
	}
	d.fenceValue++
	return d.fenceValue, nil
}

func (d *mockDevice) WaitFence(value uint64) error {
	d.waitCalls.Add(1)
	d.lastWaited = value
	return nil
}

func (d *mockDevice) WaitIdle() error {
	d.idleCalls.Add(1)
	return nil
}

// lastRecorder returns the most recently created recorder.
func (d *mockDevice) lastRecorder() *mockRecorder {
	if len(d.recorders) == 0 {
		return nil
	}
	return d.recorders[len(d.recorders)-1]
}

// barrierOp is one recorded barrier.
type barrierOp struct {
	buf           gpucore.BufferID
	before, after gpucore.ResourceState
	hazard        bool
}

// dispatchOp is one recorded dispatch.
type dispatchOp struct {
	pipeline gpucore.ComputePipelineID
	args     []gpucore.BufferID
	blocks   [3]int
}

// timestampOp is one recorded timestamp write.
type timestampOp struct {
	heap gpucore.QueryHeapID
	slot uint32
}

// resolveOp is one recorded query heap resolve.
type resolveOp struct {
	heap    gpucore.QueryHeapID
	staging gpucore.BufferID
}

// mockRecorder records operations for assertions. Buffer copies are
// performed eagerly against the mock device's in-memory buffers so
// transfer round-trips behave like real copies.
type mockRecorder struct {
	dev   *mockDevice
	label string

	barriers   []barrierOp
	dispatches []dispatchOp
	timestamps []timestampOp
	resolves   []resolveOp
	copies     int

	closed   bool
	resets   int
	closeErr error
}

func (r *mockRecorder) TransitionBarrier(buf gpucore.BufferID, before, after gpucore.ResourceState) {
	r.barriers = append(r.barriers, barrierOp{buf: buf, before: before, after: after})
}

func (r *mockRecorder) HazardBarrier(buf gpucore.BufferID) {
	r.barriers = append(r.barriers, barrierOp{buf: buf, hazard: true})
}

func (r *mockRecorder) Dispatch(pipeline gpucore.ComputePipelineID, args []gpucore.BufferID, blocks [3]int) {
	r.dispatches = append(r.dispatches, dispatchOp{
		pipeline: pipeline,
		args:     append([]gpucore.BufferID(nil), args...),
		blocks:   blocks,
	})
}

func (r *mockRecorder) CopyBuffer(dst gpucore.BufferID, dstOffset uint64, src gpucore.BufferID, srcOffset, size uint64) {
	r.copies++
	copy(r.dev.buffers[dst][dstOffset:dstOffset+size], r.dev.buffers[src][srcOffset:srcOffset+size])
}

func (r *mockRecorder) WriteTimestamp(heap gpucore.QueryHeapID, slot uint32) {
	r.timestamps = append(r.timestamps, timestampOp{heap: heap, slot: slot})
}

func (r *mockRecorder) ResolveQueryHeap(heap gpucore.QueryHeapID, staging gpucore.BufferID) {
	r.resolves = append(r.resolves, resolveOp{heap: heap, staging: staging})
}

func (r *mockRecorder) Close() error {
	if r.closeErr != nil {
		return r.closeErr
	}
	r.closed = true
	return nil
}

func (r *mockRecorder) Reset() error {
	r.resets++
	r.closed = false
	r.barriers = nil
	r.dispatches = nil
	r.timestamps = nil
	r.resolves = nil
	return nil
}

// mockCompiler implements gpucore.Compiler.
type mockCompiler struct {
	compileFunc func(source string) ([]byte, error)
}

func (c *mockCompiler) Compile(source string) ([]byte, error) {
	if c.compileFunc != nil {
		return c.compileFunc(source)
	}
	// Minimal well-formed bytecode stand-in.
	return []byte{0x03, 0x02, 0x23, 0x07}, nil
}
