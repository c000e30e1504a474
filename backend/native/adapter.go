// Package native implements the compute device contract over gogpu/wgpu's
// hardware abstraction layer.
package native

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/compute"
	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"
)

// fenceTimeout bounds every host-side fence wait.
const fenceTimeout = 5 * time.Second

// Adapter implements gpucore.Device using gogpu/wgpu/hal directly. It
// bridges the runtime's opaque-ID contract to HAL resources.
//
// Thread Safety: the resource registries are protected by a mutex so the
// adapter tolerates concurrent resource creation, but the submission path
// follows the runtime's single-control-thread model.
type Adapter struct {
	mu     sync.RWMutex
	device hal.Device
	queue  hal.Queue

	limits types.Limits

	// ID generation
	nextID atomic.Uint64

	// Resource tracking maps gpucore IDs to hal resources
	buffers   map[gpucore.BufferID]hal.Buffer
	pipelines map[gpucore.ComputePipelineID]*pipelineResources
	heaps     map[gpucore.QueryHeapID]*queryHeap

	// Host-side shadow memory for Upload/Readback buffers. HAL does not
	// expose buffer mapping yet; upload writes are flushed with
	// Queue.WriteBuffer on unmap, readback contents are pulled with
	// Queue.ReadBuffer on map.
	// TODO: switch to real mapping once hal gains MapBuffer support.
	shadow  map[gpucore.BufferID][]byte
	uploads map[gpucore.BufferID]bool

	// Single device fence with a monotonically increasing value.
	fence      hal.Fence
	fenceValue uint64
}

// pipelineResources bundles the HAL objects built for one compute
// pipeline.
type pipelineResources struct {
	module         hal.ShaderModule
	bindLayout     hal.BindGroupLayout
	pipelineLayout hal.PipelineLayout
	pipeline       hal.ComputePipeline
	inputs         int
	outputs        int
}

// queryHeap is a block of timestamp slots backed by the host monotonic
// clock. HAL exposes no timestamp query sets; ticks are captured when the
// owning recorder is submitted, so resolution granularity is one
// submission.
// TODO: record device-side timestamps once hal exposes query sets.
type queryHeap struct {
	capacity uint32
	ticks    []uint64
}

// New creates an Adapter wrapping the given HAL device and queue. If
// limits is nil, default limits are used.
func New(device hal.Device, queue hal.Queue, limits *types.Limits) (*Adapter, error) {
	var lim types.Limits
	if limits != nil {
		lim = *limits
	} else {
		lim = types.DefaultLimits()
	}

	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("native: create device fence: %w", err)
	}

	a := &Adapter{
		device:    device,
		queue:     queue,
		limits:    lim,
		buffers:   make(map[gpucore.BufferID]hal.Buffer),
		pipelines: make(map[gpucore.ComputePipelineID]*pipelineResources),
		heaps:     make(map[gpucore.QueryHeapID]*queryHeap),
		shadow:    make(map[gpucore.BufferID][]byte),
		uploads:   make(map[gpucore.BufferID]bool),
		fence:     fence,
	}

	// Start ID generation at 1 (0 is invalid)
	a.nextID.Store(1)

	compute.Logger().Info("native adapter initialized",
		"maxBufferSize", lim.MaxBufferSize,
		"maxWorkgroup", [3]uint32{lim.MaxComputeWorkgroupSizeX, lim.MaxComputeWorkgroupSizeY, lim.MaxComputeWorkgroupSizeZ})

	return a, nil
}

// newID generates a unique resource ID.
func (a *Adapter) newID() uint64 {
	return a.nextID.Add(1) - 1
}

// Destroy releases all adapter-owned resources. The adapter must not be
// used afterwards.
func (a *Adapter) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, buf := range a.buffers {
		a.device.DestroyBuffer(buf)
		delete(a.buffers, id)
	}
	for id, res := range a.pipelines {
		destroyPipelineResources(a.device, res)
		delete(a.pipelines, id)
	}
	if a.fence != nil {
		a.device.DestroyFence(a.fence)
		a.fence = nil
	}
}

// === Buffers ===

// CreateBuffer allocates a buffer of exactly size bytes. The memory kind
// selects the usage flags: device-local buffers are storage plus copy
// source/destination, upload buffers are map-write copy sources, readback
// buffers are map-read copy destinations.
func (a *Adapter) CreateBuffer(size uint64, kind gpucore.MemoryKind, label string) (gpucore.BufferID, error) {
	if size == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: buffer size must be positive")
	}

	var usage gputypes.BufferUsage
	switch kind {
	case gpucore.MemoryUpload:
		usage = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	case gpucore.MemoryReadback:
		usage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
	default:
		usage = gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	}

	buffer, err := a.device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create buffer: %w", err)
	}

	id := gpucore.BufferID(a.newID())

	a.mu.Lock()
	a.buffers[id] = buffer
	if kind != gpucore.MemoryDeviceLocal {
		a.shadow[id] = make([]byte, size)
		a.uploads[id] = kind == gpucore.MemoryUpload
	}
	a.mu.Unlock()

	return id, nil
}

// DestroyBuffer releases a buffer. Unknown IDs are ignored.
func (a *Adapter) DestroyBuffer(id gpucore.BufferID) {
	a.mu.Lock()
	buffer, ok := a.buffers[id]
	if ok {
		delete(a.buffers, id)
		delete(a.shadow, id)
		delete(a.uploads, id)
	}
	a.mu.Unlock()

	if ok {
		a.device.DestroyBuffer(buffer)
	}
}

// MapBuffer returns the host-side memory of an Upload or Readback buffer.
// Readback contents are pulled from the device first.
func (a *Adapter) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	a.mu.RLock()
	m, ok := a.shadow[id]
	buffer := a.buffers[id]
	upload := a.uploads[id]
	a.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("native: buffer %d is not host-visible", id)
	}
	if !upload {
		if err := a.queue.ReadBuffer(buffer, 0, m); err != nil {
			return nil, fmt.Errorf("native: buffer readback failed: %w", err)
		}
	}
	return m, nil
}

// UnmapBuffer ends a mapping. Upload buffers are flushed to the device.
func (a *Adapter) UnmapBuffer(id gpucore.BufferID) {
	a.mu.RLock()
	buffer, bufOK := a.buffers[id]
	m, shadowOK := a.shadow[id]
	upload := a.uploads[id]
	a.mu.RUnlock()

	if bufOK && shadowOK && upload {
		a.queue.WriteBuffer(buffer, 0, m)
	}
}

// === Pipelines ===

// CreatePipeline builds the shader module, binding layout, pipeline
// layout, and compute pipeline for one kernel. Bindings are laid out as
// InputCount read-only storage buffers followed by OutputCount read-write
// storage buffers.
func (a *Adapter) CreatePipeline(desc *gpucore.PipelineDesc) (gpucore.ComputePipelineID, error) {
	if desc == nil {
		return gpucore.InvalidID, fmt.Errorf("native: nil pipeline descriptor")
	}

	words, err := bytesToWords(desc.Bytecode)
	if err != nil {
		return gpucore.InvalidID, err
	}

	module, err := a.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: desc.Label,
		Source: hal.ShaderSource{
			SPIRV: words,
		},
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader module: %w", err)
	}

	entries := make([]types.BindGroupLayoutEntry, 0, desc.InputCount+desc.OutputCount)
	for i := 0; i < desc.InputCount; i++ {
		entries = append(entries, types.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: types.ShaderStageCompute,
			Buffer: &types.BufferBindingLayout{
				Type: types.BufferBindingTypeReadOnlyStorage,
			},
		})
	}
	for i := 0; i < desc.OutputCount; i++ {
		entries = append(entries, types.BindGroupLayoutEntry{
			Binding:    uint32(desc.InputCount + i),
			Visibility: types.ShaderStageCompute,
			Buffer: &types.BufferBindingLayout{
				Type: types.BufferBindingTypeStorage,
			},
		})
	}

	bindLayout, err := a.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		a.device.DestroyShaderModule(module)
		return gpucore.InvalidID, fmt.Errorf("native: create bind group layout: %w", err)
	}

	pipelineLayout, err := a.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		a.device.DestroyBindGroupLayout(bindLayout)
		a.device.DestroyShaderModule(module)
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline layout: %w", err)
	}

	pipeline, err := a.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: pipelineLayout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.EntryPoint,
		},
	})
	if err != nil {
		a.device.DestroyPipelineLayout(pipelineLayout)
		a.device.DestroyBindGroupLayout(bindLayout)
		a.device.DestroyShaderModule(module)
		return gpucore.InvalidID, fmt.Errorf("native: create compute pipeline: %w", err)
	}

	id := gpucore.ComputePipelineID(a.newID())

	a.mu.Lock()
	a.pipelines[id] = &pipelineResources{
		module:         module,
		bindLayout:     bindLayout,
		pipelineLayout: pipelineLayout,
		pipeline:       pipeline,
		inputs:         desc.InputCount,
		outputs:        desc.OutputCount,
	}
	a.mu.Unlock()

	return id, nil
}

// DestroyPipeline releases a pipeline and its associated objects.
func (a *Adapter) DestroyPipeline(id gpucore.ComputePipelineID) {
	a.mu.Lock()
	res, ok := a.pipelines[id]
	if ok {
		delete(a.pipelines, id)
	}
	a.mu.Unlock()

	if ok {
		destroyPipelineResources(a.device, res)
	}
}

func destroyPipelineResources(device hal.Device, res *pipelineResources) {
	device.DestroyComputePipeline(res.pipeline)
	device.DestroyPipelineLayout(res.pipelineLayout)
	device.DestroyBindGroupLayout(res.bindLayout)
	device.DestroyShaderModule(res.module)
}

// === Queries ===

// CreateQueryHeap allocates a block of timestamp slots.
func (a *Adapter) CreateQueryHeap(capacity uint32) (gpucore.QueryHeapID, error) {
	if capacity == 0 {
		return gpucore.InvalidID, fmt.Errorf("native: query heap capacity must be positive")
	}

	id := gpucore.QueryHeapID(a.newID())

	a.mu.Lock()
	a.heaps[id] = &queryHeap{
		capacity: capacity,
		ticks:    make([]uint64, capacity),
	}
	a.mu.Unlock()

	return id, nil
}

// TimestampFrequency returns the tick rate of the adapter's timestamps.
// Host-clock ticks are nanoseconds.
func (a *Adapter) TimestampFrequency() uint64 {
	return 1_000_000_000
}

// === Recording and submission ===

// CreateRecorder opens a HAL command encoder wrapped as a recorder.
func (a *Adapter) CreateRecorder(label string) (gpucore.Recorder, error) {
	enc, err := a.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &recorder{adapter: a, enc: enc, label: label}, nil
}

// Submit enqueues a closed recorder, signals the device fence, and returns
// the signaled fence value. Deferred timestamp and resolve operations run
// at this point against the host clock.
func (a *Adapter) Submit(rec gpucore.Recorder) (uint64, error) {
	r, ok := rec.(*recorder)
	if !ok {
		return 0, fmt.Errorf("native: foreign recorder %T", rec)
	}
	if r.cmd == nil {
		return 0, fmt.Errorf("native: recorder %q is not closed", r.label)
	}

	a.mu.Lock()
	a.fenceValue++
	value := a.fenceValue
	a.mu.Unlock()

	if err := a.queue.Submit([]hal.CommandBuffer{r.cmd}, a.fence, value); err != nil {
		return 0, fmt.Errorf("native: queue submission failed: %w", err)
	}

	now := uint64(time.Now().UnixNano())
	for _, op := range r.deferred {
		op(now)
	}
	r.deferred = nil

	r.cmd.Destroy()
	r.cmd = nil
	r.releaseBindGroups()

	return value, nil
}

// WaitFence blocks until the device fence reaches the given value.
func (a *Adapter) WaitFence(value uint64) error {
	ok, err := a.device.Wait(a.fence, value, fenceTimeout)
	if err != nil {
		return fmt.Errorf("native: fence wait failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("native: fence wait timed out at value %d", value)
	}
	return nil
}

// WaitIdle blocks until all previously submitted work has completed, using
// a signal-only submission on the device fence.
func (a *Adapter) WaitIdle() error {
	a.mu.Lock()
	a.fenceValue++
	value := a.fenceValue
	a.mu.Unlock()

	if err := a.queue.Submit(nil, a.fence, value); err != nil {
		return fmt.Errorf("native: idle submission failed: %w", err)
	}
	return a.WaitFence(value)
}

// bytesToWords converts SPIR-V bytecode from bytes to little-endian words.
func bytesToWords(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, fmt.Errorf("native: SPIR-V bytecode length %d is not a positive multiple of 4", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words, nil
}
