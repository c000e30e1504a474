package native

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// =============================================================================
// Mock Types for Testing
// =============================================================================

// mockHALBuffer is a test double for hal.Buffer.
type mockHALBuffer struct {
	size  uint64
	label string
}

// Destroy implements hal.Resource.
func (b *mockHALBuffer) Destroy() {}

// NativeHandle implements hal.NativeHandle.
func (b *mockHALBuffer) NativeHandle() uintptr { return 0 }

// mockHALFence is a test double for hal.Fence.
type mockHALFence struct{}

// Destroy implements hal.Resource.
func (f *mockHALFence) Destroy() {}

// mockHALBindGroup is a test double for hal.BindGroup.
type mockHALBindGroup struct {
	hal.BindGroup
}

// mockHALCommandBuffer is a test double for hal.CommandBuffer.
type mockHALCommandBuffer struct {
	hal.CommandBuffer

	destroyed int32
}

func (c *mockHALCommandBuffer) Destroy() {
	atomic.AddInt32(&c.destroyed, 1)
}

// mockHALPass records compute pass commands for verification.
type mockHALPass struct {
	hal.ComputePassEncoder

	label      string
	pipelines  []hal.ComputePipeline
	bindGroups []hal.BindGroup
	dispatches [][3]uint32
	ended      bool
}

func (p *mockHALPass) SetPipeline(pipeline hal.ComputePipeline) {
	p.pipelines = append(p.pipelines, pipeline)
}

func (p *mockHALPass) SetBindGroup(index uint32, group hal.BindGroup, dynamicOffsets []uint32) {
	p.bindGroups = append(p.bindGroups, group)
}

func (p *mockHALPass) Dispatch(x, y, z uint32) {
	p.dispatches = append(p.dispatches, [3]uint32{x, y, z})
}

func (p *mockHALPass) End() { p.ended = true }

// bufferCopyRecord captures one CopyBufferToBuffer call.
type bufferCopyRecord struct {
	src     hal.Buffer
	dst     hal.Buffer
	regions []hal.BufferCopy
}

// mockHALEncoder is a test double for hal.CommandEncoder.
type mockHALEncoder struct {
	hal.CommandEncoder

	began  bool
	ended  bool
	copies []bufferCopyRecord
	passes []*mockHALPass

	beginErr error
	endErr   error
}

func (e *mockHALEncoder) BeginEncoding(label string) error {
	if e.beginErr != nil {
		return e.beginErr
	}
	e.began = true
	return nil
}

func (e *mockHALEncoder) EndEncoding() (hal.CommandBuffer, error) {
	if e.endErr != nil {
		return nil, e.endErr
	}
	e.ended = true
	return &mockHALCommandBuffer{}, nil
}

func (e *mockHALEncoder) BeginComputePass(desc *hal.ComputePassDescriptor) hal.ComputePassEncoder {
	pass := &mockHALPass{label: desc.Label}
	e.passes = append(e.passes, pass)
	return pass
}

func (e *mockHALEncoder) CopyBufferToBuffer(src, dst hal.Buffer, regions []hal.BufferCopy) {
	e.copies = append(e.copies, bufferCopyRecord{src: src, dst: dst, regions: regions})
}

// bufferWriteRecord captures one queue WriteBuffer call.
type bufferWriteRecord struct {
	buffer hal.Buffer
	offset uint64
	data   []byte
}

// mockHALQueue is a test double for hal.Queue. WriteBuffer stores data per
// buffer so ReadBuffer can return it, emulating device memory.
type mockHALQueue struct {
	hal.Queue

	submitFunc func([]hal.CommandBuffer, hal.Fence, uint64) error

	submits   int32
	lastValue uint64
	lastCmds  int
	writes    []bufferWriteRecord
	data      map[hal.Buffer][]byte
}

func (q *mockHALQueue) Submit(cmds []hal.CommandBuffer, fence hal.Fence, value uint64) error {
	atomic.AddInt32(&q.submits, 1)
	q.lastValue = value
	q.lastCmds = len(cmds)
	if q.submitFunc != nil {
		return q.submitFunc(cmds, fence, value)
	}
	return nil
}

func (q *mockHALQueue) WriteBuffer(buffer hal.Buffer, offset uint64, data []byte) error {
	q.writes = append(q.writes, bufferWriteRecord{
		buffer: buffer,
		offset: offset,
		data:   append([]byte(nil), data...),
	})
	if q.data == nil {
		q.data = make(map[hal.Buffer][]byte)
	}
	stored := q.data[buffer]
	if need := int(offset) + len(data); len(stored) < need {
		grown := make([]byte, need)
		copy(grown, stored)
		stored = grown
	}
	copy(stored[offset:], data)
	q.data[buffer] = stored
	return nil
}

func (q *mockHALQueue) ReadBuffer(buffer hal.Buffer, offset uint64, dst []byte) error {
	stored := q.data[buffer]
	for i := range dst {
		dst[i] = 0
	}
	if int(offset) < len(stored) {
		copy(dst, stored[offset:])
	}
	return nil
}

// mockHALDevice is a test double for hal.Device.
type mockHALDevice struct {
	createBufferFunc          func(*hal.BufferDescriptor) (hal.Buffer, error)
	createShaderModuleFunc    func(*hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	createBindGroupLayoutFunc func(*hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error)
	createPipelineLayoutFunc  func(*hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error)
	createComputePipelineFunc func(*hal.ComputePipelineDescriptor) (hal.ComputePipeline, error)
	createBindGroupFunc       func(*hal.BindGroupDescriptor) (hal.BindGroup, error)
	createEncoderFunc         func(*hal.CommandEncoderDescriptor) (hal.CommandEncoder, error)
	createFenceFunc           func() (hal.Fence, error)
	waitFunc                  func(hal.Fence, uint64, time.Duration) (bool, error)

	// Track calls for verification
	buffersCreated    int32
	buffersDestroyed  int32
	modulesCreated    int32
	modulesDestroyed  int32
	layoutsCreated    int32
	layoutsDestroyed  int32
	pipeLayoutsMade   int32
	pipeLayoutsFreed  int32
	pipelinesCreated  int32
	pipelinesFreed    int32
	bindGroupsCreated int32
	bindGroupsFreed   int32
	encodersCreated   int32
	fencesCreated     int32
	fencesDestroyed   int32

	lastBufferDesc *hal.BufferDescriptor
	lastShaderDesc *hal.ShaderModuleDescriptor
	lastLayoutDesc *hal.BindGroupLayoutDescriptor
	lastBindDesc   *hal.BindGroupDescriptor
	lastEncoder    *mockHALEncoder
}

func (d *mockHALDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	atomic.AddInt32(&d.buffersCreated, 1)
	d.lastBufferDesc = desc
	if d.createBufferFunc != nil {
		return d.createBufferFunc(desc)
	}
	return &mockHALBuffer{size: desc.Size, label: desc.Label}, nil
}

func (d *mockHALDevice) DestroyBuffer(_ hal.Buffer) {
	atomic.AddInt32(&d.buffersDestroyed, 1)
}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateTexture(_ *hal.TextureDescriptor) (hal.Texture, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroyTexture(_ hal.Texture) {}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateTextureView(_ hal.Texture, _ *hal.TextureViewDescriptor) (hal.TextureView, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroyTextureView(_ hal.TextureView) {}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateSampler(_ *hal.SamplerDescriptor) (hal.Sampler, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroySampler(_ hal.Sampler) {}

//nolint:nilnil // Mock: returns nil handles unless overridden.
func (d *mockHALDevice) CreateBindGroupLayout(desc *hal.BindGroupLayoutDescriptor) (hal.BindGroupLayout, error) {
	atomic.AddInt32(&d.layoutsCreated, 1)
	d.lastLayoutDesc = desc
	if d.createBindGroupLayoutFunc != nil {
		return d.createBindGroupLayoutFunc(desc)
	}
	return nil, nil
}

func (d *mockHALDevice) DestroyBindGroupLayout(_ hal.BindGroupLayout) {
	atomic.AddInt32(&d.layoutsDestroyed, 1)
}

func (d *mockHALDevice) CreateBindGroup(desc *hal.BindGroupDescriptor) (hal.BindGroup, error) {
	atomic.AddInt32(&d.bindGroupsCreated, 1)
	d.lastBindDesc = desc
	if d.createBindGroupFunc != nil {
		return d.createBindGroupFunc(desc)
	}
	return &mockHALBindGroup{}, nil
}

func (d *mockHALDevice) DestroyBindGroup(_ hal.BindGroup) {
	atomic.AddInt32(&d.bindGroupsFreed, 1)
}

//nolint:nilnil // Mock: returns nil handles unless overridden.
func (d *mockHALDevice) CreatePipelineLayout(desc *hal.PipelineLayoutDescriptor) (hal.PipelineLayout, error) {
	atomic.AddInt32(&d.pipeLayoutsMade, 1)
	if d.createPipelineLayoutFunc != nil {
		return d.createPipelineLayoutFunc(desc)
	}
	return nil, nil
}

func (d *mockHALDevice) DestroyPipelineLayout(_ hal.PipelineLayout) {
	atomic.AddInt32(&d.pipeLayoutsFreed, 1)
}

//nolint:nilnil // Mock: returns nil handles unless overridden.
func (d *mockHALDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	atomic.AddInt32(&d.modulesCreated, 1)
	d.lastShaderDesc = desc
	if d.createShaderModuleFunc != nil {
		return d.createShaderModuleFunc(desc)
	}
	return nil, nil
}

func (d *mockHALDevice) DestroyShaderModule(_ hal.ShaderModule) {
	atomic.AddInt32(&d.modulesDestroyed, 1)
}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateRenderPipeline(_ *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroyRenderPipeline(_ hal.RenderPipeline) {}

//nolint:nilnil // Mock: returns nil handles unless overridden.
func (d *mockHALDevice) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	atomic.AddInt32(&d.pipelinesCreated, 1)
	if d.createComputePipelineFunc != nil {
		return d.createComputePipelineFunc(desc)
	}
	return nil, nil
}

func (d *mockHALDevice) DestroyComputePipeline(_ hal.ComputePipeline) {
	atomic.AddInt32(&d.pipelinesFreed, 1)
}

func (d *mockHALDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	atomic.AddInt32(&d.encodersCreated, 1)
	if d.createEncoderFunc != nil {
		return d.createEncoderFunc(desc)
	}
	enc := &mockHALEncoder{}
	d.lastEncoder = enc
	return enc, nil
}

func (d *mockHALDevice) CreateFence() (hal.Fence, error) {
	atomic.AddInt32(&d.fencesCreated, 1)
	if d.createFenceFunc != nil {
		return d.createFenceFunc()
	}
	return &mockHALFence{}, nil
}

func (d *mockHALDevice) DestroyFence(_ hal.Fence) {
	atomic.AddInt32(&d.fencesDestroyed, 1)
}

func (d *mockHALDevice) Wait(fence hal.Fence, value uint64, timeout time.Duration) (bool, error) {
	if d.waitFunc != nil {
		return d.waitFunc(fence, value, timeout)
	}
	return true, nil
}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateQuerySet(_ *hal.QuerySetDescriptor) (hal.QuerySet, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroyQuerySet(_ hal.QuerySet) {}

//nolint:nilnil // Mock: unused interface methods.
func (d *mockHALDevice) CreateRenderBundleEncoder(_ *hal.RenderBundleEncoderDescriptor) (hal.RenderBundleEncoder, error) {
	return nil, nil
}
func (d *mockHALDevice) DestroyRenderBundle(_ hal.RenderBundle) {}

func (d *mockHALDevice) FreeCommandBuffer(_ hal.CommandBuffer) {}

func (d *mockHALDevice) ResetFence(_ hal.Fence) error { return nil }

func (d *mockHALDevice) GetFenceStatus(_ hal.Fence) (bool, error) { return true, nil }

func (d *mockHALDevice) WaitIdle() error { return nil }

func (d *mockHALDevice) Destroy() {}

// newTestAdapter builds an adapter over fresh mocks.
func newTestAdapter(t *testing.T) (*Adapter, *mockHALDevice, *mockHALQueue) {
	t.Helper()
	device := &mockHALDevice{}
	queue := &mockHALQueue{}
	a, err := New(device, queue, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a, device, queue
}
