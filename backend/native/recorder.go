package native

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/compute/gpucore"
	"github.com/gogpu/wgpu/hal"
	types "github.com/gogpu/gputypes"
)

// recorder implements gpucore.Recorder over a HAL command encoder.
//
// Recording operations are void; the first failure is latched in err and
// surfaced by Close, the same deferred-validation model HAL encoders use.
type recorder struct {
	adapter *Adapter
	enc     hal.CommandEncoder
	cmd     hal.CommandBuffer
	label   string

	// bindGroups created for dispatches in this recording, released after
	// submission.
	bindGroups []hal.BindGroup

	// deferred holds timestamp and resolve operations executed at submit
	// time against the host clock (see queryHeap).
	deferred []func(now uint64)

	err error
}

// setErr latches the first recording error.
func (r *recorder) setErr(err error) {
	if r.err == nil {
		r.err = err
	}
}

// TransitionBarrier records a buffer state change.
//
// HAL exposes explicit transitions for textures only; on the single
// execution queue buffer writes are already serialized between
// submissions, so buffer transitions carry state bookkeeping without a
// HAL-level command.
func (r *recorder) TransitionBarrier(buf gpucore.BufferID, before, after gpucore.ResourceState) {
}

// HazardBarrier records a read/write-hazard barrier. Same rationale as
// TransitionBarrier: the HAL queue serializes buffer access.
func (r *recorder) HazardBarrier(buf gpucore.BufferID) {
}

// Dispatch binds the pipeline's arguments as one bind group and dispatches
// the block grid inside a compute pass.
func (r *recorder) Dispatch(pipeline gpucore.ComputePipelineID, args []gpucore.BufferID, blocks [3]int) {
	a := r.adapter

	a.mu.RLock()
	res, ok := a.pipelines[pipeline]
	a.mu.RUnlock()
	if !ok {
		r.setErr(fmt.Errorf("native: pipeline %d not found", pipeline))
		return
	}

	entries := make([]types.BindGroupEntry, len(args))
	for i, id := range args {
		a.mu.RLock()
		_, ok := a.buffers[id]
		a.mu.RUnlock()
		if !ok {
			r.setErr(fmt.Errorf("native: buffer %d not found", id))
			return
		}
		// hal.Buffer does not expose its handle directly; the gpucore ID
		// stands in until HAL provides handle access.
		entries[i] = types.BindGroupEntry{
			Binding: uint32(i),
			Resource: types.BufferBinding{
				Buffer: uintptr(id),
				Offset: 0,
				Size:   0,
			},
		}
	}

	bindGroup, err := a.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "dispatch",
		Layout:  res.bindLayout,
		Entries: entries,
	})
	if err != nil {
		r.setErr(fmt.Errorf("native: create bind group: %w", err))
		return
	}
	r.bindGroups = append(r.bindGroups, bindGroup)

	pass := r.enc.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "dispatch",
	})
	pass.SetPipeline(res.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(uint32(blocks[0]), uint32(blocks[1]), uint32(blocks[2]))
	pass.End()
}

// CopyBuffer records a buffer-to-buffer copy.
func (r *recorder) CopyBuffer(dst gpucore.BufferID, dstOffset uint64, src gpucore.BufferID, srcOffset, size uint64) {
	a := r.adapter

	a.mu.RLock()
	dstBuf, dstOK := a.buffers[dst]
	srcBuf, srcOK := a.buffers[src]
	a.mu.RUnlock()
	if !dstOK || !srcOK {
		r.setErr(fmt.Errorf("native: copy with unknown buffer (dst %d, src %d)", dst, src))
		return
	}

	r.enc.CopyBufferToBuffer(srcBuf, dstBuf, []hal.BufferCopy{
		{
			SrcOffset: srcOffset,
			DstOffset: dstOffset,
			Size:      size,
		},
	})
}

// WriteTimestamp captures a tick into the heap slot when the recording is
// submitted.
func (r *recorder) WriteTimestamp(heap gpucore.QueryHeapID, slot uint32) {
	a := r.adapter

	a.mu.RLock()
	h, ok := a.heaps[heap]
	a.mu.RUnlock()
	if !ok || slot >= h.capacity {
		r.setErr(fmt.Errorf("native: timestamp into unknown heap %d slot %d", heap, slot))
		return
	}

	r.deferred = append(r.deferred, func(now uint64) {
		h.ticks[slot] = now
	})
}

// ResolveQueryHeap writes the heap's full tick contents into the staging
// buffer when the recording is submitted.
func (r *recorder) ResolveQueryHeap(heap gpucore.QueryHeapID, staging gpucore.BufferID) {
	a := r.adapter

	a.mu.RLock()
	h, heapOK := a.heaps[heap]
	buf, stagingOK := a.buffers[staging]
	a.mu.RUnlock()
	if !heapOK || !stagingOK {
		r.setErr(fmt.Errorf("native: resolve heap %d into buffer %d", heap, staging))
		return
	}

	r.deferred = append(r.deferred, func(now uint64) {
		data := make([]byte, len(h.ticks)*8)
		for i, t := range h.ticks {
			binary.LittleEndian.PutUint64(data[i*8:], t)
		}
		a.queue.WriteBuffer(buf, 0, data)
	})
}

// Close ends recording. The encoded command buffer is held for Submit.
func (r *recorder) Close() error {
	if r.err != nil {
		return r.err
	}
	cmd, err := r.enc.EndEncoding()
	if err != nil {
		return fmt.Errorf("native: end encoding: %w", err)
	}
	r.cmd = cmd
	return nil
}

// Reset reopens the recorder with a fresh encoder for the next recording.
func (r *recorder) Reset() error {
	if r.cmd != nil {
		r.cmd.Destroy()
		r.cmd = nil
	}
	r.releaseBindGroups()
	r.deferred = nil
	r.err = nil

	enc, err := r.adapter.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: r.label,
	})
	if err != nil {
		return fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(r.label); err != nil {
		return fmt.Errorf("native: begin encoding: %w", err)
	}
	r.enc = enc
	return nil
}

// releaseBindGroups destroys the bind groups created during the last
// recording.
func (r *recorder) releaseBindGroups() {
	for _, bg := range r.bindGroups {
		r.adapter.device.DestroyBindGroup(bg)
	}
	r.bindGroups = nil
}
