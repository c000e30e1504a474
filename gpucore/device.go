package gpucore

// Device is the contract the runtime requires from a GPU backend.
//
// A Device owns the physical device handle, the single execution queue, and
// one fence whose value increases monotonically with each submission. All
// resource-creation failures are hard failures: the runtime has no fallback
// allocator or degraded mode, so callers are expected to treat them as
// fatal.
type Device interface {
	// CreateBuffer allocates a buffer of exactly size bytes from the given
	// memory kind.
	CreateBuffer(size uint64, kind MemoryKind, label string) (BufferID, error)

	// DestroyBuffer releases a buffer. Unknown IDs are ignored.
	DestroyBuffer(id BufferID)

	// MapBuffer returns host-accessible memory for an Upload or Readback
	// buffer. Mapping a DeviceLocal buffer is an error.
	MapBuffer(id BufferID) ([]byte, error)

	// UnmapBuffer ends a mapping started by MapBuffer. For Upload buffers
	// this flushes the written bytes to the device.
	UnmapBuffer(id BufferID)

	// CreatePipeline builds a compute pipeline, including its shader
	// module and binding layout, from compiled bytecode.
	CreatePipeline(desc *PipelineDesc) (ComputePipelineID, error)

	// DestroyPipeline releases a pipeline and its associated objects.
	DestroyPipeline(id ComputePipelineID)

	// CreateQueryHeap allocates a block of timestamp query slots. Heaps
	// are never released during the process lifetime.
	CreateQueryHeap(capacity uint32) (QueryHeapID, error)

	// TimestampFrequency returns the number of raw timestamp ticks per
	// second, used to convert query deltas to seconds.
	TimestampFrequency() uint64

	// CreateRecorder opens a new command recorder in the recording state.
	CreateRecorder(label string) (Recorder, error)

	// Submit enqueues a closed recorder on the execution queue, signals
	// the device fence, and returns the signaled fence value.
	Submit(rec Recorder) (uint64, error)

	// WaitFence blocks until the device fence reaches the given value.
	WaitFence(value uint64) error

	// WaitIdle blocks until all previously submitted work has completed.
	WaitIdle() error
}

// Recorder records a linear sequence of GPU commands. Recording operations
// do not return errors; failures are latched and surfaced by Close, the
// same way command encoders defer validation to submission.
type Recorder interface {
	// TransitionBarrier records a resource-state change for a buffer.
	TransitionBarrier(buf BufferID, before, after ResourceState)

	// HazardBarrier records a read/write-hazard barrier for a buffer whose
	// state is unchanged.
	HazardBarrier(buf BufferID)

	// Dispatch binds a pipeline with its ordered buffer arguments and
	// dispatches the given block grid.
	Dispatch(pipeline ComputePipelineID, args []BufferID, blocks [3]int)

	// CopyBuffer records a buffer-to-buffer copy of size bytes.
	CopyBuffer(dst BufferID, dstOffset uint64, src BufferID, srcOffset, size uint64)

	// WriteTimestamp records a timestamp into the given heap slot.
	WriteTimestamp(heap QueryHeapID, slot uint32)

	// ResolveQueryHeap records a resolve of the heap's entire timestamp
	// contents into the staging buffer.
	ResolveQueryHeap(heap QueryHeapID, staging BufferID)

	// Close ends recording and returns the first recording error, if any.
	// A closed recorder can be passed to Device.Submit.
	Close() error

	// Reset reopens the recorder for a fresh recording after submission.
	Reset() error
}

// Compiler translates kernel source text to device bytecode.
type Compiler interface {
	Compile(source string) ([]byte, error)
}
