package gpucore

// Resource IDs
//
// These opaque IDs represent GPU resources. IDs are uint64 to accommodate
// various backend handle sizes. Each backend implementation maintains the
// mapping between IDs and actual driver resources.

// BufferID is an opaque handle to a device buffer.
type BufferID uint64

// ComputePipelineID is an opaque handle to a built compute pipeline,
// including its shader module and binding layout.
type ComputePipelineID uint64

// QueryHeapID is an opaque handle to a block of timestamp query slots.
type QueryHeapID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// MemoryKind selects the heap a buffer is allocated from.
type MemoryKind uint32

const (
	// MemoryDeviceLocal is GPU-only memory, the kind used for all pooled
	// compute buffers.
	MemoryDeviceLocal MemoryKind = iota

	// MemoryUpload is host-visible write-combined memory used as a copy
	// source for host-to-device transfers.
	MemoryUpload

	// MemoryReadback is host-readable memory used as a copy destination
	// for device-to-host transfers and query resolution.
	MemoryReadback
)

// String returns a human-readable name for the memory kind.
func (k MemoryKind) String() string {
	switch k {
	case MemoryDeviceLocal:
		return "DeviceLocal"
	case MemoryUpload:
		return "Upload"
	case MemoryReadback:
		return "Readback"
	default:
		return "Unknown"
	}
}

// ResourceState describes how a buffer may currently be accessed by the GPU.
// Every buffer carries exactly one current state; changing it requires a
// transition barrier recorded into a command stream.
type ResourceState uint32

const (
	// StateCommon is the default state buffers are created in and returned
	// to after transfers.
	StateCommon ResourceState = iota

	// StateCopySrc permits the buffer to be read by copy commands.
	StateCopySrc

	// StateCopyDst permits the buffer to be written by copy commands.
	StateCopyDst

	// StateShaderRead permits read-only access from compute shaders.
	StateShaderRead

	// StateUnorderedAccess permits read-modify-write access from compute
	// shaders. This is the hazard state: back-to-back dispatches touching
	// the same buffer in this state require a hazard barrier even though
	// the state itself does not change.
	StateUnorderedAccess
)

// String returns a human-readable name for the resource state.
func (s ResourceState) String() string {
	switch s {
	case StateCommon:
		return "Common"
	case StateCopySrc:
		return "CopySrc"
	case StateCopyDst:
		return "CopyDst"
	case StateShaderRead:
		return "ShaderRead"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	default:
		return "Unknown"
	}
}

// PipelineDesc describes a compute pipeline to be built from compiled
// bytecode. Bindings are laid out as InputCount read-only storage buffers
// followed by OutputCount read-write storage buffers, in argument order.
type PipelineDesc struct {
	// Label is an optional debug label.
	Label string

	// Bytecode is the compiled shader bytecode produced by a Compiler.
	Bytecode []byte

	// EntryPoint is the name of the shader entry point function.
	EntryPoint string

	// InputCount is the number of read-only buffer bindings.
	InputCount int

	// OutputCount is the number of read-write buffer bindings.
	OutputCount int
}
