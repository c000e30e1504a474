package compute

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/gogpu/compute/gpucore"
)

// DefaultMaxThreadsPerGroup is the limit enforced on the product of a
// kernel's three thread extents.
const DefaultMaxThreadsPerGroup = 1024

// fileSourcePrefix marks kernel source that should be loaded from a file.
const fileSourcePrefix = "file://"

// metadataMarker introduces the single "inputs : outputs" metadata line.
const metadataMarker = "///"

// Kernel holds one compiled compute kernel: launch geometry, ordered
// argument descriptors, and the built pipeline object. Kernels are created
// once from source text, immutable thereafter, and destroyed explicitly.
type Kernel struct {
	// Blocks is the dispatch grid, one count per axis.
	Blocks [3]int

	// Threads is the per-group thread extent, one count per axis.
	Threads [3]int

	// Inputs and Outputs are the ordered argument descriptors.
	Inputs  []TensorDescriptor
	Outputs []TensorDescriptor

	pipeline gpucore.ComputePipelineID
}

// InputCount returns the number of input arguments.
func (k *Kernel) InputCount() int { return len(k.Inputs) }

// OutputCount returns the number of output arguments.
func (k *Kernel) OutputCount() int { return len(k.Outputs) }

// ArgProperty describes one kernel argument for callers sizing host
// buffers.
type ArgProperty struct {
	ElementCount int64
	ElementBytes int
	DType        string
}

// ArgumentProperty returns the property of the argument at the given
// flattened index across inputs-then-outputs. The index is caller-
// guaranteed to be in range; an out-of-range index panics.
func (k *Kernel) ArgumentProperty(i int) ArgProperty {
	var t *TensorDescriptor
	if i < len(k.Inputs) {
		t = &k.Inputs[i]
	} else {
		t = &k.Outputs[i-len(k.Inputs)]
	}
	return ArgProperty{
		ElementCount: t.ElementCount(),
		ElementBytes: t.ElementBytes(),
		DType:        t.DType,
	}
}

// KernelRegistry parses kernel source, compiles it through the external
// compiler, and builds the binding layout and pipeline object for each
// kernel. The registry exclusively owns all compiled pipeline state.
//
// KernelRegistry is not safe for concurrent use.
type KernelRegistry struct {
	dev        gpucore.Device
	compiler   gpucore.Compiler
	maxThreads int
	log        *slog.Logger
}

// NewKernelRegistry creates a registry over the given device and compiler.
func NewKernelRegistry(dev gpucore.Device, compiler gpucore.Compiler, maxThreads int, logger *slog.Logger) *KernelRegistry {
	if maxThreads <= 0 {
		maxThreads = DefaultMaxThreadsPerGroup
	}
	if logger == nil {
		logger = newNopLogger()
	}
	return &KernelRegistry{
		dev:        dev,
		compiler:   compiler,
		maxThreads: maxThreads,
		log:        logger,
	}
}

// CreateKernel builds a kernel from source text.
//
// Source beginning with "file://" is first resolved by reading the
// referenced file. The text is compiled to device bytecode, argument
// metadata is extracted from the "/// inputs : outputs" line, and the six
// per-axis launch-geometry annotations are scanned independently, each
// defaulting to 1 when absent.
//
// Input-format failures (unreadable file, compilation failure, malformed
// metadata) return a nil kernel and an error without side effects: no
// partial kernel is ever registered. Driver object-creation failures are
// hard failures propagated to the caller.
func (r *KernelRegistry) CreateKernel(source string) (*Kernel, error) {
	if rest, ok := strings.CutPrefix(source, fileSourcePrefix); ok {
		data, err := os.ReadFile(strings.TrimSpace(rest))
		if err != nil {
			return nil, fmt.Errorf("compute: read kernel source: %w", err)
		}
		source = string(data)
	}

	bytecode, err := r.compiler.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compute: kernel compilation failed: %w", err)
	}

	inputs, outputs, err := parseArguments(source)
	if err != nil {
		return nil, err
	}

	blocks, threads, err := parseLaunchGeometry(source)
	if err != nil {
		return nil, err
	}
	if p := threads[0] * threads[1] * threads[2]; p > r.maxThreads {
		return nil, fmt.Errorf("%w: %dx%dx%d = %d > %d",
			ErrThreadExtent, threads[0], threads[1], threads[2], p, r.maxThreads)
	}

	pipeline, err := r.dev.CreatePipeline(&gpucore.PipelineDesc{
		Label:       kernelLabel(inputs, outputs),
		Bytecode:    bytecode,
		EntryPoint:  "main",
		InputCount:  len(inputs),
		OutputCount: len(outputs),
	})
	if err != nil {
		return nil, fmt.Errorf("compute: pipeline creation failed: %w", err)
	}

	r.log.Debug("kernel created",
		"inputs", len(inputs), "outputs", len(outputs),
		"blocks", blocks, "threads", threads)

	return &Kernel{
		Blocks:   blocks,
		Threads:  threads,
		Inputs:   inputs,
		Outputs:  outputs,
		pipeline: pipeline,
	}, nil
}

// DestroyKernel releases a kernel and its pipeline objects. A nil kernel
// is a no-op.
func (r *KernelRegistry) DestroyKernel(k *Kernel) {
	if k == nil {
		return
	}
	r.dev.DestroyPipeline(k.pipeline)
	k.pipeline = gpucore.InvalidID
}

// parseArguments extracts the input and output descriptor lists from the
// "/// inputs : outputs" metadata line.
func parseArguments(source string) (inputs, outputs []TensorDescriptor, err error) {
	line := getBetween(source, metadataMarker, "\n", "")
	if line == "" {
		return nil, nil, fmt.Errorf("%w: missing %q line", ErrInvalidMetadata, metadataMarker)
	}

	sides := strings.SplitN(line, ":", 2)
	if len(sides) != 2 {
		return nil, nil, fmt.Errorf("%w: %q has no input/output separator", ErrInvalidMetadata, line)
	}

	inputs, err = parseTensorList(sides[0])
	if err != nil {
		return nil, nil, err
	}
	outputs, err = parseTensorList(sides[1])
	if err != nil {
		return nil, nil, err
	}
	return inputs, outputs, nil
}

// parseLaunchGeometry scans the six per-axis thread-extent annotations.
// A missing annotation defaults to 1; this is a deliberate permissive
// policy, not an error path.
func parseLaunchGeometry(source string) (blocks, threads [3]int, err error) {
	for i, axis := range [3]string{"x", "y", "z"} {
		blocks[i], err = parseExtent(source, "blockIdx."+axis)
		if err != nil {
			return blocks, threads, err
		}
		threads[i], err = parseExtent(source, "threadIdx."+axis)
		if err != nil {
			return blocks, threads, err
		}
	}
	return blocks, threads, nil
}

// parseExtent reads one "// [thread_extent] <name> = N" annotation.
func parseExtent(source, name string) (int, error) {
	raw := getBetween(source, "// [thread_extent] "+name+" = ", "\n", "1")
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: thread extent %s = %q", ErrInvalidMetadata, name, raw)
	}
	return n, nil
}

// getBetween returns the substring between the first occurrence of start
// and the following occurrence of end. A missing delimiter yields def
// rather than an error.
func getBetween(s, start, end, def string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return def
	}
	s = s[i+len(start):]
	j := strings.Index(s, end)
	if j < 0 {
		return def
	}
	return s[:j]
}

// kernelLabel derives a debug label from the kernel's argument names.
func kernelLabel(inputs, outputs []TensorDescriptor) string {
	var b strings.Builder
	b.WriteString("kernel")
	for _, t := range inputs {
		b.WriteString("_")
		b.WriteString(t.Name)
	}
	for _, t := range outputs {
		b.WriteString("_")
		b.WriteString(t.Name)
	}
	return b.String()
}
