package compute

import "errors"

// Errors returned by the runtime. Driver-level failures (buffer allocation,
// pipeline creation, submission) are wrapped driver errors and are
// documented fatal: the runtime has no degraded mode, so callers are
// expected to abort on them. The variables below classify the runtime's
// own failure modes.
var (
	// ErrNotInitialized is returned when an entry point is called on a
	// closed or never-initialized runtime.
	ErrNotInitialized = errors.New("compute: runtime not initialized")

	// ErrStreamNotRecording is returned when a recording operation is
	// attempted on a stream that has already been submitted.
	ErrStreamNotRecording = errors.New("compute: stream is not recording")

	// ErrBindingTableFull is returned when a launch would advance the
	// stream's binding-table cursor past its capacity. This is a hard
	// failure: the table is never compacted mid-stream.
	ErrBindingTableFull = errors.New("compute: binding table capacity exceeded")

	// ErrInvalidDType is returned for tensor datatype names whose trailing
	// numeral is missing or not divisible by 8.
	ErrInvalidDType = errors.New("compute: invalid tensor datatype")

	// ErrInvalidMetadata is returned when the kernel source lacks a
	// well-formed "/// inputs : outputs" metadata line.
	ErrInvalidMetadata = errors.New("compute: malformed kernel metadata")

	// ErrThreadExtent is returned when the product of a kernel's thread
	// extents exceeds the per-group limit.
	ErrThreadExtent = errors.New("compute: thread extent product exceeds limit")
)
