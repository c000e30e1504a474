package compute

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/compute/gpucore"
)

// DefaultBindingTableCapacity is the number of binding-table entries each
// stream's shared table holds.
const DefaultBindingTableCapacity = 65536

// StreamState identifies the lifecycle state of a Stream.
type StreamState uint32

const (
	// StreamRecording accepts launches, queries, and other recordings.
	StreamRecording StreamState = iota

	// StreamSubmitted has been enqueued; only Synchronize (or a repeated,
	// idempotent Submit) is valid until the stream is reset.
	StreamSubmitted
)

// String returns a human-readable name for the stream state.
func (s StreamState) String() string {
	switch s {
	case StreamRecording:
		return "Recording"
	case StreamSubmitted:
		return "Submitted"
	default:
		return "Unknown"
	}
}

// Stream records a linear sequence of GPU commands and tracks its own
// lifecycle. One stream is one unit of recorded-then-submitted work;
// Synchronize returns it to a fresh recording state.
//
// Recording and execution are decoupled so multiple launches can be
// batched into one submission, amortizing submission overhead. Synchronize
// is the only blocking point.
//
// Stream is not safe for concurrent use.
type Stream struct {
	dev gpucore.Device
	rec gpucore.Recorder

	state      StreamState
	fenceValue uint64

	// Shared binding table: the cursor advances by the argument count of
	// each launch and is cleared on reset. Overflow is a hard failure.
	cursor   int
	capacity int

	pending []*QueryHeap

	// Optional per-launch profiling.
	queries   *QueryPool
	profiling bool
	samples   []launchSample

	log *slog.Logger
}

// launchSample is a start/stop query pair recorded around one dispatch.
type launchSample struct {
	start, end *Query
}

// newStream creates a stream in the Recording state with a fresh recorder.
func newStream(dev gpucore.Device, queries *QueryPool, capacity int, profiling bool, logger *slog.Logger) (*Stream, error) {
	if capacity <= 0 {
		capacity = DefaultBindingTableCapacity
	}
	if logger == nil {
		logger = newNopLogger()
	}
	rec, err := dev.CreateRecorder("stream")
	if err != nil {
		return nil, fmt.Errorf("compute: create stream recorder: %w", err)
	}
	return &Stream{
		dev:       dev,
		rec:       rec,
		state:     StreamRecording,
		capacity:  capacity,
		queries:   queries,
		profiling: profiling,
		log:       logger,
	}, nil
}

// State returns the stream's current lifecycle state.
func (s *Stream) State() StreamState { return s.state }

// FenceValue returns the fence value stored by the last submission, or 0
// if the stream has never been submitted.
func (s *Stream) FenceValue() uint64 { return s.fenceValue }

// checkRecording guards operations that are only valid while recording.
func (s *Stream) checkRecording() error {
	if s.state != StreamRecording {
		return fmt.Errorf("%w: state is %s", ErrStreamNotRecording, s.state)
	}
	return nil
}

// markPending marks a query heap for resolution at submission. The pending
// set is always small, so a linear scan deduplicates it.
func (s *Stream) markPending(h *QueryHeap) {
	for _, p := range s.pending {
		if p == h {
			return
		}
	}
	s.pending = append(s.pending, h)
}

// Launch records one kernel dispatch.
//
// Each input buffer is transitioned to the shader-read state and each
// output buffer to the read/write-hazard state, emitting barriers per the
// transition policy. The kernel's arguments are bound through the stream's
// shared binding table, whose cursor advances by the argument count;
// exceeding the table capacity is a hard failure. The caller must pass the
// kernel's buffers in argument order, inputs then outputs; passing too few
// is undefined behavior.
func (s *Stream) Launch(k *Kernel, buffers []*Buffer) error {
	if err := s.checkRecording(); err != nil {
		return err
	}
	if s.cursor+len(buffers) > s.capacity {
		return fmt.Errorf("%w: %d + %d > %d", ErrBindingTableFull, s.cursor, len(buffers), s.capacity)
	}

	for i, b := range buffers {
		if i < len(k.Inputs) {
			transition(s.rec, b, gpucore.StateShaderRead)
		} else {
			transition(s.rec, b, gpucore.StateUnorderedAccess)
		}
	}

	var sample launchSample
	if s.profiling && s.queries != nil {
		var err error
		if sample.start, err = s.queries.CreateQuery(); err != nil {
			return err
		}
		if sample.end, err = s.queries.CreateQuery(); err != nil {
			return err
		}
		if err := s.queries.Record(sample.start, s); err != nil {
			return err
		}
	}

	args := make([]gpucore.BufferID, len(buffers))
	for i, b := range buffers {
		args[i] = b.id
	}
	s.rec.Dispatch(k.pipeline, args, k.Blocks)
	s.cursor += len(buffers)

	if s.profiling && s.queries != nil {
		if err := s.queries.Record(sample.end, s); err != nil {
			return err
		}
		s.samples = append(s.samples, sample)
	}
	return nil
}

// Submit enqueues the stream's recorded work on the execution queue.
//
// Submit is idempotent: calling it on an already-submitted stream is a
// no-op. Otherwise every pending query heap is resolved in full into its
// staging buffer, the recorder is closed and enqueued, the device fence is
// signaled, and the returned fence value is stored on the stream.
func (s *Stream) Submit() error {
	if s.state == StreamSubmitted {
		return nil
	}

	for _, h := range s.pending {
		s.rec.ResolveQueryHeap(h.id, h.staging)
	}

	if err := s.rec.Close(); err != nil {
		return fmt.Errorf("compute: close stream recorder: %w", err)
	}
	fv, err := s.dev.Submit(s.rec)
	if err != nil {
		return fmt.Errorf("compute: stream submission failed: %w", err)
	}
	s.fenceValue = fv
	s.state = StreamSubmitted
	return nil
}

// Synchronize blocks until the stream's submitted work has completed, then
// resets the stream to a fresh Recording state.
//
// A stream still in Recording is submitted first. After the fence wait the
// binding-table cursor and pending-query list are cleared and the recorder
// is reopened. When profiling is enabled, per-launch dispatch times are
// logged at debug level and the profiling queries are recycled.
func (s *Stream) Synchronize() error {
	if s.state == StreamRecording {
		if err := s.Submit(); err != nil {
			return err
		}
	}

	if err := s.dev.WaitFence(s.fenceValue); err != nil {
		return fmt.Errorf("compute: fence wait failed: %w", err)
	}

	s.reportProfile()

	s.cursor = 0
	s.pending = s.pending[:0]
	if err := s.rec.Reset(); err != nil {
		return fmt.Errorf("compute: reset stream recorder: %w", err)
	}
	s.state = StreamRecording
	return nil
}

// reportProfile logs the elapsed device time of each profiled launch and
// recycles the query pairs.
func (s *Stream) reportProfile() {
	if s.queries == nil {
		return
	}
	for i, sample := range s.samples {
		sec, err := s.queries.ElapsedTime(sample.start, sample.end)
		if err != nil {
			s.log.Warn("profiling readback failed", "launch", i, "error", err)
		} else {
			s.log.Debug("launch time", "launch", i, "seconds", sec)
		}
		s.queries.DestroyQuery(sample.start)
		s.queries.DestroyQuery(sample.end)
	}
	s.samples = s.samples[:0]
}
