package compute

import "github.com/gogpu/compute/gpucore"

// transition applies the runtime's barrier policy for one buffer on one
// recorder and updates the buffer's recorded state.
//
// The rule is two-sided:
//   - target differs from the current state: emit a single transition
//     barrier and record the new state.
//   - target equals the current state and both are the read/write-hazard
//     state (unordered access): emit a hazard-only barrier. Same-state
//     reuse still requires serialization when the state permits concurrent
//     read-modify-write.
//   - otherwise: no barrier. Two consecutive reads need no ordering.
//
// This prevents both missed synchronization between back-to-back dispatches
// writing one buffer and barrier spam between consecutive reads.
func transition(rec gpucore.Recorder, b *Buffer, target gpucore.ResourceState) {
	if b.state != target {
		rec.TransitionBarrier(b.id, b.state, target)
		b.state = target
		return
	}
	if target == gpucore.StateUnorderedAccess {
		rec.HazardBarrier(b.id)
	}
}
