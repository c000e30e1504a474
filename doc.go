// Package compute provides a minimal compute-dispatch runtime for GPU
// kernels.
//
// # Overview
//
// compute sits between a tensor-program compiler and the GPU driver. It
// turns a textual compute-kernel description plus a set of device buffers
// into executed GPU work, hiding resource-state management, command-stream
// lifecycle, and timing instrumentation from the caller.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/compute"
//		"github.com/gogpu/compute/backend/native"
//	)
//
//	dev, _ := native.New(halDevice, halQueue, nil)
//	rt, _ := compute.New(dev, native.Compiler{})
//
//	kernel, _ := rt.CreateKernel(kernelSource)
//	a, _ := rt.AllocBuffer(4096)
//	b, _ := rt.AllocBuffer(4096)
//
//	stream, _ := rt.CreateStream()
//	rt.Launch(kernel, []*compute.Buffer{a, b}, stream)
//	rt.SynchronizeStream(stream)
//
// # Architecture
//
// The library is organized into:
//   - Public API: Runtime, Buffer, Kernel, Stream, Query
//   - Contracts: gpucore (Device, Recorder, Compiler interfaces)
//   - Backends: native (gogpu/wgpu hardware abstraction layer)
//
// Buffers, kernels, streams, and queries are owned by the runtime's
// internal pools and registries for their entire lifetime; callers hold
// opaque handles and never own driver objects directly.
//
// # Concurrency
//
// The runtime spawns no goroutines and provides no internal locking beyond
// its own lifecycle guard. All entry points are intended to be called from
// a single control thread; Stream.Synchronize and the transfer operations
// are the only blocking points.
package compute
