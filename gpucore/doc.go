// Package gpucore defines the device-facing contracts of the compute
// runtime.
//
// The runtime never touches driver objects directly. It speaks to the GPU
// through the Device, Recorder, and Compiler interfaces defined here, using
// opaque IDs for every resource. Backends (see backend/native) implement
// these interfaces over an actual GPU abstraction layer; tests implement
// them with in-memory mocks.
package gpucore
