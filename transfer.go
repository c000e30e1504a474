package compute

import (
	"fmt"

	"github.com/gogpu/compute/gpucore"
)

// Transfer path: synchronous host<->device copies through transient staging
// buffers. These operations block the caller until the device is idle and
// do not participate in the Stream abstraction; they are simplicity-first
// control-plane paths, not to be used on the hot launch path.

// copyHostToDevice copies len(data) bytes from host memory into dst.
//
// A transient upload buffer is filled with the host bytes, an ad hoc
// one-shot recorder transitions dst to the copy-destination state, copies
// the full payload, transitions dst back to the common state, and the
// recorder is submitted followed by a device idle wait.
func copyHostToDevice(dev gpucore.Device, dst *Buffer, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	upload, err := dev.CreateBuffer(uint64(len(data)), gpucore.MemoryUpload, "upload-staging")
	if err != nil {
		return fmt.Errorf("compute: upload staging allocation failed: %w", err)
	}
	defer dev.DestroyBuffer(upload)

	m, err := dev.MapBuffer(upload)
	if err != nil {
		return fmt.Errorf("compute: map upload staging: %w", err)
	}
	copy(m, data)
	dev.UnmapBuffer(upload)

	rec, err := dev.CreateRecorder("host-to-device")
	if err != nil {
		return fmt.Errorf("compute: create transfer recorder: %w", err)
	}

	transition(rec, dst, gpucore.StateCopyDst)
	rec.CopyBuffer(dst.id, 0, upload, 0, uint64(len(data)))
	transition(rec, dst, gpucore.StateCommon)

	if err := rec.Close(); err != nil {
		return fmt.Errorf("compute: close transfer recorder: %w", err)
	}
	if _, err := dev.Submit(rec); err != nil {
		return fmt.Errorf("compute: transfer submission failed: %w", err)
	}
	if err := dev.WaitIdle(); err != nil {
		return fmt.Errorf("compute: transfer wait failed: %w", err)
	}
	return nil
}

// copyDeviceToHost copies len(dst) bytes from src into host memory.
//
// The mirror of copyHostToDevice: the copy lands in a transient readback
// buffer which is mapped after the device idle wait to extract the bytes.
func copyDeviceToHost(dev gpucore.Device, dst []byte, src *Buffer) error {
	if len(dst) == 0 {
		return nil
	}

	readback, err := dev.CreateBuffer(uint64(len(dst)), gpucore.MemoryReadback, "readback-staging")
	if err != nil {
		return fmt.Errorf("compute: readback staging allocation failed: %w", err)
	}
	defer dev.DestroyBuffer(readback)

	rec, err := dev.CreateRecorder("device-to-host")
	if err != nil {
		return fmt.Errorf("compute: create transfer recorder: %w", err)
	}

	transition(rec, src, gpucore.StateCopySrc)
	rec.CopyBuffer(readback, 0, src.id, 0, uint64(len(dst)))
	transition(rec, src, gpucore.StateCommon)

	if err := rec.Close(); err != nil {
		return fmt.Errorf("compute: close transfer recorder: %w", err)
	}
	if _, err := dev.Submit(rec); err != nil {
		return fmt.Errorf("compute: transfer submission failed: %w", err)
	}
	if err := dev.WaitIdle(); err != nil {
		return fmt.Errorf("compute: transfer wait failed: %w", err)
	}

	m, err := dev.MapBuffer(readback)
	if err != nil {
		return fmt.Errorf("compute: map readback staging: %w", err)
	}
	copy(dst, m)
	dev.UnmapBuffer(readback)
	return nil
}
