package track

import (
	"context"

	"floppytracer-go/pkg/flux"
)

// Peripheral is the owned handle for the drive-facing hardware: the index
// sensor, the pulse-emission timer and the timestamp-capture unit. It is
// passed into Writer and Verifier constructors so tests can substitute a
// simulated implementation; nothing reaches the hardware through ambient
// state.
type Peripheral interface {
	// Disk returns the mechanical type of the mounted drive.
	Disk() flux.DiskType

	// WriteProtected reports the drive's write-protect sense line.
	WriteProtected() bool

	// WaitIndex blocks until the leading edge of the next index pulse.
	WaitIndex(ctx context.Context) error

	// BeginWrite arms pulse emission. Emission starts on the index edge
	// following the first committed pulses, never before; the returned
	// sink reports underruns when the emission buffer starves.
	BeginWrite(ctx context.Context) (PulseSink, error)

	// BeginCapture arms timestamp capture of incoming flux transitions
	// into ring, starting at the next index edge. The producer side runs
	// autonomously (hardware DMA) until StopCapture.
	BeginCapture(ctx context.Context, ring *Ring) error

	// StopCapture halts a running capture.
	StopCapture()
}

// PulseSink accepts the precompensated pulse schedule during a write pass.
type PulseSink interface {
	// Emit queues one pulse duration for emission.
	Emit(d flux.Ticks) error

	// Close completes the write pass and disengages the write gate.
	Close() error
}
