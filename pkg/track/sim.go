// Simulated timer/capture peripheral
//
// Stands in for the real drive hardware in tests, calibration dry runs and
// the mock device. The capture side replays the last written track with
// configurable index jitter and per-pulse noise, or an arbitrary injected
// pulse sequence.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
)

// SimPeripheral is a software model of the drive-facing hardware.
// The zero value is a working 3.5" drive with a perfect channel.
type SimPeripheral struct {
	// DiskType selects the simulated drive geometry.
	DiskType flux.DiskType

	// Jitter adds deterministic pseudo-random noise of up to +/-Jitter
	// ticks to every replayed pulse.
	Jitter flux.Ticks

	// IndexOffset prepends this many junk pulses to the capture,
	// modelling the imprecision of the index edge.
	IndexOffset int

	// Capture, when non-nil, replaces the replayed track entirely.
	Capture []flux.Ticks

	// Protected simulates an engaged write-protect tab.
	Protected bool

	// DeadDrive makes WaitIndex fail, simulating a drive that never
	// spins up.
	DeadDrive bool

	// UnderrunAfter forces the pulse sink to starve after this many
	// emitted pulses. Zero disables the fault.
	UnderrunAfter int

	// Flood makes the capture producer ignore ring occupancy, forcing
	// an overrun.
	Flood bool

	mu      sync.Mutex
	written []flux.Ticks
	rng     uint64
	stop    atomic.Bool
	wg      sync.WaitGroup
}

// Disk implements Peripheral.
func (s *SimPeripheral) Disk() flux.DiskType { return s.DiskType }

// WriteProtected implements Peripheral.
func (s *SimPeripheral) WriteProtected() bool { return s.Protected }

// WaitIndex implements Peripheral.
func (s *SimPeripheral) WaitIndex(ctx context.Context) error {
	if s.DeadDrive {
		return errors.NoIndexError()
	}
	return ctx.Err()
}

// Written returns the pulses of the last completed write pass.
func (s *SimPeripheral) Written() []flux.Ticks {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]flux.Ticks, len(s.written))
	copy(out, s.written)
	return out
}

// SetWritten primes the replay buffer without a write pass.
func (s *SimPeripheral) SetWritten(pulses []flux.Ticks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written[:0], pulses...)
}

func (s *SimPeripheral) rand() uint64 {
	// xorshift64, deterministic across runs
	if s.rng == 0 {
		s.rng = 0x9E3779B97F4A7C15
	}
	s.rng ^= s.rng << 13
	s.rng ^= s.rng >> 7
	s.rng ^= s.rng << 17
	return s.rng
}

func (s *SimPeripheral) noise(d flux.Ticks) flux.Ticks {
	if s.Jitter <= 0 {
		return d
	}
	span := uint64(2*s.Jitter + 1)
	return d + flux.Ticks(s.rand()%span) - s.Jitter
}

type simSink struct {
	s       *SimPeripheral
	emitted int
	pulses  []flux.Ticks
}

// Emit implements PulseSink.
func (k *simSink) Emit(d flux.Ticks) error {
	k.emitted++
	if k.s.UnderrunAfter > 0 && k.emitted > k.s.UnderrunAfter {
		return errors.UnderrunError(k.emitted)
	}
	k.pulses = append(k.pulses, d)
	return nil
}

// Close implements PulseSink.
func (k *simSink) Close() error {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	k.s.written = k.pulses
	return nil
}

// BeginWrite implements Peripheral.
func (s *SimPeripheral) BeginWrite(ctx context.Context) (PulseSink, error) {
	if err := s.WaitIndex(ctx); err != nil {
		return nil, err
	}
	return &simSink{s: s}, nil
}

// BeginCapture implements Peripheral. The producer goroutine plays the role
// of the capture DMA: it runs until StopCapture, pacing itself on ring
// occupancy exactly like the hardware paces itself on the disk rotation.
func (s *SimPeripheral) BeginCapture(ctx context.Context, ring *Ring) error {
	if s.DeadDrive {
		return errors.NoIndexError()
	}
	s.stop.Store(false)

	var replay []flux.Ticks
	if s.Capture != nil {
		replay = s.Capture
	} else {
		s.mu.Lock()
		base := append([]flux.Ticks(nil), s.written...)
		s.mu.Unlock()

		for i := 0; i < s.IndexOffset; i++ {
			// Junk pulses from the previous track state: random
			// 2..4 cell gaps at roughly the written density.
			unit := flux.Ticks(168)
			if len(base) > 0 {
				unit = base[0] / 2
				if unit < 42 {
					unit = 42
				}
			}
			replay = append(replay, unit*flux.Ticks(2+s.rand()%3))
		}
		// Two revolutions of the written data, fresh noise each time.
		for rev := 0; rev < 2; rev++ {
			for _, d := range base {
				replay = append(replay, s.noise(d))
			}
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ring.Close()
		for _, d := range replay {
			if s.stop.Load() || ctx.Err() != nil {
				return
			}
			if s.Flood {
				ring.Produce(d)
				continue
			}
			// The real DMA is paced by the disk rotation; pace on
			// ring occupancy instead of wall time.
			for ring.Free() == 0 {
				if s.stop.Load() || ctx.Err() != nil {
					return
				}
				runtime.Gosched()
			}
			ring.Produce(d)
		}
	}()
	return nil
}

// StopCapture implements Peripheral.
func (s *SimPeripheral) StopCapture() {
	s.stop.Store(true)
	s.wg.Wait()
}
