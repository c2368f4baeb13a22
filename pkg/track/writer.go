// Track writer: flux timeline to physical pulse schedule
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"context"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/precomp"
)

// Default writer tuning.
const (
	// DefaultRevTolerance is the accepted deviation of a timeline from
	// one nominal revolution. Beyond this the upstream decoder is buggy.
	DefaultRevTolerance = 0.05

	// DefaultPadPulses is the number of 2-cell pad pulses appended after
	// the payload. The freshly erased tail of the track would otherwise
	// carry no reversals, stalling the capture unit for a revolution
	// when verification starts.
	DefaultPadPulses = 32
)

// Writer converts flux timelines into precompensated pulse schedules and
// emits them through the peripheral, synchronized to the index pulse.
type Writer struct {
	per   Peripheral
	model *precomp.Model
	log   *log.Logger

	// RevTolerance overrides DefaultRevTolerance when non-zero.
	RevTolerance float64

	// PadPulses overrides DefaultPadPulses when non-negative.
	PadPulses int
}

// NewWriter creates a Writer bound to a peripheral and a precompensation
// model. The model is read only here; only the calibrator mutates it.
func NewWriter(per Peripheral, model *precomp.Model, logger *log.Logger) *Writer {
	if model == nil {
		model = precomp.NewModel()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Writer{
		per:       per,
		model:     model,
		log:       logger.Component("write"),
		PadPulses: -1,
	}
}

// cellsOf quantizes a duration to whole bit cells.
func cellsOf(d, cellWidth flux.Ticks) int {
	return int((d + cellWidth/2) / cellWidth)
}

// Schedule computes the emission schedule for a timeline: every nominal
// duration shifted by the precompensation delta where a 2-cell reversal
// neighbours a longer one. Reversals spaced that closely repel each other on
// the media; the early/late nudge compensates. The correction is mirrored
// onto the following pulse so the cell phase never drifts. Weak-bit and
// non-flux runs are emitted untouched.
func Schedule(t flux.Timeline, delta flux.Ticks) []flux.Ticks {
	out := make([]flux.Ticks, len(t.Pulses))
	copy(out, t.Pulses)
	if delta == 0 {
		return out
	}

	for _, r := range t.Runs {
		if r.Kind != flux.RunPlain {
			continue
		}
		end := r.Start + r.Count
		for i := r.Start; i < end-1; i++ {
			// Classify on the nominal durations, not the already
			// adjusted ones.
			cur := cellsOf(t.Pulses[i], r.CellWidth)
			next := cellsOf(t.Pulses[i+1], r.CellWidth)
			switch {
			case cur >= 3 && next == 2:
				// A close reversal follows: delay this one.
				out[i] += delta
				out[i+1] -= delta
			case cur == 2 && next >= 3:
				// A close reversal preceded: emit earlier.
				out[i] -= delta
				out[i+1] += delta
			}
		}
	}
	return out
}

// Delta resolves the precompensation shift for a job, honoring the job's
// override if present.
func (w *Writer) Delta(job *Job) flux.Ticks {
	if job.Precomp != nil {
		return *job.Precomp
	}
	return w.model.Lookup(job.CellWidth(), job.Cylinder)
}

// WriteTrack writes one track in a single pass, without re-reading.
// Emission begins at the index edge after arming; data errors are fatal to
// the track, underruns are recoverable by retrying the cycle.
func (w *Writer) WriteTrack(ctx context.Context, job *Job) error {
	if w.per.WriteProtected() {
		return errors.WriteProtectError().SetTrack(job.Cylinder, job.Head)
	}
	if err := job.Timeline.Validate(job.Density); err != nil {
		return errors.TimelineError(err).SetTrack(job.Cylinder, job.Head)
	}
	tol := w.RevTolerance
	if tol == 0 {
		tol = DefaultRevTolerance
	}
	if err := job.Timeline.CheckRevolution(w.per.Disk(), tol); err != nil {
		return errors.RevolutionError(err).SetTrack(job.Cylinder, job.Head)
	}

	delta := w.Delta(job)
	schedule := Schedule(job.Timeline, delta)

	w.log.DebugFields("write track", log.Fields{
		"cylinder": job.Cylinder,
		"head":     job.Head,
		"pulses":   len(schedule),
		"precomp":  delta,
	})

	sink, err := w.per.BeginWrite(ctx)
	if err != nil {
		return err
	}
	for _, d := range schedule {
		if err := sink.Emit(d); err != nil {
			sink.Close()
			if traceErr, ok := err.(*errors.TraceError); ok {
				return traceErr.SetTrack(job.Cylinder, job.Head)
			}
			return err
		}
		if ctx.Err() != nil {
			sink.Close()
			return ctx.Err()
		}
	}

	// Pad the erased tail so the verifier's capture never starves.
	pad := w.PadPulses
	if pad < 0 {
		pad = DefaultPadPulses
	}
	cw := job.CellWidth()
	for i := 0; i < pad; i++ {
		if err := sink.Emit(2 * cw); err != nil {
			sink.Close()
			return err
		}
	}
	return sink.Close()
}
