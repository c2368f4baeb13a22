package track

import (
	"floppytracer-go/pkg/flux"
)

// Job is one track write+verify request. It owns its timeline for the
// duration of one cycle; the verifier never mutates it.
type Job struct {
	// Cylinder and Head select the physical track.
	Cylinder int
	Head     int

	// Density is the cell-width class of the track.
	Density flux.Density

	// Timeline is the flux data to write, produced by an image decoder.
	Timeline flux.Timeline

	// Precomp overrides the model lookup when non-nil. Used by the
	// calibration sweep to force grid candidates.
	Precomp *flux.Ticks
}

// CellWidth returns the nominal cell width of the job's leading run. Tracks
// with protection-driven odd cell widths carry them in the timeline runs
// rather than the density class.
func (j *Job) CellWidth() flux.Ticks {
	if len(j.Timeline.Runs) > 0 {
		return j.Timeline.Runs[0].CellWidth
	}
	return j.Density.CellWidth()
}

// Verdict is the outcome of one verification pass. Immutable once produced;
// aborted attempts yield an error instead of a verdict.
type Verdict struct {
	// Matched reports whether the physical track matches the timeline.
	Matched bool

	// AlignOffset is the capture offset, in pulses, where the expected
	// timeline was located. -1 when alignment was never found.
	AlignOffset int

	// MaxErr is the largest single-transition error observed, in ticks.
	MaxErr flux.Ticks

	// Revolutions is the number of disk revolutions consumed.
	Revolutions int

	// Compared counts the transitions checked against the reference.
	Compared int

	// Mismatches counts transitions outside the similarity tolerance.
	Mismatches int
}
