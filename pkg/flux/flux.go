// Package flux holds the flux-transition data model shared by the track
// writer, the verifier and the calibrator. A flux transition is stored as an
// integer count of the 84 MHz hardware timer tick (~11.9 ns); a Timeline is
// one revolution worth of transitions for a single cylinder/head.
package flux

import (
	"fmt"
)

// Ticks is a duration expressed in hardware timer counts.
type Ticks int32

// Timer characteristics of the capture/compare peripheral.
const (
	TimerHz  = 84_000_000
	TimerMHz = 84.0
)

// Seconds converts a tick count to seconds.
func (t Ticks) Seconds() float64 {
	return float64(t) / TimerHz
}

// AbsDiff returns the magnitude of the difference between two durations.
func (t Ticks) AbsDiff(o Ticks) Ticks {
	if t > o {
		return t - o
	}
	return o - t
}

// Similar reports whether two durations differ by less than threshold.
func (t Ticks) Similar(o, threshold Ticks) bool {
	return t.AbsDiff(o) < threshold
}

// Density is the nominal recording density of a track.
type Density int

const (
	// DensityDouble covers single and double density media (250 kbit/s MFM).
	DensityDouble Density = iota
	// DensityHigh covers high density media (500 kbit/s MFM).
	DensityHigh
)

func (d Density) String() string {
	switch d {
	case DensityDouble:
		return "double"
	case DensityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// CellWidth returns the nominal MFM bit-cell width in timer ticks: 1 us for
// high density, 2 us for double density.
func (d Density) CellWidth() Ticks {
	switch d {
	case DensityHigh:
		return 84
	default:
		return 168
	}
}

// MinPulse returns the shortest physically possible transition spacing for
// the density: two bit cells, the closest reversal distance MFM produces.
// Anything below this is a producer bug, not media noise.
func (d Density) MinPulse() Ticks {
	return 2 * d.CellWidth()
}

// DiskType selects the mechanical drive geometry.
type DiskType int

const (
	Disk35 DiskType = iota // 3.5 inch
	Disk525                // 5.25 inch
)

// Drive speeds. Slightly above nominal so that a fast drive does not make a
// full timeline overrun the physical revolution.
const (
	RPM35  = 300.2
	RPM525 = 361.0
)

func (d DiskType) String() string {
	if d == Disk525 {
		return "5.25\""
	}
	return "3.5\""
}

// RPM returns the assumed rotation speed of the drive type.
func (d DiskType) RPM() float64 {
	if d == Disk525 {
		return RPM525
	}
	return RPM35
}

// RevolutionTicks returns the duration of one disk revolution in timer ticks.
func (d DiskType) RevolutionTicks() Ticks {
	return Ticks(60.0 / d.RPM() * TimerHz)
}

// RunKind tags a region of a timeline that deviates from plain MFM cells.
type RunKind int

const (
	// RunPlain is an ordinary region of MFM cells.
	RunPlain RunKind = iota
	// RunWeak marks intentionally non-deterministic cells (fuzzy bits).
	RunWeak
	// RunNoFlux marks a region without flux reversals (protection scheme).
	RunNoFlux
)

// Run describes a contiguous region of transitions sharing one nominal cell
// width. Regions are tagged per run, not per cell, to keep timelines compact.
type Run struct {
	// Start is the index of the first transition of the run.
	Start int

	// Count is the number of transitions in the run.
	Count int

	// CellWidth is the nominal bit-cell width of the run in ticks.
	CellWidth Ticks

	// Kind tags weak-bit or non-flux-reversal regions.
	Kind RunKind
}

// Timeline is an ordered sequence of flux transitions for one revolution of
// one track. Order is revolution-time order and is significant.
type Timeline struct {
	// Pulses holds the transition durations in timer ticks.
	Pulses []Ticks

	// Runs partitions Pulses into density regions. Runs must be contiguous,
	// start at zero and cover the whole pulse sequence.
	Runs []Run
}

// New constructs a uniform-density timeline from raw duration counts.
func New(pulses []Ticks, cellWidth Ticks) Timeline {
	return Timeline{
		Pulses: pulses,
		Runs:   []Run{{Start: 0, Count: len(pulses), CellWidth: cellWidth}},
	}
}

// TotalTicks returns the summed duration of the whole timeline.
func (t Timeline) TotalTicks() Ticks {
	var sum Ticks
	for _, p := range t.Pulses {
		sum += p
	}
	return sum
}

// HasNoFluxArea reports whether any run is a non-flux-reversal region.
func (t Timeline) HasNoFluxArea() bool {
	for _, r := range t.Runs {
		if r.Kind == RunNoFlux {
			return true
		}
	}
	return false
}

// Part is one density region of a timeline with its pulses resolved.
type Part struct {
	CellWidth Ticks
	Kind      RunKind
	Pulses    []Ticks
}

// Parts splits the timeline into its density regions. Validate must have
// passed for the result to be meaningful.
func (t Timeline) Parts() []Part {
	parts := make([]Part, 0, len(t.Runs))
	for _, r := range t.Runs {
		end := r.Start + r.Count
		if end > len(t.Pulses) {
			end = len(t.Pulses)
		}
		parts = append(parts, Part{
			CellWidth: r.CellWidth,
			Kind:      r.Kind,
			Pulses:    t.Pulses[r.Start:end],
		})
	}
	return parts
}

// Validate checks the structural invariants of the timeline. A zero or
// negative duration desynchronizes every downstream cell boundary, so it is
// fatal to the track and never silently dropped.
func (t Timeline) Validate(density Density) error {
	if len(t.Pulses) == 0 {
		return fmt.Errorf("flux: empty timeline")
	}
	minPulse := density.MinPulse()
	for i, p := range t.Pulses {
		if p <= 0 {
			return fmt.Errorf("flux: malformed duration %d at pulse %d", p, i)
		}
		if p < minPulse {
			return fmt.Errorf("flux: pulse %d is %d ticks, below %s density minimum %d",
				i, p, density, minPulse)
		}
	}
	offset := 0
	for i, r := range t.Runs {
		if r.Start != offset {
			return fmt.Errorf("flux: run %d starts at %d, want %d", i, r.Start, offset)
		}
		if r.Count <= 0 {
			return fmt.Errorf("flux: run %d has count %d", i, r.Count)
		}
		if r.CellWidth <= 0 {
			return fmt.Errorf("flux: run %d has cell width %d", i, r.CellWidth)
		}
		offset += r.Count
	}
	if len(t.Runs) == 0 || offset != len(t.Pulses) {
		return fmt.Errorf("flux: runs cover %d of %d pulses", offset, len(t.Pulses))
	}
	return nil
}

// ClampMin raises every pulse below the density minimum to the minimum.
// Returns the number of clamped pulses. Zero/negative pulses are not
// clampable; Validate rejects those.
func (t Timeline) ClampMin(density Density) int {
	minPulse := density.MinPulse()
	clamped := 0
	for i, p := range t.Pulses {
		if p > 0 && p < minPulse {
			t.Pulses[i] = minPulse
			clamped++
		}
	}
	return clamped
}

// CheckRevolution verifies that the timeline duration is within tolerance of
// one nominal revolution. tolerance is a fraction, e.g. 0.05 for 5%.
func (t Timeline) CheckRevolution(disk DiskType, tolerance float64) error {
	nominal := disk.RevolutionTicks()
	total := t.TotalTicks()
	diff := float64(total.AbsDiff(nominal))
	if diff > float64(nominal)*tolerance {
		return fmt.Errorf("flux: timeline duration %d ticks deviates from revolution %d beyond %.1f%%",
			total, nominal, tolerance*100)
	}
	return nil
}
