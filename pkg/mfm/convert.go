// Conversion between cell byte streams and flux timelines
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

import (
	"floppytracer-go/pkg/flux"
)

// CellPart is a run of bit cells, packed eight cells per byte, sharing one
// nominal cell width.
type CellPart struct {
	CellWidth flux.Ticks
	Kind      flux.RunKind
	Cells     []byte
}

// TimelineFromCells converts cell parts into a flux timeline. The resulting
// runs are indexed in pulses, attributing each pulse to the part being fed
// when it left the generator.
//
// The round trip with CellsFromTimeline is exact for every standard cell
// width as long as the cell stream ends in a reversal; trailing zero cells
// have no pulse to carry them.
func TimelineFromCells(parts []CellPart) flux.Timeline {
	var pulses []flux.Ticks
	var runs []flux.Run

	hasNoFlux := false
	for _, p := range parts {
		if p.Kind == flux.RunNoFlux {
			hasNoFlux = true
		}
	}

	gen := NewPulseGenerator(func(d flux.Ticks) {
		pulses = append(pulses, d)
	}, parts[0].CellWidth)
	if hasNoFlux {
		gen.NoFlux = true
	} else {
		gen.WeakBits = true
	}

	for _, p := range parts {
		start := len(pulses)
		gen.CellWidth = p.CellWidth
		for _, b := range p.Cells {
			ToBitstream(b, gen.Feed)
		}
		if n := len(pulses) - start; n > 0 {
			runs = append(runs, flux.Run{
				Start: start, Count: n,
				CellWidth: p.CellWidth, Kind: p.Kind,
			})
		}
	}
	gen.Flush()

	// Pulses drained by the flush belong to the final part.
	if tail := len(pulses) - (runs[len(runs)-1].Start + runs[len(runs)-1].Count); tail > 0 {
		runs[len(runs)-1].Count += tail
	}

	// The opening pulse spans write-gate-on to the first reversal; with a
	// reversal in the very first cell it comes out below the MFM minimum.
	// Stretching it only delays the track start by a fraction of a cell.
	if len(pulses) > 0 {
		if min := 2 * runs[0].CellWidth; pulses[0] < min {
			pulses[0] = min
		}
	}

	return flux.Timeline{Pulses: pulses, Runs: runs}
}

// CellsFromTimeline quantizes a flux timeline back into cell parts, one per
// timeline run. Bits of an incomplete trailing byte within a part are
// dropped.
func CellsFromTimeline(t flux.Timeline) []CellPart {
	parts := t.Parts()
	out := make([]CellPart, 0, len(parts))

	for _, p := range parts {
		var cells []byte
		col := NewCollector(func(b byte) { cells = append(cells, b) })
		p2c := NewPulseToCells(col.Feed, p.CellWidth)
		for _, d := range p.Pulses {
			p2c.Feed(d)
		}
		out = append(out, CellPart{
			CellWidth: p.CellWidth,
			Kind:      p.Kind,
			Cells:     cells,
		})
	}
	return out
}
