// Bit cells to flux pulse conversion with write precompensation
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

import (
	"floppytracer-go/pkg/flux"
)

// PulseGenerator converts a stream of bit cells into flux pulse durations.
//
// It keeps a shift register of the last bit cells so that every emitted pulse
// is decided with two cells of past and two cells of future context. That
// window is what makes write precompensation possible: a flux reversal with a
// closely spaced neighbour is nudged away from it, since reversals written
// too close together repel each other on the media. The same window drives
// the weak-bit and non-flux-reversal generators used by protected tracks.
type PulseGenerator struct {
	sink func(flux.Ticks)

	// CellWidth is the nominal bit-cell width in timer ticks. May be
	// changed between cells when a timeline switches density.
	CellWidth flux.Ticks

	// Precomp is the precompensation shift applied to closely spaced
	// reversals. Zero disables precompensation.
	Precomp flux.Ticks

	// WeakBits enables the weak-bit generator: a cell-less region is
	// filled with 2.5-cell pulses that read back non-deterministically.
	WeakBits bool

	// NoFlux enables the non-flux-reversal generator: a cell-less region
	// is emitted as one long pulse without reversals.
	NoFlux bool

	accum   flux.Ticks
	shift   uint32
	special bool
}

// NewPulseGenerator creates a generator emitting pulse durations to sink.
func NewPulseGenerator(sink func(flux.Ticks), cellWidth flux.Ticks) *PulseGenerator {
	return &PulseGenerator{
		sink:      sink,
		CellWidth: cellWidth,
		// The shift register delays output by 5 cells; start the
		// accumulator in the past so the first pulse is not stretched.
		accum: -5 * cellWidth,
	}
}

// Feed consumes one bit cell. Pulses appear on the sink with a 5-cell delay.
func (g *PulseGenerator) Feed(cell bool) {
	g.accum += g.CellWidth

	g.shift <<= 1
	if cell {
		g.shift |= 1
	}

	if g.special {
		g.feedSpecial()
		return
	}

	// Center of the 5-cell window carries a reversal?
	if g.shift&0b0010_0000 == 0 {
		return
	}

	// A long stretch with no upcoming reversal arms the special
	// generators for weak bits or non-flux areas.
	if g.shift&0b01_1111 == 0 && (g.WeakBits || g.NoFlux) {
		g.special = true
	}

	var next flux.Ticks
	switch (g.shift >> 3) & 0b1_1111 {
	case 0b00101:
		// A close reversal follows: delay the current one.
		g.accum += g.Precomp
		next = -g.Precomp
	case 0b10100:
		// A close reversal preceded: emit this one earlier.
		g.accum -= g.Precomp
		next = g.Precomp
	}

	g.sink(g.accum)
	// Carry the correction in the opposite direction so the following
	// pulse keeps its phase.
	g.accum = next
}

func (g *PulseGenerator) feedSpecial() {
	if g.WeakBits {
		weakLen := g.CellWidth*2 + g.CellWidth/2
		if g.accum >= weakLen {
			g.sink(weakLen)
			g.accum -= weakLen
		}
		// Upcoming data ends the weak region.
		if g.shift&0b0001_1000 != 0 {
			g.special = false
		}
	} else if g.NoFlux {
		g.sink(g.accum)
		g.accum = 0
		// A reversal in the window center ends the region and becomes
		// the terminating pulse.
		if g.shift&0b0010_0000 != 0 {
			g.special = false
		}
	}
}

// Flush drains the shift register so the final pulses reach the sink.
func (g *PulseGenerator) Flush() {
	g.WeakBits = false
	g.NoFlux = false

	if g.shift&0b1_1111 != 0 {
		for i := 0; i < 5; i++ {
			g.Feed(false)
		}
	}
}

// PulseToCells converts flux pulse durations back into quantized bit cells.
// The inverse of PulseGenerator for all standard cell widths; the round trip
// is exact as long as jitter stays below half a cell.
type PulseToCells struct {
	sink func(bool)

	// CellWidth is the nominal bit-cell width in timer ticks.
	CellWidth flux.Ticks
}

// NewPulseToCells creates a converter emitting bit cells to sink.
func NewPulseToCells(sink func(bool), cellWidth flux.Ticks) *PulseToCells {
	return &PulseToCells{sink: sink, CellWidth: cellWidth}
}

// Feed consumes one pulse duration and emits its bit cells.
func (p *PulseToCells) Feed(duration flux.Ticks) {
	for duration > p.CellWidth+p.CellWidth/2 {
		duration -= p.CellWidth
		p.sink(false)
	}
	p.sink(true)
}
