// Bit stream plumbing between track bytes and bit-cell processors
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

// ToBitstream feeds the bits of a byte to sink, most significant bit first.
func ToBitstream(val byte, sink func(bool)) {
	for i := 0; i < 8; i++ {
		sink(val&0x80 != 0)
		val <<= 1
	}
}

// Collector assembles a bit-cell stream back into bytes, MSB first.
// Trailing bits of an incomplete byte are never emitted.
type Collector struct {
	sink    func(byte)
	bitIdx  uint8
	working byte
}

// NewCollector creates a Collector emitting completed bytes to sink.
func NewCollector(sink func(byte)) *Collector {
	return &Collector{sink: sink}
}

// Feed adds one bit cell to the working byte.
func (c *Collector) Feed(cell bool) {
	c.working <<= 1
	if cell {
		c.working |= 1
	}
	c.bitIdx++
	if c.bitIdx == 8 {
		c.bitIdx = 0
		c.sink(c.working)
	}
}
