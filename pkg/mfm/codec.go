// MFM encoding and decoding
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

// ISO sync mark. The MFM image of 0xA1 with one clock bit suppressed, so it
// can never appear in regular data:
//
//	Data  1 0 1 0 0 0 0 1   0xA1
//	Clk  0 0 0 0 1 1 1 0
//	MFM  0100010010101001   0x44A9 regular encoding
//	Sync 0100010010001001   0x4489 with damaged clock bit
const (
	SyncWord uint16 = 0x4489
	SyncByte byte   = 0xA1
)

// Encoder converts data bytes into an MFM bit-cell stream.
type Encoder struct {
	sink    func(bool)
	lastBit bool
}

// NewEncoder creates an Encoder emitting bit cells to sink.
func NewEncoder(sink func(bool)) *Encoder {
	return &Encoder{sink: sink}
}

func (e *Encoder) encodeBit(one bool) {
	if one {
		e.sink(false) // clock
		e.sink(true)  // data
		e.lastBit = true
		return
	}
	if e.lastBit {
		e.sink(false)
		e.sink(false)
	} else {
		e.sink(true)
		e.sink(false)
	}
	e.lastBit = false
}

// FeedByte MFM-encodes one data byte, MSB first.
func (e *Encoder) FeedByte(val byte) {
	for i := 0; i < 8; i++ {
		e.encodeBit(val&0x80 != 0)
		val <<= 1
	}
}

// FeedRaw16 emits 16 raw bit cells without clock generation.
func (e *Encoder) FeedRaw16(val uint16) {
	e.lastBit = val&0x0001 != 0
	for i := 0; i < 16; i++ {
		e.sink(val&0x8000 != 0)
		val <<= 1
	}
}

// FeedSync emits the ISO sync mark.
func (e *Encoder) FeedSync() {
	e.FeedRaw16(SyncWord)
	e.lastBit = true
}

// Word is one decoded MFM item: either a data byte or a sync mark.
type Word struct {
	Sync bool
	Data byte
}

// Decoder extracts data bytes from an MFM bit-cell stream. Byte framing
// locks onto a triple sync mark.
type Decoder struct {
	sink       func(Word)
	syncBuffer uint64
	byteBuffer byte
	shiftCount uint8
	inSync     bool

	// SyncDetect can be cleared once framing is established to avoid
	// false sync hits inside data.
	SyncDetect bool
}

// NewDecoder creates a Decoder emitting words to sink.
func NewDecoder(sink func(Word)) *Decoder {
	return &Decoder{sink: sink, SyncDetect: true}
}

// Feed consumes one bit cell.
func (d *Decoder) Feed(cell bool) {
	if d.SyncDetect {
		d.syncBuffer <<= 1
		if cell {
			d.syncBuffer |= 1
		}
		if d.syncBuffer&0xffff_ffff_ffff == 0x4489_4489_4489 {
			d.inSync = true
			d.shiftCount = 0
			d.byteBuffer = 0
			d.sink(Word{Sync: true})
			return
		}
	}

	if d.inSync {
		if d.shiftCount&1 == 1 {
			d.byteBuffer <<= 1
			if cell {
				d.byteBuffer |= 1
			}
		}
		d.shiftCount++
		if d.shiftCount == 16 {
			d.shiftCount = 0
			d.sink(Word{Data: d.byteBuffer})
		}
	}
}
