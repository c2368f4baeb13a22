// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

import (
	"bytes"
	"testing"

	"floppytracer-go/pkg/flux"
)

func cellsOf(feed func(sink func(bool))) []bool {
	var cells []bool
	feed(func(c bool) { cells = append(cells, c) })
	return cells
}

func cellsToWord(cells []bool) uint16 {
	var w uint16
	for _, c := range cells {
		w <<= 1
		if c {
			w |= 1
		}
	}
	return w
}

func TestBitstreamRoundTrip(t *testing.T) {
	var out []byte
	col := NewCollector(func(b byte) { out = append(out, b) })
	in := []byte{0x00, 0xFF, 0xA1, 0x4E, 0x12}
	for _, b := range in {
		ToBitstream(b, col.Feed)
	}
	if !bytes.Equal(out, in) {
		t.Errorf("round trip = %x, want %x", out, in)
	}

	// Incomplete trailing byte stays unbuffered.
	out = out[:0]
	col.Feed(true)
	if len(out) != 0 {
		t.Error("partial byte emitted")
	}
}

func TestEncodeByte(t *testing.T) {
	// 0xA1 after a zero bit encodes to 0x44A9; the sync mark is the same
	// image with one clock bit damaged.
	cells := cellsOf(func(sink func(bool)) {
		NewEncoder(sink).FeedByte(0xA1)
	})
	if len(cells) != 16 {
		t.Fatalf("got %d cells, want 16", len(cells))
	}
	if got := cellsToWord(cells); got != 0x44A9 {
		t.Errorf("MFM(0xA1) = %#04x, want 0x44A9", got)
	}

	cells = cellsOf(func(sink func(bool)) {
		NewEncoder(sink).FeedSync()
	})
	if got := cellsToWord(cells); got != SyncWord {
		t.Errorf("sync mark = %#04x, want %#04x", got, SyncWord)
	}
}

func TestEncodeClockRule(t *testing.T) {
	// Zeros after a zero carry a clock pulse, zeros after a one do not.
	cells := cellsOf(func(sink func(bool)) {
		NewEncoder(sink).FeedByte(0x00)
	})
	// First zero: lastBit starts false, so clock+no-data throughout.
	want := uint16(0xAAAA)
	if got := cellsToWord(cells); got != want {
		t.Errorf("MFM(0x00) = %#04x, want %#04x", got, want)
	}
}

func TestDecoderFraming(t *testing.T) {
	var words []Word
	dec := NewDecoder(func(w Word) { words = append(words, w) })

	enc := NewEncoder(dec.Feed)
	for i := 0; i < 12; i++ {
		enc.FeedByte(0x00)
	}
	for i := 0; i < 3; i++ {
		enc.FeedSync()
	}
	for _, b := range []byte{0xFE, 0x12, 0x34} {
		enc.FeedByte(b)
	}

	if len(words) != 4 {
		t.Fatalf("got %d words, want 4: %+v", len(words), words)
	}
	if !words[0].Sync {
		t.Error("first word is not the sync mark")
	}
	for i, want := range []byte{0xFE, 0x12, 0x34} {
		if words[i+1].Sync || words[i+1].Data != want {
			t.Errorf("word %d = %+v, want data %#02x", i+1, words[i+1], want)
		}
	}
}

func TestPulseToCellsQuantization(t *testing.T) {
	cw := flux.Ticks(168)
	tests := []struct {
		duration flux.Ticks
		want     []bool
	}{
		{2 * cw, []bool{false, true}},
		{3 * cw, []bool{false, false, true}},
		{2*cw + cw/2 - 1, []bool{false, true}},
		{2*cw + cw/2 + 1, []bool{false, false, true}},
	}
	for _, tt := range tests {
		var got []bool
		p2c := NewPulseToCells(func(c bool) { got = append(got, c) }, cw)
		p2c.Feed(tt.duration)
		if len(got) != len(tt.want) {
			t.Errorf("Feed(%d): %d cells, want %d", tt.duration, len(got), len(tt.want))
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("Feed(%d): cell %d = %v, want %v", tt.duration, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCellRoundTrip(t *testing.T) {
	// Encode a record-shaped byte run. 0xFF in front keeps the first bit
	// cell clear, 0xA1 at the end leaves the stream on a reversal, so the
	// trip loses no cells at either edge.
	var cells []byte
	col := NewCollector(func(b byte) { cells = append(cells, b) })
	enc := NewEncoder(col.Feed)
	for _, b := range []byte{0xFF, 0x00, 0xFE, 0x12, 0x34, 0x56, 0x78, 0xA1} {
		enc.FeedByte(b)
	}

	tl := TimelineFromCells([]CellPart{{CellWidth: 168, Cells: cells}})
	if err := tl.Validate(flux.DensityDouble); err != nil {
		t.Fatalf("generated timeline invalid: %v", err)
	}

	back := CellsFromTimeline(tl)
	if len(back) != 1 {
		t.Fatalf("got %d parts, want 1", len(back))
	}
	if !bytes.Equal(back[0].Cells, cells) {
		t.Errorf("round trip cells differ:\n got %x\nwant %x", back[0].Cells, cells)
	}
}

func TestPulseGeneratorPrecomp(t *testing.T) {
	var cells []byte
	col := NewCollector(func(b byte) { cells = append(cells, b) })
	enc := NewEncoder(col.Feed)
	// Data with 2-cell and 3-cell spacings back to back, the pattern that
	// engages precompensation.
	for _, b := range []byte{0x00, 0xDB, 0x6D, 0xB6, 0xDB, 0xA1} {
		enc.FeedByte(b)
	}

	gen := func(precomp flux.Ticks) []flux.Ticks {
		var pulses []flux.Ticks
		g := NewPulseGenerator(func(d flux.Ticks) { pulses = append(pulses, d) }, 168)
		g.Precomp = precomp
		for _, b := range cells {
			ToBitstream(b, g.Feed)
		}
		g.Flush()
		return pulses
	}

	plain := gen(0)
	shifted := gen(7)
	if len(plain) != len(shifted) {
		t.Fatalf("pulse count changed: %d vs %d", len(plain), len(shifted))
	}

	var sumPlain, sumShifted flux.Ticks
	moved := 0
	for i := range plain {
		sumPlain += plain[i]
		sumShifted += shifted[i]
		switch d := shifted[i] - plain[i]; d {
		case 0:
		case 7, -7, 14, -14:
			moved++
		default:
			t.Errorf("pulse %d moved by %d, want multiple of 7", i, d)
		}
	}
	if moved == 0 {
		t.Error("no pulse was precompensated")
	}
	// The shift is phase-neutral: total track length is unchanged.
	if sumPlain != sumShifted {
		t.Errorf("total duration changed: %d vs %d", sumPlain, sumShifted)
	}

	// Precompensated pulses still quantize back to the same cells.
	tl := flux.New(shifted, 168)
	back := CellsFromTimeline(tl)
	if !bytes.Equal(back[0].Cells, cells) {
		t.Error("precompensated pulses decode to different cells")
	}
}

func TestTrackBuilderCRC(t *testing.T) {
	var words []Word
	dec := NewDecoder(func(w Word) { words = append(words, w) })
	b := NewTrackBuilder(dec.Feed)

	b.SectorHeader(12, 5, 1, 3, 0x02)

	var record []byte
	for _, w := range words {
		if w.Sync {
			record = record[:0]
			record = append(record, SyncByte, SyncByte, SyncByte)
			continue
		}
		record = append(record, w.Data)
	}
	if len(record) != 3+5+2 {
		t.Fatalf("record length %d, want 10", len(record))
	}
	if record[3] != 0xFE || record[4] != 5 || record[5] != 1 || record[6] != 3 || record[7] != 0x02 {
		t.Errorf("ID record fields wrong: %x", record)
	}
	// CRC over the record including its CRC bytes comes out zero.
	crc := uint16(0xFFFF)
	for _, d := range record {
		crc = crc16(crc, d)
	}
	if crc != 0 {
		t.Errorf("record CRC residue %#04x, want 0", crc)
	}
}

func TestSyntheticTrack(t *testing.T) {
	for _, tt := range []struct {
		density flux.Density
		disk    flux.DiskType
		sectors int
	}{
		{flux.DensityDouble, flux.Disk35, 9},
		{flux.DensityHigh, flux.Disk35, 18},
	} {
		tl := SyntheticTrack(40, 1, tt.density, tt.disk)
		if err := tl.Validate(tt.density); err != nil {
			t.Fatalf("%v: invalid timeline: %v", tt.density, err)
		}
		if err := tl.CheckRevolution(tt.disk, 0.05); err != nil {
			t.Errorf("%v: %v", tt.density, err)
		}

		parts := CellsFromTimeline(tl)
		var words []Word
		dec := NewDecoder(func(w Word) { words = append(words, w) })
		for _, b := range parts[0].Cells {
			ToBitstream(b, dec.Feed)
		}

		syncs, headers := 0, 0
		for i, w := range words {
			if !w.Sync {
				continue
			}
			syncs++
			if i+4 < len(words) && words[i+1].Data == 0xFE {
				headers++
				if words[i+2].Data != 40 || words[i+3].Data != 1 {
					t.Errorf("%v: header cyl/head = %d/%d, want 40/1",
						tt.density, words[i+2].Data, words[i+3].Data)
				}
			}
		}
		if headers != tt.sectors {
			t.Errorf("%v: %d ID records, want %d", tt.density, headers, tt.sectors)
		}
		if syncs != 2*tt.sectors {
			t.Errorf("%v: %d sync marks, want %d", tt.density, syncs, 2*tt.sectors)
		}
	}
}
