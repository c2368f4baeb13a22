// ISO sector track construction
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package mfm

import (
	"floppytracer-go/pkg/flux"
)

const (
	// GapByte fills the inter-record gaps of an ISO track.
	GapByte = 0x4E

	sectorDataSize = 512
)

// crc16 is the CCITT polynomial used by the ISO track format, seeded with
// 0xFFFF and covering the three sync bytes.
func crc16(crc uint16, data byte) uint16 {
	crc ^= uint16(data) << 8
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

// TrackBuilder assembles ISO MFM track records on top of an Encoder,
// keeping the record CRC current as data bytes are fed.
type TrackBuilder struct {
	enc *Encoder
	crc uint16
}

// NewTrackBuilder creates a TrackBuilder emitting cells into sink.
func NewTrackBuilder(sink func(bool)) *TrackBuilder {
	return &TrackBuilder{enc: NewEncoder(sink)}
}

// Gap emits n bytes of b.
func (t *TrackBuilder) Gap(n int, b byte) {
	for i := 0; i < n; i++ {
		t.enc.FeedByte(b)
	}
}

// SyncMark emits the triple sync mark and restarts the record CRC.
func (t *TrackBuilder) SyncMark() {
	t.crc = 0xFFFF
	for i := 0; i < 3; i++ {
		t.enc.FeedSync()
		t.crc = crc16(t.crc, SyncByte)
	}
}

// Data emits one record byte.
func (t *TrackBuilder) Data(b byte) {
	t.enc.FeedByte(b)
	t.crc = crc16(t.crc, b)
}

// CRCBytes closes the record with its CRC.
func (t *TrackBuilder) CRCBytes() {
	crc := t.crc
	t.enc.FeedByte(byte(crc >> 8))
	t.enc.FeedByte(byte(crc))
}

// BrokenCRCBytes closes the record with a deliberately wrong CRC. Some
// protection schemes expect unreadable sectors.
func (t *TrackBuilder) BrokenCRCBytes() {
	crc := t.crc + 0x5555
	t.enc.FeedByte(byte(crc >> 8))
	t.enc.FeedByte(byte(crc))
}

// SectorHeader emits a complete ID record for a sector.
func (t *TrackBuilder) SectorHeader(gap2 int, cylinder, head, sector, sizeCode byte) {
	t.Gap(gap2, 0x00)
	t.SyncMark()
	t.Data(0xFE)
	t.Data(cylinder)
	t.Data(head)
	t.Data(sector)
	t.Data(sizeCode)
	t.CRCBytes()
}

// SectorData emits a complete data record.
func (t *TrackBuilder) SectorData(gap3b int, payload []byte) {
	t.Gap(gap3b, 0x00)
	t.SyncMark()
	t.Data(0xFB)
	for _, b := range payload {
		t.Data(b)
	}
	t.CRCBytes()
}

// TrackCellBytes returns the number of cell bytes of one revolution at the
// density's nominal cell width. Cell bytes hold eight bit cells each; an
// MFM data byte spans two.
func TrackCellBytes(density flux.Density, disk flux.DiskType) int {
	return int(disk.RevolutionTicks() / density.CellWidth() / 8)
}

// SyntheticTrack generates a standard ISO MFM sector track for the given
// position. Sector payloads are a deterministic function of the position so
// that every track of a sweep carries distinct, entropy-rich data. The cell
// count is sized to one revolution at the density's nominal cell width.
func SyntheticTrack(cylinder, head int, density flux.Density, disk flux.DiskType) flux.Timeline {
	trackCellBytes := TrackCellBytes(density, disk)
	sectors := 9
	if density == flux.DensityHigh {
		sectors = 18
	}

	var cells []byte
	col := NewCollector(func(b byte) { cells = append(cells, b) })
	b := NewTrackBuilder(col.Feed)

	b.Gap(80, GapByte)
	for s := 1; s <= sectors; s++ {
		b.SectorHeader(12, byte(cylinder), byte(head), byte(s), 0x02)
		b.Gap(22, GapByte)

		seed := byte(cylinder*7 + head*31 + s*13)
		payload := make([]byte, sectorDataSize)
		for i := range payload {
			seed = seed*29 + byte(i) + 1
			payload[i] = seed
		}
		b.SectorData(12, payload)
		b.Gap(24, GapByte)
	}

	// Fill the remainder of the revolution with gap bytes.
	for len(cells) < trackCellBytes {
		b.Gap(1, GapByte)
	}

	return TimelineFromCells([]CellPart{{
		CellWidth: density.CellWidth(),
		Cells:     cells,
	}})
}
