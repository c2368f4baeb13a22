// ISO sector image decoder
//
// Raw sector dumps (PC and Atari ST) carry no geometry header; cylinder and
// sector counts are recovered from the file size. Each track is rendered
// into a full MFM cell stream with standard gap structure before conversion
// to a flux timeline.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package image

import (
	"fmt"
	"os"

	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/mfm"
)

const (
	isoHeads      = 2
	isoSectorSize = 512
)

var (
	isoCylinderCounts = []int{38, 39, 40, 41, 42, 78, 79, 80, 81, 82}
	isoSectorCounts   = []int{9, 10, 11, 18}
)

// isoGeometry holds the gap structure of one track layout.
type isoGeometry struct {
	sectors      int
	gap1         int // after index pulse, 0x4E
	gap2         int // 0x00 before sector header
	gap3a        int // 0x4E after sector header
	gap3b        int // 0x00 before data record
	gap4         int // 0x4E after data record
	gap5         int // track end filler
	interleaving int
}

func geometryFor(sectors int) isoGeometry {
	switch sectors {
	case 10:
		return isoGeometry{sectors: 10, gap1: 60, gap2: 12, gap3a: 22,
			gap3b: 12, gap4: 40, gap5: 20, interleaving: 1}
	case 11:
		return isoGeometry{sectors: 11, gap1: 10, gap2: 3, gap3a: 22,
			gap3b: 12, gap4: 1, gap5: 10, interleaving: 1}
	default:
		// standard for 9 and 18
		return isoGeometry{sectors: sectors, gap1: 60, gap2: 12, gap3a: 22,
			gap3b: 12, gap4: 40, gap5: 650}
	}
}

// detectGeometry recovers cylinder and sector counts from the image size.
func detectGeometry(size int64) (cylinders, sectors int, err error) {
	for _, c := range isoCylinderCounts {
		for _, s := range isoSectorCounts {
			if size == int64(c)*isoHeads*isoSectorSize*int64(s) {
				return c, s, nil
			}
		}
	}
	return 0, 0, fmt.Errorf("image: %d bytes does not match any known floppy geometry", size)
}

// interleavingTable maps slot position to logical sector index. Occupied
// slots are skipped forward so the table stays a permutation even when the
// stride and sector count share a factor.
func interleavingTable(sectors, interleaving int) []int {
	table := make([]int, sectors)
	for i := range table {
		table[i] = -1
	}
	slot := 0
	for index := 0; index < sectors; index++ {
		for table[slot] >= 0 {
			slot = (slot + 1) % sectors
		}
		table[slot] = index
		slot = (slot + interleaving + 1) % sectors
	}
	return table
}

// ISODecoder decodes raw PC/Atari ST sector dumps.
type ISODecoder struct{}

// Name implements Decoder.
func (ISODecoder) Name() string { return "iso" }

// Extensions implements Decoder.
func (ISODecoder) Extensions() []string { return []string{".img", ".st", ".ima"} }

// Decode implements Decoder.
func (ISODecoder) Decode(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("image: %w", err)
	}
	cylinders, sectors, err := detectGeometry(int64(len(data)))
	if err != nil {
		return nil, err
	}
	geom := geometryFor(sectors)

	density := flux.DensityDouble
	if sectors == 18 {
		density = flux.DensityHigh
	}

	img := &Image{Density: density, Disk: flux.Disk35}
	offset := 0
	for cyl := 0; cyl < cylinders; cyl++ {
		for head := 0; head < isoHeads; head++ {
			payloads := make([][]byte, geom.sectors)
			for s := 0; s < geom.sectors; s++ {
				payloads[s] = data[offset : offset+isoSectorSize]
				offset += isoSectorSize
			}
			img.Tracks = append(img.Tracks, Track{
				Cylinder: cyl,
				Head:     head,
				Timeline: isoTrack(cyl, head, geom, density, payloads),
			})
		}
	}
	return img, nil
}

func isoTrack(cylinder, head int, geom isoGeometry, density flux.Density, payloads [][]byte) flux.Timeline {
	var cells []byte
	col := mfm.NewCollector(func(b byte) { cells = append(cells, b) })
	b := mfm.NewTrackBuilder(col.Feed)

	b.Gap(geom.gap1, mfm.GapByte)
	for _, index := range interleavingTable(geom.sectors, geom.interleaving) {
		b.SectorHeader(geom.gap2, byte(cylinder), byte(head), byte(index+1), 2)
		b.Gap(geom.gap3a, mfm.GapByte)
		b.SectorData(geom.gap3b, payloads[index])
		b.Gap(geom.gap4, mfm.GapByte)
	}
	b.Gap(geom.gap5, mfm.GapByte)

	return mfm.TimelineFromCells([]mfm.CellPart{{
		CellWidth: density.CellWidth(),
		Cells:     cells,
	}})
}

func init() {
	Register(ISODecoder{})
}
