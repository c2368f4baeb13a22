// Wire protocol between host and tracer device
//
// Binary command framing over a byte stream. Commands are little-endian
// 32-bit words padded into 64-byte transfer blocks; track data follows the
// write command as raw blocks. Responses from the device are short text
// lines, parsed in answer.go.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package proto

import (
	"encoding/binary"
	"fmt"

	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/pool"
)

// Command words. The upper half is a magic marker so that a desynchronized
// stream never parses stray data as a command.
const (
	CmdWriteTrack      = 0x1234_0001
	CmdConfigure       = 0x1234_0002
	CmdReadTrack       = 0x1234_0004
	CmdMeasureRotation = 0x1234_0005
)

// BlockSize is the transfer granularity; a short or empty read marks the
// end of a bulk payload.
const BlockSize = pool.BlockSize

// Configure settings bits.
const (
	SettingDriveB      = 1 << 0
	SettingHighDensity = 1 << 1
)

// Write header flag bits in the track word.
const (
	flagNonFlux   = 0x200
	maxCellWidth  = 512
	headerWords   = 5
	densityShift  = 9
	densityMaxLen = (BlockSize / 4) - headerWords
)

// DensityEntry describes one stretch of the track's cell stream.
type DensityEntry struct {
	// CellWidth is the bit cell width in ticks, below 512.
	CellWidth flux.Ticks

	// CellBytes is the number of cell bytes emitted at this width.
	CellBytes int
}

// WriteRequest is the host-side description of one track write.
type WriteRequest struct {
	Cylinder int
	Head     int

	// Precomp is the forced precompensation shift in ticks.
	Precomp flux.Ticks

	// NonFlux marks tracks containing non-flux-reversal areas.
	NonFlux bool

	// DensityMap partitions Data by cell width.
	DensityMap []DensityEntry

	// Data is the raw MFM cell stream.
	Data []byte
}

// Blocks returns the number of data transfer blocks the request needs.
func (r *WriteRequest) Blocks() int {
	return (len(r.Data) + BlockSize - 1) / BlockSize
}

// EncodeHeader packs the write command into one transfer block. The caller
// owns the returned block; return it to the pool when sent.
func (r *WriteRequest) EncodeHeader() ([]byte, error) {
	if r.Head < 0 || r.Head > 1 {
		return nil, fmt.Errorf("head %d out of range", r.Head)
	}
	if r.Cylinder < 0 || r.Cylinder > 0xff {
		return nil, fmt.Errorf("cylinder %d out of range", r.Cylinder)
	}
	if r.Precomp < 0 || r.Precomp > 0xff {
		return nil, fmt.Errorf("precompensation %d out of range", r.Precomp)
	}
	if len(r.DensityMap) == 0 || len(r.DensityMap) > densityMaxLen {
		return nil, fmt.Errorf("density map length %d out of range", len(r.DensityMap))
	}

	track := uint32(r.Cylinder) | uint32(r.Head)<<8 | uint32(r.Precomp)<<16
	if r.NonFlux {
		track |= flagNonFlux
	}

	block := pool.GetBlock()
	words := []uint32{
		CmdWriteTrack,
		uint32(len(r.Data)),
		uint32(r.Blocks()),
		track,
		uint32(len(r.DensityMap)),
	}
	for _, e := range r.DensityMap {
		if e.CellWidth <= 0 || e.CellWidth >= maxCellWidth {
			pool.PutBlock(block)
			return nil, fmt.Errorf("cell width %d out of range", e.CellWidth)
		}
		words = append(words, uint32(e.CellBytes)<<densityShift|uint32(e.CellWidth))
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(block[i*4:], w)
	}
	return block, nil
}

// DecodeWriteHeader unpacks a write command block on the device side.
func DecodeWriteHeader(block []byte) (*WriteRequest, int, error) {
	if len(block) < BlockSize {
		return nil, 0, fmt.Errorf("short command block: %d bytes", len(block))
	}
	if binary.LittleEndian.Uint32(block) != CmdWriteTrack {
		return nil, 0, fmt.Errorf("not a write command")
	}
	dataLen := int(binary.LittleEndian.Uint32(block[4:]))
	blocks := int(binary.LittleEndian.Uint32(block[8:]))
	track := binary.LittleEndian.Uint32(block[12:])
	mapLen := int(binary.LittleEndian.Uint32(block[16:]))
	if mapLen <= 0 || mapLen > densityMaxLen {
		return nil, 0, fmt.Errorf("density map length %d out of range", mapLen)
	}

	r := &WriteRequest{
		Cylinder: int(track & 0xff),
		Head:     int(track >> 8 & 1),
		NonFlux:  track&flagNonFlux != 0,
		Precomp:  flux.Ticks(track >> 16 & 0xff),
	}
	for i := 0; i < mapLen; i++ {
		w := binary.LittleEndian.Uint32(block[(headerWords+i)*4:])
		r.DensityMap = append(r.DensityMap, DensityEntry{
			CellWidth: flux.Ticks(w & (maxCellWidth - 1)),
			CellBytes: int(w >> densityShift),
		})
	}
	r.Data = make([]byte, dataLen)
	return r, blocks, nil
}

// ConfigureRequest selects the drive and density and optionally enables the
// index simulator for drives without an index sensor.
type ConfigureRequest struct {
	DriveB      bool
	HighDensity bool

	// IndexSimHz emulates an index signal at this frequency; zero uses
	// the drive's real sensor.
	IndexSimHz uint32
}

// Encode packs the configure command into one transfer block.
func (r *ConfigureRequest) Encode() []byte {
	var settings uint32
	if r.DriveB {
		settings |= SettingDriveB
	}
	if r.HighDensity {
		settings |= SettingHighDensity
	}
	block := pool.GetBlock()
	binary.LittleEndian.PutUint32(block, CmdConfigure)
	binary.LittleEndian.PutUint32(block[4:], settings)
	binary.LittleEndian.PutUint32(block[8:], r.IndexSimHz)
	return block
}

// DecodeConfigure unpacks a configure command block.
func DecodeConfigure(block []byte) (*ConfigureRequest, error) {
	if len(block) < 12 || binary.LittleEndian.Uint32(block) != CmdConfigure {
		return nil, fmt.Errorf("not a configure command")
	}
	settings := binary.LittleEndian.Uint32(block[4:])
	return &ConfigureRequest{
		DriveB:      settings&SettingDriveB != 0,
		HighDensity: settings&SettingHighDensity != 0,
		IndexSimHz:  binary.LittleEndian.Uint32(block[8:]),
	}, nil
}

// ReadRequest captures raw flux from a track.
type ReadRequest struct {
	Cylinder int
	Head     int

	// WaitIndex starts the capture on the index edge.
	WaitIndex bool

	// Duration is the capture length in ticks.
	Duration uint32
}

// Encode packs the read command into one transfer block.
func (r *ReadRequest) Encode() []byte {
	sel := uint32(r.Cylinder) | uint32(r.Head)<<8
	if r.WaitIndex {
		sel |= flagNonFlux
	}
	block := pool.GetBlock()
	binary.LittleEndian.PutUint32(block, CmdReadTrack)
	binary.LittleEndian.PutUint32(block[4:], sel)
	binary.LittleEndian.PutUint32(block[8:], r.Duration)
	return block
}

// DecodeRead unpacks a read command block.
func DecodeRead(block []byte) (*ReadRequest, error) {
	if len(block) < 12 || binary.LittleEndian.Uint32(block) != CmdReadTrack {
		return nil, fmt.Errorf("not a read command")
	}
	sel := binary.LittleEndian.Uint32(block[4:])
	return &ReadRequest{
		Cylinder:  int(sel & 0xff),
		Head:      int(sel >> 8 & 1),
		WaitIndex: sel&flagNonFlux != 0,
		Duration:  binary.LittleEndian.Uint32(block[8:]),
	}, nil
}

// EncodeMeasureRotation packs the rotation measurement command.
func EncodeMeasureRotation() []byte {
	block := pool.GetBlock()
	binary.LittleEndian.PutUint32(block, CmdMeasureRotation)
	return block
}

// Command returns the command word of a block, or zero for short blocks.
func Command(block []byte) uint32 {
	if len(block) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(block)
}
