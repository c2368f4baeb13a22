// Object pools for reducing GC pressure in hot paths
//
// Pulse slices and transfer blocks are allocated per track; with tens of
// thousands of pulses per revolution and 64-byte wire blocks these are the
// dominant allocations of a disk write.
//
// Usage:
//
//	buf := pool.GetPulseSlice(n)
//	defer pool.PutPulseSlice(buf)
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"sync"

	"floppytracer-go/pkg/flux"
)

// Pulse slices sized for a full revolution. A DD track carries roughly
// 50k transitions, HD double that.
var pulseSlicePool = sync.Pool{
	New: func() any {
		s := make([]flux.Ticks, 0, 1<<16)
		return &s
	},
}

// GetPulseSlice gets a pulse slice with length n from the pool.
func GetPulseSlice(n int) []flux.Ticks {
	sp := pulseSlicePool.Get().(*[]flux.Ticks)
	s := *sp
	if cap(s) < n {
		return make([]flux.Ticks, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = 0
	}
	return s
}

// PutPulseSlice returns a pulse slice to the pool.
func PutPulseSlice(s []flux.Ticks) {
	if s == nil || cap(s) > 1<<20 {
		return
	}
	s = s[:0]
	pulseSlicePool.Put(&s)
}

// BlockSize is the wire transfer block size.
const BlockSize = 64

var blockPool = sync.Pool{
	New: func() any {
		b := make([]byte, BlockSize)
		return &b
	},
}

// GetBlock gets a zeroed 64-byte transfer block from the pool.
func GetBlock() []byte {
	bp := blockPool.Get().(*[]byte)
	b := *bp
	for i := range b {
		b[i] = 0
	}
	return b
}

// PutBlock returns a transfer block to the pool.
func PutBlock(b []byte) {
	if cap(b) != BlockSize {
		return
	}
	b = b[:BlockSize]
	blockPool.Put(&b)
}

// ByteBuffer pool for encoding buffers.
type ByteBuffer struct {
	buf []byte
}

var byteBufferPool = sync.Pool{
	New: func() any {
		return &ByteBuffer{buf: make([]byte, 0, BlockSize)}
	},
}

// GetByteBuffer gets a byte buffer from the pool.
func GetByteBuffer() *ByteBuffer {
	b := byteBufferPool.Get().(*ByteBuffer)
	b.buf = b.buf[:0]
	return b
}

// PutByteBuffer returns a byte buffer to the pool.
func PutByteBuffer(b *ByteBuffer) {
	if b == nil || cap(b.buf) > 4096 {
		return
	}
	byteBufferPool.Put(b)
}

// Bytes returns the buffer's byte slice.
func (b *ByteBuffer) Bytes() []byte { return b.buf }

// Write appends bytes to the buffer.
func (b *ByteBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// WriteByte appends a single byte.
func (b *ByteBuffer) WriteByte(c byte) error {
	b.buf = append(b.buf, c)
	return nil
}

// Len returns the buffer length.
func (b *ByteBuffer) Len() int { return len(b.buf) }

// Reset clears the buffer.
func (b *ByteBuffer) Reset() { b.buf = b.buf[:0] }
