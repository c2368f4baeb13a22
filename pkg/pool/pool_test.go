// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"testing"
)

func TestPulseSliceZeroed(t *testing.T) {
	s := GetPulseSlice(100)
	if len(s) != 100 {
		t.Fatalf("length %d, want 100", len(s))
	}
	for i := range s {
		s[i] = 42
	}
	PutPulseSlice(s)

	s = GetPulseSlice(100)
	defer PutPulseSlice(s)
	for i, v := range s {
		if v != 0 {
			t.Fatalf("recycled slice not zeroed at %d: %d", i, v)
		}
	}
}

func TestPulseSliceLargeRequest(t *testing.T) {
	s := GetPulseSlice(1 << 17)
	defer PutPulseSlice(s)
	if len(s) != 1<<17 {
		t.Fatalf("length %d, want %d", len(s), 1<<17)
	}
}

func TestPutPulseSliceNil(t *testing.T) {
	PutPulseSlice(nil)
	s := GetPulseSlice(10)
	defer PutPulseSlice(s)
	if len(s) != 10 {
		t.Errorf("pool corrupted by nil return: length %d", len(s))
	}
}

func TestBlockZeroed(t *testing.T) {
	b := GetBlock()
	if len(b) != BlockSize {
		t.Fatalf("block length %d, want %d", len(b), BlockSize)
	}
	for i := range b {
		b[i] = 0xff
	}
	PutBlock(b)

	b = GetBlock()
	defer PutBlock(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("recycled block not zeroed at %d: %#x", i, v)
		}
	}
}

func TestPutBlockRejectsWrongSize(t *testing.T) {
	PutBlock(make([]byte, 10))
	PutBlock(nil)
	if b := GetBlock(); len(b) != BlockSize {
		t.Errorf("pool corrupted by foreign block: length %d", len(b))
	}
}

func TestByteBuffer(t *testing.T) {
	b := GetByteBuffer()
	if b.Len() != 0 {
		t.Fatalf("fresh buffer has length %d", b.Len())
	}
	b.Write([]byte("abc"))
	b.WriteByte('d')
	if string(b.Bytes()) != "abcd" {
		t.Fatalf("buffer = %q", b.Bytes())
	}
	b.Reset()
	if b.Len() != 0 {
		t.Error("Reset did not clear")
	}
	PutByteBuffer(b)

	b = GetByteBuffer()
	defer PutByteBuffer(b)
	if b.Len() != 0 {
		t.Errorf("recycled buffer has length %d", b.Len())
	}
}
