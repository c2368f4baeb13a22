// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package image

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"floppytracer-go/pkg/flux"
)

func TestDetectGeometry(t *testing.T) {
	cases := []struct {
		size      int64
		cylinders int
		sectors   int
		ok        bool
	}{
		{737_280, 80, 9, true},    // 720K PC
		{1_474_560, 80, 18, true}, // 1.44M PC
		{819_200, 80, 10, true},   // 800K Atari ST
		{901_120, 80, 11, true},   // 880K Atari ST
		{808_960, 79, 10, true},
		{123_456, 0, 0, false},
		{0, 0, 0, false},
	}
	for _, c := range cases {
		cyl, sec, err := detectGeometry(c.size)
		if c.ok && (err != nil || cyl != c.cylinders || sec != c.sectors) {
			t.Errorf("detectGeometry(%d) = (%d, %d, %v), want (%d, %d)",
				c.size, cyl, sec, err, c.cylinders, c.sectors)
		}
		if !c.ok && err == nil {
			t.Errorf("detectGeometry(%d) accepted as %dx%d", c.size, cyl, sec)
		}
	}
}

func TestInterleavingTable(t *testing.T) {
	if got := interleavingTable(9, 0); len(got) != 9 {
		t.Fatalf("table length %d", len(got))
	} else {
		for slot, index := range got {
			if index != slot {
				t.Fatalf("no interleaving: slot %d holds sector %d", slot, index)
			}
		}
	}

	// Atari 800K layout alternates sectors across slots.
	got := interleavingTable(10, 1)
	want := []int{0, 5, 1, 6, 2, 7, 3, 8, 4, 9}
	for slot := range want {
		if got[slot] != want[slot] {
			t.Fatalf("interleaving table = %v, want %v", got, want)
		}
	}
	seen := make(map[int]bool)
	for _, index := range got {
		if seen[index] {
			t.Fatalf("sector %d placed twice", index)
		}
		seen[index] = true
	}
}

func TestISODecode(t *testing.T) {
	// Two-cylinder slice sizes are not in the accepted list, so build a
	// full 720K image.
	const cylinders, sectors = 80, 9
	data := make([]byte, cylinders*isoHeads*sectors*isoSectorSize)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := Decode(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Density != flux.DensityDouble || img.Disk != flux.Disk35 {
		t.Errorf("detected %v on %v", img.Density, img.Disk)
	}
	if len(img.Tracks) != cylinders*isoHeads {
		t.Fatalf("decoded %d tracks, want %d", len(img.Tracks), cylinders*isoHeads)
	}

	for _, pos := range []struct{ cyl, head int }{{0, 0}, {0, 1}, {40, 0}, {79, 1}} {
		tr := img.TrackAt(pos.cyl, pos.head)
		if tr == nil {
			t.Fatalf("track %d/%d missing", pos.cyl, pos.head)
		}
		if err := tr.Timeline.Validate(img.Density); err != nil {
			t.Errorf("track %d/%d: %v", pos.cyl, pos.head, err)
		}
		if err := tr.Timeline.CheckRevolution(img.Disk, 0.05); err != nil {
			t.Errorf("track %d/%d: %v", pos.cyl, pos.head, err)
		}
	}
}

func TestISODecodeRejectsOddSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.img")
	if err := os.WriteFile(path, make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(path); err == nil {
		t.Error("undersized image decoded")
	}
}

func TestHighDensityDetection(t *testing.T) {
	const cylinders, sectors = 80, 18
	data := make([]byte, cylinders*isoHeads*sectors*isoSectorSize)
	path := filepath.Join(t.TempDir(), "hd.ima")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Density != flux.DensityHigh {
		t.Errorf("18-sector image detected as %v", img.Density)
	}
}

func TestForPath(t *testing.T) {
	for _, name := range []string{"a.img", "b.ST", "c.ima"} {
		d, err := ForPath(name)
		if err != nil {
			t.Errorf("ForPath(%q): %v", name, err)
			continue
		}
		if d.Name() != "iso" {
			t.Errorf("ForPath(%q) = %s", name, d.Name())
		}
	}

	_, err := ForPath("game.adf")
	if err == nil {
		t.Fatal("unknown extension accepted")
	}
	if !strings.Contains(err.Error(), ".img") {
		t.Errorf("error does not list supported formats: %v", err)
	}
}

func TestFilter(t *testing.T) {
	img := Synthetic(flux.DensityDouble, flux.Disk35, 4, 2)
	if len(img.Tracks) != 8 {
		t.Fatalf("synthetic image has %d tracks", len(img.Tracks))
	}
	img.Filter(func(cyl, head int) bool { return cyl >= 2 && head == 0 })
	if len(img.Tracks) != 2 {
		t.Fatalf("filtered to %d tracks, want 2", len(img.Tracks))
	}
	for _, tr := range img.Tracks {
		if tr.Cylinder < 2 || tr.Head != 0 {
			t.Errorf("track %d/%d survived the filter", tr.Cylinder, tr.Head)
		}
	}
	if img.TrackAt(0, 0) != nil {
		t.Error("filtered track still addressable")
	}
}

func TestSyntheticTracksVerifyable(t *testing.T) {
	img := Synthetic(flux.DensityDouble, flux.Disk35, 2, 1)
	for _, tr := range img.Tracks {
		if err := tr.Timeline.Validate(flux.DensityDouble); err != nil {
			t.Errorf("track %d: %v", tr.Cylinder, err)
		}
		if err := tr.Timeline.CheckRevolution(flux.Disk35, 0.05); err != nil {
			t.Errorf("track %d: %v", tr.Cylinder, err)
		}
	}
}
