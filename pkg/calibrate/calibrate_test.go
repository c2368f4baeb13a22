// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"context"
	"strings"
	"testing"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/track"
)

// fakeRunner scores each cell from a function instead of touching hardware.
type fakeRunner struct {
	score func(cylinder int, precomp flux.Ticks) (flux.Ticks, error)
	cells int
}

func (f *fakeRunner) WriteVerify(ctx context.Context, job *track.Job) (track.Verdict, error) {
	f.cells++
	maxErr, err := f.score(job.Cylinder, *job.Precomp)
	if err != nil {
		return track.Verdict{}, err
	}
	return track.Verdict{Matched: true, MaxErr: maxErr}, nil
}

func testSource(cylinder int) (*track.Job, error) {
	return &track.Job{Density: flux.DensityDouble}, nil
}

func TestSweepLimit(t *testing.T) {
	cases := []struct {
		density flux.Density
		disk    flux.DiskType
		want    flux.Ticks
		ok      bool
	}{
		{flux.DensityHigh, flux.Disk35, 14, true},
		{flux.DensityDouble, flux.Disk35, 22, true},
		{flux.DensityDouble, flux.Disk525, 14, true},
		{flux.DensityHigh, flux.Disk525, 0, false},
	}
	for _, c := range cases {
		got, err := SweepLimit(c.density, c.disk)
		if c.ok && (err != nil || got != c.want) {
			t.Errorf("SweepLimit(%v, %v) = (%d, %v), want %d", c.density, c.disk, got, err, c.want)
		}
		if !c.ok && err == nil {
			t.Errorf("SweepLimit(%v, %v) accepted", c.density, c.disk)
		}
	}
}

func TestSweepBestPicksMinimum(t *testing.T) {
	// Each cylinder has a known optimum; the error grows with the distance
	// from it.
	optimum := map[int]flux.Ticks{0: 1, 40: 3}
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) {
		return 2 + p.AbsDiff(optimum[cyl]), nil
	}}

	s := NewSweep(runner, nil)
	s.Cylinders = []int{0, 40}
	s.Limit = 5
	if err := s.Run(context.Background(), testSource, flux.DensityDouble, flux.Disk35); err != nil {
		t.Fatal(err)
	}
	if runner.cells != 10 {
		t.Errorf("ran %d cells, want 10", runner.cells)
	}
	if got := len(s.Results()); got != 10 {
		t.Errorf("recorded %d results, want 10", got)
	}

	best := s.Best()
	if len(best) != 2 {
		t.Fatalf("Best returned %d rows, want 2", len(best))
	}
	for _, r := range best {
		if r.Precomp != optimum[r.Cylinder] {
			t.Errorf("cylinder %d: best precomp %d, want %d", r.Cylinder, r.Precomp, optimum[r.Cylinder])
		}
		if r.MaxErr != 2 {
			t.Errorf("cylinder %d: best error %d, want 2", r.Cylinder, r.MaxErr)
		}
	}
}

func TestSweepRecordsFailedCells(t *testing.T) {
	// Cylinder 40 never verifies; its cells score failedErr and the
	// cylinder drops out of Best entirely.
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) {
		if cyl == 40 {
			return 0, errors.NoCorrelationError(0)
		}
		return 3 + p, nil
	}}

	s := NewSweep(runner, nil)
	s.Cylinders = []int{0, 40}
	s.Limit = 3
	if err := s.Run(context.Background(), testSource, flux.DensityDouble, flux.Disk35); err != nil {
		t.Fatal(err)
	}

	failed := 0
	for _, r := range s.Results() {
		if r.MaxErr == failedErr {
			failed++
		}
	}
	if failed != 3 {
		t.Errorf("%d failed cells, want 3", failed)
	}

	best := s.Best()
	if len(best) != 1 || best[0].Cylinder != 0 {
		t.Fatalf("Best = %+v, want only cylinder 0", best)
	}
	if best[0].Precomp != 0 {
		t.Errorf("best precomp %d, want 0", best[0].Precomp)
	}
}

func TestSweepAbortsOnWriteProtect(t *testing.T) {
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) {
		return 0, errors.WriteProtectError()
	}}
	s := NewSweep(runner, nil)
	s.Cylinders = []int{0}
	s.Limit = 4
	err := s.Run(context.Background(), testSource, flux.DensityDouble, flux.Disk35)
	if !errors.Is(err, errors.ErrHWWriteProtect) {
		t.Fatalf("got %v, want write protect error", err)
	}
	if runner.cells != 1 {
		t.Errorf("ran %d cells after write protect, want 1", runner.cells)
	}
}

func TestSweepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) { return 0, nil }}
	s := NewSweep(runner, nil)
	s.Cylinders = []int{0}
	s.Limit = 4
	if err := s.Run(ctx, testSource, flux.DensityDouble, flux.Disk35); err != context.Canceled {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestSweepModel(t *testing.T) {
	optimum := map[int]flux.Ticks{0: 2, 79: 6}
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) {
		return 1 + p.AbsDiff(optimum[cyl]), nil
	}}
	s := NewSweep(runner, nil)
	s.Cylinders = []int{0, 79}
	s.Limit = 8
	if err := s.Run(context.Background(), testSource, flux.DensityDouble, flux.Disk35); err != nil {
		t.Fatal(err)
	}

	m := s.Model(168)
	if got := m.Lookup(168, 0); got != 2 {
		t.Errorf("Lookup(168, 0) = %d, want 2", got)
	}
	if got := m.Lookup(168, 79); got != 6 {
		t.Errorf("Lookup(168, 79) = %d, want 6", got)
	}
}

func TestWriteCSV(t *testing.T) {
	runner := &fakeRunner{score: func(cyl int, p flux.Ticks) (flux.Ticks, error) {
		return flux.Ticks(cyl) + p, nil
	}}
	s := NewSweep(runner, nil)
	s.Cylinders = []int{10, 0}
	s.Limit = 2
	if err := s.Run(context.Background(), testSource, flux.DensityDouble, flux.Disk35); err != nil {
		t.Fatal(err)
	}

	var b strings.Builder
	if err := s.WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	want := ",0,1\n0,0,1\n10,10,11\n"
	if b.String() != want {
		t.Errorf("CSV = %q, want %q", b.String(), want)
	}
}
