// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package flux

import (
	"strings"
	"testing"
)

func TestTicksAbsDiff(t *testing.T) {
	tests := []struct {
		a, b, want Ticks
	}{
		{100, 100, 0},
		{100, 97, 3},
		{97, 100, 3},
		{0, 168, 168},
	}
	for _, tt := range tests {
		if got := tt.a.AbsDiff(tt.b); got != tt.want {
			t.Errorf("AbsDiff(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTicksSimilar(t *testing.T) {
	// Threshold is exclusive: a difference equal to it does not match.
	if !Ticks(100).Similar(129, 30) {
		t.Error("diff 29 under threshold 30 should match")
	}
	if Ticks(100).Similar(130, 30) {
		t.Error("diff 30 at threshold 30 should not match")
	}
}

func TestDensityCellWidth(t *testing.T) {
	if got := DensityHigh.CellWidth(); got != 84 {
		t.Errorf("high density cell width = %d, want 84", got)
	}
	if got := DensityDouble.CellWidth(); got != 168 {
		t.Errorf("double density cell width = %d, want 168", got)
	}
	if got := DensityDouble.MinPulse(); got != 336 {
		t.Errorf("double density min pulse = %d, want 336", got)
	}
}

func TestRevolutionTicks(t *testing.T) {
	// 300.2 RPM is just under 200 ms per revolution.
	rev := Disk35.RevolutionTicks()
	if rev < 16_700_000 || rev > 16_800_000 {
		t.Errorf("3.5\" revolution = %d ticks, want about 16.79M", rev)
	}
	rev = Disk525.RevolutionTicks()
	if rev < 13_900_000 || rev > 14_000_000 {
		t.Errorf("5.25\" revolution = %d ticks, want about 13.96M", rev)
	}
}

func TestValidate(t *testing.T) {
	cw := DensityDouble.CellWidth()
	good := New([]Ticks{2 * cw, 3 * cw, 4 * cw}, cw)
	if err := good.Validate(DensityDouble); err != nil {
		t.Fatalf("valid timeline rejected: %v", err)
	}

	tests := []struct {
		name string
		tl   Timeline
		want string
	}{
		{"empty", Timeline{}, "empty"},
		{"negative", New([]Ticks{2 * cw, -1}, cw), "malformed"},
		{"zero", New([]Ticks{0, 2 * cw}, cw), "malformed"},
		{"short pulse", New([]Ticks{2 * cw, cw}, cw), "minimum"},
		{
			"gap between runs",
			Timeline{
				Pulses: []Ticks{2 * cw, 2 * cw},
				Runs:   []Run{{Start: 1, Count: 1, CellWidth: cw}},
			},
			"starts at",
		},
		{
			"uncovered tail",
			Timeline{
				Pulses: []Ticks{2 * cw, 2 * cw},
				Runs:   []Run{{Start: 0, Count: 1, CellWidth: cw}},
			},
			"cover",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tl.Validate(DensityDouble)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestClampMin(t *testing.T) {
	cw := DensityHigh.CellWidth()
	tl := New([]Ticks{2 * cw, 2*cw - 1, 3 * cw, 1}, cw)
	if got := tl.ClampMin(DensityHigh); got != 2 {
		t.Fatalf("clamped %d pulses, want 2", got)
	}
	want := []Ticks{2 * cw, 2 * cw, 3 * cw, 2 * cw}
	for i, p := range tl.Pulses {
		if p != want[i] {
			t.Errorf("pulse %d = %d, want %d", i, p, want[i])
		}
	}
	// Zero stays zero so Validate still catches it.
	tl = New([]Ticks{0, 2 * cw}, cw)
	tl.ClampMin(DensityHigh)
	if tl.Pulses[0] != 0 {
		t.Error("zero pulse must not be clamped")
	}
}

func TestCheckRevolution(t *testing.T) {
	cw := DensityDouble.CellWidth()
	rev := Disk35.RevolutionTicks()
	n := int(rev / (2 * cw))
	pulses := make([]Ticks, n)
	for i := range pulses {
		pulses[i] = 2 * cw
	}
	tl := New(pulses, cw)
	if err := tl.CheckRevolution(Disk35, 0.05); err != nil {
		t.Fatalf("full revolution rejected: %v", err)
	}

	half := New(pulses[:n/2], cw)
	if err := half.CheckRevolution(Disk35, 0.05); err == nil {
		t.Fatal("half revolution accepted")
	}
}

func TestPartsAndNoFlux(t *testing.T) {
	tl := Timeline{
		Pulses: []Ticks{336, 336, 504, 5000, 336},
		Runs: []Run{
			{Start: 0, Count: 3, CellWidth: 168},
			{Start: 3, Count: 1, CellWidth: 168, Kind: RunNoFlux},
			{Start: 4, Count: 1, CellWidth: 168},
		},
	}
	if err := tl.Validate(DensityDouble); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !tl.HasNoFluxArea() {
		t.Error("HasNoFluxArea = false")
	}
	parts := tl.Parts()
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want 3", len(parts))
	}
	if parts[1].Kind != RunNoFlux || len(parts[1].Pulses) != 1 || parts[1].Pulses[0] != 5000 {
		t.Errorf("no-flux part wrong: %+v", parts[1])
	}
	if tl.TotalTicks() != 336+336+504+5000+336 {
		t.Errorf("TotalTicks = %d", tl.TotalTicks())
	}
}
