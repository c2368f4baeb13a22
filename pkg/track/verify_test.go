// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"context"
	"testing"
	"time"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
)

// writeAndVerify runs one write pass and one verify pass on per.
func writeAndVerify(t *testing.T, per *SimPeripheral, job *Job) (Verdict, error) {
	t.Helper()
	ctx := context.Background()
	if err := NewWriter(per, nil, nil).WriteTrack(ctx, job); err != nil {
		t.Fatalf("write pass: %v", err)
	}
	return NewVerifier(per, DefaultVerifyConfig(), nil).VerifyTrack(ctx, job)
}

func TestVerifyCleanTrack(t *testing.T) {
	per := &SimPeripheral{}
	job := testJob(t, 10)
	v, err := writeAndVerify(t, per, job)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Matched {
		t.Error("clean track did not match")
	}
	if v.MaxErr != 0 {
		t.Errorf("MaxErr = %d on a noiseless channel", v.MaxErr)
	}
	if v.AlignOffset != 0 {
		t.Errorf("AlignOffset = %d, want 0", v.AlignOffset)
	}
	if v.Compared == 0 || v.Mismatches != 0 {
		t.Errorf("Compared/Mismatches = %d/%d", v.Compared, v.Mismatches)
	}
	if v.Revolutions < 1 {
		t.Errorf("Revolutions = %d", v.Revolutions)
	}
}

func TestVerifyRecoversIndexOffset(t *testing.T) {
	// Alignment must be recovered anywhere inside the accepted offset
	// range, not only for small index jitter.
	for _, junk := range []int{0, 1, 5, 20, 60, 120, 170, 199} {
		per := &SimPeripheral{IndexOffset: junk}
		v, err := writeAndVerify(t, per, testJob(t, 40))
		if err != nil {
			t.Fatalf("offset %d: %v", junk, err)
		}
		if !v.Matched || v.AlignOffset != junk {
			t.Errorf("offset %d: Matched=%v AlignOffset=%d", junk, v.Matched, v.AlignOffset)
		}
		if v.MaxErr != 0 {
			t.Errorf("offset %d: MaxErr = %d on a noiseless channel", junk, v.MaxErr)
		}
	}
}

func TestVerifyToleratesJitter(t *testing.T) {
	per := &SimPeripheral{Jitter: 2, IndexOffset: 10}
	v, err := writeAndVerify(t, per, testJob(t, 79))
	if err != nil {
		t.Fatal(err)
	}
	if !v.Matched {
		t.Error("jittered track did not match")
	}
	if v.MaxErr > 2 {
		t.Errorf("MaxErr = %d with jitter 2", v.MaxErr)
	}
	if v.AlignOffset != 10 {
		t.Errorf("AlignOffset = %d, want 10", v.AlignOffset)
	}
}

func TestVerifyRejectsUnanchorableTimeline(t *testing.T) {
	// A constant-pattern timeline never yields a non-periodic window.
	pulses := make([]flux.Ticks, 4096)
	for i := range pulses {
		pulses[i] = 336
	}
	job := &Job{Density: flux.DensityDouble, Timeline: flux.New(pulses, 168)}

	per := &SimPeripheral{}
	per.SetWritten(pulses)
	_, err := NewVerifier(per, DefaultVerifyConfig(), nil).VerifyTrack(context.Background(), job)
	if !errors.Is(err, errors.ErrVerifyNoCorrelation) {
		t.Fatalf("got %v, want no-correlation error", err)
	}
}

func TestVerifyUnrelatedCapture(t *testing.T) {
	job := testJob(t, 0)
	// The capture carries a constant pattern unrelated to the track, so
	// every candidate offset scores alike and the match is ambiguous.
	junk := make([]flux.Ticks, 4096)
	for i := range junk {
		junk[i] = 336
	}
	per := &SimPeripheral{Capture: junk}
	_, err := NewVerifier(per, DefaultVerifyConfig(), nil).VerifyTrack(context.Background(), job)
	if !errors.Is(err, errors.ErrVerifyNoCorrelation) {
		t.Fatalf("got %v, want no-correlation error", err)
	}
}

func TestVerifyDetectsMismatch(t *testing.T) {
	per := &SimPeripheral{}
	job := testJob(t, 5)
	if err := NewWriter(per, nil, nil).WriteTrack(context.Background(), job); err != nil {
		t.Fatal(err)
	}

	// Corrupt a stretch in the middle of an otherwise perfect readback.
	capture := per.Written()
	for i := len(capture) / 2; i < len(capture)/2+4; i++ {
		capture[i] += 100
	}
	per.Capture = capture

	_, err := NewVerifier(per, DefaultVerifyConfig(), nil).VerifyTrack(context.Background(), job)
	if !errors.Is(err, errors.ErrVerifyMismatch) {
		t.Fatalf("got %v, want mismatch error", err)
	}
}

func TestVerifyTruncatedCapture(t *testing.T) {
	per := &SimPeripheral{}
	job := testJob(t, 5)
	if err := NewWriter(per, nil, nil).WriteTrack(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	per.Capture = per.Written()[:100]

	cfg := DefaultVerifyConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	_, err := NewVerifier(per, cfg, nil).VerifyTrack(context.Background(), job)
	if !errors.Is(err, errors.ErrHWNoData) {
		t.Fatalf("got %v, want no-data error", err)
	}
}

func TestVerifyDeadDrive(t *testing.T) {
	per := &SimPeripheral{DeadDrive: true}
	_, err := NewVerifier(per, DefaultVerifyConfig(), nil).VerifyTrack(context.Background(), testJob(t, 0))
	if !errors.Is(err, errors.ErrHWNoIndex) {
		t.Fatalf("got %v, want no-index error", err)
	}
}

func TestCaptureOverrunSurfaces(t *testing.T) {
	// An overrun invalidates the whole capture. The consumer must report
	// it before handing out pulses still buffered from before the loss,
	// otherwise the gap shows up later as a mismatch and sends the retry
	// logic down the wrong path.
	ring := NewRing(2)
	ring.Produce(336)
	ring.Produce(336)
	ring.Produce(336) // latches overrun

	cfg := DefaultVerifyConfig()
	sess := &capSession{ring: ring, cfg: &cfg}
	_, err := sess.next(context.Background())
	if !errors.Is(err, errors.ErrHWOverrun) {
		t.Fatalf("got %v, want overrun error", err)
	}
}

func TestUniqueWindow(t *testing.T) {
	const window = 8
	needed := flux.Ticks(29 * window)

	// Constant stream: every position looks alike.
	constant := make([]flux.Ticks, 200)
	for i := range constant {
		constant[i] = 336
	}
	if uniqueWindow(constant, 50, window, 150, needed) {
		t.Error("constant stream window reported unique")
	}

	// One distinct block in a constant stream: windows inside the block
	// anchor, windows in the constant lead do not.
	stream := make([]flux.Ticks, 200)
	copy(stream, constant)
	block := []flux.Ticks{672, 504, 336, 672, 336, 504, 672, 336, 504, 504, 672, 336}
	copy(stream[100:], block)
	if !uniqueWindow(stream, 102, window, 190, needed) {
		t.Error("window inside distinct block not unique")
	}
	if uniqueWindow(stream, 20, window, 190, needed) {
		t.Error("window in constant lead reported unique")
	}
}

func TestVerifierDefaultsOnZeroConfig(t *testing.T) {
	v := NewVerifier(&SimPeripheral{}, VerifyConfig{}, nil)
	if v.cfg.Window != 20 || v.cfg.SearchSpan != 200 {
		t.Errorf("zero config not replaced by defaults: %+v", v.cfg)
	}
}
