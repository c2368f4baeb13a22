// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package device

import (
	"context"
	"net"
	"testing"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/mfm"
	"floppytracer-go/pkg/pool"
	"floppytracer-go/pkg/proto"
	"floppytracer-go/pkg/track"
)

// loopback wires a client to an in-process server over a pipe, the same
// arrangement the CLI uses in simulation mode.
func loopback(t *testing.T, per track.Peripheral) *Client {
	t.Helper()
	host, dev := net.Pipe()
	srv := NewServer(dev, per, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		host.Close()
		dev.Close()
		<-done
	})
	return NewClient(host, nil)
}

func syntheticJob(t *testing.T, cylinder int) *track.Job {
	t.Helper()
	tl := mfm.SyntheticTrack(cylinder, 0, flux.DensityDouble, flux.Disk35)
	if err := tl.Validate(flux.DensityDouble); err != nil {
		t.Fatalf("synthetic track invalid: %v", err)
	}
	return &track.Job{Cylinder: cylinder, Density: flux.DensityDouble, Timeline: tl}
}

func TestWriteRequestFromJob(t *testing.T) {
	job := syntheticJob(t, 17)
	req, err := WriteRequestFromJob(job, 6)
	if err != nil {
		t.Fatal(err)
	}
	if req.Cylinder != 17 || req.Head != 0 || req.Precomp != 6 {
		t.Errorf("request fields = %+v", req)
	}
	if req.NonFlux {
		t.Error("synthetic track flagged as non-flux")
	}
	if len(req.DensityMap) != 1 || req.DensityMap[0].CellWidth != 168 {
		t.Fatalf("density map = %+v", req.DensityMap)
	}
	if req.DensityMap[0].CellBytes != len(req.Data) {
		t.Errorf("map covers %d bytes, data has %d", req.DensityMap[0].CellBytes, len(req.Data))
	}
}

func TestLoopbackWriteAndVerify(t *testing.T) {
	per := &track.SimPeripheral{}
	client := loopback(t, per)

	job := syntheticJob(t, 7)
	req, err := WriteRequestFromJob(job, 3)
	if err != nil {
		t.Fatal(err)
	}
	a, err := client.WriteAndVerify(req)
	if err != nil {
		t.Fatal(err)
	}
	if a.Kind != proto.AnswerVerified {
		t.Fatalf("answer = %s", a.Format())
	}
	if a.Cylinder != 7 || a.Precomp != 3 {
		t.Errorf("answer fields = %+v", a)
	}

	// The stream stays in sync for the next command.
	if _, err := client.MeasureRotation(); err != nil {
		t.Fatalf("command after verify: %v", err)
	}
}

func TestLoopbackWriteProtected(t *testing.T) {
	per := &track.SimPeripheral{Protected: true}
	client := loopback(t, per)

	req, err := WriteRequestFromJob(syntheticJob(t, 0), 0)
	if err != nil {
		t.Fatal(err)
	}
	a, err := client.WriteAndVerify(req)
	if !errors.Is(err, errors.ErrHWWriteProtect) {
		t.Fatalf("got %v, want write protect error", err)
	}
	if a == nil || a.Kind != proto.AnswerWriteProtected {
		t.Errorf("answer = %+v", a)
	}
}

func TestLoopbackWriteFailure(t *testing.T) {
	junk := make([]flux.Ticks, 4096)
	for i := range junk {
		junk[i] = 336
	}
	per := &track.SimPeripheral{Capture: junk}
	client := loopback(t, per)

	req, err := WriteRequestFromJob(syntheticJob(t, 0), 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := client.WriteAndVerify(req); err == nil {
		t.Fatal("uncorrelatable track verified")
	}

	if _, err := client.MeasureRotation(); err != nil {
		t.Fatalf("command after failure: %v", err)
	}
}

func TestLoopbackMeasureRotation(t *testing.T) {
	client := loopback(t, &track.SimPeripheral{})
	ticks, err := client.MeasureRotation()
	if err != nil {
		t.Fatal(err)
	}
	if want := flux.Disk35.RevolutionTicks(); ticks != want {
		t.Errorf("rotation = %d ticks, want %d", ticks, want)
	}
}

func TestLoopbackReadTrack(t *testing.T) {
	per := &track.SimPeripheral{}
	pulses := make([]flux.Ticks, 1000)
	for i := range pulses {
		pulses[i] = 336
	}
	per.SetWritten(pulses)
	client := loopback(t, per)

	got, err := client.ReadTrack(&proto.ReadRequest{
		WaitIndex: true,
		Duration:  336 * 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 490 || len(got) > 510 {
		t.Fatalf("captured %d pulses, want about 500", len(got))
	}
	for i, d := range got {
		if d != 336 {
			t.Fatalf("pulse %d = %d, want 336", i, d)
		}
	}
}

func TestReadTrackRecyclesPulseSlices(t *testing.T) {
	// Captures come out of the pulse pool; a recycled slice must not
	// leak length or data from an earlier, longer capture.
	per := &track.SimPeripheral{}
	pulses := make([]flux.Ticks, 1000)
	for i := range pulses {
		pulses[i] = 336
	}
	per.SetWritten(pulses)
	client := loopback(t, per)

	first, err := client.ReadTrack(&proto.ReadRequest{WaitIndex: true, Duration: 336 * 400})
	if err != nil {
		t.Fatal(err)
	}
	firstLen := len(first)
	pool.PutPulseSlice(first)

	second, err := client.ReadTrack(&proto.ReadRequest{WaitIndex: true, Duration: 336 * 100})
	if err != nil {
		t.Fatal(err)
	}
	defer pool.PutPulseSlice(second)
	if len(second) >= firstLen {
		t.Fatalf("second capture %d pulses, want fewer than %d", len(second), firstLen)
	}
	for i, d := range second {
		if d != 336 {
			t.Fatalf("pulse %d = %d, want 336", i, d)
		}
	}
}

func TestRemoteWriteVerify(t *testing.T) {
	per := &track.SimPeripheral{}
	client := loopback(t, per)
	remote := NewRemote(client)

	job := syntheticJob(t, 40)
	pc := flux.Ticks(4)
	job.Precomp = &pc
	v, err := remote.WriteVerify(context.Background(), job)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Matched {
		t.Error("remote verdict not matched")
	}
	if v.MaxErr != 0 {
		t.Errorf("MaxErr = %d on a noiseless channel", v.MaxErr)
	}
}
