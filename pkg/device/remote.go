// Remote cycle runner
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package device

import (
	"context"

	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/track"
)

// Remote runs write+verify cycles on a connected device. It satisfies the
// same contract as the local track driver, so image writing and calibration
// work unchanged against real hardware.
type Remote struct {
	client *Client
}

// NewRemote wraps a client.
func NewRemote(client *Client) *Remote {
	return &Remote{client: client}
}

// WriteVerify streams the track to the device and maps its result line to
// a verdict. The device applies its own retry policy.
func (r *Remote) WriteVerify(ctx context.Context, job *track.Job) (track.Verdict, error) {
	if err := ctx.Err(); err != nil {
		return track.Verdict{}, err
	}
	var delta flux.Ticks
	if job.Precomp != nil {
		delta = *job.Precomp
	}
	req, err := WriteRequestFromJob(job, delta)
	if err != nil {
		return track.Verdict{}, err
	}
	a, err := r.client.WriteAndVerify(req)
	if err != nil {
		return track.Verdict{}, err
	}
	return track.Verdict{
		Matched:     true,
		AlignOffset: a.MatchPulses,
		MaxErr:      flux.Ticks(a.MaxErr),
	}, nil
}
