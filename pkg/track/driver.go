// Write+verify cycle driver
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"context"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/metrics"
)

// Retry policy for one track. A verification failure first suspects the
// read side and re-reads; only persistent failure triggers a rewrite.
const (
	// MaxWrites bounds the write passes per track.
	MaxWrites = 5

	// MaxReads bounds the verification reads per write pass.
	MaxReads = 3
)

// Driver runs complete write+verify cycles with the retry policy applied.
type Driver struct {
	writer   *Writer
	verifier *Verifier
	log      *log.Logger
	metrics  *metrics.Registry
}

// NewDriver wires a writer and verifier sharing one peripheral.
func NewDriver(writer *Writer, verifier *Verifier, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default()
	}
	return &Driver{
		writer:   writer,
		verifier: verifier,
		log:      logger.Component("track"),
		metrics:  metrics.Default(),
	}
}

// WriteVerify writes job's track and verifies it, retrying per the policy:
// a mismatch or lost correlation re-reads first, then rewrites; capture
// overruns and emission underruns restart the whole cycle; data errors,
// write protection and a dead drive abort immediately. The returned verdict
// is from the final successful read.
func (d *Driver) WriteVerify(ctx context.Context, job *Job) (Verdict, error) {
	var lastErr error

	for write := 1; write <= MaxWrites; write++ {
		if err := ctx.Err(); err != nil {
			return Verdict{}, err
		}
		if err := d.writer.WriteTrack(ctx, job); err != nil {
			d.metrics.WriteRetries.Inc()
			if !errors.Retryable(err) {
				return Verdict{}, err
			}
			d.log.WarnFields("write pass failed, rewriting", log.Fields{
				"cylinder": job.Cylinder,
				"head":     job.Head,
				"attempt":  write,
				"error":    errors.Code(err),
			})
			lastErr = err
			continue
		}
		d.metrics.TracksWritten.Inc()

		rewrite := false
		for read := 1; read <= MaxReads && !rewrite; read++ {
			verdict, err := d.verifier.VerifyTrack(ctx, job)
			if err == nil {
				d.metrics.TracksVerified.Inc()
				d.report(job, verdict, write, read)
				return verdict, nil
			}
			if ctx.Err() != nil {
				return Verdict{}, ctx.Err()
			}
			lastErr = err

			switch errors.Code(err) {
			case errors.ErrVerifyMismatch:
				// Most mismatches are read-side noise; burn the
				// read budget before rewriting.
				d.metrics.ReadRetries.Inc()
				d.log.WarnFields("readback mismatch, re-reading", log.Fields{
					"cylinder": job.Cylinder, "head": job.Head,
					"write": write, "read": read,
				})
			case errors.ErrVerifyNoCorrelation:
				// One re-read covers a flaky index edge. If the
				// track cannot be located twice it was probably
				// never written correctly.
				d.metrics.ReadRetries.Inc()
				if read >= 2 {
					rewrite = true
				}
				d.log.WarnFields("no correlation", log.Fields{
					"cylinder": job.Cylinder, "head": job.Head,
					"write": write, "read": read, "rewrite": rewrite,
				})
			case errors.ErrHWOverrun, errors.ErrHWUnderrun:
				d.metrics.HardwareFaults.Inc()
				rewrite = true
				d.log.WarnFields("timing fault, restarting cycle", log.Fields{
					"cylinder": job.Cylinder, "head": job.Head,
					"error": errors.Code(err),
				})
			default:
				// Dead drive, write protect, data errors: no
				// retry can help.
				return Verdict{}, err
			}
		}
	}

	d.metrics.TracksFailed.Inc()
	d.log.ErrorFields("track failed after all retries", log.Fields{
		"cylinder": job.Cylinder,
		"head":     job.Head,
		"error":    errors.Code(lastErr),
	})
	return Verdict{}, lastErr
}

func (d *Driver) report(job *Job, v Verdict, write, read int) {
	d.metrics.ObserveMaxErr(v.MaxErr.Seconds() * 1e9)
	d.log.InfoFields("track ok", log.Fields{
		"cylinder": job.Cylinder,
		"head":     job.Head,
		"offset":   v.AlignOffset,
		"max_err":  v.MaxErr,
		"writes":   write,
		"reads":    read,
	})
}
