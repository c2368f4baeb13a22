// write subcommand
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"floppytracer-go/pkg/image"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/track"
)

func newWriteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <image>",
		Short: "Write a disk image and verify every track",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args[0])
		},
	}
}

func runWrite(cmd *cobra.Command, path string) error {
	img, err := image.Decode(path)
	if err != nil {
		return err
	}
	keep, err := parseTrackFilter(flagTracks)
	if err != nil {
		return err
	}
	img.Filter(keep)
	if len(img.Tracks) == 0 {
		return fmt.Errorf("track filter %q matches nothing in %s", flagTracks, path)
	}
	logger.InfoFields("decoded image", log.Fields{
		"path":    path,
		"tracks":  len(img.Tracks),
		"density": img.Density,
	})

	ctx := cmd.Context()
	conn, err := connect(ctx, img.Density)
	if err != nil {
		return err
	}
	defer conn.Close()

	failed := 0
	for i := range img.Tracks {
		t := &img.Tracks[i]
		job := &track.Job{
			Cylinder: t.Cylinder,
			Head:     t.Head,
			Density:  img.Density,
			Timeline: t.Timeline,
		}
		if conn.remote {
			// The device applies the shift itself; resolve the model
			// on the host and force the value.
			delta := conn.model.Lookup(job.CellWidth(), job.Cylinder)
			job.Precomp = &delta
		}

		verdict, err := conn.runner.WriteVerify(ctx, job)
		if err != nil {
			logger.ErrorFields("track failed", log.Fields{
				"cylinder": t.Cylinder, "head": t.Head, "error": err,
			})
			failed++
			continue
		}
		logger.InfoFields("track verified", log.Fields{
			"cylinder": t.Cylinder,
			"head":     t.Head,
			"max_err":  int(verdict.MaxErr),
			"offset":   verdict.AlignOffset,
		})
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d tracks failed", failed, len(img.Tracks))
	}
	logger.Info("all %d tracks written and verified", len(img.Tracks))
	return nil
}
