// calibrate subcommand
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"github.com/spf13/cobra"

	"floppytracer-go/pkg/calibrate"
	"floppytracer-go/pkg/config"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/mfm"
	"floppytracer-go/pkg/track"
)

func newCalibrateCmd() *cobra.Command {
	var (
		highDensity bool
		limit       int
		csvPath     string
		savePath    string
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Sweep write precompensation and save the resulting model",
		Long: `Writes a synthetic test track at every grid point of (cylinder,
precompensation shift) and records the worst transition error the verifier
observed. The per-cylinder optimum becomes the precompensation model used
by later writes; the raw grid goes to a CSV file for inspection.

The sweep destroys the disk's contents. Use a scratch disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			density := flux.DensityDouble
			if highDensity {
				density = flux.DensityHigh
			}
			return runCalibrate(cmd, density, flux.Ticks(limit), csvPath, savePath)
		},
	}
	cmd.Flags().BoolVar(&highDensity, "hd", false, "calibrate at high density")
	cmd.Flags().IntVar(&limit, "limit", 0, "sweep limit override in ticks")
	cmd.Flags().StringVar(&csvPath, "csv", "", "grid CSV output path")
	cmd.Flags().StringVar(&savePath, "save", "", "precompensation model output path")
	return cmd
}

func runCalibrate(cmd *cobra.Command, density flux.Density, limit flux.Ticks, csvPath, savePath string) error {
	disk, err := diskType()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	conn, err := connect(ctx, density)
	if err != nil {
		return err
	}
	defer conn.Close()

	sweep := calibrate.NewSweep(conn.runner, logger)
	sweep.Cylinders = cfg.CalibrationCylinders
	sweep.Limit = limit

	source := func(cylinder int) (*track.Job, error) {
		return &track.Job{
			Cylinder: cylinder,
			Density:  density,
			Timeline: mfm.SyntheticTrack(cylinder, 0, density, disk),
		}, nil
	}
	if err := sweep.Run(ctx, source, density, disk); err != nil {
		return err
	}

	if csvPath == "" {
		csvPath = cfg.CalibrationCSV
	}
	if err := sweep.SaveCSV(csvPath); err != nil {
		return err
	}
	logger.Info("wrote calibration grid to %s", csvPath)

	if savePath == "" {
		savePath = cfg.PrecompPath
		if savePath == "" {
			savePath = config.DefaultPrecompPath()
		}
	}
	model := sweep.Model(density.CellWidth())
	if err := model.Save(savePath); err != nil {
		return err
	}
	logger.InfoFields("saved precompensation model", log.Fields{
		"path":    savePath,
		"samples": model.Len(),
	})
	for _, r := range sweep.Best() {
		logger.Info("cylinder %2d: precomp %d (max_err %d)", r.Cylinder, int(r.Precomp), int(r.MaxErr))
	}
	return nil
}
