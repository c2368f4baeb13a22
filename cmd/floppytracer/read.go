// read and measure subcommands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/pool"
	"floppytracer-go/pkg/proto"
)

func newReadCmd() *cobra.Command {
	var (
		cylinder    int
		head        int
		revolutions int
		highDensity bool
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Capture raw flux transitions from a track",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			density := flux.DensityDouble
			if highDensity {
				density = flux.DensityHigh
			}
			return runRead(cmd, density, cylinder, head, revolutions, outPath)
		},
	}
	cmd.Flags().IntVarP(&cylinder, "cylinder", "c", 0, "cylinder to read")
	cmd.Flags().IntVar(&head, "head", 0, "head to read")
	cmd.Flags().IntVar(&revolutions, "revs", 2, "number of revolutions to capture")
	cmd.Flags().BoolVar(&highDensity, "hd", false, "select high density")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default track_<c>_<h>.flux)")
	return cmd
}

func runRead(cmd *cobra.Command, density flux.Density, cylinder, head, revolutions int, outPath string) error {
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

	pulses, err := conn.client.ReadTrack(&proto.ReadRequest{
		Cylinder:  cylinder,
		Head:      head,
		WaitIndex: true,
		Duration:  uint32(disk.RevolutionTicks()) * uint32(revolutions),
	})
	if err != nil {
		return err
	}
	defer pool.PutPulseSlice(pulses)
	logger.InfoFields("captured track", log.Fields{
		"cylinder": cylinder, "head": head, "pulses": len(pulses),
	})

	if outPath == "" {
		outPath = fmt.Sprintf("track_%d_%d.flux", cylinder, head)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, d := range pulses {
		fmt.Fprintf(w, "%d\n", int(d))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("wrote %d pulse durations to %s", len(pulses), outPath)
	return nil
}

func newMeasureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "measure",
		Short: "Measure the drive's rotation speed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := connect(cmd.Context(), flux.DensityDouble)
			if err != nil {
				return err
			}
			defer conn.Close()

			ticks, err := conn.client.MeasureRotation()
			if err != nil {
				return err
			}
			secs := ticks.Seconds()
			fmt.Printf("Rotation: %d ticks, %.3f ms, %.2f RPM\n",
				int(ticks), secs*1e3, 60/secs)
			return nil
		},
	}
}
