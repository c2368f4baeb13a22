// floppytracer writes and verifies floppy disk images at the flux level.
//
// Usage:
//
//	floppytracer write image.st                 # write an image to drive A
//	floppytracer write -b -t 0-9:0 image.img    # drive B, cylinders 0-9 head 0
//	floppytracer calibrate                      # write precompensation sweep
//	floppytracer measure                        # drive rotation speed
//
// Without --device or --ws the tool runs against a simulated drive, which
// is useful for checking images and exercising the pipeline.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"floppytracer-go/pkg/config"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/metrics"
)

var (
	flagConfig  string
	flagDevice  string
	flagWS      string
	flagSim     bool
	flagDriveB  bool
	flagFlippy  bool
	flagTracks  string
	flagVerbose bool
	flagJSONLog bool

	cfg    *config.TracerConfig
	logger *log.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "floppytracer",
		Short:         "Flux-level floppy disk writer and verifier",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadTracer(flagConfig)
			if err != nil {
				return err
			}
			logger = log.Default()
			if flagVerbose {
				logger.SetLevel(log.DEBUG)
			} else {
				logger.SetLevel(log.ParseLevel(cfg.LogLevel))
			}
			if flagJSONLog || cfg.LogFormat == "json" {
				logger.SetFormat(log.FormatJSON)
			} else if cfg.LogColor {
				logger.SetColorize(true)
			}

			if cfg.MetricsEnabled {
				srv := metrics.NewServer(metrics.Default(), metrics.ServerConfig{
					Address:  cfg.MetricsAddress,
					Username: cfg.MetricsUsername,
					Password: cfg.MetricsPassword,
				})
				go srv.Start()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "configuration file (default ~/.floppytracer/config.cfg)")
	pf.StringVar(&flagDevice, "device", "", "serial device path (default: auto-detect)")
	pf.StringVar(&flagWS, "ws", "", "websocket device URL (e.g. ws://localhost:8139/device)")
	pf.BoolVar(&flagSim, "sim", false, "run against a simulated drive")
	pf.BoolVarP(&flagDriveB, "b-drive", "b", false, "use drive B")
	pf.BoolVar(&flagFlippy, "flippy", false, "simulate index signal for flipped 5.25\" disks")
	pf.StringVarP(&flagTracks, "tracks", "t", "", "track filter, e.g. 0-9 or 0,2,4:1")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flagJSONLog, "log-json", false, "JSON log output")

	root.AddCommand(newWriteCmd())
	root.AddCommand(newCalibrateCmd())
	root.AddCommand(newReadCmd())
	root.AddCommand(newMeasureCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
