// Drive connection plumbing shared by the subcommands
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"floppytracer-go/pkg/calibrate"
	"floppytracer-go/pkg/config"
	"floppytracer-go/pkg/device"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/precomp"
	"floppytracer-go/pkg/proto"
	"floppytracer-go/pkg/serial"
	"floppytracer-go/pkg/track"
)

func diskType() (flux.DiskType, error) {
	switch cfg.DiskType {
	case "3.5":
		return flux.Disk35, nil
	case "5.25":
		return flux.Disk525, nil
	}
	return 0, fmt.Errorf("unknown disk type %q", cfg.DiskType)
}

func verifyConfig() track.VerifyConfig {
	vc := track.DefaultVerifyConfig()
	vc.Window = cfg.VerifyWindow
	vc.SearchSpan = cfg.VerifySearchSpan
	vc.OffsetMin = cfg.VerifyOffsetMin
	vc.OffsetMax = cfg.VerifyOffsetMax
	vc.RingSize = cfg.VerifyRings
	vc.ReadTimeout = cfg.ReadTimeout
	return vc
}

// loadModel reads the precompensation samples; a missing file yields an
// empty model, which looks up as zero everywhere.
func loadModel() (*precomp.Model, error) {
	path := cfg.PrecompPath
	if path == "" {
		path = config.DefaultPrecompPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return precomp.NewModel(), nil
	}
	return precomp.Load(path)
}

// connection bundles the write+verify runner with the raw device client.
// In simulated mode the client talks to an in-process device server over a
// pipe, so every code path matches the hardware one.
type connection struct {
	runner calibrate.CycleRunner
	client *device.Client
	model  *precomp.Model

	// remote is true when the device applies precompensation itself and
	// the host must resolve the model per job.
	remote bool

	cleanup []func() error
}

func (c *connection) Close() {
	for i := len(c.cleanup) - 1; i >= 0; i-- {
		c.cleanup[i]()
	}
}

func connect(ctx context.Context, density flux.Density) (*connection, error) {
	disk, err := diskType()
	if err != nil {
		return nil, err
	}
	model, err := loadModel()
	if err != nil {
		return nil, err
	}

	deviceName := flagDevice
	if deviceName == "" {
		deviceName = cfg.Device
	}
	simulated := flagSim || (flagWS == "" && deviceName == "")

	if simulated {
		per := &track.SimPeripheral{DiskType: disk}
		writer := track.NewWriter(per, model, logger)
		verifier := track.NewVerifier(per, verifyConfig(), logger)
		driver := track.NewDriver(writer, verifier, logger)

		host, dev := net.Pipe()
		srv := device.NewServer(dev, per, logger)
		go srv.Serve(ctx)

		logger.Info("using simulated %s drive", cfg.DiskType)
		return &connection{
			runner:  driver,
			client:  device.NewClient(host, logger),
			model:   model,
			cleanup: []func() error{host.Close, dev.Close},
		}, nil
	}

	var link device.Link
	if flagWS != "" {
		ws, err := device.DialWS(flagWS)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to %s", flagWS)
		link = ws
	} else {
		resolved, err := serial.ResolveDevice(deviceName)
		if err != nil {
			return nil, err
		}
		scfg := serial.DefaultConfig()
		scfg.Device = resolved
		scfg.BaudRate = cfg.Baud
		scfg.ReadTimeout = cfg.ReadTimeout
		port, err := serial.Open(scfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to %s", resolved)
		link = port
	}

	client := device.NewClient(link, logger)
	conn := &connection{
		runner:  device.NewRemote(client),
		client:  client,
		model:   model,
		remote:  true,
		cleanup: []func() error{client.Close},
	}

	req := &proto.ConfigureRequest{
		DriveB:      flagDriveB || cfg.DriveB,
		HighDensity: density == flux.DensityHigh,
	}
	if flagFlippy {
		// Flipped disks hide the index hole from the sensor; let the
		// device fake the signal at the rotation frequency.
		req.IndexSimHz = uint32(disk.RPM()/60 + 0.5)
	}
	if err := client.Configure(req); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
