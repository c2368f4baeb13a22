// mock-tracer serves a simulated tracer device over websocket for testing
// the host without hardware. It speaks the full device protocol:
// - Configure (drive select, density, index simulation)
// - WriteTrack with autonomous write+verify
// - ReadTrack raw flux capture
// - MeasureRotation
//
// The simulated channel can inject jitter, index misalignment and a write
// protect tab, so host-side retry and error paths can be exercised.
//
// Usage:
//
//	mock-tracer -addr :8139 [-jitter 2] [-protect] [-trace]
//
// Connect the host with: floppytracer --ws ws://localhost:8139/device ...
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"floppytracer-go/pkg/device"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/track"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The mock accepts any origin; it only ever runs on a test host.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	var (
		addr        = flag.String("addr", ":8139", "listen address")
		disk        = flag.String("disk", "3.5", "simulated disk type (3.5 or 5.25)")
		jitter      = flag.Int("jitter", 0, "per-pulse capture noise in ticks")
		indexOffset = flag.Int("index-offset", 0, "junk pulses before the capture")
		protect     = flag.Bool("protect", false, "engage the write protect tab")
		trace       = flag.Bool("trace", false, "debug logging")
	)
	flag.Parse()

	logger := log.Default()
	if *trace {
		logger.SetLevel(log.DEBUG)
	}

	var diskType flux.DiskType
	switch *disk {
	case "3.5":
		diskType = flux.Disk35
	case "5.25":
		diskType = flux.Disk525
	default:
		fmt.Fprintf(os.Stderr, "unknown disk type %q\n", *disk)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/device", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("websocket upgrade: %v", err)
			return
		}
		logger.Info("host connected from %s", r.RemoteAddr)

		// Each connection gets its own drive state.
		per := &track.SimPeripheral{
			DiskType:    diskType,
			Jitter:      flux.Ticks(*jitter),
			IndexOffset: *indexOffset,
			Protected:   *protect,
		}
		link := device.NewWSLink(conn)
		defer link.Close()
		if err := device.NewServer(link, per, logger).Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("session ended: %v", err)
		}
		logger.Info("host disconnected")
	})

	srv := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	logger.Info("mock tracer listening on %s (disk %s, jitter %d)", *addr, *disk, *jitter)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
