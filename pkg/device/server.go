// Device-side command loop
//
// Runs the write+verify cycle behind the wire protocol. On real hardware
// this loop lives in firmware; here it serves the mock device and the
// loopback tests, backed by any track.Peripheral.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package device

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/mfm"
	"floppytracer-go/pkg/pool"
	"floppytracer-go/pkg/precomp"
	"floppytracer-go/pkg/proto"
	"floppytracer-go/pkg/track"
)

// Server serves the device side of one link.
type Server struct {
	link Link
	per  track.Peripheral
	log  *log.Logger

	density flux.Density
}

// NewServer creates a Server on a link, backed by a peripheral.
func NewServer(link Link, per track.Peripheral, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		link:    link,
		per:     per,
		log:     logger.Component("device-srv"),
		density: flux.DensityDouble,
	}
}

func (s *Server) answer(a *proto.Answer) error {
	_, err := fmt.Fprintf(s.link, "%s\n", a.Format())
	return err
}

// Serve processes commands until the link closes or ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	rd := bufio.NewReader(s.link)
	block := make([]byte, proto.BlockSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := io.ReadFull(rd, block); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}

		switch proto.Command(block) {
		case proto.CmdConfigure:
			req, err := proto.DecodeConfigure(block)
			if err != nil {
				return err
			}
			s.density = flux.DensityDouble
			if req.HighDensity {
				s.density = flux.DensityHigh
			}
			s.log.DebugFields("configured", log.Fields{
				"high_density": req.HighDensity,
				"drive_b":      req.DriveB,
				"index_sim_hz": req.IndexSimHz,
			})

		case proto.CmdMeasureRotation:
			if err := s.answer(&proto.Answer{
				Kind:  proto.AnswerRotationTicks,
				Ticks: uint32(s.per.Disk().RevolutionTicks()),
			}); err != nil {
				return err
			}

		case proto.CmdWriteTrack:
			if err := s.handleWrite(ctx, rd, block); err != nil {
				return err
			}

		case proto.CmdReadTrack:
			if err := s.handleRead(ctx, block); err != nil {
				return err
			}

		default:
			return fmt.Errorf("device: unknown command %#x", proto.Command(block))
		}
	}
}

func (s *Server) handleWrite(ctx context.Context, rd *bufio.Reader, header []byte) error {
	req, blocks, err := proto.DecodeWriteHeader(header)
	if err != nil {
		return err
	}
	buf := make([]byte, blocks*proto.BlockSize)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return fmt.Errorf("device: read track data: %w", err)
	}
	copy(req.Data, buf)

	parts := make([]mfm.CellPart, 0, len(req.DensityMap))
	off := 0
	for _, e := range req.DensityMap {
		end := off + e.CellBytes
		if end > len(req.Data) {
			return fmt.Errorf("device: density map exceeds track data")
		}
		parts = append(parts, mfm.CellPart{
			CellWidth: e.CellWidth,
			Cells:     req.Data[off:end],
		})
		off = end
	}

	pc := req.Precomp
	job := &track.Job{
		Cylinder: req.Cylinder,
		Head:     req.Head,
		Density:  s.density,
		Timeline: mfm.TimelineFromCells(parts),
		Precomp:  &pc,
	}

	writer := track.NewWriter(s.per, precomp.NewModel(), s.log)
	verifier := track.NewVerifier(s.per, track.DefaultVerifyConfig(), s.log)
	driver := track.NewDriver(writer, verifier, s.log)

	verdict, err := driver.WriteVerify(ctx, job)
	switch {
	case err == nil:
		cw := job.CellWidth()
		s.answer(&proto.Answer{
			Kind:     proto.AnswerVerified,
			Cylinder: job.Cylinder, Head: job.Head,
			Writes: 1, Reads: 1,
			MaxErr:      int(verdict.MaxErr),
			Threshold:   int(cw * 35 / 100),
			MatchPulses: verdict.AlignOffset,
			Precomp:     int(pc),
		})
	case errors.Is(err, errors.ErrHWWriteProtect):
		return s.answer(&proto.Answer{Kind: proto.AnswerWriteProtected})
	default:
		s.answer(&proto.Answer{
			Kind:     proto.AnswerFail,
			Cylinder: job.Cylinder, Head: job.Head,
			Writes: track.MaxWrites, Reads: track.MaxReads,
			Error: string(errors.Code(err)),
		})
	}
	return s.answer(&proto.Answer{Kind: proto.AnswerGotCmd})
}

func (s *Server) handleRead(ctx context.Context, block []byte) error {
	req, err := proto.DecodeRead(block)
	if err != nil {
		return err
	}

	ring := track.NewRing(0)
	if err := s.per.BeginCapture(ctx, ring); err != nil {
		return err
	}
	defer s.per.StopCapture()

	pulses := pool.GetPulseSlice(0)
	defer func() { pool.PutPulseSlice(pulses) }()
	var total flux.Ticks
	budget := flux.Ticks(req.Duration)
	for total < budget {
		d, ok := ring.Consume()
		if !ok {
			if ring.Closed() {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		pulses = append(pulses, d)
		total += d
	}

	if _, err := fmt.Fprintf(s.link, "RawData %d\n", len(pulses)); err != nil {
		return err
	}
	raw := pool.GetByteBuffer()
	defer pool.PutByteBuffer(raw)
	var word [4]byte
	for _, d := range pulses {
		binary.LittleEndian.PutUint32(word[:], uint32(d))
		raw.Write(word[:])
	}
	_, err = s.link.Write(raw.Bytes())
	return err
}
