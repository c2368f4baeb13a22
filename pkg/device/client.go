// Host-side client of the tracer device
//
// The device owns the real-time write+verify loop; the host streams track
// data ahead of it and collects result lines. Commands and track data go
// out as 64-byte blocks, responses come back as newline-terminated text.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package device

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
	"floppytracer-go/pkg/metrics"
	"floppytracer-go/pkg/mfm"
	"floppytracer-go/pkg/pool"
	"floppytracer-go/pkg/proto"
	"floppytracer-go/pkg/track"
)

// Client drives a tracer device over a Link.
type Client struct {
	link    Link
	rd      *bufio.Reader
	log     *log.Logger
	metrics *metrics.Registry
}

// NewClient creates a Client on an open link.
func NewClient(link Link, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		link:    link,
		rd:      bufio.NewReader(link),
		log:     logger.Component("device"),
		metrics: metrics.Default(),
	}
}

// Close closes the underlying link.
func (c *Client) Close() error {
	return c.link.Close()
}

func (c *Client) sendBlock(block []byte) error {
	defer pool.PutBlock(block)
	n, err := c.link.Write(block)
	c.metrics.BytesSent.Add(float64(n))
	return err
}

// Configure selects drive and density on the device.
func (c *Client) Configure(req *proto.ConfigureRequest) error {
	return c.sendBlock(req.Encode())
}

// WriteRequestFromJob renders a job's timeline back into the cell stream
// and density map the device consumes.
func WriteRequestFromJob(job *track.Job, delta flux.Ticks) (*proto.WriteRequest, error) {
	parts := mfm.CellsFromTimeline(job.Timeline)
	if len(parts) == 0 {
		return nil, errors.TimelineError(nil).SetTrack(job.Cylinder, job.Head)
	}
	req := &proto.WriteRequest{
		Cylinder: job.Cylinder,
		Head:     job.Head,
		Precomp:  delta,
		NonFlux:  job.Timeline.HasNoFluxArea(),
	}
	for _, p := range parts {
		req.DensityMap = append(req.DensityMap, proto.DensityEntry{
			CellWidth: p.CellWidth,
			CellBytes: len(p.Cells),
		})
		req.Data = append(req.Data, p.Cells...)
	}
	return req, nil
}

// SendWrite streams a write request: the header block, then the track data
// in 64-byte blocks. The device verifies autonomously; collect the outcome
// with ReadAnswer.
func (c *Client) SendWrite(req *proto.WriteRequest) error {
	header, err := req.EncodeHeader()
	if err != nil {
		return err
	}
	if err := c.sendBlock(header); err != nil {
		return err
	}

	c.log.DebugFields("streaming track", log.Fields{
		"cylinder": req.Cylinder,
		"head":     req.Head,
		"bytes":    len(req.Data),
		"blocks":   req.Blocks(),
	})
	for off := 0; off < len(req.Data); off += proto.BlockSize {
		block := pool.GetBlock()
		copy(block, req.Data[off:])
		if err := c.sendBlock(block); err != nil {
			return err
		}
	}
	return nil
}

// ReadAnswer reads and parses one response line.
func (c *Client) ReadAnswer() (*proto.Answer, error) {
	line, err := c.rd.ReadString('\n')
	c.metrics.BytesReceived.Add(float64(len(line)))
	if err != nil {
		return nil, fmt.Errorf("device: read answer: %w", err)
	}
	return proto.ParseAnswer(line)
}

// WriteAndVerify streams one track and waits for its outcome, consuming
// the ready marker that follows.
func (c *Client) WriteAndVerify(req *proto.WriteRequest) (*proto.Answer, error) {
	if err := c.SendWrite(req); err != nil {
		return nil, err
	}
	for {
		a, err := c.ReadAnswer()
		if err != nil {
			return nil, err
		}
		switch a.Kind {
		case proto.AnswerGotCmd:
			continue
		case proto.AnswerWriteProtected:
			return a, errors.WriteProtectError().SetTrack(req.Cylinder, req.Head)
		case proto.AnswerVerified:
			c.readReady()
			return a, nil
		case proto.AnswerFail:
			c.readReady()
			return a, errors.Newf(errors.ErrVerifyMismatch, "device: %s", a.Error).
				SetTrack(a.Cylinder, a.Head)
		default:
			return nil, fmt.Errorf("device: unexpected answer %q", a.Format())
		}
	}
}

// readReady consumes the ready marker that follows every write outcome.
// Leaving it in the stream would desynchronize the next command.
func (c *Client) readReady() {
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return
	}
	c.metrics.BytesReceived.Add(float64(len(line)))
	if a, err := proto.ParseAnswer(line); err == nil && a.Kind != proto.AnswerGotCmd {
		c.log.Warn("unexpected answer while draining: %s", a.Format())
	}
}

// MeasureRotation asks the device for the drive's revolution duration.
func (c *Client) MeasureRotation() (flux.Ticks, error) {
	if err := c.sendBlock(proto.EncodeMeasureRotation()); err != nil {
		return 0, err
	}
	a, err := c.ReadAnswer()
	if err != nil {
		return 0, err
	}
	if a.Kind != proto.AnswerRotationTicks {
		return 0, fmt.Errorf("device: unexpected answer %q", a.Format())
	}
	return flux.Ticks(a.Ticks), nil
}

// ReadTrack captures raw flux from a track. The device answers with a
// length line followed by the capture as little-endian 32-bit durations.
// The returned slice comes from the shared pulse pool; callers done with
// it may hand it back with pool.PutPulseSlice.
func (c *Client) ReadTrack(req *proto.ReadRequest) ([]flux.Ticks, error) {
	if err := c.sendBlock(req.Encode()); err != nil {
		return nil, err
	}
	line, err := c.rd.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("device: read answer: %w", err)
	}
	c.metrics.BytesReceived.Add(float64(len(line)))
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "RawData ") {
		return nil, fmt.Errorf("device: unexpected answer %q", line)
	}
	count, err := strconv.Atoi(strings.TrimPrefix(line, "RawData "))
	if err != nil || count < 0 {
		return nil, fmt.Errorf("device: bad capture length %q", line)
	}

	raw := make([]byte, count*4)
	if _, err := io.ReadFull(c.rd, raw); err != nil {
		return nil, fmt.Errorf("device: read capture: %w", err)
	}
	c.metrics.BytesReceived.Add(float64(len(raw)))

	pulses := pool.GetPulseSlice(count)
	for i := range pulses {
		pulses[i] = flux.Ticks(uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 |
			uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24)
	}
	return pulses, nil
}
