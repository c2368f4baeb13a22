// Device response lines
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package proto

import (
	"fmt"
	"strconv"
	"strings"
)

// AnswerKind discriminates device responses.
type AnswerKind int

const (
	// AnswerGotCmd acknowledges a command; the device is ready for the
	// next one.
	AnswerGotCmd AnswerKind = iota

	// AnswerVerified reports a successful write+verify cycle.
	AnswerVerified

	// AnswerFail reports a track that exhausted its retries.
	AnswerFail

	// AnswerWriteProtected reports an engaged write-protect tab.
	AnswerWriteProtected

	// AnswerRotationTicks reports a measured revolution duration.
	AnswerRotationTicks
)

// Answer is one parsed device response.
type Answer struct {
	Kind AnswerKind

	Cylinder int
	Head     int
	Writes   int
	Reads    int

	// Verified diagnostics
	MaxErr      int
	Threshold   int
	MatchPulses int
	Precomp     int

	// Fail reason
	Error string

	// Rotation measurement
	Ticks uint32
}

// Format renders the answer as its wire line.
func (a *Answer) Format() string {
	switch a.Kind {
	case AnswerGotCmd:
		return "GotCmd"
	case AnswerWriteProtected:
		return "WriteProtected"
	case AnswerRotationTicks:
		return fmt.Sprintf("RotationTicks %d", a.Ticks)
	case AnswerVerified:
		return fmt.Sprintf("WrittenAndVerified %d %d %d %d %d %d %d %d",
			a.Cylinder, a.Head, a.Writes, a.Reads,
			a.MaxErr, a.Threshold, a.MatchPulses, a.Precomp)
	case AnswerFail:
		return fmt.Sprintf("Fail %d %d %d %d %s",
			a.Cylinder, a.Head, a.Writes, a.Reads, a.Error)
	}
	return ""
}

func fields(parts []string, n int) ([]int, error) {
	if len(parts) < n+1 {
		return nil, fmt.Errorf("truncated answer: %q", strings.Join(parts, " "))
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(parts[i+1])
		if err != nil {
			return nil, fmt.Errorf("bad answer field %q", parts[i+1])
		}
		out[i] = v
	}
	return out, nil
}

// ParseAnswer parses one response line from the device.
func ParseAnswer(line string) (*Answer, error) {
	parts := strings.Split(strings.TrimSpace(line), " ")
	switch parts[0] {
	case "GotCmd":
		return &Answer{Kind: AnswerGotCmd}, nil
	case "WriteProtected":
		return &Answer{Kind: AnswerWriteProtected}, nil
	case "RotationTicks":
		f, err := fields(parts, 1)
		if err != nil {
			return nil, err
		}
		return &Answer{Kind: AnswerRotationTicks, Ticks: uint32(f[0])}, nil
	case "WrittenAndVerified":
		f, err := fields(parts, 8)
		if err != nil {
			return nil, err
		}
		return &Answer{
			Kind:     AnswerVerified,
			Cylinder: f[0], Head: f[1], Writes: f[2], Reads: f[3],
			MaxErr: f[4], Threshold: f[5], MatchPulses: f[6], Precomp: f[7],
		}, nil
	case "Fail":
		f, err := fields(parts, 4)
		if err != nil {
			return nil, err
		}
		a := &Answer{
			Kind:     AnswerFail,
			Cylinder: f[0], Head: f[1], Writes: f[2], Reads: f[3],
		}
		if len(parts) > 5 {
			a.Error = strings.Join(parts[5:], " ")
		}
		return a, nil
	}
	return nil, fmt.Errorf("unexpected answer from device: %q", line)
}
