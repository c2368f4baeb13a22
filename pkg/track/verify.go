// Track verifier: synchronization-free readback verification
//
// Proves that a freshly written track matches its timeline without relying
// on sync words or checksums, since protected tracks deliberately corrupt
// both. The index edge that starts the capture jitters by tens of pulses, so
// the expected timeline is located in the capture by sliding a reference
// window of transitions over the incoming stream and scoring the cumulative
// absolute timing difference ("folding"). Everything after the located
// offset is then compared transition by transition.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"context"
	"runtime"
	"time"

	"floppytracer-go/pkg/errors"
	"floppytracer-go/pkg/flux"
	"floppytracer-go/pkg/log"
)

// verifyState tracks the engine through its life cycle. Terminal is always
// stateVerdict; an aborted attempt discards partial results instead.
type verifyState int

const (
	stateArmed verifyState = iota
	stateCapturing
	stateSearching
	stateMatched
	stateVerdict
)

func (s verifyState) String() string {
	switch s {
	case stateArmed:
		return "armed"
	case stateCapturing:
		return "capturing"
	case stateSearching:
		return "searching"
	case stateMatched:
		return "matched"
	default:
		return "verdict"
	}
}

// VerifyConfig tunes the correlation engine. The defaults reproduce the
// behaviour found stable on real drives; the offset window in particular
// depends on window width and drive jitter and is deliberately not a
// constant.
type VerifyConfig struct {
	// Window is the number of reference transitions correlated per
	// candidate offset.
	Window int

	// SearchSpan is the number of candidate offsets swept beyond the
	// reference window's own position.
	SearchSpan int

	// OffsetMin/OffsetMax bound the accepted alignment offset in pulses.
	// Alignments outside are treated as no-match: a tiny offset means
	// the search degenerated onto noise at the start of the revolution,
	// a huge one risks the capture budget. Offsets of 20-170 were
	// observed stable on real hardware.
	OffsetMin int
	OffsetMax int

	// Margin is the per-transition score distance the best offset must
	// keep to the runner-up. Zero selects half the similarity threshold.
	Margin flux.Ticks

	// SkipLead is the number of leading timeline transitions excluded
	// from verification; the first pulses after the write gate engages
	// are not reliable anchors.
	SkipLead int

	// Revolutions is the capture budget. The correlation must converge
	// before a third revolution would be needed.
	Revolutions int

	// RingSize is the capture ring capacity in pulses.
	RingSize int

	// MismatchBudget is the number of out-of-tolerance transitions
	// accepted before the verdict fails.
	MismatchBudget int

	// ReadTimeout bounds the wait for the next captured pulse.
	ReadTimeout time.Duration
}

// DefaultVerifyConfig returns the tuning used against real drives.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		Window:      20,
		SearchSpan:  200,
		OffsetMin:   0,
		OffsetMax:   200,
		SkipLead:    6,
		Revolutions: 2,
		RingSize:    512,
		ReadTimeout: 2 * time.Second,
	}
}

// Verifier captures one revolution of readback and decides whether it
// matches the expected timeline.
type Verifier struct {
	per Peripheral
	cfg VerifyConfig
	log *log.Logger
}

// NewVerifier creates a Verifier on a peripheral.
func NewVerifier(per Peripheral, cfg VerifyConfig, logger *log.Logger) *Verifier {
	if cfg.Window <= 0 {
		cfg = DefaultVerifyConfig()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Verifier{per: per, cfg: cfg, log: logger.Component("verify")}
}

// capSession is the consumer-side view of one capture.
type capSession struct {
	ring     *Ring
	cfg      *VerifyConfig
	consumed int
	ticks    flux.Ticks // summed duration of consumed pulses
}

// next returns the next captured pulse, spinning within the bounded read
// budget. Overrun is checked before every consume so a flooded ring surfaces
// as a hardware error even while stale pulses are still buffered, never as a
// mismatch or a silently truncated verdict.
func (c *capSession) next(ctx context.Context) (flux.Ticks, error) {
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	for {
		if c.ring.Overrun() {
			return 0, errors.OverrunError(c.consumed)
		}
		if d, ok := c.ring.Consume(); ok {
			c.consumed++
			c.ticks += d
			return d, nil
		}
		if c.ring.Closed() {
			return 0, errors.NoDataError()
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, errors.NoDataError()
		}
		runtime.Gosched()
	}
}

// expectedRunAt returns the run covering expected pulse index i.
func expectedRunAt(t flux.Timeline, i int) flux.Run {
	for _, r := range t.Runs {
		if i >= r.Start && i < r.Start+r.Count {
			return r
		}
	}
	return t.Runs[len(t.Runs)-1]
}

// VerifyTrack captures the next revolution of the track and produces a
// verdict. The expected timeline is never mutated. A cancelled context
// aborts the attempt with an error; no verdict is reported for aborts.
func (v *Verifier) VerifyTrack(ctx context.Context, job *Job) (Verdict, error) {
	cfg := v.cfg
	expected := job.Timeline.Pulses
	cw := job.CellWidth()

	// The minimum similarity would be half a bit cell; 35% holds
	// comfortably on a healthy channel.
	threshold := cw * 35 / 100
	margin := cfg.Margin
	if margin <= 0 {
		margin = threshold / 2
	}

	if len(expected) < cfg.SkipLead+cfg.Window {
		return Verdict{}, errors.TimelineError(nil).SetTrack(job.Cylinder, job.Head)
	}

	state := stateArmed
	ring := NewRing(cfg.RingSize)
	if err := v.per.BeginCapture(ctx, ring); err != nil {
		return Verdict{}, err
	}
	defer v.per.StopCapture()
	state = stateCapturing

	// Select the reference window. Leading pulses are skipped, and the
	// window is advanced until it is locally unique within the expected
	// stream itself: gap bytes repeat every few pulses and match equally
	// well at every period-shifted offset, so a window must reach into
	// sector header or data content before it can anchor an alignment.
	needed := margin * flux.Ticks(cfg.Window)
	skip := cfg.SkipLead
	maxSkip := cfg.SkipLead + maxEntropySearch
	found := false
	for skip+cfg.Window <= len(expected) && skip < maxSkip {
		if uniqueWindow(expected, skip, cfg.Window, skip+cfg.SearchSpan, needed) {
			found = true
			break
		}
		skip++
	}
	if !found {
		return Verdict{}, errors.NoCorrelationError(0).
			SetContext("reason", "no usable reference window").
			SetTrack(job.Cylinder, job.Head)
	}
	window := expected[skip : skip+cfg.Window]
	if skip > cfg.SkipLead {
		v.log.Debug("skipped %d low-entropy lead pulses", skip-cfg.SkipLead)
	}

	sess := &capSession{ring: ring, cfg: &cfg}
	budget := flux.Ticks(cfg.Revolutions) * v.per.Disk().RevolutionTicks()

	// Record enough of the capture to slide the window over. The window
	// sits skip pulses into the reference, so its image in the capture is
	// expected around that position plus the index jitter.
	recordLen := skip + cfg.SearchSpan + cfg.Window
	captured := make([]flux.Ticks, 0, recordLen)
	for len(captured) < recordLen {
		d, err := sess.next(ctx)
		if err != nil {
			return Verdict{}, err
		}
		captured = append(captured, d)
		if sess.ticks > budget {
			return Verdict{}, errors.NoCorrelationError(len(captured)).
				SetContext("reason", "capture budget exhausted").
				SetTrack(job.Cylinder, job.Head)
		}
	}
	state = stateSearching

	// Sweep candidate offsets. The score accumulation aborts early once a
	// candidate is provably worse than the current runner-up, keeping the
	// per-offset cost low enough to stay ahead of the incoming stream.
	align, ok := correlate(window, captured, margin)
	if !ok {
		state = stateVerdict
		v.logState(state, job)
		return Verdict{AlignOffset: -1, Revolutions: revolutions(sess.ticks, v.per.Disk())},
			errors.NoCorrelationError(cfg.SearchSpan).SetTrack(job.Cylinder, job.Head)
	}

	offset := align - skip
	if offset < cfg.OffsetMin || offset > cfg.OffsetMax {
		state = stateVerdict
		return Verdict{AlignOffset: offset, Revolutions: revolutions(sess.ticks, v.per.Disk())},
			errors.NoCorrelationError(cfg.SearchSpan).
				SetContext("offset", offset).
				SetContext("reason", "alignment outside accepted range").
				SetTrack(job.Cylinder, job.Head)
	}
	state = stateMatched
	v.log.DebugFields("alignment located", log.Fields{
		"offset": offset, "skip": skip, "state": state.String(),
	})

	// Full-length comparison from the located offset. The recorded slice
	// is drained first, then the live stream.
	verdict := Verdict{Matched: true, AlignOffset: offset}
	capPos := align
	var maxErr flux.Ticks

	for e := skip; e < len(expected); e++ {
		var d flux.Ticks
		if capPos < len(captured) {
			d = captured[capPos]
			capPos++
		} else {
			var err error
			d, err = sess.next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return Verdict{}, ctx.Err()
				}
				state = stateVerdict
				return verdictOf(verdict, false, maxErr, sess, v.per.Disk()), err
			}
		}

		run := expectedRunAt(job.Timeline, e)
		ref := expected[e]
		if run.Kind == flux.RunNoFlux || ref > run.CellWidth*10 {
			// Nothing deterministic to compare inside a non-flux
			// area; the pulse only re-anchors the stream.
			continue
		}
		diff := ref.AbsDiff(d)
		if diff > maxErr {
			maxErr = diff
		}
		verdict.Compared++
		if diff >= threshold {
			verdict.Mismatches++
			if verdict.Mismatches > cfg.MismatchBudget {
				state = stateVerdict
				v.logState(state, job)
				return verdictOf(verdict, false, maxErr, sess, v.per.Disk()),
					errors.MismatchError(int(ref), int(d), verdict.Compared).
						SetTrack(job.Cylinder, job.Head)
			}
		}
	}

	state = stateVerdict
	out := verdictOf(verdict, true, maxErr, sess, v.per.Disk())
	v.log.InfoFields("track verified", log.Fields{
		"cylinder":    job.Cylinder,
		"head":        job.Head,
		"offset":      out.AlignOffset,
		"max_err":     out.MaxErr,
		"compared":    out.Compared,
		"revolutions": out.Revolutions,
	})
	return out, nil
}

func (v *Verifier) logState(s verifyState, job *Job) {
	v.log.DebugFields("verify state", log.Fields{
		"state": s.String(), "cylinder": job.Cylinder, "head": job.Head,
	})
}

func verdictOf(base Verdict, matched bool, maxErr flux.Ticks, sess *capSession, disk flux.DiskType) Verdict {
	base.Matched = matched
	base.MaxErr = maxErr
	base.Revolutions = revolutions(sess.ticks, disk)
	return base
}

func revolutions(ticks flux.Ticks, disk flux.DiskType) int {
	rev := disk.RevolutionTicks()
	if rev <= 0 {
		return 0
	}
	return int(ticks/rev) + 1
}

// maxEntropySearch bounds the hunt for a unique reference window. An ISO
// lead-in gap plus the first header is a few hundred pulses; a timeline that
// stays repetitive beyond this is unanchorable.
const maxEntropySearch = 2048

// uniqueWindow reports whether the window at skip undercuts every other
// position in expected[0..hi] by the required score distance. The capture is
// the expected stream plus index junk and jitter, so a window that is
// locally unique here is unambiguous there too. Direct neighbours are
// exempt, matching the correlation sweep's smearing rule.
func uniqueWindow(expected []flux.Ticks, skip, window, hi int, needed flux.Ticks) bool {
	w := expected[skip : skip+window]
	if hi > len(expected)-window {
		hi = len(expected) - window
	}
	for pos := 0; pos <= hi; pos++ {
		if pos >= skip-1 && pos <= skip+1 {
			continue
		}
		var score flux.Ticks
		for j := 0; j < window; j++ {
			score += w[j].AbsDiff(expected[pos+j])
			if score >= needed {
				break
			}
		}
		if score < needed {
			return false
		}
	}
	return true
}

// correlate slides the reference window over the captured pulses and returns
// the offset with the minimal cumulative absolute difference. The minimum
// must undercut every non-neighbouring candidate by margin per transition,
// otherwise the result is ambiguous and rejected: a false positive would
// silently certify a bad track.
func correlate(window, captured []flux.Ticks, margin flux.Ticks) (int, bool) {
	span := len(captured) - len(window)
	if span <= 0 {
		return 0, false
	}

	best, bestOff := flux.Ticks(1<<30), -1
	second := flux.Ticks(1 << 30)

	for off := 0; off < span; off++ {
		limit := second
		var score flux.Ticks
		for j, w := range window {
			score += w.AbsDiff(captured[off+j])
			if score >= limit {
				score = limit
				break
			}
		}
		switch {
		case score < best:
			// The displaced best becomes the runner-up unless the
			// two offsets are direct neighbours sharing pulses.
			if bestOff >= 0 && off-bestOff > 1 {
				second = best
			}
			best, bestOff = score, off
		case score < second && off-bestOff > 1:
			second = score
		}
	}

	if bestOff < 0 {
		return 0, false
	}
	needed := margin * flux.Ticks(len(window))
	if second-best < needed {
		return 0, false
	}
	return bestOff, true
}
