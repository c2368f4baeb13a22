// Capture ring buffer shared between the hardware producer and the verifier
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package track

import (
	"sync/atomic"

	"floppytracer-go/pkg/flux"
)

// Ring is the fixed-capacity single-producer/single-consumer buffer between
// the capture hardware and the correlation engine. Producer and consumer
// positions are plain free-running indices, never pointers. The producer
// never blocks: pushing into a full ring drops the pulse and latches the
// overrun flag, which is fatal to the verification attempt.
type Ring struct {
	buf     []flux.Ticks
	head    atomic.Uint64 // written by the producer only
	tail    atomic.Uint64 // written by the consumer only
	overrun atomic.Bool
	closed  atomic.Bool
}

// NewRing creates a ring holding up to capacity pulses.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 512
	}
	return &Ring{buf: make([]flux.Ticks, capacity)}
}

// Produce appends one pulse. Returns false and latches the overrun flag if
// the ring is full. Must only be called from the single producer.
func (r *Ring) Produce(d flux.Ticks) bool {
	head := r.head.Load()
	if head-r.tail.Load() >= uint64(len(r.buf)) {
		r.overrun.Store(true)
		return false
	}
	r.buf[head%uint64(len(r.buf))] = d
	r.head.Store(head + 1)
	return true
}

// Consume removes the oldest pulse. Must only be called from the single
// consumer.
func (r *Ring) Consume() (flux.Ticks, bool) {
	tail := r.tail.Load()
	if tail == r.head.Load() {
		return 0, false
	}
	d := r.buf[tail%uint64(len(r.buf))]
	r.tail.Store(tail + 1)
	return d, true
}

// Len returns the number of buffered pulses.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Free returns the remaining capacity.
func (r *Ring) Free() int {
	return len(r.buf) - r.Len()
}

// Overrun reports whether the producer ever overflowed the ring.
func (r *Ring) Overrun() bool {
	return r.overrun.Load()
}

// Close marks the producer as finished; Consume drains remaining pulses.
func (r *Ring) Close() {
	r.closed.Store(true)
}

// Closed reports whether the producer has finished.
func (r *Ring) Closed() bool {
	return r.closed.Load()
}

// Reset empties the ring and clears the overrun and closed flags. Only safe
// while neither side is active.
func (r *Ring) Reset() {
	r.tail.Store(r.head.Load())
	r.overrun.Store(false)
	r.closed.Store(false)
}
