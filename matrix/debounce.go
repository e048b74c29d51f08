// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package matrix

import "time"

// debState is the debounce state of a single physical key.
type debState uint8

const (
	stableReleased debState = iota
	confirmingPress
	stablePressed
	confirmingRelease
)

// key is the per-position state machine. One instance exists per mapped
// (row, column) pair; it is only ever touched by the scan goroutine.
type key struct {
	code  rune
	state debState
	// raw is the last raw sample fed in. It is replayed for cycles where
	// the row could not be read.
	raw bool
	// since is when the current confirming run started.
	since time.Time
	// last is the timestamp of the last emitted transition.
	last uint32
}

// sample feeds one raw reading (closed=true means contact made) taken at
// now into the state machine.
//
// A reading that differs from the current stable state starts a confirming
// run; a contradicting reading during that run is treated as contact bounce
// and aborts back to the stable state. Once the reading has been consistent
// for the debounce interval, the stable state flips and exactly one of
// pressed/released is reported. This emits at most one event per genuine
// level change no matter how many samples bounce inside the window.
func (k *key) sample(closed bool, now time.Time, debounce time.Duration) (pressed, released bool) {
	k.raw = closed
	switch k.state {
	case stableReleased:
		if closed {
			k.state = confirmingPress
			k.since = now
		}
	case confirmingPress:
		if !closed {
			// Bounce.
			k.state = stableReleased
		} else if now.Sub(k.since) >= debounce {
			k.state = stablePressed
			pressed = true
		}
	case stablePressed:
		if !closed {
			k.state = confirmingRelease
			k.since = now
		}
	case confirmingRelease:
		if closed {
			// Bounce.
			k.state = stablePressed
		} else if now.Sub(k.since) >= debounce {
			k.state = stableReleased
			released = true
		}
	}
	return
}

// down reports whether the stable state is pressed, ignoring any confirming
// run in flight.
func (k *key) down() bool {
	return k.state == stablePressed || k.state == confirmingRelease
}
