// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package matrix

import (
	"fmt"
	"log"
	"sync/atomic"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Run scans the matrix until Halt is called, then returns nil. It blocks
// and is expected to be the caller's main loop.
//
// Calling Run while it is already running is a no-op that returns nil
// immediately. Calling it after Halt returns ErrInvalidState.
//
// Run returns a non-nil error on its own in two cases: row faults
// persisted beyond Config.FaultLimit consecutive cycles (wrapping
// ErrDeviceFault), or a handler panicked. Either way the device is halted
// on return.
func (d *Dev) Run() error {
	if !d.lifecycle.CompareAndSwap(stateReady, stateRunning) {
		if d.lifecycle.Load() == stateRunning {
			return nil
		}
		return fmt.Errorf("%w: Run on halted device", ErrInvalidState)
	}
	var err error
	for d.lifecycle.Load() == stateRunning {
		if err = d.cycle(); err != nil {
			break
		}
	}
	d.park()
	d.lifecycle.Store(stateHalted)
	close(d.done)
	return err
}

// cycle performs one full scan: every row selected once, every column
// sampled once per row, debounced transitions gated and dispatched.
func (d *Dev) cycle() error {
	faulted := false
	for r := range d.rows {
		fresh := true
		if err := d.selectRow(r); err != nil {
			// Fail-soft: keep the previous raw sample for every key
			// in the row for this cycle. A bad read must not
			// manufacture a release.
			fresh = false
			if d.faults == 0 && !faulted {
				log.Printf("%s: %v", d, err)
			}
			faulted = true
		}
		now := d.now()
		ts := d.stamp(now)
		for c := range d.cols {
			k := &d.keys[r*len(d.cols)+c]
			if k.code == 0 {
				continue
			}
			raw := k.raw
			if fresh {
				raw = d.cols[c].Read() == gpio.Low
			}
			pressed, released := k.sample(raw, now, d.debounce)
			if !pressed && !released {
				continue
			}
			k.last = ts
			if !d.admit(k.code) {
				continue
			}
			slot := &d.onReleased
			if pressed {
				slot = &d.onPressed
			}
			if err := d.dispatch(slot, k.code, ts); err != nil {
				return err
			}
		}
	}
	if !faulted {
		d.faults = 0
		return nil
	}
	if d.faults++; d.faults >= d.faultLimit {
		return fmt.Errorf("%w: %d consecutive faulted cycles", ErrDeviceFault, d.faults)
	}
	return nil
}

// selectRow drives row i low and every other row high, then waits out the
// settle time. Rows are always cycled 0..N-1 in order so the sampling
// cadence, and with it debounce timing, stays deterministic.
func (d *Dev) selectRow(i int) error {
	for j, p := range d.rows {
		l := gpio.High
		if j == i {
			l = gpio.Low
		}
		if err := p.Out(l); err != nil {
			return fmt.Errorf("row %s: %w", p, err)
		}
	}
	if d.settle > 0 {
		d.sleep(d.settle)
	}
	return nil
}

// dispatch invokes the handler in slot, if any, synchronously. A missing
// handler drops the event silently. A panicking handler is a fatal caller
// bug: it is recovered, converted to an error and reported once, by making
// Run return.
func (d *Dev) dispatch(slot *atomic.Pointer[Handler], code rune, ts uint32) (err error) {
	h := slot.Load()
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("matrix: handler panicked on %q: %v", code, r)
		}
	}()
	(*h)(code, ts)
	return nil
}

// park returns all row lines to idle high. Called when the scan loop
// exits and by Halt on a device that never ran.
func (d *Dev) park() {
	for _, p := range d.rows {
		_ = p.Out(gpio.High)
	}
}

var _ conn.Resource = &Dev{}
