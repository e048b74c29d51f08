// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package matrix

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Errors returned by the driver. They are always wrapped with context;
// discriminate with errors.Is.
var (
	// ErrBadConfig is returned by New for an invalid or inconsistent
	// Config. No state is left behind.
	ErrBadConfig = errors.New("matrix: invalid configuration")
	// ErrResource is returned by New when a row or column pin cannot be
	// configured.
	ErrResource = errors.New("matrix: line interface unavailable")
	// ErrInvalidState is returned when an operation is called in a
	// lifecycle state that forbids it, like Run() after Halt().
	ErrInvalidState = errors.New("matrix: invalid state")
	// ErrDeviceFault is returned by Run when row faults persist beyond
	// Config.FaultLimit consecutive scan cycles.
	ErrDeviceFault = errors.New("matrix: persistent line faults")
)

// LockMode restricts which key events reach the registered handlers. It
// never affects the per-key state machines, which keep tracking the
// physical keys, so no transition is missed or duplicated across mode
// changes.
type LockMode int32

const (
	// Unlocked admits every event.
	Unlocked LockMode = iota
	// Locked admits no event.
	Locked
	// UnlockedPowerOnly admits only events for Config.PowerKey; events
	// for other keys are silently dropped, never queued.
	UnlockedPowerOnly
)

// String implements fmt.Stringer.
func (m LockMode) String() string {
	switch m {
	case Unlocked:
		return "unlocked"
	case Locked:
		return "locked"
	case UnlockedPowerOnly:
		return "unlocked-power-only"
	}
	return fmt.Sprintf("lockmode(%d)", int32(m))
}

// Handler receives one key event.
//
// code is the logical key configured for the matrix position. timestamp is
// in milliseconds from an epoch set at New and wraps around after ~49.7
// days; compare timestamps with unsigned modular arithmetic, not signed
// subtraction. Handlers run synchronously on the scan goroutine: a slow
// handler delays sampling and therefore debounce timing for every key.
type Handler func(code rune, timestamp uint32)

// Config describes the matrix. It is not modified and must not be mutated
// after being passed to New.
type Config struct {
	// Rows are the address lines, driven active low one at a time in
	// order.
	Rows []gpio.PinOut
	// Cols are the sense lines, configured with gpio.PullUp. A pressed
	// key reads gpio.Low while its row is selected.
	Cols []gpio.PinIn
	// Keys maps matrix positions to logical key codes, row-major:
	// Keys[r][c] is the key at row r, column c. A zero rune marks an
	// unpopulated position. Each non-zero code must be unique.
	Keys [][]rune
	// Debounce is how long a raw level must stay consistent before a
	// logical transition is emitted. Required.
	Debounce time.Duration
	// Settle is the electrical settle time after selecting a row and
	// before sampling the columns. Zero means sample immediately.
	Settle time.Duration
	// PowerKey is the only key admitted under UnlockedPowerOnly. Zero
	// means no power key; if set it must appear in Keys.
	PowerKey rune
	// FaultLimit is the number of consecutive faulted scan cycles
	// tolerated before Run gives up with ErrDeviceFault. Zero selects
	// DefaultFaultLimit.
	FaultLimit int
}

// DefaultFaultLimit is used when Config.FaultLimit is zero.
const DefaultFaultLimit = 8

// Lifecycle states of a Dev. The word doubles as the scan loop's stop
// flag; it is the only cross-goroutine state besides the atomic lock mode
// and handler slots.
const (
	stateReady int32 = iota
	stateRunning
	stateHalted
)

// Dev is an open keypad.
//
// It owns all per-key state. Run, which blocks, performs all scanning;
// SetLock, GetLock, SetOnPressed and SetOnReleased are safe to call from
// any goroutine at any time.
type Dev struct {
	rows       []gpio.PinOut
	cols       []gpio.PinIn
	keys       []key // row-major, len(rows)*len(cols), code 0 if unmapped
	debounce   time.Duration
	settle     time.Duration
	powerKey   rune
	faultLimit int

	epoch time.Time
	now   func() time.Time
	sleep func(time.Duration)

	lifecycle  atomic.Int32
	lock       atomic.Int32
	onPressed  atomic.Pointer[Handler]
	onReleased atomic.Pointer[Handler]
	done       chan struct{}

	// Scan goroutine only.
	faults int
}

// New validates cfg, configures the row and column pins and returns a
// keypad ready to Run.
//
// Validation failures wrap ErrBadConfig, pin configuration failures wrap
// ErrResource; in both cases no Dev is returned.
func New(cfg *Config) (*Dev, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	for _, p := range cfg.Cols {
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("%w: column %s: %v", ErrResource, p, err)
		}
	}
	for _, p := range cfg.Rows {
		if err := p.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("%w: row %s: %v", ErrResource, p, err)
		}
	}
	d := &Dev{
		rows:       cfg.Rows,
		cols:       cfg.Cols,
		keys:       make([]key, len(cfg.Rows)*len(cfg.Cols)),
		debounce:   cfg.Debounce,
		settle:     cfg.Settle,
		powerKey:   cfg.PowerKey,
		faultLimit: cfg.FaultLimit,
		now:        time.Now,
		sleep:      time.Sleep,
		done:       make(chan struct{}),
	}
	if d.faultLimit == 0 {
		d.faultLimit = DefaultFaultLimit
	}
	for r, rowKeys := range cfg.Keys {
		for c, code := range rowKeys {
			d.keys[r*len(cfg.Cols)+c].code = code
		}
	}
	d.epoch = d.now()
	return d, nil
}

func validate(cfg *Config) error {
	if len(cfg.Rows) == 0 || len(cfg.Cols) == 0 {
		return fmt.Errorf("%w: need at least one row and one column", ErrBadConfig)
	}
	if len(cfg.Keys) != len(cfg.Rows) {
		return fmt.Errorf("%w: %d key rows for %d row pins", ErrBadConfig, len(cfg.Keys), len(cfg.Rows))
	}
	seen := map[rune]bool{}
	for r, rowKeys := range cfg.Keys {
		if len(rowKeys) != len(cfg.Cols) {
			return fmt.Errorf("%w: key row %d has %d entries for %d column pins", ErrBadConfig, r, len(rowKeys), len(cfg.Cols))
		}
		for _, code := range rowKeys {
			if code == 0 {
				continue
			}
			if seen[code] {
				return fmt.Errorf("%w: key %q mapped twice", ErrBadConfig, code)
			}
			seen[code] = true
		}
	}
	if cfg.Debounce <= 0 {
		return fmt.Errorf("%w: debounce interval is required", ErrBadConfig)
	}
	if cfg.Settle < 0 {
		return fmt.Errorf("%w: negative settle time", ErrBadConfig)
	}
	if cfg.FaultLimit < 0 {
		return fmt.Errorf("%w: negative fault limit", ErrBadConfig)
	}
	if cfg.PowerKey != 0 && !seen[cfg.PowerKey] {
		return fmt.Errorf("%w: power key %q is not mapped", ErrBadConfig, cfg.PowerKey)
	}
	return nil
}

// String implements conn.Resource.
func (d *Dev) String() string {
	return fmt.Sprintf("keypad(%dx%d)", len(d.rows), len(d.cols))
}

// Halt implements conn.Resource. It stops the scan loop at the next cycle
// boundary, waits for it to exit and parks the row lines. Halt is
// idempotent and may be called from any goroutine, but not from an event
// handler: the scan goroutine cannot stop while it is inside one.
func (d *Dev) Halt() error {
	if d.lifecycle.CompareAndSwap(stateRunning, stateHalted) {
		<-d.done
		return nil
	}
	if d.lifecycle.CompareAndSwap(stateReady, stateHalted) {
		d.park()
	}
	// Already halted: no-op.
	return nil
}

// GetLock returns the current lock mode.
func (d *Dev) GetLock() LockMode {
	return LockMode(d.lock.Load())
}

// SetLock changes the lock mode. It takes effect on the next scan cycle's
// events and never replays events suppressed under the previous mode.
func (d *Dev) SetLock(m LockMode) {
	d.lock.Store(int32(m))
}

// SetOnPressed registers h to receive press events, replacing any previous
// registration. A nil h unregisters. The swap is atomic with respect to a
// running scan loop.
func (d *Dev) SetOnPressed(h Handler) {
	if h == nil {
		d.onPressed.Store(nil)
		return
	}
	d.onPressed.Store(&h)
}

// SetOnReleased registers h to receive release events, replacing any
// previous registration. A nil h unregisters.
func (d *Dev) SetOnReleased(h Handler) {
	if h == nil {
		d.onReleased.Store(nil)
		return
	}
	d.onReleased.Store(&h)
}

// admit is the lock gate. Key state machines run regardless of the
// outcome; only delivery is affected.
func (d *Dev) admit(code rune) bool {
	switch LockMode(d.lock.Load()) {
	case Locked:
		return false
	case UnlockedPowerOnly:
		return code == d.powerKey
	}
	return true
}

// stamp converts an absolute time to the 32 bit millisecond counter used
// in events. It wraps after ~49.7 days, which consumers must accept.
func (d *Dev) stamp(now time.Time) uint32 {
	return uint32(now.Sub(d.epoch) / time.Millisecond)
}

var _ fmt.Stringer = LockMode(0)
