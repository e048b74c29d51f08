// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package matrix

import (
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// deadPin is a column whose acquisition fails.
type deadPin struct {
	colPin
}

func (p *deadPin) In(pull gpio.Pull, e gpio.Edge) error {
	return errors.New("no such line")
}

func validConfig(m *fakeMatrix) *Config {
	return &Config{
		Rows:     []gpio.PinOut{m.rows[0], m.rows[1]},
		Cols:     []gpio.PinIn{&colPin{m, 0}, &colPin{m, 1}},
		Keys:     [][]rune{{'1', '2'}, {'3', '4'}},
		Debounce: 20 * time.Millisecond,
	}
}

func TestNewBadConfig(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Config)
	}{
		{"no rows", func(c *Config) { c.Rows = nil }},
		{"no cols", func(c *Config) { c.Cols = nil }},
		{"key rows mismatch", func(c *Config) { c.Keys = c.Keys[:1] }},
		{"key cols mismatch", func(c *Config) { c.Keys[1] = c.Keys[1][:1] }},
		{"duplicate code", func(c *Config) { c.Keys[1][1] = '1' }},
		{"no debounce", func(c *Config) { c.Debounce = 0 }},
		{"negative settle", func(c *Config) { c.Settle = -time.Millisecond }},
		{"negative fault limit", func(c *Config) { c.FaultLimit = -1 }},
		{"unmapped power key", func(c *Config) { c.PowerKey = 'X' }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(newFakeMatrix(2, 2))
			tt.edit(cfg)
			d, err := New(cfg)
			if !errors.Is(err, ErrBadConfig) {
				t.Fatalf("New = %v, want ErrBadConfig", err)
			}
			if d != nil {
				t.Fatal("Dev returned alongside an error")
			}
		})
	}
}

func TestNewUnmappedPosition(t *testing.T) {
	// A zero rune is an unpopulated position, not a duplicate.
	m := newFakeMatrix(2, 2)
	cfg := validConfig(m)
	cfg.Keys = [][]rune{{'1', 0}, {0, '4'}}
	cfg.PowerKey = '4'
	d, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if d.String() != "keypad(2x2)" {
		t.Fatalf("String() = %q", d.String())
	}
}

func TestNewResourceError(t *testing.T) {
	m := newFakeMatrix(2, 2)
	cfg := validConfig(m)
	cfg.Cols[1] = &deadPin{colPin{m, 1}}
	if _, err := New(cfg); !errors.Is(err, ErrResource) {
		t.Fatalf("New = %v, want ErrResource", err)
	}

	cfg = validConfig(m)
	cfg.Rows[0] = &badRow{Pin: m.rows[0], failN: -1}
	if _, err := New(cfg); !errors.Is(err, ErrResource) {
		t.Fatalf("New = %v, want ErrResource", err)
	}
}

func TestLockDefaultAndRoundTrip(t *testing.T) {
	d, _, _, _ := newTestKeypad(t, func(cfg *Config) { cfg.PowerKey = '4' })
	if d.GetLock() != Unlocked {
		t.Fatalf("initial lock = %v, want Unlocked", d.GetLock())
	}
	for _, m := range []LockMode{Locked, UnlockedPowerOnly, Unlocked} {
		d.SetLock(m)
		if d.GetLock() != m {
			t.Fatalf("GetLock = %v, want %v", d.GetLock(), m)
		}
	}
}

func TestLockModeString(t *testing.T) {
	tests := []struct {
		m    LockMode
		want string
	}{
		{Unlocked, "unlocked"},
		{Locked, "locked"},
		{UnlockedPowerOnly, "unlocked-power-only"},
		{LockMode(42), "lockmode(42)"},
	}
	for _, tt := range tests {
		if s := tt.m.String(); s != tt.want {
			t.Errorf("%d.String() = %q, want %q", int32(tt.m), s, tt.want)
		}
	}
}

func TestNoHandlerRegistered(t *testing.T) {
	// Events with no registered handler are dropped without error.
	d, m, _, _ := newTestKeypad(t, nil)
	d.SetOnPressed(nil)
	d.SetOnReleased(nil)
	m.set(0, 0, true)
	runCycles(t, d, 15)
	if !d.keys[0].down() {
		t.Fatal("press not tracked without handlers")
	}
	m.set(0, 0, false)
	runCycles(t, d, 15)
	if d.keys[0].down() {
		t.Fatal("release not tracked without handlers")
	}
}

func TestHandlerReplacement(t *testing.T) {
	// The most recent registration is the only one active.
	d, m, _, rec := newTestKeypad(t, nil)
	other := &recorder{}
	d.SetOnPressed(other.press)
	m.set(0, 0, true)
	runCycles(t, d, 15)
	if evs := rec.all(); len(evs) != 0 {
		t.Fatalf("replaced handler still received events: %v", evs)
	}
	if evs := other.all(); len(evs) != 1 {
		t.Fatalf("got %v, want a single press on the new handler", evs)
	}
}

func TestHaltBeforeRun(t *testing.T) {
	d, m, _, _ := newTestKeypad(t, nil)
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	for _, p := range m.rows {
		if p.L != gpio.High {
			t.Fatalf("row %s not parked high", p)
		}
	}
	if err := d.Run(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("Run after Halt = %v, want ErrInvalidState", err)
	}
}
