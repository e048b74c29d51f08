// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package matrix

import (
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Layout is the on-disk form of a keypad description, meant for tools that
// take the wiring from a file instead of code. Example:
//
//	rows: [GPIO17, GPIO27]
//	cols: [GPIO5, GPIO6, GPIO13]
//	keys:
//	  - "123"
//	  - "4.6"
//	power_key: "1"
//	debounce: 20ms
//	settle: 1ms
//
// Each keys entry is one row, one rune per column; "." marks an
// unpopulated position. Pin names are resolved through gpioreg, so
// periph.io/x/host/v3 (or whatever provides the pins) must be initialized
// first.
type Layout struct {
	Rows       []string `yaml:"rows"`
	Cols       []string `yaml:"cols"`
	Keys       []string `yaml:"keys"`
	PowerKey   string   `yaml:"power_key"`
	Debounce   string   `yaml:"debounce"`
	Settle     string   `yaml:"settle"`
	FaultLimit int      `yaml:"fault_limit"`
}

// LoadLayout parses a YAML layout. Unknown fields are rejected to catch
// typos in hand-written files.
func LoadLayout(r io.Reader) (*Layout, error) {
	l := &Layout{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(l); err != nil {
		return nil, fmt.Errorf("%w: parsing layout: %v", ErrBadConfig, err)
	}
	return l, nil
}

// Config resolves the layout into a Config, looking pin names up with
// gpioreg.ByName. An unknown pin name wraps ErrResource; everything else
// that is wrong with the layout wraps ErrBadConfig.
func (l *Layout) Config() (*Config, error) {
	cfg := &Config{
		FaultLimit: l.FaultLimit,
	}
	var err error
	if cfg.Debounce, err = parseDuration("debounce", l.Debounce); err != nil {
		return nil, err
	}
	if l.Settle != "" {
		if cfg.Settle, err = parseDuration("settle", l.Settle); err != nil {
			return nil, err
		}
	}
	for _, name := range l.Rows {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: no pin named %q", ErrResource, name)
		}
		cfg.Rows = append(cfg.Rows, p)
	}
	for _, name := range l.Cols {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("%w: no pin named %q", ErrResource, name)
		}
		cfg.Cols = append(cfg.Cols, p)
	}
	for _, row := range l.Keys {
		codes := []rune(row)
		for i, code := range codes {
			if code == '.' {
				codes[i] = 0
			}
		}
		cfg.Keys = append(cfg.Keys, codes)
	}
	if l.PowerKey != "" {
		if utf8.RuneCountInString(l.PowerKey) != 1 {
			return nil, fmt.Errorf("%w: power_key %q is not a single key", ErrBadConfig, l.PowerKey)
		}
		cfg.PowerKey, _ = utf8.DecodeRuneInString(l.PowerKey)
	}
	return cfg, nil
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: %s is required", ErrBadConfig, field)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrBadConfig, field, err)
	}
	return d, nil
}
