// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package keypadsmoketest verifies a wired matrix keypad end to end: it
// scans the matrix and expects the operator to press and release every
// mapped key within the timeout.
//
// The host drivers must be loaded by the harness before Run is called so
// the layout's pin names resolve.
package keypadsmoketest

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/keypad/matrix"
)

// SmokeTest is imported by periph-smoketest.
type SmokeTest struct {
}

// Name implements the SmokeTest interface.
func (s *SmokeTest) Name() string {
	return "keypad"
}

// Description implements the SmokeTest interface.
func (s *SmokeTest) Description() string {
	return "Tests a matrix keypad wired to GPIO pins"
}

// Run implements the SmokeTest interface.
func (s *SmokeTest) Run(f *flag.FlagSet, args []string) error {
	layoutPath := f.String("layout", "", "YAML keypad layout file")
	timeout := f.Duration("timeout", time.Minute, "give up if the keys were not all exercised in time")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() != 0 {
		f.Usage()
		return errors.New("unrecognized arguments")
	}
	if *layoutPath == "" {
		return errors.New("-layout is required")
	}
	fd, err := os.Open(*layoutPath)
	if err != nil {
		return err
	}
	l, err := matrix.LoadLayout(fd)
	_ = fd.Close()
	if err != nil {
		return err
	}
	cfg, err := l.Config()
	if err != nil {
		return err
	}
	d, err := matrix.New(cfg)
	if err != nil {
		return err
	}
	if cycle := cfg.Settle * time.Duration(len(cfg.Rows)); cycle > 0 {
		fmt.Printf("Scan rate: %s\n", physic.PeriodToFrequency(cycle))
	}

	const (
		sawPress = 1 << iota
		sawRelease
	)
	need := map[rune]int{}
	for _, row := range cfg.Keys {
		for _, code := range row {
			if code != 0 {
				need[code] = 0
			}
		}
	}
	total := 2 * len(need)
	got := 0
	done := make(chan struct{})
	var mu sync.Mutex
	mark := func(code rune, bit int, what string, ts uint32) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf("  %c %s (t=%dms)\n", code, what, ts)
		if v, ok := need[code]; ok && v&bit == 0 {
			need[code] = v | bit
			if got++; got == total {
				close(done)
			}
		}
	}
	d.SetOnPressed(func(code rune, ts uint32) { mark(code, sawPress, "pressed", ts) })
	d.SetOnReleased(func(code rune, ts uint32) { mark(code, sawRelease, "released", ts) })

	errs := make(chan error, 1)
	go func() { errs <- d.Run() }()
	fmt.Printf("Press and release each of the %d keys within %s.\n", len(need), *timeout)
	select {
	case <-done:
	case <-time.After(*timeout):
		mu.Lock()
		err = fmt.Errorf("timed out with %d of %d transitions seen", got, total)
		mu.Unlock()
	case err = <-errs:
		if err == nil {
			err = errors.New("scan loop exited early")
		}
		return err
	}
	if herr := d.Halt(); err == nil {
		err = herr
	}
	if rerr := <-errs; err == nil {
		err = rerr
	}
	return err
}
