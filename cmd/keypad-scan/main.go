// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// keypad-scan prints key events from a matrix keypad described by a YAML
// layout file.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"periph.io/x/host/v3"
	"periph.io/x/keypad/matrix"
)

func mainImpl() error {
	layoutPath := flag.String("layout", "keypad.yaml", "YAML keypad layout file")
	lock := flag.String("lock", "unlocked", "initial lock mode: unlocked, locked or power-only")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	if _, err := host.Init(); err != nil {
		return err
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
	switch *lock {
	case "unlocked":
	case "locked":
		d.SetLock(matrix.Locked)
	case "power-only":
		d.SetLock(matrix.UnlockedPowerOnly)
	default:
		return fmt.Errorf("unknown -lock mode %q", *lock)
	}
	d.SetOnPressed(func(code rune, ts uint32) {
		fmt.Printf("%8dms down %c\n", ts, code)
	})
	d.SetOnReleased(func(code rune, ts uint32) {
		fmt.Printf("%8dms up   %c\n", ts, code)
	})

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		if err := d.Halt(); err != nil {
			log.Println(err)
		}
	}()
	fmt.Printf("Scanning %s, ^C to stop.\n", d)
	return d.Run()
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "keypad-scan: %s.\n", err)
		os.Exit(1)
	}
}
