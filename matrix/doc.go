// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Package matrix drives a multiplexed key matrix ("keypad") wired to GPIO
// pins.
//
// Row pins are driven one at a time (active low) while column pins, pulled
// up, are sampled; a key shorts its row to its column so a pressed key
// reads gpio.Low on its column while its row is selected. Raw samples are
// debounced per key and delivered as logical press/release events to
// caller-supplied handlers, optionally filtered by a lock mode.
//
// The package only consumes gpio.PinOut/gpio.PinIn and does not care where
// the pins come from: memory-mapped GPIO, a port expander, sysfs, anything
// registered with periph.io/x/conn/v3/gpio/gpioreg works.
package matrix
