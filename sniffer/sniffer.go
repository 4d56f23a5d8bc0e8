// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sniffer drives a USB PATA probe and records its bus samples
// into a capture file.
package sniffer // import "github.com/go-lpc/pata/sniffer"

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-lpc/pata/sniff"
)

const (
	VendorID  = 0x04b4 // Cypress
	ProductID = 0x0101

	bulkIn        = 0x81 // bulk data endpoint
	vendorRequest = 0xff
	reqTypeOut    = 0x41 // vendor, host-to-device, interface
	reqTypeIn     = 0xc1 // vendor, device-to-host, interface
	statusLen     = 8

	defaultTimeout = 1000 * time.Millisecond
	defaultBufSize = 64 * 1024
	stopTimeout    = 10 * time.Second
)

var (
	ErrDeviceNotFound = errors.New("sniffer: device not found")
	ErrDeviceOpen     = errors.New("sniffer: could not open device")
	ErrFileOpen       = errors.New("sniffer: could not open capture file")
	ErrDeviceError    = errors.New("sniffer: device error")
	ErrInvalidDivider = errors.New("sniffer: invalid clock divider")
	ErrBusy           = errors.New("sniffer: capture in progress")
	ErrNotConnected   = errors.New("sniffer: device not connected")
	ErrNotCapturing   = errors.New("sniffer: no capture in progress")
)

// State is the state of an acquisition session.
type State uint8

const (
	Idle State = iota
	Connecting
	Armed
	Capturing
)

func (st State) String() string {
	switch st {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Armed:
		return "armed"
	case Capturing:
		return "capturing"
	}
	return fmt.Sprintf("State(%d)", uint8(st))
}

// Stats are the counters reported by the probe.
type Stats struct {
	Bytes  uint32 // bytes committed by the probe since start
	Errors uint32 // probe error count
}

// Samples returns the number of samples collected.
func (st Stats) Samples() uint32 { return st.Bytes / sniff.RecordSize }

func (st Stats) String() string {
	return fmt.Sprintf("Samples collected: %d, error count: %d", st.Samples(), st.Errors)
}
