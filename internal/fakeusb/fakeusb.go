// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakeusb provides a scripted PATA probe for tests.
package fakeusb // import "github.com/go-lpc/pata/internal/fakeusb"

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	reqOut = 0x41
	reqIn  = 0xc1
	vendor = 0xff
	epIn   = 0x81
)

// ErrNoData is returned by a bulk read when no committed byte is pending.
var ErrNoData = errors.New("fakeusb: no data")

// Control is a recorded control transfer.
type Control struct {
	Type  uint8
	Req   uint8
	Value uint16
	Index uint16
	Len   int
}

func (c Control) String() string {
	return fmt.Sprintf("ctrl{type=0x%02x, req=0x%02x, value=%d, index=%d, len=%d}",
		c.Type, c.Req, c.Value, c.Index, c.Len,
	)
}

// Device is a fake probe.
//
// After a start request, each status poll commits Step more bytes of
// Data (all of them when Step is zero). A stop request commits the
// remainder. Committed bytes are served by bulk reads on endpoint 0x81,
// at most MaxRead bytes per transfer when MaxRead is positive.
type Device struct {
	Data    []byte
	Step    int
	MaxRead int

	// Errors is the error count reported from the ErrorAfter-th status
	// poll on. Zero ErrorAfter never reports errors.
	Errors     uint32
	ErrorAfter int

	StartErr  error
	StatusErr error
	StopErr   error
	BulkErr   error
	CloseErr  error

	mu        sync.Mutex
	ctrl      []Control
	divider   uint16
	running   bool
	polls     int
	committed int
	served    int
	reads     int
	closed    int
}

func (dev *Device) ControlTransfer(rtype, req uint8, value, index uint16, data []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	dev.ctrl = append(dev.ctrl, Control{
		Type: rtype, Req: req, Value: value, Index: index, Len: len(data),
	})

	if req != vendor {
		return 0, fmt.Errorf("fakeusb: invalid request 0x%02x", req)
	}

	switch rtype {
	case reqOut:
		if value != 0 {
			if dev.StartErr != nil {
				return 0, dev.StartErr
			}
			dev.divider = value
			dev.running = true
			dev.polls = 0
			dev.committed = 0
			dev.served = 0
			return 0, nil
		}
		if dev.StopErr != nil {
			return 0, dev.StopErr
		}
		dev.running = false
		dev.committed = len(dev.Data)
		return 0, nil

	case reqIn:
		if dev.StatusErr != nil {
			return 0, dev.StatusErr
		}
		if len(data) < 8 {
			return 0, fmt.Errorf("fakeusb: status buffer too small (%d)", len(data))
		}
		dev.polls++
		if dev.running {
			switch {
			case dev.Step <= 0:
				dev.committed = len(dev.Data)
			default:
				dev.committed = min(dev.committed+dev.Step, len(dev.Data))
			}
		}
		var errs uint32
		if dev.ErrorAfter > 0 && dev.polls >= dev.ErrorAfter {
			errs = dev.Errors
		}
		binary.LittleEndian.PutUint32(data[0:4], errs)
		binary.LittleEndian.PutUint32(data[4:8], uint32(dev.committed))
		return 8, nil
	}

	return 0, fmt.Errorf("fakeusb: invalid request type 0x%02x", rtype)
}

func (dev *Device) BulkTransfer(ep uint8, data []byte) (int, error) {
	dev.mu.Lock()
	defer dev.mu.Unlock()

	if ep != epIn {
		return 0, fmt.Errorf("fakeusb: invalid endpoint 0x%02x", ep)
	}
	if dev.BulkErr != nil {
		return 0, dev.BulkErr
	}

	n := min(len(data), dev.committed-dev.served)
	if dev.MaxRead > 0 {
		n = min(n, dev.MaxRead)
	}
	if n <= 0 {
		return 0, ErrNoData
	}
	copy(data, dev.Data[dev.served:dev.served+n])
	dev.served += n
	dev.reads++
	return n, nil
}

func (dev *Device) Close() error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	dev.closed++
	return dev.CloseErr
}

// Controls returns the recorded control transfers.
func (dev *Device) Controls() []Control {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return append([]Control(nil), dev.ctrl...)
}

// Divider returns the clock divider of the last start request.
func (dev *Device) Divider() uint16 {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.divider
}

// Running reports whether the probe is capturing.
func (dev *Device) Running() bool {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.running
}

// Reads returns the number of successful bulk transfers.
func (dev *Device) Reads() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.reads
}

// Closed returns how many times the device was closed.
func (dev *Device) Closed() int {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	return dev.closed
}
