// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fakeusb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func status(t *testing.T, dev *Device) (errs, n uint32) {
	t.Helper()
	buf := make([]byte, 8)
	_, err := dev.ControlTransfer(reqIn, vendor, 0, 0, buf)
	if err != nil {
		t.Fatalf("could not poll status: %+v", err)
	}
	return binary.LittleEndian.Uint32(buf[:4]), binary.LittleEndian.Uint32(buf[4:])
}

func TestDevice(t *testing.T) {
	dev := &Device{
		Data:       []byte("0123456789"),
		Step:       4,
		MaxRead:    3,
		Errors:     2,
		ErrorAfter: 3,
	}

	_, err := dev.ControlTransfer(reqOut, vendor, 8, 0, nil)
	if err != nil {
		t.Fatalf("could not start: %+v", err)
	}
	if got, want := dev.Divider(), uint16(8); got != want {
		t.Fatalf("invalid divider: got=%d, want=%d", got, want)
	}

	for i, want := range []struct{ errs, n uint32 }{
		{0, 4}, {0, 8}, {2, 10},
	} {
		errs, n := status(t, dev)
		if errs != want.errs || n != want.n {
			t.Fatalf("poll %d: got=(%d, %d), want=(%d, %d)", i, errs, n, want.errs, want.n)
		}
	}

	var (
		got = new(bytes.Buffer)
		buf = make([]byte, 16)
	)
	for {
		n, err := dev.BulkTransfer(epIn, buf)
		if err != nil {
			if !errors.Is(err, ErrNoData) {
				t.Fatalf("invalid bulk error: %+v", err)
			}
			break
		}
		if n > 3 {
			t.Fatalf("bulk read too large: %d", n)
		}
		got.Write(buf[:n])
	}
	if !bytes.Equal(got.Bytes(), dev.Data) {
		t.Fatalf("invalid payload: got=%q, want=%q", got.Bytes(), dev.Data)
	}
	if got, want := dev.Reads(), 4; got != want {
		t.Fatalf("invalid number of reads: got=%d, want=%d", got, want)
	}

	_, err = dev.ControlTransfer(reqOut, vendor, 0, 0, nil)
	if err != nil {
		t.Fatalf("could not stop: %+v", err)
	}
	if dev.Running() {
		t.Fatalf("device still running")
	}

	if got, want := len(dev.Controls()), 5; got != want {
		t.Fatalf("invalid number of control transfers: got=%d, want=%d", got, want)
	}

	_ = dev.Close()
	_ = dev.Close()
	if got, want := dev.Closed(), 2; got != want {
		t.Fatalf("invalid close count: got=%d, want=%d", got, want)
	}
}

func TestDeviceStopCommitsRemainder(t *testing.T) {
	dev := &Device{Data: make([]byte, 100), Step: 10}
	_, _ = dev.ControlTransfer(reqOut, vendor, 12, 0, nil)
	_, n := status(t, dev)
	if n != 10 {
		t.Fatalf("invalid committed bytes: got=%d, want=%d", n, 10)
	}
	_, _ = dev.ControlTransfer(reqOut, vendor, 0, 0, nil)
	_, n = status(t, dev)
	if n != 100 {
		t.Fatalf("invalid committed bytes after stop: got=%d, want=%d", n, 100)
	}
}

func TestDeviceErrors(t *testing.T) {
	boom := errors.New("boom")
	for _, tc := range []struct {
		name string
		dev  *Device
		call func(dev *Device) error
	}{
		{
			name: "start",
			dev:  &Device{StartErr: boom},
			call: func(dev *Device) error {
				_, err := dev.ControlTransfer(reqOut, vendor, 8, 0, nil)
				return err
			},
		},
		{
			name: "stop",
			dev:  &Device{StopErr: boom},
			call: func(dev *Device) error {
				_, err := dev.ControlTransfer(reqOut, vendor, 0, 0, nil)
				return err
			},
		},
		{
			name: "status",
			dev:  &Device{StatusErr: boom},
			call: func(dev *Device) error {
				_, err := dev.ControlTransfer(reqIn, vendor, 0, 0, make([]byte, 8))
				return err
			},
		},
		{
			name: "bulk",
			dev:  &Device{BulkErr: boom},
			call: func(dev *Device) error {
				_, err := dev.BulkTransfer(epIn, make([]byte, 8))
				return err
			},
		},
		{
			name: "close",
			dev:  &Device{CloseErr: boom},
			call: func(dev *Device) error {
				return dev.Close()
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call(tc.dev)
			if !errors.Is(err, boom) {
				t.Fatalf("invalid error: got=%v, want=%v", err, boom)
			}
		})
	}
}
