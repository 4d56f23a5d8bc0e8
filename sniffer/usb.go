// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniffer

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardnew/softusb/pkg"
)

// Device is an opened probe, with its interface claimed.
type Device interface {
	ControlTransfer(rtype, req uint8, value, index uint16, data []byte) (int, error)
	BulkTransfer(ep uint8, data []byte) (int, error)
	Close() error
}

// Descriptor identifies an opened probe.
type Descriptor struct {
	VendorID  uint16
	ProductID uint16
	USB       uint16 // bcdUSB
	Release   uint16 // bcdDevice
}

func (d Descriptor) String() string {
	return fmt.Sprintf("VID_0x%04x&PID_0x%04x USB %d.%d REV %d.%d",
		d.VendorID, d.ProductID,
		(d.USB&0x0f00)>>8, (d.USB&0x00f0)>>4,
		d.Release>>8, d.Release&0xff,
	)
}

// parseDescriptor decodes a standard USB device descriptor.
func parseDescriptor(p []byte) (Descriptor, error) {
	if len(p) < 18 || p[1] != 0x01 {
		return Descriptor{}, fmt.Errorf("sniffer: invalid device descriptor (len=%d)", len(p))
	}
	return Descriptor{
		USB:       binary.LittleEndian.Uint16(p[2:4]),
		VendorID:  binary.LittleEndian.Uint16(p[8:10]),
		ProductID: binary.LittleEndian.Uint16(p[10:12]),
		Release:   binary.LittleEndian.Uint16(p[12:14]),
	}, nil
}

// OpenFunc opens the first probe matching vid and pid.
// It returns an error wrapping ErrDeviceNotFound when no probe is plugged.
type OpenFunc func(vid, pid uint16, timeout time.Duration) (Device, Descriptor, error)

var (
	usbOpen OpenFunc = usbOpenImpl
)

// SetVerbose switches the USB stack logging to debug level.
func SetVerbose(v bool) {
	lvl := slog.LevelWarn
	if v {
		lvl = slog.LevelDebug
	}
	pkg.SetLogLevel(lvl)
}
