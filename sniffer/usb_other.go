// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package sniffer

import (
	"fmt"
	"runtime"
	"time"
)

func usbOpenImpl(vid, pid uint16, timeout time.Duration) (Device, Descriptor, error) {
	return nil, Descriptor{}, fmt.Errorf("%w (vid=0x%04x, pid=0x%04x): no usb host on %s",
		ErrDeviceNotFound, vid, pid, runtime.GOOS,
	)
}
