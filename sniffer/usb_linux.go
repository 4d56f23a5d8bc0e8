// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package sniffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardnew/softusb/host/hal"
	"github.com/ardnew/softusb/host/hal/linux"
	"github.com/ardnew/softusb/pkg"
)

const usbIface = 0

// usbDevice is a probe opened through the Linux usbfs host.
type usbDevice struct {
	host *linux.HostHAL
	addr hal.DeviceAddress
}

func usbOpenImpl(vid, pid uint16, timeout time.Duration) (Device, Descriptor, error) {
	host := linux.NewHostHAL()
	host.SetTransferTimeout(uint32(timeout.Milliseconds()))

	err := host.Init(context.Background())
	if err != nil {
		return nil, Descriptor{}, fmt.Errorf("%w: could not initialize usb host: %w", ErrDeviceOpen, err)
	}

	err = host.Start()
	if err != nil {
		_ = host.Close()
		return nil, Descriptor{}, fmt.Errorf("%w: could not start usb host: %w", ErrDeviceOpen, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	addr, desc, err := usbFind(ctx, host, vid, pid)
	if err != nil {
		_ = host.Close()
		return nil, Descriptor{}, err
	}

	err = host.ClaimInterface(addr, usbIface)
	if err != nil {
		_ = host.Close()
		return nil, Descriptor{}, fmt.Errorf("%w: could not claim interface %d: %w", ErrDeviceOpen, usbIface, err)
	}

	return &usbDevice{host: host, addr: addr}, desc, nil
}

// usbFind scans the devices known to the host until one matches vid and
// pid, waiting for hotplug events until ctx expires.
func usbFind(ctx context.Context, host *linux.HostHAL, vid, pid uint16) (hal.DeviceAddress, Descriptor, error) {
	seen := make(map[int]bool)
	for {
		for port := 1; port <= host.NumPorts(); port++ {
			if seen[port] {
				continue
			}
			st, err := host.GetPortStatus(port)
			if err != nil || !st.Connected {
				continue
			}
			seen[port] = true

			addr := hal.DeviceAddress(port)
			desc, err := usbDescriptor(ctx, host, addr)
			if err != nil {
				pkg.LogDebug(pkg.ComponentHAL, "could not read device descriptor", "port", port, "error", err)
				continue
			}
			if desc.VendorID == vid && desc.ProductID == pid {
				return addr, desc, nil
			}
		}

		_, err := host.WaitForConnection(ctx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pkg.ErrCancelled) {
				return 0, Descriptor{}, fmt.Errorf("%w (vid=0x%04x, pid=0x%04x)", ErrDeviceNotFound, vid, pid)
			}
			return 0, Descriptor{}, fmt.Errorf("%w: %w", ErrDeviceOpen, err)
		}
	}
}

func usbDescriptor(ctx context.Context, host *linux.HostHAL, addr hal.DeviceAddress) (Descriptor, error) {
	buf := make([]byte, 18)
	n, err := host.ControlTransfer(ctx, addr, &hal.SetupPacket{
		RequestType: 0x80, // standard, device-to-host, device
		Request:     0x06, // GET_DESCRIPTOR
		Value:       0x0100,
		Length:      uint16(len(buf)),
	}, buf)
	if err != nil {
		return Descriptor{}, err
	}
	return parseDescriptor(buf[:n])
}

func (dev *usbDevice) ControlTransfer(rtype, req uint8, value, index uint16, data []byte) (int, error) {
	return dev.host.ControlTransfer(context.Background(), dev.addr, &hal.SetupPacket{
		RequestType: rtype,
		Request:     req,
		Value:       value,
		Index:       index,
		Length:      uint16(len(data)),
	}, data)
}

func (dev *usbDevice) BulkTransfer(ep uint8, data []byte) (int, error) {
	return dev.host.BulkTransfer(context.Background(), dev.addr, ep, data)
}

func (dev *usbDevice) Close() error {
	errRel := dev.host.ReleaseInterface(dev.addr, usbIface)
	errHost := dev.host.Close()
	if errRel != nil && !errors.Is(errRel, pkg.ErrNoDevice) {
		return fmt.Errorf("sniffer: could not release interface: %w", errRel)
	}
	if errHost != nil {
		return fmt.Errorf("sniffer: could not close usb host: %w", errHost)
	}
	return nil
}
