// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ata describes the ATA task-file registers as seen by the
// PATA bus sniffer.
package ata // import "github.com/go-lpc/pata/ata"

import "fmt"

// chip-select line levels, as latched in bits 3 (CS0) and 4 (CS1)
// of a sample address. Both lines are active-low.
const (
	cs0Asserted   = 0x02 << 3
	cs1Asserted   = 0x01 << 3
	csNotAsserted = 0x03 << 3
	offsetMask    = 0x07

	ctrlBlockAddrs = csNotAsserted & cs1Asserted
	cmdBlockAddrs  = cs0Asserted & csNotAsserted
)

// AddressMask selects the 5 address bits of a sample.
const AddressMask = 0x1f

// Register addresses, as synthesized by the probe.
const (
	AddrAltStatus   = 0x06 | ctrlBlockAddrs // ALT_STATUS (read), DEVICE_CONTROL (write)
	AddrData        = 0x00 | cmdBlockAddrs
	AddrError       = 0x01 | cmdBlockAddrs // ERROR (read), FEATURES (write)
	AddrSectorCount = 0x02 | cmdBlockAddrs
	AddrLBALow      = 0x03 | cmdBlockAddrs // CHS sector number
	AddrLBAMid      = 0x04 | cmdBlockAddrs // CHS cylinder low
	AddrLBAHigh     = 0x05 | cmdBlockAddrs // CHS cylinder high
	AddrLBADevice   = 0x06 | cmdBlockAddrs // CHS device/head
	AddrStatus      = 0x07 | cmdBlockAddrs // STATUS (read), COMMAND (write)
)

// Address returns the 5-bit register address selected by the
// provided register offset and chip-select assertions.
func Address(offset uint8, cs0, cs1 bool) uint8 {
	addr := offset & offsetMask
	if !cs0 {
		addr |= 1 << 3
	}
	if !cs1 {
		addr |= 1 << 4
	}
	return addr
}

// ID identifies an ATA register.
type ID uint8

const (
	Unknown ID = iota
	AltStatus
	DeviceControl
	Status
	Command
	Error
	Features
	Data
	SectorCount
	LBALow
	LBAMid
	LBAHigh
	LBADevice
)

var idNames = [...]string{
	Unknown:       "UNKNOWN",
	AltStatus:     "ALT_STATUS",
	DeviceControl: "DEVICE_CONTROL",
	Status:        "STATUS",
	Command:       "COMMAND",
	Error:         "ERROR",
	Features:      "FEATURES",
	Data:          "DATA",
	SectorCount:   "SECTOR_COUNT",
	LBALow:        "LBA_LOW",
	LBAMid:        "LBA_MID",
	LBAHigh:       "LBA_HIGH",
	LBADevice:     "LBA_DEVICE",
}

func (id ID) String() string {
	if int(id) < len(idNames) {
		return idNames[id]
	}
	return fmt.Sprintf("ID(%d)", uint8(id))
}

// Register is a decoded register access.
// Addr is the raw address the register was decoded from.
type Register struct {
	ID   ID
	Addr uint8
}

// Known returns whether the register address is a valid ATA register.
func (r Register) Known() bool { return r.ID != Unknown }

func (r Register) String() string {
	if r.ID == Unknown {
		return fmt.Sprintf("UNKNOWN REGISTER (0x%02x)", r.Addr)
	}
	return r.ID.String()
}

// RegisterFor returns the register addressed by addr for a read
// (isRead=true) or a write access.
// Addresses that do not select an ATA register decode as Unknown.
func RegisterFor(addr uint8, isRead bool) Register {
	reg := Register{Addr: addr}
	switch addr {
	case AddrAltStatus:
		reg.ID = pick(isRead, AltStatus, DeviceControl)
	case AddrStatus:
		reg.ID = pick(isRead, Status, Command)
	case AddrError:
		reg.ID = pick(isRead, Error, Features)
	case AddrData:
		reg.ID = Data
	case AddrSectorCount:
		reg.ID = SectorCount
	case AddrLBALow:
		reg.ID = LBALow
	case AddrLBAMid:
		reg.ID = LBAMid
	case AddrLBAHigh:
		reg.ID = LBAHigh
	case AddrLBADevice:
		reg.ID = LBADevice
	default:
		reg.ID = Unknown
	}
	return reg
}

func pick(read bool, r, w ID) ID {
	if read {
		return r
	}
	return w
}
