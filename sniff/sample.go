// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sniff reads and writes PATA bus samples, as captured by the
// sniffer probe.
//
// A sample file is a flat sequence of 4-byte little-endian records,
// without header nor footer:
//
//	bits [ 0,16): data lines
//	bits [16,21): register address (chip selects + offset)
//	bits [21,24): reserved
//	bit  24     : DIOR strobe
//	bit  25     : DIOW strobe
//	bits [26,32): reserved
package sniff // import "github.com/go-lpc/pata/sniff"

import (
	"encoding/binary"
	"fmt"
)

// RecordSize is the size in bytes of an encoded sample.
const RecordSize = 4

const (
	addrShift = 16
	addrMask  = 0x1f
	diorBit   = 1 << 24
	diowBit   = 1 << 25
)

// Sample is a single bus access latched by the probe.
type Sample struct {
	Data uint16 // data lines
	Addr uint8  // 5-bit register address
	DIOR bool   // read strobe
	DIOW bool   // write strobe
}

// Valid returns whether exactly one of the read/write strobes is set.
func (s Sample) Valid() bool { return s.DIOR != s.DIOW }

// IsRead returns whether the sample is a read access from the host.
func (s Sample) IsRead() bool { return !s.DIOR }

func (s Sample) String() string {
	return fmt.Sprintf(
		"Sample{Data: 0x%04x, Addr: 0x%02x, DIOR: %v, DIOW: %v}",
		s.Data, s.Addr, s.DIOR, s.DIOW,
	)
}

// Put encodes s into the first RecordSize bytes of p.
// Address bits beyond the 5-bit address space are dropped.
func Put(p []byte, s Sample) {
	v := uint32(s.Data) | uint32(s.Addr&addrMask)<<addrShift
	if s.DIOR {
		v |= diorBit
	}
	if s.DIOW {
		v |= diowBit
	}
	binary.LittleEndian.PutUint32(p[:RecordSize], v)
}

// Get decodes a sample from the first RecordSize bytes of p.
// Reserved bits are ignored.
func Get(p []byte) Sample {
	v := binary.LittleEndian.Uint32(p[:RecordSize])
	return Sample{
		Data: uint16(v),
		Addr: uint8(v>>addrShift) & addrMask,
		DIOR: v&diorBit != 0,
		DIOW: v&diowBit != 0,
	}
}
