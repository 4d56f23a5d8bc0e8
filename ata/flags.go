// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import "strings"

// Flags holds the 8 flag tokens of a register, most-significant bit first.
// A bit that is not set is rendered as "---".
type Flags [8]string

func (f Flags) String() string {
	return strings.Join(f[:], " ")
}

const noFlag = "---"

var (
	statusNames = [8]string{"BSY", "DRD", "DWF", "DSC", "DRQ", "CRR", "IDX", "ERR"}
	errorNames  = [8]string{"BBK", "UNC", "MCD", "INF", "MCR", "ABR", "T0N", "AMN"}
)

// StatusFlags interprets v as a STATUS or ALT_STATUS register value.
func StatusFlags(v uint8) Flags {
	return flagsOf(v, &statusNames)
}

// ErrorFlags interprets v as an ERROR register value.
func ErrorFlags(v uint8) Flags {
	return flagsOf(v, &errorNames)
}

func flagsOf(v uint8, names *[8]string) Flags {
	var flags Flags
	for i := range flags {
		flags[i] = noFlag
		if v&(0x80>>i) != 0 {
			flags[i] = names[i]
		}
	}
	return flags
}
