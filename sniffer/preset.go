// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniffer

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	MinDivider = 2
	MaxDivider = 1024

	baseClock = 384_000_000 // Hz
)

// Preset is a PIO timing mode of the probe sampling clock.
type Preset uint8

const (
	PIO0 Preset = iota
	PIO1
	PIO2
	PIO3
	PIO4

	DefaultPreset = PIO4
)

var presets = [...]struct {
	label string
	div   uint16
}{
	PIO0: {"PIO0 (600 ns)", 24},
	PIO1: {"PIO1 (383 ns)", 18},
	PIO2: {"PIO2 (240 ns)", 12},
	PIO3: {"PIO3 (180 ns)", 10},
	PIO4: {"PIO4 (120 ns)", 8},
}

// Presets returns all the PIO presets, slowest first.
func Presets() []Preset {
	return []Preset{PIO0, PIO1, PIO2, PIO3, PIO4}
}

// Divider returns the clock divider of the preset.
func (p Preset) Divider() uint16 {
	if int(p) >= len(presets) {
		return presets[DefaultPreset].div
	}
	return presets[p].div
}

func (p Preset) String() string {
	if int(p) >= len(presets) {
		return fmt.Sprintf("Preset(%d)", uint8(p))
	}
	return presets[p].label
}

// ParsePreset parses a preset name such as "PIO3" or "pio3".
func ParsePreset(name string) (Preset, error) {
	for _, p := range Presets() {
		if strings.EqualFold(name, p.String()[:4]) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("sniffer: unknown PIO preset %q", name)
}

// ValidDivider reports whether div is an accepted clock divider.
func ValidDivider(div uint16) bool {
	return MinDivider <= div && div <= MaxDivider
}

// ClockHz returns the sampling frequency for the divider div.
func ClockHz(div uint16) float64 {
	if div == 0 {
		return 0
	}
	return baseClock / float64(div)
}

// FileName returns the default capture file name for a capture started
// at t, in the directory dir.
func FileName(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("capturing-2006.01.02-15.04.05.sniff"))
}
