// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestAddress(t *testing.T) {
	for _, tc := range []struct {
		offset   uint8
		cs0, cs1 bool
		want     uint8
	}{
		{6, false, true, AddrAltStatus},
		{0, true, false, AddrData},
		{1, true, false, AddrError},
		{2, true, false, AddrSectorCount},
		{3, true, false, AddrLBALow},
		{4, true, false, AddrLBAMid},
		{5, true, false, AddrLBAHigh},
		{6, true, false, AddrLBADevice},
		{7, true, false, AddrStatus},
		{7, true, true, 0x07},
		{7, false, false, 0x1f},
		{0xff, true, false, AddrStatus},
	} {
		got := Address(tc.offset, tc.cs0, tc.cs1)
		if got != tc.want {
			t.Fatalf("invalid address(%d, %v, %v): got=0x%02x, want=0x%02x",
				tc.offset, tc.cs0, tc.cs1, got, tc.want,
			)
		}
	}
}

func TestRegisterFor(t *testing.T) {
	for _, tc := range []struct {
		addr uint8
		read bool
		want string
	}{
		{0x0e, true, "ALT_STATUS"},
		{0x0e, false, "DEVICE_CONTROL"},
		{0x17, true, "STATUS"},
		{0x17, false, "COMMAND"},
		{0x11, true, "ERROR"},
		{0x11, false, "FEATURES"},
		{0x10, true, "DATA"},
		{0x10, false, "DATA"},
		{0x12, true, "SECTOR_COUNT"},
		{0x13, false, "LBA_LOW"},
		{0x14, true, "LBA_MID"},
		{0x15, false, "LBA_HIGH"},
		{0x16, true, "LBA_DEVICE"},
		{0x00, true, "UNKNOWN REGISTER (0x00)"},
		{0x0f, false, "UNKNOWN REGISTER (0x0f)"},
		{0x1f, true, "UNKNOWN REGISTER (0x1f)"},
	} {
		reg := RegisterFor(tc.addr, tc.read)
		if got, want := reg.String(), tc.want; got != want {
			t.Fatalf("invalid register(0x%02x, read=%v): got=%q, want=%q",
				tc.addr, tc.read, got, want,
			)
		}
		if got, want := reg.Addr, tc.addr; got != want {
			t.Fatalf("invalid register address: got=0x%02x, want=0x%02x", got, want)
		}
		if got, want := reg.Known(), !strings.HasPrefix(tc.want, "UNKNOWN"); got != want {
			t.Fatalf("invalid known-ness for 0x%02x: got=%v, want=%v", tc.addr, got, want)
		}
	}

	// the map is total.
	for addr := 0; addr < 256; addr++ {
		for _, read := range []bool{true, false} {
			_ = RegisterFor(uint8(addr), read).String()
		}
	}

	if got, want := ID(42).String(), "ID(42)"; got != want {
		t.Fatalf("invalid ID string: got=%q, want=%q", got, want)
	}
}

func TestFlags(t *testing.T) {
	for _, tc := range []struct {
		name string
		f    func(uint8) Flags
		v    uint8
		want string
	}{
		{"status-none", StatusFlags, 0x00, "--- --- --- --- --- --- --- ---"},
		{"status-all", StatusFlags, 0xff, "BSY DRD DWF DSC DRQ CRR IDX ERR"},
		{"status-ready", StatusFlags, 0x50, "--- DRD --- DSC --- --- --- ---"},
		{"status-drq", StatusFlags, 0x58, "--- DRD --- DSC DRQ --- --- ---"},
		{"status-err", StatusFlags, 0x51, "--- DRD --- DSC --- --- --- ERR"},
		{"error-none", ErrorFlags, 0x00, "--- --- --- --- --- --- --- ---"},
		{"error-all", ErrorFlags, 0xff, "BBK UNC MCD INF MCR ABR T0N AMN"},
		{"error-abrt", ErrorFlags, 0x04, "--- --- --- --- --- ABR --- ---"},
		{"error-msb", ErrorFlags, 0x80, "BBK --- --- --- --- --- --- ---"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			flags := tc.f(tc.v)
			if got, want := flags.String(), tc.want; got != want {
				t.Fatalf("invalid flags:\ngot= %q\nwant=%q", got, want)
			}
			if got, want := len(strings.Fields(flags.String())), 8; got != want {
				t.Fatalf("invalid number of tokens: got=%d, want=%d", got, want)
			}
		})
	}
}

func TestLoadCommands(t *testing.T) {
	const table = `
EC=IDENTIFY DEVICE
  20 = READ SECTORS
0x30=WRITE SECTORS
ec=DUPLICATE IDENTIFY
E7
ZZ=NOT HEX
100=TOO LARGE
=NO CODE
C8=READ DMA=EXTRA
`
	cmds, err := LoadCommands(strings.NewReader(table))
	if err != nil {
		t.Fatalf("could not load commands: %+v", err)
	}

	want := Commands{
		0xec: "IDENTIFY DEVICE",
		0x20: "READ SECTORS",
		0x30: "WRITE SECTORS",
		0xc8: "READ DMA",
	}
	if !reflect.DeepEqual(cmds, want) {
		t.Fatalf("invalid command table:\ngot= %v\nwant=%v", cmds, want)
	}

	for _, tc := range []struct {
		code uint8
		want string
	}{
		{0xec, "IDENTIFY DEVICE"},
		{0x20, "READ SECTORS"},
		{0xe7, "UNKNOWN"},
		{0x00, "UNKNOWN"},
	} {
		if got, want := cmds.Name(tc.code), tc.want; got != want {
			t.Fatalf("invalid name for 0x%02x: got=%q, want=%q", tc.code, got, want)
		}
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLoadCommandsError(t *testing.T) {
	_, err := LoadCommands(failingReader{})
	if err == nil {
		t.Fatalf("expected an error")
	}
	if got, want := err.Error(), "ata: could not scan command table: boom"; got != want {
		t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
	}
}

func TestReadCommandsFile(t *testing.T) {
	tmp := t.TempDir()
	fname := filepath.Join(tmp, "AtaCommandCodes.txt")
	err := os.WriteFile(fname, []byte("EF=SET FEATURES\nA1=IDENTIFY PACKET DEVICE\n"), 0644)
	if err != nil {
		t.Fatalf("could not create command table: %+v", err)
	}

	cmds, err := ReadCommandsFile(fname)
	if err != nil {
		t.Fatalf("could not read command table: %+v", err)
	}
	if got, want := cmds.Name(0xef), "SET FEATURES"; got != want {
		t.Fatalf("invalid name: got=%q, want=%q", got, want)
	}

	_, err = ReadCommandsFile(filepath.Join(tmp, "missing.txt"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("invalid error: %+v", err)
	}
}

func TestDefaultCommands(t *testing.T) {
	cmds := DefaultCommands()
	for _, tc := range []struct {
		code uint8
		want string
	}{
		{0xec, "IDENTIFY DEVICE"},
		{0x20, "READ SECTORS"},
		{0xc8, "READ DMA"},
		{0xef, "SET FEATURES"},
		{0xff, "UNKNOWN"},
	} {
		if got, want := cmds.Name(tc.code), tc.want; got != want {
			t.Fatalf("invalid name for 0x%02x: got=%q, want=%q", tc.code, got, want)
		}
	}
}
