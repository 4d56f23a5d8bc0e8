// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-lpc/pata/ata"
	"github.com/go-lpc/pata/internal/fakeusb"
	"github.com/go-lpc/pata/sniff"
	"github.com/go-lpc/pata/sniffer"
)

type lockedWriter struct {
	mu sync.Mutex
	o  strings.Builder
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.o.Write(p)
}

func (w *lockedWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.o.String()
}

func (w *lockedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.o.Reset()
}

func openFake(dev *fakeusb.Device) sniffer.Option {
	return sniffer.WithOpen(func(vid, pid uint16, timeout time.Duration) (sniffer.Device, sniffer.Descriptor, error) {
		return dev, sniffer.Descriptor{VendorID: vid, ProductID: pid, USB: 0x0200, Release: 0x0100}, nil
	})
}

func TestShell(t *testing.T) {
	var (
		dir  = t.TempDir()
		beg  = time.Date(2025, 3, 7, 14, 5, 9, 0, time.UTC)
		data = make([]byte, 400)
		dev  = &fakeusb.Device{Data: data, Step: 100}
		out  = new(lockedWriter)
	)
	for i := range data {
		data[i] = byte(i)
	}

	sh := newShell(out, ".", ata.DefaultCommands(), false,
		openFake(dev),
		sniffer.WithPollInterval(time.Millisecond),
	)
	sh.now = func() time.Time { return beg }
	defer sh.close()

	quit, err := sh.exec("start")
	if !errors.Is(err, sniffer.ErrNotConnected) {
		t.Fatalf("invalid error: %+v", err)
	}
	if quit {
		t.Fatalf("shell should not quit")
	}

	for _, line := range []string{"connect", "dir " + dir, "start pio2"} {
		_, err = sh.exec(line)
		if err != nil {
			t.Fatalf("could not run %q: %+v", line, err)
		}
	}

	for sh.sess.Stats().Bytes == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err = sh.exec("stop")
	if err != nil {
		t.Fatalf("could not stop capture: %+v", err)
	}

	fname := sniffer.FileName(dir, beg)
	got, err := os.ReadFile(fname)
	if err != nil {
		t.Fatalf("could not read capture file: %+v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("invalid capture file content (len=%d)", len(got))
	}
	if got, want := dev.Divider(), uint16(12); got != want {
		t.Fatalf("invalid divider: got=%d, want=%d", got, want)
	}

	for _, want := range []string{
		"Sniffer device found: VID_0x04b4&PID_0x0101 USB 2.0 REV 1.0\n",
		"File opened: " + fname + "\n",
		"Samples collected: 0, error count: 0\n",
		"Samples collected: 100, error count: 0\n",
		"Completed.\n",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}

	_, err = sh.exec("stop")
	if !errors.Is(err, sniffer.ErrNotCapturing) {
		t.Fatalf("invalid error: %+v", err)
	}

	out.Reset()
	_, err = sh.exec("status")
	if err != nil {
		t.Fatalf("could not run status: %+v", err)
	}
	want := strings.Join([]string{
		"device:  VID_0x04b4&PID_0x0101 USB 2.0 REV 1.0",
		"state:   idle",
		"divider: 12 (32.0 MHz)",
		"dir:     " + dir,
		"file:    " + fname,
		"Samples collected: 100, error count: 0",
	}, "\n") + "\n"
	if got := out.String(); got != want {
		t.Fatalf("invalid status:\ngot:\n%s\nwant:\n%s", got, want)
	}

	quit, err = sh.exec("quit")
	if err != nil {
		t.Fatalf("could not quit: %+v", err)
	}
	if !quit {
		t.Fatalf("shell should quit")
	}
}

func TestShellDecode(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "trace.sniff")
	buf := new(bytes.Buffer)
	enc := sniff.NewEncoder(buf)
	for _, s := range []sniff.Sample{
		{Data: 0xec, Addr: ata.AddrStatus, DIOR: true},
		{Data: 0x58, Addr: ata.AddrStatus, DIOW: true},
		{Data: 0x4241, Addr: ata.AddrData, DIOW: true},
	} {
		err := enc.Encode(s)
		if err != nil {
			t.Fatalf("could not encode sample: %+v", err)
		}
	}
	err := os.WriteFile(fname, buf.Bytes(), 0644)
	if err != nil {
		t.Fatalf("could not create sample file: %+v", err)
	}

	out := new(lockedWriter)
	sh := newShell(out, ".", ata.DefaultCommands(), false, openFake(new(fakeusb.Device)))
	defer sh.close()

	_, err = sh.exec("decode " + fname)
	if err != nil {
		t.Fatalf("could not decode: %+v", err)
	}

	want := `00000000: [ec|.] >> COMMAND (IDENTIFY DEVICE)
00000001: [58|X] << STATUS     [ --- DRD --- DSC DRQ --- --- --- ]
00000002: [....] << PIO data read (2 bytes)
    0000: 41 42 | AB
`
	if got := out.String(); got != want {
		t.Fatalf("invalid decode output:\ngot:\n%s\nwant:\n%s", got, want)
	}

	_, err = sh.exec("decode")
	if err == nil {
		t.Fatalf("expected a usage error")
	}
}

func TestShellErrors(t *testing.T) {
	sh := newShell(new(lockedWriter), ".", nil, false, openFake(new(fakeusb.Device)))
	defer sh.close()

	for _, tc := range []struct {
		line string
		err  string
	}{
		{"frobnicate", `unknown command "frobnicate" (try "help")`},
		{"start udma5", `invalid PIO preset or clock divider "udma5"`},
		{"start 1", "sniffer: invalid clock divider: 1 not in [2, 1024]"},
		{"dir a b", "usage: dir [DIR]"},
		{"stop", "sniffer: no capture in progress"},
	} {
		t.Run(tc.line, func(t *testing.T) {
			_, err := sh.exec(tc.line)
			if err == nil {
				t.Fatalf("expected an error")
			}
			if got, want := err.Error(), tc.err; got != want {
				t.Fatalf("invalid error:\ngot= %v\nwant=%v", got, want)
			}
		})
	}

	fname := filepath.Join(t.TempDir(), "file")
	err := os.WriteFile(fname, nil, 0644)
	if err != nil {
		t.Fatalf("could not create file: %+v", err)
	}
	_, err = sh.exec("dir " + fname)
	if err == nil {
		t.Fatalf("expected an error for a non-directory")
	}
}

func TestShellHelp(t *testing.T) {
	out := new(lockedWriter)
	sh := newShell(out, ".", nil, false, openFake(new(fakeusb.Device)))
	defer sh.close()

	for _, line := range []string{"help", "presets", "dir", "version", ""} {
		_, err := sh.exec(line)
		if err != nil {
			t.Fatalf("could not run %q: %+v", line, err)
		}
	}

	for _, want := range []string{
		"  connect            connect to the sniffer device\n",
		"  start [PIOn|N]     start a capture with a PIO preset or a clock divider\n",
		"PIO0 (600 ns): divider=24 (16.0 MHz)\n",
		"PIO4 (120 ns): divider=8 (48.0 MHz)\n",
		"dir: .\n",
		"pata-sniff ",
	} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("missing %q in output:\n%s", want, out.String())
		}
	}
}

func TestComplete(t *testing.T) {
	for _, tc := range []struct {
		line string
		want []string
	}{
		{"st", []string{"start", "status", "stop"}},
		{"q", []string{"quit"}},
		{"v", []string{"version"}},
		{"start p", []string{"start pio0", "start pio1", "start pio2", "start pio3", "start pio4"}},
		{"start PIO3", []string{"start pio3"}},
		{"x", nil},
	} {
		t.Run(tc.line, func(t *testing.T) {
			got := complete(tc.line)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("invalid completion: got=%q, want=%q", got, tc.want)
			}
		})
	}
}
