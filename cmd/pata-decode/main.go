// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// pata-decode decodes and displays PATA bus sample files.
//
// Usage: pata-decode [OPTIONS] FILE1 [FILE2 [FILE3 ...]]
//
// Example:
//
//	$> pata-decode ./capturing-2025.03.07-14.05.09.sniff
//	00000000: [ec|.] >> COMMAND (IDENTIFY DEVICE)
//	00000001: [80|.] << ALT_STATUS [ BSY --- --- --- --- --- --- --- ]
//	00000003: [58|X] << STATUS     [ --- DRD --- DSC DRQ --- --- --- ]
//	00000004: [....] << PIO data read (512 bytes)
//	    0000: 5a 04 ff 3f 37 c8 10 00 00 00 00 00 3f 00 00 00 | Z..?7.......?...
//	[...]
package main // import "github.com/go-lpc/pata/cmd/pata-decode"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-lpc/pata/ata"
	"github.com/go-lpc/pata/sniff"
	"github.com/go-lpc/pata/trace"
	"golang.org/x/term"
)

func main() {
	log.SetPrefix("pata-decode: ")
	log.SetFlags(0)

	var (
		cmds  = flag.String("cmds", "", "path to a CODE=NAME file of ATA command names")
		color = flag.String("color", "auto", "colorize output (auto|always|never)")
		lua   = flag.String("lua", "", "path to a Lua script defining a filter(line) function")
	)

	flag.Usage = func() {
		fmt.Printf(`pata-decode decodes and displays PATA bus sample files.

Usage: pata-decode [OPTIONS] FILE1 [FILE2 [FILE3 ...]]

Example:

 $> pata-decode ./capturing-2025.03.07-14.05.09.sniff
 00000000: [ec|.] >> COMMAND (IDENTIFY DEVICE)
 00000001: [80|.] << ALT_STATUS [ BSY --- --- --- --- --- --- --- ]
 00000003: [58|X] << STATUS     [ --- DRD --- DSC DRQ --- --- --- ]
 00000004: [....] << PIO data read (512 bytes)
     0000: 5a 04 ff 3f 37 c8 10 00 00 00 00 00 3f 00 00 00 | Z..?7.......?...
 [...]

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		log.Fatalf("missing path to input sample file")
	}

	colorize, err := colorMode(*color, func() bool {
		return term.IsTerminal(int(os.Stdout.Fd()))
	})
	if err != nil {
		log.Fatalf("%+v", err)
	}

	names := ata.DefaultCommands()
	if *cmds != "" {
		names, err = ata.ReadCommandsFile(*cmds)
		if err != nil {
			log.Fatalf("could not load ATA commands: %+v", err)
		}
	}

	var filter *trace.Script
	if *lua != "" {
		filter, err = trace.LoadScript(*lua)
		if err != nil {
			log.Fatalf("could not load filter: %+v", err)
		}
		defer filter.Close()
	}

	for _, fname := range flag.Args() {
		err := process(os.Stdout, fname, names, colorize, filter)
		if err != nil {
			log.Fatalf("could not decode file %q: %+v", fname, err)
		}
	}
}

func colorMode(mode string, isTerm func() bool) (bool, error) {
	switch mode {
	case "auto":
		return isTerm(), nil
	case "always":
		return true, nil
	case "never":
		return false, nil
	}
	return false, fmt.Errorf("invalid -color value %q", mode)
}

func process(w io.Writer, fname string, cmds ata.Commands, color bool, filter *trace.Script) error {
	f, err := sniff.Open(fname)
	if err != nil {
		return fmt.Errorf("could not open %q: %w", fname, err)
	}
	defer f.Close()

	err = trace.Dump(w, f.Reader(), cmds, color, filter)
	if err != nil {
		return fmt.Errorf("could not decode trace: %w", err)
	}

	return nil
}
