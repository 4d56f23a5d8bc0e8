// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ata

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// UnknownCommand is the name of a command code missing from a table.
const UnknownCommand = "UNKNOWN"

//go:embed commands.txt
var defaultCommands []byte

// Commands maps ATA command codes to their names.
type Commands map[uint8]string

// Name returns the name of the command code, or UnknownCommand.
func (cmds Commands) Name(code uint8) string {
	name, ok := cmds[code]
	if !ok {
		return UnknownCommand
	}
	return name
}

// DefaultCommands returns the table of standard ATA/ATAPI command codes.
func DefaultCommands() Commands {
	cmds, err := LoadCommands(bytes.NewReader(defaultCommands))
	if err != nil {
		panic(fmt.Errorf("ata: could not load default command table: %w", err))
	}
	return cmds
}

// ReadCommandsFile loads a command table from the named file.
func ReadCommandsFile(fname string) (Commands, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("ata: could not open command table: %w", err)
	}
	defer f.Close()

	cmds, err := LoadCommands(f)
	if err != nil {
		return nil, fmt.Errorf("ata: could not load command table %q: %w", fname, err)
	}
	return cmds, nil
}

// LoadCommands reads a command table made of HEXCODE=Name lines.
//
// Lines without a '=' separator, or whose code is not an 8-bit
// hexadecimal value (with an optional 0x prefix), are skipped.
// The first occurrence of a code wins.
func LoadCommands(r io.Reader) (Commands, error) {
	var (
		cmds = make(Commands)
		scan = bufio.NewScanner(r)
	)
	for scan.Scan() {
		toks := strings.Split(scan.Text(), "=")
		if len(toks) < 2 {
			continue
		}
		key := strings.TrimSpace(toks[0])
		key = strings.TrimPrefix(strings.TrimPrefix(key, "0x"), "0X")
		code, err := strconv.ParseUint(key, 16, 8)
		if err != nil {
			continue
		}
		if _, dup := cmds[uint8(code)]; dup {
			continue
		}
		cmds[uint8(code)] = strings.TrimSpace(toks[1])
	}

	if err := scan.Err(); err != nil {
		return nil, fmt.Errorf("ata: could not scan command table: %w", err)
	}

	return cmds, nil
}
