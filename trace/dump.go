// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/pata/ata"
)

// Dump decodes the samples read from r and writes the annotated trace
// to w. Lines rejected by the optional filter script are skipped.
//
// The trace is written up to the point where the input could not be
// read any further, and the decoding error, if any, is then returned.
func Dump(w io.Writer, r io.Reader, cmds ata.Commands, color bool, filter *Script) error {
	var (
		out = NewWriter(w, color)
		dec = NewDecoder(r, cmds)
	)

	for {
		var l Line
		err := dec.Next(&l)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		if filter != nil {
			keep, err := filter.Filter(&l)
			if err != nil {
				_ = out.Flush()
				return err
			}
			if !keep {
				continue
			}
		}

		err = out.WriteLine(&l)
		if err != nil {
			return fmt.Errorf("trace: could not write line %d: %w", l.Index, err)
		}
	}

	err := out.Flush()
	if err != nil {
		return fmt.Errorf("trace: could not flush trace: %w", err)
	}

	return dec.Err()
}
