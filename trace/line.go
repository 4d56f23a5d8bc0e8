// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-lpc/pata/ata"
)

// Kind describes what a trace line stands for.
type Kind uint8

const (
	Single  Kind = iota // a single register access
	Burst               // a merged run of DATA register accesses
	Framing             // a sample with both or neither strobes set
	IOError             // the sample source could not be read
)

func (k Kind) String() string {
	switch k {
	case Single:
		return "sample"
	case Burst:
		return "burst"
	case Framing:
		return "framing"
	case IOError:
		return "ioerror"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Category is the semantic class of a line, used for styling.
type Category uint8

const (
	Plain  Category = iota // framing and I/O errors
	Read                   // host reads
	Write                  // host writes
	Status                 // STATUS and ALT_STATUS reads
	Error                  // ERROR register reads
)

func (c Category) String() string {
	switch c {
	case Plain:
		return "plain"
	case Read:
		return "read"
	case Write:
		return "write"
	case Status:
		return "status"
	case Error:
		return "error"
	}
	return fmt.Sprintf("Category(%d)", uint8(c))
}

// Line is an annotated trace line.
type Line struct {
	Kind     Kind
	Category Category
	Index    int64 // sample index, or first sample index of a burst
	Read     bool
	Register ata.Register
	Data     uint16 // data lines of a single access

	Samples int    // number of samples merged in a burst
	Bytes   []byte // burst payload, low byte first

	Text string   // headline
	Rows []string // hex dump of a burst, 16 bytes per row
}

func (l Line) String() string {
	if len(l.Rows) == 0 {
		return l.Text
	}
	return l.Text + "\n" + strings.Join(l.Rows, "\n")
}

// Format writes the headline of l then its hex dump rows to w, one per
// text line.
func (l Line) Format(w io.Writer) error {
	_, err := io.WriteString(w, l.String()+"\n")
	if err != nil {
		return fmt.Errorf("trace: could not format line %d: %w", l.Index, err)
	}
	return nil
}

func dirMarker(read bool) string {
	if read {
		return "<<"
	}
	return ">>"
}

func printable(v byte) byte {
	if v < 0x20 || v > 0x7e {
		return '.'
	}
	return v
}

func hexRows(p []byte) []string {
	const width = 16
	var (
		rows = make([]string, 0, (len(p)+width-1)/width)
		o    strings.Builder
	)
	for beg := 0; beg < len(p); beg += width {
		end := min(beg+width, len(p))
		o.Reset()
		fmt.Fprintf(&o, "    %04x: ", beg)
		for _, v := range p[beg:end] {
			fmt.Fprintf(&o, "%02x ", v)
		}
		o.WriteString("| ")
		for _, v := range p[beg:end] {
			o.WriteByte(printable(v))
		}
		rows = append(rows, o.String())
	}
	return rows
}
