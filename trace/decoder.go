// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trace reconstructs an annotated ATA protocol trace from
// PATA bus samples.
package trace // import "github.com/go-lpc/pata/trace"

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/pata/ata"
	"github.com/go-lpc/pata/sniff"
)

// Decoder folds a stream of samples into trace lines.
//
// Consecutive DATA register accesses are merged into one burst line,
// repeated reads of an unchanged STATUS or ALT_STATUS register are
// suppressed.
type Decoder struct {
	dec  *sniff.Decoder
	cmds ata.Commands

	st   state
	out  []Line // lines ready to be handed out
	done bool
	err  error
}

// NewDecoder creates a trace decoder reading samples from r.
// Command codes written to the COMMAND register are resolved with cmds.
func NewDecoder(r io.Reader, cmds ata.Commands) *Decoder {
	return &Decoder{
		dec:  sniff.NewDecoder(r),
		cmds: cmds,
	}
}

// Next decodes the next trace line into l.
// Next returns io.EOF when all the lines have been produced.
func (dec *Decoder) Next(l *Line) error {
	for len(dec.out) == 0 {
		if dec.done {
			return io.EOF
		}
		dec.step()
	}
	*l = dec.out[0]
	dec.out[0] = Line{}
	dec.out = dec.out[1:]
	return nil
}

// Err returns the error that stopped the decoding, if any.
// Err returns nil if the input ended on a sample boundary.
func (dec *Decoder) Err() error {
	return dec.err
}

func (dec *Decoder) emit(l Line) {
	dec.out = append(dec.out, l)
}

func (dec *Decoder) step() {
	var (
		i = dec.dec.Index()
		s sniff.Sample
	)
	err := dec.dec.Decode(&s)
	if err != nil {
		dec.closeBurst()
		dec.done = true
		if errors.Is(err, io.EOF) {
			return
		}
		dec.err = fmt.Errorf("trace: could not decode sample: %w", err)
		dec.emit(Line{
			Kind:     IOError,
			Category: Plain,
			Index:    i,
			Text:     "File reading error!",
		})
		return
	}

	dec.sample(i, s)
}

func (dec *Decoder) sample(i int64, s sniff.Sample) {
	if !s.Valid() {
		dec.emit(Line{
			Kind:     Framing,
			Category: Plain,
			Index:    i,
			Text:     fmt.Sprintf("%08x: INCORRECT STATE!", i),
		})
		return
	}

	var (
		read = s.IsRead()
		reg  = ata.RegisterFor(s.Addr, read)
	)

	switch reg.ID {
	case ata.AltStatus:
		if dec.st.alt.dup(i, s.Data) {
			return
		}
	case ata.Status:
		if dec.st.status.dup(i, s.Data) {
			return
		}
	case ata.Data:
		dec.st.burst.add(i, read, s.Data)
		return
	}

	dec.closeBurst()

	lo := uint8(s.Data)
	dec.emit(Line{
		Kind:     Single,
		Category: categoryOf(reg, read),
		Index:    i,
		Read:     read,
		Register: reg,
		Data:     s.Data,
		Text: fmt.Sprintf(
			"%08x: [%02x|%c] %s %s",
			i, lo, printable(lo), dirMarker(read), dec.annotate(reg, s.Data),
		),
	})
}

// closeBurst emits the summary line of the open burst, if any.
func (dec *Decoder) closeBurst() {
	b := &dec.st.burst
	if !b.open {
		return
	}

	rw := "write"
	cat := Write
	if b.read {
		rw = "read"
		cat = Read
	}

	dec.emit(Line{
		Kind:     Burst,
		Category: cat,
		Index:    b.start,
		Read:     b.read,
		Register: ata.Register{ID: ata.Data, Addr: ata.AddrData},
		Samples:  b.n,
		Bytes:    b.data,
		Text: fmt.Sprintf(
			"%08x: [....] %s PIO data %s (%d bytes)",
			b.start, dirMarker(b.read), rw, len(b.data),
		),
		Rows: hexRows(b.data),
	})

	*b = burst{}
}

func (dec *Decoder) annotate(reg ata.Register, v uint16) string {
	switch reg.ID {
	case ata.AltStatus:
		return fmt.Sprintf("ALT_STATUS [ %v ]", ata.StatusFlags(uint8(v)))
	case ata.Status:
		return fmt.Sprintf("STATUS     [ %v ]", ata.StatusFlags(uint8(v)))
	case ata.Error:
		return fmt.Sprintf("ERROR      [ %v ]", ata.ErrorFlags(uint8(v)))
	case ata.Command:
		return fmt.Sprintf("COMMAND (%s)", dec.cmds.Name(uint8(v)))
	default:
		return reg.String()
	}
}

func categoryOf(reg ata.Register, read bool) Category {
	if !read {
		return Write
	}
	switch reg.ID {
	case ata.AltStatus, ata.Status:
		return Status
	case ata.Error:
		return Error
	}
	return Read
}
