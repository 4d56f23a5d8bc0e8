// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniff

import (
	"errors"
	"io"

	"golang.org/x/xerrors"
)

// ErrTruncatedRecord is returned when the input ends in the middle of
// a sample record.
var ErrTruncatedRecord = errors.New("sniff: truncated record")

// Decoder reads samples from an underlying data source.
type Decoder struct {
	r   io.Reader
	buf []byte
	err error
	n   int64 // number of decoded samples
}

// NewDecoder creates a decoder that reads samples from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:   r,
		buf: make([]byte, RecordSize),
	}
}

// Index returns the index of the next sample to be decoded.
func (dec *Decoder) Index() int64 { return dec.n }

// Decode reads the next sample.
//
// Decode returns io.EOF when the input ends on a record boundary,
// and an error wrapping ErrTruncatedRecord when it ends mid-record.
func (dec *Decoder) Decode(s *Sample) error {
	if dec.err != nil {
		return dec.err
	}

	_, err := io.ReadFull(dec.r, dec.buf)
	switch {
	case err == nil:
		// ok.
	case errors.Is(err, io.EOF):
		dec.err = io.EOF
		return dec.err
	case errors.Is(err, io.ErrUnexpectedEOF):
		dec.err = xerrors.Errorf("sniff: could not read sample %d: %w", dec.n, ErrTruncatedRecord)
		return dec.err
	default:
		dec.err = xerrors.Errorf("sniff: could not read sample %d: %w", dec.n, err)
		return dec.err
	}

	*s = Get(dec.buf)
	dec.n++
	return nil
}
