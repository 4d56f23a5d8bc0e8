// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniff

import (
	"io"

	"golang.org/x/xerrors"
)

// Encoder writes samples to an output stream.
type Encoder struct {
	w   io.Writer
	buf []byte
	err error
}

// NewEncoder returns a new Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		w:   w,
		buf: make([]byte, RecordSize),
	}
}

// Encode writes the sample to the stream.
func (enc *Encoder) Encode(s Sample) error {
	if enc.err != nil {
		return enc.err
	}

	Put(enc.buf, s)
	_, err := enc.w.Write(enc.buf)
	if err != nil {
		enc.err = xerrors.Errorf("sniff: could not write sample: %w", err)
	}
	return enc.err
}
