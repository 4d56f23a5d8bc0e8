// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniff

import (
	"fmt"
	"io"

	"github.com/go-lpc/pata/internal/mmap"
)

// File is a read-only, memory-mapped sample file.
type File struct {
	name string
	h    *mmap.Handle
}

// Open opens the named sample file for reading.
func Open(fname string) (*File, error) {
	h, err := mmap.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("sniff: could not open sample file: %w", err)
	}
	return &File{name: fname, h: h}, nil
}

// Name returns the name of the file.
func (f *File) Name() string { return f.name }

// Size returns the size of the file in bytes.
func (f *File) Size() int64 { return int64(f.h.Len()) }

// Len returns the number of complete samples in the file.
func (f *File) Len() int { return f.h.Len() / RecordSize }

// Tail returns the number of trailing bytes that do not form a
// complete sample. A non-zero tail denotes a truncated file.
func (f *File) Tail() int { return f.h.Len() % RecordSize }

// At returns the i-th sample of the file.
func (f *File) At(i int) Sample {
	beg := i * RecordSize
	return Get(f.h.Bytes()[beg : beg+RecordSize])
}

// Reader returns a reader over the whole file content.
func (f *File) Reader() io.Reader {
	return io.NewSectionReader(f.h, 0, f.Size())
}

// Close unmaps the file.
func (f *File) Close() error {
	err := f.h.Close()
	if err != nil {
		return fmt.Errorf("sniff: could not close sample file %q: %w", f.name, err)
	}
	return nil
}
