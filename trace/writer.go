// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

import (
	"bufio"
	"io"
)

// ANSI escape sequences for each category.
var colors = [...]string{
	Plain:  "",
	Read:   "\x1b[34m",
	Write:  "\x1b[31m",
	Status: "\x1b[32m",
	Error:  "\x1b[35m",
}

const colorReset = "\x1b[0m"

// Writer renders trace lines as text, optionally with ANSI colors.
type Writer struct {
	w     *bufio.Writer
	color bool
	err   error
}

// NewWriter returns a Writer rendering lines to w.
func NewWriter(w io.Writer, color bool) *Writer {
	return &Writer{
		w:     bufio.NewWriter(w),
		color: color,
	}
}

// WriteLine renders the headline of l and its hex dump rows.
func (w *Writer) WriteLine(l *Line) error {
	if w.err != nil {
		return w.err
	}

	var code string
	if w.color && int(l.Category) < len(colors) {
		code = colors[l.Category]
	}

	w.writeRow(code, l.Text)
	for _, row := range l.Rows {
		w.writeRow(code, row)
	}

	return w.err
}

func (w *Writer) writeRow(code, txt string) {
	if w.err != nil {
		return
	}
	if code != "" {
		_, w.err = w.w.WriteString(code + txt + colorReset + "\n")
		return
	}
	_, w.err = w.w.WriteString(txt + "\n")
}

// Flush writes any buffered data to the underlying io.Writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	w.err = w.w.Flush()
	return w.err
}
