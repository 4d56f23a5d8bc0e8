// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trace

// tracker follows the successive reads of a polled register.
type tracker struct {
	seen  bool
	last  int64
	value uint16
}

// dup reports whether the read of v at index i repeats the previous
// read of the register at index i-1.
// The tracker always moves to i.
func (t *tracker) dup(i int64, v uint16) bool {
	rep := t.seen && t.value == v && i == t.last+1
	t.seen = true
	t.last = i
	t.value = v
	return rep
}

// burst is an open run of DATA register accesses.
type burst struct {
	open  bool
	start int64
	read  bool
	n     int
	data  []byte
}

func (b *burst) add(i int64, read bool, v uint16) {
	if !b.open {
		b.open = true
		b.start = i
		b.read = read
	}
	b.n++
	b.data = append(b.data, byte(v), byte(v>>8))
}

// state is the carry-over state of the decoding fold.
type state struct {
	alt    tracker // ALT_STATUS reads
	status tracker // STATUS reads
	burst  burst
}
