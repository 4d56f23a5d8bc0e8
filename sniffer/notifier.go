// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniffer

import (
	"log"
)

// Notifier receives the progress of an acquisition session.
//
// Lock and Unlock tell when starting a new capture must be disabled
// or enabled again.
type Notifier interface {
	Message(msg string)
	Lock()
	Unlock()
	Statistics(bytes, errors uint32)
}

type logNotifier struct {
	msg *log.Logger
}

// NewLogNotifier returns a Notifier printing messages and statistics
// to msg.
func NewLogNotifier(msg *log.Logger) Notifier {
	return &logNotifier{msg: msg}
}

func (ntf *logNotifier) Message(msg string) { ntf.msg.Print(msg) }
func (ntf *logNotifier) Lock()              {}
func (ntf *logNotifier) Unlock()            {}

func (ntf *logNotifier) Statistics(bytes, errors uint32) {
	ntf.msg.Print(Stats{Bytes: bytes, Errors: errors}.String())
}
