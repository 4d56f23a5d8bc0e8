// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var errSessionClosed = errors.New("sniffer: session closed")

type config struct {
	msg     *log.Logger
	open    OpenFunc
	timeout time.Duration
	poll    time.Duration
	bufsz   int
}

func newConfig() config {
	return config{
		msg:     log.New(os.Stdout, "sniffer: ", 0),
		open:    usbOpen,
		timeout: defaultTimeout,
		poll:    10 * time.Millisecond,
		bufsz:   defaultBufSize,
	}
}

// Option configures a Session.
type Option func(*config)

// WithLogger sets the logger of the session.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

// WithOpen sets the function used to open the probe.
func WithOpen(open OpenFunc) Option {
	return func(cfg *config) {
		cfg.open = open
	}
}

// WithTimeout sets the USB transfer and discovery timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

// WithPollInterval sets the pause between two status polls.
func WithPollInterval(poll time.Duration) Option {
	return func(cfg *config) {
		cfg.poll = poll
	}
}

// WithBufferSize sets the size of the bulk transfer buffer.
func WithBufferSize(n int) Option {
	return func(cfg *config) {
		if n > 0 {
			cfg.bufsz = n
		}
	}
}

// Session is an acquisition session with a probe.
//
// A session records at most one capture at a time.
// Stop may be called from any goroutine, the other methods are meant
// to be called from a controlling goroutine while Run executes in a
// worker goroutine.
type Session struct {
	cfg config
	ntf Notifier

	mu    sync.Mutex
	state State
	dev   Device
	desc  Descriptor
	stats Stats

	daq struct {
		f    *os.File
		path string
		div  uint16
		buf  []byte
		run  bool          // capture loop active
		done chan struct{} // closed when the capture loop is over
	}

	stop   atomic.Bool
	close  sync.Once
	closed bool
}

// New creates a new acquisition session reporting to ntf.
// A nil ntf logs the progress with the session logger.
func New(ntf Notifier, opts ...Option) *Session {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if ntf == nil {
		ntf = NewLogNotifier(cfg.msg)
	}

	s := &Session{cfg: cfg, ntf: ntf}
	s.daq.buf = make([]byte, cfg.bufsz)
	return s
}

// State returns the current state of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns the last statistics reported by the probe.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Descriptor returns the descriptor of the connected probe.
func (s *Session) Descriptor() (Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desc, s.dev != nil
}

// Path returns the capture file of the current or last capture.
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.daq.path
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Connect opens the probe and claims its interface.
// Connect is a no-op when the probe is already connected.
func (s *Session) Connect() error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return errSessionClosed
	case s.state == Capturing, s.state == Connecting:
		s.mu.Unlock()
		return ErrBusy
	case s.dev != nil:
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = Connecting
	s.mu.Unlock()

	dev, desc, err := s.cfg.open(VendorID, ProductID, s.cfg.timeout)
	if err != nil {
		s.setState(prev)
		if errors.Is(err, ErrDeviceNotFound) {
			s.ntf.Message("Sniffer device not found!")
			return err
		}
		s.ntf.Message(fmt.Sprintf("Sniffer device open error: %v", err))
		if !errors.Is(err, ErrDeviceOpen) {
			err = fmt.Errorf("%w: %w", ErrDeviceOpen, err)
		}
		return err
	}

	s.mu.Lock()
	s.dev = dev
	s.desc = desc
	s.state = Armed
	s.mu.Unlock()

	s.ntf.Message("Sniffer device found: " + desc.String())
	s.ntf.Unlock()
	return nil
}

// Start creates the capture file path and starts the probe sampling
// with the clock divider div.
func (s *Session) Start(path string, div uint16) error {
	if !ValidDivider(div) {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidDivider, div, MinDivider, MaxDivider)
	}

	s.mu.Lock()
	switch {
	case s.dev == nil:
		s.mu.Unlock()
		return ErrNotConnected
	case s.state == Capturing, s.state == Connecting:
		s.mu.Unlock()
		return ErrBusy
	}
	var (
		dev  = s.dev
		prev = s.state
		done = make(chan struct{})
	)
	s.state = Capturing
	s.daq.done = done
	s.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		s.ntf.Message(fmt.Sprintf("File opening error: %s\n%s", path, err))
		s.setState(prev)
		close(done)
		return fmt.Errorf("%w %q: %w", ErrFileOpen, path, err)
	}

	s.ntf.Lock()
	s.ntf.Message("File opened: " + path)

	s.mu.Lock()
	s.stats = Stats{}
	s.daq.path = path
	s.daq.div = div
	s.mu.Unlock()
	s.ntf.Statistics(0, 0)

	_, err = dev.ControlTransfer(reqTypeOut, vendorRequest, div, 0, nil)
	if err != nil {
		_ = f.Close()
		s.ntf.Message(fmt.Sprintf("Sniffer device start error: %v", err))
		s.setState(Idle)
		close(done)
		s.ntf.Unlock()
		return fmt.Errorf("sniffer: could not start capture (div=%d): %w", div, err)
	}

	s.stop.Store(false)
	s.mu.Lock()
	s.daq.f = f
	s.mu.Unlock()

	s.cfg.msg.Printf("capture started (div=%d, clock=%.1f MHz)", div, ClockHz(div)/1e6)
	return nil
}

// Stop requests the end of the current capture.
// The request is honored at the next status poll of Run.
func (s *Session) Stop() {
	s.stop.Store(true)
}

// Capture starts a capture into path and runs it until Stop is called.
func (s *Session) Capture(path string, div uint16) error {
	err := s.Start(path, div)
	if err != nil {
		return err
	}
	return s.Run()
}

// Run polls the probe and appends the committed samples to the capture
// file until Stop is called or an error occurs.
func (s *Session) Run() error {
	s.mu.Lock()
	switch {
	case s.state != Capturing || s.daq.f == nil:
		s.mu.Unlock()
		return ErrNotCapturing
	case s.daq.run:
		s.mu.Unlock()
		return ErrBusy
	}
	s.daq.run = true
	var (
		dev  = s.dev
		f    = s.daq.f
		done = s.daq.done
	)
	s.mu.Unlock()
	defer close(done)

	for !s.stop.Load() {
		st, err := s.status(dev)
		if err != nil {
			return s.abort(dev, f, err)
		}
		if st.Errors > 0 {
			return s.deviceError(dev, f, st)
		}
		err = s.collect(dev, f, st)
		if err != nil {
			return s.abort(dev, f, err)
		}
		if s.cfg.poll > 0 {
			time.Sleep(s.cfg.poll)
		}
	}

	return s.finish(dev, f)
}

func (s *Session) status(dev Device) (Stats, error) {
	var buf [statusLen]byte
	n, err := dev.ControlTransfer(reqTypeIn, vendorRequest, 0, 0, buf[:])
	if err != nil {
		return Stats{}, fmt.Errorf("sniffer: could not read device status: %w", err)
	}
	if n != statusLen {
		return Stats{}, fmt.Errorf("sniffer: short device status (%d bytes)", n)
	}
	return Stats{
		Errors: binary.LittleEndian.Uint32(buf[0:4]),
		Bytes:  binary.LittleEndian.Uint32(buf[4:8]),
	}, nil
}

// collect drains the bytes committed since the last statistics.
func (s *Session) collect(dev Device, f io.Writer, st Stats) error {
	s.mu.Lock()
	prev := s.stats.Bytes
	s.mu.Unlock()

	if st.Bytes == prev {
		return nil
	}

	err := s.drain(dev, f, st.Bytes-prev)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()
	s.ntf.Statistics(st.Bytes, st.Errors)
	return nil
}

// drain reads n bytes from the bulk endpoint, one buffer at a time.
func (s *Session) drain(dev Device, f io.Writer, n uint32) error {
	buf := s.daq.buf
	for n > 0 {
		want := min(int(n), len(buf))
		got := 0
		for got < want {
			k, err := dev.BulkTransfer(bulkIn, buf[got:want])
			if err != nil {
				return fmt.Errorf("sniffer: could not read %d bytes from device: %w", want-got, err)
			}
			if k <= 0 {
				return fmt.Errorf("sniffer: could not read %d bytes from device: %w", want-got, io.ErrNoProgress)
			}
			got += k
			if got < want {
				s.ntf.Message(fmt.Sprintf("Warning: %d of %d bytes received!", k, want-got))
			}
		}

		_, err := f.Write(buf[:want])
		if err != nil {
			return fmt.Errorf("sniffer: could not write capture file: %w", err)
		}
		n -= uint32(want)
	}
	return nil
}

// finish stops the probe and saves the residual samples.
func (s *Session) finish(dev Device, f *os.File) error {
	_, err := dev.ControlTransfer(reqTypeOut, vendorRequest, 0, 0, nil)
	if err != nil {
		return s.abort(dev, f, fmt.Errorf("sniffer: could not stop capture: %w", err))
	}

	st, err := s.status(dev)
	if err != nil {
		return s.abort(dev, f, err)
	}
	if st.Errors > 0 {
		return s.deviceError(dev, f, st)
	}

	err = s.collect(dev, f, st)
	if err != nil {
		return s.abort(dev, f, err)
	}

	err = f.Close()
	if err != nil {
		s.ntf.Message(fmt.Sprintf("File closing error: %s\n%s", f.Name(), err))
		s.release()
		return fmt.Errorf("sniffer: could not close capture file: %w", err)
	}

	s.ntf.Message("Completed.")
	s.release()
	return nil
}

func (s *Session) deviceError(dev Device, f *os.File, st Stats) error {
	s.mu.Lock()
	s.stats = st
	s.mu.Unlock()

	s.ntf.Statistics(st.Bytes, st.Errors)
	s.ntf.Message("Sniffer device error detected.")
	s.quiet(dev, f)
	s.release()
	return fmt.Errorf("%w (errors=%d)", ErrDeviceError, st.Errors)
}

// abort reports a transfer or file error and ends the capture.
func (s *Session) abort(dev Device, f *os.File, err error) error {
	s.ntf.Message(fmt.Sprintf("Sniffer device transfer error: %v", err))
	s.quiet(dev, f)
	s.release()
	return err
}

// quiet stops the probe and closes the capture file, ignoring errors.
func (s *Session) quiet(dev Device, f *os.File) {
	_, _ = dev.ControlTransfer(reqTypeOut, vendorRequest, 0, 0, nil)
	_ = f.Close()
}

func (s *Session) release() {
	s.mu.Lock()
	s.state = Idle
	s.daq.f = nil
	s.daq.run = false
	s.mu.Unlock()
	s.ntf.Unlock()
}

// Close ends any running capture and releases the probe.
// Only the first call has an effect.
func (s *Session) Close() error {
	var err error
	s.close.Do(func() {
		err = s.shutdown()
	})
	return err
}

func (s *Session) shutdown() error {
	s.mu.Lock()
	var (
		capturing = s.state == Capturing && s.daq.f != nil
		running   = s.daq.run
		done      = s.daq.done
	)
	s.mu.Unlock()

	var errRun error
	if capturing {
		s.Stop()
		if !running {
			errRun = s.Run()
			if errors.Is(errRun, ErrBusy) || errors.Is(errRun, ErrNotCapturing) {
				errRun = nil
			}
		}

		tck := time.NewTimer(stopTimeout)
		defer tck.Stop()
		select {
		case <-done:
		case <-tck.C:
			s.cfg.msg.Printf("could not stop capture (timeout=%v)", stopTimeout)
			errRun = fmt.Errorf("sniffer: could not stop capture (timeout=%v)", stopTimeout)
		}
	}

	s.mu.Lock()
	dev := s.dev
	s.dev = nil
	s.state = Idle
	s.closed = true
	s.mu.Unlock()

	if dev != nil {
		err := dev.Close()
		if err != nil {
			return fmt.Errorf("sniffer: could not close device: %w", err)
		}
	}

	return errRun
}
