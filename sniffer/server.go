// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sniffer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-daq/tdaq"
	"github.com/go-lpc/pata/rundb"
	"golang.org/x/sync/errgroup"
)

// Server exposes an acquisition session to a TDAQ run control.
type Server struct {
	sess *Session
	db   *rundb.DB // optional run bookkeeping

	now func() time.Time

	mu    sync.Mutex
	dir   string
	div   uint16
	ctx   tdaq.Context // context of the last command
	stats chan Stats

	grp *errgroup.Group
	run rundb.Run
}

// NewServer creates a TDAQ server writing its captures under dir.
// Runs are recorded in db when it is not nil.
func NewServer(dir string, db *rundb.DB, opts ...Option) *Server {
	srv := &Server{
		db:    db,
		now:   time.Now,
		dir:   dir,
		div:   DefaultPreset.Divider(),
		stats: make(chan Stats, 64),
	}
	srv.sess = New(srv, opts...)
	return srv
}

// Session returns the acquisition session driven by the server.
func (srv *Server) Session() *Session { return srv.sess }

func (srv *Server) Message(msg string) {
	srv.mu.Lock()
	ctx := srv.ctx
	srv.mu.Unlock()
	if ctx.Msg == nil {
		srv.sess.cfg.msg.Print(msg)
		return
	}
	ctx.Msg.Infof("%s", msg)
}

func (srv *Server) Lock()   {}
func (srv *Server) Unlock() {}

func (srv *Server) Statistics(bytes, errors uint32) {
	select {
	case srv.stats <- Stats{Bytes: bytes, Errors: errors}:
	default:
		// drop statistics nobody consumes.
	}
}

func (srv *Server) setContext(ctx tdaq.Context) {
	srv.mu.Lock()
	srv.ctx = ctx
	srv.mu.Unlock()
}

// OnConfig configures the output directory and the clock divider.
// The request body holds the directory and the divider. An empty body
// keeps the current configuration.
func (srv *Server) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /config command...")
	if len(req.Body) == 0 {
		return nil
	}

	dec := tdaq.NewDecoder(bytes.NewReader(req.Body))
	var (
		dir = dec.ReadStr()
		div = dec.ReadU32()
	)
	if err := dec.Err(); err != nil {
		ctx.Msg.Errorf("could not decode /config request: %+v", err)
		return fmt.Errorf("sniffer: could not decode /config request: %w", err)
	}

	if div > MaxDivider || !ValidDivider(uint16(div)) {
		ctx.Msg.Errorf("invalid clock divider %d", div)
		return fmt.Errorf("%w: %d", ErrInvalidDivider, div)
	}

	srv.mu.Lock()
	if dir != "" {
		srv.dir = dir
	}
	srv.div = uint16(div)
	srv.mu.Unlock()

	ctx.Msg.Infof("configured: dir=%q, div=%d (%.1f MHz)", dir, div, ClockHz(uint16(div))/1e6)
	return nil
}

// OnInit connects to the probe.
func (srv *Server) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /init command...")

	err := srv.sess.Connect()
	if err != nil {
		ctx.Msg.Errorf("could not connect to probe: %+v", err)
		return fmt.Errorf("sniffer: could not connect to probe: %w", err)
	}

	if srv.db != nil {
		err = srv.db.Init(ctx.Ctx)
		if err != nil {
			ctx.Msg.Errorf("could not initialize run db: %+v", err)
			return err
		}
	}
	return nil
}

// OnReset stops any running capture.
func (srv *Server) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /reset command...")

	err := srv.wait()
	if err != nil {
		ctx.Msg.Warnf("capture ended with error: %+v", err)
	}
	return nil
}

// OnStart starts a capture in a new file of the output directory.
func (srv *Server) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /start command...")

	srv.mu.Lock()
	var (
		beg  = srv.now()
		path = FileName(srv.dir, beg)
		div  = srv.div
	)
	srv.mu.Unlock()

	err := srv.sess.Start(path, div)
	if err != nil {
		ctx.Msg.Errorf("could not start capture: %+v", err)
		return fmt.Errorf("sniffer: could not start capture: %w", err)
	}

	run := rundb.Run{Path: path, Divider: div, Start: beg, Status: rundb.StatusRunning}
	if srv.db != nil {
		run.ID, err = srv.db.AddRun(ctx.Ctx, run)
		if err != nil {
			ctx.Msg.Errorf("could not record run: %+v", err)
		}
	}

	grp := new(errgroup.Group)
	grp.Go(srv.sess.Run)

	srv.mu.Lock()
	srv.grp = grp
	srv.run = run
	srv.mu.Unlock()

	ctx.Msg.Infof("capture started: %s", path)
	return nil
}

// OnStop stops the running capture and waits for its completion.
func (srv *Server) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /stop command...")

	err := srv.wait()
	if err != nil {
		ctx.Msg.Errorf("capture failed: %+v", err)
		return fmt.Errorf("sniffer: capture failed: %w", err)
	}
	ctx.Msg.Infof("capture stopped: %v", srv.sess.Stats())
	return nil
}

// OnQuit stops any running capture and releases the probe.
func (srv *Server) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	srv.setContext(ctx)
	ctx.Msg.Debugf("received /quit command...")

	err := srv.wait()
	if err != nil {
		ctx.Msg.Warnf("capture ended with error: %+v", err)
	}

	err = srv.sess.Close()
	if err != nil {
		ctx.Msg.Errorf("could not close session: %+v", err)
		return fmt.Errorf("sniffer: could not close session: %w", err)
	}
	return nil
}

// Stats streams the statistics of the running capture as (bytes, errors)
// frames.
func (srv *Server) Stats(ctx tdaq.Context, dst *tdaq.Frame) error {
	select {
	case <-ctx.Ctx.Done():
		dst.Body = nil
		return nil
	case st := <-srv.stats:
		buf := new(bytes.Buffer)
		enc := tdaq.NewEncoder(buf)
		enc.WriteU32(st.Bytes)
		enc.WriteU32(st.Errors)
		if err := enc.Err(); err != nil {
			return fmt.Errorf("sniffer: could not encode statistics: %w", err)
		}
		dst.Body = buf.Bytes()
	}
	return nil
}

// wait stops the running capture, if any, and records its outcome.
func (srv *Server) wait() error {
	srv.mu.Lock()
	grp := srv.grp
	run := srv.run
	srv.grp = nil
	srv.mu.Unlock()

	if grp == nil {
		return nil
	}

	srv.sess.Stop()
	err := grp.Wait()

	st := srv.sess.Stats()
	run.Stop = srv.now()
	run.Bytes = st.Bytes
	run.Errors = st.Errors
	run.Status = rundb.StatusCompleted
	if err != nil {
		run.Status = rundb.StatusFailed
	}

	if srv.db != nil && run.ID != 0 {
		errDB := srv.db.EndRun(context.Background(), run)
		if errDB != nil {
			err = errors.Join(err, errDB)
		}
	}
	return err
}
