// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pata-daq captures the traffic of a PATA bus into a sample file.
//
// The capture runs until the requested duration elapses or until the
// process is interrupted.
//
// Usage: pata-daq [OPTIONS]
//
// Example:
//
//	$> pata-daq -dir /data/pata -pio pio2 -dur 10s
//	pata-daq: Sniffer device found: VID_0x04b4&PID_0x0101 USB 2.0 REV 1.0
//	pata-daq: File opened: /data/pata/capturing-2025.03.07-14.05.09.sniff
//	pata-daq: Samples collected: 0, error count: 0
//	pata-daq: Samples collected: 4096, error count: 0
//	pata-daq: Completed.
package main // import "github.com/go-lpc/pata/cmd/pata-daq"

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-lpc/pata/rundb"
	"github.com/go-lpc/pata/sniffer"
	"github.com/sbinet/pmon"
	"golang.org/x/sync/errgroup"
	mail "gopkg.in/gomail.v2"
)

var (
	msg = log.New(os.Stdout, "pata-daq: ", 0)

	stop = make(chan os.Signal, 1)
)

type config struct {
	dir  string
	div  uint16
	dur  time.Duration
	mon  bool
	freq time.Duration
	db   *rundb.DB
	mail bool
}

func main() {
	log.SetPrefix("pata-daq: ")
	log.SetFlags(0)

	var (
		dir     = flag.String("dir", ".", "output directory for sample files")
		pio     = flag.String("pio", sniffer.DefaultPreset.String()[:4], "PIO timing preset (pio0..pio4)")
		div     = flag.Uint("div", 0, "clock divider (overrides -pio when non-zero)")
		dur     = flag.Duration("dur", 0, "capture duration (0: until interrupted)")
		doMon   = flag.Bool("pmon", false, "enable pmon monitoring")
		doFreq  = flag.Duration("freq", 1*time.Second, "pmon frequency")
		dbname  = flag.String("db", "", "name of the MySQL database recording captures")
		doMail  = flag.Bool("mail", false, "send a mail alert when a capture fails")
		verbose = flag.Bool("v", false, "enable verbose USB logging")
	)

	flag.Usage = func() {
		fmt.Printf(`pata-daq captures the traffic of a PATA bus into a sample file.

Usage: pata-daq [OPTIONS]

Example:

 $> pata-daq -dir /data/pata -pio pio2 -dur 10s

Options:
`)
		flag.PrintDefaults()
	}

	flag.Parse()

	sniffer.SetVerbose(*verbose)

	cfg := config{
		dir:  *dir,
		dur:  *dur,
		mon:  *doMon,
		freq: *doFreq,
		mail: *doMail,
	}

	var err error
	cfg.div, err = divider(*pio, *div)
	if err != nil {
		flag.Usage()
		log.Fatalf("%+v", err)
	}

	if *dbname != "" {
		cfg.db, err = rundb.Open(*dbname)
		if err != nil {
			log.Fatalf("could not open run database: %+v", err)
		}
		defer cfg.db.Close()

		err = cfg.db.Init(context.Background())
		if err != nil {
			log.Fatalf("could not initialize run database: %+v", err)
		}
	}

	err = run(cfg, stop, sniffer.WithLogger(msg))
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

// divider returns the clock divider selected by the command line.
func divider(pio string, div uint) (uint16, error) {
	if div != 0 {
		if div > sniffer.MaxDivider || !sniffer.ValidDivider(uint16(div)) {
			return 0, fmt.Errorf("invalid clock divider %d (want [%d, %d])",
				div, sniffer.MinDivider, sniffer.MaxDivider,
			)
		}
		return uint16(div), nil
	}

	p, err := sniffer.ParsePreset(pio)
	if err != nil {
		return 0, err
	}
	return p.Divider(), nil
}

func run(cfg config, stop chan os.Signal, opts ...sniffer.Option) error {
	signal.Notify(stop, os.Interrupt)
	defer signal.Stop(stop)

	sess := sniffer.New(sniffer.NewLogNotifier(msg), opts...)
	defer sess.Close()

	err := sess.Connect()
	if err != nil {
		return fmt.Errorf("could not connect to sniffer: %w", err)
	}

	err = os.MkdirAll(cfg.dir, 0755)
	if err != nil {
		return fmt.Errorf("could not create output directory %q: %w", cfg.dir, err)
	}

	if cfg.mon {
		kill, err := monitor(cfg.dir, cfg.freq)
		if err != nil {
			return err
		}
		defer kill()
	}

	beg := time.Now()
	path := sniffer.FileName(cfg.dir, beg)
	err = sess.Start(path, cfg.div)
	if err != nil {
		return fmt.Errorf("could not start capture: %w", err)
	}

	rec := rundb.Run{Path: path, Divider: cfg.div, Start: beg, Status: rundb.StatusRunning}
	if cfg.db != nil {
		rec.ID, err = cfg.db.AddRun(context.Background(), rec)
		if err != nil {
			log.Printf("could not record run: %+v", err)
		}
	}

	var (
		grp  errgroup.Group
		done = make(chan struct{})
	)
	grp.Go(func() error {
		defer close(done)
		return sess.Run()
	})

	grp.Go(func() error {
		var timeout <-chan time.Time
		if cfg.dur > 0 {
			timer := time.NewTimer(cfg.dur)
			defer timer.Stop()
			timeout = timer.C
		}
		select {
		case <-done:
			return nil
		case <-stop:
			msg.Printf("interrupted, stopping capture...")
		case <-timeout:
			msg.Printf("capture duration (%v) elapsed, stopping capture...", cfg.dur)
		}
		sess.Stop()
		return nil
	})

	err = grp.Wait()

	st := sess.Stats()
	rec.Stop = time.Now()
	rec.Bytes = st.Bytes
	rec.Errors = st.Errors
	rec.Status = rundb.StatusCompleted
	if err != nil {
		rec.Status = rundb.StatusFailed
		if cfg.mail {
			alertMail(newAlert(rec, err))
		}
	}

	if cfg.db != nil && rec.ID != 0 {
		errDB := cfg.db.EndRun(context.Background(), rec)
		if errDB != nil {
			log.Printf("could not record end of run: %+v", errDB)
		}
	}

	if err != nil {
		return fmt.Errorf("could not capture bus traffic: %w", err)
	}
	return nil
}

// monitor starts monitoring the resources of the current process.
func monitor(dir string, freq time.Duration) (func(), error) {
	pid := os.Getpid()
	p, err := pmon.Monitor(pid)
	if err != nil {
		return nil, fmt.Errorf("could not start monitoring (pid=%d): %w", pid, err)
	}
	f, err := os.Create(filepath.Join(dir, "pata-daq-pmon.log"))
	if err != nil {
		return nil, fmt.Errorf("could not create pmon log file: %w", err)
	}
	p.W = f
	p.Freq = freq

	go func() {
		err := p.Run()
		if err != nil {
			log.Printf("could not run monitoring: %+v", err)
		}
	}()

	return func() {
		err := p.Kill()
		if err != nil {
			log.Printf("could not stop monitoring: %+v", err)
		}
		_ = f.Close()
	}, nil
}

var (
	alertMailUsr  = os.Getenv("MAIL_USERNAME")
	alertMailPwd  = os.Getenv("MAIL_PASSWORD")
	alertMailSrv  = os.Getenv("MAIL_SERVER")
	alertMailPort = atoi(os.Getenv("MAIL_PORT"))
	alertMailTgts = strings.Split(os.Getenv("MAIL_TGTS"), ",")
)

func newAlert(run rundb.Run, err error) *mail.Message {
	kind := "transfer"
	if errors.Is(err, sniffer.ErrDeviceError) {
		kind = "device"
	}

	m := mail.NewMessage()
	m.SetHeader("From", alertMailUsr)
	m.SetHeader("Bcc", alertMailTgts...)
	m.SetHeader("Subject", fmt.Sprintf("[pata-daq] %s failure: %q", kind, filepath.Base(run.Path)))
	m.SetBody("text/plain", fmt.Sprintf(
		"file:    %q\ndivider: %d\nstart:   %v\nstop:    %v\nbytes:   %d\nerrors:  %d\ncause:   %v",
		run.Path, run.Divider,
		run.Start.Format(time.RFC3339), run.Stop.Format(time.RFC3339),
		run.Bytes, run.Errors, err,
	))
	return m
}

func alertMail(m *mail.Message) {
	if alertMailUsr == "" || alertMailPwd == "" ||
		alertMailSrv == "" || alertMailPort == 0 ||
		len(alertMailTgts) == 0 || alertMailTgts[0] == "" {
		log.Printf("could not send mail alert: missing credentials")
		return
	}

	dial := mail.NewDialer(alertMailSrv, alertMailPort, alertMailUsr, alertMailPwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	err := dial.DialAndSend(m)
	if err != nil {
		log.Printf("could not send mail alert: %+v", err)
	}
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
