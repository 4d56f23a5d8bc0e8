// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command pata-srv starts a TDAQ server driving a PATA bus sniffer.
//
// The server answers the /config, /init, /reset, /start, /stop and /quit
// run-control commands and publishes the capture statistics on the
// /stats output.
package main // import "github.com/go-lpc/pata/cmd/pata-srv"

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/pata/rundb"
	"github.com/go-lpc/pata/sniffer"
)

func main() {
	var (
		dir     = flag.String("dir", ".", "output directory for sample files")
		dbname  = flag.String("db", "", "name of the MySQL database recording captures")
		verbose = flag.Bool("v", false, "enable verbose USB logging")
	)

	cmd := flags.New()

	sniffer.SetVerbose(*verbose)

	var db *rundb.DB
	if *dbname != "" {
		var err error
		db, err = rundb.Open(*dbname)
		if err != nil {
			log.Panicf("could not open run database: %+v", err)
		}
		defer db.Close()
	}

	dev := sniffer.NewServer(*dir, db)

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	srv.OutputHandle("/stats", dev.Stats)

	err := srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}
