// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rundb records PATA capture runs in a database.
package rundb // import "github.com/go-lpc/pata/rundb"

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
)

var (
	drvName = "mysql"
)

const timeout = 5 * time.Second

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Run describes a capture run.
type Run struct {
	ID      int64
	Path    string // capture file
	Divider uint16 // probe clock divider
	Start   time.Time
	Stop    time.Time // zero while the run is on-going
	Bytes   uint32
	Errors  uint32
	Status  string
}

// DB exposes convenience methods to record and retrieve capture runs.
type DB struct {
	db   *sql.DB
	name string
}

// Open opens a connection to the run database dbname.
//
// Credentials and host are read from the PATA_DB_USER, PATA_DB_PASS and
// PATA_DB_HOST environment variables.
func Open(dbname string) (*DB, error) {
	db, err := sql.Open(drvName, dsn(dbname))
	if err != nil {
		return nil, fmt.Errorf("rundb: could not open %q db: %w", dbname, err)
	}

	err = ping(db, dbname)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{db: db, name: dbname}, nil
}

func dsn(dbname string) string {
	cfg := mysql.NewConfig()
	cfg.User = getenv("PATA_DB_USER", "username")
	cfg.Passwd = getenv("PATA_DB_PASS", "")
	cfg.Net = "tcp"
	cfg.Addr = getenv("PATA_DB_HOST", "localhost")
	cfg.DBName = dbname
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func ping(db *sql.DB, dbname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("rundb: could not ping %q db: %w", dbname, err)
	}

	return nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// Init creates the captures table if needed.
func (db *DB) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := db.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS captures (
	id      INTEGER AUTO_INCREMENT PRIMARY KEY,
	path    TEXT NOT NULL,
	divider INTEGER NOT NULL,
	start   DATETIME NOT NULL,
	stop    DATETIME NULL,
	bytes   INTEGER UNSIGNED NOT NULL DEFAULT 0,
	errors  INTEGER UNSIGNED NOT NULL DEFAULT 0,
	status  VARCHAR(16) NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("rundb: could not create captures table: %w", err)
	}
	return nil
}

// AddRun records the beginning of run and returns its identifier.
func (db *DB) AddRun(ctx context.Context, run Run) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if run.Status == "" {
		run.Status = StatusRunning
	}

	res, err := db.db.ExecContext(
		ctx,
		"INSERT INTO captures (path, divider, start, status) VALUES (?, ?, ?, ?)",
		run.Path, run.Divider, run.Start.UTC(), run.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("rundb: could not insert run %q: %w", run.Path, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("rundb: could not retrieve id of run %q: %w", run.Path, err)
	}
	return id, nil
}

// EndRun records the end of run.
func (db *DB) EndRun(ctx context.Context, run Run) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := db.db.ExecContext(
		ctx,
		"UPDATE captures SET stop=?, bytes=?, errors=?, status=? WHERE id=?",
		run.Stop.UTC(), run.Bytes, run.Errors, run.Status, run.ID,
	)
	if err != nil {
		return fmt.Errorf("rundb: could not update run %d: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recent run.
func (db *DB) LastRun(ctx context.Context) (Run, error) {
	runs, err := db.Runs(ctx, 1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, fmt.Errorf("rundb: no run in %q db: %w", db.name, sql.ErrNoRows)
	}
	return runs[0], nil
}

// Runs returns the n most recent runs, latest first.
func (db *DB) Runs(ctx context.Context, n int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := db.db.QueryContext(
		ctx,
		`SELECT id, path, divider, start, stop, bytes, errors, status
FROM captures ORDER BY id DESC LIMIT ?`,
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("rundb: could not query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run  Run
			stop sql.NullTime
		)
		err = rows.Scan(
			&run.ID, &run.Path, &run.Divider, &run.Start, &stop,
			&run.Bytes, &run.Errors, &run.Status,
		)
		if err != nil {
			return runs, fmt.Errorf("rundb: could not scan row %d: %w", len(runs), err)
		}
		if stop.Valid {
			run.Stop = stop.Time
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return runs, fmt.Errorf("rundb: could not scan db for runs: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return runs, fmt.Errorf("rundb: context error while retrieving runs: %w", err)
	}

	return runs, nil
}
