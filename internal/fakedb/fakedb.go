// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedb holds types to fake an in-memory DB.
package fakedb // import "github.com/go-lpc/pata/internal/fakedb"

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

var query struct {
	mu   sync.Mutex
	rows Rows
	err  error // error returned by statements, if any
}

var execs struct {
	mu   sync.Mutex
	id   int64
	recs []Exec
}

// Exec is a recorded statement execution.
type Exec struct {
	Query string
	Args  []driver.Value
}

// Run runs f with a database returning rows for each query.
// Statements executed during f can be retrieved with Execs.
func Run(ctx context.Context, rows Rows, f func(ctx context.Context) error) error {
	return RunErr(ctx, rows, nil, f)
}

// RunErr is like Run but makes every statement fail with err.
func RunErr(ctx context.Context, rows Rows, err error, f func(ctx context.Context) error) error {
	query.mu.Lock()
	defer query.mu.Unlock()
	query.rows = rows
	query.err = err

	execs.mu.Lock()
	execs.recs = nil
	execs.mu.Unlock()

	return f(ctx)
}

// Execs returns the statements executed during the current Run.
func Execs() []Exec {
	execs.mu.Lock()
	defer execs.mu.Unlock()
	return append([]Exec(nil), execs.recs...)
}

func init() {
	sql.Register("fakedb", &Driver{})
}

type Driver struct{}

// Open returns a new connection to the database.
func (drv *Driver) Open(name string) (driver.Conn, error) {
	return &Conn{}, nil
}

type Conn struct{}

// Prepare returns a prepared statement, bound to this connection.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &Stmt{query: query}, nil
}

// Close invalidates any current prepared statements and transactions.
func (c *Conn) Close() error {
	return nil
}

// Begin starts and returns a new transaction.
func (c *Conn) Begin() (driver.Tx, error) {
	return nil, errors.New("fakedb: transactions not supported")
}

type Stmt struct {
	query string
}

// Close closes the statement.
func (stmt *Stmt) Close() error {
	return nil
}

// NumInput returns -1: the sql package does not check argument counts.
func (stmt *Stmt) NumInput() int {
	return -1
}

// Exec records the execution of a statement.
func (stmt *Stmt) Exec(args []driver.Value) (driver.Result, error) {
	if query.err != nil {
		return nil, query.err
	}

	execs.mu.Lock()
	defer execs.mu.Unlock()
	execs.id++
	execs.recs = append(execs.recs, Exec{
		Query: stmt.query,
		Args:  append([]driver.Value(nil), args...),
	})
	return result{id: execs.id}, nil
}

// Query returns the rows of the current Run.
func (stmt *Stmt) Query(args []driver.Value) (driver.Rows, error) {
	if query.err != nil {
		return nil, query.err
	}
	return &query.rows, nil
}

type result struct {
	id int64
}

func (res result) LastInsertId() (int64, error) { return res.id, nil }
func (res result) RowsAffected() (int64, error) { return 1, nil }

type Rows struct {
	Names  []string
	Values [][]driver.Value
}

// Columns returns the names of the columns.
func (rows *Rows) Columns() []string {
	return rows.Names
}

// Close closes the rows iterator.
func (rows *Rows) Close() error {
	return nil
}

// Next populates dest with the next row of data.
// Next returns io.EOF when there are no more rows.
func (rows *Rows) Next(dest []driver.Value) error {
	if len(rows.Values) == 0 {
		return io.EOF
	}
	copy(dest, rows.Values[0])
	rows.Values = rows.Values[1:]
	return nil
}

var (
	_ driver.Driver = (*Driver)(nil)
	_ driver.Conn   = (*Conn)(nil)
	_ driver.Stmt   = (*Stmt)(nil)
	_ driver.Result = (*result)(nil)
	_ driver.Rows   = (*Rows)(nil)
)
