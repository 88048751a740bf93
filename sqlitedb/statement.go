// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
)

// Statement is a compiled SQL statement. It remains usable until Finalize,
// or until its Database is closed. Statements prepared through a Transaction
// may write only while the Transaction is open.
type Statement struct {
	db  *Database
	tx  *Transaction
	sql string

	// Fields below are guarded by db.mu.
	stmt *sqlite3.Stmt
	// gen increments on every execution, invalidating earlier Cursors.
	gen uint64
	// shifted is set while a Cursor is positioned past the start of the
	// result, and cleared by Reset or by exhausting it.
	shifted bool
}

// prepare compiles |sql| into a Statement tracked by the Database. db.mu is
// held.
func (db *Database) prepare(sql string, tx *Transaction) (*Statement, error) {
	s, err := compileOne(db.conn, sql)
	if err != nil {
		return nil, err
	} else if s == nil {
		return nil, errors.Errorf("%q holds no statement", sql)
	}
	var st = &Statement{db: db, tx: tx, sql: sql, stmt: s}
	db.stmts[st] = struct{}{}
	return st, nil
}

// SQL returns the text the Statement was prepared from.
func (st *Statement) SQL() string { return st.sql }

// Run executes the Statement to completion.
func (st *Statement) Run(params Params) (RunResult, error) {
	return stmtLocked(st, func() (RunResult, error) {
		st.gen++
		st.shifted = false

		if err := st.start(params); err != nil {
			return RunResult{}, err
		}
		defer st.stmt.Reset()

		if err := st.stmt.StepToCompletion(); err != nil {
			return RunResult{}, sqlErr(err, st.sql)
		}
		return st.db.result(), nil
	})
}

// RunAsync queues Run.
func (st *Statement) RunAsync(params Params) *Future[RunResult] {
	return submit(st.db, func() (RunResult, error) { return st.Run(params) })
}

// Execute binds |params| and returns a Cursor over the Statement's rows.
// Cursors returned by earlier executions are invalidated.
func (st *Statement) Execute(params Params) (*Cursor, error) {
	return stmtLocked(st, func() (*Cursor, error) {
		st.gen++
		st.shifted = false

		// The write check is made as the Cursor steps.
		st.stmt.Reset()
		if err := bindParams(st.stmt, params); err != nil {
			return nil, err
		}
		return &Cursor{st: st, gen: st.gen}, nil
	})
}

// ExecuteAsync queues Execute.
func (st *Statement) ExecuteAsync(params Params) *Future[*Cursor] {
	return submit(st.db, func() (*Cursor, error) { return st.Execute(params) })
}

// GetFirst executes the Statement and returns its first row, or nil.
func (st *Statement) GetFirst(params Params) (Row, error) {
	return stmtLocked(st, func() (Row, error) {
		st.gen++
		st.shifted = false

		if err := st.start(params); err != nil {
			return nil, err
		}
		return firstRow(st.stmt)
	})
}

// GetFirstAsync queues GetFirst.
func (st *Statement) GetFirstAsync(params Params) *Future[Row] {
	return submit(st.db, func() (Row, error) { return st.GetFirst(params) })
}

// GetAll executes the Statement and returns all of its rows.
func (st *Statement) GetAll(params Params) ([]Row, error) {
	return stmtLocked(st, func() ([]Row, error) {
		st.gen++
		st.shifted = false

		if err := st.start(params); err != nil {
			return nil, err
		}
		return allRows(st.stmt)
	})
}

// GetAllAsync queues GetAll.
func (st *Statement) GetAllAsync(params Params) *Future[[]Row] {
	return submit(st.db, func() ([]Row, error) { return st.GetAll(params) })
}

// Finalize releases the Statement. Any further use fails with
// ErrStatementClosed.
func (st *Statement) Finalize() error {
	_, err := stmtLocked(st, func() (struct{}, error) {
		var err = st.stmt.Close()
		st.stmt = nil
		delete(st.db.stmts, st)
		return struct{}{}, sqlErr(err, st.sql)
	})
	return err
}

// FinalizeAsync queues Finalize.
func (st *Statement) FinalizeAsync() *Future[struct{}] {
	return submit(st.db, func() (struct{}, error) { return struct{}{}, st.Finalize() })
}

// start resets the Statement to the beginning of its result, binds |params|
// and checks that it may write. db.mu is held.
func (st *Statement) start(params Params) error {
	st.stmt.Reset()

	if err := st.db.checkWrite(st.stmt, st.tx); err != nil {
		return err
	}
	return bindParams(st.stmt, params)
}

// stmtLocked runs |fn| holding the engine lock, failing if the Statement is
// finalized or its Database closed.
func stmtLocked[T any](st *Statement, fn func() (T, error)) (T, error) {
	return withLock(st.db, func() error {
		if st.stmt == nil {
			return ErrStatementClosed
		}
		return nil
	}, fn)
}
