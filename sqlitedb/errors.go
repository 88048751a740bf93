// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
)

var (
	// ErrStatementClosed is returned by any use of a finalized Statement, or
	// of a Cursor whose Statement was finalized.
	ErrStatementClosed = errors.New("statement closed")
	// ErrCursorShifted is returned when GetFirst or GetAll is called on a
	// Cursor which was advanced with Next and not Reset, or when the Cursor's
	// Statement has been executed again since the Cursor was created.
	ErrCursorShifted = errors.New("cursor shifted")
	// ErrDatabaseLocked is returned when a write is attempted while another
	// caller holds the exclusive transaction lock. SQLite BUSY and LOCKED
	// results also match it under errors.Is.
	ErrDatabaseLocked = errors.New("database locked")
	// ErrUnfinalizedStatements is returned by Close if user Statements remain
	// and Options.FinalizeUnusedStatementsBeforeClosing is not set.
	ErrUnfinalizedStatements = errors.New("database has unfinalized statements")
	// ErrDatabaseClosed is returned by any operation on a closed Database.
	ErrDatabaseClosed = errors.New("database closed")
	// ErrInvalidParams is returned when bound parameters do not match the
	// parameters of the statement.
	ErrInvalidParams = errors.New("invalid parameters")
	// ErrTransactionDone is returned by use of a Transaction, or a Statement
	// prepared through one, after the transaction committed or rolled back.
	ErrTransactionDone = errors.New("transaction done")
	// ErrSessionClosed is returned by any use of a closed Session.
	ErrSessionClosed = errors.New("session closed")
)

// OpenError is returned by Open when the database cannot be opened.
type OpenError struct {
	Name string
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("opening database %q (%s): %s", e.Name, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *OpenError) Unwrap() error { return e.Err }

// SQLError is a failure reported by the SQL engine.
type SQLError struct {
	// Code is the extended SQLite result code.
	Code    int
	Message string
	// SQL is the statement text which failed, if known.
	SQL string
}

func (e *SQLError) Error() string {
	if e.SQL == "" {
		return fmt.Sprintf("%s [%d]", e.Message, e.Code)
	}
	return fmt.Sprintf("%s [%d] (%s)", e.Message, e.Code, e.SQL)
}

// Is matches ErrDatabaseLocked for BUSY and LOCKED results.
func (e *SQLError) Is(target error) bool {
	if target != ErrDatabaseLocked {
		return false
	}
	var p = e.Code & 0xff
	return p == sqlite3.BUSY || p == sqlite3.LOCKED
}

// ChangesetConflictError is returned when applying a changeset met conflicts
// which the caller asked to treat as failures.
type ChangesetConflictError struct {
	Result ApplyResult
}

func (e *ChangesetConflictError) Error() string {
	return fmt.Sprintf("changeset conflicts (data %d, notfound %d, conflict %d, constraint %d, foreign key %d)",
		e.Result.Data, e.Result.NotFound, e.Result.Conflict, e.Result.Constraint, e.Result.ForeignKey)
}

// sqlErr converts an engine error into a *SQLError carrying |sql|. Other
// errors are returned unchanged.
func sqlErr(err error, sql string) error {
	if err == nil {
		return nil
	}
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return &SQLError{Code: se.Code(), Message: se.Message(), SQL: sql}
	}
	return err
}
