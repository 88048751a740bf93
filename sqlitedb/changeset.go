// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/metrics"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
	log "github.com/sirupsen/logrus"
)

// Changeset is a set of row changes in the SQLite changeset format.
type Changeset []byte

// Change is one decoded row change of a Changeset.
type Change struct {
	Table string
	// Op is one of "INSERT", "UPDATE" or "DELETE".
	Op       string
	Indirect bool
	// Old values of a DELETE or UPDATE. Columns an UPDATE left unchanged
	// are nil, other than those of the primary key.
	Old []interface{}
	// New values of an INSERT or UPDATE. Columns an UPDATE left unchanged
	// are nil.
	New []interface{}
}

// Invert returns the Changeset which undoes |cs|.
func (cs Changeset) Invert() (Changeset, error) {
	var buf bytes.Buffer
	if err := sqlite3.ChangesetInvert(&buf, bytes.NewReader(cs)); err != nil {
		return nil, errors.WithMessage(sqlErr(err, ""), "inverting changeset")
	}
	return Changeset(buf.Bytes()), nil
}

// Changes decodes the changes of |cs|.
func (cs Changeset) Changes() ([]Change, error) {
	iter, err := sqlite3.ChangesetIterStart(bytes.NewReader(cs))
	if err != nil {
		return nil, sqlErr(err, "")
	}
	defer iter.Close()

	var out []Change
	for {
		if ok, err := iter.Next(); err != nil {
			return nil, sqlErr(err, "")
		} else if !ok {
			return out, nil
		}
		table, numCols, op, indirect, err := iter.Op()
		if err != nil {
			return nil, sqlErr(err, "")
		}
		var c = Change{Table: table, Op: op.String(), Indirect: indirect}

		if op == sqlite3.UPDATE || op == sqlite3.DELETE {
			if c.Old, err = iterValues(numCols, iter.Old); err != nil {
				return nil, err
			}
		}
		if op == sqlite3.UPDATE || op == sqlite3.INSERT {
			if c.New, err = iterValues(numCols, iter.New); err != nil {
				return nil, err
			}
		}
		out = append(out, c)
	}
}

func iterValues(n int, fn func(int) (sqlite3.Value, error)) ([]interface{}, error) {
	var out = make([]interface{}, n)
	for i := range out {
		v, err := fn(i)
		if err != nil {
			return nil, sqlErr(err, "")
		}
		out[i] = v.Interface()
	}
	return out, nil
}

// Concat combines |sets| into one Changeset, as if their changes had been
// recorded by a single Session in order.
func Concat(sets ...Changeset) (Changeset, error) {
	cg, err := sqlite3.NewChangegroup()
	if err != nil {
		return nil, sqlErr(err, "")
	}
	defer cg.Delete()

	for _, cs := range sets {
		if err = cg.Add(bytes.NewReader(cs)); err != nil {
			return nil, errors.WithMessage(sqlErr(err, ""), "adding changeset to group")
		}
	}
	var buf bytes.Buffer
	if err = cg.Output(&buf); err != nil {
		return nil, sqlErr(err, "")
	}
	return Changeset(buf.Bytes()), nil
}

// ConflictPolicy selects how a conflicting change is handled.
type ConflictPolicy int

const (
	// Omit skips the conflicting change.
	Omit ConflictPolicy = iota
	// Replace overwrites the conflicting row with the change. It applies to
	// rows whose current values differ from those expected, and to inserts
	// of a row which exists. Other conflicts are omitted.
	Replace
	// Abort stops at the first conflict and undoes the whole application.
	Abort
)

// ApplyOptions configure ApplyChangeset.
type ApplyOptions struct {
	OnConflict ConflictPolicy
	// Tables restricts application to the named tables. Empty applies all.
	Tables []string
}

// ApplyResult counts the conflicts met by ApplyChangeset, by kind.
type ApplyResult struct {
	// Data counts changes whose row exists with values other than expected.
	Data int
	// NotFound counts updates and deletes of rows which do not exist.
	NotFound int
	// Conflict counts inserts of rows which exist.
	Conflict int
	// Constraint counts changes which violated a constraint.
	Constraint int
	// ForeignKey is the number of foreign key violations left once the
	// changeset was applied.
	ForeignKey int
}

// Total returns the number of conflicts.
func (r ApplyResult) Total() int {
	return r.Data + r.NotFound + r.Conflict + r.Constraint + r.ForeignKey
}

// Err returns a *ChangesetConflictError if any conflicts were met.
func (r ApplyResult) Err() error {
	if r.Total() == 0 {
		return nil
	}
	return &ChangesetConflictError{Result: r}
}

// ApplyChangeset applies |cs| to the Database. Conflicts are counted in the
// ApplyResult and otherwise handled per |opts|, omitting them by default.
// Under the Abort policy a conflict undoes the application and returns a
// *ChangesetConflictError.
func (db *Database) ApplyChangeset(cs Changeset, opts *ApplyOptions) (ApplyResult, error) {
	return locked(db, func() (ApplyResult, error) {
		return db.applyChangeset(cs, opts, nil)
	})
}

// ApplyChangesetAsync queues ApplyChangeset.
func (db *Database) ApplyChangesetAsync(cs Changeset, opts *ApplyOptions) *Future[ApplyResult] {
	return submit(db, func() (ApplyResult, error) { return db.ApplyChangeset(cs, opts) })
}

// applyChangeset applies |cs| on behalf of |holder|. db.mu is held.
func (db *Database) applyChangeset(cs Changeset, opts *ApplyOptions, holder *Transaction) (ApplyResult, error) {
	if opts == nil {
		opts = new(ApplyOptions)
	}
	var res ApplyResult

	if holder != nil && holder.done {
		return res, ErrTransactionDone
	} else if db.exclusive != nil && db.exclusive != holder {
		metrics.LockRejectionsTotal.Inc()
		return res, ErrDatabaseLocked
	}

	var filterFn func(string) bool
	if len(opts.Tables) != 0 {
		filterFn = func(table string) bool {
			for _, t := range opts.Tables {
				if t == table {
					return true
				}
			}
			return false
		}
	}
	var conflictFn = func(ct sqlite3.ConflictType, iter sqlite3.ChangesetIter) sqlite3.ConflictAction {
		if ct == sqlite3.CHANGESET_FOREIGN_KEY {
			// Reported once per apply, with the number of violations.
			if n, err := iter.FKConflicts(); err == nil {
				res.ForeignKey = n
			} else {
				res.ForeignKey++
			}
		} else {
			res.count(ct)
		}
		metrics.ChangesetConflictsTotal.WithLabelValues(ct.String()).Inc()

		switch {
		case opts.OnConflict == Abort:
			return sqlite3.CHANGESET_ABORT
		case opts.OnConflict == Replace && (ct == sqlite3.CHANGESET_DATA || ct == sqlite3.CHANGESET_CONFLICT):
			return sqlite3.CHANGESET_REPLACE
		default:
			return sqlite3.CHANGESET_OMIT
		}
	}

	var err = db.conn.ChangesetApply(bytes.NewReader(cs), filterFn, conflictFn)
	if err != nil {
		metrics.ChangesetsAppliedTotal.WithLabelValues(metrics.Fail).Inc()

		var se *sqlite3.Error
		// An aborted foreign key check fails as a constraint violation.
		if opts.OnConflict == Abort && res.Total() != 0 && errors.As(err, &se) &&
			(se.Primary() == sqlite3.ABORT || se.Primary() == sqlite3.CONSTRAINT && res.ForeignKey != 0) {
			return res, &ChangesetConflictError{Result: res}
		}
		return res, errors.WithMessage(sqlErr(err, ""), "applying changeset")
	}
	metrics.ChangesetsAppliedTotal.WithLabelValues(metrics.Ok).Inc()

	if n := res.Total(); n != 0 {
		log.WithFields(log.Fields{"name": db.name, "conflicts": n}).Debug("applied changeset with conflicts")
	}
	return res, nil
}

func (r *ApplyResult) count(ct sqlite3.ConflictType) {
	switch ct {
	case sqlite3.CHANGESET_DATA:
		r.Data++
	case sqlite3.CHANGESET_NOTFOUND:
		r.NotFound++
	case sqlite3.CHANGESET_CONFLICT:
		r.Conflict++
	case sqlite3.CHANGESET_CONSTRAINT:
		r.Constraint++
	}
}
