// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"fmt"

	"github.com/productsupcom/go-sqlite-async/metrics"
	log "github.com/sirupsen/logrus"
)

// WithTransaction runs |fn| within a transaction. The transaction commits
// if |fn| returns nil, and otherwise rolls back and returns |fn|'s error.
//
// The transaction is cooperative: |fn| is handed the Database itself, and
// operations issued concurrently by other callers run inside the same
// transaction, interleaved with those of |fn|.
func (db *Database) WithTransaction(fn func(*Database) error) (err error) {
	if err = db.Exec("BEGIN"); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			db.rollback(fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()

	if err = fn(db); err != nil {
		db.rollback(err)
		return err
	}
	if err = db.Exec("COMMIT"); err != nil {
		db.rollback(err)
		return err
	}
	return nil
}

// WithTransactionAsync is WithTransaction with BEGIN, COMMIT and ROLLBACK
// queued. |fn| runs on its own goroutine.
func (db *Database) WithTransactionAsync(fn func(*Database) error) *Future[struct{}] {
	var f = newFuture[struct{}]()
	var begin = db.ExecAsync("BEGIN")

	go func() {
		if err := begin.Err(); err != nil {
			f.resolve(struct{}{}, err)
			return
		}
		var err = fn(db)
		if err == nil {
			err = db.ExecAsync("COMMIT").Err()
		}
		if err != nil {
			var cause = err
			submit(db, func() (struct{}, error) {
				db.rollback(cause)
				return struct{}{}, nil
			}).Err()
		}
		f.resolve(struct{}{}, err)
	}()
	return f
}

// rollback rolls back the open transaction, if any, logging a failure to do
// so. |cause| is the reason for rolling back.
func (db *Database) rollback(cause error) {
	_, err := locked(db, func() (struct{}, error) {
		return struct{}{}, db.rollbackLocked()
	})
	if err != nil {
		log.WithFields(log.Fields{"err": err, "cause": cause, "name": db.name}).
			Error("failed to roll back transaction")
	}
}

// rollbackLocked rolls back the open transaction, if any. db.mu is held.
func (db *Database) rollbackLocked() error {
	if db.conn.AutoCommit() {
		return nil // Already rolled back by the engine.
	}
	return sqlErr(db.conn.Rollback(), "ROLLBACK")
}

// Transaction is the handle of an exclusive transaction. While it is open,
// writes made other than through the Transaction fail with
// ErrDatabaseLocked. Reads made other than through the Transaction proceed
// and observe its uncommitted writes.
type Transaction struct {
	db *Database
	// done is guarded by db.mu.
	done bool
}

// WithExclusiveTransaction begins an exclusive transaction and runs |fn|
// with it. The transaction commits if |fn| returns nil, and otherwise rolls
// back and returns |fn|'s error. It fails with ErrDatabaseLocked if another
// exclusive or cooperative transaction is open.
func (db *Database) WithExclusiveTransaction(fn func(*Transaction) error) error {
	tx, err := db.beginExclusive()
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			db.endExclusive(tx, fmt.Errorf("panic: %v", r))
			panic(r)
		}
	}()
	return db.endExclusive(tx, fn(tx))
}

// WithExclusiveTransactionAsync is WithExclusiveTransaction with the begin
// and end of the transaction queued. |fn| runs on its own goroutine.
func (db *Database) WithExclusiveTransactionAsync(fn func(*Transaction) error) *Future[struct{}] {
	var f = newFuture[struct{}]()
	var begin = submit(db, db.beginExclusive)

	go func() {
		tx, err := begin.Get()
		if err != nil {
			f.resolve(struct{}{}, err)
			return
		}
		var cause = fn(tx)
		f.resolve(submit(db, func() (struct{}, error) {
			return struct{}{}, db.endExclusive(tx, cause)
		}).Get())
	}()
	return f
}

func (db *Database) beginExclusive() (*Transaction, error) {
	return locked(db, func() (*Transaction, error) {
		if db.exclusive != nil || !db.conn.AutoCommit() {
			metrics.LockRejectionsTotal.Inc()
			return nil, ErrDatabaseLocked
		}
		if err := db.conn.BeginExclusive(); err != nil {
			return nil, sqlErr(err, "BEGIN EXCLUSIVE")
		}
		var tx = &Transaction{db: db}
		db.exclusive = tx
		return tx, nil
	})
}

// endExclusive commits |tx| if |cause| is nil, and otherwise rolls it back.
// It returns |cause|, or the error of committing.
func (db *Database) endExclusive(tx *Transaction, cause error) error {
	_, err := locked(db, func() (struct{}, error) {
		defer func() {
			db.exclusive = nil
			tx.done = true
		}()

		if cause == nil && !db.conn.AutoCommit() {
			if err := db.conn.Commit(); err != nil {
				cause = sqlErr(err, "COMMIT")
			}
		}
		if cause != nil {
			if err := db.rollbackLocked(); err != nil {
				log.WithFields(log.Fields{"err": err, "cause": cause, "name": db.name}).
					Error("failed to roll back exclusive transaction")
			}
			metrics.ExclusiveTransactionsTotal.WithLabelValues(metrics.Fail).Inc()
			return struct{}{}, cause
		}
		metrics.ExclusiveTransactionsTotal.WithLabelValues(metrics.Ok).Inc()
		return struct{}{}, nil
	})
	return err
}

// Exec runs each statement of |sql| within the transaction.
func (tx *Transaction) Exec(sql string) error {
	_, err := txLocked(tx, func() (struct{}, error) {
		return struct{}{}, tx.db.exec(sql, tx)
	})
	return err
}

// ExecAsync queues Exec.
func (tx *Transaction) ExecAsync(sql string) *Future[struct{}] {
	return submit(tx.db, func() (struct{}, error) { return struct{}{}, tx.Exec(sql) })
}

// Run runs the single statement |sql| within the transaction.
func (tx *Transaction) Run(sql string, params Params) (RunResult, error) {
	return txLocked(tx, func() (RunResult, error) {
		return tx.db.run(sql, params, tx)
	})
}

// RunAsync queues Run.
func (tx *Transaction) RunAsync(sql string, params Params) *Future[RunResult] {
	return submit(tx.db, func() (RunResult, error) { return tx.Run(sql, params) })
}

// Get returns the first row of |sql| within the transaction, or nil.
func (tx *Transaction) Get(sql string, params Params) (Row, error) {
	return txLocked(tx, func() (Row, error) {
		return tx.db.get(sql, params, tx)
	})
}

// GetAsync queues Get.
func (tx *Transaction) GetAsync(sql string, params Params) *Future[Row] {
	return submit(tx.db, func() (Row, error) { return tx.Get(sql, params) })
}

// All returns all rows of |sql| within the transaction.
func (tx *Transaction) All(sql string, params Params) ([]Row, error) {
	return txLocked(tx, func() ([]Row, error) {
		return tx.db.all(sql, params, tx)
	})
}

// AllAsync queues All.
func (tx *Transaction) AllAsync(sql string, params Params) *Future[[]Row] {
	return submit(tx.db, func() ([]Row, error) { return tx.All(sql, params) })
}

// Prepare compiles |sql| into a Statement bound to the transaction. The
// Statement outlives the transaction, but can no longer write once it ends.
func (tx *Transaction) Prepare(sql string) (*Statement, error) {
	return txLocked(tx, func() (*Statement, error) {
		return tx.db.prepare(sql, tx)
	})
}

// PrepareAsync queues Prepare.
func (tx *Transaction) PrepareAsync(sql string) *Future[*Statement] {
	return submit(tx.db, func() (*Statement, error) { return tx.Prepare(sql) })
}

// ApplyChangeset applies |cs| within the transaction.
func (tx *Transaction) ApplyChangeset(cs Changeset, opts *ApplyOptions) (ApplyResult, error) {
	return txLocked(tx, func() (ApplyResult, error) {
		return tx.db.applyChangeset(cs, opts, tx)
	})
}

func txLocked[T any](tx *Transaction, fn func() (T, error)) (T, error) {
	return withLock(tx.db, func() error {
		if tx.done {
			return ErrTransactionDone
		}
		return nil
	}, fn)
}
