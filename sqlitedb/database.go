// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlitedb provides synchronous and asynchronous access to a SQLite
// database through a single engine connection.
//
// Every Database owns one connection and one queue. Asynchronous operations
// are appended to the queue and run in order by a single goroutine, returning
// a Future. Synchronous operations run on the caller's goroutine. Both are
// serialized by the Database's engine lock, so an operation never observes
// another operation half-way through a statement. They are not otherwise
// isolated: operations from independent callers interleave in queue order,
// and a cooperative transaction (WithTransaction) sees writes issued by
// others while it is open. Exclusive transactions (WithExclusiveTransaction)
// reject writes from anyone other than the holder with ErrDatabaseLocked.
//
// Sessions record the changes made to attached tables while enabled. The
// Changesets they produce can be inverted and applied to rewind one layer of
// changes without disturbing rows changed only by other layers.
package sqlitedb

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/productsupcom/go-sqlite-async/metrics"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
	"github.com/productsupcom/go-sqlite-async/storage"
	log "github.com/sirupsen/logrus"
)

// Database is a SQLite database reached through one engine connection.
type Database struct {
	name string
	path string
	opts Options

	queue *opQueue

	// Engine lock. Guards every field below.
	mu        sync.Mutex
	conn      *sqlite3.Conn
	closed    bool
	cache     *lru.Cache
	stmts     map[*Statement]struct{}
	sessions  map[uuid.UUID]*Session
	exclusive *Transaction

	// Notifications of the open transaction, and of committed transactions
	// not yet published.
	pending   []listener.Notification
	committed []listener.Notification
}

// Row maps column names to values. Values are nil, int64, float64, string
// or []byte.
type Row map[string]interface{}

// RunResult describes the effect of a statement which was run.
type RunResult struct {
	// Changes is the number of rows modified by the statement.
	Changes int
	// LastInsertRowID is the rowid of the most recent successful insert.
	LastInsertRowID int64
}

// Open opens the database |name|, which is a file name resolved against
// Options.Directory, an absolute path, or ":memory:". The file is created if
// it does not exist. A nil |opts| is equivalent to the zero Options.
func Open(name string, opts *Options) (*Database, error) {
	if opts == nil {
		opts = new(Options)
	}
	if storage.IsMemory(name) {
		name = storage.MemoryName
	}

	path, err := storage.NewResolver(opts.Fs, opts.Directory).Resolve(name)
	if err != nil {
		return nil, &OpenError{Name: name, Path: name, Err: err}
	}
	conn, err := sqlite3.Open(path, sqlite3.OPEN_READWRITE|sqlite3.OPEN_CREATE|sqlite3.OPEN_URI)
	if err != nil {
		return nil, &OpenError{Name: name, Path: path, Err: sqlErr(err, "")}
	}

	var db = &Database{
		name:     name,
		path:     path,
		opts:     *opts,
		conn:     conn,
		stmts:    make(map[*Statement]struct{}),
		sessions: make(map[uuid.UUID]*Session),
	}
	if err = db.init(); err != nil {
		if db.cache != nil {
			db.cache.Purge()
		}
		conn.Close()
		return nil, &OpenError{Name: name, Path: path, Err: err}
	}
	db.queue = newOpQueue()

	metrics.DatabasesOpen.Inc()
	log.WithFields(log.Fields{"name": name, "path": path, "sqlite": sqlite3.Version()}).Debug("opened database")
	return db, nil
}

func (db *Database) init() error {
	if db.opts.BusyTimeout > 0 {
		db.conn.BusyTimeout(db.opts.BusyTimeout)
	}
	if db.opts.Key != "" {
		var stmt = "PRAGMA key = '" + strings.ReplaceAll(db.opts.Key, "'", "''") + "'"
		if err := db.conn.Exec(stmt); err != nil {
			return errors.WithMessage(sqlErr(err, ""), "applying key")
		}
	}
	// A wrong key or a file which isn't a database fails here, not at open.
	if err := db.conn.Exec("SELECT count(*) FROM sqlite_master"); err != nil {
		return errors.WithMessage(sqlErr(err, ""), "reading schema")
	}

	if len(db.opts.Extensions) != 0 {
		if err := db.conn.EnableLoadExtension(true); err != nil {
			return sqlErr(err, "")
		}
		for _, ext := range db.opts.Extensions {
			if err := db.conn.LoadExtension(ext.LibPath, ext.EntryPoint); err != nil {
				return errors.WithMessagef(sqlErr(err, ""), "loading extension %s", ext.LibPath)
			}
		}
		if err := db.conn.EnableLoadExtension(false); err != nil {
			return sqlErr(err, "")
		}
	}

	if size := db.opts.cacheSize(); size != 0 {
		var err error
		db.cache, err = lru.NewWithEvict(size, func(_, value interface{}) {
			value.(*sqlite3.Stmt).Close()
		})
		if err != nil {
			return err
		}
	}

	if db.opts.EnableChangeListener {
		if db.opts.Hub == nil {
			return errors.New("EnableChangeListener requires a Hub")
		}
		db.conn.UpdateFunc(db.onUpdate)
		db.conn.CommitFunc(db.onCommit)
		db.conn.RollbackFunc(db.onRollback)
	}
	return nil
}

// Name returns the name the Database was opened with.
func (db *Database) Name() string { return db.name }

// Path returns the resolved path of the Database, or ":memory:".
func (db *Database) Path() string { return db.path }

// Exec runs every statement of |sql| in turn. Statements may not have
// parameters, and rows they return are discarded.
func (db *Database) Exec(sql string) error {
	_, err := locked(db, func() (struct{}, error) {
		return struct{}{}, db.exec(sql, nil)
	})
	return err
}

// ExecAsync queues Exec.
func (db *Database) ExecAsync(sql string) *Future[struct{}] {
	return submit(db, func() (struct{}, error) {
		return struct{}{}, db.Exec(sql)
	})
}

// Run runs the single statement |sql| bound to |params|.
func (db *Database) Run(sql string, params Params) (RunResult, error) {
	return locked(db, func() (RunResult, error) {
		return db.run(sql, params, nil)
	})
}

// RunAsync queues Run.
func (db *Database) RunAsync(sql string, params Params) *Future[RunResult] {
	return submit(db, func() (RunResult, error) { return db.Run(sql, params) })
}

// Get runs |sql| bound to |params| and returns its first row, or nil if it
// returned no rows.
func (db *Database) Get(sql string, params Params) (Row, error) {
	return locked(db, func() (Row, error) {
		return db.get(sql, params, nil)
	})
}

// GetAsync queues Get.
func (db *Database) GetAsync(sql string, params Params) *Future[Row] {
	return submit(db, func() (Row, error) { return db.Get(sql, params) })
}

// All runs |sql| bound to |params| and returns all of its rows.
func (db *Database) All(sql string, params Params) ([]Row, error) {
	return locked(db, func() ([]Row, error) {
		return db.all(sql, params, nil)
	})
}

// AllAsync queues All.
func (db *Database) AllAsync(sql string, params Params) *Future[[]Row] {
	return submit(db, func() ([]Row, error) { return db.All(sql, params) })
}

// Prepare compiles the single statement |sql|. The Statement must be
// finalized by the caller.
func (db *Database) Prepare(sql string) (*Statement, error) {
	return locked(db, func() (*Statement, error) {
		return db.prepare(sql, nil)
	})
}

// PrepareAsync queues Prepare.
func (db *Database) PrepareAsync(sql string) *Future[*Statement] {
	return submit(db, func() (*Statement, error) { return db.Prepare(sql) })
}

// Serialize returns the content of |schema| ("main" if empty) in the SQLite
// file format.
func (db *Database) Serialize(schema string) ([]byte, error) {
	if schema == "" {
		schema = "main"
	}
	return locked(db, func() ([]byte, error) {
		var b, err = db.conn.Serialize(schema)
		return b, sqlErr(err, "")
	})
}

// SerializeAsync queues Serialize.
func (db *Database) SerializeAsync(schema string) *Future[[]byte] {
	return submit(db, func() ([]byte, error) { return db.Serialize(schema) })
}

// Deserialize opens an in-memory Database holding a copy of |data|, which
// is a database in the SQLite file format such as returned by Serialize.
func Deserialize(data []byte, opts *Options) (*Database, error) {
	db, err := Open(storage.MemoryName, opts)
	if err != nil {
		return nil, err
	}
	_, err = locked(db, func() (struct{}, error) {
		if err := db.conn.Deserialize("main", data); err != nil {
			return struct{}{}, sqlErr(err, "")
		}
		return struct{}{}, sqlErr(db.conn.Exec("SELECT count(*) FROM sqlite_master"), "")
	})
	if err != nil {
		db.Close()
		return nil, &OpenError{Name: db.name, Path: db.path, Err: err}
	}
	return db, nil
}

// Close waits for queued operations to complete, then closes the Database.
// It fails with ErrDatabaseLocked while an exclusive transaction is held, and
// with ErrUnfinalizedStatements if Statements remain and
// Options.FinalizeUnusedStatementsBeforeClosing is not set. In both cases
// the Database stays open.
func (db *Database) Close() error {
	// Barrier: operations queued before Close run first.
	if err := submit(db, func() (struct{}, error) { return struct{}{}, nil }).Err(); err != nil {
		return err
	}

	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return ErrDatabaseClosed
	} else if db.exclusive != nil {
		db.mu.Unlock()
		return ErrDatabaseLocked
	} else if len(db.stmts) != 0 && !db.opts.FinalizeUnusedStatementsBeforeClosing {
		db.mu.Unlock()
		return errors.WithMessagef(ErrUnfinalizedStatements, "%d statements", len(db.stmts))
	}
	db.closed = true
	db.queue.close()
	db.mu.Unlock()

	// Operations queued since the barrier fail with ErrDatabaseClosed.
	<-db.queue.done()

	db.mu.Lock()
	defer db.mu.Unlock()

	if n := len(db.stmts); n != 0 {
		for st := range db.stmts {
			st.stmt.Close()
			st.stmt = nil
		}
		db.stmts = nil
		metrics.StatementsForceFinalizedTotal.Add(float64(n))
		log.WithFields(log.Fields{"name": db.name, "count": n}).Warn("finalized unused statements")
	}
	for _, s := range db.sessions {
		s.sess.Close()
		s.sess = nil
	}
	db.sessions = nil

	if db.cache != nil {
		db.cache.Purge()
	}
	var err = db.conn.Close()
	db.conn = nil

	metrics.DatabasesOpen.Dec()
	log.WithFields(log.Fields{"name": db.name, "path": db.path}).Debug("closed database")
	return sqlErr(err, "")
}

// CloseAsync runs Close in the background.
func (db *Database) CloseAsync() *Future[struct{}] {
	var f = newFuture[struct{}]()
	go func() { f.resolve(struct{}{}, db.Close()) }()
	return f
}

// locked runs |fn| holding the engine lock, then publishes notifications
// of transactions it committed.
func locked[T any](db *Database, fn func() (T, error)) (T, error) {
	return withLock(db, nil, fn)
}

// withLock is locked, additionally running |check| before testing whether
// the Database is closed.
func withLock[T any](db *Database, check func() error, fn func() (T, error)) (T, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var zero T
	if check != nil {
		if err := check(); err != nil {
			return zero, err
		}
	}
	if db.closed {
		return zero, ErrDatabaseClosed
	}
	defer db.publishCommitted()

	return fn()
}

// exec runs each statement of |sql| on behalf of |holder|. db.mu is held.
func (db *Database) exec(sql string, holder *Transaction) error {
	for {
		s, err := db.conn.Prepare(sql)
		if err != nil {
			return sqlErr(err, sql)
		} else if s == nil {
			return nil
		}
		sql = s.Tail

		if err = db.checkWrite(s, holder); err == nil {
			err = sqlErr(s.StepToCompletion(), s.SQL())
		}
		s.Close()

		if err != nil {
			return err
		}
	}
}

func (db *Database) run(sql string, params Params, holder *Transaction) (RunResult, error) {
	s, release, err := db.prepareCached(sql)
	if err != nil || s == nil {
		return RunResult{}, err
	}
	defer release()

	if err = db.checkWrite(s, holder); err != nil {
		return RunResult{}, err
	} else if err = bindParams(s, params); err != nil {
		return RunResult{}, err
	} else if err = s.StepToCompletion(); err != nil {
		return RunResult{}, sqlErr(err, sql)
	}
	return db.result(), nil
}

func (db *Database) get(sql string, params Params, holder *Transaction) (Row, error) {
	s, release, err := db.prepareCached(sql)
	if err != nil || s == nil {
		return nil, err
	}
	defer release()

	if err = db.checkWrite(s, holder); err != nil {
		return nil, err
	} else if err = bindParams(s, params); err != nil {
		return nil, err
	}
	return firstRow(s)
}

func (db *Database) all(sql string, params Params, holder *Transaction) ([]Row, error) {
	s, release, err := db.prepareCached(sql)
	if err != nil || s == nil {
		return nil, err
	}
	defer release()

	if err = db.checkWrite(s, holder); err != nil {
		return nil, err
	} else if err = bindParams(s, params); err != nil {
		return nil, err
	}
	return allRows(s)
}

func (db *Database) result() RunResult {
	return RunResult{
		Changes:         db.conn.Changes(),
		LastInsertRowID: db.conn.LastInsertRowID(),
	}
}

// prepareCached returns a compiled statement for |sql|, and a function to
// release it once used. A nil statement means |sql| holds nothing to run.
func (db *Database) prepareCached(sql string) (*sqlite3.Stmt, func(), error) {
	if db.cache != nil {
		if v, ok := db.cache.Get(sql); ok {
			metrics.StatementCacheHitsTotal.Inc()
			var s = v.(*sqlite3.Stmt)
			return s, func() { s.Reset() }, nil
		}
	}
	s, err := compileOne(db.conn, sql)
	if err != nil || s == nil {
		return nil, nil, err
	}
	if db.cache == nil {
		return s, func() { s.Close() }, nil
	}
	metrics.StatementCacheMissesTotal.Inc()
	db.cache.Add(sql, s)
	return s, func() { s.Reset() }, nil
}

// compileOne compiles |sql|, which must hold at most one statement.
func compileOne(conn *sqlite3.Conn, sql string) (*sqlite3.Stmt, error) {
	s, err := conn.Prepare(sql)
	if err != nil {
		return nil, sqlErr(err, sql)
	} else if s != nil && strings.TrimSpace(s.Tail) != "" {
		s.Close()
		return nil, &SQLError{Code: sqlite3.MISUSE, Message: "more than one statement", SQL: sql}
	}
	return s, nil
}

// checkWrite fails if |s| writes and the exclusive lock is held by someone
// other than |holder|.
func (db *Database) checkWrite(s *sqlite3.Stmt, holder *Transaction) error {
	if !isWrite(s) {
		return nil
	} else if holder != nil && holder.done {
		return ErrTransactionDone
	} else if db.exclusive != nil && db.exclusive != holder {
		metrics.LockRejectionsTotal.Inc()
		return ErrDatabaseLocked
	}
	return nil
}

var txControl = []string{"BEGIN", "COMMIT", "END", "ROLLBACK", "SAVEPOINT", "RELEASE"}

// isWrite returns whether |s| modifies the database or controls a
// transaction. The engine reports transaction control as read-only.
func isWrite(s *sqlite3.Stmt) bool {
	if !s.ReadOnly() {
		return true
	}
	var sql = skipComments(s.SQL())
	for _, kw := range txControl {
		if len(sql) >= len(kw) && strings.EqualFold(sql[:len(kw)], kw) {
			return true
		}
	}
	return false
}

// skipComments returns |sql| without leading whitespace and comments.
func skipComments(sql string) string {
	for {
		sql = strings.TrimLeft(sql, " \t\r\n\f\v")

		switch {
		case strings.HasPrefix(sql, "--"):
			if i := strings.IndexByte(sql, '\n'); i != -1 {
				sql = sql[i+1:]
			} else {
				return ""
			}
		case strings.HasPrefix(sql, "/*"):
			if i := strings.Index(sql[2:], "*/"); i != -1 {
				sql = sql[i+4:]
			} else {
				return ""
			}
		default:
			return sql
		}
	}
}

// readRow reads the current row of |s|.
func readRow(s *sqlite3.Stmt) (Row, error) {
	var row = make(Row, s.ColumnCount())
	for i, name := range s.ColumnNames() {
		v, err := s.ColumnValue(i)
		if err != nil {
			return nil, sqlErr(err, s.SQL())
		}
		row[name] = v
	}
	return row, nil
}

// firstRow steps |s| from its start and returns its first row, leaving it
// reset.
func firstRow(s *sqlite3.Stmt) (Row, error) {
	defer s.Reset()

	if ok, err := s.Step(); err != nil {
		return nil, sqlErr(err, s.SQL())
	} else if !ok {
		return nil, nil
	}
	return readRow(s)
}

// allRows steps |s| from its start to completion, leaving it reset.
func allRows(s *sqlite3.Stmt) ([]Row, error) {
	defer s.Reset()

	var rows []Row
	for {
		if ok, err := s.Step(); err != nil {
			return nil, sqlErr(err, s.SQL())
		} else if !ok {
			return rows, nil
		}
		row, err := readRow(s)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

func (db *Database) onUpdate(op int, _, tbl sqlite3.RawString, rowID int64) {
	db.pending = append(db.pending, listener.Notification{
		DatabaseName:     db.name,
		DatabaseFilePath: db.path,
		TableName:        tbl.Copy(),
		RowID:            rowID,
		Op:               sqlite3.OpType(op).String(),
	})
}

func (db *Database) onCommit() bool {
	db.committed = append(db.committed, db.pending...)
	db.pending = db.pending[:0]
	return false
}

// onRollback discards changes of the rolled back transaction. Earlier
// commits of the same call are still published.
func (db *Database) onRollback() {
	db.pending = db.pending[:0]
}

// publishCommitted hands notifications of completed commits to the Hub.
// db.mu is held.
func (db *Database) publishCommitted() {
	if len(db.committed) == 0 || db.conn == nil || !db.conn.AutoCommit() {
		return
	}
	db.opts.Hub.Publish(db.committed...)
	db.committed = db.committed[:0]
}
