// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqlite3 is a thin cgo binding over the system SQLite library. It
// exposes connections, prepared statements, commit/rollback/update hooks,
// the session extension and in-memory serialization. It does not provide a
// database/sql interface and it does no locking of its own: a Conn and its
// Stmts must not be used by two goroutines at once.
//
// The linked SQLite must be built with SQLITE_ENABLE_SESSION and
// SQLITE_ENABLE_PREUPDATE_HOOK, as the Debian, Alpine and Homebrew packages
// are.
package sqlite3

/*
#cgo CFLAGS: -DSQLITE_ENABLE_SESSION=1
#cgo CFLAGS: -DSQLITE_ENABLE_PREUPDATE_HOOK=1
#cgo LDFLAGS: -lsqlite3
#cgo linux LDFLAGS: -lm

#include <stdlib.h>
#include <string.h>
#include <sqlite3.h>

// cgo doesn't handle variadic functions.
static void set_temp_dir(const char *path) {
	sqlite3_temp_directory = sqlite3_mprintf("%s", path);
}

// cgo doesn't handle SQLITE_{STATIC,TRANSIENT} pointer constants.
static int bind_text(sqlite3_stmt *s, int i, const char *p, int n, int copy) {
	if (n > 0) {
		return sqlite3_bind_text(s, i, p, n,
			(copy ? SQLITE_TRANSIENT : SQLITE_STATIC));
	}
	return sqlite3_bind_text(s, i, "", 0, SQLITE_STATIC);
}
static int bind_blob(sqlite3_stmt *s, int i, const void *p, int n, int copy) {
	if (n > 0) {
		return sqlite3_bind_blob(s, i, p, n,
			(copy ? SQLITE_TRANSIENT : SQLITE_STATIC));
	}
	return sqlite3_bind_zeroblob(s, i, 0);
}

// The buffer handed to sqlite3_deserialize must come from sqlite3_malloc64
// when SQLITE_DESERIALIZE_FREEONCLOSE is used, so the Go bytes are copied.
static int deserialize_copy(sqlite3 *db, const char *schema, const void *p, sqlite3_int64 n) {
	unsigned char *buf = sqlite3_malloc64(n > 0 ? n : 1);
	if (buf == 0) {
		return SQLITE_NOMEM;
	}
	if (n > 0) {
		memcpy(buf, p, n);
	}
	return sqlite3_deserialize(db, schema, buf, n, n,
		SQLITE_DESERIALIZE_FREEONCLOSE | SQLITE_DESERIALIZE_RESIZEABLE);
}

// Macro for creating callback setter functions.
#define SET(x) \
static void set_##x(sqlite3 *db, void *data, int enable) { \
	(enable ? sqlite3_##x(db, go_##x, data) : sqlite3_##x(db, 0, 0)); \
}

// util.go exports.
int go_commit_hook(void*);
void go_rollback_hook(void*);
void go_update_hook(void* data, int op,const char *db, const char *tbl, sqlite3_int64 row);

SET(commit_hook)
SET(rollback_hook)
SET(update_hook)
*/
import "C"

import (
	"math"
	"os"
	"time"
	"unsafe"
)

// initErr indicates a SQLite initialization error, which disables this package.
var initErr error

var (
	commitRegistry   = newRegistry()
	rollbackRegistry = newRegistry()
	updateRegistry   = newRegistry()
)

func init() {
	// https://www.sqlite.org/c3ref/initialize.html
	if rc := C.sqlite3_initialize(); rc != OK {
		initErr = errStr(rc)
		return
	}

	// Use the same temporary directory as Go.
	// https://www.sqlite.org/c3ref/temp_directory.html
	tmp := os.TempDir() + "\x00"
	C.set_temp_dir(cStr(tmp))
}

// Conn is a connection handle, which may have multiple databases attached to it
// by using the ATTACH SQL statement.
// https://www.sqlite.org/c3ref/sqlite3.html
type Conn struct {
	db *C.sqlite3

	// Registry indices of hook functions, addressed by C callbacks.
	commitIdx   int
	rollbackIdx int
	updateIdx   int
}

// Open creates a new connection to a SQLite database. The name can be 1) a path
// to a file, which is created if it does not exist, 2) a URI using the syntax
// described at https://www.sqlite.org/uri.html, 3) the string ":memory:",
// which creates a temporary in-memory database, or 4) an empty string, which
// creates a temporary on-disk database (deleted when closed) in the directory
// returned by os.TempDir(). Flags to Open can optionally be provided.  If no
// flags are provided, the default flags of OPEN_READWRITE|OPEN_CREATE are
// used.
// https://www.sqlite.org/c3ref/open.html
func Open(name string, flagArgs ...int) (*Conn, error) {
	if len(flagArgs) > 1 {
		return nil, pkgErr(MISUSE, "too many arguments provided to Open")
	}

	if initErr != nil {
		return nil, initErr
	}
	name += "\x00"

	var db *C.sqlite3
	flags := C.SQLITE_OPEN_READWRITE | C.SQLITE_OPEN_CREATE
	if len(flagArgs) == 1 {
		flags = flagArgs[0]
	}
	rc := C.sqlite3_open_v2(cStr(name), &db, C.int(flags), nil)
	if rc != OK {
		err := libErr(rc, db)
		C.sqlite3_close(db)
		return nil, err
	}
	c := &Conn{db: db}
	C.sqlite3_extended_result_codes(db, 1)
	return c, nil
}

// Close releases all resources associated with the connection. If any prepared
// statements are still active, the connection becomes an unusable "zombie"
// and is closed after all remaining statements are finalized. A BUSY error
// code is returned if the connection is left in this "zombie" status, which
// indicates a programming error where some previously allocated resource is
// not properly released.
// https://www.sqlite.org/c3ref/close.html
func (c *Conn) Close() error {
	if db := c.db; db != nil {
		c.db = nil

		commitRegistry.unregister(c.commitIdx)
		rollbackRegistry.unregister(c.rollbackIdx)
		updateRegistry.unregister(c.updateIdx)

		if rc := C.sqlite3_close(db); rc != OK {
			err := libErr(rc, db)
			if rc == BUSY {
				C.sqlite3_close_v2(db)
			}
			return err
		}
	}
	return nil
}

// Prepare compiles the first statement in sql. Text following the first
// statement is saved in s.Tail. A nil Stmt and nil error are returned if sql
// holds nothing but whitespace and comments.
// https://www.sqlite.org/c3ref/prepare.html
func (c *Conn) Prepare(sql string) (*Stmt, error) {
	if c.db == nil {
		return nil, ErrBadConn
	}
	zSQL := sql + "\x00"

	var stmt *C.sqlite3_stmt
	var cTail *C.char
	if rc := C.sqlite3_prepare_v2(c.db, cStr(zSQL), -1, &stmt, &cTail); rc != OK {
		return nil, libErr(rc, c.db)
	} else if stmt == nil {
		return nil, nil
	}

	s := &Stmt{stmt: stmt, db: c.db}
	if cTail != nil {
		if n := cStrOffset(zSQL, cTail); n >= 0 && n < len(sql) {
			s.Tail = sql[n:]
		}
	}
	return s, nil
}

// Exec runs every statement of sql through sqlite3_exec, discarding rows.
// https://www.sqlite.org/c3ref/exec.html
func (c *Conn) Exec(sql string) error {
	if c.db == nil {
		return ErrBadConn
	}
	sql += "\x00"
	return c.exec(cStr(sql))
}

// Begin starts a new deferred transaction. This is equivalent to
// c.Exec("BEGIN")
// https://www.sqlite.org/lang_transaction.html
func (c *Conn) Begin() error {
	return c.exec(cStr("BEGIN\x00"))
}

// BeginExclusive starts a new exclusive transaction. This is equivalent to
// c.Exec("BEGIN EXCLUSIVE")
// https://www.sqlite.org/lang_transaction.html
func (c *Conn) BeginExclusive() error {
	return c.exec(cStr("BEGIN EXCLUSIVE\x00"))
}

// Commit saves all changes made within a transaction to the database.
func (c *Conn) Commit() error {
	return c.exec(cStr("COMMIT\x00"))
}

// Rollback aborts the current transaction without saving any changes.
func (c *Conn) Rollback() error {
	return c.exec(cStr("ROLLBACK\x00"))
}

// AutoCommit returns true if the database connection is in auto-commit mode
// (i.e. outside of an explicit transaction started by BEGIN).
// https://www.sqlite.org/c3ref/get_autocommit.html
func (c *Conn) AutoCommit() bool {
	return C.sqlite3_get_autocommit(c.db) != 0
}

// LastInsertRowID returns the ROWID of the most recent successful INSERT
// statement.
// https://www.sqlite.org/c3ref/last_insert_rowid.html
func (c *Conn) LastInsertRowID() int64 {
	return int64(C.sqlite3_last_insert_rowid(c.db))
}

// Changes returns the number of rows that were changed, inserted, or deleted
// by the most recent statement. Auxiliary changes caused by triggers or
// foreign key actions are not counted.
// https://www.sqlite.org/c3ref/changes.html
func (c *Conn) Changes() int {
	return int(C.sqlite3_changes(c.db))
}

// BusyTimeout enables the built-in busy handler, which retries the table
// locking operation for the specified duration before aborting. The busy
// handler is disabled if d is negative or zero.
// https://www.sqlite.org/c3ref/busy_timeout.html
func (c *Conn) BusyTimeout(d time.Duration) {
	C.sqlite3_busy_timeout(c.db, C.int(d/time.Millisecond))
}

// Serialize returns a copy of the content of the named schema ("main" for
// the primary database) in the on-disk database file format.
// https://www.sqlite.org/c3ref/serialize.html
func (c *Conn) Serialize(schema string) ([]byte, error) {
	if c.db == nil {
		return nil, ErrBadConn
	}
	schema += "\x00"

	var size C.sqlite3_int64
	p := C.sqlite3_serialize(c.db, cStr(schema), &size, 0)
	if p == nil {
		if rc := C.sqlite3_errcode(c.db); rc != OK {
			return nil, libErr(rc, c.db)
		}
		if size > 0 {
			return nil, errStr(NOMEM)
		}
		return []byte{}, nil
	}
	defer C.sqlite3_free(unsafe.Pointer(p))

	return C.GoBytes(unsafe.Pointer(p), C.int(size)), nil
}

// Deserialize replaces the content of the named schema with data, which must
// be in the on-disk database file format. The schema becomes an in-memory
// database owned by SQLite; data is copied and may be reused by the caller.
// https://www.sqlite.org/c3ref/deserialize.html
func (c *Conn) Deserialize(schema string, data []byte) error {
	if c.db == nil {
		return ErrBadConn
	}
	schema += "\x00"

	var p unsafe.Pointer
	if len(data) > 0 {
		p = cBytes(data)
	}
	if rc := C.deserialize_copy(c.db, cStr(schema), p, C.sqlite3_int64(len(data))); rc != OK {
		return libErr(rc, c.db)
	}
	return nil
}

// EnableLoadExtension turns extension loading through LoadExtension on or
// off. It is off for new connections.
// https://www.sqlite.org/c3ref/enable_load_extension.html
func (c *Conn) EnableLoadExtension(on bool) error {
	if rc := C.sqlite3_enable_load_extension(c.db, cBool(on)); rc != OK {
		return libErr(rc, c.db)
	}
	return nil
}

// LoadExtension loads the shared library at path and calls its entry point.
// An empty entryPoint lets SQLite derive the default name.
// https://www.sqlite.org/c3ref/load_extension.html
func (c *Conn) LoadExtension(path, entryPoint string) error {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var cEntry *C.char
	if entryPoint != "" {
		cEntry = C.CString(entryPoint)
		defer C.free(unsafe.Pointer(cEntry))
	}

	var zErr *C.char
	if rc := C.sqlite3_load_extension(c.db, cPath, cEntry, &zErr); rc != OK {
		msg := C.GoString(zErr)
		C.sqlite3_free(unsafe.Pointer(zErr))
		if msg == "" {
			return libErr(rc, c.db)
		}
		return &Error{int(rc), msg}
	}
	return nil
}

// exec calls sqlite3_exec on sql, which must be a null-terminated C string.
func (c *Conn) exec(sql *C.char) error {
	if c.db == nil {
		return ErrBadConn
	}
	if rc := C.sqlite3_exec(c.db, sql, nil, nil, nil); rc != OK {
		return libErr(rc, c.db)
	}
	return nil
}

// Stmt is a prepared statement handle.
// https://www.sqlite.org/c3ref/stmt.html
type Stmt struct {
	// Tail is the text following the first statement passed to Prepare.
	Tail string

	stmt *C.sqlite3_stmt
	db   *C.sqlite3
}

// Close finalizes the prepared statement. It may be called at any point of
// the statement's life cycle, but only once.
// https://www.sqlite.org/c3ref/finalize.html
func (s *Stmt) Close() error {
	rc := C.sqlite3_finalize(s.stmt)
	s.stmt = nil
	if rc != OK {
		return libErr(rc, s.db)
	}
	return nil
}

// ReadOnly returns true if the prepared statement makes no direct changes to
// the content of the database file. Transaction control statements are
// reported as read-only.
// https://www.sqlite.org/c3ref/stmt_readonly.html
func (s *Stmt) ReadOnly() bool {
	return C.sqlite3_stmt_readonly(s.stmt) != 0
}

// SQL returns the text of the compiled statement, without any Tail.
// https://www.sqlite.org/c3ref/expanded_sql.html
func (s *Stmt) SQL() string {
	return C.GoString(C.sqlite3_sql(s.stmt))
}

// BindParameterCount returns the index of the largest parameter.
// https://www.sqlite.org/c3ref/bind_parameter_count.html
func (s *Stmt) BindParameterCount() int {
	return int(C.sqlite3_bind_parameter_count(s.stmt))
}

// BindParameterName returns the name of parameter i (starting at 1),
// including its prefix character. Nameless "?" parameters return "".
// https://www.sqlite.org/c3ref/bind_parameter_name.html
func (s *Stmt) BindParameterName(i int) string {
	if name := C.sqlite3_bind_parameter_name(s.stmt, C.int(i)); name != nil {
		return C.GoString(name)
	}
	return ""
}

// BindValue binds v to parameter i (starting at 1). Integer, float, bool,
// string and []byte values are supported. Unsigned values above
// math.MaxInt64 fail with RANGE. Nil and nil []byte bind NULL.
// https://www.sqlite.org/c3ref/bind_blob.html
func (s *Stmt) BindValue(i int, v interface{}) error {
	idx := C.int(i)

	var rc C.int
	switch v := v.(type) {
	case nil:
		rc = C.sqlite3_bind_null(s.stmt, idx)
	case int:
		rc = s.bindInt(idx, int64(v))
	case int8:
		rc = s.bindInt(idx, int64(v))
	case int16:
		rc = s.bindInt(idx, int64(v))
	case int32:
		rc = s.bindInt(idx, int64(v))
	case int64:
		rc = s.bindInt(idx, v)
	case uint8:
		rc = s.bindInt(idx, int64(v))
	case uint16:
		rc = s.bindInt(idx, int64(v))
	case uint32:
		rc = s.bindInt(idx, int64(v))
	case uint:
		if uint64(v) > math.MaxInt64 {
			return pkgErr(RANGE, "value at index %d overflows int64 (%d)", i, v)
		}
		rc = s.bindInt(idx, int64(v))
	case uint64:
		if v > math.MaxInt64 {
			return pkgErr(RANGE, "value at index %d overflows int64 (%d)", i, v)
		}
		rc = s.bindInt(idx, int64(v))
	case bool:
		rc = s.bindInt(idx, int64(cBool(v)))
	case float32:
		rc = C.sqlite3_bind_double(s.stmt, idx, C.double(v))
	case float64:
		rc = C.sqlite3_bind_double(s.stmt, idx, C.double(v))
	case string:
		rc = C.bind_text(s.stmt, idx, cStr(v), C.int(len(v)), 1)
	case []byte:
		if v == nil {
			rc = C.sqlite3_bind_null(s.stmt, idx)
		} else {
			rc = C.bind_blob(s.stmt, idx, cBytes(v), C.int(len(v)), 1)
		}
	default:
		return pkgErr(MISUSE, "unsupported type at index %d (%T)", i, v)
	}
	if rc != OK {
		return libErr(rc, s.db)
	}
	return nil
}

func (s *Stmt) bindInt(idx C.int, v int64) C.int {
	return C.sqlite3_bind_int64(s.stmt, idx, C.sqlite3_int64(v))
}

// ClearBindings sets every parameter to NULL. Reset does not clear bindings.
// https://www.sqlite.org/c3ref/clear_bindings.html
func (s *Stmt) ClearBindings() error {
	if rc := C.sqlite3_clear_bindings(s.stmt); rc != OK {
		return errStr(rc)
	}
	return nil
}

// Reset returns the prepared statement to its initial state, ready to be
// re-executed. Bindings are kept.
// https://www.sqlite.org/c3ref/reset.html
func (s *Stmt) Reset() error {
	if rc := C.sqlite3_reset(s.stmt); rc != OK {
		return errStr(rc)
	}
	return nil
}

// Step evaluates the next step in the statement's program. It returns true if
// a new row of data is ready for processing.
// https://www.sqlite.org/c3ref/step.html
func (s *Stmt) Step() (bool, error) {
	switch rc := C.sqlite3_step(s.stmt); rc {
	case ROW:
		return true, nil
	case DONE:
		return false, nil
	default:
		return false, libErr(rc, s.db)
	}
}

// StepToCompletion steps the statement until no more rows are returned or an
// error occurs.
// https://www.sqlite.org/c3ref/step.html
func (s *Stmt) StepToCompletion() error {
	for {
		if ok, err := s.Step(); err != nil {
			return err
		} else if !ok {
			return nil
		}
	}
}

// ColumnCount returns the number of columns produced by the prepared
// statement.
// https://www.sqlite.org/c3ref/column_count.html
func (s *Stmt) ColumnCount() int {
	return int(C.sqlite3_column_count(s.stmt))
}

// ColumnNames returns the names of columns produced by the prepared
// statement.
// https://www.sqlite.org/c3ref/column_name.html
func (s *Stmt) ColumnNames() []string {
	names := make([]string, s.ColumnCount())
	for i := range names {
		names[i] = C.GoString(C.sqlite3_column_name(s.stmt, C.int(i)))
	}
	return names
}

// ColumnValue returns a copy of column i (starting at 0) of the current row,
// using its storage class: nil, int64, float64, string or []byte.
// https://www.sqlite.org/c3ref/column_blob.html
func (s *Stmt) ColumnValue(i int) (interface{}, error) {
	if i < 0 || i >= s.ColumnCount() {
		return nil, errStr(RANGE)
	}
	col := C.int(i)

	switch typ := C.sqlite3_column_type(s.stmt, col); typ {
	case INTEGER:
		return int64(C.sqlite3_column_int64(s.stmt, col)), nil
	case FLOAT:
		return float64(C.sqlite3_column_double(s.stmt, col)), nil
	case TEXT:
		// Fetch the pointer before the size, as conversions may reallocate.
		p := (*C.char)(unsafe.Pointer(C.sqlite3_column_text(s.stmt, col)))
		n := C.sqlite3_column_bytes(s.stmt, col)
		if p == nil && n != 0 {
			return nil, libErr(C.sqlite3_errcode(s.db), s.db)
		}
		return C.GoStringN(p, n), nil
	case BLOB:
		p := C.sqlite3_column_blob(s.stmt, col)
		n := C.sqlite3_column_bytes(s.stmt, col)
		if p == nil {
			if n != 0 || C.sqlite3_errcode(s.db) == NOMEM {
				return nil, libErr(C.sqlite3_errcode(s.db), s.db)
			}
			return []byte{}, nil
		}
		return C.GoBytes(p, n), nil
	case NULL:
		return nil, nil
	default:
		return nil, pkgErr(ERROR, "unknown column type (%d)", int(typ))
	}
}

// CommitFunc registers a function that is invoked by SQLite before a
// transaction is committed. It returns the previous commit handler, if any. If
// the function f returns true, the transaction is rolled back instead, causing
// the rollback handler to be invoked, if one is registered.
// https://www.sqlite.org/c3ref/commit_hook.html
func (c *Conn) CommitFunc(f CommitFunc) (prev CommitFunc) {
	idx := commitRegistry.register(f)
	prevIdx := c.commitIdx
	c.commitIdx = idx
	C.set_commit_hook(c.db, unsafe.Pointer(&c.commitIdx), cBool(f != nil))
	prev, _ = commitRegistry.unregister(prevIdx).(CommitFunc)
	return
}

// RollbackFunc registers a function that is invoked by SQLite when a
// transaction is rolled back. It returns the previous rollback handler, if any.
// https://www.sqlite.org/c3ref/commit_hook.html
func (c *Conn) RollbackFunc(f RollbackFunc) (prev RollbackFunc) {
	idx := rollbackRegistry.register(f)
	prevIdx := c.rollbackIdx
	c.rollbackIdx = idx
	C.set_rollback_hook(c.db, unsafe.Pointer(&c.rollbackIdx), cBool(f != nil))
	prev, _ = rollbackRegistry.unregister(prevIdx).(RollbackFunc)
	return
}

// UpdateFunc registers a function that is invoked by SQLite when a row is
// updated, inserted, or deleted. It returns the previous update handler, if
// any.
// https://www.sqlite.org/c3ref/update_hook.html
func (c *Conn) UpdateFunc(f UpdateFunc) (prev UpdateFunc) {
	idx := updateRegistry.register(f)
	prevIdx := c.updateIdx
	c.updateIdx = idx
	C.set_update_hook(c.db, unsafe.Pointer(&c.updateIdx), cBool(f != nil))
	prev, _ = updateRegistry.unregister(prevIdx).(UpdateFunc)
	return
}
