// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

/*
#include <sqlite3.h>
*/
import "C"

// Fundamental SQLite data types. These are returned by Stmt.ColumnTypes
// and Value.Type.
// https://www.sqlite.org/c3ref/c_blob.html
const (
	INTEGER = C.SQLITE_INTEGER // 1
	FLOAT   = C.SQLITE_FLOAT   // 2
	TEXT    = C.SQLITE_TEXT    // 3
	BLOB    = C.SQLITE_BLOB    // 4
	NULL    = C.SQLITE_NULL    // 5
)

// General result codes returned by the SQLite API. When converted to an error,
// OK and ROW become nil, and DONE becomes either nil or io.EOF, depending on
// the context in which the statement is executed. All other codes are returned
// via the Error struct.
// https://www.sqlite.org/c3ref/c_abort.html
const (
	OK         = C.SQLITE_OK         // Successful result
	ERROR      = C.SQLITE_ERROR      // SQL error or missing database
	INTERNAL   = C.SQLITE_INTERNAL   // Internal logic error in SQLite
	PERM       = C.SQLITE_PERM       // Access permission denied
	ABORT      = C.SQLITE_ABORT      // Callback routine requested an abort
	BUSY       = C.SQLITE_BUSY       // The database file is locked
	LOCKED     = C.SQLITE_LOCKED     // A table in the database is locked
	NOMEM      = C.SQLITE_NOMEM      // A malloc() failed
	READONLY   = C.SQLITE_READONLY   // Attempt to write a readonly database
	INTERRUPT  = C.SQLITE_INTERRUPT  // Operation terminated by sqlite3_interrupt()
	IOERR      = C.SQLITE_IOERR      // Some kind of disk I/O error occurred
	CORRUPT    = C.SQLITE_CORRUPT    // The database disk image is malformed
	NOTFOUND   = C.SQLITE_NOTFOUND   // Unknown opcode in sqlite3_file_control()
	FULL       = C.SQLITE_FULL       // Insertion failed because database is full
	CANTOPEN   = C.SQLITE_CANTOPEN   // Unable to open the database file
	PROTOCOL   = C.SQLITE_PROTOCOL   // Database lock protocol error
	EMPTY      = C.SQLITE_EMPTY      // Database is empty
	SCHEMA     = C.SQLITE_SCHEMA     // The database schema changed
	TOOBIG     = C.SQLITE_TOOBIG     // String or BLOB exceeds size limit
	CONSTRAINT = C.SQLITE_CONSTRAINT // Abort due to constraint violation
	MISMATCH   = C.SQLITE_MISMATCH   // Data type mismatch
	MISUSE     = C.SQLITE_MISUSE     // Library used incorrectly
	NOLFS      = C.SQLITE_NOLFS      // Uses OS features not supported on host
	AUTH       = C.SQLITE_AUTH       // Authorization denied
	FORMAT     = C.SQLITE_FORMAT     // Auxiliary database format error
	RANGE      = C.SQLITE_RANGE      // 2nd parameter to sqlite3_bind out of range
	NOTADB     = C.SQLITE_NOTADB     // File opened that is not a database file
	NOTICE     = C.SQLITE_NOTICE     // Notifications from sqlite3_log()
	WARNING    = C.SQLITE_WARNING    // Warnings from sqlite3_log()
	ROW        = C.SQLITE_ROW        // sqlite3_step() has another row ready
	DONE       = C.SQLITE_DONE       // sqlite3_step() has finished executing
)

// Extended result codes that callers commonly branch on.
// https://www.sqlite.org/rescode.html#extrc
const (
	BUSY_SNAPSHOT         = C.SQLITE_BUSY_SNAPSHOT
	LOCKED_SHAREDCACHE    = C.SQLITE_LOCKED_SHAREDCACHE
	ABORT_ROLLBACK        = C.SQLITE_ABORT_ROLLBACK
	CONSTRAINT_CHECK      = C.SQLITE_CONSTRAINT_CHECK
	CONSTRAINT_COMMITHOOK = C.SQLITE_CONSTRAINT_COMMITHOOK
	CONSTRAINT_FOREIGNKEY = C.SQLITE_CONSTRAINT_FOREIGNKEY
	CONSTRAINT_NOTNULL    = C.SQLITE_CONSTRAINT_NOTNULL
	CONSTRAINT_PRIMARYKEY = C.SQLITE_CONSTRAINT_PRIMARYKEY
	CONSTRAINT_UNIQUE     = C.SQLITE_CONSTRAINT_UNIQUE
	IOERR_BLOCKED         = C.SQLITE_IOERR_BLOCKED
)

// Flags that can be provided to Open
// https://www.sqlite.org/c3ref/open.html
const (
	OPEN_READONLY     = C.SQLITE_OPEN_READONLY     // Ok for sqlite3_open_v2()
	OPEN_READWRITE    = C.SQLITE_OPEN_READWRITE    // Ok for sqlite3_open_v2()
	OPEN_CREATE       = C.SQLITE_OPEN_CREATE       // Ok for sqlite3_open_v2()
	OPEN_URI          = C.SQLITE_OPEN_URI          // Ok for sqlite3_open_v2()
	OPEN_MEMORY       = C.SQLITE_OPEN_MEMORY       // Ok for sqlite3_open_v2()
	OPEN_NOMUTEX      = C.SQLITE_OPEN_NOMUTEX      // Ok for sqlite3_open_v2()
	OPEN_FULLMUTEX    = C.SQLITE_OPEN_FULLMUTEX    // Ok for sqlite3_open_v2()
	OPEN_SHAREDCACHE  = C.SQLITE_OPEN_SHAREDCACHE  // Ok for sqlite3_open_v2()
	OPEN_PRIVATECACHE = C.SQLITE_OPEN_PRIVATECACHE // Ok for sqlite3_open_v2()
)

// Operation codes passed to an UpdateFunc and reported by ChangesetIter.Op.
// https://www.sqlite.org/c3ref/c_alter_table.html
const (
	INSERT = C.SQLITE_INSERT
	UPDATE = C.SQLITE_UPDATE
	DELETE = C.SQLITE_DELETE
)

// Return values of an AuthorizerFunc.
// https://www.sqlite.org/c3ref/c_deny.html
const (
	DENY   = C.SQLITE_DENY
	IGNORE = C.SQLITE_IGNORE
)

// Connection status parameters accepted by Conn.Status.
// https://www.sqlite.org/c3ref/c_dbstatus_options.html
const (
	DBSTATUS_LOOKASIDE_USED = C.SQLITE_DBSTATUS_LOOKASIDE_USED
	DBSTATUS_CACHE_USED     = C.SQLITE_DBSTATUS_CACHE_USED
	DBSTATUS_SCHEMA_USED    = C.SQLITE_DBSTATUS_SCHEMA_USED
	DBSTATUS_STMT_USED      = C.SQLITE_DBSTATUS_STMT_USED
	DBSTATUS_CACHE_HIT      = C.SQLITE_DBSTATUS_CACHE_HIT
	DBSTATUS_CACHE_MISS     = C.SQLITE_DBSTATUS_CACHE_MISS
	DBSTATUS_CACHE_WRITE    = C.SQLITE_DBSTATUS_CACHE_WRITE
	DBSTATUS_DEFERRED_FKS   = C.SQLITE_DBSTATUS_DEFERRED_FKS
)

// Global status parameters accepted by Status.
// https://www.sqlite.org/c3ref/c_status_malloc_count.html
const (
	STATUS_MEMORY_USED    = C.SQLITE_STATUS_MEMORY_USED
	STATUS_PAGECACHE_USED = C.SQLITE_STATUS_PAGECACHE_USED
	STATUS_MALLOC_SIZE    = C.SQLITE_STATUS_MALLOC_SIZE
	STATUS_MALLOC_COUNT   = C.SQLITE_STATUS_MALLOC_COUNT
)

// Statement status counters accepted by Stmt.Status.
// https://www.sqlite.org/c3ref/c_stmtstatus_counter.html
const (
	STMTSTATUS_FULLSCAN_STEP = C.SQLITE_STMTSTATUS_FULLSCAN_STEP
	STMTSTATUS_SORT          = C.SQLITE_STMTSTATUS_SORT
	STMTSTATUS_AUTOINDEX     = C.SQLITE_STMTSTATUS_AUTOINDEX
	STMTSTATUS_VM_STEP       = C.SQLITE_STMTSTATUS_VM_STEP
)

// Run-time limit categories accepted by Conn.Limit.
// https://www.sqlite.org/c3ref/c_limit_attached.html
const (
	LIMIT_LENGTH              = C.SQLITE_LIMIT_LENGTH
	LIMIT_SQL_LENGTH          = C.SQLITE_LIMIT_SQL_LENGTH
	LIMIT_COLUMN              = C.SQLITE_LIMIT_COLUMN
	LIMIT_EXPR_DEPTH          = C.SQLITE_LIMIT_EXPR_DEPTH
	LIMIT_COMPOUND_SELECT     = C.SQLITE_LIMIT_COMPOUND_SELECT
	LIMIT_VDBE_OP             = C.SQLITE_LIMIT_VDBE_OP
	LIMIT_FUNCTION_ARG        = C.SQLITE_LIMIT_FUNCTION_ARG
	LIMIT_ATTACHED            = C.SQLITE_LIMIT_ATTACHED
	LIMIT_LIKE_PATTERN_LENGTH = C.SQLITE_LIMIT_LIKE_PATTERN_LENGTH
	LIMIT_VARIABLE_NUMBER     = C.SQLITE_LIMIT_VARIABLE_NUMBER
	LIMIT_TRIGGER_DEPTH       = C.SQLITE_LIMIT_TRIGGER_DEPTH
)
