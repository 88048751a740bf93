// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

/*
#include <string.h>
#include <sqlite3.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// RawString is a string referencing memory owned by SQLite, as handed to
// UpdateFunc callbacks. It is valid only for the duration of the callback.
type RawString string

// Copy returns a Go-managed copy of s.
func (s RawString) Copy() string {
	if s == "" {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(unsafe.StringData(string(s)))), C.int(len(s)))
}

// Value is a protected or unprotected sqlite3_value, as handed out by a
// ChangesetIter. It is only valid until the iterator advances.
// https://www.sqlite.org/c3ref/value.html
type Value struct {
	ptr *C.sqlite3_value
}

// IsSet reports whether the Value holds anything. Changeset iterators return
// an unset Value for columns an UPDATE left untouched.
func (v Value) IsSet() bool {
	return v.ptr != nil
}

// Type returns the storage class of the value: INTEGER, FLOAT, TEXT, BLOB or
// NULL.
// https://www.sqlite.org/c3ref/value_blob.html
func (v Value) Type() int {
	if v.ptr == nil {
		return NULL
	}
	return int(C.sqlite3_value_type(v.ptr))
}

// Int64 returns the value as an int64.
func (v Value) Int64() int64 {
	return int64(C.sqlite3_value_int64(v.ptr))
}

// Float returns the value as a float64.
func (v Value) Float() float64 {
	return float64(C.sqlite3_value_double(v.ptr))
}

// Text returns a copy of the value as a string.
func (v Value) Text() string {
	p := C.sqlite3_value_text(v.ptr)
	n := C.sqlite3_value_bytes(v.ptr)
	if p == nil || n == 0 {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(p)), n)
}

// Blob returns a copy of the value as a []byte.
func (v Value) Blob() []byte {
	p := C.sqlite3_value_blob(v.ptr)
	n := C.sqlite3_value_bytes(v.ptr)
	if p == nil || n == 0 {
		return []byte{}
	}
	return C.GoBytes(p, n)
}

// Interface returns a Go copy of the value using its storage class: nil,
// int64, float64, string or []byte.
func (v Value) Interface() interface{} {
	switch v.Type() {
	case INTEGER:
		return v.Int64()
	case FLOAT:
		return v.Float()
	case TEXT:
		return v.Text()
	case BLOB:
		return v.Blob()
	default:
		return nil
	}
}

// CommitFunc is a callback function invoked by SQLite before a transaction is
// committed. If the function returns true, the transaction is rolled back.
type CommitFunc func() (abort bool)

// RollbackFunc is a callback function invoked by SQLite when a transaction is
// rolled back.
type RollbackFunc func()

// UpdateFunc is a callback function invoked by SQLite when a row is updated,
// inserted, or deleted. db and tbl reference SQLite memory and must be copied
// to be retained.
type UpdateFunc func(op int, db, tbl RawString, row int64)

// Error is returned for all SQLite API result codes other than OK, ROW, and
// DONE.
type Error struct {
	rc  int
	msg string
}

func errStr(rc C.int) error {
	return &Error{int(rc), C.GoString(C.sqlite3_errstr(rc))}
}

// libErr reports an error originating in SQLite. The error message is obtained
// from the database connection when possible, which may include some additional
// information. Otherwise, the result code is translated to a generic message.
func libErr(rc C.int, db *C.sqlite3) error {
	if db != nil && rc == C.sqlite3_errcode(db) {
		return &Error{int(rc), C.GoString(C.sqlite3_errmsg(db))}
	}
	return &Error{int(rc), C.GoString(C.sqlite3_errstr(rc))}
}

// pkgErr reports an error originating in this package.
func pkgErr(rc int, msg string, v ...interface{}) error {
	if len(v) == 0 {
		return &Error{rc, msg}
	}
	return &Error{rc, fmt.Sprintf(msg, v...)}
}

// Code returns the SQLite extended result code.
func (err *Error) Code() int {
	return err.rc
}

// Primary returns the primary result code, with the extended bits masked off.
// https://www.sqlite.org/rescode.html#primary_result_codes_versus_extended_result_codes
func (err *Error) Primary() int {
	return err.rc & 0xff
}

// Message returns the error message reported by SQLite.
func (err *Error) Message() string {
	return err.msg
}

// Error implements the error interface.
func (err *Error) Error() string {
	return fmt.Sprintf("sqlite3: %s [%d]", err.msg, err.rc)
}

// ErrBadConn is returned for access attempts to closed or invalid connections.
var ErrBadConn = &Error{MISUSE, "closed or invalid connection"}

// Version returns the SQLite version as a string in the format "X.Y.Z[.N]".
// https://www.sqlite.org/c3ref/libversion.html
func Version() string {
	if initErr != nil {
		return ""
	}
	return C.GoString(C.sqlite3_libversion())
}

// raw casts s to a RawString.
func raw(s string) RawString {
	return RawString(s)
}

// cStr returns a pointer to the first byte in s.
func cStr(s string) *C.char {
	return (*C.char)(unsafe.Pointer(unsafe.StringData(s)))
}

// cStrOffset returns the offset of p in s or -1 if p doesn't point into s.
func cStrOffset(s string, p *C.char) int {
	base := uintptr(unsafe.Pointer(unsafe.StringData(s)))
	if off := uintptr(unsafe.Pointer(p)) - base; off < uintptr(len(s)) {
		return int(off)
	}
	return -1
}

// cBytes returns a pointer to the first byte in b.
func cBytes(b []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b))
}

// cBool returns a C representation of a Go bool (false = 0, true = 1).
func cBool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// goStr returns a Go representation of a null-terminated C string, without
// copying.
func goStr(p *C.char) string {
	if p == nil {
		return ""
	}
	return goStrN(p, C.int(C.strlen(p)))
}

// goStrN returns a Go representation of an n-byte C string, without copying.
func goStrN(p *C.char, n C.int) string {
	if n <= 0 {
		return ""
	}
	return unsafe.String((*byte)(unsafe.Pointer(p)), int(n))
}

// registry maps small integer handles to Go values, so that C callbacks can
// carry a pointer to a C-visible int rather than a Go pointer.
type registry struct {
	mu    *sync.Mutex
	index int
	vals  map[int]interface{}
}

func newRegistry() *registry {
	return &registry{
		mu:    &sync.Mutex{},
		index: 0,
		vals:  make(map[int]interface{}),
	}
}

func (r *registry) register(val interface{}) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index++
	for r.vals[r.index] != nil || r.index == 0 {
		r.index++
	}
	r.vals[r.index] = val
	return r.index
}

func (r *registry) lookup(i int) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vals[i]
}

func (r *registry) unregister(i int) interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.vals[i]
	delete(r.vals, i)
	return prev
}

//export go_commit_hook
func go_commit_hook(data unsafe.Pointer) (abort C.int) {
	idx := *(*int)(data)
	fn := commitRegistry.lookup(idx).(CommitFunc)
	return cBool(fn())
}

//export go_rollback_hook
func go_rollback_hook(data unsafe.Pointer) {
	idx := *(*int)(data)
	fn := rollbackRegistry.lookup(idx).(RollbackFunc)
	fn()
}

//export go_update_hook
func go_update_hook(data unsafe.Pointer, op C.int, db, tbl *C.char, row C.sqlite3_int64) {
	idx := *(*int)(data)
	fn := updateRegistry.lookup(idx).(UpdateFunc)
	fn(int(op), raw(goStr(db)), raw(goStr(tbl)), int64(row))
}
