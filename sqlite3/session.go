// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// This code was adapted from David Crawshaw's sqlite driver.
// https://github.com/crawshaw/sqlite
// The license to the original code is as follows:
//
// Copyright (c) 2018 David Crawshaw <david@zentus.com>
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that the above
// copyright notice and this permission notice appear in all copies.
//
// THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES
// WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR
// ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES
// WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN
// ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF
// OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.

package sqlite3

/*
#include <sqlite3.h>

extern int strm_r_tramp(void*, char*, int*);
extern int strm_w_tramp(void*, char*, int);
extern int xapply_conflict_tramp(void*, int, sqlite3_changeset_iter*);
extern int xapply_filter_tramp(void*, char*);
*/
import "C"

import (
	"io"
	"unsafe"
)

var strmWriterReg = newRegistry()
var strmReaderReg = newRegistry()
var xapplyReg = newRegistry()

// Session records changes made to the tables attached to it.
// https://www.sqlite.org/sessionintro.html
type Session struct {
	sess *C.sqlite3_session
	db   *C.sqlite3
}

// CreateSession creates a new session object on the named schema, usually
// "main".
// https://www.sqlite.org/session/sqlite3session_create.html
func (c *Conn) CreateSession(schema string) (*Session, error) {
	if c.db == nil {
		return nil, ErrBadConn
	}
	schema += "\x00"
	s := &Session{db: c.db}
	if rc := C.sqlite3session_create(c.db, cStr(schema), &s.sess); rc != OK {
		return nil, libErr(rc, c.db)
	}
	return s, nil
}

// Close deletes the session. It must be called before the Conn it was created
// on is closed.
// https://www.sqlite.org/session/sqlite3session_delete.html
func (s *Session) Close() {
	if s.sess != nil {
		C.sqlite3session_delete(s.sess)
		s.sess = nil
	}
}

// Enable enables recording of changes by a Session.
// New Sessions start enabled.
// https://www.sqlite.org/session/sqlite3session_enable.html
func (s *Session) Enable() {
	C.sqlite3session_enable(s.sess, 1)
}

// Disable disables recording of changes by a Session.
// https://www.sqlite.org/session/sqlite3session_enable.html
func (s *Session) Disable() {
	C.sqlite3session_enable(s.sess, 0)
}

// IsEnabled queries if the session is currently enabled.
// https://www.sqlite.org/session/sqlite3session_enable.html
func (s *Session) IsEnabled() bool {
	return C.sqlite3session_enable(s.sess, -1) != 0
}

// IsIndirect queries the session's indirect flag.
// https://sqlite.org/session/sqlite3session_indirect.html
func (s *Session) IsIndirect() bool {
	return C.sqlite3session_indirect(s.sess, -1) != 0
}

// SetIndirect marks subsequently recorded changes as indirect.
// https://sqlite.org/session/sqlite3session_indirect.html
func (s *Session) SetIndirect(indirect bool) {
	C.sqlite3session_indirect(s.sess, cBool(indirect))
}

// IsEmpty reports whether the session has recorded no changes.
// https://sqlite.org/session/sqlite3session_isempty.html
func (s *Session) IsEmpty() bool {
	return C.sqlite3session_isempty(s.sess) != 0
}

// Attach attaches a table to a session object.  If the argument tab is equal
// to "", then changes are recorded for all tables in the database.
// https://www.sqlite.org/session/sqlite3session_attach.html
func (s *Session) Attach(tab string) error {
	var zTab *C.char
	if tab != "" {
		tab += "\x00"
		zTab = cStr(tab)
	}
	if rc := C.sqlite3session_attach(s.sess, zTab); rc != OK {
		return libErr(rc, s.db)
	}
	return nil
}

// Diff loads into the session the changes needed to bring table tbl of
// schema fromDB up to date with the session's own schema.
// https://www.sqlite.org/session/sqlite3session_diff.html
func (s *Session) Diff(fromDB, tbl string) error {
	fromDB += "\x00"
	tbl += "\x00"

	var zErr *C.char
	if rc := C.sqlite3session_diff(s.sess, cStr(fromDB), cStr(tbl), &zErr); rc != OK {
		if zErr != nil {
			msg := C.GoString(zErr)
			C.sqlite3_free(unsafe.Pointer(zErr))
			return &Error{int(rc), msg}
		}
		return errStr(rc)
	}
	return nil
}

// Changeset streams the changes recorded so far to w.
// https://www.sqlite.org/session/sqlite3session_changeset.html
func (s *Session) Changeset(w io.Writer) error {
	idx := strmWriterReg.register(w)
	defer strmWriterReg.unregister(idx)

	rc := C.sqlite3session_changeset_strm(s.sess, (*[0]byte)(C.strm_w_tramp), unsafe.Pointer(&idx))
	if rc != OK {
		return errStr(rc)
	}
	return nil
}

// Patchset streams a patchset of the recorded changes to w. Patchsets omit
// the original values of updated and deleted rows, and cannot be inverted.
// https://www.sqlite.org/session/sqlite3session_patchset.html
func (s *Session) Patchset(w io.Writer) error {
	idx := strmWriterReg.register(w)
	defer strmWriterReg.unregister(idx)

	rc := C.sqlite3session_patchset_strm(s.sess, (*[0]byte)(C.strm_w_tramp), unsafe.Pointer(&idx))
	if rc != OK {
		return errStr(rc)
	}
	return nil
}

// ConflictFunc decides how a conflicting change is resolved during
// ChangesetApply. iter is positioned on the change and is only valid for the
// duration of the call.
type ConflictFunc func(ConflictType, ChangesetIter) ConflictAction

// ChangesetApply applies the changeset read from r to the main schema of
// the connection. filterFn may be nil to apply changes for every table;
// conflictFn may be nil, in which case conflicting changes are omitted.
// https://www.sqlite.org/session/sqlite3changeset_apply.html
func (c *Conn) ChangesetApply(r io.Reader, filterFn func(tableName string) bool, conflictFn ConflictFunc) error {
	if c.db == nil {
		return ErrBadConn
	}
	readerIdx := strmReaderReg.register(r)
	defer strmReaderReg.unregister(readerIdx)

	if conflictFn == nil {
		conflictFn = func(ConflictType, ChangesetIter) ConflictAction { return CHANGESET_OMIT }
	}
	x := &xapply{
		filterFn:   filterFn,
		conflictFn: conflictFn,
	}

	xapplyIdx := xapplyReg.register(x)
	defer xapplyReg.unregister(xapplyIdx)

	var filterTramp *[0]byte
	if x.filterFn != nil {
		filterTramp = (*[0]byte)(C.xapply_filter_tramp)
	}

	rc := C.sqlite3changeset_apply_strm(c.db,
		(*[0]byte)(C.strm_r_tramp), unsafe.Pointer(&readerIdx),
		filterTramp, (*[0]byte)(C.xapply_conflict_tramp), unsafe.Pointer(&xapplyIdx))
	if rc != OK {
		return libErr(rc, c.db)
	}
	return nil
}

// ChangesetInvert writes to w the inverse of the changeset read from r.
// https://www.sqlite.org/session/sqlite3changeset_invert.html
func ChangesetInvert(w io.Writer, r io.Reader) error {
	readerIdx := strmReaderReg.register(r)
	defer strmReaderReg.unregister(readerIdx)

	writerIdx := strmWriterReg.register(w)
	defer strmWriterReg.unregister(writerIdx)

	rc := C.sqlite3changeset_invert_strm(
		(*[0]byte)(C.strm_r_tramp), unsafe.Pointer(&readerIdx),
		(*[0]byte)(C.strm_w_tramp), unsafe.Pointer(&writerIdx),
	)
	if rc != OK {
		return errStr(rc)
	}
	return nil
}

// ChangesetConcat writes to w the changeset read from r1 followed by the
// changeset read from r2, merged as if applied in that order.
// https://www.sqlite.org/session/sqlite3changeset_concat.html
func ChangesetConcat(w io.Writer, r1, r2 io.Reader) error {
	readerIdx1 := strmReaderReg.register(r1)
	defer strmReaderReg.unregister(readerIdx1)
	readerIdx2 := strmReaderReg.register(r2)
	defer strmReaderReg.unregister(readerIdx2)
	writerIdx := strmWriterReg.register(w)
	defer strmWriterReg.unregister(writerIdx)

	rc := C.sqlite3changeset_concat_strm(
		(*[0]byte)(C.strm_r_tramp), unsafe.Pointer(&readerIdx1),
		(*[0]byte)(C.strm_r_tramp), unsafe.Pointer(&readerIdx2),
		(*[0]byte)(C.strm_w_tramp), unsafe.Pointer(&writerIdx),
	)
	if rc != OK {
		return errStr(rc)
	}
	return nil
}

// ChangesetIter walks the changes of a changeset.
type ChangesetIter struct {
	ptr       *C.sqlite3_changeset_iter
	readerIdx *int
}

// ChangesetIterStart begins iterating the changeset read from r. The
// iterator must be closed.
// https://www.sqlite.org/session/sqlite3changeset_start.html
func ChangesetIterStart(r io.Reader) (ChangesetIter, error) {
	iter := ChangesetIter{readerIdx: new(int)}
	*iter.readerIdx = strmReaderReg.register(r)

	rc := C.sqlite3changeset_start_strm(&iter.ptr, (*[0]byte)(C.strm_r_tramp), unsafe.Pointer(iter.readerIdx))
	if rc != OK {
		strmReaderReg.unregister(*iter.readerIdx)
		return ChangesetIter{}, errStr(rc)
	}
	return iter, nil
}

// Close finalizes the iterator. Iterators handed to a ConflictFunc are owned
// by SQLite and must not be closed.
// https://www.sqlite.org/session/sqlite3changeset_finalize.html
func (iter ChangesetIter) Close() error {
	rc := C.sqlite3changeset_finalize(iter.ptr)
	if iter.readerIdx != nil {
		strmReaderReg.unregister(*iter.readerIdx)
		*iter.readerIdx = 0
	}
	if rc != OK {
		return errStr(rc)
	}
	return nil
}

// Old returns the original value of column col of an UPDATE or DELETE.
// https://www.sqlite.org/session/sqlite3changeset_old.html
func (iter ChangesetIter) Old(col int) (v Value, err error) {
	if rc := C.sqlite3changeset_old(iter.ptr, C.int(col), &v.ptr); rc != OK {
		return Value{}, errStr(rc)
	}
	return v, nil
}

// New returns the new value of column col of an UPDATE or INSERT.
// https://www.sqlite.org/session/sqlite3changeset_new.html
func (iter ChangesetIter) New(col int) (v Value, err error) {
	if rc := C.sqlite3changeset_new(iter.ptr, C.int(col), &v.ptr); rc != OK {
		return Value{}, errStr(rc)
	}
	return v, nil
}

// Conflict returns the conflicting row's value of column col. It is only
// valid inside a ConflictFunc for DATA and CONFLICT conflicts.
// https://www.sqlite.org/session/sqlite3changeset_conflict.html
func (iter ChangesetIter) Conflict(col int) (v Value, err error) {
	if rc := C.sqlite3changeset_conflict(iter.ptr, C.int(col), &v.ptr); rc != OK {
		return Value{}, errStr(rc)
	}
	return v, nil
}

// Next advances the iterator, returning false once the changeset is
// exhausted.
// https://www.sqlite.org/session/sqlite3changeset_next.html
func (iter ChangesetIter) Next() (rowReturned bool, err error) {
	switch rc := C.sqlite3changeset_next(iter.ptr); rc {
	case ROW:
		return true, nil
	case DONE:
		return false, nil
	default:
		return false, errStr(rc)
	}
}

// Op describes the current change.
// https://www.sqlite.org/session/sqlite3changeset_op.html
func (iter ChangesetIter) Op() (table string, numCols int, opType OpType, indirect bool, err error) {
	var zTab *C.char
	var nCol, op, bIndirect C.int
	if rc := C.sqlite3changeset_op(iter.ptr, &zTab, &nCol, &op, &bIndirect); rc != OK {
		return "", 0, 0, false, errStr(rc)
	}
	return C.GoString(zTab), int(nCol), OpType(op), bIndirect != 0, nil
}

// FKConflicts returns the number of foreign key violations outstanding. It
// is only valid inside a ConflictFunc for FOREIGN_KEY conflicts.
// https://www.sqlite.org/session/sqlite3changeset_fk_conflicts.html
func (iter ChangesetIter) FKConflicts() (int, error) {
	var pnOut C.int
	if rc := C.sqlite3changeset_fk_conflicts(iter.ptr, &pnOut); rc != OK {
		return 0, errStr(rc)
	}
	return int(pnOut), nil
}

// PK reports which columns of the current table form its primary key.
// https://www.sqlite.org/session/sqlite3changeset_pk.html
func (iter ChangesetIter) PK() ([]bool, error) {
	var pabPK *C.uchar
	var pnCol C.int
	if rc := C.sqlite3changeset_pk(iter.ptr, &pabPK, &pnCol); rc != OK {
		return nil, errStr(rc)
	}
	vals := unsafe.Slice((*byte)(unsafe.Pointer(pabPK)), int(pnCol))
	cols := make([]bool, len(vals))
	for i, val := range vals {
		cols[i] = val != 0
	}
	return cols, nil
}

// OpType is one of INSERT, UPDATE or DELETE.
type OpType int

func (o OpType) String() string {
	switch o {
	case INSERT:
		return "INSERT"
	case UPDATE:
		return "UPDATE"
	case DELETE:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// ConflictType is the reason a ConflictFunc was invoked.
type ConflictType int

const (
	CHANGESET_DATA        = C.SQLITE_CHANGESET_DATA
	CHANGESET_NOTFOUND    = C.SQLITE_CHANGESET_NOTFOUND
	CHANGESET_CONFLICT    = C.SQLITE_CHANGESET_CONFLICT
	CHANGESET_CONSTRAINT  = C.SQLITE_CHANGESET_CONSTRAINT
	CHANGESET_FOREIGN_KEY = C.SQLITE_CHANGESET_FOREIGN_KEY
)

func (t ConflictType) String() string {
	switch t {
	case CHANGESET_DATA:
		return "DATA"
	case CHANGESET_NOTFOUND:
		return "NOTFOUND"
	case CHANGESET_CONFLICT:
		return "CONFLICT"
	case CHANGESET_CONSTRAINT:
		return "CONSTRAINT"
	case CHANGESET_FOREIGN_KEY:
		return "FOREIGN_KEY"
	default:
		return "UNKNOWN"
	}
}

// ConflictAction is returned by a ConflictFunc.
type ConflictAction int

const (
	CHANGESET_OMIT    = C.SQLITE_CHANGESET_OMIT
	CHANGESET_ABORT   = C.SQLITE_CHANGESET_ABORT
	CHANGESET_REPLACE = C.SQLITE_CHANGESET_REPLACE
)

// Changegroup merges any number of changesets into one.
// https://www.sqlite.org/session/changegroup.html
type Changegroup struct {
	ptr *C.sqlite3_changegroup
}

// NewChangegroup allocates an empty Changegroup, which must be deleted.
// https://www.sqlite.org/session/sqlite3changegroup_new.html
func NewChangegroup() (*Changegroup, error) {
	c := &Changegroup{}
	if rc := C.sqlite3changegroup_new(&c.ptr); rc != OK {
		return nil, errStr(rc)
	}
	return c, nil
}

// Add merges the changeset read from r into the group.
// https://www.sqlite.org/session/sqlite3changegroup_add.html
func (cg *Changegroup) Add(r io.Reader) error {
	idx := strmReaderReg.register(r)
	defer strmReaderReg.unregister(idx)

	if rc := C.sqlite3changegroup_add_strm(cg.ptr, (*[0]byte)(C.strm_r_tramp), unsafe.Pointer(&idx)); rc != OK {
		return errStr(rc)
	}
	return nil
}

// Delete releases the Changegroup.
// https://www.sqlite.org/session/sqlite3changegroup_delete.html
func (cg *Changegroup) Delete() {
	if cg.ptr != nil {
		C.sqlite3changegroup_delete(cg.ptr)
		cg.ptr = nil
	}
}

// Output writes the merged changeset to w.
// https://www.sqlite.org/session/sqlite3changegroup_output.html
func (cg *Changegroup) Output(w io.Writer) error {
	idx := strmWriterReg.register(w)
	defer strmWriterReg.unregister(idx)

	if rc := C.sqlite3changegroup_output_strm(cg.ptr, (*[0]byte)(C.strm_w_tramp), unsafe.Pointer(&idx)); rc != OK {
		return errStr(rc)
	}
	return nil
}

//export strm_w_tramp
func strm_w_tramp(pOut unsafe.Pointer, pData *C.char, n C.int) C.int {
	w := strmWriterReg.lookup(*(*int)(pOut)).(io.Writer)
	b := unsafe.Slice((*byte)(unsafe.Pointer(pData)), int(n))
	for len(b) > 0 {
		nw, err := w.Write(b)
		b = b[nw:]

		if err != nil {
			return C.SQLITE_IOERR
		}
	}
	return C.SQLITE_OK
}

//export strm_r_tramp
func strm_r_tramp(pIn unsafe.Pointer, pData *C.char, pnData *C.int) C.int {
	r := strmReaderReg.lookup(*(*int)(pIn)).(io.Reader)
	b := unsafe.Slice((*byte)(unsafe.Pointer(pData)), int(*pnData))

	// An io.Reader may return (0, nil) without being at the end of the
	// stream, while SQLite treats a zero-length read as EOF.
	var n int
	var err error
	for n == 0 && err == nil {
		n, err = r.Read(b)
	}

	*pnData = C.int(n)
	if err != nil && err != io.EOF {
		return C.SQLITE_IOERR
	}
	return C.SQLITE_OK
}

type xapply struct {
	filterFn   func(string) bool
	conflictFn ConflictFunc
}

//export xapply_filter_tramp
func xapply_filter_tramp(pCtx unsafe.Pointer, zTab *C.char) C.int {
	x := xapplyReg.lookup(*(*int)(pCtx)).(*xapply)
	return cBool(x.filterFn(C.GoString(zTab)))
}

//export xapply_conflict_tramp
func xapply_conflict_tramp(pCtx unsafe.Pointer, eConflict C.int, p *C.sqlite3_changeset_iter) C.int {
	x := xapplyReg.lookup(*(*int)(pCtx)).(*xapply)
	return C.int(x.conflictFn(ConflictType(eConflict), ChangesetIter{ptr: p}))
}
