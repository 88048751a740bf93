// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlite3

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type T struct{ *testing.T }

func begin(t *testing.T) T {
	return T{t}
}

func (t T) open(name string, flags ...int) *Conn {
	c, err := Open(name, flags...)
	if c == nil || err != nil {
		t.Fatalf(cl("Open(%q) unexpected error: %v"), name, err)
	}
	return c
}

func (t T) close(c io.Closer) {
	if c != nil {
		if err := c.Close(); err != nil {
			if !t.Failed() {
				t.Fatalf(cl("(%T).Close() unexpected error: %v"), c, err)
			}
			t.FailNow()
		}
	}
}

func (t T) prepare(c *Conn, sql string) *Stmt {
	s, err := c.Prepare(sql)
	if s == nil || err != nil {
		t.Fatalf(cl("(%T).Prepare(%q) unexpected error: %v"), c, sql, err)
	}
	return s
}

func (t T) exec(c *Conn, sql string) {
	if err := c.Exec(sql); err != nil {
		t.Fatalf(cl("(%T).Exec(%q) unexpected error: %v"), c, sql, err)
	}
}

// run binds args to s in order, steps it to completion and resets it.
func (t T) run(s *Stmt, args ...interface{}) {
	for i, v := range args {
		if err := s.BindValue(i+1, v); err != nil {
			t.Fatalf(cl("s.BindValue(%d, %v) unexpected error: %v"), i+1, v, err)
		}
	}
	if err := s.StepToCompletion(); err != nil {
		t.Fatalf(cl("s.StepToCompletion() unexpected error: %v"), err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf(cl("s.Reset() unexpected error: %v"), err)
	}
}

func (t T) step(s *Stmt, wantRow bool) {
	haveRow, haveErr := s.Step()
	if haveErr != nil {
		t.Fatalf(cl("s.Step() expected success; got %v"), haveErr)
	}
	if haveRow != wantRow {
		t.Fatalf(cl("s.Step() expected row %v; got row %v"), wantRow, haveRow)
	}
}

// row returns every column of the current row of s.
func (t T) row(s *Stmt) []interface{} {
	out := make([]interface{}, s.ColumnCount())
	for i := range out {
		v, err := s.ColumnValue(i)
		if err != nil {
			t.Fatalf(cl("s.ColumnValue(%d) unexpected error: %v"), i, err)
		}
		out[i] = v
	}
	return out
}

// rows runs sql and returns the first column of each result row.
func (t T) rows(c *Conn, sql string) []interface{} {
	s := t.prepare(c, sql)
	defer t.close(s)

	var out []interface{}
	for {
		ok, err := s.Step()
		if err != nil {
			t.Fatalf(cl("s.Step() unexpected error: %v"), err)
		} else if !ok {
			return out
		}
		out = append(out, t.row(s)[0])
	}
}

func (t T) errCode(have error, want int) {
	if e, ok := have.(*Error); !ok || e.Code() != want {
		t.Fatalf(cl("errCode() expected error code [%d]; got %v"), want, have)
	}
}

func cl(s string) string {
	_, thisFile, _, _ := runtime.Caller(1)
	_, testFile, line, ok := runtime.Caller(2)
	if ok && thisFile == testFile {
		return fmt.Sprintf("%d: %s", line, s)
	}
	return s
}

func TestVersion(T *testing.T) {
	t := begin(T)

	// sqlite3_serialize first shipped in 3.36.
	var major, minor int
	_, err := fmt.Sscanf(Version(), "%d.%d", &major, &minor)
	require.NoError(t, err)
	require.Equal(t, 3, major)
	require.GreaterOrEqual(t, minor, 36)
}

func TestCreate(T *testing.T) {
	t := begin(T)

	sql := "CREATE TABLE x(a); INSERT INTO x VALUES(1);"
	tmp := filepath.Join(t.TempDir(), "create.db")

	// File
	c := t.open(tmp)
	t.exec(c, sql)
	t.close(c)
	require.Equal(t, ErrBadConn, c.Exec(sql))
	_, err := c.Prepare("SELECT 1")
	require.Equal(t, ErrBadConn, err)

	// URI (existing), read-only
	uri := strings.NewReplacer("?", "%3f", "#", "%23").Replace(tmp)
	if runtime.GOOS == "windows" {
		uri = "/" + strings.Replace(uri, "\\", "/", -1)
	}
	c = t.open("file:"+uri+"?mode=ro", OPEN_READONLY|OPEN_URI)
	defer t.close(c)
	require.Equal(t, []interface{}{int64(1)}, t.rows(c, "SELECT a FROM x"))
	err = c.Exec("INSERT INTO x VALUES(2)")
	require.Error(t, err)
	require.Equal(t, READONLY, err.(*Error).Primary())

	// Memory (not shared)
	for i := 0; i < 2; i++ {
		m := t.open(":memory:")
		t.exec(m, sql)
		t.close(m)
	}

	_, err = Open(":memory:", 1, 2)
	t.errCode(err, MISUSE)
}

func TestTail(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)

	check := func(sql, tail string) {
		s := t.prepare(c, sql)
		defer t.close(s)
		head := sql[:len(sql)-len(tail)]

		if s.Tail != tail {
			t.Errorf(cl("tail expected %q; got %q"), tail, s.Tail)
		}
		require.Equal(t, strings.TrimSpace(head), strings.TrimSpace(s.SQL()))
	}
	check("SELECT 1", "")
	check("SELECT 1;", "")
	check("SELECT 1; ", " ")
	check("SELECT 1; SELECT 2", " SELECT 2")
	check("SELECT 1;SELECT 2;", "SELECT 2;")

	// Blank input compiles to nothing.
	s, err := c.Prepare("  -- comment\n")
	require.NoError(t, err)
	require.Nil(t, s)
}

func TestBindValue(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a)")

	s := t.prepare(c, "INSERT INTO x VALUES(?)")
	defer t.close(s)

	for _, v := range []interface{}{
		nil,
		int(1), int8(2), int16(3), int32(4), int64(math.MaxInt64),
		uint8(5), uint16(6), uint32(math.MaxUint32),
		uint(7), uint64(math.MaxInt64),
		true, false,
		float32(0.5), math.Inf(-1),
		"", "text",
		[]byte(nil), []byte{}, []byte{0x00, 0x01},
	} {
		t.run(s, v)
	}

	require.Equal(t, []interface{}{
		nil,
		int64(1), int64(2), int64(3), int64(4), int64(math.MaxInt64),
		int64(5), int64(6), int64(math.MaxUint32),
		int64(7), int64(math.MaxInt64),
		int64(1), int64(0),
		0.5, math.Inf(-1),
		"", "text",
		nil, []byte{}, []byte{0x00, 0x01},
	}, t.rows(c, "SELECT a FROM x ORDER BY rowid"))

	// Bindings survive Reset until cleared.
	t.run(s, "again")
	t.run(s)
	require.NoError(t, s.ClearBindings())
	t.run(s)
	require.Equal(t, []interface{}{nil, "again", "again"},
		t.rows(c, "SELECT a FROM x ORDER BY rowid DESC LIMIT 3"))

	err := s.BindValue(1, struct{}{})
	t.errCode(err, MISUSE)
	t.errCode(s.BindValue(2, 1), RANGE)
	t.errCode(s.BindValue(1, uint64(math.MaxInt64)+1), RANGE)
}

func TestTx(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a)")
	require.True(t, c.AutoCommit())

	// Begin/Commit
	require.NoError(t, c.Begin())
	require.False(t, c.AutoCommit())
	t.exec(c, "INSERT INTO x VALUES(1)")
	require.Equal(t, int64(1), c.LastInsertRowID())
	require.NoError(t, c.Commit())
	require.True(t, c.AutoCommit())

	// Begin/Rollback
	require.NoError(t, c.BeginExclusive())
	t.exec(c, "INSERT INTO x VALUES(2)")
	t.exec(c, "UPDATE x SET a=a+10")
	require.Equal(t, 2, c.Changes())
	require.NoError(t, c.Rollback())
	require.True(t, c.AutoCommit())

	require.Equal(t, []interface{}{int64(1)}, t.rows(c, "SELECT a FROM x"))

	// Nesting and stray commits fail.
	require.NoError(t, c.Begin())
	require.Error(t, c.Begin())
	require.NoError(t, c.Commit())
	require.Error(t, c.Commit())
}

func TestTxHandler(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a)")

	commit := 0
	rollback := 0
	c.CommitFunc(func() (abort bool) { commit++; return commit >= 2 })
	c.RollbackFunc(func() { rollback++ })

	// Allow
	require.NoError(t, c.Begin())
	t.exec(c, "INSERT INTO x VALUES(1)")
	t.exec(c, "INSERT INTO x VALUES(2)")
	if err := c.Commit(); err != nil {
		t.Fatalf("c.Commit() unexpected error: %v", err)
	}

	// Deny
	require.NoError(t, c.Begin())
	t.exec(c, "INSERT INTO x VALUES(3)")
	t.exec(c, "INSERT INTO x VALUES(4)")
	t.errCode(c.Commit(), CONSTRAINT_COMMITHOOK)

	// Verify
	if commit != 2 || rollback != 1 {
		t.Fatalf("commit/rollback expected 2/1; got %d/%d", commit, rollback)
	}
	require.Equal(t, []interface{}{int64(1), int64(2)}, t.rows(c, "SELECT a FROM x ORDER BY rowid"))

	// Removing the handlers returns them.
	require.NotNil(t, c.CommitFunc(nil))
	require.NotNil(t, c.RollbackFunc(nil))
	t.exec(c, "INSERT INTO x VALUES(5)")
	require.Equal(t, 2, commit)
}

func TestUpdateHandler(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a)")

	type update struct {
		op      int
		db, tbl string
		row     int64
	}
	var have *update
	verify := func(want *update) {
		if !reflect.DeepEqual(have, want) {
			t.Fatalf(cl("verify() expected %v; got %v"), want, have)
		}
	}
	c.UpdateFunc(func(op int, db, tbl RawString, row int64) {
		have = &update{op, db.Copy(), tbl.Copy(), row}
	})

	t.exec(c, "INSERT INTO x VALUES(1)")
	verify(&update{INSERT, "main", "x", 1})

	t.exec(c, "INSERT INTO x VALUES(2)")
	verify(&update{INSERT, "main", "x", 2})

	t.exec(c, "UPDATE x SET a=3 WHERE rowid=1")
	verify(&update{UPDATE, "main", "x", 1})

	t.exec(c, "DELETE FROM x WHERE rowid=2")
	verify(&update{DELETE, "main", "x", 2})

	c.UpdateFunc(nil)
	have = nil
	t.exec(c, "INSERT INTO x VALUES(4)")
	verify(nil)
}

func TestBusy(T *testing.T) {
	t := begin(T)

	tmp := filepath.Join(t.TempDir(), "busy.db")
	c1 := t.open(tmp)
	defer t.close(c1)
	c2 := t.open(tmp)
	defer t.close(c2)
	t.exec(c1, "CREATE TABLE x(a); BEGIN; INSERT INTO x VALUES(1);")

	try := func(sql string) {
		err := c2.Exec(sql)
		t.errCode(err, BUSY)
	}

	// Default
	try("INSERT INTO x VALUES(2)")

	// Built-in
	c2.BusyTimeout(100 * time.Millisecond)
	start := time.Now()
	try("INSERT INTO x VALUES(3)")
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// Disable
	c2.BusyTimeout(0)
	try("INSERT INTO x VALUES(4)")

	require.NoError(t, c1.Commit())
	t.exec(c2, "INSERT INTO x VALUES(5)")
	require.Equal(t, []interface{}{int64(1), int64(5)}, t.rows(c1, "SELECT a FROM x ORDER BY rowid"))
}

func TestLocked(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a); INSERT INTO x VALUES(1), (2);")

	s := t.prepare(c, "SELECT * FROM x ORDER BY rowid")
	defer t.close(s)
	t.step(s, true)

	// A table being read cannot be dropped by the same connection.
	s2 := t.prepare(c, "DROP TABLE x")
	defer s2.Close()
	_, err := s2.Step()
	require.Error(t, err)
	require.Equal(t, LOCKED, err.(*Error).Primary())
}

func TestSerializeRoundTrip(T *testing.T) {
	t := begin(T)

	src := t.open(":memory:")
	defer t.close(src)
	t.exec(src, "CREATE TABLE x(a, b); INSERT INTO x VALUES(1, 'one'), (2, 'two');")

	data, err := src.Serialize("main")
	require.NoError(t, err)
	require.NotEmpty(t, data)
	// The on-disk format starts with a fixed magic string.
	require.Equal(t, "SQLite format 3\x00", string(data[:16]))

	dst := t.open(":memory:")
	defer t.close(dst)
	require.NoError(t, dst.Deserialize("main", data))

	// The caller's buffer is copied and may be reused.
	for i := range data {
		data[i] = 0
	}
	require.Equal(t, []interface{}{"one", "two"}, t.rows(dst, "SELECT b FROM x ORDER BY a"))

	// Deserialized schemas stay writable.
	t.exec(dst, "INSERT INTO x VALUES(3, 'three')")
	require.Equal(t, 1, dst.Changes())
}

func TestDeserializeGarbage(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	require.NoError(t, c.Deserialize("main", []byte("definitely not a database file")))

	_, err := c.Prepare("SELECT * FROM sqlite_master")
	require.Error(t, err)
	require.Contains(t, []int{NOTADB, CORRUPT}, err.(*Error).Primary())
}

func TestBindParameterNames(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a, b, c)")

	s := t.prepare(c, "INSERT INTO x VALUES(:a, @b, ?)")
	defer t.close(s)
	require.Equal(t, 3, s.BindParameterCount())
	require.Equal(t, ":a", s.BindParameterName(1))
	require.Equal(t, "@b", s.BindParameterName(2))
	require.Equal(t, "", s.BindParameterName(3))
	require.Equal(t, "", s.BindParameterName(4))

	require.Equal(t, "INSERT INTO x VALUES(:a, @b, ?)", s.SQL())
	require.False(t, s.ReadOnly())

	ro := t.prepare(c, "SELECT * FROM x")
	defer t.close(ro)
	require.True(t, ro.ReadOnly())
	require.Equal(t, []string{"a", "b", "c"}, ro.ColumnNames())
}

func TestColumnValue(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)

	s := t.prepare(c, "SELECT NULL, 7, 1.5, 'txt', x'00ff', x''")
	defer t.close(s)
	t.step(s, true)

	require.Equal(t, []interface{}{nil, int64(7), 1.5, "txt", []byte{0x00, 0xff}, []byte{}}, t.row(s))

	_, err := s.ColumnValue(6)
	t.errCode(err, RANGE)
	_, err = s.ColumnValue(-1)
	t.errCode(err, RANGE)
	t.step(s, false)
}

func TestExtendedErrorCodes(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)
	t.exec(c, "CREATE TABLE x(a PRIMARY KEY NOT NULL)")
	t.exec(c, "INSERT INTO x VALUES(1)")

	err := c.Exec("INSERT INTO x VALUES(1)")
	t.errCode(err, CONSTRAINT_PRIMARYKEY)
	require.Equal(t, CONSTRAINT, err.(*Error).Primary())
	require.Contains(t, err.(*Error).Message(), "UNIQUE constraint failed")
	require.Contains(t, err.Error(), "UNIQUE constraint failed")

	err = c.Exec("INSERT INTO x VALUES(NULL)")
	t.errCode(err, CONSTRAINT_NOTNULL)

	_, err = c.Prepare("SELEC 1")
	t.errCode(err, ERROR)
}

func TestLoadExtensionDisabled(T *testing.T) {
	t := begin(T)

	c := t.open(":memory:")
	defer t.close(c)

	// Loading is off until explicitly enabled.
	err := c.LoadExtension("does-not-exist", "")
	require.Error(t, err)

	require.NoError(t, c.EnableLoadExtension(true))
	err = c.LoadExtension("/nonexistent/libnothing.so", "sqlite3_nothing_init")
	require.Error(t, err)
	require.Equal(t, ERROR, err.(*Error).Primary())
	require.NoError(t, c.EnableLoadExtension(false))
}
