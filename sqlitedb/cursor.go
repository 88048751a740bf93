// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

// Cursor iterates the rows of one execution of a Statement.
//
// Next advances the Cursor. GetFirst and GetAll read the result from its
// start, and so fail with ErrCursorShifted once Next has returned a row,
// until the Cursor is Reset or exhausted. Exhausting the Cursor returns it to
// the start, and a further Next executes the Statement again.
type Cursor struct {
	st  *Statement
	gen uint64
}

// Next returns the next row, or nil if the result is exhausted.
func (c *Cursor) Next() (Row, error) {
	return cursorLocked(c, func() (Row, error) {
		var st = c.st
		if err := st.db.checkWrite(st.stmt, st.tx); err != nil {
			return nil, err
		}

		ok, err := st.stmt.Step()
		if err != nil {
			st.stmt.Reset()
			st.shifted = false
			return nil, sqlErr(err, st.sql)
		} else if !ok {
			st.stmt.Reset()
			st.shifted = false
			return nil, nil
		}
		st.shifted = true
		return readRow(st.stmt)
	})
}

// NextAsync queues Next.
func (c *Cursor) NextAsync() *Future[Row] {
	return submit(c.st.db, func() (Row, error) { return c.Next() })
}

// GetFirst returns the first row of the result, or nil.
func (c *Cursor) GetFirst() (Row, error) {
	return cursorLocked(c, func() (Row, error) {
		if err := c.fromStart(); err != nil {
			return nil, err
		}
		return firstRow(c.st.stmt)
	})
}

// GetFirstAsync queues GetFirst.
func (c *Cursor) GetFirstAsync() *Future[Row] {
	return submit(c.st.db, func() (Row, error) { return c.GetFirst() })
}

// GetAll returns all rows of the result.
func (c *Cursor) GetAll() ([]Row, error) {
	return cursorLocked(c, func() ([]Row, error) {
		if err := c.fromStart(); err != nil {
			return nil, err
		}
		return allRows(c.st.stmt)
	})
}

// GetAllAsync queues GetAll.
func (c *Cursor) GetAllAsync() *Future[[]Row] {
	return submit(c.st.db, func() ([]Row, error) { return c.GetAll() })
}

// Reset returns the Cursor to the start of the result.
func (c *Cursor) Reset() error {
	_, err := cursorLocked(c, func() (struct{}, error) {
		c.st.stmt.Reset()
		c.st.shifted = false
		return struct{}{}, nil
	})
	return err
}

// ResetAsync queues Reset.
func (c *Cursor) ResetAsync() *Future[struct{}] {
	return submit(c.st.db, func() (struct{}, error) { return struct{}{}, c.Reset() })
}

// Columns returns the column names of the result.
func (c *Cursor) Columns() ([]string, error) {
	return cursorLocked(c, func() ([]string, error) {
		return c.st.stmt.ColumnNames(), nil
	})
}

// fromStart checks the Cursor has not been advanced. db.mu is held.
func (c *Cursor) fromStart() error {
	if c.st.shifted {
		return ErrCursorShifted
	}
	return c.st.db.checkWrite(c.st.stmt, c.st.tx)
}

// cursorLocked runs |fn| holding the engine lock, failing if the Statement
// is finalized or was executed again since the Cursor was created.
func cursorLocked[T any](c *Cursor, fn func() (T, error)) (T, error) {
	return withLock(c.st.db, func() error {
		if c.st.stmt == nil {
			return ErrStatementClosed
		} else if c.gen != c.st.gen {
			return ErrCursorShifted
		}
		return nil
	}, fn)
}
