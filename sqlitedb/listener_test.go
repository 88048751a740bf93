// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/stretchr/testify/require"
)

type noteLog struct {
	mu    sync.Mutex
	notes []listener.Notification
}

func (l *noteLog) add(n listener.Notification) {
	l.mu.Lock()
	l.notes = append(l.notes, n)
	l.mu.Unlock()
}

// take returns and clears the notifications delivered so far.
func (l *noteLog) take(hub *listener.Hub) []listener.Notification {
	hub.Sync()

	l.mu.Lock()
	defer l.mu.Unlock()
	var out = l.notes
	l.notes = nil
	return out
}

func TestChangeListener(t *testing.T) {
	var hub = listener.NewHub()
	defer hub.Close()

	var log noteLog
	var sub = hub.AddListener(log.add)

	var dir = t.TempDir()
	db, err := Open("notes.db", &Options{Directory: dir, EnableChangeListener: true, Hub: hub})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Exec("CREATE TABLE t (x)"))
	require.Empty(t, log.take(hub))

	var note = func(op string, row int64) listener.Notification {
		return listener.Notification{
			DatabaseName:     "notes.db",
			DatabaseFilePath: filepath.Join(dir, "notes.db"),
			TableName:        "t",
			RowID:            row,
			Op:               op,
		}
	}

	_, err = db.Run("INSERT INTO t VALUES (1)", nil)
	require.NoError(t, err)
	require.Equal(t, []listener.Notification{note("INSERT", 1)}, log.take(hub))

	// Notifications of a transaction are published once it commits, in order.
	require.NoError(t, db.WithTransaction(func(db *Database) error {
		if err := db.Exec("INSERT INTO t VALUES (2); UPDATE t SET x = 10 WHERE rowid = 1;"); err != nil {
			return err
		}
		if notes := log.take(hub); len(notes) != 0 {
			return errors.Errorf("published before commit: %v", notes)
		}
		return nil
	}))
	require.Equal(t, []listener.Notification{note("INSERT", 2), note("UPDATE", 1)}, log.take(hub))

	// Rolled back transactions publish nothing.
	require.Error(t, db.WithTransaction(func(db *Database) error {
		db.Exec("DELETE FROM t")
		return errors.New("boom")
	}))
	require.Empty(t, log.take(hub))

	require.NoError(t, db.WithExclusiveTransaction(func(tx *Transaction) error {
		_, err := tx.Run("DELETE FROM t WHERE rowid = 2", nil)
		return err
	}))
	require.Equal(t, []listener.Notification{note("DELETE", 2)}, log.take(hub))

	sub.Remove()
	_, err = db.RunAsync("INSERT INTO t VALUES (3)", nil).Get()
	require.NoError(t, err)
	require.Empty(t, log.take(hub))
}

func TestChangeListenerDisabled(t *testing.T) {
	var hub = listener.NewHub()
	defer hub.Close()

	var log noteLog
	hub.AddListener(log.add)

	var db = openMemory(t, &Options{Hub: hub})
	require.NoError(t, db.Exec("CREATE TABLE t (x); INSERT INTO t VALUES (1);"))
	require.Empty(t, log.take(hub))
}

func TestChangeListenerBatchWithRollback(t *testing.T) {
	var hub = listener.NewHub()
	defer hub.Close()

	var log noteLog
	hub.AddListener(log.add)

	var db = openMemory(t, &Options{EnableChangeListener: true, Hub: hub})
	require.NoError(t, db.Exec("CREATE TABLE t (x PRIMARY KEY)"))

	var rows = func(notes []listener.Notification) (out []int64) {
		for _, n := range notes {
			require.Equal(t, "INSERT", n.Op)
			out = append(out, n.RowID)
		}
		return out
	}

	// The first insert commits before the second fails and rolls back.
	require.Error(t, db.Exec("INSERT INTO t VALUES (3); INSERT INTO t VALUES (3);"))
	require.Equal(t, []int64{1}, rows(log.take(hub)))

	require.NoError(t, db.Exec("INSERT INTO t VALUES (4); BEGIN; INSERT INTO t VALUES (5); ROLLBACK;"))
	require.Equal(t, []int64{2}, rows(log.take(hub)))

	row, err := db.Get("SELECT count(*) AS n FROM t", nil)
	require.NoError(t, err)
	require.Equal(t, int64(2), row["n"])
}
