// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/productsupcom/go-sqlite-async/sqlitedb"
	"github.com/productsupcom/go-sqlite-async/storage"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams(nil)
	require.NoError(t, err)
	require.Nil(t, params)

	params, err = parseParams([]string{"3", "1.5", "NULL", "a=b"})
	require.NoError(t, err)
	require.Equal(t, sqlitedb.Positional{int64(3), 1.5, nil, "a=b"}, params)

	params, err = parseParams([]string{":id=3", "$name=bob", "@x="})
	require.NoError(t, err)
	require.Equal(t, sqlitedb.Named{":id": int64(3), "$name": "bob", "@x": ""}, params)

	_, err = parseParams([]string{":id=3", "4"})
	require.EqualError(t, err, "cannot mix named and positional parameters")
}

func TestFormatValue(t *testing.T) {
	require.Equal(t, "NULL", formatValue(nil))
	require.Equal(t, "42", formatValue(int64(42)))
	require.Equal(t, "0.25", formatValue(0.25))
	require.Equal(t, "hi", formatValue("hi"))
	require.Equal(t, "x'00ff'", formatValue([]byte{0x00, 0xff}))
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"id", "name"}, []sqlitedb.Row{
		{"id": int64(1), "name": "alpha"},
		{"id": int64(2), "name": nil},
	}))
	var out = buf.String()

	for _, s := range []string{"ID", "NAME", "alpha", "NULL"} {
		require.Contains(t, strings.ToUpper(out), strings.ToUpper(s))
	}
	require.Less(t, strings.Index(out, "alpha"), strings.Index(out, "NULL"))
}

func TestRunShell(t *testing.T) {
	var hub = listener.NewHub()
	defer hub.Close()

	var mu sync.Mutex
	var notes []string
	hub.AddListener(func(n listener.Notification) {
		mu.Lock()
		notes = append(notes, n.Op+" "+n.TableName)
		mu.Unlock()
	})

	db, err := sqlitedb.Open(storage.MemoryName, &sqlitedb.Options{EnableChangeListener: true, Hub: hub})
	require.NoError(t, err)
	defer db.Close()

	var in = strings.NewReader(`
CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);
INSERT INTO t (v)
  VALUES ('one');
INSERT INTO t (v) VALUES ('two') RETURNING id;
SELECT * FROM nope;
SELECT id, v
  FROM t ORDER BY id;
SELECT 1
`)
	var out bytes.Buffer
	require.NoError(t, runShell(db, hub, in, &out))

	var lines = strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	require.Len(t, lines, 5)
	require.Equal(t, "id=2", lines[0])
	require.True(t, strings.HasPrefix(lines[1], "error: no such table: nope"), lines[1])
	require.Equal(t, "id=1 | v=one", lines[2])
	require.Equal(t, "id=2 | v=two", lines[3])
	require.Equal(t, `error: incomplete statement "SELECT 1"`, lines[4])

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"INSERT t", "INSERT t"}, notes)
}

func TestDatabaseConfigOptions(t *testing.T) {
	var cfg = DatabaseConfig{
		Name:       "app.db",
		Directory:  t.TempDir(),
		CacheSize:  -1,
		Extensions: []string{"/lib/ext.so"},
	}
	var opts = cfg.Options()
	require.Equal(t, cfg.Directory, opts.Directory)
	require.Equal(t, -1, opts.StatementCacheSize)
	require.Equal(t, []sqlitedb.Extension{{LibPath: "/lib/ext.so"}}, opts.Extensions)

	cfg.Extensions = nil
	var db = cfg.Open(nil)
	require.Equal(t, filepath.Join(cfg.Directory, "app.db"), db.Path())
	require.NoError(t, db.Close())
}
