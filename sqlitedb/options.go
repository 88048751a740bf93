// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"time"

	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/spf13/afero"
)

// DefaultStatementCacheSize is the number of compiled statements retained for
// Run, Get and All when Options.StatementCacheSize is zero.
const DefaultStatementCacheSize = 16

// Extension is a loadable SQLite extension.
type Extension struct {
	LibPath string
	// EntryPoint is the initialization routine. If empty, SQLite derives it
	// from LibPath.
	EntryPoint string
}

// Options configure Open. The zero value is ready to use.
type Options struct {
	// Directory against which relative names are resolved. Defaults to the
	// current working directory.
	Directory string
	// Fs is the file system used to resolve Directory. Defaults to the OS
	// file system. SQLite itself always opens the resolved path on the OS
	// file system.
	Fs afero.Fs
	// EnableChangeListener publishes committed row changes to Hub.
	EnableChangeListener bool
	Hub                  *listener.Hub
	// FinalizeUnusedStatementsBeforeClosing lets Close finalize user
	// Statements which are still open, rather than failing.
	FinalizeUnusedStatementsBeforeClosing bool
	// Key is applied with PRAGMA key. It requires an engine built with
	// encryption support.
	Key        string
	Extensions []Extension
	// StatementCacheSize bounds the cache of compiled statements used by
	// Run, Get and All. Negative disables the cache.
	StatementCacheSize int
	// BusyTimeout is how long the engine retries when the file is locked by
	// another process.
	BusyTimeout time.Duration
}

func (o *Options) cacheSize() int {
	switch {
	case o.StatementCacheSize < 0:
		return 0
	case o.StatementCacheSize == 0:
		return DefaultStatementCacheSize
	default:
		return o.StatementCacheSize
	}
}
