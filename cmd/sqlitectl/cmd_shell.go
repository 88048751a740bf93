// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/productsupcom/go-sqlite-async/listener"
	"github.com/productsupcom/go-sqlite-async/sqlitedb"
	log "github.com/sirupsen/logrus"
)

type cmdShell struct {
	Watch bool `long:"watch" short:"w" description:"Print a line for each row changed by a committed transaction"`
}

func (cmd *cmdShell) Execute([]string) error {
	startup()

	var hub *listener.Hub
	if cmd.Watch {
		hub = listener.NewHub()
		defer hub.Close()

		hub.AddListener(func(n listener.Notification) {
			fmt.Fprintf(os.Stderr, "-- %s %s rowid %d\n", n.Op, n.TableName, n.RowID)
		})
	}

	var db = baseCfg.Database.Open(hub)
	defer db.Close()

	return runShell(db, hub, os.Stdin, os.Stdout)
}

// runShell reads statements from |r|, each terminated by a semicolon at the
// end of a line, and writes their results to |w|. Notifications of each
// statement are delivered before the next is read.
func runShell(db *sqlitedb.Database, hub *listener.Hub, r io.Reader, w io.Writer) error {
	var scanner = bufio.NewScanner(r)
	var buf strings.Builder

	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')

		var sql = strings.TrimSpace(buf.String())
		if !strings.HasSuffix(sql, ";") {
			continue
		}
		buf.Reset()

		log.WithField("sql", sql).Debug("running statement")
		if rows, err := db.All(sql, nil); err != nil {
			fmt.Fprintf(w, "error: %s\n", err)
		} else {
			for _, row := range rows {
				writeRow(w, row)
			}
		}
		if hub != nil {
			hub.Sync()
		}
	}

	if rest := strings.TrimSpace(buf.String()); rest != "" {
		fmt.Fprintf(w, "error: incomplete statement %q\n", rest)
	}
	return scanner.Err()
}

func writeRow(w io.Writer, row sqlitedb.Row) {
	var keys = make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts = make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(row[k])
	}
	fmt.Fprintln(w, strings.Join(parts, " | "))
}
