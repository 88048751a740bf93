// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/sqlitedb"
)

type cmdExec struct {
	Args struct {
		SQL string `positional-arg-name:"SQL" required:"true" description:"Statements to execute"`
	} `positional-args:"true"`
}

type cmdQuery struct {
	Params []string `long:"param" short:"p" description:"Parameter value, as VALUE for positional or NAME=VALUE for named (eg :id=3) parameters. May be repeated"`
	Format string   `long:"format" short:"o" choice:"table" choice:"json" default:"table" description:"Output format"`
	Args   struct {
		SQL string `positional-arg-name:"SQL" required:"true" description:"A single query"`
	} `positional-args:"true"`
}

func (cmd *cmdExec) Execute([]string) error {
	startup()

	var db = baseCfg.Database.Open(nil)
	defer db.Close()

	if err := db.Exec(cmd.Args.SQL); err != nil {
		return err
	}
	res, err := db.Get("SELECT changes() AS changes, last_insert_rowid() AS rowid", nil)
	if err != nil {
		return err
	}
	fmt.Printf("changes: %d, last insert rowid: %d\n", res["changes"], res["rowid"])
	return nil
}

func (cmd *cmdQuery) Execute([]string) error {
	startup()

	params, err := parseParams(cmd.Params)
	if err != nil {
		return err
	}

	var db = baseCfg.Database.Open(nil)
	defer db.Close()

	st, err := db.Prepare(cmd.Args.SQL)
	if err != nil {
		return err
	}
	defer st.Finalize()

	cur, err := st.Execute(params)
	if err != nil {
		return err
	}
	columns, err := cur.Columns()
	if err != nil {
		return err
	}
	rows, err := cur.GetAll()
	if err != nil {
		return err
	}

	switch cmd.Format {
	case "json":
		return writeJSON(os.Stdout, rows)
	default:
		return writeTable(os.Stdout, columns, rows)
	}
}

// parseParams parses command-line parameter values. Either all or none of
// |args| must be named.
func parseParams(args []string) (sqlitedb.Params, error) {
	if len(args) == 0 {
		return nil, nil
	}
	var named = make(sqlitedb.Named)
	var positional sqlitedb.Positional

	for _, arg := range args {
		if ind := strings.IndexByte(arg, '='); ind > 0 && strings.ContainsRune("$:@", rune(arg[0])) {
			named[arg[:ind]] = parseValue(arg[ind+1:])
		} else {
			positional = append(positional, parseValue(arg))
		}
	}

	if len(named) != 0 && len(positional) != 0 {
		return nil, errors.New("cannot mix named and positional parameters")
	} else if len(named) != 0 {
		return named, nil
	}
	return positional, nil
}

// parseValue maps "NULL" to nil, and integer and real literals to int64 and
// float64. Anything else is a string.
func parseValue(s string) interface{} {
	if s == "NULL" {
		return nil
	} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	} else if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func formatValue(v interface{}) string {
	switch vv := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("x'%x'", vv)
	case float64:
		return strconv.FormatFloat(vv, 'g', -1, 64)
	default:
		return fmt.Sprint(vv)
	}
}

func writeTable(w io.Writer, columns []string, rows []sqlitedb.Row) error {
	var table = tablewriter.NewWriter(w)
	table.Header(columns)

	for _, r := range rows {
		var row = make([]string, len(columns))
		for i, c := range columns {
			row[i] = formatValue(r[c])
		}
		if err := table.Append(row); err != nil {
			return errors.WithMessage(err, "appending row")
		}
	}
	return errors.WithMessage(table.Render(), "rendering table")
}

func writeJSON(w io.Writer, rows []sqlitedb.Row) error {
	var enc = json.NewEncoder(w)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return errors.WithMessage(err, "encoding row")
		}
	}
	return nil
}
