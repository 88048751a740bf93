// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sqlitectl queries, snapshots and restores SQLite databases.
package main

import (
	"github.com/jessevdk/go-flags"
)

const iniFilename = "sqlitectl.ini"

func main() {
	var parser = flags.NewParser(baseCfg, flags.Default)

	AddPrintConfigCmd(parser, iniFilename)

	parser.LongDescription = `sqlitectl is a tool for working with SQLite databases.

	See --help pages of each sub-command for documentation and usage examples.
	Optionally configure sqlitectl with a '` + iniFilename + `' file in the current working directory,
	or with '~/.config/sqlitectl/` + iniFilename + `'. Use the 'print-config' sub-command to inspect
	the tool's current configuration.
	`

	mustAddCmd(parser.Command, "exec", "Execute statements", `
Execute one or more semicolon-separated statements against --db.name,
and print the changes made by the last of them.

>    sqlitectl exec --db.name app.db "CREATE TABLE t (x); INSERT INTO t VALUES (1);"
`, &cmdExec{})

	mustAddCmd(parser.Command, "query", "Run a query and print its rows", `
Run a single query against --db.name and print the resulting rows.

Parameters are bound from --param flags, in order for "?" parameters:
>    sqlitectl query --db.name app.db -p 3 "SELECT * FROM t WHERE x = ?"

Or by name for "$name", ":name" and "@name" parameters:
>    sqlitectl query --db.name app.db -p :x=3 "SELECT * FROM t WHERE x = :x"

The value NULL binds a null, and numeric values bind as numbers.
`, &cmdQuery{})

	mustAddCmd(parser.Command, "shell", "Run statements read from stdin", `
Read statements from stdin and run each against --db.name, printing rows
as "column=value" pairs. A statement ends with a semicolon at the end of a line.

With --watch, each row changed by a committed transaction is printed to stderr.
`, &cmdShell{})

	mustAddCmd(parser.Command, "snapshot", "Write a compressed snapshot of a database", `
Serialize --db.name and write it as a snapshot, compressed with --codec.
Snapshots are restored with the "restore" sub-command.
`, &cmdSnapshot{})

	mustAddCmd(parser.Command, "restore", "Restore a snapshot to a database file", `
Read a snapshot written by "snapshot" and write it to the file --db.name.
An existing file is replaced only if --force is given.
`, &cmdRestore{})

	mustAddCmd(parser.Command, "copy", "Copy a database file", `
Copy the database file --db.name to TARGET. The source must not be in use
by another process.
`, &cmdCopy{})

	// Parse config and start app
	MustParseConfig(parser, iniFilename)
}

func mustAddCmd(cmd *flags.Command, name, short, long string, cfg interface{}) *flags.Command {
	cmd, err := cmd.AddCommand(name, short, long, cfg)
	Must(err, "failed to add command")
	return cmd
}
