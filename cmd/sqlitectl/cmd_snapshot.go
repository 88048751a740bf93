// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/snapshot"
	"github.com/productsupcom/go-sqlite-async/storage"
	log "github.com/sirupsen/logrus"
)

type cmdSnapshot struct {
	Codec string `long:"codec" short:"c" choice:"none" choice:"gzip" choice:"snappy" choice:"zstd" default:"zstd" description:"Compression codec"`
	Args  struct {
		Output string `positional-arg-name:"OUTPUT" required:"true" description:"Snapshot file to write. Use '-' for stdout"`
	} `positional-args:"true"`
}

type cmdRestore struct {
	Force bool `long:"force" description:"Replace the database file if it exists"`
	Args  struct {
		Input string `positional-arg-name:"INPUT" required:"true" description:"Snapshot file to read. Use '-' for stdin"`
	} `positional-args:"true"`
}

type cmdCopy struct {
	Force bool `long:"force" description:"Replace the target file if it exists"`
	Args  struct {
		Target string `positional-arg-name:"TARGET" required:"true" description:"Name of the copy, resolved like --db.name"`
	} `positional-args:"true"`
}

func (cmd *cmdSnapshot) Execute([]string) error {
	startup()

	codec, err := snapshot.ParseCodec(cmd.Codec)
	if err != nil {
		return err
	}
	var db = baseCfg.Database.Open(nil)
	defer db.Close()

	var out = os.Stdout
	if cmd.Args.Output != "-" {
		if out, err = os.Create(cmd.Args.Output); err != nil {
			return err
		}
		defer out.Close()
	}

	n, err := snapshot.Write(out, db, codec)
	if err != nil {
		return err
	} else if err = out.Sync(); err != nil && cmd.Args.Output != "-" {
		return errors.WithMessage(err, "syncing snapshot")
	}

	log.WithFields(log.Fields{
		"name":  db.Name(),
		"codec": codec,
		"size":  humanize.IBytes(uint64(n)),
	}).Info("wrote snapshot")
	return nil
}

func (cmd *cmdRestore) Execute([]string) error {
	startup()

	var cfg = baseCfg.Database
	if storage.IsMemory(cfg.Name) {
		return errors.New("restore requires a database file name")
	}
	var resolver = storage.NewResolver(nil, cfg.Directory)
	path, err := resolver.Resolve(cfg.Name)
	if err != nil {
		return err
	}
	if err = replaceable(resolver, path, cmd.Force); err != nil {
		return err
	}

	var in = os.Stdin
	if cmd.Args.Input != "-" {
		if in, err = os.Open(cmd.Args.Input); err != nil {
			return err
		}
		defer in.Close()
	}

	db, err := snapshot.Restore(in, cfg.Options())
	if err != nil {
		return err
	}
	defer db.Close()

	if err = db.Exec("VACUUM INTO '" + strings.ReplaceAll(path, "'", "''") + "'"); err != nil {
		return errors.WithMessagef(err, "writing %s", path)
	}
	size, err := db.Get("SELECT page_count * page_size AS n FROM pragma_page_count(), pragma_page_size()", nil)
	if err != nil {
		return err
	}

	fmt.Printf("restored %s (%s)\n", path, humanize.IBytes(uint64(size["n"].(int64))))
	return nil
}

func (cmd *cmdCopy) Execute([]string) error {
	startup()

	var cfg = baseCfg.Database
	if storage.IsMemory(cfg.Name) || storage.IsMemory(cmd.Args.Target) {
		return errors.New("copy requires database file names")
	}
	var resolver = storage.NewResolver(nil, cfg.Directory)

	from, err := resolver.Resolve(cfg.Name)
	if err != nil {
		return err
	}
	to, err := resolver.Resolve(cmd.Args.Target)
	if err != nil {
		return err
	}
	if err = replaceable(resolver, to, cmd.Force); err != nil {
		return err
	}

	// Open and close the source, which checkpoints and removes any journal.
	var db = cfg.Open(nil)
	if err = db.Close(); err != nil {
		return err
	}
	if err = resolver.Copy(from, to); err != nil {
		return err
	}
	fmt.Printf("copied %s to %s\n", from, to)
	return nil
}

// replaceable returns an error if |path| exists, unless |force| is set, in
// which case the file is removed.
func replaceable(resolver *storage.Resolver, path string, force bool) error {
	if exists, err := resolver.Exists(path); err != nil {
		return err
	} else if !exists {
		return nil
	} else if !force {
		return errors.Errorf("%s exists (use --force to replace it)", path)
	}
	return resolver.Delete(path)
}
