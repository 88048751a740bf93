// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage resolves, copies and deletes database files.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// MemoryName is the name of a private in-memory database.
const MemoryName = ":memory:"

// sidecarSuffixes name the files SQLite keeps beside a database.
var sidecarSuffixes = []string{"-journal", "-wal", "-shm"}

// Resolver maps database names to paths within a base directory.
type Resolver struct {
	Fs  afero.Fs
	Dir string
}

// NewResolver returns a Resolver of names against |dir| on |fs|. An empty
// |dir| uses the current working directory, and a nil |fs| the OS file system.
func NewResolver(fs afero.Fs, dir string) *Resolver {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Resolver{Fs: fs, Dir: dir}
}

// IsMemory returns whether |name| denotes an in-memory database.
func IsMemory(name string) bool {
	return name == MemoryName || name == ""
}

// Resolve returns the absolute path of |name|. Absolute names are used as-is.
// The containing directory must exist. In-memory names and "file:" URIs are
// returned unchanged.
func (r *Resolver) Resolve(name string) (string, error) {
	if IsMemory(name) {
		return MemoryName, nil
	} else if strings.HasPrefix(name, "file:") {
		return name, nil
	}

	var path = name
	if !filepath.IsAbs(path) {
		var dir = r.Dir
		if dir == "" {
			var err error
			if dir, err = os.Getwd(); err != nil {
				return "", errors.WithMessage(err, "getting working directory")
			}
		}
		path = filepath.Join(dir, name)
	}
	path = filepath.Clean(path)

	if ok, err := afero.DirExists(r.Fs, filepath.Dir(path)); err != nil {
		return "", errors.WithMessagef(err, "checking directory of %s", path)
	} else if !ok {
		return "", errors.Errorf("directory %s does not exist", filepath.Dir(path))
	}
	return path, nil
}

// Exists returns whether the database file |name| exists.
func (r *Resolver) Exists(name string) (bool, error) {
	if IsMemory(name) {
		return false, nil
	}
	path, err := r.Resolve(name)
	if err != nil {
		return false, err
	}
	return afero.Exists(r.Fs, path)
}

// Copy copies database file |from| to |to|, replacing |to| if it exists. The
// source must not be open for writing.
func (r *Resolver) Copy(from, to string) error {
	src, err := r.Resolve(from)
	if err != nil {
		return err
	}
	dst, err := r.Resolve(to)
	if err != nil {
		return err
	}

	in, err := r.Fs.Open(src)
	if err != nil {
		return errors.WithMessagef(err, "opening %s", src)
	}
	defer in.Close()

	out, err := r.Fs.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return errors.WithMessagef(err, "creating %s", dst)
	}
	if _, err = io.Copy(out, in); err != nil {
		out.Close()
		return errors.WithMessagef(err, "copying %s to %s", src, dst)
	}
	if err = out.Close(); err != nil {
		return errors.WithMessagef(err, "closing %s", dst)
	}

	log.WithFields(log.Fields{"from": src, "to": dst}).Debug("copied database file")
	return nil
}

// Delete removes database file |name| along with its journal and WAL files.
// Deleting a file which does not exist is not an error.
func (r *Resolver) Delete(name string) error {
	path, err := r.Resolve(name)
	if err != nil {
		return err
	}
	for _, p := range append([]string{path}, sidecars(path)...) {
		if err := r.Fs.Remove(p); err != nil && !os.IsNotExist(err) {
			return errors.WithMessagef(err, "removing %s", p)
		}
	}
	log.WithField("path", path).Debug("deleted database file")
	return nil
}

func sidecars(path string) []string {
	var out []string
	for _, s := range sidecarSuffixes {
		out = append(out, path+s)
	}
	return out
}
