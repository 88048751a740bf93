// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"github.com/pkg/errors"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
)

// Params are values bound to the parameters of a statement. A nil Params
// binds nothing, leaving every parameter NULL.
type Params interface {
	bind(*sqlite3.Stmt) error
}

// Positional binds values in order to "?" and "?NNN" parameters.
type Positional []interface{}

// Named binds values to "$name", ":name" and "@name" parameters. Keys carry
// the sigil used in the SQL text. Parameters missing from the map are NULL.
type Named map[string]interface{}

func (p Positional) bind(s *sqlite3.Stmt) error {
	if len(p) > s.BindParameterCount() {
		return errors.WithMessagef(ErrInvalidParams, "%d values for %d parameters", len(p), s.BindParameterCount())
	}
	for i, v := range p {
		if err := s.BindValue(i+1, v); err != nil {
			return errors.WithMessagef(ErrInvalidParams, "parameter %d: %s", i+1, err)
		}
	}
	return nil
}

func (p Named) bind(s *sqlite3.Stmt) error {
	var n = s.BindParameterCount()
	var index = make(map[string]int, n)
	for i := 1; i <= n; i++ {
		if name := s.BindParameterName(i); name != "" {
			index[name] = i
		}
	}
	for k, v := range p {
		if !hasSigil(k) {
			return errors.WithMessagef(ErrInvalidParams, "named parameter %q lacks a $, : or @ prefix", k)
		}
		i, ok := index[k]
		if !ok {
			return errors.WithMessagef(ErrInvalidParams, "statement has no parameter %q", k)
		}
		if err := s.BindValue(i, v); err != nil {
			return errors.WithMessagef(ErrInvalidParams, "parameter %q: %s", k, err)
		}
	}
	return nil
}

func hasSigil(name string) bool {
	if name == "" {
		return false
	}
	switch name[0] {
	case '$', ':', '@':
		return len(name) > 1
	}
	return false
}

// bindParams clears prior bindings of |s| and binds |p|.
func bindParams(s *sqlite3.Stmt, p Params) error {
	if err := s.ClearBindings(); err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	return p.bind(s)
}
