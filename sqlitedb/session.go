// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"bytes"

	"github.com/google/uuid"
	"github.com/productsupcom/go-sqlite-async/sqlite3"
	log "github.com/sirupsen/logrus"
)

// Session records changes to the tables attached to it while it is enabled,
// regardless of who makes them. Several Sessions may be enabled at once, and
// each records every change independently.
type Session struct {
	db     *Database
	id     uuid.UUID
	schema string

	// sess is guarded by db.mu, and nil once closed.
	sess *sqlite3.Session
}

// CreateSession returns an enabled Session of |schema| ("main" if empty)
// with no attached tables.
func (db *Database) CreateSession(schema string) (*Session, error) {
	if schema == "" {
		schema = "main"
	}
	return locked(db, func() (*Session, error) {
		sess, err := db.conn.CreateSession(schema)
		if err != nil {
			return nil, sqlErr(err, "")
		}
		var s = &Session{db: db, id: uuid.New(), schema: schema, sess: sess}
		db.sessions[s.id] = s

		log.WithFields(log.Fields{"name": db.name, "session": s.id}).Debug("created session")
		return s, nil
	})
}

// CreateSessionAsync queues CreateSession.
func (db *Database) CreateSessionAsync(schema string) *Future[*Session] {
	return submit(db, func() (*Session, error) { return db.CreateSession(schema) })
}

// ID uniquely identifies the Session.
func (s *Session) ID() uuid.UUID { return s.id }

// Attach starts recording changes to |table|. An empty |table| attaches
// every table of the schema, including those created later. Only tables
// with a PRIMARY KEY are recorded.
func (s *Session) Attach(table string) error {
	_, err := sessionLocked(s, func() (struct{}, error) {
		return struct{}{}, sqlErr(s.sess.Attach(table), "")
	})
	return err
}

// Enable starts or stops recording. Changes recorded so far are retained.
func (s *Session) Enable(on bool) error {
	_, err := sessionLocked(s, func() (struct{}, error) {
		if on {
			s.sess.Enable()
		} else {
			s.sess.Disable()
		}
		return struct{}{}, nil
	})
	return err
}

// EnableAsync queues Enable.
func (s *Session) EnableAsync(on bool) *Future[struct{}] {
	return submit(s.db, func() (struct{}, error) { return struct{}{}, s.Enable(on) })
}

// IsEnabled returns whether the Session is recording. A closed Session is
// not.
func (s *Session) IsEnabled() bool {
	on, _ := sessionLocked(s, func() (bool, error) {
		return s.sess.IsEnabled(), nil
	})
	return on
}

// IsEmpty returns whether the Session has recorded no changes.
func (s *Session) IsEmpty() (bool, error) {
	return sessionLocked(s, func() (bool, error) {
		return s.sess.IsEmpty(), nil
	})
}

// CreateChangeset returns the changes recorded so far. The Session keeps
// recording, and later Changesets include these changes again.
func (s *Session) CreateChangeset() (Changeset, error) {
	return sessionLocked(s, func() (Changeset, error) {
		var buf bytes.Buffer
		if err := s.sess.Changeset(&buf); err != nil {
			return nil, sqlErr(err, "")
		}
		return Changeset(buf.Bytes()), nil
	})
}

// CreateChangesetAsync queues CreateChangeset.
func (s *Session) CreateChangesetAsync() *Future[Changeset] {
	return submit(s.db, s.CreateChangeset)
}

// InvertChangeset returns the inverse of |cs|.
func (s *Session) InvertChangeset(cs Changeset) (Changeset, error) {
	return sessionLocked(s, cs.Invert)
}

// InvertChangesetAsync queues InvertChangeset.
func (s *Session) InvertChangesetAsync(cs Changeset) *Future[Changeset] {
	return submit(s.db, func() (Changeset, error) { return s.InvertChangeset(cs) })
}

// ApplyChangeset applies |cs| to the Session's Database, omitting and
// counting conflicting changes.
func (s *Session) ApplyChangeset(cs Changeset) (ApplyResult, error) {
	return sessionLocked(s, func() (ApplyResult, error) {
		return s.db.applyChangeset(cs, nil, nil)
	})
}

// ApplyChangesetAsync queues ApplyChangeset.
func (s *Session) ApplyChangesetAsync(cs Changeset) *Future[ApplyResult] {
	return submit(s.db, func() (ApplyResult, error) { return s.ApplyChangeset(cs) })
}

// Close discards the Session and its recorded changes. Changesets created
// from it remain valid.
func (s *Session) Close() error {
	_, err := sessionLocked(s, func() (struct{}, error) {
		s.sess.Close()
		s.sess = nil
		delete(s.db.sessions, s.id)
		return struct{}{}, nil
	})
	return err
}

// CloseAsync queues Close.
func (s *Session) CloseAsync() *Future[struct{}] {
	return submit(s.db, func() (struct{}, error) { return struct{}{}, s.Close() })
}

func sessionLocked[T any](s *Session, fn func() (T, error)) (T, error) {
	return withLock(s.db, func() error {
		if s.sess == nil {
			return ErrSessionClosed
		}
		return nil
	}, fn)
}
