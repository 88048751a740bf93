// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package listener fans out row-level change notifications of committed
// transactions to registered callbacks.
//
// A Hub is constructed explicitly and shared by every Database which should
// report to it. Notifications are delivered on the Hub's own goroutine, never
// from within the write that produced them.
package listener

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/productsupcom/go-sqlite-async/metrics"
	log "github.com/sirupsen/logrus"
)

// Notification describes one row changed by a committed transaction.
type Notification struct {
	// DatabaseName is the name the database was opened with.
	DatabaseName string
	// DatabaseFilePath is the resolved path of the database, or ":memory:".
	DatabaseFilePath string
	TableName        string
	RowID            int64
	// Op is one of "INSERT", "UPDATE" or "DELETE".
	Op string
}

// Hub is a registry of listeners. It is safe for concurrent use.
type Hub struct {
	mu        sync.Mutex
	cond      *sync.Cond
	subs      map[uuid.UUID]*Subscription
	queue     []Notification
	published uint64
	delivered uint64
	closed    bool
	doneCh    chan struct{}
}

// Subscription is a handle to a registered listener.
type Subscription struct {
	id      uuid.UUID
	hub     *Hub
	fn      func(Notification)
	removed atomic.Bool
}

// NewHub returns a Hub with a running dispatch goroutine. Close must be
// called to release it.
func NewHub() *Hub {
	var h = &Hub{
		subs:   make(map[uuid.UUID]*Subscription),
		doneCh: make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.serveDispatch()
	return h
}

// AddListener registers |fn| to be called with every subsequently published
// Notification.
func (h *Hub) AddListener(fn func(Notification)) *Subscription {
	var sub = &Subscription{id: uuid.New(), hub: h, fn: fn}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()

	log.WithField("id", sub.id).Debug("added change listener")
	return sub
}

// ID uniquely identifies the Subscription.
func (s *Subscription) ID() uuid.UUID { return s.id }

// Remove unregisters the listener. A delivery already in progress may still
// complete, but no delivery starts after Remove returns. Remove is idempotent.
func (s *Subscription) Remove() {
	if s.removed.Swap(true) {
		return
	}
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
}

// Publish queues |notes| for delivery and returns immediately. Notifications
// published after Close are dropped.
func (h *Hub) Publish(notes ...Notification) {
	if len(notes) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		log.WithField("count", len(notes)).Warn("dropping notifications published to a closed hub")
		return
	}
	h.queue = append(h.queue, notes...)
	h.published += uint64(len(notes))
	metrics.NotificationsPublishedTotal.Add(float64(len(notes)))
	h.cond.Broadcast()
}

// Sync blocks until every Notification published before the call has been
// delivered.
func (h *Hub) Sync() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for target := h.published; h.delivered < target; {
		h.cond.Wait()
	}
}

// Close delivers any queued notifications, then stops the dispatch goroutine.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()

	<-h.doneCh
}

func (h *Hub) serveDispatch() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		for len(h.queue) == 0 && !h.closed {
			h.cond.Wait()
		}
		if len(h.queue) == 0 {
			close(h.doneCh)
			return
		}

		var batch = h.queue
		h.queue = nil

		var subs = make([]*Subscription, 0, len(h.subs))
		for _, s := range h.subs {
			subs = append(subs, s)
		}
		h.mu.Unlock()

		for _, n := range batch {
			for _, s := range subs {
				if !s.removed.Load() {
					s.deliver(n)
				}
			}
		}

		h.mu.Lock()
		h.delivered += uint64(len(batch))
		h.cond.Broadcast()
	}
}

func (s *Subscription) deliver(n Notification) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerPanicsTotal.Inc()
			log.WithFields(log.Fields{
				"id":    s.id,
				"panic": r,
				"table": n.TableName,
			}).Error("change listener panicked")
		}
	}()

	s.fn(n)
	metrics.NotificationsDeliveredTotal.Inc()
}
