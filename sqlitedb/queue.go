// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

import (
	"sync"

	"github.com/productsupcom/go-sqlite-async/metrics"
)

// opQueue is an unbounded FIFO of operations served by a single goroutine.
type opQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ops    []func()
	closed bool
	doneCh chan struct{}
}

func newOpQueue() *opQueue {
	var q = &opQueue{doneCh: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.serve()
	return q
}

// push appends |op|, returning false if the queue is closed.
func (q *opQueue) push(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.ops = append(q.ops, op)
	metrics.QueueDepth.Inc()
	q.cond.Signal()
	return true
}

// close stops accepting operations. Queued operations still run, after which
// done is closed.
func (q *opQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Signal()
	q.mu.Unlock()
}

func (q *opQueue) done() <-chan struct{} { return q.doneCh }

func (q *opQueue) serve() {
	q.mu.Lock()
	for {
		for len(q.ops) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.ops) == 0 {
			q.mu.Unlock()
			close(q.doneCh)
			return
		}
		var op = q.ops[0]
		q.ops[0] = nil
		q.ops = q.ops[1:]
		q.mu.Unlock()

		metrics.QueueDepth.Dec()
		op()

		q.mu.Lock()
	}
}

// submit queues |fn| onto the Database's queue and returns a Future of its
// result. If the Database is closed the Future resolves with
// ErrDatabaseClosed.
func submit[T any](db *Database, fn func() (T, error)) *Future[T] {
	var f = newFuture[T]()
	var ok = db.queue.push(func() {
		var v, err = fn()
		if err != nil {
			metrics.QueuedOperationsTotal.WithLabelValues(metrics.Fail).Inc()
		} else {
			metrics.QueuedOperationsTotal.WithLabelValues(metrics.Ok).Inc()
		}
		f.resolve(v, err)
	})
	if !ok {
		var zero T
		f.resolve(zero, ErrDatabaseClosed)
	}
	return f
}
