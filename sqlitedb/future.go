// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqlitedb

// Future is the result of an asynchronous operation. It resolves exactly once.
type Future[T any] struct {
	doneCh chan struct{}
	value  T
	err    error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{doneCh: make(chan struct{})}
}

// resolvedFuture returns a Future which is already resolved.
func resolvedFuture[T any](v T, err error) *Future[T] {
	var f = newFuture[T]()
	f.resolve(v, err)
	return f
}

// Done selects when the operation has completed.
func (f *Future[T]) Done() <-chan struct{} { return f.doneCh }

// Get blocks until the operation completes, and returns its result.
func (f *Future[T]) Get() (T, error) {
	<-f.doneCh
	return f.value, f.err
}

// Err blocks until the operation completes, and returns its error.
func (f *Future[T]) Err() error {
	<-f.doneCh
	return f.err
}

func (f *Future[T]) resolve(v T, err error) {
	select {
	case <-f.doneCh:
		panic("Future resolved twice")
	default:
	}
	f.value, f.err = v, err
	close(f.doneCh)
}
