// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package listener

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func note(table string, row int64) Notification {
	return Notification{
		DatabaseName:     "test.db",
		DatabaseFilePath: "/tmp/test.db",
		TableName:        table,
		RowID:            row,
		Op:               "INSERT",
	}
}

// collector records the notifications delivered to it.
type collector struct {
	mu    sync.Mutex
	notes []Notification
}

func (c *collector) add(n Notification) {
	c.mu.Lock()
	c.notes = append(c.notes, n)
	c.mu.Unlock()
}

func (c *collector) get() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.notes...)
}

func TestHubDeliversInPublishOrder(t *testing.T) {
	var hub = NewHub()
	defer hub.Close()

	var a, b collector
	hub.AddListener(a.add)
	hub.AddListener(b.add)

	hub.Publish(note("t", 1), note("t", 2))
	hub.Publish(note("u", 3))
	hub.Sync()

	var want = []Notification{note("t", 1), note("t", 2), note("u", 3)}
	require.Equal(t, want, a.get())
	require.Equal(t, want, b.get())
}

func TestSubscriptionRemove(t *testing.T) {
	var hub = NewHub()
	defer hub.Close()

	var a, b collector
	var subA = hub.AddListener(a.add)
	hub.AddListener(b.add)
	require.NotEqual(t, subA.ID(), hub.AddListener(func(Notification) {}).ID())

	hub.Publish(note("t", 1))
	hub.Sync()

	subA.Remove()
	subA.Remove() // Idempotent.

	hub.Publish(note("t", 2))
	hub.Sync()

	require.Equal(t, []Notification{note("t", 1)}, a.get())
	require.Equal(t, []Notification{note("t", 1), note("t", 2)}, b.get())
}

func TestListenerPanicDoesNotStopDelivery(t *testing.T) {
	var hub = NewHub()
	defer hub.Close()

	var c collector
	hub.AddListener(func(n Notification) {
		if n.RowID == 1 {
			panic("boom")
		}
	})
	hub.AddListener(c.add)

	hub.Publish(note("t", 1), note("t", 2))
	hub.Sync()

	require.Len(t, c.get(), 2)
}

func TestCloseDrainsThenDrops(t *testing.T) {
	var hub = NewHub()

	var c collector
	hub.AddListener(c.add)

	for i := int64(0); i != 100; i++ {
		hub.Publish(note("t", i))
	}
	hub.Close()
	require.Len(t, c.get(), 100)

	// Published after Close: dropped, and Sync does not block.
	hub.Publish(note("t", 100))
	hub.Sync()
	require.Len(t, c.get(), 100)
}

func TestDeliveryIsAsynchronous(t *testing.T) {
	var hub = NewHub()
	defer hub.Close()

	var release = make(chan struct{})
	var c collector
	hub.AddListener(func(n Notification) {
		<-release
		c.add(n)
	})

	// Publish returns while the listener is still blocked.
	hub.Publish(note("t", 1))
	require.Empty(t, c.get())

	close(release)
	hub.Sync()
	require.Len(t, c.get(), 1)
}
