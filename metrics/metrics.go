// Copyright 2018 The go-sqlite-lite Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metrics defines the Prometheus collectors exported by
// go-sqlite-async. Collectors are registered with the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Keys for metrics labels.
const (
	Fail = "fail"
	Ok   = "ok"

	Encode = "encode"
	Decode = "decode"
)

// Collectors for sqlitedb.Database.
var (
	DatabasesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sqlitedb_databases_open",
		Help: "Number of currently open databases.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sqlitedb_queue_depth",
		Help: "Number of queued asynchronous operations awaiting execution, across all databases.",
	})
	QueuedOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitedb_queued_operations_total",
		Help: "Cumulative number of asynchronous operations executed, by outcome.",
	}, []string{"status"})
	StatementCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqlitedb_statement_cache_hits_total",
		Help: "Cumulative number of prepared statements served from the statement cache.",
	})
	StatementCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqlitedb_statement_cache_misses_total",
		Help: "Cumulative number of statements compiled because they were not cached.",
	})
	StatementsForceFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqlitedb_statements_force_finalized_total",
		Help: "Cumulative number of user statements finalized by Database.Close.",
	})
)

// Collectors for exclusive transactions.
var (
	ExclusiveTransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitedb_exclusive_transactions_total",
		Help: "Cumulative number of exclusive transactions, by outcome.",
	}, []string{"status"})
	LockRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sqlitedb_lock_rejections_total",
		Help: "Cumulative number of writes rejected because another caller held the exclusive lock.",
	})
)

// Collectors for changeset application.
var (
	ChangesetsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitedb_changesets_applied_total",
		Help: "Cumulative number of changeset applications, by outcome.",
	}, []string{"status"})
	ChangesetConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlitedb_changeset_conflicts_total",
		Help: "Cumulative number of conflicts met while applying changesets, by conflict type.",
	}, []string{"type"})
)

// Collectors for listener.Hub.
var (
	NotificationsPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listener_notifications_published_total",
		Help: "Cumulative number of change notifications published to hubs.",
	})
	NotificationsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listener_notifications_delivered_total",
		Help: "Cumulative number of change notifications delivered to listeners.",
	})
	ListenerPanicsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "listener_panics_total",
		Help: "Cumulative number of listener callbacks which panicked.",
	})
)

// Collectors for snapshot encoding.
var (
	SnapshotBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "snapshot_bytes_total",
		Help: "Cumulative number of uncompressed database bytes encoded or decoded, by direction and codec.",
	}, []string{"direction", "codec"})
)
