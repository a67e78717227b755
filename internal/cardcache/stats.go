// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"github.com/VKCOM/statshouse-go"
	"go.uber.org/atomic"
)

const (
	metricLookup  = "cardgallery_cache_lookup"
	metricBatch   = "cardgallery_cache_batch"
	metricCard    = "cardgallery_cache_card"
	metricEvict   = "cardgallery_cache_evict_bytes"
	metricDurable = "cardgallery_cache_durable_bytes"
)

// cacheStats are counted per facade, tag 1 is always the variant
type cacheStats struct {
	variant string

	ephemeralHits atomic.Int64
	durableHits   atomic.Int64
	misses        atomic.Int64
	staleDrops    atomic.Int64
	batches       atomic.Int64
	batchFailures atomic.Int64
	resolved      atomic.Int64
	failed        atomic.Int64
}

type CacheStats struct {
	EphemeralHits int64 `json:"ephemeral_hits"`
	DurableHits   int64 `json:"durable_hits"`
	Misses        int64 `json:"misses"`
	StaleDrops    int64 `json:"stale_drops"`
	Batches       int64 `json:"batches"`
	BatchFailures int64 `json:"batch_failures"`
	Resolved      int64 `json:"resolved"`
	Failed        int64 `json:"failed"`
}

func (s *cacheStats) lookup(result string, counter *atomic.Int64) {
	counter.Inc()
	statshouse.Count(metricLookup, statshouse.Tags{1: s.variant, 2: result}, 1)
}

func (s *cacheStats) batch(err error) {
	s.batches.Inc()
	status := "ok"
	if err != nil {
		s.batchFailures.Inc()
		status = "error"
	}
	statshouse.Count(metricBatch, statshouse.Tags{1: s.variant, 2: status}, 1)
}

func (s *cacheStats) card(outcome string, ok bool) {
	if ok {
		s.resolved.Inc()
	} else {
		s.failed.Inc()
	}
	statshouse.Count(metricCard, statshouse.Tags{1: s.variant, 2: outcome}, 1)
}

func (s *cacheStats) snapshot() CacheStats {
	return CacheStats{
		EphemeralHits: s.ephemeralHits.Load(),
		DurableHits:   s.durableHits.Load(),
		Misses:        s.misses.Load(),
		StaleDrops:    s.staleDrops.Load(),
		Batches:       s.batches.Load(),
		BatchFailures: s.batchFailures.Load(),
		Resolved:      s.resolved.Load(),
		Failed:        s.failed.Load(),
	}
}

type durableStats struct {
	evictions    atomic.Int64
	evictedBytes atomic.Int64
	pruned       atomic.Int64
	writeErrors  atomic.Int64
}

type DurableStats struct {
	Available    bool  `json:"available"`
	Entries      int   `json:"entries"`
	TotalBytes   int64 `json:"total_bytes"`
	BudgetBytes  int64 `json:"budget_bytes"`
	Evictions    int64 `json:"evictions"`
	EvictedBytes int64 `json:"evicted_bytes"`
	Pruned       int64 `json:"pruned"`
	WriteErrors  int64 `json:"write_errors"`
	// DiskBytes is size of backing file including free pages, 0 if unknown
	DiskBytes int64 `json:"disk_bytes"`
}

func (s *durableStats) evicted(it indexItem) {
	s.evictions.Inc()
	s.evictedBytes.Add(it.sizeBytes)
	statshouse.Value(metricEvict, statshouse.Tags{1: it.key.Variant.String()}, float64(it.sizeBytes))
}

func reportDurableSize(total int64) {
	statshouse.Value(metricDurable, statshouse.Tags{}, float64(total))
}
