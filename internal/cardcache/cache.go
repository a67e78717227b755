// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cardcache delivers card images of one variant from two local tiers,
// fetching missing visible cards from the backend in small sequential batches.
//
// Lookup order is ephemeral store, then durable store, then network.
// Network is only used for cards reported visible by SetVisibleRange or SetCardVisible.
package cardcache

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

type Option func(*Cache)

// WithOnResolved sets callback called from fetch goroutine after card image is stored
func WithOnResolved(f func(Variant, CardID)) Option {
	return func(c *Cache) {
		c.fetcher.onResolved = f
	}
}

// Cache is a facade over both tiers and batch fetcher for one image variant.
// Stores may be shared between caches of different variants.
type Cache struct {
	variant    Variant
	logger     *logz.Logger
	ephemeral  *EphemeralStore
	durable    *DurableStore
	tracker    *loadTracker
	fetcher    *fetcher
	sched      *scheduler
	stats      *cacheStats
	batchLimit atomic.Int64

	cardsMu sync.RWMutex
	cards   *cardSet

	closeOnce sync.Once
}

func New(variant Variant, cfg *Config, ephemeral *EphemeralStore, durable *DurableStore, source ImageSource, logger *logz.Logger, opts ...Option) *Cache {
	logger = logger.NewSubsystem("cardcache").With(logz.Stringer("variant", variant))
	c := &Cache{
		variant:   variant,
		logger:    logger,
		ephemeral: ephemeral,
		durable:   durable,
		tracker:   newLoadTracker(),
		stats:     &cacheStats{variant: variant.String()},
		cards:     newCardSet(nil),
	}
	c.batchLimit.Store(int64(cfg.BatchLimit))
	c.fetcher = &fetcher{
		variant:   variant,
		source:    source,
		ephemeral: ephemeral,
		durable:   durable,
		tracker:   c.tracker,
		stats:     c.stats,
		logger:    logger,
	}
	c.fetcher.fetchTimeout.Store(cfg.FetchTimeout)
	for _, opt := range opts {
		opt(c)
	}
	c.sched = newScheduler(c, cfg, logger)
	return c
}

func (c *Cache) Variant() Variant {
	return c.variant
}

// Close stops scheduling, waiting for in-flight batch. Stores are not closed.
func (c *Cache) Close() {
	c.closeOnce.Do(c.sched.close)
}

// ApplyConfig applies scheduling and fetch settings, store settings are applied to stores by owner
func (c *Cache) ApplyConfig(cfg *Config) {
	c.batchLimit.Store(int64(cfg.BatchLimit))
	c.fetcher.fetchTimeout.Store(cfg.FetchTimeout)
	c.sched.applyConfig(cfg)
}

// SetCards replaces card listing. New set of card IDs resets load states and visibility,
// changed image version of a card returns it to unrequested.
func (c *Cache) SetCards(cards []Card) {
	next := newCardSet(cards)
	c.cardsMu.Lock()
	prev := c.cards
	c.cards = next
	c.cardsMu.Unlock()

	if prev.identity != next.identity {
		c.tracker.reset()
		c.sched.reset()
		c.logger.Debug("card set changed", logz.Int("cards", len(next.ids)))
		return
	}
	changed := next.changedVersions(prev)
	for _, id := range changed {
		c.tracker.forget(id)
	}
	if len(changed) != 0 {
		c.logger.Debug("card image versions changed", logz.Int64s("card_ids", changed))
		c.sched.notify()
	}
}

func (c *Cache) currentCards() *cardSet {
	c.cardsMu.RLock()
	defer c.cardsMu.RUnlock()
	return c.cards
}

func (c *Cache) CardVersion(id CardID) string {
	return c.currentCards().version(id)
}

// GetImage returns payload from local tiers only, never blocks on network
func (c *Cache) GetImage(id CardID) ([]byte, bool) {
	payload, tier := c.lookup(id, c.CardVersion(id))
	switch tier {
	case tierEphemeral:
		c.stats.lookup("ephemeral", &c.stats.ephemeralHits)
	case tierDurable:
		c.stats.lookup("durable", &c.stats.durableHits)
	default:
		c.stats.lookup("miss", &c.stats.misses)
		return nil, false
	}
	c.tracker.resolveLocal(id)
	return payload, true
}

func (c *Cache) State(id CardID) LoadState {
	return c.tracker.state(id)
}

func (c *Cache) IsLoading(id CardID) bool {
	return c.tracker.state(id) == LoadLoading
}

func (c *Cache) HasFailed(id CardID) bool {
	return c.tracker.state(id) == LoadFailed
}

// Retry returns failed cards to unrequested, they are fetched again if visible
func (c *Cache) Retry(ids ...CardID) {
	for _, id := range ids {
		if c.tracker.state(id) == LoadFailed {
			c.tracker.forget(id)
		}
	}
	c.sched.notify()
}

// Invalidate drops cached image of card from both tiers, it is fetched again if visible.
// In-flight load is not affected.
func (c *Cache) Invalidate(id CardID) error {
	key := Key{Variant: c.variant, CardID: id}
	c.ephemeral.Delete(key)
	err := c.durable.Remove(key)
	c.tracker.forget(id)
	c.sched.notify()
	return err
}

// SetVisibleRange reports rows [startRow, endRow] of grid with given number of columns
func (c *Cache) SetVisibleRange(startRow, endRow, columns int) {
	c.sched.setVisibleRange(startRow, endRow, columns)
}

// SetCardVisible reports visibility of single card for non-grid layouts
func (c *Cache) SetCardVisible(id CardID, visible bool) {
	c.sched.setCardVisible(id, visible)
}

// WaitIdle blocks until all needed visible cards are resolved or failed
func (c *Cache) WaitIdle(ctx context.Context) error {
	return c.sched.waitIdle(ctx)
}

func (c *Cache) SchedulerState() string {
	return c.sched.stateName()
}

func (c *Cache) Stats() CacheStats {
	return c.stats.snapshot()
}

func (c *Cache) LoadCounts() map[string]int {
	result := map[string]int{}
	for state, n := range c.tracker.counts() {
		result[state.String()] = n
	}
	return result
}

type tier uint8

const (
	tierNone tier = iota
	tierEphemeral
	tierDurable
)

func (c *Cache) lookup(id CardID, version string) ([]byte, tier) {
	key := Key{Variant: c.variant, CardID: id}
	if payload, cached, ok := c.ephemeral.Get(key); ok {
		if !versionStale(cached, version) {
			return payload, tierEphemeral
		}
		c.ephemeral.DeleteStale(key, version)
	}
	payload, result := c.durable.Get(key, version)
	switch result {
	case LookupHit:
		c.ephemeral.Set(key, payload, version)
		return payload, tierDurable
	case LookupStale:
		c.stats.staleDrops.Inc()
		// fetcher may have stored fresh image since Get, it must survive
		if _, err := c.durable.RemoveStale(key, version); err != nil {
			c.logger.Warn("failed to remove stale image", logz.Stringer("key", key), logz.Err(err))
		}
	}
	return nil, tierNone
}

// present checks both tiers without reading payload from disk
func (c *Cache) present(id CardID, version string) bool {
	key := Key{Variant: c.variant, CardID: id}
	if _, cached, ok := c.ephemeral.Get(key); ok && !versionStale(cached, version) {
		return true
	}
	return c.durable.Has(key, version)
}

func (c *Cache) nextBatch(rng *visibleRange, items []CardID, overscan int) (uint64, []pendingCard) {
	cards := c.currentCards()
	var ids []CardID
	if rng != nil {
		ids = cards.visibleIDs(rng.startRow, rng.endRow, rng.columns, overscan)
	}
	ids = append(ids[:len(ids):len(ids)], items...)

	limit := int(c.batchLimit.Load())
	seen := make(map[CardID]struct{}, len(ids))
	var batch []pendingCard
	for _, id := range ids {
		if len(batch) >= limit {
			break
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		version := cards.version(id)
		switch c.tracker.state(id) {
		case LoadLoading, LoadFailed:
			continue
		case LoadResolved:
			if c.present(id, version) {
				continue
			}
			c.tracker.forget(id) // evicted or expired from both tiers
		}
		if _, t := c.lookup(id, version); t != tierNone {
			c.tracker.resolveLocal(id)
			continue
		}
		batch = append(batch, pendingCard{id: id, version: version})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	return c.tracker.markLoading(pendingIDs(batch)), batch
}

func (c *Cache) dispatch(generation uint64, batch []pendingCard) {
	_ = c.fetcher.fetchBatch(generation, batch) // failures are recorded per card
}

func (c *Cache) abandon(generation uint64, batch []pendingCard) {
	c.tracker.abandon(generation, pendingIDs(batch))
}

func pendingIDs(batch []pendingCard) []CardID {
	ids := make([]CardID, 0, len(batch))
	for _, p := range batch {
		ids = append(ids, p.id)
	}
	return ids
}
