// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/atomic"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

// ImageSource fetches one batch of images of a variant.
// Cards absent from result are treated as failed, extra cards are ignored.
type ImageSource interface {
	FetchImages(ctx context.Context, variant string, ids []int64) (map[int64][]byte, error)
}

type pendingCard struct {
	id      CardID
	version string // version known at dispatch, stored with payload
}

// fetcher executes batches and writes results back to both tiers
type fetcher struct {
	variant      Variant
	source       ImageSource
	ephemeral    *EphemeralStore
	durable      *DurableStore
	tracker      *loadTracker
	stats        *cacheStats
	logger       *logz.Logger
	fetchTimeout atomic.Duration
	onResolved   func(Variant, CardID)
}

func (f *fetcher) fetchBatch(generation uint64, batch []pendingCard) error {
	ids := make([]int64, 0, len(batch))
	for _, c := range batch {
		ids = append(ids, c.id)
	}
	// dispatched batch is never cancelled, but network may hang
	ctx, cancel := context.WithTimeout(context.Background(), f.fetchTimeout.Load())
	defer cancel()
	start := time.Now()
	images, err := f.source.FetchImages(ctx, f.variant.String(), ids)
	f.stats.batch(err)
	if err != nil {
		f.logger.Warn("batch fetch failed", logz.Int64s("card_ids", ids), logz.Err(err))
		for _, c := range batch {
			if f.tracker.finish(generation, c.id, LoadFailed) {
				f.stats.card("batch_error", false)
			}
		}
		return err
	}
	f.logger.Trace("batch fetched", logz.Int64s("card_ids", ids), logz.Int("images", len(images)), logz.Duration("took", time.Since(start)))

	for _, c := range batch {
		payload, ok := images[c.id]
		if !ok {
			f.logger.Debug("card missing from batch response", logz.Int64("card_id", c.id))
			if f.tracker.finish(generation, c.id, LoadFailed) {
				f.stats.card("missing", false)
			}
			continue
		}
		if _, err := validateImage(payload); err != nil {
			f.logger.Debug("card image is not renderable", logz.Int64("card_id", c.id), logz.Err(err))
			if f.tracker.finish(generation, c.id, LoadFailed) {
				f.stats.card("undecodable", false)
			}
			continue
		}
		key := Key{Variant: f.variant, CardID: c.id}
		f.ephemeral.Set(key, payload, c.version)
		if err := f.durable.Set(key, payload, c.version); err != nil && !errors.Is(err, ErrStorageUnavailable) {
			f.logger.Warn("failed to persist card image", logz.Stringer("key", key), logz.Err(err))
		}
		if f.tracker.finish(generation, c.id, LoadResolved) {
			f.stats.card("resolved", true)
			if f.onResolved != nil {
				f.onResolved(f.variant, c.id)
			}
		}
	}
	return nil
}
