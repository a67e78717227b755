// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"context"
	"time"
)

// DiskCache defines the interface for a persistent card image storage.
// Only DurableStore calls it, and only from inside its own operations.
type DiskCache interface {
	// List returns metadata of all entries in namespace, without payloads.
	List(ns string) ([]EntryMeta, error)
	Get(ns string, key Key) ([]byte, bool, error)
	// Set replaces entry with the same key atomically.
	Set(ns string, e Entry) error
	// Touch updates access time, reports false if there is no such entry.
	Touch(ns string, key Key, accessedAt time.Time) (bool, error)
	Erase(ns string, key Key) error
	Close() error
}

// DiskSizer is optionally implemented by DiskCache kept in a file.
type DiskSizer interface {
	DiskSizeBytes() (int64, error)
}

// DiskCacheOpener may block for a long time or forever, DurableStore limits it with timeout.
type DiskCacheOpener func(ctx context.Context) (DiskCache, error)
