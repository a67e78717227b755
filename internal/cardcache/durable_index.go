// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"cmp"
	"fmt"

	"github.com/google/btree"
)

type indexItem struct {
	key           Key
	sourceVersion string
	sizeBytes     int64
	lastAccessed  int64 // UnixNano() timestamp
	cachedAt      int64 // UnixNano() timestamp
}

// evictionLess puts the first eviction candidate to the Min() of the tree
func evictionLess(l, r indexItem) bool {
	if res := cmp.Compare(evictionRank(l.key.Variant), evictionRank(r.key.Variant)); res != 0 {
		return res < 0
	}
	if res := cmp.Compare(l.lastAccessed, r.lastAccessed); res != 0 {
		return res < 0
	}
	// Access times could be same, variant is same here after rank comparison
	return l.key.CardID < r.key.CardID
}

// durableIndex mirrors metadata of every entry in backing store.
// Not thread safe, DurableStore protects it.
type durableIndex struct {
	items     map[Key]indexItem
	order     *btree.BTreeG[indexItem]
	totalSize int64
}

func newDurableIndex() *durableIndex {
	return &durableIndex{
		items: map[Key]indexItem{},
		order: btree.NewG(10, evictionLess),
	}
}

func indexItemFromMeta(m EntryMeta) indexItem {
	return indexItem{
		key:           m.Key,
		sourceVersion: m.SourceVersion,
		sizeBytes:     m.SizeBytes,
		lastAccessed:  m.LastAccessedAt.UnixNano(),
		cachedAt:      m.CachedAt.UnixNano(),
	}
}

func (ix *durableIndex) addTotalSize(a int64) {
	ix.totalSize += a
	if ix.totalSize < 0 {
		panic(fmt.Sprintf("totalSize negative %d after adding %d", ix.totalSize, a))
	}
}

func (ix *durableIndex) get(k Key) (indexItem, bool) {
	it, ok := ix.items[k]
	return it, ok
}

func (ix *durableIndex) len() int {
	return len(ix.items)
}

func (ix *durableIndex) put(it indexItem) {
	if old, ok := ix.items[it.key]; ok {
		ix.order.Delete(old)
		ix.addTotalSize(-old.sizeBytes)
	}
	ix.items[it.key] = it
	ix.order.ReplaceOrInsert(it)
	ix.addTotalSize(it.sizeBytes)
}

func (ix *durableIndex) remove(k Key) (indexItem, bool) {
	it, ok := ix.items[k]
	if !ok {
		return it, false
	}
	delete(ix.items, k)
	ix.order.Delete(it)
	ix.addTotalSize(-it.sizeBytes)
	return it, true
}

func (ix *durableIndex) touch(k Key, accessed int64) {
	it, ok := ix.items[k]
	if !ok {
		return
	}
	ix.order.Delete(it)
	it.lastAccessed = accessed
	ix.items[k] = it
	ix.order.ReplaceOrInsert(it)
}

// victims walks entries in eviction order until their total size reaches spaceNeeded.
// Entries for which skip returns true are never returned.
func (ix *durableIndex) victims(spaceNeeded int64, skip func(Key) bool) []indexItem {
	var result []indexItem
	var freed int64
	ix.order.Ascend(func(it indexItem) bool {
		if freed >= spaceNeeded {
			return false
		}
		if skip != nil && skip(it.key) {
			return true
		}
		result = append(result, it)
		freed += it.sizeBytes
		return true
	})
	return result
}

func (ix *durableIndex) checkInvariants() error {
	if ix.order.Len() != len(ix.items) {
		return fmt.Errorf("order has %d items, map has %d", ix.order.Len(), len(ix.items))
	}
	var sum int64
	for k, it := range ix.items {
		if it.key != k {
			return fmt.Errorf("item %v stored under key %v", it.key, k)
		}
		if !ix.order.Has(it) {
			return fmt.Errorf("item %v missing from order", k)
		}
		sum += it.sizeBytes
	}
	if sum != ix.totalSize {
		return fmt.Errorf("totalSize %d != sum of sizes %d", ix.totalSize, sum)
	}
	return nil
}
