// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

func payloadOfSize(n int64) []byte {
	return make([]byte, n)
}

func TestDurableEvictsFullBeforeThumb(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 10)

	require.NoError(t, s.Set(fullKey(2), payloadOfSize(3), "v")) // accessed least recently
	require.NoError(t, s.Set(fullKey(1), payloadOfSize(6), "v"))
	require.NoError(t, s.Set(thumbKey(3), payloadOfSize(1), "v"))
	require.Empty(t, disk.takeErased())

	require.NoError(t, s.Set(fullKey(4), payloadOfSize(4), "v"))
	require.Equal(t, []Key{fullKey(2), fullKey(1)}, disk.takeErased())
	require.True(t, s.Has(thumbKey(3), ""))
	require.True(t, s.Has(fullKey(4), ""))
	require.Equal(t, int64(5), s.Stats().TotalBytes)
	require.Equal(t, int64(5), s.TotalSize())
	require.Equal(t, 2, s.Len())
	require.NoError(t, s.index.checkInvariants())
}

func TestDurableEvictsLeastRecentlyAccessed(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 100)

	for id := CardID(1); id <= 4; id++ {
		require.NoError(t, s.Set(thumbKey(id), payloadOfSize(20), "v"))
	}
	// reading bumps access time, so 1 becomes most recent
	payload, res := s.Get(thumbKey(1), "v")
	require.Equal(t, LookupHit, res)
	require.Len(t, payload, 20)

	require.NoError(t, s.Set(thumbKey(5), payloadOfSize(30), "v"))
	// needs 10 + 10 slack, so only 2 goes
	require.Equal(t, []Key{thumbKey(2)}, disk.takeErased())
	require.True(t, s.Has(thumbKey(1), "v"))
}

func TestDurableReplaceComputesDelta(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 10)

	require.NoError(t, s.Set(fullKey(1), payloadOfSize(4), "v1"))
	require.NoError(t, s.Set(thumbKey(2), payloadOfSize(4), "v1"))
	require.NoError(t, s.Set(fullKey(1), payloadOfSize(6), "v2")) // delta 2 fits exactly
	require.Empty(t, disk.takeErased())
	require.Equal(t, int64(10), s.Stats().TotalBytes)
	require.True(t, s.Has(fullKey(1), "v2"))
	require.False(t, s.Has(fullKey(1), "v1"))
}

func TestDurableStaleness(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 1000)

	require.NoError(t, s.Set(thumbKey(1), []byte("abc"), "2024-01-01"))
	require.NoError(t, s.Set(thumbKey(2), []byte("def"), ""))

	_, res := s.Get(thumbKey(1), "2024-02-02")
	require.Equal(t, LookupStale, res)
	require.Equal(t, 2, s.Stats().Entries, "stale entry is left to caller")

	payload, res := s.Get(thumbKey(1), "")
	require.Equal(t, LookupHit, res)
	require.Equal(t, "abc", string(payload))

	// nothing cached is stale against any server version
	_, res = s.Get(thumbKey(2), "2024-01-01")
	require.Equal(t, LookupStale, res)
	require.False(t, s.Has(thumbKey(2), "2024-01-01"))
	require.True(t, s.Has(thumbKey(2), ""))
}

func TestDurableHitIdempotence(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 1000)
	require.NoError(t, s.Set(fullKey(9), []byte("payload"), "v"))
	for i := 0; i < 10; i++ {
		payload, res := s.Get(fullKey(9), "v")
		require.Equal(t, LookupHit, res)
		require.Equal(t, "payload", string(payload))
	}
	meta, ok := s.Meta(fullKey(9))
	require.True(t, ok)
	require.True(t, meta.LastAccessedAt.After(meta.CachedAt))
	require.Equal(t, meta.LastAccessedAt, disk.entries["test"][fullKey(9)].LastAccessedAt)
}

func TestDurablePrunesIndexWithoutBackingRecord(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 1000)
	require.NoError(t, s.Set(fullKey(1), []byte("x"), "v"))
	delete(disk.entries["test"], fullKey(1))

	require.True(t, s.Has(fullKey(1), "v"))
	_, res := s.Get(fullKey(1), "v")
	require.Equal(t, LookupMiss, res)
	require.False(t, s.Has(fullKey(1), "v"))
	require.Equal(t, int64(1), s.Stats().Pruned)
	require.Equal(t, int64(0), s.Stats().TotalBytes)
}

func TestDurableEntryTooLarge(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 10)
	require.NoError(t, s.Set(fullKey(1), payloadOfSize(5), "v"))
	require.ErrorIs(t, s.Set(fullKey(2), payloadOfSize(11), "v"), ErrEntryTooLarge)
	require.Empty(t, disk.takeErased())
	require.True(t, s.Has(fullKey(1), "v"))
}

func TestDurableEraseFailureKeepsIndexConsistent(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 10)
	require.NoError(t, s.Set(fullKey(1), payloadOfSize(8), "v"))
	disk.failErase = true
	require.NoError(t, s.Set(fullKey(2), payloadOfSize(8), "v"))
	require.True(t, s.Has(fullKey(1), "v"))
	require.Equal(t, disk.size("test"), s.Stats().TotalBytes)
	require.Error(t, s.Remove(fullKey(1)))
	require.True(t, s.Has(fullKey(1), "v"))
	require.NoError(t, s.index.checkInvariants())
}

func TestDurableOpenRebuildsIndexAndTrims(t *testing.T) {
	disk := newMemDiskCache()
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	disk.entries["test"] = map[Key]Entry{}
	for id := CardID(1); id <= 5; id++ {
		var e Entry
		e.Key = thumbKey(id)
		e.Payload = payloadOfSize(10)
		e.SizeBytes = 10
		e.SourceVersion = "v"
		e.CachedAt = at
		e.LastAccessedAt = at.Add(time.Duration(id) * time.Second)
		disk.entries["test"][e.Key] = e
	}
	disk.entries["other"] = map[Key]Entry{thumbKey(1): disk.entries["test"][thumbKey(1)]}

	s := openTestDurable(t, disk, 35)
	// 15 over budget plus 3 slack, oldest two go
	require.Equal(t, []Key{thumbKey(1), thumbKey(2)}, disk.takeErased())
	st := s.Stats()
	require.Equal(t, 3, st.Entries)
	require.Equal(t, int64(30), st.TotalBytes)
	require.Len(t, disk.entries["other"], 1)
}

func TestDurableSetBudgetTrims(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 100)
	for id := CardID(1); id <= 5; id++ {
		require.NoError(t, s.Set(thumbKey(id), payloadOfSize(10), "v"))
	}
	require.NoError(t, s.Set(fullKey(6), payloadOfSize(10), "v"))
	s.SetBudget(40)
	require.Equal(t, []Key{fullKey(6), thumbKey(1), thumbKey(2)}, disk.takeErased())
	require.Equal(t, int64(30), s.Stats().TotalBytes)
	require.Equal(t, int64(40), s.Stats().BudgetBytes)
}

func TestDurableOpenFailureIsMemoryOnly(t *testing.T) {
	s := OpenDurableStore(context.Background(), func(context.Context) (DiskCache, error) {
		return nil, errors.New("no storage here")
	}, DurableOptions{Namespace: "test"}, logz.NewNop())
	require.False(t, s.Available())
	require.ErrorIs(t, s.Set(fullKey(1), []byte("x"), ""), ErrStorageUnavailable)
	_, res := s.Get(fullKey(1), "")
	require.Equal(t, LookupMiss, res)
	require.False(t, s.Has(fullKey(1), ""))
	require.NoError(t, s.Remove(fullKey(1)))
	require.NoError(t, s.Close())
}

func TestDurableOpenTimeoutClosesLateStore(t *testing.T) {
	disk := newMemDiskCache()
	release := make(chan struct{})
	start := time.Now()
	s := OpenDurableStore(context.Background(), func(context.Context) (DiskCache, error) {
		<-release // hangs ignoring context
		return disk, nil
	}, DurableOptions{Namespace: "test", OpenTimeout: 20 * time.Millisecond}, logz.NewNop())
	require.Less(t, time.Since(start), 5*time.Second)
	require.False(t, s.Available())
	require.ErrorIs(t, s.Set(fullKey(1), []byte("x"), ""), ErrStorageUnavailable)

	close(release)
	require.Eventually(t, disk.isClosed, 5*time.Second, time.Millisecond)
}

func TestDurableClose(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 100)
	require.NoError(t, s.Close())
	require.True(t, disk.isClosed())
	require.False(t, s.Available())
	require.ErrorIs(t, s.Set(fullKey(1), []byte("x"), ""), ErrStorageUnavailable)
	require.NoError(t, s.Close())
}

func snapshotIndex(s *DurableStore) map[Key]indexItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[Key]indexItem, len(s.index.items))
	for k, it := range s.index.items {
		result[k] = it
	}
	return result
}

func TestDurableStoreInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		disk := newMemDiskCache()
		budget := rapid.Int64Range(10, 200).Draw(t, "budget")
		s := openTestDurable(t, disk, budget)

		ops := rapid.IntRange(1, 100).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			key := Key{
				Variant: Variant(rapid.IntRange(0, 1).Draw(t, "variant")),
				CardID:  rapid.Int64Range(0, 15).Draw(t, "card_id"),
			}
			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0, 1, 2:
				size := rapid.Int64Range(0, budget+5).Draw(t, "size")
				before := snapshotIndex(s)
				err := s.Set(key, payloadOfSize(size), "v")
				if size > budget {
					require.ErrorIs(t, err, ErrEntryTooLarge)
					require.Empty(t, disk.takeErased())
					break
				}
				require.NoError(t, err)
				erased := disk.takeErased()
				evicted := map[Key]bool{}
				for _, k := range erased {
					evicted[k] = true
				}
				for _, k := range erased {
					require.NotEqual(t, key, k, "entry being written is never evicted")
					for sk, survivor := range before {
						if !evicted[sk] && sk != key {
							require.True(t, evictionLess(before[k], survivor), "%v evicted before %v", k, sk)
						}
					}
				}
			case 3:
				_, inIndex := snapshotIndex(s)[key]
				payload, res := s.Get(key, "v")
				if inIndex {
					require.Equal(t, LookupHit, res)
					require.Equal(t, disk.entries["test"][key].Payload, payload)
				} else {
					require.Equal(t, LookupMiss, res)
				}
			case 4:
				require.NoError(t, s.Remove(key))
				require.False(t, s.Has(key, ""))
			}

			require.NoError(t, s.index.checkInvariants())
			st := s.Stats()
			require.LessOrEqual(t, st.TotalBytes, budget)
			require.Equal(t, disk.size("test"), st.TotalBytes)
			metas, err := disk.List("test")
			require.NoError(t, err)
			require.Len(t, metas, st.Entries)
			for _, m := range metas {
				require.True(t, s.Has(m.Key, "v"))
			}
		}
	})
}

func TestDurableEvictFreesSlack(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 100)
	for id := CardID(1); id <= 4; id++ {
		require.NoError(t, s.Set(thumbKey(id), payloadOfSize(20), "v"))
	}

	// 5 needed + 10 slack, one entry is enough
	require.Equal(t, int64(20), s.Evict(5))
	require.Equal(t, []Key{thumbKey(1)}, disk.takeErased())

	// 25 needed + 10 slack takes two more
	require.Equal(t, int64(40), s.Evict(25))
	require.Equal(t, []Key{thumbKey(2), thumbKey(3)}, disk.takeErased())
	require.Equal(t, int64(20), s.TotalSize())
	require.Equal(t, 1, s.Len())

	require.Zero(t, s.Evict(0))
	require.Empty(t, disk.takeErased())
	require.NoError(t, s.index.checkInvariants())
}

func TestDurableRemoveStaleKeepsFreshEntry(t *testing.T) {
	disk := newMemDiskCache()
	s := openTestDurable(t, disk, 100)
	key := thumbKey(1)
	require.NoError(t, s.Set(key, []byte("old"), "T1"))

	_, res := s.Get(key, "T2")
	require.Equal(t, LookupStale, res)
	// fresh image lands between stale lookup and removal
	require.NoError(t, s.Set(key, []byte("new"), "T2"))
	removed, err := s.RemoveStale(key, "T2")
	require.NoError(t, err)
	require.False(t, removed)

	payload, res := s.Get(key, "T2")
	require.Equal(t, LookupHit, res)
	require.Equal(t, "new", string(payload))

	removed, err = s.RemoveStale(key, "T3")
	require.NoError(t, err)
	require.True(t, removed)
	require.False(t, s.Has(key, ""))
	require.Zero(t, s.TotalSize())
}
