// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sqlitecache

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/VKCOM/cardgallery/internal/cardcache"
	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const (
	cacheFilename  = "cards.db"
	diskTxDuration = 100 * time.Millisecond
	namespace      = "user-1"
)

func openTestCache(t testing.TB, path string) *SqliteDiskCache {
	dc, err := OpenSqliteDiskCache(context.Background(), path, Options{TxDuration: diskTxDuration})
	require.NoError(t, err)
	return dc
}

func testEntry(variant cardcache.Variant, id int64, payload string, at time.Time) cardcache.Entry {
	var e cardcache.Entry
	e.Key = cardcache.Key{Variant: variant, CardID: id}
	e.SourceVersion = "v" + strconv.FormatInt(id, 10)
	e.SizeBytes = int64(len(payload))
	e.CachedAt = at
	e.LastAccessedAt = at
	e.Payload = []byte(payload)
	return e
}

func TestDiskCacheSetGetErase(t *testing.T) {
	dc := openTestCache(t, filepath.Join(t.TempDir(), cacheFilename))
	defer func() { require.NoError(t, dc.Close()) }()

	now := time.Unix(1700000000, 123)
	full := testEntry(cardcache.VariantFull, 7, "full-image", now)
	thumb := testEntry(cardcache.VariantThumb, 7, "thumb", now)
	require.NoError(t, dc.Set(namespace, full))
	require.NoError(t, dc.Set(namespace, thumb))

	payload, found, err := dc.Get(namespace, full.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "full-image", string(payload))

	_, found, err = dc.Get("other", full.Key)
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, dc.Erase(namespace, full.Key))
	_, found, err = dc.Get(namespace, full.Key)
	require.NoError(t, err)
	require.False(t, found)

	payload, found, err = dc.Get(namespace, thumb.Key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "thumb", string(payload))
}

func TestDiskCacheReplaceAndTouch(t *testing.T) {
	dc := openTestCache(t, filepath.Join(t.TempDir(), cacheFilename))
	defer func() { require.NoError(t, dc.Close()) }()

	now := time.Unix(1700000000, 0)
	e := testEntry(cardcache.VariantThumb, 1, "old", now)
	require.NoError(t, dc.Set(namespace, e))
	e2 := testEntry(cardcache.VariantThumb, 1, "newer payload", now.Add(time.Minute))
	e2.SourceVersion = "2025-01-01"
	require.NoError(t, dc.Set(namespace, e2))

	later := now.Add(time.Hour)
	ok, err := dc.Touch(namespace, e.Key, later)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = dc.Touch(namespace, cardcache.Key{Variant: cardcache.VariantFull, CardID: 1}, later)
	require.NoError(t, err)
	require.False(t, ok)

	list, err := dc.List(namespace)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, e.Key, list[0].Key)
	require.Equal(t, "2025-01-01", list[0].SourceVersion)
	require.Equal(t, int64(len("newer payload")), list[0].SizeBytes)
	require.True(t, later.Equal(list[0].LastAccessedAt))
	require.True(t, now.Add(time.Minute).Equal(list[0].CachedAt))
}

func TestDiskCacheSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), cacheFilename)
	now := time.Unix(1700000000, 0)

	dc := openTestCache(t, path)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, dc.Set(namespace, testEntry(cardcache.VariantFull, i, strconv.FormatInt(i*i, 10), now)))
	}
	require.NoError(t, dc.Close())

	dc = openTestCache(t, path)
	defer func() { require.NoError(t, dc.Close()) }()
	list, err := dc.List(namespace)
	require.NoError(t, err)
	require.Len(t, list, 10)
	for _, m := range list {
		payload, found, err := dc.Get(namespace, m.Key)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, strconv.FormatInt(m.CardID*m.CardID, 10), string(payload))
		require.Equal(t, int64(len(payload)), m.SizeBytes)
	}
}

func TestDiskCacheClosed(t *testing.T) {
	dc := openTestCache(t, filepath.Join(t.TempDir(), cacheFilename))
	require.NoError(t, dc.Close())

	_, _, err := dc.Get(namespace, cardcache.Key{CardID: 1})
	require.ErrorIs(t, err, errDiskCacheClosed)
	require.ErrorIs(t, dc.Set(namespace, testEntry(cardcache.VariantThumb, 1, "x", time.Now())), errDiskCacheClosed)
}

func TestDurableStoreReportsDiskSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), cacheFilename)
	s := cardcache.OpenDurableStore(context.Background(), Opener(path, Options{TxDuration: diskTxDuration}),
		cardcache.DurableOptions{Namespace: namespace}, logz.NewNop())
	defer func() { require.NoError(t, s.Close()) }()
	require.True(t, s.Available())

	key := cardcache.Key{Variant: cardcache.VariantThumb, CardID: 1}
	require.NoError(t, s.Set(key, []byte("thumb"), "v1"))
	st := s.Stats()
	require.Equal(t, 1, st.Entries)
	require.Equal(t, int64(5), st.TotalBytes)
	require.Positive(t, st.DiskBytes)
}

func BenchmarkDiskCacheSetGet(b *testing.B) {
	dc := openTestCache(b, filepath.Join(b.TempDir(), cacheFilename))
	defer func() { _ = dc.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := int64(i % (b.N/2 + 1)) // force upsert sometimes
		e := testEntry(cardcache.VariantThumb, id, strconv.Itoa(i*i), time.Now())
		err := dc.Set(namespace, e)
		require.NoError(b, err)
		payload, found, err := dc.Get(namespace, e.Key)
		require.NoError(b, err)
		require.True(b, found)
		require.Equal(b, e.Payload, payload)
	}
}
