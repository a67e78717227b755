// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

var errDiskFailure = errors.New("disk failure")

type memDiskCache struct {
	mu        sync.Mutex
	entries   map[string]map[Key]Entry
	erased    []Key
	closed    bool
	failErase bool
}

func newMemDiskCache() *memDiskCache {
	return &memDiskCache{entries: map[string]map[Key]Entry{}}
}

func (m *memDiskCache) opener() DiskCacheOpener {
	return func(context.Context) (DiskCache, error) {
		return m, nil
	}
}

func (m *memDiskCache) List(ns string) ([]EntryMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []EntryMeta
	for _, e := range m.entries[ns] {
		result = append(result, e.EntryMeta)
	}
	return result, nil
}

func (m *memDiskCache) Get(ns string, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ns][key]
	return e.Payload, ok, nil
}

func (m *memDiskCache) Set(ns string, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries[ns] == nil {
		m.entries[ns] = map[Key]Entry{}
	}
	m.entries[ns][e.Key] = e
	return nil
}

func (m *memDiskCache) Touch(ns string, key Key, accessedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[ns][key]
	if !ok {
		return false, nil
	}
	e.LastAccessedAt = accessedAt
	m.entries[ns][key] = e
	return true, nil
}

func (m *memDiskCache) Erase(ns string, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErase {
		return errDiskFailure
	}
	delete(m.entries[ns], key)
	m.erased = append(m.erased, key)
	return nil
}

func (m *memDiskCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *memDiskCache) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *memDiskCache) takeErased() []Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	erased := m.erased
	m.erased = nil
	return erased
}

func (m *memDiskCache) size(ns string) (total int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries[ns] {
		total += int64(len(e.Payload))
	}
	return total
}

// fakeClock advances one millisecond on every call, so access times are distinct
type fakeClock struct {
	now atomic.Int64
}

func (c *fakeClock) Now() time.Time {
	return time.Unix(0, c.now.Add(int64(time.Millisecond)))
}

func openTestDurable(t require.TestingT, disk *memDiskCache, budget int64) *DurableStore {
	clock := &fakeClock{}
	clock.now.Store(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	s := OpenDurableStore(context.Background(), disk.opener(), DurableOptions{
		Namespace: "test",
		Budget:    budget,
		Clock:     clock.Now,
	}, logz.NewNop())
	require.True(t, s.Available())
	return s
}

func testPNG(t require.TestingT, id CardID) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	c := color.RGBA{R: uint8(id), G: uint8(id >> 8), B: 0x80, A: 0xff}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fullKey(id CardID) Key  { return Key{Variant: VariantFull, CardID: id} }
func thumbKey(id CardID) Key { return Key{Variant: VariantThumb, CardID: id} }
