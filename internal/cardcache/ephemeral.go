// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultEphemeralTTL = 30 * time.Minute

type ephemeralEntry struct {
	payload       []byte
	sourceVersion string
}

// EphemeralStore is a process-lifetime TTL map. Expired entries are removed
// on access only, there is no janitor goroutine.
type EphemeralStore struct {
	mu    sync.Mutex // orders Set against removals, so removal never hits entry just set
	items *gocache.Cache
}

func NewEphemeralStore(ttl time.Duration) *EphemeralStore {
	if ttl <= 0 {
		ttl = DefaultEphemeralTTL
	}
	return &EphemeralStore{items: gocache.New(ttl, 0)}
}

// Get returns payload and version it was stored with
func (s *EphemeralStore) Get(key Key) ([]byte, string, bool) {
	k := key.String()
	if v, ok := s.items.Get(k); ok {
		e := v.(ephemeralEntry)
		return e.payload, e.sourceVersion, true
	}
	s.mu.Lock()
	if _, ok := s.items.Get(k); !ok {
		s.items.Delete(k) // no-op unless entry is expired
	}
	s.mu.Unlock()
	return nil, "", false
}

func (s *EphemeralStore) Has(key Key) bool {
	_, _, ok := s.Get(key)
	return ok
}

func (s *EphemeralStore) Set(key Key, payload []byte, sourceVersion string) {
	s.mu.Lock()
	s.items.SetDefault(key.String(), ephemeralEntry{payload: payload, sourceVersion: sourceVersion})
	s.mu.Unlock()
}

func (s *EphemeralStore) Delete(key Key) {
	s.mu.Lock()
	s.items.Delete(key.String())
	s.mu.Unlock()
}

// DeleteStale removes entry only if it is still stale against serverVersion
func (s *EphemeralStore) DeleteStale(key Key, serverVersion string) bool {
	k := key.String()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items.Get(k)
	if !ok || !versionStale(v.(ephemeralEntry).sourceVersion, serverVersion) {
		return false
	}
	s.items.Delete(k)
	return true
}

// Len counts expired but not yet accessed entries too
func (s *EphemeralStore) Len() int {
	return s.items.ItemCount()
}
