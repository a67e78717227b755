// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"sync"
)

// loadTracker holds per-card load state of one variant. Cards not in map are unrequested.
// Generation changes on reset, results of batches dispatched before reset are ignored.
type loadTracker struct {
	mu         sync.Mutex
	generation uint64
	states     map[CardID]LoadState
}

func newLoadTracker() *loadTracker {
	return &loadTracker{states: map[CardID]LoadState{}}
}

func (t *loadTracker) state(id CardID) LoadState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[id]
}

// markLoading moves ids to loading and returns generation to pass to finish
func (t *loadTracker) markLoading(ids []CardID) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range ids {
		t.states[id] = LoadLoading
	}
	return t.generation
}

// resolveLocal marks card found in local tiers, in-flight load keeps its state
func (t *loadTracker) resolveLocal(id CardID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[id] != LoadLoading {
		t.states[id] = LoadResolved
	}
}

// finish records batch outcome for one card, reports false if batch is from previous generation
func (t *loadTracker) finish(generation uint64, id CardID, state LoadState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return false
	}
	if t.states[id] == LoadLoading {
		t.states[id] = state
	}
	return true
}

// abandon returns loading ids to unrequested, used when dispatch is cancelled on close
func (t *loadTracker) abandon(generation uint64, ids []CardID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return
	}
	for _, id := range ids {
		if t.states[id] == LoadLoading {
			delete(t.states, id)
		}
	}
}

// forget returns resolved or failed card to unrequested
func (t *loadTracker) forget(id CardID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.states[id] != LoadLoading {
		delete(t.states, id)
	}
}

func (t *loadTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.generation++
	clear(t.states)
}

func (t *loadTracker) counts() map[LoadState]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := map[LoadState]int{}
	for _, s := range t.states {
		result[s]++
	}
	return result
}
