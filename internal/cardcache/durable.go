// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const (
	DefaultDurableBudget      = 30 << 20
	DefaultDurableOpenTimeout = 5 * time.Second

	evictSlackPercent = 10 // eviction frees this much of budget beyond what is needed
)

type DurableOptions struct {
	// Namespace separates entries of different identities sharing one backing store
	Namespace   string
	Budget      int64
	OpenTimeout time.Duration
	// Clock is used for access times, time.Now if nil
	Clock func() time.Time
}

// DurableStore keeps card images in DiskCache under a size budget.
// Index of all entries is kept in memory, so validity checks never touch disk.
//
// When backing store cannot be opened, DurableStore stays usable but empty,
// Set returns ErrStorageUnavailable and lookups miss.
type DurableStore struct {
	logger    *logz.Logger
	namespace string
	clock     func() time.Time
	available atomic.Bool
	stats     durableStats

	opMu  sync.Mutex // serializes operations which touch disk, protects disk
	disk  DiskCache
	sizer DiskSizer // set once before store is returned from OpenDurableStore

	mu      sync.RWMutex // protects fields below
	index   *durableIndex
	writing map[Key]struct{} // never evicted while set is in progress
	budget  int64
}

type openResult struct {
	disk  DiskCache
	metas []EntryMeta
	err   error
}

// OpenDurableStore waits for opener at most opt.OpenTimeout, then continues without backing store.
// Backing store which opens after timeout is closed.
func OpenDurableStore(ctx context.Context, opener DiskCacheOpener, opt DurableOptions, logger *logz.Logger) *DurableStore {
	if opt.Budget <= 0 {
		opt.Budget = DefaultDurableBudget
	}
	if opt.OpenTimeout <= 0 {
		opt.OpenTimeout = DefaultDurableOpenTimeout
	}
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	s := &DurableStore{
		logger:    logger.NewSubsystem("durable"),
		namespace: opt.Namespace,
		clock:     opt.Clock,
		index:     newDurableIndex(),
		writing:   map[Key]struct{}{},
		budget:    opt.Budget,
	}
	if opener == nil {
		s.logger.Warn("no backing store configured, persistent cache disabled")
		return s
	}

	openCtx, cancel := context.WithTimeout(ctx, opt.OpenTimeout)
	defer cancel()
	ch := make(chan openResult, 1)
	go func() {
		dc, err := opener(openCtx)
		if err != nil {
			ch <- openResult{err: err}
			return
		}
		metas, err := dc.List(opt.Namespace)
		if err != nil {
			_ = dc.Close()
			ch <- openResult{err: fmt.Errorf("failed to list entries: %w", err)}
			return
		}
		ch <- openResult{disk: dc, metas: metas}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			s.logger.Warn("failed to open backing store, persistent cache disabled", logz.Err(r.err))
			return s
		}
		s.attach(r.disk, r.metas)
	case <-openCtx.Done():
		s.logger.Warn("backing store open timed out, persistent cache disabled", logz.Duration("timeout", opt.OpenTimeout))
		go func() {
			if r := <-ch; r.disk != nil {
				_ = r.disk.Close()
			}
		}()
	}
	return s
}

func (s *DurableStore) attach(disk DiskCache, metas []EntryMeta) {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.disk = disk
	s.sizer, _ = disk.(DiskSizer)
	s.mu.Lock()
	for _, m := range metas {
		s.index.put(indexItemFromMeta(m))
	}
	total, budget := s.index.totalSize, s.budget
	s.mu.Unlock()
	s.available.Store(true)
	s.logger.Info("persistent cache opened", logz.Int("entries", len(metas)), logz.Int64("total_bytes", total))
	if total > budget {
		s.evictLocked(total - budget)
	}
}

func (s *DurableStore) Available() bool {
	return s.available.Load()
}

func (s *DurableStore) Close() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if !s.available.Swap(false) {
		return nil
	}
	err := s.disk.Close()
	s.disk = nil
	return err
}

// Has reports whether key is present and fresh against serverVersion, using only the index
func (s *DurableStore) Has(key Key, serverVersion string) bool {
	if !s.Available() {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.index.get(key)
	return ok && !versionStale(it.sourceVersion, serverVersion)
}

// Get never removes stale entries, caller decides what to do with them.
// Index entry without backing record is pruned and reported as miss.
func (s *DurableStore) Get(key Key, serverVersion string) ([]byte, LookupResult) {
	if !s.Available() {
		return nil, LookupMiss
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.disk == nil {
		return nil, LookupMiss
	}

	s.mu.RLock()
	it, ok := s.index.get(key)
	s.mu.RUnlock()
	if !ok {
		return nil, LookupMiss
	}
	if versionStale(it.sourceVersion, serverVersion) {
		return nil, LookupStale
	}

	payload, found, err := s.disk.Get(s.namespace, key)
	if err != nil {
		s.logger.Warn("failed to read image", logz.Stringer("key", key), logz.Err(err))
		return nil, LookupMiss
	}
	if !found {
		s.mu.Lock()
		s.index.remove(key)
		s.mu.Unlock()
		s.stats.pruned.Inc()
		s.logger.Debug("pruned index entry without backing record", logz.Stringer("key", key))
		return nil, LookupMiss
	}

	now := s.clock()
	if _, err := s.disk.Touch(s.namespace, key, now); err != nil {
		s.logger.Debug("failed to update access time", logz.Stringer("key", key), logz.Err(err))
	}
	s.mu.Lock()
	s.index.touch(key, now.UnixNano())
	s.mu.Unlock()
	return payload, LookupHit
}

// Set stores payload, evicting other entries first when budget would be exceeded.
func (s *DurableStore) Set(key Key, payload []byte, sourceVersion string) error {
	if !s.Available() {
		return ErrStorageUnavailable
	}
	size := int64(len(payload))

	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.disk == nil {
		return ErrStorageUnavailable
	}

	s.mu.Lock()
	if size > s.budget {
		budget := s.budget
		s.mu.Unlock()
		return fmt.Errorf("%w: %v is %d bytes, budget %d", ErrEntryTooLarge, key, size, budget)
	}
	var delta int64 = size
	if old, ok := s.index.get(key); ok {
		delta -= old.sizeBytes
	}
	s.writing[key] = struct{}{}
	overflow := s.index.totalSize + delta - s.budget
	s.mu.Unlock()

	if overflow > 0 {
		s.evictLocked(overflow)
	}

	now := s.clock()
	var e Entry
	e.Key = key
	e.SourceVersion = sourceVersion
	e.SizeBytes = size
	e.CachedAt = now
	e.LastAccessedAt = now
	e.Payload = payload
	err := s.disk.Set(s.namespace, e)

	s.mu.Lock()
	delete(s.writing, key)
	if err == nil {
		s.index.put(indexItemFromMeta(e.EntryMeta))
	}
	total := s.index.totalSize
	s.mu.Unlock()

	if err != nil {
		s.stats.writeErrors.Inc()
		return fmt.Errorf("failed to store %v: %w", key, err)
	}
	reportDurableSize(total)
	return nil
}

func (s *DurableStore) Remove(key Key) error {
	if !s.Available() {
		return nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.disk == nil {
		return nil
	}
	if err := s.disk.Erase(s.namespace, key); err != nil {
		return fmt.Errorf("failed to remove %v: %w", key, err)
	}
	s.mu.Lock()
	s.index.remove(key)
	s.mu.Unlock()
	return nil
}

// RemoveStale removes entry only if it is still stale against serverVersion,
// so fresh entry written after stale lookup survives.
func (s *DurableStore) RemoveStale(key Key, serverVersion string) (bool, error) {
	if !s.Available() {
		return false, nil
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.disk == nil {
		return false, nil
	}
	s.mu.RLock()
	it, ok := s.index.get(key)
	s.mu.RUnlock()
	if !ok || !versionStale(it.sourceVersion, serverVersion) {
		return false, nil
	}
	if err := s.disk.Erase(s.namespace, key); err != nil {
		return false, fmt.Errorf("failed to remove %v: %w", key, err)
	}
	s.mu.Lock()
	s.index.remove(key)
	s.mu.Unlock()
	return true, nil
}

// Evict frees at least spaceNeeded bytes if there are enough entries, returns bytes freed.
func (s *DurableStore) Evict(spaceNeeded int64) int64 {
	if spaceNeeded <= 0 || !s.Available() {
		return 0
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.disk == nil {
		return 0
	}
	return s.evictLocked(spaceNeeded)
}

// SetBudget applies new budget, evicting entries if current total exceeds it.
func (s *DurableStore) SetBudget(budget int64) {
	if budget <= 0 {
		return
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.mu.Lock()
	s.budget = budget
	overflow := s.index.totalSize - budget
	s.mu.Unlock()
	if overflow > 0 && s.disk != nil {
		s.evictLocked(overflow)
	}
}

// evictLocked must be called under opMu
func (s *DurableStore) evictLocked(spaceNeeded int64) int64 {
	s.mu.RLock()
	target := spaceNeeded + s.budget*evictSlackPercent/100
	victims := s.index.victims(target, func(k Key) bool {
		_, ok := s.writing[k]
		return ok
	})
	s.mu.RUnlock()

	var freed int64
	for _, it := range victims {
		if err := s.disk.Erase(s.namespace, it.key); err != nil {
			// entry stays both on disk and in index, we will retry on next eviction
			s.logger.Warn("failed to evict image", logz.Stringer("key", it.key), logz.Err(err))
			continue
		}
		s.mu.Lock()
		s.index.remove(it.key)
		s.mu.Unlock()
		s.stats.evicted(it)
		freed += it.sizeBytes
	}
	s.logger.Debug("evicted images", logz.Int("count", len(victims)), logz.Int64("needed", spaceNeeded), logz.Int64("freed", freed))
	return freed
}

func (s *DurableStore) Stats() DurableStats {
	var diskBytes int64
	if s.sizer != nil && s.Available() {
		n, err := s.sizer.DiskSizeBytes()
		if err != nil {
			s.logger.Debug("failed to get backing store size", logz.Err(err))
		}
		diskBytes = n
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return DurableStats{
		DiskBytes:    diskBytes,
		Available:    s.Available(),
		Entries:      s.index.len(),
		TotalBytes:   s.index.totalSize,
		BudgetBytes:  s.budget,
		Evictions:    s.stats.evictions.Load(),
		EvictedBytes: s.stats.evictedBytes.Load(),
		Pruned:       s.stats.pruned.Load(),
		WriteErrors:  s.stats.writeErrors.Load(),
	}
}

// Meta returns index entry for key, for diagnostics.
func (s *DurableStore) Meta(key Key) (EntryMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.index.get(key)
	if !ok {
		return EntryMeta{}, false
	}
	return EntryMeta{
		Key:            it.key,
		SourceVersion:  it.sourceVersion,
		SizeBytes:      it.sizeBytes,
		CachedAt:       time.Unix(0, it.cachedAt),
		LastAccessedAt: time.Unix(0, it.lastAccessed),
	}, true
}

func (s *DurableStore) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.totalSize
}

func (s *DurableStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.len()
}
