// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

type schedulerState uint8

const (
	stateIdle        schedulerState = iota
	stateCollecting                 // waiting for debounce to expire
	stateDispatching                // batch request in flight
	stateDraining                   // inter-batch pause after write-back
)

func (s schedulerState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateCollecting:
		return "collecting"
	case stateDispatching:
		return "dispatching"
	case stateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

type visibleRange struct {
	startRow int
	endRow   int // inclusive
	columns  int
}

// batchPlanner is implemented by Cache, scheduler calls it only from its own goroutine
type batchPlanner interface {
	nextBatch(rng *visibleRange, items []CardID, overscan int) (uint64, []pendingCard)
	dispatch(generation uint64, batch []pendingCard)
	abandon(generation uint64, batch []pendingCard)
}

// scheduler coalesces visibility changes and drains needed cards batch by batch.
// Only one goroutine ever dispatches, so batches are strictly sequential.
type scheduler struct {
	planner batchPlanner
	logger  *logz.Logger

	mu         sync.Mutex
	state      schedulerState
	dirty      bool // visibility changed while dispatching
	closed     bool
	rng        *visibleRange
	items      map[CardID]struct{}
	idle       chan struct{} // closed when state becomes idle
	debounce   time.Duration
	interBatch time.Duration
	overscan   int

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newScheduler(planner batchPlanner, cfg *Config, logger *logz.Logger) *scheduler {
	idle := make(chan struct{})
	close(idle)
	s := &scheduler{
		planner:    planner,
		logger:     logger,
		items:      map[CardID]struct{}{},
		idle:       idle,
		debounce:   cfg.Debounce,
		interBatch: cfg.InterBatchDelay,
		overscan:   cfg.OverscanRows,
		wake:       make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.run()
	return s
}

func (s *scheduler) applyConfig(cfg *Config) {
	s.mu.Lock()
	s.debounce = cfg.Debounce
	s.interBatch = cfg.InterBatchDelay
	s.overscan = cfg.OverscanRows
	s.mu.Unlock()
}

func (s *scheduler) setVisibleRange(startRow, endRow, columns int) {
	s.mu.Lock()
	s.rng = &visibleRange{startRow: startRow, endRow: endRow, columns: columns}
	s.signalLocked()
	s.mu.Unlock()
	s.kick()
}

func (s *scheduler) setCardVisible(id CardID, visible bool) {
	s.mu.Lock()
	if !visible {
		delete(s.items, id)
		s.mu.Unlock()
		return // hidden cards never need work
	}
	s.items[id] = struct{}{}
	s.signalLocked()
	s.mu.Unlock()
	s.kick()
}

// reset forgets visibility, next pass is driven by new reports only
func (s *scheduler) reset() {
	s.mu.Lock()
	s.rng = nil
	clear(s.items)
	s.mu.Unlock()
}

// notify asks for re-evaluation of current visibility
func (s *scheduler) notify() {
	s.mu.Lock()
	s.signalLocked()
	s.mu.Unlock()
	s.kick()
}

func (s *scheduler) signalLocked() {
	if s.closed {
		return
	}
	switch s.state {
	case stateIdle:
		s.state = stateCollecting
		s.idle = make(chan struct{})
	case stateDispatching, stateDraining:
		s.dirty = true
	}
}

func (s *scheduler) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) stateName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.String()
}

func (s *scheduler) waitIdle(ctx context.Context) error {
	s.mu.Lock()
	idle := s.idle
	s.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close waits for in-flight batch, inter-batch pause is cut short and remaining cards are not fetched
func (s *scheduler) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	<-s.done
}

// run owns the only timer, it counts debounce while collecting and inter-batch pause while draining
func (s *scheduler) run() {
	defer close(s.done)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-s.ctx.Done():
			s.setIdle()
			return
		case <-s.wake:
			s.mu.Lock()
			collecting, debounce := s.state == stateCollecting, s.debounce
			s.mu.Unlock()
			if collecting {
				timer.Reset(debounce) // trailing debounce, every change restarts it
			}
		case <-timer.C:
			if pause, more := s.step(); more {
				timer.Reset(pause)
			}
		}
	}
}

// step dispatches one batch and switches to draining, so next batch starts
// only after write-back of this one plus inter-batch pause.
// Reports false when nothing is left to fetch.
func (s *scheduler) step() (time.Duration, bool) {
	for {
		s.mu.Lock()
		s.state = stateDispatching
		s.dirty = false
		var rng *visibleRange
		if s.rng != nil {
			r := *s.rng
			rng = &r
		}
		items := make([]CardID, 0, len(s.items))
		for id := range s.items {
			items = append(items, id)
		}
		overscan := s.overscan
		s.mu.Unlock()
		slices.Sort(items)

		generation, batch := s.planner.nextBatch(rng, items, overscan)
		if len(batch) == 0 {
			s.mu.Lock()
			if s.dirty {
				s.mu.Unlock()
				continue
			}
			s.setIdleLocked()
			s.mu.Unlock()
			return 0, false
		}

		if s.ctx.Err() != nil {
			s.planner.abandon(generation, batch)
			return 0, false // closing, run loop sets idle
		}
		s.planner.dispatch(generation, batch)

		s.mu.Lock()
		s.state = stateDraining
		pause := s.interBatch
		s.mu.Unlock()
		return pause, true
	}
}

func (s *scheduler) setIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setIdleLocked()
}

func (s *scheduler) setIdleLocked() {
	if s.state == stateIdle {
		return
	}
	s.state = stateIdle
	close(s.idle)
}
