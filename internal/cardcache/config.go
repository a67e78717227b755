// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"flag"
	"fmt"
	"time"

	"github.com/VKCOM/cardgallery/internal/config"
)

const (
	MaxBatchLimit = 3 // backend rejects larger batches

	DefaultInterBatchDelay = 150 * time.Millisecond
	DefaultDebounce        = 16 * time.Millisecond
	DefaultOverscanRows    = 2
	DefaultFetchTimeout    = 30 * time.Second
)

type Config struct {
	EphemeralTTL       time.Duration
	DurableBudget      int64
	DurableOpenTimeout time.Duration
	BatchLimit         int
	InterBatchDelay    time.Duration
	Debounce           time.Duration
	OverscanRows       int
	FetchTimeout       time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		EphemeralTTL:       DefaultEphemeralTTL,
		DurableBudget:      DefaultDurableBudget,
		DurableOpenTimeout: DefaultDurableOpenTimeout,
		BatchLimit:         MaxBatchLimit,
		InterBatchDelay:    DefaultInterBatchDelay,
		Debounce:           DefaultDebounce,
		OverscanRows:       DefaultOverscanRows,
		FetchTimeout:       DefaultFetchTimeout,
	}
}

func (c *Config) Bind(f *flag.FlagSet, defaultI config.Config) {
	default_ := defaultI.(*Config)
	f.DurationVar(&c.EphemeralTTL, "ephemeral-ttl", default_.EphemeralTTL, "lifetime of images in memory tier")
	config.ByteSizeVar(f, &c.DurableBudget, "durable-budget", default_.DurableBudget, "size budget of persistent tier (bytes, KB, MB or GB)")
	f.DurationVar(&c.DurableOpenTimeout, "durable-open-timeout", default_.DurableOpenTimeout, "persistent tier is disabled if it does not open in time")
	f.IntVar(&c.BatchLimit, "batch-limit", default_.BatchLimit, fmt.Sprintf("max cards per image request, at most %d", MaxBatchLimit))
	f.DurationVar(&c.InterBatchDelay, "inter-batch-delay", default_.InterBatchDelay, "pause between consecutive image requests")
	f.DurationVar(&c.Debounce, "visibility-debounce", default_.Debounce, "visibility changes are coalesced for this long")
	f.IntVar(&c.OverscanRows, "overscan-rows", default_.OverscanRows, "rows above and below visible range to prefetch")
	f.DurationVar(&c.FetchTimeout, "fetch-timeout", default_.FetchTimeout, "timeout of single image request")
}

func (c *Config) ValidateConfig() error {
	if c.BatchLimit < 1 || c.BatchLimit > MaxBatchLimit {
		return fmt.Errorf("--batch-limit (%d) must be between 1 and %d", c.BatchLimit, MaxBatchLimit)
	}
	if c.DurableBudget <= 0 {
		return fmt.Errorf("--durable-budget (%d) must be positive", c.DurableBudget)
	}
	if c.EphemeralTTL <= 0 {
		return fmt.Errorf("--ephemeral-ttl (%v) must be positive", c.EphemeralTTL)
	}
	if c.OverscanRows < 0 {
		return fmt.Errorf("--overscan-rows (%d) must not be negative", c.OverscanRows)
	}
	if c.InterBatchDelay < 0 || c.Debounce < 0 {
		return fmt.Errorf("--inter-batch-delay (%v) and --visibility-debounce (%v) must not be negative", c.InterBatchDelay, c.Debounce)
	}
	if c.FetchTimeout <= 0 || c.DurableOpenTimeout <= 0 {
		return fmt.Errorf("--fetch-timeout (%v) and --durable-open-timeout (%v) must be positive", c.FetchTimeout, c.DurableOpenTimeout)
	}
	return nil
}

func (c *Config) Copy() config.Config {
	cp := *c
	return &cp
}
