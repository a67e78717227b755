// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type config struct {
	S string
	N int
}

func (c *config) Bind(f *flag.FlagSet, default_ Config) {
	def := default_.(*config)
	f.StringVar(&c.S, "s", def.S, "")
	f.IntVar(&c.N, "n", def.N, "")
}

func (c *config) ValidateConfig() error {
	if c.N < 0 {
		return fmt.Errorf("n must be non-negative")
	}
	return nil
}

func (c *config) Copy() Config {
	cp := *c
	return &cp
}

func TestFileListenerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.conf")
	lastCfg := &config{S: "default"}
	l := NewFileListener(path, lastCfg, t.Logf)
	l.AddChangeCB(func(c Config) {
		lastCfg = c.(*config)
	})
	apply := func(text string) error {
		require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
		return l.Reload()
	}

	t.Run("check missing file", func(t *testing.T) {
		require.NoError(t, l.Reload())
		require.Equal(t, config{S: "default"}, *lastCfg)
	})
	t.Run("check non default value", func(t *testing.T) {
		require.NoError(t, apply("# comment\n--s=test1\n\n--n=3\n"))
		require.Equal(t, config{S: "test1", N: 3}, *lastCfg)
	})
	t.Run("check empty value", func(t *testing.T) {
		require.NoError(t, apply("--s="))
		require.Equal(t, config{S: ""}, *lastCfg)
	})
	t.Run("check invalid config is not applied", func(t *testing.T) {
		require.Error(t, apply("--n=-1"))
		require.Error(t, apply("--unknown=1"))
		require.Equal(t, config{S: ""}, *lastCfg)
	})
	t.Run("check back to default value", func(t *testing.T) {
		require.NoError(t, apply(""))
		require.Equal(t, config{S: "default"}, *lastCfg)
	})
}

func TestFileListenerWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.conf")
	var mu sync.Mutex
	var last *config
	l := NewFileListener(path, &config{S: "default"}, t.Logf)
	l.AddChangeCB(func(c Config) {
		mu.Lock()
		defer mu.Unlock()
		last = c.(*config)
	})
	require.NoError(t, l.Watch())
	defer func() { require.NoError(t, l.Close()) }()

	require.NoError(t, os.WriteFile(path, []byte("--n=7\n"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return last != nil && last.N == 7
	}, 5*time.Second, 10*time.Millisecond)
}
