// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

type Config interface {
	Bind(f *flag.FlagSet, default_ Config)
	ValidateConfig() error
	Copy() Config
}

// FileListener reloads config from a file with one "--flag=value" per line.
// Flags absent from file get values of initial config, so removing a line resets it.
type FileListener struct {
	mx       sync.RWMutex
	path     string
	initial  Config
	changeCB []func(config Config)
	logf     func(format string, args ...interface{})

	watcher *fsnotify.Watcher
	done    chan struct{}
}

func NewFileListener(path string, config Config, logf func(format string, args ...interface{})) *FileListener {
	return &FileListener{
		path:    filepath.Clean(path),
		initial: config.Copy(), // in case user overwrites his config in callback
		logf:    logf,
	}
}

func (l *FileListener) ValidateConfig(cfg string) error {
	_, err := l.parseConfig(cfg)
	return err
}

func (l *FileListener) parseConfig(cfg string) (Config, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	var f flag.FlagSet
	f.Usage = func() {} // don't print usage on unknown flags
	f.Init("", flag.ContinueOnError)
	c := l.initial.Copy()
	c.Bind(&f, c)
	s := strings.Split(cfg, "\n")
	for i := 0; i < len(s); i++ {
		t := strings.TrimSpace(s[i])
		if len(t) == 0 || strings.HasPrefix(t, "#") {
			continue
		}
		if err := f.Parse([]string{t}); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	err := c.ValidateConfig()
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (l *FileListener) AddChangeCB(f func(config Config)) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.changeCB = append(l.changeCB, f)
}

// Reload reads file and calls callbacks with new config. Missing file means initial config.
// Invalid config is reported and not applied.
func (l *FileListener) Reload() error {
	data, err := os.ReadFile(l.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read config %q: %w", l.path, err)
	}
	cfg, err := l.parseConfig(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse config %q: %w", l.path, err)
	}
	l.mx.RLock()
	callbacks := l.changeCB
	l.mx.RUnlock()
	// do not call callback under mutex
	for _, f := range callbacks {
		f(cfg)
	}
	return nil
}

// Watch reloads config on every change of file until Close.
// Directory is watched, because editors and config managers replace files by rename.
func (l *FileListener) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = w.Add(filepath.Dir(l.path)); err != nil {
		_ = w.Close()
		return err
	}
	l.watcher = w
	l.done = make(chan struct{})
	go l.run()
	return nil
}

func (l *FileListener) run() {
	defer close(l.done)
	for {
		select {
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != l.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if err := l.Reload(); err != nil {
				l.logf("config not applied: %v", err)
			}
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logf("config watcher error: %v", err)
		}
	}
}

func (l *FileListener) Close() error {
	if l.watcher == nil {
		return nil
	}
	err := l.watcher.Close()
	<-l.done
	return err
}
