// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package easydb is a thin sqlx wrapper for single-connection SQLite files.
// All access goes through one semaphore, prepared statements are cached per transaction.
package easydb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
	"golang.org/x/sync/semaphore"
)

const (
	sqliteDriver = "sqlite3"
)

type Options struct {
	BusyTimeout time.Duration
	Schema      string
	// WAL switches journal to write-ahead log, readers of other processes are not blocked by long transactions
	WAL bool
}

type DB struct {
	sem *semaphore.Weighted
	dbx *sqlx.DB
}

type Tx struct {
	ctx  context.Context
	txx  *sqlx.Tx
	stmt map[string]*sqlx.Stmt
}

func Open(ctx context.Context, path string, opt Options) (*DB, error) {
	// Escape the path to avoid callers specifying DSN explicitly. UTF-8 encoding is default.
	dsn := fmt.Sprintf("file:%v?_busy_timeout=%v&_synchronous=NORMAL", url.QueryEscape(path), int64(opt.BusyTimeout/time.Millisecond))
	if opt.WAL {
		dsn += "&_journal_mode=WAL"
	}

	dbx, err := sqlx.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB %q: %w", path, err)
	}
	dbx.SetMaxOpenConns(1) // additionally, we use a semaphore for all DB access

	if err = dbx.PingContext(ctx); err != nil {
		_ = dbx.Close()
		return nil, fmt.Errorf("failed to ping DB %q: %w", path, err)
	}
	if opt.Schema != "" {
		if _, err = dbx.ExecContext(ctx, opt.Schema); err != nil {
			_ = dbx.Close()
			return nil, fmt.Errorf("failed to apply schema to DB %q: %w", path, err)
		}
	}

	return &DB{
		sem: semaphore.NewWeighted(1),
		dbx: dbx,
	}, nil
}

func (db *DB) Close() error {
	_ = db.sem.Acquire(context.Background(), 1)
	defer db.sem.Release(1)
	return db.dbx.Close()
}

// Check verifies database integrity, runs in O(N log N) of database size.
func (db *DB) Check(ctx context.Context) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer db.sem.Release(1)

	var result string
	if err := db.dbx.GetContext(ctx, &result, "PRAGMA integrity_check"); err != nil {
		return err
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// Tx executes fn in a transaction. DB is locked for the whole duration of fn.
func (db *DB) Tx(ctx context.Context, fn func(*Tx) error) error {
	if err := db.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer db.sem.Release(1)

	txx, err := db.dbx.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = txx.Rollback() }()

	tx := &Tx{
		ctx:  ctx,
		txx:  txx,
		stmt: map[string]*sqlx.Stmt{},
	}
	defer func() {
		for _, stmt := range tx.stmt {
			_ = stmt.Close()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return txx.Commit()
}

func (tx *Tx) Get(dest interface{}, query string, args ...interface{}) (bool, error) {
	stmt, err := prepareLocked(tx.ctx, tx.txx, tx.stmt, query)
	if err != nil {
		return false, err
	}
	return getRow(stmt.GetContext(tx.ctx, dest, args...))
}

func (tx *Tx) Select(dest interface{}, query string, args ...interface{}) error {
	stmt, err := prepareLocked(tx.ctx, tx.txx, tx.stmt, query)
	if err != nil {
		return err
	}
	return stmt.SelectContext(tx.ctx, dest, args...)
}

func (tx *Tx) Exec(query string, args ...interface{}) (int64, error) {
	stmt, err := prepareLocked(tx.ctx, tx.txx, tx.stmt, query)
	if err != nil {
		return 0, err
	}
	return affected(stmt.ExecContext(tx.ctx, args...))
}

func getRow(err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type preparer interface {
	PreparexContext(ctx context.Context, query string) (*sqlx.Stmt, error)
}

func prepareLocked(ctx context.Context, p preparer, cache map[string]*sqlx.Stmt, query string) (*sqlx.Stmt, error) {
	if stmt, ok := cache[query]; ok {
		return stmt, nil
	}
	stmt, err := p.PreparexContext(ctx, query)
	if err != nil {
		return nil, err
	}
	cache[query] = stmt
	return stmt, nil
}
