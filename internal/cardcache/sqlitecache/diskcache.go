// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package sqlitecache

import (
	"context"
	"errors"
	"os"
	"time"

	"go.uber.org/multierr"

	"github.com/VKCOM/cardgallery/internal/cardcache"
	"github.com/VKCOM/cardgallery/internal/vkgo/easydb"
)

const (
	DefaultTxDuration = time.Second

	cacheBusyTimeout = 5 * time.Second

	diskCacheSchema = /* language=SQLite */ `
CREATE TABLE IF NOT EXISTS card_images (
    namespace        TEXT NOT NULL,
    variant          TEXT NOT NULL,
    card_id          INTEGER NOT NULL,
    payload          BLOB NOT NULL,
    source_version   TEXT NOT NULL,
    cached_at        INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    size_bytes       INTEGER NOT NULL,
    PRIMARY KEY (namespace, variant, card_id)
) WITHOUT ROWID;
`
	selectQuery = /* language=SQLite */ `
SELECT payload FROM card_images WHERE namespace=? AND variant=? AND card_id=?
`
	listQuery = /* language=SQLite */ `
SELECT variant, card_id, source_version, cached_at, last_accessed_at, size_bytes FROM card_images WHERE namespace=?
`
	updateQuery = /* language=SQLite */ `
REPLACE INTO card_images (namespace, variant, card_id, payload, source_version, cached_at, last_accessed_at, size_bytes) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`
	touchQuery = /* language=SQLite */ `
UPDATE card_images SET last_accessed_at=? WHERE namespace=? AND variant=? AND card_id=?
`
	eraseQuery = /* language=SQLite */ `
DELETE FROM card_images WHERE namespace=? AND variant=? AND card_id=?
`
)

var (
	errDiskCacheClosed = errors.New("disk cache closed")
)

type readResult struct {
	payload []byte
	found   bool
	err     error
}

type diskRead struct {
	ns  string
	key cardcache.Key
	ret chan readResult
}

type writeKind uint8

const (
	writeSet writeKind = iota
	writeTouch
	writeErase
)

type writeResult struct {
	affected int64
	err      error
}

type diskWrite struct {
	kind  writeKind
	ns    string
	entry cardcache.Entry // only Key and LastAccessedAt are used by touch and erase
	ret   chan writeResult
}

type listResult struct {
	value []cardcache.EntryMeta
	err   error
}

type diskList struct {
	ns  string
	ret chan listResult
}

type metaRow struct {
	Variant        string `db:"variant"`
	CardID         int64  `db:"card_id"`
	SourceVersion  string `db:"source_version"`
	CachedAt       int64  `db:"cached_at"`
	LastAccessedAt int64  `db:"last_accessed_at"`
	SizeBytes      int64  `db:"size_bytes"`
}

type Options struct {
	// TxDuration bounds how long writes stay uncommitted, crash loses at most that much.
	TxDuration time.Duration
	WAL        bool
}

// SqliteDiskCache implements cardcache.DiskCache using SQLite as backend.
// All operations are executed by a single goroutine inside long transactions.
type SqliteDiskCache struct {
	db         *easydb.DB
	filePath   string
	txDuration time.Duration
	r          chan diskRead
	w          chan diskWrite
	l          chan diskList
	closed     chan struct{}
	runErr     chan error
}

var (
	_ cardcache.DiskCache = (*SqliteDiskCache)(nil)
	_ cardcache.DiskSizer = (*SqliteDiskCache)(nil)
)

func OpenSqliteDiskCache(ctx context.Context, cacheFilename string, opt Options) (*SqliteDiskCache, error) {
	if opt.TxDuration <= 0 {
		opt.TxDuration = DefaultTxDuration
	}
	db, err := easydb.Open(ctx, cacheFilename, easydb.Options{
		BusyTimeout: cacheBusyTimeout,
		Schema:      diskCacheSchema,
		WAL:         opt.WAL,
	})
	if err != nil {
		return nil, err
	}
	if err = db.Check(ctx); err != nil {
		return nil, multierr.Append(err, db.Close())
	}

	dc := &SqliteDiskCache{
		db:         db,
		filePath:   cacheFilename,
		txDuration: opt.TxDuration,
		r:          make(chan diskRead),
		w:          make(chan diskWrite),
		l:          make(chan diskList),
		closed:     make(chan struct{}),
		runErr:     make(chan error),
	}

	go func() {
		dc.runErr <- dc.run()
	}()

	return dc, nil
}

// Opener adapts OpenSqliteDiskCache for cardcache.OpenDurableStore.
func Opener(cacheFilename string, opt Options) cardcache.DiskCacheOpener {
	return func(ctx context.Context) (cardcache.DiskCache, error) {
		return OpenSqliteDiskCache(ctx, cacheFilename, opt)
	}
}

func (dc *SqliteDiskCache) DiskSizeBytes() (int64, error) {
	fi, err := os.Stat(dc.filePath)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

func (dc *SqliteDiskCache) Close() error {
	close(dc.closed)
	runErr := <-dc.runErr // last transaction is committed before run exits
	closeErr := dc.db.Close()
	return multierr.Append(closeErr, runErr)
}

func (dc *SqliteDiskCache) Get(ns string, key cardcache.Key) ([]byte, bool, error) {
	ch := make(chan readResult)
	select {
	case dc.r <- diskRead{ns: ns, key: key, ret: ch}:
		ret := <-ch
		return ret.payload, ret.found, ret.err
	case <-dc.closed:
		return nil, false, errDiskCacheClosed
	}
}

func (dc *SqliteDiskCache) Set(ns string, e cardcache.Entry) error {
	_, err := dc.write(diskWrite{kind: writeSet, ns: ns, entry: e})
	return err
}

func (dc *SqliteDiskCache) Touch(ns string, key cardcache.Key, accessedAt time.Time) (bool, error) {
	var e cardcache.Entry
	e.Key = key
	e.LastAccessedAt = accessedAt
	n, err := dc.write(diskWrite{kind: writeTouch, ns: ns, entry: e})
	return n > 0, err
}

func (dc *SqliteDiskCache) Erase(ns string, key cardcache.Key) error {
	var e cardcache.Entry
	e.Key = key
	_, err := dc.write(diskWrite{kind: writeErase, ns: ns, entry: e})
	return err
}

func (dc *SqliteDiskCache) List(ns string) ([]cardcache.EntryMeta, error) {
	ch := make(chan listResult)
	select {
	case dc.l <- diskList{ns: ns, ret: ch}:
		ret := <-ch
		return ret.value, ret.err
	case <-dc.closed:
		return nil, errDiskCacheClosed
	}
}

func (dc *SqliteDiskCache) write(w diskWrite) (int64, error) {
	w.ret = make(chan writeResult)
	select {
	case dc.w <- w:
		ret := <-w.ret
		return ret.affected, ret.err
	case <-dc.closed:
		return 0, errDiskCacheClosed
	}
}

func (dc *SqliteDiskCache) run() error {
	for {
		err := dc.tx()
		if err != nil {
			// After tx error, reply to all channels with errors for some duration
			// So that callers are not deadlocked
			dc.noTx(err)
		}
		select {
		case <-dc.closed:
			return err
		default:
		}
	}
}

func (dc *SqliteDiskCache) noTx(lastError error) {
	t := time.NewTimer(dc.txDuration) // Keep it simple, cool down equals to normal transaction duration
	defer t.Stop()
	for {
		select {
		case <-t.C:
			return
		case <-dc.closed:
			return
		case r := <-dc.r:
			r.ret <- readResult{err: lastError}
		case w := <-dc.w:
			w.ret <- writeResult{err: lastError}
		case l := <-dc.l:
			l.ret <- listResult{err: lastError}
		}
	}
}

func (dc *SqliteDiskCache) tx() error {
	t := time.NewTimer(dc.txDuration)
	defer t.Stop()

	return dc.db.Tx(context.Background(), // we don't want to interrupt DB operations
		func(tx *easydb.Tx) error {
			for {
				select {
				case <-t.C:
					return nil
				case <-dc.closed:
					return nil
				case r := <-dc.r:
					var v readResult
					v.found, v.err = tx.Get(&v.payload, selectQuery, r.ns, r.key.Variant.String(), r.key.CardID)
					r.ret <- v
					if v.err != nil {
						return v.err
					}
				case w := <-dc.w:
					var v writeResult
					e := w.entry
					switch w.kind {
					case writeErase:
						v.affected, v.err = tx.Exec(eraseQuery, w.ns, e.Variant.String(), e.CardID)
					case writeTouch:
						v.affected, v.err = tx.Exec(touchQuery, e.LastAccessedAt.UnixNano(), w.ns, e.Variant.String(), e.CardID)
					default:
						payload := e.Payload
						if payload == nil {
							payload = []byte{} // avoid triggering NOT NULL constraint
						}
						v.affected, v.err = tx.Exec(updateQuery, w.ns, e.Variant.String(), e.CardID, payload,
							e.SourceVersion, e.CachedAt.UnixNano(), e.LastAccessedAt.UnixNano(), int64(len(payload)))
					}
					w.ret <- v
					if v.err != nil {
						return v.err
					}
				case l := <-dc.l:
					v := dc.list(tx, l.ns)
					l.ret <- v
					if v.err != nil {
						return v.err
					}
				}
			}
		})
}

func (dc *SqliteDiskCache) list(tx *easydb.Tx, ns string) listResult {
	var rows []metaRow
	if err := tx.Select(&rows, listQuery, ns); err != nil {
		return listResult{err: err}
	}
	value := make([]cardcache.EntryMeta, 0, len(rows))
	for _, row := range rows {
		variant, err := cardcache.ParseVariant(row.Variant)
		if err != nil {
			continue // written by newer version, invisible to us
		}
		value = append(value, cardcache.EntryMeta{
			Key:            cardcache.Key{Variant: variant, CardID: row.CardID},
			SourceVersion:  row.SourceVersion,
			SizeBytes:      row.SizeBytes,
			CachedAt:       time.Unix(0, row.CachedAt),
			LastAccessedAt: time.Unix(0, row.LastAccessedAt),
		})
	}
	return listResult{value: value}
}
