// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

type CardID = int64

type Variant uint8

const (
	VariantThumb Variant = iota
	VariantFull
)

var (
	ErrStorageUnavailable = errors.New("persistent card image cache is unavailable")
	ErrEntryTooLarge      = errors.New("card image is larger than persistent cache budget")
)

func (v Variant) String() string {
	switch v {
	case VariantThumb:
		return "thumb"
	case VariantFull:
		return "full"
	default:
		return "variant" + strconv.Itoa(int(v))
	}
}

func ParseVariant(s string) (Variant, error) {
	switch s {
	case "thumb":
		return VariantThumb, nil
	case "full":
		return VariantFull, nil
	}
	return 0, fmt.Errorf("unknown image variant %q, must be thumb or full", s)
}

// evictionRank orders variants for eviction, all full images go before any thumbnail
func evictionRank(v Variant) int {
	if v == VariantFull {
		return 0
	}
	return 1
}

type Key struct {
	Variant Variant
	CardID  CardID
}

func (k Key) String() string {
	return k.Variant.String() + ":" + strconv.FormatInt(k.CardID, 10)
}

// EntryMeta is everything we know about stored image except payload.
// Empty SourceVersion means image was stored without version and is fresh once present.
type EntryMeta struct {
	Key
	SourceVersion  string
	SizeBytes      int64
	CachedAt       time.Time
	LastAccessedAt time.Time
}

type Entry struct {
	EntryMeta
	Payload []byte
}

type LoadState uint8

const (
	LoadUnrequested LoadState = iota
	LoadLoading
	LoadFailed
	LoadResolved
)

func (s LoadState) String() string {
	switch s {
	case LoadUnrequested:
		return "unrequested"
	case LoadLoading:
		return "loading"
	case LoadFailed:
		return "failed"
	case LoadResolved:
		return "resolved"
	default:
		return "state" + strconv.Itoa(int(s))
	}
}

type LookupResult uint8

const (
	LookupMiss LookupResult = iota
	LookupHit
	LookupStale
)

func (r LookupResult) String() string {
	switch r {
	case LookupHit:
		return "hit"
	case LookupStale:
		return "stale"
	default:
		return "miss"
	}
}

// versionStale applies strict policy: when server supplies version, cached one must match exactly,
// including the case when nothing was cached.
func versionStale(cached string, server string) bool {
	return server != "" && cached != server
}
