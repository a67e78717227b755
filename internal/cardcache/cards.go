// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardcache

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Card is an entry of the card listing. ImageUpdatedAt is opaque version token, may be empty.
type Card struct {
	ID             CardID
	ImageUpdatedAt string
}

// cardSet is immutable, replaced as a whole on every listing update
type cardSet struct {
	ids      []CardID
	versions map[CardID]string
	identity uint64
}

func newCardSet(cards []Card) *cardSet {
	s := &cardSet{
		ids:      make([]CardID, 0, len(cards)),
		versions: make(map[CardID]string, len(cards)),
	}
	h := xxh3.New()
	var buf [8]byte
	for _, c := range cards {
		s.ids = append(s.ids, c.ID)
		s.versions[c.ID] = c.ImageUpdatedAt
		binary.LittleEndian.PutUint64(buf[:], uint64(c.ID))
		_, _ = h.Write(buf[:])
	}
	s.identity = h.Sum64()
	return s
}

func (s *cardSet) version(id CardID) string {
	return s.versions[id]
}

// changedVersions lists cards present in both sets whose version differs
func (s *cardSet) changedVersions(prev *cardSet) []CardID {
	var changed []CardID
	for id, v := range s.versions {
		if old, ok := prev.versions[id]; ok && old != v {
			changed = append(changed, id)
		}
	}
	return changed
}

// visibleIDs returns cards of rows [startRow-overscan, endRow+overscan] in grid order.
// endRow is inclusive.
func (s *cardSet) visibleIDs(startRow, endRow, columns, overscan int) []CardID {
	if columns <= 0 || endRow < startRow || len(s.ids) == 0 {
		return nil
	}
	// compare before adding overscan, rows may be near math.MaxInt
	first := 0
	if startRow > overscan {
		first = startRow - overscan
	}
	last := (len(s.ids) - 1) / columns
	if endRow < last-overscan {
		last = endRow + overscan
	}
	if first > last {
		return nil
	}
	lo := first * columns
	hi := min((last+1)*columns, len(s.ids))
	return s.ids[lo:hi:hi]
}
