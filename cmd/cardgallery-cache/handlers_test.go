// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/VKCOM/cardgallery/internal/cardapi"
	"github.com/VKCOM/cardgallery/internal/cardcache"
	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const testToken = "handler-test-token"

type testEnv struct {
	h      *handler
	router *mux.Router
	fake   *cardapi.FakeServer
}

func newTestEnv(t *testing.T, variants ...cardcache.Variant) *testEnv {
	fake := cardapi.NewFakeServer(testToken, 7)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	client := cardapi.NewClient(srv.URL, cardapi.NewBearerToken(testToken), 5*time.Second, logz.NewNop())

	cfg := cardcache.DefaultConfig()
	cfg.Debounce = time.Millisecond
	cfg.InterBatchDelay = time.Millisecond
	cfg.OverscanRows = 0
	durable := cardcache.OpenDurableStore(context.Background(), nil, cardcache.DurableOptions{}, logz.NewNop())
	h := &handler{
		caches:    map[cardcache.Variant]*cardcache.Cache{},
		ephemeral: cardcache.NewEphemeralStore(time.Hour),
		durable:   durable,
		logger:    logz.NewNop(),
	}
	for _, v := range variants {
		c := cardcache.New(v, cfg, h.ephemeral, durable, client, logz.NewNop())
		t.Cleanup(c.Close)
		h.caches[v] = c
	}
	return &testEnv{h: h, router: newRouter(h), fake: fake}
}

func (e *testEnv) do(method string, target string, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func (e *testEnv) waitIdle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, c := range e.h.caches {
		require.NoError(t, c.WaitIdle(ctx))
	}
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data interface{}) string {
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var resp struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	if data != nil && resp.Error == "" {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.Error
}

const testListing = `{"cards":[{"id":1},{"id":2},{"id":3},{"id":4,"image_updated_at":"v4"},{"id":5},{"id":6}]}`

func TestHandlerLoadVisibleCards(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)

	w := e.do("PUT", "/cards", testListing)
	require.Equal(t, http.StatusOK, w.Code)
	var count int
	require.Empty(t, decodeResponse(t, w, &count))
	require.Equal(t, 6, count)

	w = e.do("POST", "/visible/thumb?start=0&end=1&columns=3", "")
	require.Equal(t, http.StatusOK, w.Code)
	e.waitIdle(t)

	reqs := e.fake.Requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		require.Len(t, r.CardIDs, cardapi.MaxBatchSize)
	}

	w = e.do("GET", "/cards/4/thumb", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "image/png", w.Header().Get("Content-Type"))
	require.Equal(t, "resolved", w.Header().Get(cardStateHeader))
	require.Equal(t, cardapi.PlaceholderPNG("thumb", 4), w.Body.Bytes())

	w = e.do("GET", "/cards/4/thumb/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st cardState
	require.Empty(t, decodeResponse(t, w, &st))
	want := cardState{CardID: 4, Variant: "thumb", State: "resolved", Version: "v4", Cached: true}
	require.Empty(t, cmp.Diff(want, st))
}

func TestHandlerImageNotCached(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)
	e.do("PUT", "/cards", testListing)

	w := e.do("GET", "/cards/2/thumb", "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "unrequested", w.Header().Get(cardStateHeader))
	require.NotEmpty(t, decodeResponse(t, w, nil))
	require.Empty(t, e.fake.Requests())
}

func TestHandlerCardVisible(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantFull)
	e.do("PUT", "/cards", testListing)

	w := e.do("POST", "/cards/5/full/visible", "")
	require.Equal(t, http.StatusOK, w.Code)
	e.waitIdle(t)

	reqs := e.fake.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, []int64{5}, reqs[0].CardIDs)
	require.Equal(t, "full", reqs[0].Variant)

	w = e.do("HEAD", "/cards/5/full", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Body.Bytes())
}

func TestHandlerRetryFailed(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)
	var broken atomic.Bool
	broken.Store(true)
	e.fake.Images = func(variant string, id int64) ([]byte, bool) {
		if broken.Load() {
			return nil, false
		}
		return cardapi.PlaceholderPNG(variant, id), true
	}
	e.do("PUT", "/cards", testListing)
	e.do("POST", "/cards/3/thumb/visible", "")
	e.waitIdle(t)

	var st cardState
	require.Empty(t, decodeResponse(t, e.do("GET", "/cards/3/thumb/state", ""), &st))
	require.Equal(t, "failed", st.State)

	broken.Store(false)
	w := e.do("POST", "/cards/3/thumb/retry", "")
	require.Equal(t, http.StatusOK, w.Code)
	e.waitIdle(t)
	require.Empty(t, decodeResponse(t, e.do("GET", "/cards/3/thumb/state", ""), &st))
	require.Equal(t, "resolved", st.State)
	require.Len(t, e.fake.Requests(), 2)
}

func TestHandlerDeleteImage(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)
	e.do("PUT", "/cards", testListing)
	e.do("POST", "/cards/5/thumb/visible", "")
	e.waitIdle(t)
	require.Equal(t, http.StatusOK, e.do("GET", "/cards/5/thumb", "").Code)

	w := e.do("DELETE", "/cards/5/thumb", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, decodeResponse(t, w, nil))
	e.waitIdle(t)

	// still visible, so fetched again
	require.Len(t, e.fake.Requests(), 2)
	require.Equal(t, http.StatusOK, e.do("GET", "/cards/5/thumb", "").Code)
}

func TestHandlerBadRequests(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)
	for _, tc := range []struct {
		method string
		target string
		body   string
		code   int
	}{
		{"GET", "/cards/1/medium", "", http.StatusBadRequest},
		{"GET", "/cards/1/full", "", http.StatusNotFound},
		{"GET", "/cards/x/thumb", "", http.StatusBadRequest},
		{"POST", "/visible/thumb?start=0&end=1&columns=0", "", http.StatusBadRequest},
		{"POST", "/visible/thumb?start=3&end=1&columns=4", "", http.StatusBadRequest},
		{"POST", "/visible/thumb?end=1&columns=4", "", http.StatusBadRequest},
		{"POST", "/cards/1/thumb/visible?visible=maybe", "", http.StatusBadRequest},
		{"PUT", "/cards", `{"cards":[{"image_updated_at":"v"}]}`, http.StatusBadRequest},
		{"PUT", "/cards", `[1,2]`, http.StatusBadRequest},
	} {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			w := e.do(tc.method, tc.target, tc.body)
			require.Equal(t, tc.code, w.Code)
			require.NotEmpty(t, decodeResponse(t, w, nil))
		})
	}
	require.Empty(t, e.fake.Requests())
}

func TestHandlerDebug(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb, cardcache.VariantFull)
	e.do("PUT", "/cards", testListing)
	e.do("POST", "/visible/full?start=0&end=0&columns=2", "")
	e.waitIdle(t)
	e.do("GET", "/cards/1/full", "")

	w := e.do("GET", "/debug/cardcache", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info debugInfo
	require.Empty(t, decodeResponse(t, w, &info))
	require.False(t, info.Durable.Available)
	require.Zero(t, info.Durable.DiskBytes)
	require.Equal(t, 2, info.EphemeralItems)
	require.Len(t, info.Variants, 2)
	full := info.Variants["full"]
	require.Equal(t, "idle", full.Scheduler)
	require.Equal(t, 2, full.Load["resolved"])
	require.Equal(t, int64(1), full.Stats.Batches)
	require.Equal(t, int64(1), full.Stats.EphemeralHits)
	require.Equal(t, int64(0), info.Variants["thumb"].Stats.Batches)
}

func TestLoadCardListing(t *testing.T) {
	cards, err := loadCardListing("")
	require.NoError(t, err)
	require.Empty(t, cards)

	path := filepath.Join(t.TempDir(), "cards.json")
	require.NoError(t, os.WriteFile(path, []byte(testListing), 0o600))
	cards, err = loadCardListing(path)
	require.NoError(t, err)
	require.Len(t, cards, 6)
	require.Equal(t, cardcache.Card{ID: 4, ImageUpdatedAt: "v4"}, cards[3])

	_, err = loadCardListing(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	e := newTestEnv(t, cardcache.VariantThumb)
	cfg := cardcache.DefaultConfig()
	cfg.DurableBudget = 1 << 20
	cfg.BatchLimit = 1
	cfg.Debounce = time.Millisecond
	cfg.InterBatchDelay = time.Millisecond
	cfg.OverscanRows = 0
	applyConfig(e.h, cfg)
	require.Equal(t, int64(1<<20), e.h.durable.Stats().BudgetBytes)

	e.do("PUT", "/cards", testListing)
	e.do("POST", "/visible/thumb?start=0&end=0&columns=3", "")
	e.waitIdle(t)
	reqs := e.fake.Requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		require.Len(t, r.CardIDs, 1)
	}
}
