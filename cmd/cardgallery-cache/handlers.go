// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mailru/easyjson"

	"github.com/VKCOM/cardgallery/internal/cardapi"
	"github.com/VKCOM/cardgallery/internal/cardcache"
	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const (
	cardStateHeader = "X-Card-State"

	maxListingSize = 16 << 20
)

// handler is the local surface used by the gallery UI process
type handler struct {
	caches    map[cardcache.Variant]*cardcache.Cache
	ephemeral *cardcache.EphemeralStore
	durable   *cardcache.DurableStore
	logger    *logz.Logger
}

func newRouter(h *handler) *mux.Router {
	m := mux.NewRouter()
	m.Path("/cards").Methods("PUT").HandlerFunc(h.handlePutCards)
	m.Path("/cards/{id}/{variant}").Methods("GET", "HEAD").HandlerFunc(h.handleGetImage)
	m.Path("/cards/{id}/{variant}").Methods("DELETE").HandlerFunc(h.handleDeleteImage)
	m.Path("/cards/{id}/{variant}/state").Methods("GET").HandlerFunc(h.handleGetState)
	m.Path("/cards/{id}/{variant}/visible").Methods("POST").HandlerFunc(h.handlePostCardVisible)
	m.Path("/cards/{id}/{variant}/retry").Methods("POST").HandlerFunc(h.handlePostRetry)
	m.Path("/visible/{variant}").Methods("POST").HandlerFunc(h.handlePostVisibleRange)
	m.Path("/debug/cardcache").Methods("GET").HandlerFunc(h.handleGetDebug)
	return m
}

func (h *handler) cardRequest(r *http.Request) (*cardcache.Cache, cardcache.CardID, error) {
	vars := mux.Vars(r)
	c, err := h.variantCache(vars["variant"])
	if err != nil {
		return nil, 0, err
	}
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return nil, 0, badRequest(fmt.Errorf("invalid card id %q", vars["id"]))
	}
	return c, id, nil
}

func (h *handler) variantCache(s string) (*cardcache.Cache, error) {
	v, err := cardcache.ParseVariant(s)
	if err != nil {
		return nil, badRequest(err)
	}
	c, ok := h.caches[v]
	if !ok {
		return nil, notFound(fmt.Errorf("variant %v is not served", v))
	}
	return c, nil
}

func (h *handler) stateOf(c *cardcache.Cache, id cardcache.CardID, cached bool) cardState {
	return cardState{
		CardID:  id,
		Variant: c.Variant().String(),
		State:   c.State(id).String(),
		Version: c.CardVersion(id),
		Cached:  cached,
	}
}

func (h *handler) handleGetImage(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.cardRequest(r)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	payload, ok := c.GetImage(id)
	w.Header().Set(cardStateHeader, c.State(id).String())
	if !ok {
		respondJSON(w, nil, notFound(fmt.Errorf("card %d image is not cached", id)))
		return
	}
	w.Header().Set("Content-Type", http.DetectContentType(payload))
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(payload); err != nil {
		h.logger.Debug("failed to write image", logz.Int64("card_id", id), logz.Err(err))
	}
}

func (h *handler) handleGetState(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.cardRequest(r)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	_, cached := c.GetImage(id)
	respondJSON(w, h.stateOf(c, id, cached), nil)
}

func (h *handler) handlePostCardVisible(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.cardRequest(r)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	visible := true
	if s := r.FormValue("visible"); s != "" {
		if visible, err = strconv.ParseBool(s); err != nil {
			respondJSON(w, nil, badRequest(fmt.Errorf("invalid visible %q", s)))
			return
		}
	}
	c.SetCardVisible(id, visible)
	respondJSON(w, h.stateOf(c, id, false), nil)
}

func (h *handler) handlePostRetry(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.cardRequest(r)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	c.Retry(id)
	respondJSON(w, h.stateOf(c, id, false), nil)
}

func (h *handler) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	c, id, err := h.cardRequest(r)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	if err = c.Invalidate(id); err != nil {
		respondJSON(w, nil, err)
		return
	}
	respondJSON(w, h.stateOf(c, id, false), nil)
}

func formInt(r *http.Request, name string, least int) (int, error) {
	s := r.FormValue(name)
	v, err := strconv.Atoi(s)
	if err != nil || v < least {
		return 0, badRequest(fmt.Errorf("invalid %s %q, integer >= %d expected", name, s, least))
	}
	return v, nil
}

// handlePostVisibleRange takes rows of the grid viewport, end row is inclusive
func (h *handler) handlePostVisibleRange(w http.ResponseWriter, r *http.Request) {
	c, err := h.variantCache(mux.Vars(r)["variant"])
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	start, err := formInt(r, "start", 0)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	end, err := formInt(r, "end", start)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	columns, err := formInt(r, "columns", 1)
	if err != nil {
		respondJSON(w, nil, err)
		return
	}
	c.SetVisibleRange(start, end, columns)
	respondJSON(w, c.SchedulerState(), nil)
}

func (h *handler) handlePutCards(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxListingSize))
	if err != nil {
		respondJSON(w, nil, badRequest(err))
		return
	}
	var listing cardapi.CardListing
	if err = easyjson.Unmarshal(body, &listing); err != nil {
		respondJSON(w, nil, badRequest(fmt.Errorf("invalid card listing: %w", err)))
		return
	}
	cards := listingCards(listing)
	for _, c := range h.caches {
		c.SetCards(cards)
	}
	h.logger.Info("card listing replaced", logz.Int("cards", len(cards)))
	respondJSON(w, len(cards), nil)
}

func (h *handler) handleGetDebug(w http.ResponseWriter, _ *http.Request) {
	info := debugInfo{
		Durable:        h.durable.Stats(),
		EphemeralItems: h.ephemeral.Len(),
		Variants:       make(map[string]variantDebug, len(h.caches)),
	}
	for v, c := range h.caches {
		info.Variants[v.String()] = variantDebug{
			Scheduler: c.SchedulerState(),
			Load:      c.LoadCounts(),
			Stats:     c.Stats(),
		}
	}
	respondJSON(w, info, nil)
}

func listingCards(listing cardapi.CardListing) []cardcache.Card {
	cards := make([]cardcache.Card, 0, len(listing.Cards))
	for _, lc := range listing.Cards {
		cards = append(cards, cardcache.Card{ID: lc.ID, ImageUpdatedAt: lc.ImageUpdatedAt})
	}
	return cards
}

// loadCardListing reads listing saved by the UI, empty path means no cards yet
func loadCardListing(path string) ([]cardcache.Card, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read card listing %q: %w", path, err)
	}
	var listing cardapi.CardListing
	if err = easyjson.Unmarshal(data, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse card listing %q: %w", path, err)
	}
	return listingCards(listing), nil
}
