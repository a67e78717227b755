// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package main

//go:generate easyjson -no_std_marshalers response.go

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/mailru/easyjson/jwriter"

	"github.com/VKCOM/cardgallery/internal/cardcache"
)

//easyjson:json
type Response struct {
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type cardState struct {
	CardID  int64  `json:"card_id"`
	Variant string `json:"variant"`
	State   string `json:"state"`
	Version string `json:"version,omitempty"`
	Cached  bool   `json:"cached"`
}

type variantDebug struct {
	Scheduler string               `json:"scheduler"`
	Load      map[string]int       `json:"load"`
	Stats     cardcache.CacheStats `json:"stats"`
}

type debugInfo struct {
	Durable        cardcache.DurableStats  `json:"durable"`
	EphemeralItems int                     `json:"ephemeral_items"`
	Variants       map[string]variantDebug `json:"variants"`
}

type httpError struct {
	code int
	err  error
}

func (e *httpError) Error() string {
	return e.err.Error()
}

func (e *httpError) Unwrap() error {
	return e.err
}

func badRequest(err error) error {
	return &httpError{code: http.StatusBadRequest, err: err}
}

func notFound(err error) error {
	return &httpError{code: http.StatusNotFound, err: err}
}

func httpCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var e *httpError
	if errors.As(err, &e) {
		return e.code
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, resp interface{}, err error) {
	code := httpCode(err)
	r := Response{}
	if err != nil {
		if code == http.StatusInternalServerError {
			log.Println("[error]", err.Error())
		}
		r.Error = err.Error()
	} else {
		r.Data = resp
	}
	var jw jwriter.Writer
	r.MarshalEasyJSON(&jw)
	if jw.Error != nil {
		log.Printf("[error] failed to marshal JSON response: %v", jw.Error)
		msg := `{"error": "failed to marshal JSON response"}`
		w.Header().Set("Content-Length", strconv.Itoa(len(msg)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(msg))
		return
	}
	w.Header().Set("Content-Length", strconv.Itoa(jw.Size()))
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)
	if _, err := jw.DumpTo(w); err != nil {
		log.Printf("[error] failed to write HTTP response: %v", err)
	}
}
