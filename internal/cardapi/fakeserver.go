// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardapi

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mailru/easyjson"
	"pgregory.net/rand"
)

type FakeRequest struct {
	Variant   string
	CardIDs   []int64
	RequestID string
}

// FakeServer imitates batch image endpoint for tests and local runs.
// Images are generated placeholders unless Images is set.
type FakeServer struct {
	Token string // required bearer token, any token accepted if empty
	// Images returns image of card, false means card is omitted from response
	Images   func(variant string, id int64) ([]byte, bool)
	DropRate float64 // probability of card being omitted from response
	Delay    time.Duration
	DataURL  bool

	mu       sync.Mutex
	rng      *rand.Rand
	requests []FakeRequest
}

func NewFakeServer(token string, seed uint64) *FakeServer {
	return &FakeServer{Token: token, rng: rand.New(seed)}
}

func (s *FakeServer) Requests() []FakeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FakeRequest(nil), s.requests...)
}

func (s *FakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != BatchImagesPath {
		http.NotFound(w, r)
		return
	}
	if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req BatchImagesRequest
	if err = easyjson.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	variant := r.URL.Query().Get(VariantParam)

	s.mu.Lock()
	s.requests = append(s.requests, FakeRequest{Variant: variant, CardIDs: req.CardIDs, RequestID: r.Header.Get(RequestIDHeader)})
	drops := make([]bool, len(req.CardIDs))
	for i := range drops {
		drops[i] = s.DropRate > 0 && s.rng != nil && s.rng.Float64() < s.DropRate
	}
	s.mu.Unlock()

	if len(req.CardIDs) > MaxBatchSize {
		http.Error(w, "too many card ids", http.StatusRequestEntityTooLarge)
		return
	}
	if s.Delay > 0 {
		time.Sleep(s.Delay)
	}

	resp := BatchImagesResponse{Images: []BatchImage{}}
	for i, id := range req.CardIDs {
		if drops[i] {
			continue
		}
		var data []byte
		if s.Images != nil {
			var ok bool
			if data, ok = s.Images(variant, id); !ok {
				continue
			}
		} else {
			data = PlaceholderPNG(variant, id)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		if s.DataURL {
			encoded = "data:image/png;base64," + encoded
		}
		resp.Images = append(resp.Images, BatchImage{CardID: id, ImageData: encoded})
	}
	out, err := easyjson.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(out)
}

// PlaceholderPNG draws solid image with color derived from card id, full variant is larger
func PlaceholderPNG(variant string, id int64) []byte {
	w, h := 16, 22
	if strings.EqualFold(variant, "full") {
		w, h = 64, 88
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	c := color.RGBA{R: uint8(id * 37), G: uint8(id * 101), B: uint8(id * 173), A: 0xff}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}
