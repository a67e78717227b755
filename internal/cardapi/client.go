// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package cardapi is a client of the gallery backend batch image endpoint.
package cardapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mailru/easyjson"
	"golang.org/x/time/rate"

	"github.com/VKCOM/cardgallery/internal/vkgo/vkd/logz"
)

const (
	MaxBatchSize = 3 // backend rejects larger batches

	RequestIDHeader = "X-Request-Id"

	maxResponseSize = 64 << 20
	maxErrorBody    = 512
)

var (
	ErrBatchTooLarge     = fmt.Errorf("batch is larger than %d cards", MaxBatchSize)
	ErrMalformedResponse = errors.New("malformed batch response")
)

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL     string
	credentials Credentials
	httpClient  *http.Client
	limiter     *rate.Limiter // shared by all variants using this client
	logger      *logz.Logger
}

func NewClient(baseURL string, credentials Credentials, timeout time.Duration, logger *logz.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		credentials: credentials,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Inf, 1),
		logger:      logger.NewSubsystem("cardapi"),
	}
}

// SetRequestRate caps requests per second of all callers together, zero removes the cap
func (c *Client) SetRequestRate(perSecond float64) {
	if perSecond <= 0 {
		c.limiter.SetLimit(rate.Inf)
		return
	}
	c.limiter.SetLimit(rate.Limit(perSecond))
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchImages requests images of up to MaxBatchSize cards in one call.
// Result contains decoded image bytes of requested cards present in response,
// first occurrence wins for duplicated cards.
func (c *Client) FetchImages(ctx context.Context, variant string, ids []int64) (map[int64][]byte, error) {
	if len(ids) == 0 {
		return map[int64][]byte{}, nil
	}
	if len(ids) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	body, err := easyjson.Marshal(BatchImagesRequest{CardIDs: ids})
	if err != nil {
		return nil, err
	}
	var resp BatchImagesResponse
	if err = c.doRequest(ctx, http.MethodPost, BatchImagesPath, url.Values{VariantParam: {variant}}, bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	requested := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		requested[id] = struct{}{}
	}
	result := make(map[int64][]byte, len(ids))
	for _, img := range resp.Images {
		if _, ok := requested[img.CardID]; !ok {
			c.logger.Debug("ignoring image of card not requested", logz.Int64("card_id", img.CardID))
			continue
		}
		if _, ok := result[img.CardID]; ok {
			continue
		}
		data, err := DecodeImageData(img.ImageData)
		if err != nil {
			// card stays absent from result and is reported failed by caller
			c.logger.Debug("bad image data", logz.Int64("card_id", img.CardID), logz.Err(err))
			continue
		}
		result[img.CardID] = data
	}
	return result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, body io.Reader, result easyjson.Unmarshaler) error {
	token, err := c.credentials.Token(ctx)
	if err != nil {
		return err
	}
	if err = c.limiter.Wait(ctx); err != nil {
		return err
	}
	reqURL := c.baseURL + path
	if params != nil {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return err
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(RequestIDHeader, requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response of request %s: %w", requestID, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if len(respBody) > maxErrorBody {
			respBody = respBody[:maxErrorBody]
		}
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if err = easyjson.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("%w (request %s): %v", ErrMalformedResponse, requestID, err)
	}
	return nil
}

// DecodeImageData accepts plain base64 or data URL with base64 payload
func DecodeImageData(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, errors.New("data URL without payload")
		}
		if !strings.HasSuffix(s[:comma], ";base64") {
			return nil, errors.New("data URL is not base64 encoded")
		}
		s = s[comma+1:]
	}
	if s == "" {
		return nil, errors.New("empty image data")
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// some encoders drop padding
		if data, err2 := base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err2 == nil {
			return data, nil
		}
		return nil, err
	}
	return data, nil
}
