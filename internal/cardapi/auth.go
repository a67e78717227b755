// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package cardapi

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zeebo/xxh3"
)

var (
	ErrNoToken      = errors.New("no bearer token")
	ErrTokenExpired = errors.New("bearer token expired")
)

type Credentials interface {
	Token(ctx context.Context) (string, error)
}

// BearerToken is issued by the gallery backend. Signature is checked by the backend,
// we only read claims to fail early on expiry and to separate caches of different users.
// Opaque tokens which are not JWT are passed as is.
type BearerToken struct {
	raw    string
	claims *jwt.RegisteredClaims // nil for opaque token
	now    func() time.Time
}

func NewBearerToken(raw string) *BearerToken {
	t := &BearerToken{raw: strings.TrimSpace(raw), now: time.Now}
	if t.raw == "" {
		return t
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(t.raw, &claims); err == nil {
		t.claims = &claims
	}
	return t
}

func (t *BearerToken) Token(context.Context) (string, error) {
	if t.raw == "" {
		return "", ErrNoToken
	}
	if t.claims != nil && t.claims.ExpiresAt != nil && !t.now().Before(t.claims.ExpiresAt.Time) {
		return "", ErrTokenExpired
	}
	return t.raw, nil
}

func (t *BearerToken) IsJWT() bool {
	return t.claims != nil
}

// Namespace identifies the user owning cached images: JWT subject, or token hash for opaque tokens.
func (t *BearerToken) Namespace() string {
	if t.claims != nil && t.claims.Subject != "" {
		return "sub:" + t.claims.Subject
	}
	if t.raw == "" {
		return "anonymous"
	}
	sum := xxh3.HashString128(t.raw).Bytes()
	return "token:" + hex.EncodeToString(sum[:8])
}
