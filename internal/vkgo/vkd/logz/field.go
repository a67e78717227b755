// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package logz

import (
	"go.uber.org/zap"
)

type Field = zap.Field

var (
	Bool     = zap.Bool
	Int      = zap.Int
	Int64    = zap.Int64
	Int64s   = zap.Int64s
	String   = zap.String
	Strings  = zap.Strings
	Stringer = zap.Stringer
	Duration = zap.Duration
	Time     = zap.Time
	Any      = zap.Any
	Err      = zap.Error
)
