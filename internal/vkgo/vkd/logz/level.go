// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package logz

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below debug and is used for per-card decisions of the
// scheduler, which are far too chatty for debug.
const TraceLevel = zapcore.DebugLevel - 1

type Level = zap.AtomicLevel

func ParseLevel(level string) (Level, error) {
	lvl := zap.NewAtomicLevel()
	if err := SetLevel(lvl, level); err != nil {
		return lvl, err
	}
	return lvl, nil
}

// SetLevel changes lvl in place, so loggers already built from it follow.
func SetLevel(lvl Level, level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "trace" {
		lvl.SetLevel(TraceLevel)
		return nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("error unmarshaling logger level type %q: %w", level, err)
	}
	lvl.SetLevel(l)
	return nil
}

func capitalLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == TraceLevel {
		enc.AppendString("TRACE")
		return
	}
	zapcore.CapitalLevelEncoder(level, enc)
}

func lowerCaseLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	if level == TraceLevel {
		enc.AppendString("trace")
		return
	}
	zapcore.LowercaseLevelEncoder(level, enc)
}
