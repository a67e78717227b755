// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package build exposes values set by go build -ldflags "-X".
package build

import (
	"fmt"
	"os"
	"path"
	"runtime"
	"strconv"
)

var (
	time            string
	machine         string
	commit          string
	commitTimestamp string
	version         string

	appName              string
	commitTimestampInt64 int64
)

func init() {
	appName = path.Base(os.Args[0])
	commitTimestampInt64, _ = strconv.ParseInt(commitTimestamp, 10, 64)
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func Time() string    { return orUnknown(time) }
func Machine() string { return orUnknown(machine) }
func Commit() string  { return orUnknown(commit) }
func Version() string { return orUnknown(version) }

// CommitTimestamp is UNIX seconds, so stable in any TZ
func CommitTimestamp() int64 {
	return commitTimestampInt64
}

func Info() string {
	return fmt.Sprintf("%s %s (commit %s) compiled at %s by %s on %s", appName, Version(), Commit(), Time(), runtime.Version(), Machine())
}
