// Copyright 2025 V Kontakte LLC
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
)

type stringSlice struct {
	p      *[]string
	wasSet bool
}

func StringSliceVar(f *flag.FlagSet, p *[]string, name string, value string, usage string) {
	*p = parseCSV(value)
	f.Var(&stringSlice{p: p}, name, usage)
}

func (s *stringSlice) Set(v string) error {
	if s.wasSet {
		*s.p = append(*s.p, parseCSV(v)...)
	} else {
		*s.p = parseCSV(v)
		s.wasSet = true
	}
	return nil
}

func (s *stringSlice) String() string {
	if s == nil || s.p == nil || len(*s.p) == 0 {
		return ""
	}
	return fmt.Sprint(*s.p)
}

func parseCSV(s string) []string {
	res := make([]string, 0, 1)
	for i := 0; i < len(s); {
		j := i
		for ; j < len(s) && s[j] != ',' && s[j] != ';'; j++ {
			// pass
		}
		res = append(res, s[i:j])
		i = j + 1
	}
	return res
}

type byteSize struct {
	p *int64
}

// ByteSizeVar accepts plain byte count or number with KB, MB, GB suffix (powers of 1024)
func ByteSizeVar(f *flag.FlagSet, p *int64, name string, value int64, usage string) {
	*p = value
	f.Var(&byteSize{p: p}, name, usage)
}

func (b *byteSize) Set(v string) error {
	n, err := ParseByteSize(v)
	if err != nil {
		return err
	}
	*b.p = n
	return nil
}

func (b *byteSize) String() string {
	if b == nil || b.p == nil {
		return "0"
	}
	return FormatByteSize(*b.p)
}

func ParseByteSize(s string) (int64, error) {
	t := strings.ToUpper(strings.TrimSpace(s))
	mult := int64(1)
	for _, suffix := range []struct {
		s string
		m int64
	}{{"GB", 1 << 30}, {"MB", 1 << 20}, {"KB", 1 << 10}, {"B", 1}} {
		if strings.HasSuffix(t, suffix.s) {
			t = strings.TrimSpace(strings.TrimSuffix(t, suffix.s))
			mult = suffix.m
			break
		}
	}
	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid byte size %q", s)
	}
	return n * mult, nil
}

func FormatByteSize(n int64) string {
	switch {
	case n != 0 && n%(1<<30) == 0:
		return strconv.FormatInt(n>>30, 10) + "GB"
	case n != 0 && n%(1<<20) == 0:
		return strconv.FormatInt(n>>20, 10) + "MB"
	case n != 0 && n%(1<<10) == 0:
		return strconv.FormatInt(n>>10, 10) + "KB"
	}
	return strconv.FormatInt(n, 10)
}
