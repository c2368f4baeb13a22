// Track filter parsing
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parseTrackFilter parses the -t selector: comma-separated items, each a
// cylinder or cylinder range with an optional head suffix. "0-9" selects
// cylinders 0 through 9 on both heads, "40-" everything from cylinder 40 up,
// "4:1" cylinder 4 head 1. An empty selector accepts every track.
func parseTrackFilter(spec string) (func(cylinder, head int) bool, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return func(int, int) bool { return true }, nil
	}

	type rule struct {
		lo, hi int
		head   int // -1 for both
	}
	var rules []rule

	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		r := rule{head: -1}
		if i := strings.IndexByte(item, ':'); i >= 0 {
			h, err := strconv.Atoi(item[i+1:])
			if err != nil || h < 0 || h > 1 {
				return nil, fmt.Errorf("bad head in track filter %q", item)
			}
			r.head = h
			item = item[:i]
		}
		lo, hi, ok := strings.Cut(item, "-")
		var err error
		if r.lo, err = strconv.Atoi(lo); err != nil || r.lo < 0 {
			return nil, fmt.Errorf("bad cylinder in track filter %q", item)
		}
		r.hi = r.lo
		if ok {
			if hi == "" {
				// Open-ended range: everything from lo up.
				r.hi = 255
			} else if r.hi, err = strconv.Atoi(hi); err != nil || r.hi < r.lo {
				return nil, fmt.Errorf("bad range in track filter %q", item)
			}
		}
		rules = append(rules, r)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("empty track filter %q", spec)
	}

	return func(cylinder, head int) bool {
		for _, r := range rules {
			if cylinder >= r.lo && cylinder <= r.hi && (r.head < 0 || r.head == head) {
				return true
			}
		}
		return false
	}, nil
}
