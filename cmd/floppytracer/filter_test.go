// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import "testing"

func TestParseTrackFilter(t *testing.T) {
	type probe struct {
		cylinder, head int
		want           bool
	}
	cases := []struct {
		spec   string
		probes []probe
	}{
		{"", []probe{{0, 0, true}, {79, 1, true}}},
		{"5", []probe{{5, 0, true}, {5, 1, true}, {4, 0, false}, {6, 0, false}}},
		{"0-9", []probe{{0, 0, true}, {9, 1, true}, {10, 0, false}}},
		{"40-", []probe{{39, 0, false}, {40, 0, true}, {82, 1, true}}},
		{"4:1", []probe{{4, 1, true}, {4, 0, false}}},
		{"0-9:0", []probe{{3, 0, true}, {3, 1, false}}},
		{"0,2,4-6", []probe{{0, 0, true}, {1, 0, false}, {2, 1, true}, {5, 0, true}, {7, 0, false}}},
	}
	for _, c := range cases {
		keep, err := parseTrackFilter(c.spec)
		if err != nil {
			t.Fatalf("parseTrackFilter(%q): %v", c.spec, err)
		}
		for _, p := range c.probes {
			if got := keep(p.cylinder, p.head); got != p.want {
				t.Errorf("filter %q: track %d/%d = %v, want %v",
					c.spec, p.cylinder, p.head, got, p.want)
			}
		}
	}
}

func TestParseTrackFilterRejectsGarbage(t *testing.T) {
	for _, spec := range []string{"x", "-5", "9-3", "4:2", "4:x", ","} {
		if _, err := parseTrackFilter(spec); err == nil {
			t.Errorf("parseTrackFilter(%q) accepted", spec)
		}
	}
}
