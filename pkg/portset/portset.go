// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package portset holds the ordered port collection a run probes and the
// extractor that derives it from raw discovery output.
package portset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// MinPort is the lowest valid TCP/UDP port.
	MinPort = 1
	// MaxPort is the highest valid TCP/UDP port.
	MaxPort = 65535

	// DefaultSpec is used whenever discovery yields nothing.
	DefaultSpec = "1-1000"
)

// Source records where a PortSet came from.
type Source string

const (
	SourceDiscovered Source = "discovered"
	SourceDefault    Source = "default"
)

// PortSet is an ascending, duplicate-free list of ports.
// The zero value is an empty set.
type PortSet struct {
	ports []int
}

// New builds a PortSet from arbitrary ports, dropping duplicates and
// anything outside 1-65535.
func New(ports ...int) PortSet {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < MinPort || p > MaxPort {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Ints(out)
	return PortSet{ports: out}
}

// Range returns every port in [from, to].
func Range(from, to int) PortSet {
	if from > to {
		from, to = to, from
	}
	if from < MinPort {
		from = MinPort
	}
	if to > MaxPort {
		to = MaxPort
	}
	ports := make([]int, 0, to-from+1)
	for p := from; p <= to; p++ {
		ports = append(ports, p)
	}
	return PortSet{ports: ports}
}

// Default returns the 1-1000 fallback range.
func Default() PortSet {
	return Range(1, 1000)
}

// ParseSpec parses port specs like "22,80,443", "1-1024" or "22,8000-8100".
func ParseSpec(spec string) (PortSet, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return PortSet{}, fmt.Errorf("empty port spec")
	}

	var ports []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if lo, hi, found := strings.Cut(part, "-"); found {
			start, err := parsePort(lo)
			if err != nil {
				return PortSet{}, fmt.Errorf("invalid range %q: %w", part, err)
			}
			end, err := parsePort(hi)
			if err != nil {
				return PortSet{}, fmt.Errorf("invalid range %q: %w", part, err)
			}
			if start > end {
				return PortSet{}, fmt.Errorf("invalid range %q: start is greater than end", part)
			}
			for p := start; p <= end; p++ {
				ports = append(ports, p)
			}
			continue
		}
		p, err := parsePort(part)
		if err != nil {
			return PortSet{}, err
		}
		ports = append(ports, p)
	}

	set := New(ports...)
	if set.Len() == 0 {
		return PortSet{}, fmt.Errorf("port spec %q contains no ports", spec)
	}
	return set, nil
}

func parsePort(s string) (int, error) {
	p, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	if p < MinPort || p > MaxPort {
		return 0, fmt.Errorf("port %d out of range %d-%d", p, MinPort, MaxPort)
	}
	return p, nil
}

// Ports returns a copy of the ports in ascending order.
func (s PortSet) Ports() []int {
	out := make([]int, len(s.ports))
	copy(out, s.ports)
	return out
}

// Len returns the number of ports.
func (s PortSet) Len() int { return len(s.ports) }

// Contains reports whether port is in the set.
func (s PortSet) Contains(port int) bool {
	i := sort.SearchInts(s.ports, port)
	return i < len(s.ports) && s.ports[i] == port
}

// String renders the set in compact nmap-style notation, e.g. "22,80,8000-8002".
func (s PortSet) String() string {
	if len(s.ports) == 0 {
		return ""
	}
	var b strings.Builder
	start, prev := s.ports[0], s.ports[0]
	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if start == prev {
			b.WriteString(strconv.Itoa(start))
			return
		}
		fmt.Fprintf(&b, "%d-%d", start, prev)
	}
	for _, p := range s.ports[1:] {
		if p == prev+1 {
			prev = p
			continue
		}
		flush()
		start, prev = p, p
	}
	flush()
	return b.String()
}
