// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package portset

import (
	"regexp"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// 80/open, 80/tcp open, 443/tcp  open|filtered  https, 22/open/tcp//ssh///
	portStatePattern = regexp.MustCompile(`(?i)\b(\d{1,5})/(?:(?:tcp|udp|sctp)\s+)?(open\|filtered|open)\b`)
	// Discovered open port 80/tcp on 10.0.0.1
	discoveredPattern = regexp.MustCompile(`(?i)\bDiscovered open(?:\|filtered)? port (\d{1,5})/(?:tcp|udp|sctp)\b`)
)

// Extractor turns raw discovery text into a PortSet.
type Extractor struct {
	fallback PortSet
	logger   zerolog.Logger
}

// NewExtractor returns an extractor that falls back to fallback when no
// ports are found. An empty fallback means the 1-1000 default.
func NewExtractor(fallback PortSet) *Extractor {
	if fallback.Len() == 0 {
		fallback = Default()
	}
	return &Extractor{
		fallback: fallback,
		logger:   log.With().Str("component", "portset").Logger(),
	}
}

// Extract never fails: empty or unparsable input yields the fallback set.
func (e *Extractor) Extract(raw string) (PortSet, Source) {
	var ports []int
	for _, pattern := range []*regexp.Regexp{portStatePattern, discoveredPattern} {
		for _, m := range pattern.FindAllStringSubmatch(raw, -1) {
			p, err := strconv.Atoi(m[1])
			if err != nil || p < MinPort || p > MaxPort {
				e.logger.Debug().Str("token", m[0]).Msg("discarding out-of-range port token")
				continue
			}
			ports = append(ports, p)
		}
	}

	set := New(ports...)
	if set.Len() == 0 {
		e.logger.Info().Str("ports", e.fallback.String()).Msg("no open ports discovered, using default port range")
		return e.fallback, SourceDefault
	}
	e.logger.Debug().Int("count", set.Len()).Str("ports", set.String()).Msg("extracted port set")
	return set, SourceDiscovered
}
