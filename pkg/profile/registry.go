// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"
)

// ErrUnknownProfile is returned when a selection names a profile that is not in the catalog.
var ErrUnknownProfile = errors.New("unknown scan profile")

const (
	defaultTiming  = 4
	defaultRetries = 1
)

// Registry is the ordered, read-only profile catalog.
type Registry struct {
	profiles []ScanProfile
	index    map[string]int
}

// NewRegistry returns the built-in catalog.
func NewRegistry() *Registry {
	return newRegistry(builtinProfiles())
}

func newRegistry(profiles []ScanProfile) *Registry {
	r := &Registry{
		profiles: profiles,
		index:    make(map[string]int, len(profiles)),
	}
	for i, p := range profiles {
		r.index[p.Name] = i
	}
	return r
}

func builtinProfiles() []ScanProfile {
	base := Options{Timing: defaultTiming, Retries: defaultRetries}
	with := func(flags ...string) Options {
		o := base
		o.Flags = flags
		return o
	}

	return []ScanProfile{
		{Name: "SYN", Kind: KindSYN, Stage: StageStealth, Opts: base,
			Intent: "Half-open handshake; open ports answer SYN/ACK, closed answer RST."},
		{Name: "ACK", Kind: KindACK, Stage: StageStealth, Opts: base,
			Intent: "Maps firewall rulesets: unfiltered ports answer RST, filtered ones drop."},
		{Name: "FIN", Kind: KindFIN, Stage: StageStealth, Opts: base,
			Intent: "Stateless probe; silence suggests open or filtered, RST means closed."},
		{Name: "NULL", Kind: KindNULL, Stage: StageStealth, Opts: base,
			Intent: "No TCP flags set; slips past some non-stateful filters."},
		{Name: "XMAS", Kind: KindXMAS, Stage: StageStealth, Opts: base,
			Intent: "FIN, PSH and URG set; same inference as FIN."},
		{Name: "WINDOW", Kind: KindWindow, Stage: StageStealth, Opts: base,
			Intent: "ACK probe that reads the RST window size to tell open from closed."},
		{Name: "SYN_FRAG", Kind: KindSYN, Stage: StageEvasion, OptIn: true,
			Opts:   Options{Timing: 2, Retries: defaultRetries, Flags: []string{"-f", "--mtu", "24", "--data-length", "50"}},
			Intent: "Fragmented, padded and slowed SYN probe for filters that only inspect whole packets."},
		{Name: "SYN_SRCPORT53", Kind: KindSYN, Stage: StageEvasion, OptIn: true,
			Opts:   with("--source-port", "53"),
			Intent: "SYN probe from source port 53 for rulesets that trust DNS replies."},
		{Name: "SYN_BADSUM", Kind: KindSYN, Stage: StageEvasion, OptIn: true,
			Opts:   Options{Timing: 2, Retries: defaultRetries, Flags: []string{"-f", "--mtu", "24", "--data-length", "50", "--badsum"}},
			Intent: "Fragmented SYN scan with invalid checksums; any reply comes from a device that skips checksum validation."},
		{Name: "UDP", Kind: KindUDP, Stage: StageUDP, Opts: base,
			Intent: "UDP probe; ICMP port unreachable means closed, silence is open or filtered."},
		{Name: "SERVICE_OS", Kind: KindServiceOS, Stage: StageFingerprint, Opts: with("--version-all"),
			Intent: "Service version and operating system fingerprinting."},
		{Name: "BANNER", Kind: KindServiceOS, Stage: StageAuxiliary, OptIn: true,
			Opts:   with("--script", "banner"),
			Intent: "Grabs service banners with the banner script."},
		{Name: "TRACEROUTE", Kind: KindSYN, Stage: StageAuxiliary, OptIn: true,
			Opts:   with("--traceroute"),
			Intent: "SYN scan that also traces the hop path, locating the filtering device."},
	}
}

// All returns every profile in catalog order.
func (r *Registry) All() []ScanProfile {
	out := make([]ScanProfile, len(r.profiles))
	copy(out, r.profiles)
	return out
}

// Get returns the profile with the given (case-insensitive) name.
func (r *Registry) Get(name string) (ScanProfile, bool) {
	i, ok := r.index[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return ScanProfile{}, false
	}
	return r.profiles[i], true
}

// Default returns the profiles that run when no selection is given.
func (r *Registry) Default() []ScanProfile {
	var out []ScanProfile
	for _, p := range r.profiles {
		if !p.OptIn {
			out = append(out, p)
		}
	}
	return out
}

// Select returns the named profiles in catalog order. An empty selection
// yields Default.
func (r *Registry) Select(names []string) ([]ScanProfile, error) {
	if len(names) == 0 {
		return r.Default(), nil
	}

	wanted := make(map[int]struct{}, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		i, ok := r.index[strings.ToUpper(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
		wanted[i] = struct{}{}
	}
	if len(wanted) == 0 {
		return r.Default(), nil
	}

	out := make([]ScanProfile, 0, len(wanted))
	for i, p := range r.profiles {
		if _, ok := wanted[i]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// WithOverrides returns a copy of the registry with option overrides applied.
// Keys are profile names; recognised fields are timeout, retries, timing and flags.
func (r *Registry) WithOverrides(overrides map[string]map[string]interface{}) (*Registry, error) {
	profiles := r.All()
	for name, fields := range overrides {
		i, ok := r.index[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
		}
		opts, err := applyOverride(profiles[i].Opts, fields)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		profiles[i].Opts = opts
	}
	return newRegistry(profiles), nil
}

func applyOverride(opts Options, fields map[string]interface{}) (Options, error) {
	for key, val := range fields {
		switch strings.ToLower(key) {
		case "timeout":
			d, err := toDuration(val)
			if err != nil {
				return opts, fmt.Errorf("timeout: %w", err)
			}
			opts.Timeout = d
		case "retries":
			n, err := cast.ToIntE(val)
			if err != nil || n < 0 {
				return opts, fmt.Errorf("retries: invalid value %v", val)
			}
			opts.Retries = n
		case "timing":
			n, err := cast.ToIntE(val)
			if err != nil || n < 0 || n > 5 {
				return opts, fmt.Errorf("timing: must be 0-5, got %v", val)
			}
			opts.Timing = n
		case "flags":
			opts.Flags = cast.ToStringSlice(val)
		default:
			log.Warn().Str("component", "profile").Str("key", key).Msg("ignoring unknown profile override")
		}
	}
	return opts, nil
}

// toDuration accepts "30s"-style strings or bare numbers of seconds.
func toDuration(val interface{}) (time.Duration, error) {
	switch v := val.(type) {
	case string:
		if secs, err := cast.ToFloat64E(v); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
		return cast.ToDurationE(v)
	case time.Duration:
		return v, nil
	default:
		secs, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, err
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
}
