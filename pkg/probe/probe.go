// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package probe declares the contracts between the orchestrator and the
// external engines that actually put packets on the wire.
package probe

import (
	"context"
	"errors"
	"strings"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

// ErrCapabilityUnavailable marks a missing or unusable engine. Discovery
// engines return it (wrapped) when they cannot run at all; a run fails fast on it.
var ErrCapabilityUnavailable = errors.New("probe capability unavailable")

// State is the observed port state for a single technique.
type State string

const (
	StateOpen         State = "open"
	StateClosed       State = "closed"
	StateFiltered     State = "filtered"
	StateOpenFiltered State = "open_filtered"
	StateUnknown      State = "unknown"
)

// Known reports whether the state carries evidence.
func (s State) Known() bool {
	return s != StateUnknown && s != ""
}

// ParseState maps engine state strings onto State. "unfiltered" (ACK and
// WINDOW scans) means the probe reached the port and counts as open.
func ParseState(s string) State {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "unfiltered":
		return StateOpen
	case "closed":
		return StateClosed
	case "filtered", "closed|filtered":
		return StateFiltered
	case "open|filtered", "open_filtered":
		return StateOpenFiltered
	default:
		return StateUnknown
	}
}

// Result is one port observation from one technique.
type Result struct {
	Profile   string `json:"profile" yaml:"profile"`
	Host      string `json:"host,omitempty" yaml:"host,omitempty"`
	Port      int    `json:"port" yaml:"port"`
	Transport string `json:"transport" yaml:"transport"`
	State     State  `json:"state" yaml:"state"`
	Service   string `json:"service,omitempty" yaml:"service,omitempty"`
	Version   string `json:"version,omitempty" yaml:"version,omitempty"`
	Raw       string `json:"-" yaml:"-"`
}

// Hop is one router on the path to a host.
type Hop struct {
	TTL     int     `json:"ttl" yaml:"ttl"`
	RTT     float64 `json:"rtt_ms,omitempty" yaml:"rtt_ms,omitempty"`
	Address string  `json:"address" yaml:"address"`
	Name    string  `json:"name,omitempty" yaml:"name,omitempty"`
}

// Observation is everything one successful engine invocation produced.
type Observation struct {
	Profile string
	Results []Result
	// OS is the operating system guess, when the technique produces one.
	OS string
	// Routes holds the traced path per host, when the technique traces one.
	Routes map[string][]Hop
	Raw    string
}

// Engine runs one technique against a target and port set. The per-technique
// timeout is carried by ctx's deadline.
type Engine interface {
	Probe(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*Observation, error)
}

// Discoverer produces raw port-discovery text for a target.
type Discoverer interface {
	Discover(ctx context.Context, t target.Target) (string, error)
}

// HostDiscoverer reports which hosts of a target answer at all.
type HostDiscoverer interface {
	DiscoverHosts(ctx context.Context, t target.Target) ([]string, error)
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*Observation, error)

// Probe calls f.
func (f EngineFunc) Probe(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*Observation, error) {
	return f(ctx, t, p, ports)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context, t target.Target) (string, error)

// Discover calls f.
func (f DiscovererFunc) Discover(ctx context.Context, t target.Target) (string, error) {
	return f(ctx, t)
}
