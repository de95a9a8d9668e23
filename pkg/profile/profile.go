// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package profile defines the catalog of probing techniques a run can fan out.
package profile

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the probing technique family.
type Kind string

const (
	KindSYN       Kind = "SYN"
	KindACK       Kind = "ACK"
	KindFIN       Kind = "FIN"
	KindNULL      Kind = "NULL"
	KindXMAS      Kind = "XMAS"
	KindWindow    Kind = "WINDOW"
	KindUDP       Kind = "UDP"
	KindServiceOS Kind = "SERVICE_OS"
)

// Kinds lists every technique family in catalog order.
func Kinds() []Kind {
	return []Kind{KindSYN, KindACK, KindFIN, KindNULL, KindXMAS, KindWindow, KindUDP, KindServiceOS}
}

// ParseKind resolves a case-insensitive kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown scan kind %q", s)
}

// Stage groups profiles into scheduling units.
type Stage string

const (
	// StageStealth runs as one parallel batch under the concurrency bound.
	StageStealth Stage = "stealth"
	// StageEvasion holds the fragmented and source-port variants.
	StageEvasion Stage = "evasion"
	StageUDP     Stage = "udp"
	// StageFingerprint runs service and OS detection.
	StageFingerprint Stage = "fingerprint"
	StageAuxiliary   Stage = "auxiliary"
)

// Stages returns stages in execution order.
func Stages() []Stage {
	return []Stage{StageStealth, StageEvasion, StageUDP, StageFingerprint, StageAuxiliary}
}

// Parallel reports whether profiles in the stage share a concurrent batch.
func (s Stage) Parallel() bool {
	return s == StageStealth
}

// Options are the tunables passed to the probe engine.
type Options struct {
	Timing  int           `json:"timing" yaml:"timing"`
	Retries int           `json:"retries" yaml:"retries"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Flags are engine arguments appended after the technique switch.
	Flags []string `json:"flags,omitempty" yaml:"flags,omitempty"`
}

// ScanProfile is one named technique with its options.
type ScanProfile struct {
	Name   string  `json:"name" yaml:"name"`
	Kind   Kind    `json:"kind" yaml:"kind"`
	Stage  Stage   `json:"stage" yaml:"stage"`
	Intent string  `json:"intent" yaml:"intent"`
	Opts   Options `json:"options" yaml:"options"`
	// OptIn profiles are only run when explicitly selected.
	OptIn bool `json:"opt_in" yaml:"opt_in"`
}

// Canonical reports whether the profile is the reference entry for its kind.
// Classification only consults canonical profiles.
func (p ScanProfile) Canonical() bool {
	return p.Name == string(p.Kind)
}

// Transport returns "udp" for UDP profiles and "tcp" otherwise.
func (p ScanProfile) Transport() string {
	if p.Kind == KindUDP {
		return "udp"
	}
	return "tcp"
}

// Names returns the profile names in order.
func Names(profiles []ScanProfile) []string {
	out := make([]string, len(profiles))
	for i, p := range profiles {
		out[i] = p.Name
	}
	return out
}
