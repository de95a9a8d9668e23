// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package recon

import (
	"time"

	"github.com/vulntor/fwrecon/pkg/probe"
)

// Status is the overall outcome of a finished run.
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusDegraded means the run finished but some techniques or phases failed.
	StatusDegraded Status = "degraded"
)

// Classification is the inferred filtering behaviour of a port.
type Classification string

const (
	ClassOpenUnfiltered   Classification = "Open, unfiltered"
	ClassStatelessFilter  Classification = "Stateless filter suspected"
	ClassStatefulFirewall Classification = "Stateful firewall"
	ClassFullyFiltered    Classification = "Fully filtered / inconclusive"
	ClassInconsistent     Classification = "Inconsistent signals"
	// ClassUndetermined is used when no technique produced any evidence for the port.
	ClassUndetermined Classification = "Undetermined"
)

// Confidence grades a classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
	ConfidenceNone   Confidence = "none"
)

// FailureReason categorises technique failures.
type FailureReason string

const (
	ReasonError    FailureReason = "error"
	ReasonTimeout  FailureReason = "timeout"
	ReasonCanceled FailureReason = "canceled"
	// ReasonMalformed means the engine returned no usable observation.
	ReasonMalformed FailureReason = "malformed"
)

// PortVerdict is the per-port outcome of a run.
type PortVerdict struct {
	Port           int                    `json:"port" yaml:"port"`
	States         map[string]probe.State `json:"states" yaml:"states"`
	Classification Classification         `json:"classification" yaml:"classification"`
	Confidence     Confidence             `json:"confidence" yaml:"confidence"`
	Rationale      string                 `json:"rationale" yaml:"rationale"`
	Service        string                 `json:"service,omitempty" yaml:"service,omitempty"`
	Version        string                 `json:"version,omitempty" yaml:"version,omitempty"`
}

// Failure is a technique-level failure.
type Failure struct {
	Profile  string        `json:"profile" yaml:"profile"`
	Stage    string        `json:"stage" yaml:"stage"`
	Reason   FailureReason `json:"reason" yaml:"reason"`
	Error    string        `json:"error" yaml:"error"`
	Attempts int           `json:"attempts" yaml:"attempts"`
}

// RunReport is the single artefact a run produces.
type RunReport struct {
	ID             string                 `json:"id" yaml:"id"`
	Target         string                 `json:"target" yaml:"target"`
	TargetKind     string                 `json:"target_kind" yaml:"target_kind"`
	Timestamp      time.Time              `json:"timestamp" yaml:"timestamp"`
	FinishedAt     time.Time              `json:"finished_at" yaml:"finished_at"`
	Addresses      []string               `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Hosts          []string               `json:"hosts,omitempty" yaml:"hosts,omitempty"`
	Ports          []int                  `json:"ports" yaml:"ports"`
	PortSource     string                 `json:"port_source" yaml:"port_source"`
	Profiles       []string               `json:"profiles" yaml:"profiles"`
	Verdicts       []PortVerdict          `json:"verdicts" yaml:"verdicts"`
	Failures       []Failure              `json:"failures" yaml:"failures"`
	DegradedStages []string               `json:"degraded_stages,omitempty" yaml:"degraded_stages,omitempty"`
	OS             string                 `json:"os,omitempty" yaml:"os,omitempty"`
	Routes         map[string][]probe.Hop `json:"routes,omitempty" yaml:"routes,omitempty"`
	Indicators     []string               `json:"indicators,omitempty" yaml:"indicators,omitempty"`
	Notes          []string               `json:"notes,omitempty" yaml:"notes,omitempty"`
	Phases         []Phase                `json:"phases" yaml:"phases"`
	Status         Status                 `json:"status" yaml:"status"`
}

// Duration is the wall-clock time of the run.
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.Timestamp)
}

// Verdict returns the verdict for port.
func (r *RunReport) Verdict(port int) (PortVerdict, bool) {
	for _, v := range r.Verdicts {
		if v.Port == port {
			return v, true
		}
	}
	return PortVerdict{}, false
}

// Failed reports whether profile is among the failures.
func (r *RunReport) Failed(profile string) bool {
	for _, f := range r.Failures {
		if f.Profile == profile {
			return true
		}
	}
	return false
}

// ClassificationCounts tallies verdicts per classification.
func (r *RunReport) ClassificationCounts() map[Classification]int {
	out := make(map[Classification]int)
	for _, v := range r.Verdicts {
		out[v.Classification]++
	}
	return out
}
