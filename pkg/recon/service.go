// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package recon orchestrates a firewall reconnaissance run: host and port
// discovery, the staged technique fan-out, result aggregation and the
// filtering classification.
package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

// Phase is a RunController state.
type Phase string

const (
	PhaseInit             Phase = "INIT"
	PhaseDiscoveringHosts Phase = "DISCOVERING_HOSTS"
	PhaseDiscoveringPorts Phase = "DISCOVERING_PORTS"
	PhaseFanningOut       Phase = "FANNING_OUT"
	PhaseAggregating      Phase = "AGGREGATING"
	PhaseClassifying      Phase = "CLASSIFYING"
	PhaseDone             Phase = "DONE"
	PhaseFailed           Phase = "FAILED"
)

const (
	defaultDiscoverTimeout = 2 * time.Minute
	defaultHostTimeout     = 30 * time.Second
)

// CapabilityChecker is implemented by engines that can verify they are usable
// before a run starts.
type CapabilityChecker interface {
	CheckCapability(ctx context.Context) error
}

// Params are the per-run inputs.
type Params struct {
	Target      string
	Profiles    []string
	Concurrency int
	// Timeout is the per-technique timeout.
	Timeout          time.Duration
	DiscoveryTimeout time.Duration
	HostTimeout      time.Duration
	DispatchRate     float64
	RetryBackoff     time.Duration
	// DefaultPorts replaces the 1-1000 fallback when discovery finds nothing.
	DefaultPorts string
	// MaxHosts caps CIDR expansion; zero leaves only target.MaxExpandableHosts.
	MaxHosts          int
	SkipHostDiscovery bool
}

// Service drives the run state machine.
type Service struct {
	engine         probe.Engine
	discoverer     probe.Discoverer
	hostDiscoverer probe.HostDiscoverer
	resolver       target.Resolver
	registry       *profile.Registry
	classifier     *Classifier
	metrics        *Metrics
	progressSink   ProgressSink
	now            func() time.Time
	logger         zerolog.Logger
}

// NewService builds a Service around a probe engine and a discovery engine.
func NewService(engine probe.Engine, discoverer probe.Discoverer) *Service {
	classifier, _ := NewClassifier(nil)
	return &Service{
		engine:     engine,
		discoverer: discoverer,
		registry:   profile.NewRegistry(),
		classifier: classifier,
		now:        time.Now,
		logger:     log.With().Str("component", "recon").Logger(),
	}
}

// WithHostDiscoverer enables the host discovery phase.
func (s *Service) WithHostDiscoverer(d probe.HostDiscoverer) *Service {
	s.hostDiscoverer = d
	return s
}

// WithResolver makes domain targets resolve during INIT.
func (s *Service) WithResolver(r target.Resolver) *Service {
	s.resolver = r
	return s
}

// WithRegistry replaces the profile catalog, e.g. one with overrides applied.
func (s *Service) WithRegistry(r *profile.Registry) *Service {
	if r != nil {
		s.registry = r
	}
	return s
}

// WithClassifier replaces the default rule table.
func (s *Service) WithClassifier(c *Classifier) *Service {
	if c != nil {
		s.classifier = c
	}
	return s
}

// WithMetrics attaches a metrics collector.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// WithClock overrides the time source (useful for tests).
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// run holds per-invocation state.
type run struct {
	params  Params
	report  *RunReport
	emitter emitter
	logger  zerolog.Logger
}

func (r *run) enter(p Phase) {
	r.report.Phases = append(r.report.Phases, p)
	r.logger.Debug().Str("phase", string(p)).Msg("entering phase")
	r.emitter.emit(p, "", "", StatusStart, "")
}

func (r *run) fail(err error) (*RunReport, error) {
	r.report.Phases = append(r.report.Phases, PhaseFailed)
	r.logger.Error().Err(err).Msg("run failed")
	r.emitter.emit(PhaseFailed, "", "", StatusFailed, err.Error())
	return nil, err
}

func (r *run) note(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.report.Notes = append(r.report.Notes, msg)
	r.logger.Warn().Msg(msg)
}

// Run executes one reconnaissance run. It returns an error only when the run
// reaches FAILED; every other problem is recorded on the report.
func (s *Service) Run(ctx context.Context, params Params) (*RunReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	r := &run{
		params:  params,
		emitter: emitter{sink: s.progressSink},
		report: &RunReport{
			ID:        uuid.NewString(),
			Target:    params.Target,
			Timestamp: s.now().UTC(),
			Failures:  []Failure{},
		},
	}
	r.logger = s.logger.With().Str("run_id", r.report.ID).Str("target", params.Target).Logger()

	// INIT
	r.enter(PhaseInit)
	tgt, profiles, fallback, err := s.initialize(ctx, r)
	if err != nil {
		return r.fail(err)
	}
	r.report.TargetKind = string(tgt.Kind)
	r.report.Profiles = profile.Names(profiles)

	// DISCOVERING_HOSTS
	r.enter(PhaseDiscoveringHosts)
	tgt = s.discoverHosts(ctx, r, tgt)

	// DISCOVERING_PORTS
	r.enter(PhaseDiscoveringPorts)
	ports, err := s.discoverPorts(ctx, r, tgt, fallback)
	if err != nil {
		return r.fail(err)
	}

	// FANNING_OUT
	r.enter(PhaseFanningOut)
	agg := NewAggregator(ports, profiles)
	sched := NewScheduler(s.engine, SchedulerConfig{
		Concurrency:  params.Concurrency,
		Timeout:      params.Timeout,
		DispatchRate: params.DispatchRate,
		RetryBackoff: params.RetryBackoff,
	})
	sched.metrics = s.metrics
	sched.emitter = r.emitter
	for _, stage := range sched.Run(ctx, tgt, ports, profiles, agg) {
		r.report.DegradedStages = append(r.report.DegradedStages, string(stage))
	}

	// AGGREGATING
	r.enter(PhaseAggregating)
	verdicts, failures, osGuess := agg.Snapshot()
	r.report.Failures = failures
	r.report.OS = osGuess
	r.report.Routes = agg.Routes()

	// CLASSIFYING
	r.enter(PhaseClassifying)
	s.classifier.Apply(verdicts)
	r.report.Verdicts = verdicts
	r.report.Indicators = FirewallIndicators(verdicts)

	// DONE
	r.report.Status = StatusCompleted
	if len(r.report.Failures) > 0 || len(r.report.DegradedStages) > 0 {
		r.report.Status = StatusDegraded
	}
	r.report.FinishedAt = s.now().UTC()
	r.enter(PhaseDone)
	s.metrics.observeRun(r.report)

	r.logger.Info().
		Str("status", string(r.report.Status)).
		Int("ports", len(r.report.Ports)).
		Int("failures", len(r.report.Failures)).
		Msg("run finished")
	return r.report, nil
}

// initialize validates inputs and the discovery capability.
func (s *Service) initialize(ctx context.Context, r *run) (target.Target, []profile.ScanProfile, portset.PortSet, error) {
	if r.params.Target == "" {
		return target.Target{}, nil, portset.PortSet{}, NewInvalidTargetError("", nil)
	}
	tgt, err := target.Parse(r.params.Target)
	if err != nil {
		return target.Target{}, nil, portset.PortSet{}, NewInvalidTargetError(r.params.Target, err)
	}

	switch tgt.Kind {
	case target.KindDomain:
		if s.resolver != nil {
			addrs, err := s.resolver.Resolve(ctx, tgt.Raw)
			if err != nil {
				return target.Target{}, nil, portset.PortSet{}, NewInvalidTargetError(r.params.Target, err)
			}
			for _, a := range addrs {
				r.report.Addresses = append(r.report.Addresses, a.String())
			}
		}
		r.report.Hosts = []string{tgt.Raw}
	default:
		hosts, err := tgt.Hosts(r.params.MaxHosts)
		if err != nil {
			return target.Target{}, nil, portset.PortSet{}, NewInvalidTargetError(r.params.Target, err)
		}
		r.report.Hosts = hosts
	}

	profiles, err := s.registry.Select(r.params.Profiles)
	if err != nil {
		return target.Target{}, nil, portset.PortSet{}, WithErrorCode(err, ErrorCodeInvalidProfile)
	}

	fallback := portset.Default()
	if r.params.DefaultPorts != "" {
		fallback, err = portset.ParseSpec(r.params.DefaultPorts)
		if err != nil {
			return target.Target{}, nil, portset.PortSet{}, WithErrorCode(fmt.Errorf("default ports: %w", err), ErrorCodeRunFailure)
		}
	}

	if s.discoverer == nil {
		return target.Target{}, nil, portset.PortSet{}, NewCapabilityError(ErrNoDiscoverer)
	}
	if checker, ok := s.discoverer.(CapabilityChecker); ok {
		if err := checker.CheckCapability(ctx); err != nil {
			return target.Target{}, nil, portset.PortSet{}, NewCapabilityError(err)
		}
	}
	if s.engine == nil {
		return target.Target{}, nil, portset.PortSet{}, WithErrorCode(errors.New("no probe engine configured"), ErrorCodeCapabilityUnavailable)
	}

	return tgt, profiles, fallback, nil
}

// discoverHosts narrows CIDR targets to live hosts. Failures degrade to
// treating every host as up.
func (s *Service) discoverHosts(ctx context.Context, r *run, tgt target.Target) target.Target {
	if s.hostDiscoverer == nil || r.params.SkipHostDiscovery {
		r.logger.Debug().Msg("host discovery disabled, treating target as up")
		r.emitter.emit(PhaseDiscoveringHosts, "", "", StatusSkipped, "")
		return tgt
	}

	timeout := r.params.HostTimeout
	if timeout <= 0 {
		timeout = defaultHostTimeout
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	live, err := s.hostDiscoverer.DiscoverHosts(hctx, tgt)
	switch {
	case err != nil:
		r.note("host discovery failed: %v; treating target as up", err)
		return tgt
	case len(live) == 0:
		r.note("no host answered host discovery; treating target as up")
		return tgt
	}

	r.emitter.emit(PhaseDiscoveringHosts, "", "", StatusDone, fmt.Sprintf("live=%d", len(live)))
	r.report.Hosts = live
	if tgt.Kind == target.KindCIDR {
		return tgt.WithScope(live)
	}
	return tgt
}

// discoverPorts establishes the immutable port set. Only a missing capability
// is fatal; any other failure falls back to the default range.
func (s *Service) discoverPorts(ctx context.Context, r *run, tgt target.Target, fallback portset.PortSet) (portset.PortSet, error) {
	timeout := r.params.DiscoveryTimeout
	if timeout <= 0 {
		timeout = defaultDiscoverTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := s.discoverer.Discover(dctx, tgt)
	if err != nil {
		if errors.Is(err, probe.ErrCapabilityUnavailable) {
			return portset.PortSet{}, NewCapabilityError(err)
		}
		r.note("port discovery failed: %v; using default port range", err)
		raw = ""
	}

	ports, src := portset.NewExtractor(fallback).Extract(raw)
	r.report.Ports = ports.Ports()
	r.report.PortSource = string(src)
	r.emitter.emit(PhaseDiscoveringPorts, "", "", StatusDone, fmt.Sprintf("ports=%d source=%s", ports.Len(), src))
	return ports, nil
}
