// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package nmap drives an installed nmap binary as a probe engine.
package nmap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/google/shlex"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/stringutil"
	"github.com/vulntor/fwrecon/pkg/target"
)

const (
	DefaultBinary        = "nmap"
	DefaultMinVersion    = ">= 7.0"
	DefaultDiscoveryArgs = "-T4 -F --open"
)

// Config selects the binary and argument sets used for every invocation.
type Config struct {
	Binary string
	// Sudo runs the binary through "sudo -n" for raw-socket techniques.
	Sudo          bool
	MinVersion    string
	DiscoveryArgs string
	// ExtraArgs is appended to every technique invocation.
	ExtraArgs string
	// Decoys are nmap -D entries: addresses, "ME", or "RND:n".
	Decoys []string
	// SpoofSource sends technique packets from this address; Interface is
	// then required.
	SpoofSource string
	Interface   string
}

// Runner executes a command and returns its stdout.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

const maxStderr = 512

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := stringutil.Ellipsis(stderr.String(), maxStderr); msg != "" {
			return out, fmt.Errorf("%w: %s", err, msg)
		}
		return out, err
	}
	return out, nil
}

// techniqueArgs maps each technique kind to its nmap scan switches.
var techniqueArgs = map[profile.Kind][]string{
	profile.KindSYN:       {"-sS"},
	profile.KindACK:       {"-sA"},
	profile.KindFIN:       {"-sF"},
	profile.KindNULL:      {"-sN"},
	profile.KindXMAS:      {"-sX"},
	profile.KindWindow:    {"-sW"},
	profile.KindUDP:       {"-sU"},
	profile.KindServiceOS: {"-sV", "-O"},
}

var validate = validator.New()

// evasionArgs renders the decoy and spoofing options shared by every technique.
func evasionArgs(cfg Config) ([]string, error) {
	var args []string
	if len(cfg.Decoys) > 0 {
		decoys := make([]string, 0, len(cfg.Decoys))
		for _, d := range cfg.Decoys {
			d = strings.TrimSpace(d)
			if err := checkDecoy(d); err != nil {
				return nil, err
			}
			decoys = append(decoys, d)
		}
		args = append(args, "-D", strings.Join(decoys, ","))
	}

	if cfg.SpoofSource != "" && cfg.Interface == "" {
		return nil, errors.New("spoofed source requires an interface")
	}
	if cfg.Interface != "" {
		args = append(args, "-e", cfg.Interface)
	}
	if cfg.SpoofSource != "" {
		if err := validate.Var(cfg.SpoofSource, "ip"); err != nil {
			return nil, fmt.Errorf("invalid spoofed source %q", cfg.SpoofSource)
		}
		args = append(args, "-S", cfg.SpoofSource)
	}
	return args, nil
}

func checkDecoy(d string) error {
	switch {
	case strings.EqualFold(d, "ME"), strings.EqualFold(d, "RND"):
		return nil
	case len(d) > 4 && strings.EqualFold(d[:4], "RND:"):
		if n, err := strconv.Atoi(d[4:]); err == nil && n > 0 {
			return nil
		}
	case validate.Var(d, "ip") == nil:
		return nil
	}
	return fmt.Errorf("invalid decoy %q: want an IP address, ME or RND:<count>", d)
}

// Engine implements probe.Engine and probe.Discoverer on top of nmap.
type Engine struct {
	cfg        Config
	discovery  []string
	extra      []string
	evasion    []string
	constraint *semver.Constraints
	runner     Runner
	lookPath   func(string) (string, error)
	logger     zerolog.Logger

	capOnce sync.Once
	capErr  error
}

// New validates cfg and returns an engine. The binary is not touched until
// CheckCapability or the first probe.
func New(cfg Config) (*Engine, error) {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.MinVersion == "" {
		cfg.MinVersion = DefaultMinVersion
	}
	if strings.TrimSpace(cfg.DiscoveryArgs) == "" {
		cfg.DiscoveryArgs = DefaultDiscoveryArgs
	}

	constraint, err := semver.NewConstraint(cfg.MinVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid nmap version constraint %q: %w", cfg.MinVersion, err)
	}
	discovery, err := shlex.Split(cfg.DiscoveryArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery args: %w", err)
	}
	extra, err := shlex.Split(cfg.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid extra args: %w", err)
	}
	evasion, err := evasionArgs(cfg)
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:        cfg,
		discovery:  discovery,
		extra:      extra,
		evasion:    evasion,
		constraint: constraint,
		runner:     execRunner{},
		lookPath:   exec.LookPath,
		logger:     log.With().Str("component", "nmap").Logger(),
	}, nil
}

// WithRunner swaps the command runner.
func (e *Engine) WithRunner(r Runner) *Engine {
	e.runner = r
	return e
}

// CheckCapability verifies the binary exists and satisfies the version
// constraint. The result is cached for the engine's lifetime.
func (e *Engine) CheckCapability(ctx context.Context) error {
	e.capOnce.Do(func() {
		e.capErr = e.checkCapability(ctx)
	})
	return e.capErr
}

func (e *Engine) checkCapability(ctx context.Context) error {
	if e.lookPath != nil {
		if _, err := e.lookPath(e.cfg.Binary); err != nil {
			return fmt.Errorf("%w: %s not found: %v", probe.ErrCapabilityUnavailable, e.cfg.Binary, err)
		}
	}

	out, err := e.runner.Run(ctx, e.cfg.Binary, "--version")
	if err != nil {
		return fmt.Errorf("%w: %s --version: %v", probe.ErrCapabilityUnavailable, e.cfg.Binary, err)
	}
	raw, ok := parseVersion(string(out))
	if !ok {
		return fmt.Errorf("%w: cannot read nmap version", probe.ErrCapabilityUnavailable)
	}
	v, err := semver.NewVersion(raw)
	if err != nil {
		return fmt.Errorf("%w: bad nmap version %q: %v", probe.ErrCapabilityUnavailable, raw, err)
	}
	if !e.constraint.Check(v) {
		return fmt.Errorf("%w: nmap %s does not satisfy %s", probe.ErrCapabilityUnavailable, v, e.cfg.MinVersion)
	}

	e.logger.Debug().Str("version", v.String()).Msg("nmap capability confirmed")
	return nil
}

// Discover runs the quick open-port discovery pass and returns raw output.
func (e *Engine) Discover(ctx context.Context, t target.Target) (string, error) {
	args := append(append([]string{}, e.discovery...), t.Args()...)
	out, err := e.exec(ctx, args)
	if err != nil {
		return string(out), err
	}
	return string(out), nil
}

// Probe runs one technique against ports and parses the result.
func (e *Engine) Probe(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*probe.Observation, error) {
	args, err := e.buildArgs(t, p, ports)
	if err != nil {
		return nil, err
	}

	out, err := e.exec(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}

	results, osGuess, err := parseNormal(string(out), p.Name, p.Transport(), ports)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Name, err)
	}
	routes := parseTraceroute(string(out))
	e.logger.Debug().
		Str("profile", p.Name).
		Int("results", len(results)).
		Int("routes", len(routes)).
		Msg("technique parsed")

	return &probe.Observation{
		Profile: p.Name,
		Results: results,
		OS:      osGuess,
		Routes:  routes,
		Raw:     string(out),
	}, nil
}

func (e *Engine) buildArgs(t target.Target, p profile.ScanProfile, ports portset.PortSet) ([]string, error) {
	switches, ok := techniqueArgs[p.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: no nmap switch for technique %s", probe.ErrCapabilityUnavailable, p.Kind)
	}
	if ports.Len() == 0 {
		return nil, errors.New("empty port set")
	}

	// host discovery already ran, so every technique skips ping
	args := append([]string{"-Pn"}, switches...)
	if p.Opts.Timing > 0 {
		args = append(args, "-T"+strconv.Itoa(p.Opts.Timing))
	}
	args = append(args, p.Opts.Flags...)
	args = append(args, e.evasion...)
	args = append(args, e.extra...)
	args = append(args, "-p", ports.String())
	args = append(args, t.Args()...)
	return args, nil
}

func (e *Engine) exec(ctx context.Context, args []string) ([]byte, error) {
	name := e.cfg.Binary
	if e.cfg.Sudo {
		args = append([]string{"-n", e.cfg.Binary}, args...)
		name = "sudo"
	}

	e.logger.Debug().Str("cmd", name).Strs("args", args).Msg("running nmap")
	out, err := e.runner.Run(ctx, name, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return out, ctxErr
		}
		if errors.Is(err, exec.ErrNotFound) {
			return out, fmt.Errorf("%w: %v", probe.ErrCapabilityUnavailable, err)
		}
		return out, err
	}
	return out, nil
}
