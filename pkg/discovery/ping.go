// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package discovery finds live hosts before port discovery starts.
package discovery

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/go-ping/ping"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fwrecon/pkg/logging"
	"github.com/vulntor/fwrecon/pkg/target"
)

// PingConfig holds ICMP sweep settings.
type PingConfig struct {
	Count         int
	Interval      time.Duration
	PacketTimeout time.Duration
	Privileged    bool
	Concurrency   int
	// MaxHosts caps CIDR expansion; zero leaves only target.MaxExpandableHosts.
	MaxHosts int
}

// DefaultPingConfig returns the sweep defaults.
func DefaultPingConfig() PingConfig {
	return PingConfig{
		Count:         1,
		Interval:      time.Second,
		PacketTimeout: time.Second,
		Concurrency:   50,
	}
}

// Pinger is the subset of go-ping the sweep drives.
type Pinger interface {
	Run() error
	Stop()
	Statistics() *ping.Statistics

	SetPrivileged(bool)
	SetCount(int)
	SetInterval(time.Duration)
	SetTimeout(time.Duration)
	GetTimeout() time.Duration
}

type pingerFactoryFunc func(host string) (Pinger, error)

// PingDiscoverer reports hosts that answer ICMP echo.
type PingDiscoverer struct {
	cfg           PingConfig
	pingerFactory pingerFactoryFunc
	logger        zerolog.Logger
}

// NewPingDiscoverer sanitises cfg and returns a discoverer.
func NewPingDiscoverer(cfg PingConfig) *PingDiscoverer {
	logger := log.With().Str("component", "ping").Logger()

	if cfg.Count < 1 {
		logger.Warn().Int("count", cfg.Count).Msg("ping count < 1, using 1")
		cfg.Count = 1
	}
	if cfg.Concurrency < 1 {
		logger.Warn().Int("concurrency", cfg.Concurrency).Msg("ping concurrency < 1, using 1")
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.PacketTimeout <= 0 {
		cfg.PacketTimeout = time.Second
	}
	if cfg.Privileged && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		logger.Warn().Msg("privileged ping requested but not running as root, falling back to unprivileged ping")
		cfg.Privileged = false
	}

	return &PingDiscoverer{
		cfg:    cfg,
		logger: logger,
		pingerFactory: func(host string) (Pinger, error) {
			p, err := ping.NewPinger(host)
			if err != nil {
				return nil, err
			}
			return &pingerAdapter{p: p}, nil
		},
	}
}

// DiscoverHosts pings every host of t and returns those that replied, in
// expansion order. It fails only when no pinger could be created at all.
func (d *PingDiscoverer) DiscoverHosts(ctx context.Context, t target.Target) ([]string, error) {
	hosts, err := t.Hosts(d.cfg.MaxHosts)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}

	size := d.cfg.Concurrency
	if size > len(hosts) {
		size = len(hosts)
	}
	pool, err := ants.NewPool(size, ants.WithLogger(logging.NewPrintfLogger(d.logger)))
	if err != nil {
		return nil, fmt.Errorf("create ping pool: %w", err)
	}
	defer pool.Release()

	d.logger.Info().
		Int("hosts", len(hosts)).
		Int("concurrency", size).
		Int("count", d.cfg.Count).
		Bool("privileged", d.cfg.Privileged).
		Msg("starting ICMP sweep")

	alive := make([]bool, len(hosts))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		setupErrs int
		lastErr   error
	)

	for i, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			ok, err := d.pingOne(ctx, host)
			if err != nil {
				mu.Lock()
				setupErrs++
				lastErr = err
				mu.Unlock()
				return
			}
			alive[i] = ok
		})
		if submitErr != nil {
			wg.Done()
			return nil, fmt.Errorf("submit ping for %s: %w", host, submitErr)
		}
	}
	wg.Wait()

	if setupErrs == len(hosts) {
		return nil, fmt.Errorf("ping unavailable: %w", lastErr)
	}

	var live []string
	for i, ok := range alive {
		if ok {
			live = append(live, hosts[i])
		}
	}
	d.logger.Info().Int("live", len(live)).Int("probed", len(hosts)).Msg("ICMP sweep completed")
	return live, nil
}

// pingOne returns an error only when the pinger cannot be set up.
func (d *PingDiscoverer) pingOne(ctx context.Context, host string) (bool, error) {
	pinger, err := d.pingerFactory(host)
	if err != nil {
		d.logger.Debug().Err(err).Str("host", host).Msg("failed to create pinger")
		return false, err
	}

	pinger.SetPrivileged(d.cfg.Privileged)
	pinger.SetCount(d.cfg.Count)
	pinger.SetInterval(d.cfg.Interval)
	pinger.SetTimeout(d.cfg.PacketTimeout)

	opCtx, cancel := context.WithTimeout(ctx, pinger.GetTimeout()+500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-opCtx.Done():
			pinger.Stop()
		case <-done:
		}
	}()

	if err := pinger.Run(); err != nil {
		d.logger.Debug().Err(err).Str("host", host).Msg("ping run failed")
		return false, err
	}
	stats := pinger.Statistics()
	return stats != nil && stats.PacketsRecv > 0, nil
}

// pingerAdapter wraps go-ping's Pinger to satisfy Pinger.
type pingerAdapter struct {
	p *ping.Pinger
}

func (a *pingerAdapter) Run() error                   { return a.p.Run() }
func (a *pingerAdapter) Stop()                        { a.p.Stop() }
func (a *pingerAdapter) Statistics() *ping.Statistics { return a.p.Statistics() }
func (a *pingerAdapter) SetPrivileged(v bool)         { a.p.SetPrivileged(v) }
func (a *pingerAdapter) SetCount(c int)               { a.p.Count = c }
func (a *pingerAdapter) SetInterval(i time.Duration)  { a.p.Interval = i }
func (a *pingerAdapter) SetTimeout(t time.Duration)   { a.p.Timeout = t }
func (a *pingerAdapter) GetTimeout() time.Duration    { return a.p.Timeout }
