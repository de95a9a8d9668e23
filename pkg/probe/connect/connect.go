// Package connect is a dependency-free TCP connect engine. It serves as the
// discovery pass when nmap is unavailable and stands in for the SYN technique.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

const (
	defaultDialTimeout = time.Second
	defaultConcurrency = 100
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Config tunes the connect sweep.
type Config struct {
	Ports       portset.PortSet
	DialTimeout time.Duration
	Concurrency int
	MaxHosts    int
}

// Engine dials every (host, port) pair and reports the outcome.
type Engine struct {
	cfg    Config
	dial   dialFunc
	logger zerolog.Logger
}

// New returns a connect engine. An empty port set means the default range.
func New(cfg Config) *Engine {
	if cfg.Ports.Len() == 0 {
		cfg.Ports = portset.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	e := &Engine{cfg: cfg, logger: log.With().Str("component", "connect").Logger()}
	d := &net.Dialer{Timeout: cfg.DialTimeout}
	e.dial = d.DialContext
	return e
}

// Discover sweeps the configured ports and returns nmap-style lines
// ("Discovered open port 22/tcp on 10.0.0.5") for every open port.
func (e *Engine) Discover(ctx context.Context, t target.Target) (string, error) {
	results, err := e.sweep(ctx, t, e.cfg.Ports, "")
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, r := range results {
		if r.State == probe.StateOpen {
			fmt.Fprintf(&b, "Discovered open port %d/tcp on %s\n", r.Port, r.Host)
		}
	}
	return b.String(), nil
}

// Probe only implements SYN, as a full connect. Other techniques need raw
// sockets and report ErrCapabilityUnavailable.
func (e *Engine) Probe(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*probe.Observation, error) {
	if p.Kind != profile.KindSYN {
		return nil, fmt.Errorf("%w: connect engine cannot run %s", probe.ErrCapabilityUnavailable, p.Kind)
	}
	results, err := e.sweep(ctx, t, ports, p.Name)
	if err != nil {
		return nil, err
	}
	return &probe.Observation{Profile: p.Name, Results: results}, nil
}

func (e *Engine) sweep(ctx context.Context, t target.Target, ports portset.PortSet, prof string) ([]probe.Result, error) {
	hosts, err := e.hosts(t)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		results []probe.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	e.logger.Debug().Int("hosts", len(hosts)).Int("ports", ports.Len()).Msg("starting connect sweep")

loop:
	for _, host := range hosts {
		for _, port := range ports.Ports() {
			if gctx.Err() != nil {
				break loop
			}
			g.Go(func() error {
				state := e.dialOne(gctx, host, port)
				mu.Lock()
				results = append(results, probe.Result{
					Profile:   prof,
					Host:      host,
					Port:      port,
					Transport: "tcp",
					State:     state,
				})
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Host != results[j].Host {
			return results[i].Host < results[j].Host
		}
		return results[i].Port < results[j].Port
	})
	return results, nil
}

func (e *Engine) dialOne(ctx context.Context, host string, port int) probe.State {
	conn, err := e.dial(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		_ = conn.Close()
		return probe.StateOpen
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return probe.StateClosed
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return probe.StateFiltered
	}
	if ctx.Err() != nil {
		return probe.StateUnknown
	}
	return probe.StateFiltered
}

func (e *Engine) hosts(t target.Target) ([]string, error) {
	if len(t.Scope) > 0 {
		return t.Args(), nil
	}
	return t.Hosts(e.cfg.MaxHosts)
}
