// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package target

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnresolvable is returned when a domain has no A or AAAA records.
var ErrUnresolvable = errors.New("target does not resolve")

const defaultResolvConf = "/etc/resolv.conf"

// Resolver resolves domain targets to addresses.
type Resolver interface {
	Resolve(ctx context.Context, name string) ([]netip.Addr, error)
}

// exchanger is the part of dns.Client the resolver uses.
type exchanger interface {
	ExchangeContext(ctx context.Context, m *dns.Msg, address string) (*dns.Msg, time.Duration, error)
}

// DNSResolver queries a nameserver directly for A and AAAA records.
type DNSResolver struct {
	server string
	client exchanger
	logger zerolog.Logger
}

// NewDNSResolver creates a resolver. An empty nameserver means the first
// server from /etc/resolv.conf.
func NewDNSResolver(nameserver string, timeout time.Duration) (*DNSResolver, error) {
	if nameserver == "" {
		cfg, err := dns.ClientConfigFromFile(defaultResolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", defaultResolvConf, err)
		}
		if len(cfg.Servers) == 0 {
			return nil, fmt.Errorf("no nameservers in %s", defaultResolvConf)
		}
		nameserver = net.JoinHostPort(cfg.Servers[0], cfg.Port)
	} else if _, _, err := net.SplitHostPort(nameserver); err != nil {
		nameserver = net.JoinHostPort(nameserver, "53")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &DNSResolver{
		server: nameserver,
		client: &dns.Client{Timeout: timeout},
		logger: log.With().Str("component", "resolver").Logger(),
	}, nil
}

// Resolve returns the A and AAAA addresses of name.
func (r *DNSResolver) Resolve(ctx context.Context, name string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		msg := new(dns.Msg)
		msg.SetQuestion(dns.Fqdn(name), qtype)
		msg.RecursionDesired = true

		resp, _, err := r.client.ExchangeContext(ctx, msg, r.server)
		if err != nil {
			lastErr = err
			r.logger.Debug().Err(err).Str("name", name).Str("type", dns.TypeToString[qtype]).Msg("dns query failed")
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			lastErr = fmt.Errorf("%s lookup for %s: %s", dns.TypeToString[qtype], name, dns.RcodeToString[resp.Rcode])
			continue
		}
		for _, rr := range resp.Answer {
			switch rec := rr.(type) {
			case *dns.A:
				if a, ok := netip.AddrFromSlice(rec.A.To4()); ok {
					addrs = append(addrs, a)
				}
			case *dns.AAAA:
				if a, ok := netip.AddrFromSlice(rec.AAAA); ok {
					addrs = append(addrs, a)
				}
			}
		}
	}

	if len(addrs) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvable, name, lastErr)
		}
		return nil, fmt.Errorf("%w: %s", ErrUnresolvable, name)
	}
	r.logger.Debug().Str("name", name).Int("addresses", len(addrs)).Msg("resolved target")
	return addrs, nil
}
