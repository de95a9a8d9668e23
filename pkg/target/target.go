// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package target parses and expands scan targets.
package target

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/go-playground/validator/v10"
	"go4.org/netipx"
)

// ErrInvalidTarget is wrapped by every parse failure.
var ErrInvalidTarget = errors.New("invalid target")

// ErrTooManyHosts is returned by Hosts when a block exceeds the cap.
var ErrTooManyHosts = errors.New("target expands to too many hosts")

// MaxExpandableHosts bounds Hosts regardless of the caller's cap.
const MaxExpandableHosts = 1 << 16

// Kind classifies a target.
type Kind string

const (
	KindHost   Kind = "host"
	KindCIDR   Kind = "cidr"
	KindDomain Kind = "domain"
)

var validate = validator.New()

// Target is an immutable scan target.
type Target struct {
	Raw    string       `json:"raw" yaml:"raw"`
	Kind   Kind         `json:"kind" yaml:"kind"`
	Addr   netip.Addr   `json:"-" yaml:"-"`
	Prefix netip.Prefix `json:"-" yaml:"-"`
	// Scope narrows the addresses handed to engines, e.g. to live hosts.
	Scope []string `json:"scope,omitempty" yaml:"scope,omitempty"`
}

// Parse validates raw as an IP address, CIDR block or domain name.
func Parse(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrInvalidTarget)
	}

	switch {
	case validate.Var(raw, "ip") == nil:
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		return Target{Raw: raw, Kind: KindHost, Addr: addr.Unmap()}, nil
	case validate.Var(raw, "cidr") == nil:
		prefix, err := netip.ParsePrefix(raw)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
		}
		return Target{Raw: raw, Kind: KindCIDR, Prefix: prefix.Masked()}, nil
	case validate.Var(raw, "fqdn") == nil, validate.Var(raw, "hostname_rfc1123") == nil:
		if strings.Count(raw, ".") == 3 && strings.Trim(raw, "0123456789.") == "" {
			// dotted quad that failed ip validation, e.g. 300.1.1.1
			return Target{}, fmt.Errorf("%w: %q is not a valid IPv4 address", ErrInvalidTarget, raw)
		}
		return Target{Raw: raw, Kind: KindDomain}, nil
	default:
		return Target{}, fmt.Errorf("%w: %q is not an IP address, CIDR block or host name", ErrInvalidTarget, raw)
	}
}

// String returns the target as given by the user.
func (t Target) String() string { return t.Raw }

// Args returns the addresses engines should receive.
func (t Target) Args() []string {
	if len(t.Scope) > 0 {
		out := make([]string, len(t.Scope))
		copy(out, t.Scope)
		return out
	}
	switch t.Kind {
	case KindHost:
		return []string{t.Addr.String()}
	case KindCIDR:
		return []string{t.Prefix.String()}
	default:
		return []string{t.Raw}
	}
}

// WithScope returns a copy restricted to the given addresses.
func (t Target) WithScope(hosts []string) Target {
	out := t
	out.Scope = append([]string(nil), hosts...)
	return out
}

// Hosts expands the target into individual addresses. Domains expand to
// their name; use a Resolver for addresses. For IPv4 blocks wider than /31
// the network and broadcast addresses are skipped. maxHosts <= 0 leaves only
// the MaxExpandableHosts ceiling.
func (t Target) Hosts(maxHosts int) ([]string, error) {
	switch t.Kind {
	case KindHost:
		return []string{t.Addr.String()}, nil
	case KindDomain:
		return []string{t.Raw}, nil
	}

	r := netipx.RangeOfPrefix(t.Prefix)
	if !r.IsValid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTarget, t.Raw)
	}

	limit := MaxExpandableHosts
	if maxHosts > 0 && maxHosts < limit {
		limit = maxHosts
	}
	size, ok := t.blockSize(limit)
	if !ok {
		return nil, fmt.Errorf("%w: %s exceeds %d hosts", ErrTooManyHosts, t.Raw, limit)
	}

	from, to := r.From(), r.To()
	if t.Prefix.Addr().Is4() && t.Prefix.Bits() < 31 {
		from, to = from.Next(), to.Prev()
	}

	hosts := make([]string, 0, size)
	for a := from; a.IsValid() && a.Compare(to) <= 0; a = a.Next() {
		hosts = append(hosts, a.String())
	}
	return hosts, nil
}

// blockSize returns the number of hosts Hosts would yield for a CIDR target,
// or false when that number exceeds limit.
func (t Target) blockSize(limit int) (int, bool) {
	hostBits := t.Prefix.Addr().BitLen() - t.Prefix.Bits()
	if hostBits >= 31 {
		return 0, false
	}
	size := 1 << hostBits
	if t.Prefix.Addr().Is4() && t.Prefix.Bits() < 31 {
		size -= 2
	}
	return size, size <= limit
}
