// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package nmap

import (
	"bufio"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
)

// ErrMalformedOutput is returned when output carries no scan report at all.
var ErrMalformedOutput = errors.New("malformed nmap output")

var (
	reportLine  = regexp.MustCompile(`^Nmap scan report for (.+)$`)
	portLine    = regexp.MustCompile(`^(\d{1,5})/(tcp|udp|sctp)\s+(\S+)(?:\s+(\S+))?(?:\s+(.+))?$`)
	notShown    = regexp.MustCompile(`(\d+) ([a-z|]+) (?:tcp|udp|sctp) ports`)
	allIgnored  = regexp.MustCompile(`^All \d+ scanned ports on .+ are (?:in ignored states|([a-z|]+))`)
	osDetails   = regexp.MustCompile(`^(?:OS details|Running|Aggressive OS guesses): (.+)$`)
	reportAlive = regexp.MustCompile(`^Nmap done: `)
)

// hostReport is the parsed section of one "Nmap scan report for" block.
type hostReport struct {
	host    string
	results map[int]probe.Result
	ignored probe.State
}

// parseNormal reads nmap's normal (-oN) output. Ports of the requested set
// that nmap folded into a single "Not shown" state are filled with that state.
func parseNormal(raw, prof, transport string, ports portset.PortSet) ([]probe.Result, string, error) {
	var (
		reports []*hostReport
		cur     *hostReport
		osGuess string
		sawDone bool
	)

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r ")

		if m := reportLine.FindStringSubmatch(line); m != nil {
			cur = &hostReport{host: hostAddr(m[1]), results: map[int]probe.Result{}}
			reports = append(reports, cur)
			continue
		}
		if reportAlive.MatchString(line) {
			sawDone = true
			continue
		}
		if cur == nil {
			continue
		}

		if m := portLine.FindStringSubmatch(line); m != nil {
			port, err := strconv.Atoi(m[1])
			if err != nil || port < portset.MinPort || port > portset.MaxPort {
				continue
			}
			res := probe.Result{
				Profile:   prof,
				Host:      cur.host,
				Port:      port,
				Transport: m[2],
				State:     probe.ParseState(m[3]),
				Service:   m[4],
				Version:   strings.TrimSpace(m[5]),
				Raw:       line,
			}
			cur.results[port] = res
			continue
		}
		if strings.HasPrefix(line, "Not shown:") {
			cur.ignored = singleIgnoredState(line)
			continue
		}
		if m := allIgnored.FindStringSubmatch(line); m != nil && m[1] != "" {
			cur.ignored = probe.ParseState(m[1])
			continue
		}
		if m := osDetails.FindStringSubmatch(line); m != nil && osGuess == "" {
			osGuess = strings.TrimSpace(m[1])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, "", err
	}
	if len(reports) == 0 {
		if sawDone {
			// every host was down or filtered out by nmap itself
			return nil, osGuess, nil
		}
		return nil, "", ErrMalformedOutput
	}

	var results []probe.Result
	for _, rep := range reports {
		for _, port := range ports.Ports() {
			if res, ok := rep.results[port]; ok {
				results = append(results, res)
				continue
			}
			if rep.ignored.Known() {
				results = append(results, probe.Result{
					Profile:   prof,
					Host:      rep.host,
					Port:      port,
					Transport: transport,
					State:     rep.ignored,
				})
			}
		}
	}
	return results, osGuess, nil
}

var (
	traceHeader = regexp.MustCompile(`^TRACEROUTE(?: \(.*\))?$`)
	hopLine     = regexp.MustCompile(`^(\d+)\s+(--|[\d.]+ ms)\s+(\S.*)$`)
	hopsSame    = regexp.MustCompile(`^Hops? (\d+)(?:-(\d+))? (?:is|are) the same as for (\S+)$`)
)

// parseTraceroute reads the TRACEROUTE sections of normal output into a
// per-host hop list. Unanswered hops are omitted.
func parseTraceroute(raw string) map[string][]probe.Hop {
	var (
		routes  map[string][]probe.Hop
		host    string
		inTrace bool
	)

	sc := bufio.NewScanner(strings.NewReader(raw))
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r ")

		if m := reportLine.FindStringSubmatch(line); m != nil {
			host, inTrace = hostAddr(m[1]), false
			continue
		}
		if traceHeader.MatchString(line) {
			inTrace = host != ""
			continue
		}
		if !inTrace {
			continue
		}
		if line == "" {
			inTrace = false
			continue
		}

		if m := hopsSame.FindStringSubmatch(line); m != nil {
			from, _ := strconv.Atoi(m[1])
			to := from
			if m[2] != "" {
				to, _ = strconv.Atoi(m[2])
			}
			for _, hop := range routes[m[3]] {
				if hop.TTL >= from && hop.TTL <= to {
					routes = addHop(routes, host, hop)
				}
			}
			continue
		}
		m := hopLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ttl, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		hop := probe.Hop{TTL: ttl, Address: hostAddr(m[3])}
		if name := strings.TrimSpace(strings.TrimSuffix(m[3], "("+hop.Address+")")); name != hop.Address {
			hop.Name = name
		}
		if rtt, err := strconv.ParseFloat(strings.TrimSuffix(m[2], " ms"), 64); err == nil {
			hop.RTT = rtt
		}
		routes = addHop(routes, host, hop)
	}
	return routes
}

func addHop(routes map[string][]probe.Hop, host string, hop probe.Hop) map[string][]probe.Hop {
	if routes == nil {
		routes = make(map[string][]probe.Hop)
	}
	routes[host] = append(routes[host], hop)
	return routes
}

// singleIgnoredState returns the folded state when "Not shown" lists exactly one.
func singleIgnoredState(line string) probe.State {
	matches := notShown.FindAllStringSubmatch(line, -1)
	if len(matches) != 1 {
		return probe.StateUnknown
	}
	return probe.ParseState(matches[0][2])
}

// hostAddr extracts the address from "name (1.2.3.4)" or returns s.
func hostAddr(s string) string {
	if i := strings.LastIndex(s, "("); i >= 0 && strings.HasSuffix(s, ")") {
		return s[i+1 : len(s)-1]
	}
	return strings.TrimSpace(s)
}

var versionPattern = regexp.MustCompile(`Nmap version (\d+\.\d+(?:\.\d+)?)`)

// parseVersion extracts the version from `nmap --version` output.
func parseVersion(out string) (string, bool) {
	m := versionPattern.FindStringSubmatch(out)
	if m == nil {
		return "", false
	}
	return m[1], true
}
