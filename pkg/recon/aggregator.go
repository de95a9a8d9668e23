package recon

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
)

type serviceGuess struct {
	name    string
	version string
}

// Aggregator merges streamed probe results into per-port state maps.
// Every (port, profile) pair starts as unknown; later results overwrite earlier ones.
type Aggregator struct {
	mu       sync.Mutex
	ports    portset.PortSet
	profiles []string
	states   map[int]map[string]probe.State
	services map[int]serviceGuess
	failures []Failure
	os       string
	routes   map[string][]probe.Hop
	logger   zerolog.Logger
}

// NewAggregator seeds a state map for every port and profile.
func NewAggregator(ports portset.PortSet, profiles []profile.ScanProfile) *Aggregator {
	names := profile.Names(profiles)
	states := make(map[int]map[string]probe.State, ports.Len())
	for _, port := range ports.Ports() {
		row := make(map[string]probe.State, len(names))
		for _, name := range names {
			row[name] = probe.StateUnknown
		}
		states[port] = row
	}
	return &Aggregator{
		ports:    ports,
		profiles: names,
		states:   states,
		services: make(map[int]serviceGuess),
		logger:   log.With().Str("component", "aggregator").Logger(),
	}
}

// Merge folds one technique's observation into the state maps.
func (a *Aggregator) Merge(obs *probe.Observation) {
	if obs == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range obs.Results {
		if r.Profile == "" {
			r.Profile = obs.Profile
		}
		a.mergeLocked(r)
	}
	if obs.OS != "" {
		a.os = obs.OS
	}
	for host, hops := range obs.Routes {
		if len(hops) == 0 {
			continue
		}
		if a.routes == nil {
			a.routes = make(map[string][]probe.Hop)
		}
		a.routes[host] = append([]probe.Hop(nil), hops...)
	}
}

// MergeResult folds a single result.
func (a *Aggregator) MergeResult(r probe.Result) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.mergeLocked(r)
}

func (a *Aggregator) mergeLocked(r probe.Result) {
	row, ok := a.states[r.Port]
	if !ok {
		a.logger.Debug().Int("port", r.Port).Str("profile", r.Profile).Msg("ignoring result for port outside the port set")
		return
	}
	if _, ok := row[r.Profile]; !ok {
		a.logger.Debug().Str("profile", r.Profile).Msg("ignoring result for unselected profile")
		return
	}
	state := r.State
	if state == "" {
		state = probe.StateUnknown
	}
	row[r.Profile] = state
	if r.Service != "" || r.Version != "" {
		a.services[r.Port] = serviceGuess{name: r.Service, version: r.Version}
	}
}

// RecordFailure notes a technique-level failure. The technique's column stays unknown.
func (a *Aggregator) RecordFailure(f Failure) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failures = append(a.failures, f)
}

// State returns the current state of (port, profile).
func (a *Aggregator) State(port int, prof string) probe.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if row, ok := a.states[port]; ok {
		if s, ok := row[prof]; ok {
			return s
		}
	}
	return probe.StateUnknown
}

// Snapshot returns copies of the per-port verdicts (unclassified), in port
// order, plus failures ordered by the profile catalog.
func (a *Aggregator) Snapshot() ([]PortVerdict, []Failure, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	verdicts := make([]PortVerdict, 0, a.ports.Len())
	for _, port := range a.ports.Ports() {
		row := make(map[string]probe.State, len(a.profiles))
		for name, s := range a.states[port] {
			row[name] = s
		}
		v := PortVerdict{Port: port, States: row}
		if g, ok := a.services[port]; ok {
			v.Service, v.Version = g.name, g.version
		}
		verdicts = append(verdicts, v)
	}

	order := make(map[string]int, len(a.profiles))
	for i, name := range a.profiles {
		order[name] = i
	}
	failures := make([]Failure, len(a.failures))
	copy(failures, a.failures)
	sortFailures(failures, order)

	return verdicts, failures, a.os
}

// Routes returns a copy of the traced paths keyed by host, or nil when no
// technique traced one.
func (a *Aggregator) Routes() map[string][]probe.Hop {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.routes) == 0 {
		return nil
	}
	out := make(map[string][]probe.Hop, len(a.routes))
	for host, hops := range a.routes {
		out[host] = append([]probe.Hop(nil), hops...)
	}
	return out
}

func sortFailures(failures []Failure, order map[string]int) {
	sort.SliceStable(failures, func(i, j int) bool {
		return order[failures[i].Profile] < order[failures[j].Profile]
	})
}
