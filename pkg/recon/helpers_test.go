package recon

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

// stubEngine answers each profile from a fixed table of port states.
type stubEngine struct {
	states map[string]map[int]probe.State
	errs   map[string]error
	// hang makes the named profiles block until their context ends.
	hang  map[string]bool
	delay time.Duration

	mu       sync.Mutex
	calls    map[string]int
	inflight int32
	peak     int32
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		states: map[string]map[int]probe.State{},
		errs:   map[string]error{},
		hang:   map[string]bool{},
		calls:  map[string]int{},
	}
}

func (s *stubEngine) with(prof string, states map[int]probe.State) *stubEngine {
	s.states[prof] = states
	return s
}

func (s *stubEngine) Probe(ctx context.Context, _ target.Target, p profile.ScanProfile, _ portset.PortSet) (*probe.Observation, error) {
	s.mu.Lock()
	s.calls[p.Name]++
	s.mu.Unlock()

	cur := atomic.AddInt32(&s.inflight, 1)
	defer atomic.AddInt32(&s.inflight, -1)
	for {
		old := atomic.LoadInt32(&s.peak)
		if cur <= old || atomic.CompareAndSwapInt32(&s.peak, old, cur) {
			break
		}
	}

	if s.hang[p.Name] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.errs[p.Name]; err != nil {
		return nil, err
	}

	obs := &probe.Observation{Profile: p.Name}
	for port, st := range s.states[p.Name] {
		obs.Results = append(obs.Results, probe.Result{Profile: p.Name, Port: port, Transport: p.Transport(), State: st})
	}
	return obs, nil
}

func (s *stubEngine) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

type stubDiscoverer struct {
	raw       string
	err       error
	checkErr  error
	discovers int32
}

func (d *stubDiscoverer) Discover(context.Context, target.Target) (string, error) {
	atomic.AddInt32(&d.discovers, 1)
	return d.raw, d.err
}

func (d *stubDiscoverer) CheckCapability(context.Context) error {
	return d.checkErr
}

type recordingSink struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (r *recordingSink) OnEvent(ev ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) statuses(prof string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Profile == prof {
			out = append(out, ev.Status)
		}
	}
	return out
}

func mustSelect(names ...string) []profile.ScanProfile {
	profiles, err := profile.NewRegistry().Select(names)
	if err != nil {
		panic(err)
	}
	return profiles
}
