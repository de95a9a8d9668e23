package recon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

func testTarget(t *testing.T) target.Target {
	t.Helper()
	tgt, err := target.Parse("10.0.0.5")
	require.NoError(t, err)
	return tgt
}

func TestSchedulerFailureLeavesColumnUnknown(t *testing.T) {
	engine := newStubEngine().
		with("ACK", map[int]probe.State{22: probe.StateOpen, 80: probe.StateOpen}).
		with("FIN", map[int]probe.State{22: probe.StateClosed, 80: probe.StateClosed})
	engine.errs["SYN"] = errors.New("exit status 1")

	profiles := mustSelect("SYN", "ACK", "FIN")
	ports := portset.New(22, 80)
	agg := NewAggregator(ports, profiles)

	degraded := NewScheduler(engine, SchedulerConfig{}).Run(context.Background(), testTarget(t), ports, profiles, agg)
	assert.Empty(t, degraded)

	verdicts, failures, _ := agg.Snapshot()
	require.Len(t, failures, 1)
	assert.Equal(t, "SYN", failures[0].Profile)
	assert.Equal(t, ReasonError, failures[0].Reason)
	for _, v := range verdicts {
		assert.Equal(t, probe.StateUnknown, v.States["SYN"])
		assert.Equal(t, probe.StateOpen, v.States["ACK"])
		assert.Equal(t, probe.StateClosed, v.States["FIN"])
	}
}

func TestSchedulerTimeoutRetriesThenFails(t *testing.T) {
	engine := newStubEngine()
	engine.hang["SYN"] = true

	reg, err := profile.NewRegistry().WithOverrides(map[string]map[string]interface{}{
		"SYN": {"timeout": "20ms", "retries": 2},
	})
	require.NoError(t, err)
	profiles, err := reg.Select([]string{"SYN"})
	require.NoError(t, err)

	ports := portset.New(22)
	agg := NewAggregator(ports, profiles)
	degraded := NewScheduler(engine, SchedulerConfig{RetryBackoff: time.Millisecond}).
		Run(context.Background(), testTarget(t), ports, profiles, agg)

	assert.Equal(t, []profile.Stage{profile.StageStealth}, degraded)
	assert.Equal(t, 3, engine.callCount("SYN"))

	_, failures, _ := agg.Snapshot()
	require.Len(t, failures, 1)
	assert.Equal(t, ReasonTimeout, failures[0].Reason)
	assert.Equal(t, 3, failures[0].Attempts)
}

func TestSchedulerDiscardsResultsPastDeadline(t *testing.T) {
	// The engine ignores ctx and answers long after the deadline.
	engine := probe.EngineFunc(func(_ context.Context, _ target.Target, p profile.ScanProfile, _ portset.PortSet) (*probe.Observation, error) {
		time.Sleep(300 * time.Millisecond)
		return &probe.Observation{
			Profile: p.Name,
			Results: []probe.Result{{Profile: p.Name, Port: 22, Transport: "tcp", State: probe.StateOpen}},
		}, nil
	})

	reg, err := profile.NewRegistry().WithOverrides(map[string]map[string]interface{}{
		"SYN": {"retries": 0},
	})
	require.NoError(t, err)
	profiles, err := reg.Select([]string{"SYN"})
	require.NoError(t, err)

	ports := portset.New(22)
	agg := NewAggregator(ports, profiles)

	start := time.Now()
	degraded := NewScheduler(engine, SchedulerConfig{Timeout: 20 * time.Millisecond}).
		Run(context.Background(), testTarget(t), ports, profiles, agg)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	assert.Equal(t, []profile.Stage{profile.StageStealth}, degraded)
	assert.Equal(t, probe.StateUnknown, agg.State(22, "SYN"))

	_, failures, _ := agg.Snapshot()
	require.Len(t, failures, 1)
	assert.Equal(t, "SYN", failures[0].Profile)
	assert.Equal(t, ReasonTimeout, failures[0].Reason)
}

func TestSchedulerInvokeDropsAnswerAfterDeadline(t *testing.T) {
	release := make(chan struct{})
	engine := probe.EngineFunc(func(context.Context, target.Target, profile.ScanProfile, portset.PortSet) (*probe.Observation, error) {
		<-release
		return &probe.Observation{}, nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	obs, err := NewScheduler(engine, SchedulerConfig{}).invoke(ctx, testTarget(t), mustSelect("SYN")[0], portset.New(22))
	assert.Nil(t, obs)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSchedulerRespectsConcurrencyBound(t *testing.T) {
	engine := newStubEngine()
	engine.delay = 20 * time.Millisecond

	profiles := mustSelect("SYN", "ACK", "FIN", "NULL", "XMAS", "WINDOW")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)

	NewScheduler(engine, SchedulerConfig{Concurrency: 2}).Run(context.Background(), testTarget(t), ports, profiles, agg)

	assert.LessOrEqual(t, engine.peak, int32(2))
	for _, p := range profiles {
		assert.Equal(t, 1, engine.callCount(p.Name), p.Name)
	}
}

func TestSchedulerSequentialStagesRunAfterBatch(t *testing.T) {
	engine := newStubEngine()
	engine.delay = 5 * time.Millisecond

	sink := &recordingSink{}
	profiles := mustSelect("SYN", "ACK", "UDP", "SERVICE_OS")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)

	sched := NewScheduler(engine, SchedulerConfig{Concurrency: 3})
	sched.emitter = emitter{sink: sink}
	sched.Run(context.Background(), testTarget(t), ports, profiles, agg)

	var order []string
	for _, ev := range sink.events {
		if ev.Status == StatusDone {
			order = append(order, ev.Profile)
		}
	}
	require.Len(t, order, 4)
	assert.ElementsMatch(t, []string{"SYN", "ACK"}, order[:2])
	assert.Equal(t, []string{"UDP", "SERVICE_OS"}, order[2:])
}

func TestSchedulerAllFailedStageIsDegraded(t *testing.T) {
	engine := newStubEngine().with("UDP", map[int]probe.State{53: probe.StateOpenFiltered})
	engine.errs["SYN"] = errors.New("boom")
	engine.errs["ACK"] = errors.New("boom")

	profiles := mustSelect("SYN", "ACK", "UDP")
	ports := portset.New(53)
	agg := NewAggregator(ports, profiles)

	degraded := NewScheduler(engine, SchedulerConfig{}).Run(context.Background(), testTarget(t), ports, profiles, agg)
	assert.Equal(t, []profile.Stage{profile.StageStealth}, degraded)
	assert.Equal(t, probe.StateOpenFiltered, agg.State(53, "UDP"))
}

func TestSchedulerMalformedObservation(t *testing.T) {
	engine := probe.EngineFunc(func(context.Context, target.Target, profile.ScanProfile, portset.PortSet) (*probe.Observation, error) {
		return nil, nil
	})

	profiles := mustSelect("ACK")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)
	NewScheduler(engine, SchedulerConfig{}).Run(context.Background(), testTarget(t), ports, profiles, agg)

	_, failures, _ := agg.Snapshot()
	require.Len(t, failures, 1)
	assert.Equal(t, ReasonMalformed, failures[0].Reason)
}

func TestSchedulerCancellationStopsDispatch(t *testing.T) {
	engine := newStubEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	profiles := mustSelect("SYN", "ACK", "UDP")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)
	NewScheduler(engine, SchedulerConfig{}).Run(ctx, testTarget(t), ports, profiles, agg)

	assert.Zero(t, engine.callCount("SYN"))
	assert.Zero(t, engine.callCount("UDP"))

	_, failures, _ := agg.Snapshot()
	require.Len(t, failures, 3)
	for _, fl := range failures {
		assert.Equal(t, ReasonCanceled, fl.Reason)
	}
}

func TestSchedulerCancelInFlight(t *testing.T) {
	engine := newStubEngine()
	engine.hang["SYN"] = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	profiles := mustSelect("SYN", "UDP")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)
	NewScheduler(engine, SchedulerConfig{Timeout: time.Minute}).Run(ctx, testTarget(t), ports, profiles, agg)

	_, failures, _ := agg.Snapshot()
	require.Len(t, failures, 2)
	assert.Equal(t, "SYN", failures[0].Profile)
	assert.Equal(t, ReasonCanceled, failures[0].Reason)
	assert.Equal(t, "UDP", failures[1].Profile)
	assert.Equal(t, ReasonCanceled, failures[1].Reason)
	assert.Zero(t, engine.callCount("UDP"))
}

func TestSchedulerDispatchRate(t *testing.T) {
	engine := newStubEngine()
	profiles := mustSelect("SYN", "ACK", "FIN")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)

	start := time.Now()
	NewScheduler(engine, SchedulerConfig{Concurrency: 3, DispatchRate: 20}).
		Run(context.Background(), testTarget(t), ports, profiles, agg)

	// burst of one, then 50ms spacing for the remaining two
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestSchedulerMetrics(t *testing.T) {
	engine := newStubEngine()
	engine.errs["ACK"] = errors.New("boom")

	profiles := mustSelect("SYN", "ACK")
	ports := portset.New(80)
	agg := NewAggregator(ports, profiles)

	m := NewMetrics()
	sched := NewScheduler(engine, SchedulerConfig{})
	sched.metrics = m
	sched.Run(context.Background(), testTarget(t), ports, profiles, agg)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, fam := range families {
		if fam.GetName() == "fwrecon_probe_invocations_total" {
			for _, metric := range fam.GetMetric() {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(2), total)
}
