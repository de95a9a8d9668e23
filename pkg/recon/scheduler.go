package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vulntor/fwrecon/pkg/portset"
	"github.com/vulntor/fwrecon/pkg/probe"
	"github.com/vulntor/fwrecon/pkg/profile"
	"github.com/vulntor/fwrecon/pkg/target"
)

const (
	// DefaultConcurrency bounds the parallel stealth stage.
	DefaultConcurrency = 3
	// DefaultTechniqueTimeout applies when neither the profile nor the run sets one.
	DefaultTechniqueTimeout = 5 * time.Minute

	defaultRetryBackoff = 2 * time.Second
)

// errMalformed is recorded when an engine returns neither an observation nor an error.
var errMalformed = errors.New("engine returned no observation")

// SchedulerConfig tunes the fan-out.
type SchedulerConfig struct {
	Concurrency int
	Timeout     time.Duration
	// DispatchRate caps technique starts per second; zero disables pacing.
	DispatchRate float64
	// RetryBackoff is the initial wait before retrying a timed-out technique.
	RetryBackoff time.Duration
}

// Scheduler runs profiles against a target stage by stage.
type Scheduler struct {
	engine  probe.Engine
	cfg     SchedulerConfig
	limiter *rate.Limiter
	metrics *Metrics
	emitter emitter
	logger  zerolog.Logger
}

// NewScheduler builds a scheduler; zero config values take defaults.
func NewScheduler(engine probe.Engine, cfg SchedulerConfig) *Scheduler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTechniqueTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}

	s := &Scheduler{
		engine: engine,
		cfg:    cfg,
		logger: log.With().Str("component", "scheduler").Logger(),
	}
	if cfg.DispatchRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRate), 1)
	}
	return s
}

// Run executes profiles grouped by stage and streams every observation into agg.
// It returns the stages in which every technique failed. Failures are recorded
// on agg and never stop the run.
func (s *Scheduler) Run(ctx context.Context, t target.Target, ports portset.PortSet, profiles []profile.ScanProfile, agg *Aggregator) []profile.Stage {
	var degraded []profile.Stage

	for _, stage := range profile.Stages() {
		batch := stageProfiles(profiles, stage)
		if len(batch) == 0 {
			continue
		}

		s.logger.Info().Str("stage", string(stage)).Strs("profiles", profile.Names(batch)).Msg("starting stage")
		var ok []bool
		if stage.Parallel() {
			ok = s.runParallel(ctx, t, ports, batch, agg)
		} else {
			ok = s.runSequential(ctx, t, ports, batch, agg)
		}

		if allFailed(ok) {
			s.logger.Warn().Str("stage", string(stage)).Msg("every technique in stage failed, marking degraded")
			s.emitter.emit(PhaseFanningOut, "", string(stage), string(StatusDegraded), "all techniques failed")
			degraded = append(degraded, stage)
		}
	}
	return degraded
}

func (s *Scheduler) runParallel(ctx context.Context, t target.Target, ports portset.PortSet, batch []profile.ScanProfile, agg *Aggregator) []bool {
	ok := make([]bool, len(batch))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, p := range batch {
		if ctx.Err() != nil {
			s.skip(p, agg, ctx.Err())
			continue
		}
		g.Go(func() error {
			ok[i] = s.runOne(ctx, t, ports, p, agg)
			return nil
		})
	}
	_ = g.Wait()
	return ok
}

func (s *Scheduler) runSequential(ctx context.Context, t target.Target, ports portset.PortSet, batch []profile.ScanProfile, agg *Aggregator) []bool {
	ok := make([]bool, len(batch))
	for i, p := range batch {
		if ctx.Err() != nil {
			s.skip(p, agg, ctx.Err())
			continue
		}
		ok[i] = s.runOne(ctx, t, ports, p, agg)
	}
	return ok
}

func (s *Scheduler) skip(p profile.ScanProfile, agg *Aggregator, cause error) {
	agg.RecordFailure(Failure{
		Profile: p.Name,
		Stage:   string(p.Stage),
		Reason:  ReasonCanceled,
		Error:   fmt.Sprintf("not started: %v", cause),
	})
	s.metrics.observeProbe(p.Name, string(ReasonCanceled), 0)
	s.emitter.emit(PhaseFanningOut, p.Name, string(p.Stage), StatusSkipped, cause.Error())
}

// runOne invokes a single technique, retrying on timeout, and reports success.
func (s *Scheduler) runOne(ctx context.Context, t target.Target, ports portset.PortSet, p profile.ScanProfile, agg *Aggregator) bool {
	logger := s.logger.With().Str("profile", p.Name).Logger()

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.skip(p, agg, err)
			return false
		}
	}

	timeout := s.cfg.Timeout
	if p.Opts.Timeout > 0 {
		timeout = p.Opts.Timeout
	}

	s.emitter.emit(PhaseFanningOut, p.Name, string(p.Stage), StatusStart, "")
	start := time.Now()

	attempts := 0
	var obs *probe.Observation
	op := func() error {
		attempts++
		tctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		res, err := s.invoke(tctx, t, p, ports)
		if err == nil && tctx.Err() != nil {
			// Results that arrive after the deadline are discarded.
			res, err = nil, tctx.Err()
		}
		if err != nil {
			if isTimeout(ctx, tctx, err) {
				logger.Warn().Int("attempt", attempts).Dur("timeout", timeout).Msg("technique timed out")
				return fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
			}
			return backoff.Permanent(err)
		}
		if res == nil {
			return backoff.Permanent(errMalformed)
		}
		obs = res
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.RetryBackoff
	bo.MaxElapsedTime = 0
	retries := p.Opts.Retries
	if retries < 0 {
		retries = 0
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries)), ctx))
	elapsed := time.Since(start)

	if err != nil {
		reason := failureReason(ctx, err)
		agg.RecordFailure(Failure{
			Profile:  p.Name,
			Stage:    string(p.Stage),
			Reason:   reason,
			Error:    err.Error(),
			Attempts: attempts,
		})
		s.metrics.observeProbe(p.Name, string(reason), elapsed)
		logger.Warn().Err(err).Str("reason", string(reason)).Int("attempts", attempts).Msg("technique failed")
		s.emitter.emit(PhaseFanningOut, p.Name, string(p.Stage), StatusFailed, err.Error())
		return false
	}

	if obs.Profile == "" {
		obs.Profile = p.Name
	}
	agg.Merge(obs)
	s.metrics.observeProbe(p.Name, "ok", elapsed)
	logger.Info().Int("results", len(obs.Results)).Dur("elapsed", elapsed).Msg("technique completed")
	s.emitter.emit(PhaseFanningOut, p.Name, string(p.Stage), StatusDone, fmt.Sprintf("results=%d", len(obs.Results)))
	return true
}

type engineOutcome struct {
	obs *probe.Observation
	err error
}

// invoke calls the engine and returns once it answers or ctx ends, whichever
// comes first. An engine that ignores ctx is left to finish in the background.
func (s *Scheduler) invoke(ctx context.Context, t target.Target, p profile.ScanProfile, ports portset.PortSet) (*probe.Observation, error) {
	done := make(chan engineOutcome, 1)
	go func() {
		obs, err := s.engine.Probe(ctx, t, p, ports)
		done <- engineOutcome{obs: obs, err: err}
	}()

	select {
	case out := <-done:
		return out.obs, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// isTimeout reports whether err came from the per-technique deadline rather
// than run cancellation.
func isTimeout(runCtx, techCtx context.Context, err error) bool {
	if runCtx.Err() != nil {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(techCtx.Err(), context.DeadlineExceeded)
}

func failureReason(ctx context.Context, err error) FailureReason {
	switch {
	case errors.Is(err, errMalformed):
		return ReasonMalformed
	case ctx.Err() != nil:
		return ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	default:
		return ReasonError
	}
}

func stageProfiles(profiles []profile.ScanProfile, stage profile.Stage) []profile.ScanProfile {
	var out []profile.ScanProfile
	for _, p := range profiles {
		if p.Stage == stage {
			out = append(out, p)
		}
	}
	return out
}

func allFailed(ok []bool) bool {
	for _, v := range ok {
		if v {
			return false
		}
	}
	return len(ok) > 0
}
