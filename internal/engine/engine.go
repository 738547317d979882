package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dungeonload/internal/pool"
	"dungeonload/internal/schedule"
	"dungeonload/internal/stats"
	"dungeonload/internal/threshold"
)

const (
	DefaultUpdateInterval = 200 * time.Millisecond
	DefaultGracefulStop   = 30 * time.Second
)

var errAllExhausted = errors.New("every user ran its iterations")

type Options struct {
	Profile schedule.Profile
	Tick    time.Duration
	MaxStep int

	Factory    pool.UserFactory
	Aggregator *stats.Aggregator
	Thresholds threshold.Set

	// IterationsPerVU > 0 ends the run once every user has run that many
	// iterations, even before the profile is over.
	IterationsPerVU int64
	// GracefulStop bounds the wait for users to finish after the deadline.
	GracefulStop time.Duration

	Updates        UpdateChan
	UpdateInterval time.Duration
	Logger         *zap.Logger
}

// Result is what a finished run leaves behind.
type Result struct {
	RunID      string           `json:"run_id"`
	StartedAt  time.Time        `json:"started_at"`
	EndedAt    time.Time        `json:"ended_at"`
	Profile    schedule.Profile `json:"-"`
	Summary    stats.Summary    `json:"summary"`
	Thresholds threshold.Report `json:"thresholds"`
	// Interrupted is set when the caller cancelled the run early.
	Interrupted bool `json:"interrupted"`
	// Drained is false when users were still busy after GracefulStop.
	Drained bool `json:"drained"`
	// Samples is only filled when the aggregator keeps samples.
	Samples []stats.RequestSample `json:"-"`
}

func (r *Result) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Engine drives a pool of virtual users through a load profile.
type Engine struct {
	opts Options
	log  *zap.Logger
	agg  *stats.Aggregator

	target atomic.Int64
	stage  atomic.Int64
	last   atomic.Pointer[Snapshot]
}

func New(opts Options) (*Engine, error) {
	if err := opts.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}
	if opts.Factory == nil {
		return nil, errors.New("engine needs a user factory")
	}
	if opts.Tick <= 0 {
		opts.Tick = schedule.DefaultTick
	}
	if opts.GracefulStop <= 0 {
		opts.GracefulStop = DefaultGracefulStop
	}
	if opts.UpdateInterval <= 0 {
		opts.UpdateInterval = DefaultUpdateInterval
	}
	if opts.Updates == nil {
		// Avoid nil panics if not provided
		opts.Updates = make(UpdateChan, 10)
	}
	agg := opts.Aggregator
	if agg == nil {
		agg = stats.NewAggregator()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{opts: opts, log: log, agg: agg}, nil
}

func (e *Engine) Aggregator() *stats.Aggregator {
	return e.agg
}

func (e *Engine) Updates() UpdateChan {
	return e.opts.Updates
}

// Run blocks until the profile is over (or ctx is cancelled), the users have
// drained and the thresholds have been evaluated. Request failures never make
// Run return an error; they end up in the summary.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	p := e.opts.Profile
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now(), Profile: p}

	pl, err := pool.New(e.opts.Factory, pool.Options{
		MaxVUs:          p.MaxTarget(),
		IterationsPerVU: e.opts.IterationsPerVU,
		Logger:          e.log,
		OnPanic:         func(int64, any) { e.agg.RecordPanic() },
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("run started",
		zap.String("run_id", res.RunID),
		zap.Duration("duration", p.TotalDuration()),
		zap.Int("max_vus", p.MaxTarget()),
		zap.Int("stages", len(p.Stages)),
	)

	runCtx, cancel := context.WithTimeout(ctx, p.TotalDuration())
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return e.schedule(gctx, pl, res.StartedAt)
	})
	g.Go(func() error {
		e.publish(gctx, pl, res.StartedAt)
		return nil
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errAllExhausted) {
		return nil, err
	}
	res.Interrupted = ctx.Err() != nil

	pl.Stop()
	cancel()
	graceCtx, cancelGrace := context.WithTimeout(context.WithoutCancel(ctx), e.opts.GracefulStop)
	defer cancelGrace()
	res.Drained = pl.WaitContext(graceCtx) == nil
	if !res.Drained {
		e.log.Warn("users still running after graceful stop",
			zap.Duration("graceful_stop", e.opts.GracefulStop),
			zap.Int("remaining", pl.Size()-pl.Exhausted()),
		)
	}

	res.EndedAt = time.Now()
	e.send(e.snapshot(pl, res.StartedAt, true))

	res.Summary = e.agg.Summary()
	res.Samples = e.agg.Samples()
	res.Thresholds = e.opts.Thresholds.Evaluate(res.Summary)
	e.log.Info("run finished",
		zap.String("run_id", res.RunID),
		zap.Duration("took", res.Duration()),
		zap.Uint64("requests", res.Summary.Requests),
		zap.Uint64("iterations", res.Summary.Iterations),
		zap.Bool("thresholds_passed", res.Thresholds.Passed),
		zap.Bool("interrupted", res.Interrupted),
	)
	return res, nil
}

// schedule applies the scheduler target to the pool once per tick.
func (e *Engine) schedule(ctx context.Context, pl *pool.Pool, start time.Time) error {
	p := e.opts.Profile
	sched := schedule.NewScheduler(p, e.opts.Tick, e.opts.MaxStep)
	lastStage := -1

	apply := func() error {
		elapsed := time.Since(start)
		target := sched.Next(elapsed)
		stage := p.StageAt(elapsed)
		if stage != lastStage && stage < len(p.Stages) {
			s := p.Stages[stage]
			e.log.Info("stage started",
				zap.Int("stage", stage+1),
				zap.Duration("duration", s.Duration),
				zap.Int("target", s.Target),
			)
		}
		lastStage = stage
		e.stage.Store(int64(stage))
		e.target.Store(int64(target))
		pl.Scale(ctx, target)

		if e.opts.IterationsPerVU > 0 && pl.Exhausted() >= p.MaxTarget() {
			return errAllExhausted
		}
		return nil
	}

	if err := apply(); err != nil {
		return err
	}
	ticker := time.NewTicker(e.opts.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := apply(); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) publish(ctx context.Context, pl *pool.Pool, start time.Time) {
	ticker := time.NewTicker(e.opts.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.send(e.snapshot(pl, start, false))
		}
	}
}

// Latest returns the most recent snapshot, if the run has published one.
func (e *Engine) Latest() (Snapshot, bool) {
	s := e.last.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

func (e *Engine) send(s Snapshot) {
	e.last.Store(&s)
	// Non-blocking send
	select {
	case e.opts.Updates <- s:
	default:
		// Drop update if channel full, UI acts as backpressure
	}
}
