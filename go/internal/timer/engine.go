// Package timer tracks a review timer and derives elapsed, countdown and
// over-time values from periodically sampled wall-clock time.
package timer

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultSampleInterval is how often a running timer re-reads the clock.
const DefaultSampleInterval = 100 * time.Millisecond

// ErrNegativeTarget is returned when a timer is started with a target below zero.
var ErrNegativeTarget = errors.New("target duration must not be negative")

// State is the raw timer state. Target is nil when no target is set.
type State struct {
	StartedAt time.Time
	Running   bool
	Target    *time.Duration
}

// Snapshot holds the values derived from State at the last sample.
type Snapshot struct {
	StartedAt time.Time      `json:"started_at"`
	SampledAt time.Time      `json:"sampled_at"`
	Running   bool           `json:"running"`
	Target    *time.Duration `json:"target,omitempty"`
	Elapsed   time.Duration  `json:"elapsed"`
	Countdown *time.Duration `json:"countdown,omitempty"` // only while running with a target
	OverTime  bool           `json:"over_time"`
}

// OverTimeBy is how far elapsed exceeds the target, or zero when not over time.
func (s Snapshot) OverTimeBy() time.Duration {
	if !s.OverTime {
		return 0
	}
	return s.Elapsed - *s.Target
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, typically with a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSampleInterval overrides DefaultSampleInterval.
func WithSampleInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithObserver registers fn to receive every sample taken while running.
func WithObserver(fn func(Snapshot)) Option {
	return func(e *Engine) { e.observer = fn }
}

// Engine owns one TimerState. It is safe for concurrent use.
type Engine struct {
	clock    clockwork.Clock
	interval time.Duration
	observer func(Snapshot)

	mu        sync.Mutex
	state     State
	sampledAt time.Time
	closed    bool

	// sampler is non-nil while the ticker goroutine runs. generation is bumped
	// every time sampling stops so that an in-flight tick can tell it is stale.
	sampler    *sampler
	generation uint64
}

type sampler struct {
	ticker clockwork.Ticker
	done   chan struct{}
}

// NewEngine returns a stopped timer whose start instant is now.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		clock:    clockwork.NewRealClock(),
		interval: DefaultSampleInterval,
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.clock.Now()
	e.state = State{StartedAt: now}
	e.sampledAt = now
	return e
}

// Start begins a plain timer with no target.
func (e *Engine) Start() Snapshot {
	return e.start(nil)
}

// StartWithTarget begins a timer that counts down to target.
func (e *Engine) StartWithTarget(target time.Duration) (Snapshot, error) {
	if target < 0 {
		return e.Snapshot(), ErrNegativeTarget
	}
	return e.start(&target), nil
}

func (e *Engine) start(target *time.Duration) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.state = State{StartedAt: now, Running: true, Target: target}
	e.sampledAt = now
	if !e.closed {
		e.startSamplingLocked()
	}

	return e.snapshotLocked()
}

// Stop freezes the timer. Start instant and target are kept, so the readout
// still shows the elapsed time and over-time status at the moment of stopping.
func (e *Engine) Stop() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Running {
		e.sampledAt = e.clock.Now()
	}
	e.state.Running = false
	e.stopSamplingLocked()

	return e.snapshotLocked()
}

// Reset clears the target and restarts the timer at zero without running it.
func (e *Engine) Reset() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	e.state = State{StartedAt: now}
	e.sampledAt = now
	e.stopSamplingLocked()

	return e.snapshotLocked()
}

// Sample re-reads the clock if the timer is running and returns the derived
// values. A stopped timer is not resampled.
func (e *Engine) Sample() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Running {
		e.sampledAt = e.clock.Now()
	}
	return e.snapshotLocked()
}

// Snapshot returns the values derived at the last sample.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State returns a copy of the raw timer state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state
	if st.Target != nil {
		target := *st.Target
		st.Target = &target
	}
	return st
}

// Sampling reports whether the periodic sampler is active.
func (e *Engine) Sampling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampler != nil
}

// Close stops the sampler for good. Later starts update state but never
// resume sampling.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.stopSamplingLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		StartedAt: e.state.StartedAt,
		SampledAt: e.sampledAt,
		Running:   e.state.Running,
		Elapsed:   e.sampledAt.Sub(e.state.StartedAt),
	}

	if e.state.Target != nil {
		target := *e.state.Target
		snap.Target = &target

		if e.state.Running {
			countdown := max(0, target-snap.Elapsed)
			snap.Countdown = &countdown
		}
		snap.OverTime = snap.Elapsed > target
	}

	return snap
}

func (e *Engine) startSamplingLocked() {
	if e.sampler != nil {
		return
	}

	s := &sampler{
		ticker: e.clock.NewTicker(e.interval),
		done:   make(chan struct{}),
	}
	e.sampler = s
	go e.runSampler(s, e.generation)

	log.Debug().Dur("interval", e.interval).Msg("timer sampling started")
}

func (e *Engine) stopSamplingLocked() {
	if e.sampler == nil {
		return
	}

	e.sampler.ticker.Stop()
	close(e.sampler.done)
	e.sampler = nil
	e.generation++

	log.Debug().Msg("timer sampling stopped")
}

func (e *Engine) runSampler(s *sampler, generation uint64) {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.Chan():
			snap, ok := e.tick(generation)
			if !ok {
				return
			}
			if e.observer != nil {
				e.observer(snap)
			}
		}
	}
}

// tick applies one sample unless sampling was stopped after the tick fired.
func (e *Engine) tick(generation uint64) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if generation != e.generation || !e.state.Running {
		return Snapshot{}, false
	}
	e.sampledAt = e.clock.Now()
	return e.snapshotLocked(), true
}
