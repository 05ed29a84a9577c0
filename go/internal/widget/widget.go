// Package widget is the focus timer component: it owns a timer engine, sets
// a target from the current card's history and pushes rendered views.
package widget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focustimer/go/internal/estimator"
	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/settings"
	"github.com/mcdev12/focustimer/go/internal/timer"
)

// Display receives every rendered view, in order. Show is called with the
// widget locked and must not call back into the widget.
type Display interface {
	Show(View)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(View)

// Show implements Display.
func (f DisplayFunc) Show(v View) { f(v) }

type config struct {
	id       string
	clock    clockwork.Clock
	interval time.Duration
}

// Option configures a Widget.
type Option func(*config)

// WithID fixes the widget id instead of generating one.
func WithID(id string) Option {
	return func(c *config) { c.id = id }
}

// WithClock sets the clock of the underlying timer.
func WithClock(clock clockwork.Clock) Option {
	return func(c *config) { c.clock = clock }
}

// WithSampleInterval sets how often a running timer refreshes the display.
func WithSampleInterval(d time.Duration) Option {
	return func(c *config) { c.interval = d }
}

// Widget is a single mounted timer readout.
type Widget struct {
	id       string
	queue    host.Queue
	settings settings.Store
	display  Display
	engine   *timer.Engine

	mu sync.Mutex
	// alive is the mount-scoped liveness token. Results of host lookups are
	// applied only while it is not cancelled.
	alive   context.Context
	cancel  context.CancelFunc
	average *time.Duration
	cardID  string

	loads sync.WaitGroup
}

// New builds an unmounted widget.
func New(queue host.Queue, store settings.Store, display Display, opts ...Option) *Widget {
	cfg := config{
		clock:    clockwork.NewRealClock(),
		interval: timer.DefaultSampleInterval,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.id == "" {
		cfg.id = uuid.New().String()
	}

	w := &Widget{
		id:       cfg.id,
		queue:    queue,
		settings: store,
		display:  display,
	}
	w.engine = timer.NewEngine(
		timer.WithClock(cfg.clock),
		timer.WithSampleInterval(cfg.interval),
		timer.WithObserver(w.onSample),
	)
	return w
}

// ID returns the widget id.
func (w *Widget) ID() string { return w.id }

// Mount activates the widget and starts the initial card load in the
// background. A widget mounts once; later calls are no-ops.
func (w *Widget) Mount(ctx context.Context) {
	w.mu.Lock()
	if w.alive != nil {
		w.mu.Unlock()
		return
	}
	w.alive, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	log.Debug().Str("widget_id", w.id).Msg("widget mounted")
	w.LoadCardAsync(ctx)
}

// Unmount tears the widget down. In-flight card loads finish but their
// results are dropped.
func (w *Widget) Unmount() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return
	}
	w.cancel()
	w.cancel = nil
	w.engine.Close()

	log.Debug().Str("widget_id", w.id).Msg("widget unmounted")
}

// Mounted reports whether the widget is live.
func (w *Widget) Mounted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mountedLocked()
}

// Wait blocks until background card loads have returned.
func (w *Widget) Wait() {
	w.loads.Wait()
}

// LoadCardAsync runs LoadCard on its own goroutine so that other host events
// are handled while the lookups are in flight. It does nothing once the
// widget is unmounted, so Wait never races a late load.
func (w *Widget) LoadCardAsync(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.mountedLocked() {
		log.Debug().Str("widget_id", w.id).Msg("widget not mounted, skipping card load")
		return
	}

	w.loads.Add(1)
	go func() {
		defer w.loads.Done()
		w.LoadCard(ctx)
	}()
}

// LoadCard computes the target for the current card and restarts the timer.
// Missing history starts a plain timer; host failures do too.
func (w *Widget) LoadCard(ctx context.Context) {
	log.Debug().Str("widget_id", w.id).Msg("initializing timer for card")

	multiplier, err := settings.Multiplier(ctx, w.settings)
	if err != nil {
		w.fallback(err)
		return
	}

	card, err := w.queue.CurrentCard(ctx)
	if err != nil {
		w.fallback(fmt.Errorf("get current card: %w", err))
		return
	}

	average, ok := estimator.WeightedAverage(card)

	w.mu.Lock()
	if !w.mountedLocked() {
		w.mu.Unlock()
		log.Debug().Str("widget_id", w.id).Msg("widget unmounted during card load, dropping result")
		return
	}

	w.cardID = ""
	if card != nil {
		w.cardID = card.ID
	}

	var snap timer.Snapshot
	if !ok {
		log.Debug().
			Str("widget_id", w.id).
			Str("card_id", w.cardID).
			Msg("no average time data available, starting timer without target")
		w.average = nil
		snap = w.engine.Start()
	} else {
		target := time.Duration(float64(average) * multiplier)
		log.Debug().
			Str("widget_id", w.id).
			Str("card_id", w.cardID).
			Dur("average", average).
			Float64("multiplier", multiplier).
			Dur("target", target).
			Msg("target time set")

		if snap, err = w.engine.StartWithTarget(target); err != nil {
			log.Warn().Err(err).Dur("target", target).Msg("rejected target, starting timer without target")
			w.average = nil
			snap = w.engine.Start()
		} else {
			w.average = &average
		}
	}
	w.show(w.renderLocked(snap))
	w.mu.Unlock()
}

// RevealAnswer stops the timer.
func (w *Widget) RevealAnswer() {
	w.transition("answer revealed, stopping timer", (*timer.Engine).Stop)
}

// QueueExit resets the timer.
func (w *Widget) QueueExit() {
	w.transition("queue exited, resetting timer", (*timer.Engine).Reset)
}

// View renders the current state.
func (w *Widget) View() View {
	snap := w.engine.Snapshot()

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.renderLocked(snap)
}

// Snapshot exposes the timer's derived values.
func (w *Widget) Snapshot() timer.Snapshot {
	return w.engine.Snapshot()
}

func (w *Widget) transition(msg string, apply func(*timer.Engine) timer.Snapshot) {
	w.mu.Lock()
	if !w.mountedLocked() {
		w.mu.Unlock()
		return
	}
	snap := apply(w.engine)
	w.show(w.renderLocked(snap))
	w.mu.Unlock()

	log.Debug().Str("widget_id", w.id).Msg(msg)
}

// fallback starts a plain timer after a failed lookup, if still mounted.
func (w *Widget) fallback(err error) {
	log.Error().Err(err).Str("widget_id", w.id).Msg("error initializing timer, starting without target")

	w.mu.Lock()
	if !w.mountedLocked() {
		w.mu.Unlock()
		return
	}
	w.average = nil
	snap := w.engine.Start()
	w.show(w.renderLocked(snap))
	w.mu.Unlock()
}

// onSample renders the engine's current snapshot rather than the tick's, so a
// tick that lost the race with a stop or reset never overwrites its view.
func (w *Widget) onSample(timer.Snapshot) {
	w.mu.Lock()
	if !w.mountedLocked() {
		w.mu.Unlock()
		return
	}
	snap := w.engine.Snapshot()
	if !snap.Running {
		w.mu.Unlock()
		return
	}
	w.show(w.renderLocked(snap))
	w.mu.Unlock()
}

func (w *Widget) mountedLocked() bool {
	return w.alive != nil && w.alive.Err() == nil
}

func (w *Widget) renderLocked(snap timer.Snapshot) View {
	v := Render(snap, w.average)
	v.WidgetID = w.id
	v.CardID = w.cardID
	return v
}

func (w *Widget) show(v View) {
	if w.display != nil {
		w.display.Show(v)
	}
}
