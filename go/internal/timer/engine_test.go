package timer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC))
	e := NewEngine(append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(e.Close)
	return e, clock
}

func TestNewEngineIsStopped(t *testing.T) {
	e, _ := newTestEngine(t)

	snap := e.Snapshot()
	if snap.Running || snap.Target != nil || snap.Elapsed != 0 {
		t.Errorf("initial snapshot = %+v, want stopped at zero with no target", snap)
	}
	if e.Sampling() {
		t.Error("sampler active before start")
	}
}

func TestStartElapsed(t *testing.T) {
	e, clock := newTestEngine(t)

	snap := e.Start()
	if !snap.Running || snap.Elapsed != 0 {
		t.Fatalf("Start() = %+v, want running at zero", snap)
	}
	if snap.Countdown != nil || snap.OverTime {
		t.Errorf("plain timer exposed countdown/over-time: %+v", snap)
	}

	clock.Advance(1500 * time.Millisecond)
	snap = e.Sample()
	if snap.Elapsed != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 1.5s", snap.Elapsed)
	}
}

func TestCountdownIsExact(t *testing.T) {
	e, clock := newTestEngine(t)
	target := 6 * time.Second

	if _, err := e.StartWithTarget(target); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}

	for _, elapsed := range []time.Duration{0, 1234 * time.Millisecond, 4 * time.Second, 6 * time.Second} {
		clock.Advance(elapsed - e.Snapshot().Elapsed)
		snap := e.Sample()
		if snap.Countdown == nil {
			t.Fatalf("at %v: countdown missing", elapsed)
		}
		if want := target - elapsed; *snap.Countdown != want {
			t.Errorf("at %v: countdown = %v, want %v", elapsed, *snap.Countdown, want)
		}
		if snap.OverTime {
			t.Errorf("at %v: over time before target", elapsed)
		}
	}
}

func TestOverTime(t *testing.T) {
	e, clock := newTestEngine(t)

	if _, err := e.StartWithTarget(6 * time.Second); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}
	clock.Advance(6100 * time.Millisecond)
	snap := e.Sample()

	if !snap.OverTime {
		t.Fatal("expected over time")
	}
	if snap.Countdown == nil || *snap.Countdown != 0 {
		t.Errorf("countdown = %v, want 0", snap.Countdown)
	}
	if got := snap.OverTimeBy(); got != 100*time.Millisecond {
		t.Errorf("OverTimeBy() = %v, want 100ms", got)
	}
	if got := Format(snap.OverTimeBy()); got != "00:00" {
		t.Errorf("Format(overage) = %q, want 00:00", got)
	}
}

func TestStopPreservesElapsedAndTarget(t *testing.T) {
	e, clock := newTestEngine(t)

	if _, err := e.StartWithTarget(time.Second); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}
	clock.Advance(2 * time.Second)
	snap := e.Stop()

	if snap.Running {
		t.Error("still running after Stop")
	}
	if snap.Elapsed != 2*time.Second {
		t.Errorf("Elapsed = %v, want 2s", snap.Elapsed)
	}
	if snap.Target == nil || *snap.Target != time.Second {
		t.Errorf("Target = %v, want 1s", snap.Target)
	}
	if snap.Countdown != nil {
		t.Errorf("countdown exposed while stopped: %v", *snap.Countdown)
	}
	if !snap.OverTime {
		t.Error("over-time must persist after stopping")
	}
	if e.Sampling() {
		t.Error("sampler still active after Stop")
	}

	clock.Advance(5 * time.Second)
	if got := e.Sample().Elapsed; got != 2*time.Second {
		t.Errorf("Elapsed after stop = %v, want frozen at 2s", got)
	}
}

func TestResetClearsTarget(t *testing.T) {
	e, clock := newTestEngine(t)

	if _, err := e.StartWithTarget(3 * time.Second); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}
	clock.Advance(4 * time.Second)
	snap := e.Reset()

	if snap.Running || snap.Target != nil || snap.OverTime || snap.Elapsed != 0 {
		t.Errorf("Reset() = %+v, want stopped at zero with no target", snap)
	}
	if e.Sampling() {
		t.Error("sampler still active after Reset")
	}
}

func TestStartClearsPreviousTarget(t *testing.T) {
	e, clock := newTestEngine(t)

	if _, err := e.StartWithTarget(3 * time.Second); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}
	clock.Advance(time.Second)
	snap := e.Start()

	if snap.Target != nil || snap.Elapsed != 0 || !snap.Running {
		t.Errorf("Start() = %+v, want running at zero with no target", snap)
	}
	if st := e.State(); st.Target != nil {
		t.Errorf("State().Target = %v, want nil", *st.Target)
	}
}

func TestStartWithNegativeTarget(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.StartWithTarget(-time.Second)
	if !errors.Is(err, ErrNegativeTarget) {
		t.Fatalf("err = %v, want ErrNegativeTarget", err)
	}
	if e.Snapshot().Running {
		t.Error("negative target started the timer")
	}
}

func TestZeroTargetIsPresent(t *testing.T) {
	e, clock := newTestEngine(t)

	if _, err := e.StartWithTarget(0); err != nil {
		t.Fatalf("StartWithTarget: %v", err)
	}
	clock.Advance(time.Millisecond)
	snap := e.Sample()
	if snap.Target == nil || !snap.OverTime {
		t.Errorf("snapshot = %+v, want zero target present and over time", snap)
	}
}

func TestSamplerNotifiesWhileRunning(t *testing.T) {
	samples := make(chan Snapshot, 16)
	e, clock := newTestEngine(t, WithObserver(func(s Snapshot) {
		select {
		case samples <- s:
		default:
		}
	}))

	e.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("ticker never registered: %v", err)
	}

	clock.Advance(DefaultSampleInterval)
	select {
	case snap := <-samples:
		if snap.Elapsed != DefaultSampleInterval {
			t.Errorf("sampled Elapsed = %v, want %v", snap.Elapsed, DefaultSampleInterval)
		}
	case <-ctx.Done():
		t.Fatal("no sample delivered")
	}
}

func TestSamplerSuspendedAfterStop(t *testing.T) {
	samples := make(chan Snapshot, 16)
	e, clock := newTestEngine(t, WithObserver(func(s Snapshot) {
		select {
		case samples <- s:
		default:
		}
	}))

	e.Start()
	e.Stop()

	clock.Advance(time.Second)
	select {
	case snap := <-samples:
		t.Fatalf("sample delivered after Stop: %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseStopsSampling(t *testing.T) {
	e, _ := newTestEngine(t)

	e.Start()
	if !e.Sampling() {
		t.Fatal("sampler not active after Start")
	}
	e.Close()
	if e.Sampling() {
		t.Error("sampler active after Close")
	}

	e.Start()
	if e.Sampling() {
		t.Error("closed engine resumed sampling")
	}
}
