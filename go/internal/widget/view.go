package widget

import (
	"time"

	"github.com/mcdev12/focustimer/go/internal/timer"
)

// NearTargetThreshold is the remaining time below which the countdown is
// shown as a warning.
const NearTargetThreshold = 5 * time.Second

// Tone is the color hint for the readout.
type Tone string

const (
	TonePositive Tone = "positive"
	ToneWarning  Tone = "warning"
	ToneNegative Tone = "negative"
)

// View is the rendered readout pushed to displays.
type View struct {
	WidgetID    string    `json:"widget_id"`
	CardID      string    `json:"card_id,omitempty"`
	Visible     bool      `json:"visible"`
	Running     bool      `json:"running"`
	Text        string    `json:"text"`
	Tone        Tone      `json:"tone"`
	OverTime    bool      `json:"over_time"`
	ElapsedMs   int64     `json:"elapsed_ms"`
	TargetMs    *int64    `json:"target_ms,omitempty"`
	CountdownMs *int64    `json:"countdown_ms,omitempty"`
	AverageMs   *int64    `json:"average_ms,omitempty"`
	RenderedAt  time.Time `json:"rendered_at"`
}

// Render derives the readout from a timer snapshot. average is the card's
// weighted response time, nil when the card had no usable history.
func Render(snap timer.Snapshot, average *time.Duration) View {
	v := View{
		Visible:     snap.Running || average != nil,
		Running:     snap.Running,
		OverTime:    snap.OverTime,
		ElapsedMs:   snap.Elapsed.Milliseconds(),
		TargetMs:    millis(snap.Target),
		CountdownMs: millis(snap.Countdown),
		AverageMs:   millis(average),
		RenderedAt:  snap.SampledAt,
	}

	switch {
	case snap.Target != nil && snap.Running && snap.OverTime:
		v.Text = "+" + timer.Format(snap.OverTimeBy())
	case snap.Target != nil && snap.Running && snap.Countdown != nil:
		v.Text = timer.Format(*snap.Countdown)
	default:
		v.Text = timer.Format(snap.Elapsed)
	}

	switch {
	case snap.OverTime:
		v.Tone = ToneNegative
	case snap.Countdown != nil && *snap.Countdown > 0 && *snap.Countdown < NearTargetThreshold:
		v.Tone = ToneWarning
	default:
		v.Tone = TonePositive
	}

	return v
}

func millis(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	ms := d.Milliseconds()
	return &ms
}
