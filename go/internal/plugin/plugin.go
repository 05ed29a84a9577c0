// Package plugin wires the focus timer widget into a host: it registers the
// settings, decides whether to show the widget and routes lifecycle events.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/settings"
	"github.com/mcdev12/focustimer/go/internal/widget"
)

// WidgetName is the name the widget is registered under.
const WidgetName = "focus_timer_widget"

// Plugin is one activation of the focus timer inside a host.
type Plugin struct {
	host       host.Host
	display    widget.Display
	widgetOpts []widget.Option

	mu     sync.RWMutex
	widget *widget.Widget
}

// New creates an inactive plugin. Views are pushed to display.
func New(h host.Host, display widget.Display, opts ...widget.Option) *Plugin {
	return &Plugin{
		host:       h,
		display:    display,
		widgetOpts: opts,
	}
}

// Activate registers the settings and, when the visibility toggle is on,
// registers and mounts the widget. Host failures are logged, never returned:
// the plugin stays usable with defaults.
func (p *Plugin) Activate(ctx context.Context) {
	for _, def := range settings.Definitions() {
		if err := p.host.RegisterSetting(ctx, def); err != nil {
			log.Warn().Err(err).Str("setting", def.ID).Msg("failed to register setting")
		}
	}

	show, err := settings.ShowTimer(ctx, p.host)
	if err != nil {
		log.Warn().Err(err).Bool("show", show).Msg("could not read visibility toggle, using default")
	}
	if !show {
		log.Info().Msg("focus timer hidden by settings, widget not registered")
		return
	}

	reg := host.WidgetRegistration{
		Name:     WidgetName,
		Location: host.QueueToolbar,
		Height:   "auto",
		Width:    "auto",
	}
	if err := p.host.RegisterWidget(ctx, reg); err != nil {
		log.Warn().Err(err).Str("widget", reg.Name).Msg("failed to register widget with host")
	}

	w := widget.New(p.host, p.host, p.display, p.widgetOpts...)

	p.mu.Lock()
	p.widget = w
	p.mu.Unlock()

	w.Mount(ctx)
	log.Info().Str("widget_id", w.ID()).Str("location", string(reg.Location)).Msg("focus timer activated")
}

// Deactivate unmounts the widget.
func (p *Plugin) Deactivate() {
	p.mu.Lock()
	w := p.widget
	p.widget = nil
	p.mu.Unlock()

	if w == nil {
		return
	}
	w.Unmount()
	w.Wait()
	log.Info().Str("widget_id", w.ID()).Msg("focus timer deactivated")
}

// Widget returns the mounted widget, or nil when the widget is hidden or the
// plugin is not active.
func (p *Plugin) Widget() *widget.Widget {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.widget
}

// CurrentView returns the readout of the mounted widget.
func (p *Plugin) CurrentView() (widget.View, bool) {
	w := p.Widget()
	if w == nil {
		return widget.View{}, false
	}
	return w.View(), true
}

// HandleHostEvent routes a lifecycle event to the widget. Card loads run in
// the background so that a reveal arriving mid-lookup is not delayed; they
// are detached from ctx's cancellation.
func (p *Plugin) HandleHostEvent(ctx context.Context, ev host.Event) error {
	w := p.Widget()
	if w == nil {
		return host.ErrNoWidget
	}

	log.Debug().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("card_id", ev.CardID).
		Msg("handling host event")

	switch ev.Type {
	case host.EventRevealAnswer:
		w.RevealAnswer()
	case host.EventQueueExit:
		w.QueueExit()
	case host.EventQueueLoadCard:
		// The load outlives the caller: an RPC request context ends as soon
		// as the event is accepted.
		w.LoadCardAsync(context.WithoutCancel(ctx))
	default:
		log.Warn().Str("event_type", string(ev.Type)).Msg("unknown event type - ignoring")
	}
	return nil
}

// Run activates the plugin, consumes host events until ctx is done and then
// deactivates.
func (p *Plugin) Run(ctx context.Context) error {
	p.Activate(ctx)
	defer p.Deactivate()

	err := p.host.Subscribe(ctx, func(ev host.Event) {
		if err := p.HandleHostEvent(ctx, ev); err != nil {
			log.Debug().Err(err).Str("event_type", string(ev.Type)).Msg("host event not handled")
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to host events: %w", err)
	}
	return nil
}
