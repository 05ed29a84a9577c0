// Package host defines what the focus timer needs from the flashcard
// application it runs inside.
package host

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/focustimer/go/internal/models"
	"github.com/mcdev12/focustimer/go/internal/settings"
)

// ErrNoWidget is returned when an event arrives before a widget is registered.
var ErrNoWidget = errors.New("no widget registered")

// EventType is a host lifecycle event.
type EventType string

const (
	EventRevealAnswer  EventType = "RevealAnswer"
	EventQueueLoadCard EventType = "QueueLoadCard"
	EventQueueExit     EventType = "QueueExit"
)

// Event is a lifecycle notification from the host.
type Event struct {
	ID        string    `json:"eventId"`
	Type      EventType `json:"eventType"`
	CardID    string    `json:"cardId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WidgetLocation names where a widget is rendered in the host UI.
type WidgetLocation string

const QueueToolbar WidgetLocation = "QueueToolbar"

// WidgetRegistration asks the host to reserve a display surface.
type WidgetRegistration struct {
	Name     string         `json:"name"`
	Location WidgetLocation `json:"location"`
	Height   string         `json:"height"`
	Width    string         `json:"width"`
}

// Queue answers questions about the review queue.
type Queue interface {
	// CurrentCard returns the card under review, or nil when there is none.
	CurrentCard(ctx context.Context) (*models.Card, error)
}

// Settings is the host's settings registry.
type Settings interface {
	settings.Store
	RegisterSetting(ctx context.Context, def settings.Definition) error
}

// Host is the full contract the plugin uses.
type Host interface {
	Queue
	Settings
	RegisterWidget(ctx context.Context, reg WidgetRegistration) error
	// Subscribe delivers events to handler until ctx is done.
	Subscribe(ctx context.Context, handler func(Event)) error
}
