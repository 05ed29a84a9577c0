package gateway

import (
	"time"

	"github.com/mcdev12/focustimer/go/internal/widget"
)

// EventType is the type of a message pushed to display clients.
type EventType string

const (
	EventTypeTimerView EventType = "TimerView"
)

// DisplayEvent is the envelope written to WebSocket clients.
type DisplayEvent struct {
	ID        string      `json:"id"`
	WidgetID  string      `json:"widget_id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      widget.View `json:"data"`
}
