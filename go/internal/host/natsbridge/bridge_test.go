package natsbridge

import (
	"encoding/json"
	"testing"

	"github.com/mcdev12/focustimer/go/internal/host"
)

func TestSubjectsFor(t *testing.T) {
	s := SubjectsFor("remnote.")
	if s.Events != "remnote.events.>" {
		t.Errorf("Events = %q", s.Events)
	}
	if s.CurrentCard != "remnote.queue.current_card" {
		t.Errorf("CurrentCard = %q", s.CurrentCard)
	}
	if s.GetSetting != "remnote.settings.get" || s.RegisterSetting != "remnote.settings.register" {
		t.Errorf("settings subjects = %q, %q", s.GetSetting, s.RegisterSetting)
	}
	if s.RegisterWidget != "remnote.widgets.register" {
		t.Errorf("RegisterWidget = %q", s.RegisterWidget)
	}
}

func TestDecodeEvent(t *testing.T) {
	subjects := SubjectsFor("remnote")

	tests := []struct {
		name     string
		subject  string
		data     string
		wantType host.EventType
		wantCard string
		wantErr  bool
	}{
		{
			name:     "full envelope",
			subject:  "remnote.events.QueueLoadCard",
			data:     `{"eventId":"e1","eventType":"QueueLoadCard","cardId":"c9","timestamp":"2025-06-15T10:00:00Z"}`,
			wantType: host.EventQueueLoadCard,
			wantCard: "c9",
		},
		{
			name:     "type from subject",
			subject:  "remnote.events.RevealAnswer",
			data:     ``,
			wantType: host.EventRevealAnswer,
		},
		{
			name:    "nested subject without type",
			subject: "remnote.events.queue.exit",
			data:    `{}`,
			wantErr: true,
		},
		{
			name:    "bad json",
			subject: "remnote.events.QueueExit",
			data:    `{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decodeEvent(subjects, tt.subject, []byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", ev)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEvent: %v", err)
			}
			if ev.Type != tt.wantType || ev.CardID != tt.wantCard {
				t.Errorf("event = %+v, want type %s card %q", ev, tt.wantType, tt.wantCard)
			}
			if ev.Timestamp.IsZero() {
				t.Error("timestamp not set")
			}
		})
	}
}

func TestDecodeReply(t *testing.T) {
	data, err := decodeReply("s", []byte(`{"data":{"_id":"c1","repetitionHistory":[{"responseTime":900,"date":1}]}}`))
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	card, err := decodeCard(data)
	if err != nil {
		t.Fatalf("decodeCard: %v", err)
	}
	if card == nil || card.ID != "c1" || len(card.RepetitionHistory) != 1 {
		t.Errorf("card = %+v", card)
	}

	if _, err := decodeReply("s", []byte(`{"error":"no queue"}`)); err == nil {
		t.Error("expected host error")
	}

	data, err = decodeReply("s", []byte(`{"data":null}`))
	if err != nil {
		t.Fatalf("decodeReply(null): %v", err)
	}
	if card, err := decodeCard(data); err != nil || card != nil {
		t.Errorf("decodeCard(null) = %+v, %v; want nil, nil", card, err)
	}
}

func TestDecodeReplySettingValue(t *testing.T) {
	data, err := decodeReply("s", []byte(`{"data":1.5}`))
	if err != nil {
		t.Fatalf("decodeReply: %v", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatal(err)
	}
	if v != 1.5 {
		t.Errorf("value = %v, want 1.5", v)
	}
}
