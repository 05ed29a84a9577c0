// Package natsbridge connects the focus timer to a host that speaks NATS:
// lifecycle events arrive on a subject tree and queries use request/reply.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/models"
	"github.com/mcdev12/focustimer/go/internal/settings"
)

// Config holds connection settings for the bridge.
type Config struct {
	URL            string
	SubjectPrefix  string // e.g. "remnote"
	RequestTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		SubjectPrefix:  "remnote",
		RequestTimeout: 2 * time.Second,
		MaxReconnects:  -1, // Infinite
		ReconnectWait:  2 * time.Second,
	}
}

// Subjects derived from the prefix.
type Subjects struct {
	Events           string
	CurrentCard      string
	GetSetting       string
	RegisterSetting  string
	RegisterWidget   string
	eventTokenPrefix string
}

// SubjectsFor builds the subject names for prefix.
func SubjectsFor(prefix string) Subjects {
	prefix = strings.TrimSuffix(prefix, ".")
	return Subjects{
		Events:           prefix + ".events.>",
		CurrentCard:      prefix + ".queue.current_card",
		GetSetting:       prefix + ".settings.get",
		RegisterSetting:  prefix + ".settings.register",
		RegisterWidget:   prefix + ".widgets.register",
		eventTokenPrefix: prefix + ".events.",
	}
}

// reply is the envelope every host response uses.
type reply struct {
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Bridge implements host.Host over NATS.
type Bridge struct {
	nc       *nats.Conn
	config   Config
	subjects Subjects
}

var _ host.Host = (*Bridge)(nil)

// New connects to NATS.
func New(config Config) (*Bridge, error) {
	opts := []nats.Option{
		nats.Name("focus-timer"),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("prefix", config.SubjectPrefix).
		Msg("connected to host over NATS")

	return &Bridge{nc: nc, config: config, subjects: SubjectsFor(config.SubjectPrefix)}, nil
}

// Close drains the connection.
func (b *Bridge) Close() error {
	if b.nc == nil {
		return nil
	}
	if err := b.nc.Drain(); err != nil {
		b.nc.Close()
		return fmt.Errorf("drain NATS connection: %w", err)
	}
	return nil
}

// Check reports whether the NATS connection is usable.
func (b *Bridge) Check(_ context.Context) error {
	if b.nc == nil {
		return errors.New("NATS connection not established")
	}
	if status := b.nc.Status(); status != nats.CONNECTED {
		return fmt.Errorf("NATS connection %s", status)
	}
	return nil
}

// CurrentCard implements host.Queue.
func (b *Bridge) CurrentCard(ctx context.Context) (*models.Card, error) {
	data, err := b.request(ctx, b.subjects.CurrentCard, nil)
	if err != nil {
		return nil, err
	}
	return decodeCard(data)
}

// GetSetting implements settings.Store.
func (b *Bridge) GetSetting(ctx context.Context, id string) (any, error) {
	data, err := b.request(ctx, b.subjects.GetSetting, map[string]string{"id": id})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode setting %s: %w", id, err)
	}
	return v, nil
}

// RegisterSetting implements host.Settings.
func (b *Bridge) RegisterSetting(ctx context.Context, def settings.Definition) error {
	_, err := b.request(ctx, b.subjects.RegisterSetting, def)
	return err
}

// RegisterWidget implements host.Host.
func (b *Bridge) RegisterWidget(ctx context.Context, reg host.WidgetRegistration) error {
	_, err := b.request(ctx, b.subjects.RegisterWidget, reg)
	return err
}

// Subscribe implements host.Host. Malformed events are logged and dropped.
func (b *Bridge) Subscribe(ctx context.Context, handler func(host.Event)) error {
	msgCh := make(chan *nats.Msg, 64)
	sub, err := b.nc.ChanSubscribe(b.subjects.Events, msgCh)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subjects.Events, err)
	}
	defer func() {
		if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
			log.Warn().Err(err).Msg("failed to unsubscribe from host events")
		}
	}()

	log.Info().Str("subject", b.subjects.Events).Msg("listening for host events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-msgCh:
			ev, err := decodeEvent(b.subjects, msg.Subject, msg.Data)
			if err != nil {
				log.Warn().Err(err).Str("subject", msg.Subject).Msg("dropping malformed host event")
				continue
			}
			handler(ev)
		}
	}
}

func (b *Bridge) request(ctx context.Context, subject string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encode %s request: %w", subject, err)
		}
	}

	if _, ok := ctx.Deadline(); !ok && b.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.RequestTimeout)
		defer cancel()
	}

	msg, err := b.nc.RequestWithContext(ctx, subject, payload)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}
	return decodeReply(subject, msg.Data)
}

func decodeReply(subject string, data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var r reply
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s reply: %w", subject, err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("host error on %s: %s", subject, r.Error)
	}
	if string(r.Data) == "null" {
		return nil, nil
	}
	return r.Data, nil
}

func decodeCard(data json.RawMessage) (*models.Card, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var card models.Card
	if err := json.Unmarshal(data, &card); err != nil {
		return nil, fmt.Errorf("decode current card: %w", err)
	}
	return &card, nil
}

// decodeEvent parses an event envelope. The event type falls back to the last
// subject token when the envelope omits it.
func decodeEvent(subjects Subjects, subject string, data []byte) (host.Event, error) {
	var ev host.Event
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ev); err != nil {
			return host.Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
		}
	}

	if ev.Type == "" {
		token := strings.TrimPrefix(subject, subjects.eventTokenPrefix)
		if token == "" || token == subject || strings.Contains(token, ".") {
			return host.Event{}, fmt.Errorf("cannot infer event type from subject %q", subject)
		}
		ev.Type = host.EventType(token)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev, nil
}
