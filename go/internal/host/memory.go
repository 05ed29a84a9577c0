package host

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/focustimer/go/internal/models"
	"github.com/mcdev12/focustimer/go/internal/settings"
)

// Memory is an in-process Host. Tests and the standalone mode drive it
// directly with SetCurrentCard and Emit.
type Memory struct {
	mu          sync.RWMutex
	card        *models.Card
	cardErr     error
	store       settings.Store
	settingsErr error
	definitions []settings.Definition
	widgets     []WidgetRegistration
	handlers    map[uint64]func(Event)
	nextHandler uint64

	// cardGate, when set, blocks CurrentCard until it is closed or ctx ends.
	cardGate chan struct{}
}

// NewMemory returns a host whose settings resolve from store.
func NewMemory(store settings.Store) *Memory {
	if store == nil {
		store = settings.Values{}
	}
	return &Memory{
		store:    store,
		handlers: make(map[uint64]func(Event)),
	}
}

// SetCurrentCard sets the card returned by CurrentCard.
func (m *Memory) SetCurrentCard(card *models.Card) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.card = card
}

// FailCurrentCard makes CurrentCard return err. Pass nil to clear.
func (m *Memory) FailCurrentCard(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cardErr = err
}

// FailSettings makes GetSetting return err. Pass nil to clear.
func (m *Memory) FailSettings(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settingsErr = err
}

// HoldCurrentCard makes CurrentCard block until the returned release func is called.
func (m *Memory) HoldCurrentCard() (release func()) {
	gate := make(chan struct{})
	m.mu.Lock()
	m.cardGate = gate
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.cardGate == gate {
				m.cardGate = nil
			}
			m.mu.Unlock()
			close(gate)
		})
	}
}

// CurrentCard implements Queue.
func (m *Memory) CurrentCard(ctx context.Context) (*models.Card, error) {
	m.mu.RLock()
	gate := m.cardGate
	m.mu.RUnlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cardErr != nil {
		return nil, m.cardErr
	}
	return m.card, nil
}

// GetSetting implements settings.Store.
func (m *Memory) GetSetting(ctx context.Context, id string) (any, error) {
	m.mu.RLock()
	err, store := m.settingsErr, m.store
	m.mu.RUnlock()

	if err != nil {
		return nil, err
	}
	return store.GetSetting(ctx, id)
}

// RegisterSetting implements Settings.
func (m *Memory) RegisterSetting(_ context.Context, def settings.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions = append(m.definitions, def)
	return nil
}

// RegisteredSettings returns the definitions registered so far.
func (m *Memory) RegisteredSettings() []settings.Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]settings.Definition(nil), m.definitions...)
}

// RegisterWidget implements Host.
func (m *Memory) RegisterWidget(_ context.Context, reg WidgetRegistration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.widgets = append(m.widgets, reg)
	return nil
}

// Widgets returns the widget registrations received so far.
func (m *Memory) Widgets() []WidgetRegistration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]WidgetRegistration(nil), m.widgets...)
}

// Subscribe implements Host. It blocks until ctx is done.
func (m *Memory) Subscribe(ctx context.Context, handler func(Event)) error {
	m.mu.Lock()
	id := m.nextHandler
	m.nextHandler++
	m.handlers[id] = handler
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	delete(m.handlers, id)
	m.mu.Unlock()
	return nil
}

// Subscribers reports how many handlers are attached.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.handlers)
}

// Emit delivers an event of type t to every subscriber synchronously.
func (m *Memory) Emit(t EventType, cardID string) Event {
	ev := Event{
		ID:        uuid.New().String(),
		Type:      t,
		CardID:    cardID,
		Timestamp: time.Now(),
	}

	m.mu.RLock()
	handlers := make([]func(Event), 0, len(m.handlers))
	for _, h := range m.handlers {
		handlers = append(handlers, h)
	}
	m.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
	return ev
}
