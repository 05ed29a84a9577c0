// Package gateway is the display surface of the focus timer: views are
// pushed to WebSocket clients and a Connect RPC surface serves reads and
// host notifications.
package gateway

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Config holds configuration for the gateway service.
type Config struct {
	ConnectionConfig ConnectionConfig
}

// DefaultConfig returns default configuration for the gateway.
func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// Service bundles the connection manager and the HTTP handlers.
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	rpcHandler        *RPCHandler

	mu     sync.RWMutex
	health HealthChecker
}

// HealthChecker reports whether a dependency of the gateway is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// NewService creates the gateway. Views and events are bound later with
// Bind because the display must exist before the widget that feeds it.
func NewService(config Config) *Service {
	cm := NewConnectionManager(config.ConnectionConfig)
	return &Service{
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm),
	}
}

// Bind attaches the view source and event sink behind the RPC surface.
func (s *Service) Bind(views ViewSource, events EventSink) {
	s.rpcHandler = NewRPCHandler(views, events)
}

// SetHealthChecker makes /health report the state of hc.
func (s *Service) SetHealthChecker(hc HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = hc
}

// Healthy returns nil when the gateway and its checked dependency are up.
func (s *Service) Healthy(ctx context.Context) error {
	s.mu.RLock()
	hc := s.health
	s.mu.RUnlock()

	if hc == nil {
		return nil
	}
	return hc.Check(ctx)
}

// Display returns the sink the widget should push views to.
func (s *Service) Display() *ConnectionManager {
	return s.connectionManager
}

// Start runs the connection manager until ctx is done.
func (s *Service) Start(ctx context.Context) {
	log.Info().Msg("starting display gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("display gateway stopped")
}

// RegisterRoutes registers the WebSocket and RPC routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	if s.rpcHandler != nil {
		s.rpcHandler.RegisterRoutes(mux)
	}
	log.Info().Msg("display gateway routes registered")
}

// GetStats returns statistics about the gateway.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "focus_timer_gateway"
	return stats
}
