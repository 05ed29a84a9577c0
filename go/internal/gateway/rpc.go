package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/widget"
)

const (
	TimerServiceName = "focustimer.v1.TimerService"
	HostServiceName  = "focustimer.v1.HostService"

	GetViewProcedure = "/" + TimerServiceName + "/GetView"
	NotifyProcedure  = "/" + HostServiceName + "/Notify"
)

// ViewSource returns the view of the mounted widget, if any.
type ViewSource interface {
	CurrentView() (widget.View, bool)
}

// EventSink accepts host lifecycle events.
type EventSink interface {
	HandleHostEvent(ctx context.Context, ev host.Event) error
}

// RPCHandler serves the Connect RPC surface. Messages are protobuf
// well-known types so that any Connect, gRPC or gRPC-Web client can call it
// without generated stubs.
type RPCHandler struct {
	views  ViewSource
	events EventSink
}

// NewRPCHandler creates the RPC handler.
func NewRPCHandler(views ViewSource, events EventSink) *RPCHandler {
	return &RPCHandler{views: views, events: events}
}

// GetView returns the current readout as a Struct.
func (h *RPCHandler) GetView(ctx context.Context, req *connect.Request[emptypb.Empty]) (*connect.Response[structpb.Struct], error) {
	view, ok := h.views.CurrentView()
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, errors.New("no focus timer widget mounted"))
	}

	msg, err := viewToStruct(view)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(msg), nil
}

// Notify lets a host push a lifecycle event over HTTP. The request carries
// "type" and optionally "card_id" and "event_id".
func (h *RPCHandler) Notify(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[emptypb.Empty], error) {
	fields := req.Msg.GetFields()
	ev := host.Event{
		ID:        fields["event_id"].GetStringValue(),
		Type:      host.EventType(fields["type"].GetStringValue()),
		CardID:    fields["card_id"].GetStringValue(),
		Timestamp: time.Now(),
	}
	if ev.Type == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("type is required"))
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	if err := h.events.HandleHostEvent(ctx, ev); err != nil {
		if errors.Is(err, host.ErrNoWidget) {
			return nil, connect.NewError(connect.CodeFailedPrecondition, err)
		}
		log.Error().Err(err).Str("event_type", string(ev.Type)).Msg("failed to handle notified event")
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// RegisterRoutes mounts both services on mux.
func (h *RPCHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle(GetViewProcedure, connect.NewUnaryHandler(GetViewProcedure, h.GetView))
	mux.Handle(NotifyProcedure, connect.NewUnaryHandler(NotifyProcedure, h.Notify))
}

func viewToStruct(v widget.View) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal view: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal view: %w", err)
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("convert view: %w", err)
	}
	return s, nil
}
