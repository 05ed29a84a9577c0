package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mcdev12/focustimer/go/internal/host"
	"github.com/mcdev12/focustimer/go/internal/models"
	"github.com/mcdev12/focustimer/go/internal/plugin"
	"github.com/mcdev12/focustimer/go/internal/settings"
	"github.com/mcdev12/focustimer/go/internal/widget"
)

type fakeViews struct {
	mu   sync.Mutex
	view widget.View
	ok   bool
}

func (f *fakeViews) CurrentView() (widget.View, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view, f.ok
}

type fakeSink struct {
	mu     sync.Mutex
	err    error
	events []host.Event
}

func (f *fakeSink) HandleHostEvent(_ context.Context, ev host.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func newTestServer(t *testing.T, views ViewSource, sink EventSink) (*Service, *httptest.Server) {
	t.Helper()
	svc := NewService(DefaultConfig())
	svc.Bind(views, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Start(ctx)
	}()

	srv := httptest.NewServer(NewServer("", svc).Handler)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return svc, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/timer" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads display events until one with the given text arrives.
func readUntil(t *testing.T, conn *websocket.Conn, text string) []DisplayEvent {
	t.Helper()
	var seen []DisplayEvent
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v (seen %d events)", err, len(seen))
		}
		var ev DisplayEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		seen = append(seen, ev)
		if ev.Data.Text == text {
			return seen
		}
	}
}

func TestWebSocketReceivesLatestAndBroadcasts(t *testing.T) {
	svc, srv := newTestServer(t, &fakeViews{}, &fakeSink{})
	display := svc.Display()

	display.Show(widget.View{WidgetID: "w-1", Visible: true, Running: true, Text: "00:01"})
	conn := dial(t, srv, "")

	seen := readUntil(t, conn, "00:01")
	if got := seen[len(seen)-1]; got.Type != EventTypeTimerView || got.WidgetID != "w-1" {
		t.Errorf("sync event = %+v, want TimerView for w-1", got)
	}

	display.Show(widget.View{WidgetID: "w-1", Visible: true, Running: true, Text: "00:02"})
	readUntil(t, conn, "00:02")
}

func TestWebSocketFiltersByWidget(t *testing.T) {
	svc, srv := newTestServer(t, &fakeViews{}, &fakeSink{})
	display := svc.Display()
	conn := dial(t, srv, "?widget_id=w-1")

	display.Show(widget.View{WidgetID: "w-2", Text: "other"})
	display.Show(widget.View{WidgetID: "w-1", Text: "mine"})

	for _, ev := range readUntil(t, conn, "mine") {
		if ev.WidgetID != "w-1" {
			t.Errorf("received view for %q on a w-1 connection", ev.WidgetID)
		}
	}
}

func TestLatestAndStats(t *testing.T) {
	cm := NewConnectionManager(DefaultConnectionConfig())
	if _, ok := cm.Latest("w-1"); ok {
		t.Fatal("Latest reported a view before any was shown")
	}

	cm.Show(widget.View{WidgetID: "w-1", Text: "00:03"})
	v, ok := cm.Latest("w-1")
	if !ok || v.Text != "00:03" {
		t.Errorf("Latest = %+v, %v", v, ok)
	}

	want := map[string]interface{}{"total_connections": 0, "known_widgets": 1}
	if diff := cmp.Diff(want, cm.GetConnectionStats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestGetView(t *testing.T) {
	target := int64(6000)
	views := &fakeViews{
		view: widget.View{WidgetID: "w-1", Visible: true, Running: true, Text: "00:06", Tone: widget.TonePositive, TargetMs: &target},
		ok:   true,
	}
	_, srv := newTestServer(t, views, &fakeSink{})
	client := connect.NewClient[emptypb.Empty, structpb.Struct](srv.Client(), srv.URL+GetViewProcedure)

	resp, err := client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	if err != nil {
		t.Fatalf("GetView: %v", err)
	}

	fields := resp.Msg.GetFields()
	if got := fields["text"].GetStringValue(); got != "00:06" {
		t.Errorf("text = %q, want 00:06", got)
	}
	if got := fields["tone"].GetStringValue(); got != "positive" {
		t.Errorf("tone = %q, want positive", got)
	}
	if got := fields["target_ms"].GetNumberValue(); got != 6000 {
		t.Errorf("target_ms = %v, want 6000", got)
	}
	if !fields["running"].GetBoolValue() {
		t.Error("running = false, want true")
	}

	views.mu.Lock()
	views.ok = false
	views.mu.Unlock()
	_, err = client.CallUnary(context.Background(), connect.NewRequest(&emptypb.Empty{}))
	if connect.CodeOf(err) != connect.CodeNotFound {
		t.Errorf("GetView without widget: code = %v, want NotFound", connect.CodeOf(err))
	}
}

func TestNotify(t *testing.T) {
	sink := &fakeSink{}
	_, srv := newTestServer(t, &fakeViews{}, sink)
	client := connect.NewClient[structpb.Struct, emptypb.Empty](srv.Client(), srv.URL+NotifyProcedure)

	notify := func(fields map[string]any) error {
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			t.Fatalf("build request: %v", err)
		}
		_, err = client.CallUnary(context.Background(), connect.NewRequest(msg))
		return err
	}

	if err := notify(map[string]any{"type": string(host.EventQueueLoadCard), "card_id": "card-1"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	sink.mu.Lock()
	got := sink.events
	sink.mu.Unlock()
	if len(got) != 1 || got[0].Type != host.EventQueueLoadCard || got[0].CardID != "card-1" || got[0].ID == "" {
		t.Errorf("events = %+v, want one load-card event with an id", got)
	}

	if err := notify(map[string]any{"card_id": "card-1"}); connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("missing type: code = %v, want InvalidArgument", connect.CodeOf(err))
	}

	sink.mu.Lock()
	sink.err = host.ErrNoWidget
	sink.mu.Unlock()
	if err := notify(map[string]any{"type": string(host.EventRevealAnswer)}); connect.CodeOf(err) != connect.CodeFailedPrecondition {
		t.Errorf("no widget: code = %v, want FailedPrecondition", connect.CodeOf(err))
	}

	sink.mu.Lock()
	sink.err = errors.New("boom")
	sink.mu.Unlock()
	if err := notify(map[string]any{"type": string(host.EventRevealAnswer)}); connect.CodeOf(err) != connect.CodeInternal {
		t.Errorf("sink failure: code = %v, want Internal", connect.CodeOf(err))
	}
}

func TestNotifyLoadCardOutlivesRequest(t *testing.T) {
	h := host.NewMemory(settings.Values{settings.TargetMultiplierID: 1.2})
	h.SetCurrentCard(&models.Card{ID: "card-1", RepetitionHistory: []models.ResponseRecord{
		{ResponseTime: 5000, Date: models.ReviewDateMillis(1_700_000_000_000)},
	}})
	p := plugin.New(h, nil)
	p.Activate(context.Background())
	t.Cleanup(p.Deactivate)
	w := p.Widget()
	w.Wait()

	_, srv := newTestServer(t, p, p)
	client := connect.NewClient[structpb.Struct, emptypb.Empty](srv.Client(), srv.URL+NotifyProcedure)
	msg, err := structpb.NewStruct(map[string]any{"type": string(host.EventQueueLoadCard), "card_id": "card-1"})
	if err != nil {
		t.Fatal(err)
	}

	// The lookup is still pending when Notify returns.
	release := h.HoldCurrentCard()
	if _, err := client.CallUnary(context.Background(), connect.NewRequest(msg)); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	release()
	w.Wait()

	snap := w.Snapshot()
	if !snap.Running || snap.Target == nil || *snap.Target != 6*time.Second {
		t.Errorf("snapshot = %+v, want running with 6s target", snap)
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) Check(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	svc, srv := newTestServer(t, &fakeViews{}, &fakeSink{})

	get := func() (int, string) {
		t.Helper()
		resp, err := srv.Client().Get(srv.URL + "/health")
		if err != nil {
			t.Fatalf("GET /health: %v", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	if code, body := get(); code != http.StatusOK || body != "OK" {
		t.Errorf("health = %d %q, want 200 OK", code, body)
	}

	svc.SetHealthChecker(checkFunc(func(context.Context) error { return errors.New("host down") }))
	if code, body := get(); code != http.StatusServiceUnavailable || !strings.Contains(body, "host down") {
		t.Errorf("health = %d %q, want 503 host down", code, body)
	}
}
