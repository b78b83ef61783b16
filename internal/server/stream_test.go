package server

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aurascope/aurascope/internal/capture"
	"github.com/aurascope/aurascope/internal/domain"
	"github.com/aurascope/aurascope/internal/session"
	"github.com/aurascope/aurascope/internal/settings/memory"
)

func dialStream(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestStream_ReplayThenLive(t *testing.T) {
	srv, log, adapter := newTestServer(t)
	log.Append(testRecord("call-1"))

	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	// Existing records replay first.
	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read replay event: %v", err)
	}
	if ev.Kind != session.EventRecord || ev.Record == nil || ev.Record.ID != "call-1" {
		t.Fatalf("unexpected replay event: %+v", ev)
	}

	if got := adapter.Stats().Attached; got != 1 {
		t.Errorf("attached = %d while streaming, want 1", got)
	}

	// Appends arrive live while the connection holds.
	log.Append(testRecord("call-2"))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read live event: %v", err)
	}
	if ev.Kind != session.EventRecord || ev.Record == nil || ev.Record.ID != "call-2" {
		t.Fatalf("unexpected live event: %+v", ev)
	}

	// Clears announce themselves so panels can reset.
	log.Clear()
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read clear event: %v", err)
	}
	if ev.Kind != session.EventClear {
		t.Fatalf("event kind = %q, want %q", ev.Kind, session.EventClear)
	}
}

func TestStream_DetachOnDisconnect(t *testing.T) {
	srv, _, adapter := newTestServer(t)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialStream(t, ts)
	if got := adapter.Stats().Attached; got != 1 {
		t.Fatalf("attached = %d after dial, want 1", got)
	}

	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if adapter.Stats().Attached == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("surface still attached after disconnect")
}

// logSink stands in for the pipeline: every processed envelope becomes
// one record in the session log.
type logSink struct {
	log *session.Log
}

func (s logSink) Process(ctx context.Context, env domain.Envelope) {
	s.log.Append(&domain.CanonicalCallRecord{
		ID:         env.Exchange.ID,
		Shape:      domain.ShapeAuraBatch,
		ClassName:  "OrderController",
		MethodName: "getOrders",
	})
}

func TestStream_PendingExchangesDrainIntoReplay(t *testing.T) {
	// An exchange captured before any panel connects must show up in
	// the first panel's replay, not vanish.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := session.NewLog(logger)
	adapter := capture.New(capture.Config{Sink: logSink{log: log}, Logger: logger})
	srv := New(Config{
		Log:      log,
		Adapter:  adapter,
		Settings: memory.New(),
		Logger:   logger,
	})

	adapter.Offer(context.Background(), domain.Envelope{
		Channel: "tab-1",
		Exchange: &domain.RawExchange{
			ID:           "ex-pre",
			URL:          "https://org.lightning.force.com/aura?r=1",
			Method:       "POST",
			Status:       200,
			ResponseBody: "{}",
		},
	})
	if got := adapter.Stats().Pending; got != 1 {
		t.Fatalf("pending = %d before attach, want 1", got)
	}

	ts := httptest.NewServer(srv)
	defer ts.Close()

	conn := dialStream(t, ts)
	defer conn.Close()

	var ev session.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read replay event: %v", err)
	}
	if ev.Record == nil || ev.Record.ID != "ex-pre" {
		t.Fatalf("unexpected replay event: %+v", ev)
	}
	if got := adapter.Stats().Pending; got != 0 {
		t.Errorf("pending = %d after attach, want 0", got)
	}
}
