package connection

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/clinicdesk/realtime/internal/screenstore"
)

func newTestCoordinator(t *testing.T, server *httptest.Server, window time.Duration) *Coordinator {
	t.Helper()
	client := newTestClient(t, testClientConfig(wsURL(server)))
	return NewCoordinator(client, nil, CoordinatorConfig{DebounceWindow: window}, nil)
}

func TestCoordinatorDebouncesIntoOneConnect(t *testing.T) {
	var accepts atomic.Int32
	var gotQuery atomic.Value

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts.Add(1)
		gotQuery.Store(r.URL.Query())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveFrames(conn, make(chan Frame, 1))
	}))
	defer server.Close()

	co := newTestCoordinator(t, server, 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = co.EnsureConnected(ctx, ClientTypeCalendar, map[string]string{"date": "2025-01-02"})
	}()
	go func() {
		defer wg.Done()
		errs[1] = co.EnsureConnected(ctx, "reception", map[string]string{"deskId": "front"})
	}()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("EnsureConnected[%d] failed: %v", i, err)
		}
	}
	if n := accepts.Load(); n != 1 {
		t.Fatalf("server accepted %d connections, want 1", n)
	}

	query := gotQuery.Load().(url.Values)
	if got := query["clientTypes"]; len(got) != 1 || got[0] != "calendar,reception" {
		t.Errorf("clientTypes = %v, want calendar,reception", got)
	}
	if got := query["date"]; len(got) != 1 || got[0] != "2025-01-02" {
		t.Errorf("date = %v, want 2025-01-02", got)
	}
	if got := query["deskId"]; len(got) != 1 || got[0] != "front" {
		t.Errorf("deskId = %v, want front", got)
	}
}

func TestCoordinatorScheduleBoardContributesScreenID(t *testing.T) {
	var gotQuery atomic.Value
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveFrames(conn, make(chan Frame, 1))
	}))
	defer server.Close()

	store, err := screenstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	wantID, err := store.ScreenID()
	if err != nil {
		t.Fatalf("ScreenID failed: %v", err)
	}

	client := newTestClient(t, testClientConfig(wsURL(server)))
	co := NewCoordinator(client, store, CoordinatorConfig{DebounceWindow: 30 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := co.EnsureConnected(ctx, ClientTypeScheduleBoard, map[string]string{"date": "2025-01-02"}); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	query := gotQuery.Load().(url.Values)
	if got := query.Get("screenId"); got != wantID {
		t.Errorf("screenId = %q, want %q", got, wantID)
	}
	if got := query.Get("clientTypes"); got != "scheduleBoard" {
		t.Errorf("clientTypes = %q, want scheduleBoard", got)
	}
	if got := query.Get("date"); got != "2025-01-02" {
		t.Errorf("date = %q, want 2025-01-02", got)
	}
}

func TestCoordinatorCalendarOnlyOmitsScreenID(t *testing.T) {
	var gotQuery atomic.Value
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.Query())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveFrames(conn, make(chan Frame, 1))
	}))
	defer server.Close()

	store, err := screenstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	client := newTestClient(t, testClientConfig(wsURL(server)))
	co := NewCoordinator(client, store, CoordinatorConfig{DebounceWindow: 30 * time.Millisecond}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := co.EnsureConnected(ctx, ClientTypeCalendar, nil); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	query := gotQuery.Load().(url.Values)
	if query.Has("screenId") {
		t.Errorf("screenId sent without a schedule board registration: %q", query.Get("screenId"))
	}
}

func TestCoordinatorAlreadyConnectedFastPath(t *testing.T) {
	var accepts atomic.Int32
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accepts.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveFrames(conn, make(chan Frame, 1))
	}))
	defer server.Close()

	co := newTestCoordinator(t, server, 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := co.EnsureConnected(ctx, ClientTypeCalendar, nil); err != nil {
		t.Fatalf("first EnsureConnected failed: %v", err)
	}

	// A second subsystem registering against a live connection returns
	// immediately without another physical connect.
	start := time.Now()
	if err := co.EnsureConnected(ctx, "reception", nil); err != nil {
		t.Fatalf("second EnsureConnected failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Millisecond {
		t.Errorf("fast path took %v", elapsed)
	}
	if n := accepts.Load(); n != 1 {
		t.Errorf("server accepted %d connections, want 1", n)
	}
}

func TestCoordinatorRemoveClientTypeKeepsConnection(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		serveFrames(conn, make(chan Frame, 1))
	})
	defer server.Close()

	co := newTestCoordinator(t, server, 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := co.EnsureConnected(ctx, ClientTypeCalendar, nil); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	if err := co.EnsureConnected(ctx, "reception", nil); err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}

	co.RemoveClientType(ClientTypeCalendar)

	if !co.Service().IsConnected() {
		t.Error("connection dropped after removing a client type")
	}
	status := co.Status()
	if len(status.ClientTypes) != 1 || status.ClientTypes[0] != "reception" {
		t.Errorf("ClientTypes = %v, want [reception]", status.ClientTypes)
	}
	if !status.Connected {
		t.Error("status should report connected")
	}
}

func TestCoordinatorStatusWhilePending(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		serveFrames(conn, make(chan Frame, 1))
	})
	defer server.Close()

	co := newTestCoordinator(t, server, 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- co.EnsureConnected(ctx, ClientTypeCalendar, nil) }()

	// Inside the debounce window nothing has gone out yet.
	time.Sleep(50 * time.Millisecond)
	status := co.Status()
	if !status.AttemptPending {
		t.Error("expected AttemptPending inside the debounce window")
	}
	if status.Connected {
		t.Error("connected before the debounced connect went out")
	}

	if err := <-done; err != nil {
		t.Fatalf("EnsureConnected failed: %v", err)
	}
	status = co.Status()
	if status.AttemptPending {
		t.Error("AttemptPending still set after connect settled")
	}
	if !status.Connected {
		t.Error("status should report connected")
	}
}
