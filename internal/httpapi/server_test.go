package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"memecoin-radar/internal/domain"
	"memecoin-radar/internal/eventbus"
	"memecoin-radar/internal/store"
	"memecoin-radar/internal/supervisor"
)

type fixture struct {
	handler http.Handler
	sup     *supervisor.Supervisor
	posts   *store.PostStore
	bus     *eventbus.Bus
	release chan struct{}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	posts := store.NewPostStore(filepath.Join(dir, "posts.json"))
	coins := store.NewCoinStore(filepath.Join(dir, "coin-data.json"))
	bus := eventbus.New(64)

	// Scraper blocks until released so tests can observe the running state.
	release := make(chan struct{})
	scraper := supervisor.NewFuncStage("scrape", func(ctx context.Context, onLine func(string)) error {
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	noop := func(ctx context.Context, onLine func(string)) error { return nil }

	sup, err := supervisor.New(supervisor.Options{
		Scraper:  scraper,
		Analyzer: supervisor.NewFuncStage("analyze", noop),
		Enricher: supervisor.NewFuncStage("enrich", noop),
		Posts:    posts,
		Coins:    coins,
		Bus:      bus,
	})
	if err != nil {
		t.Fatal(err)
	}

	srv, err := New(Options{Supervisor: sup, Posts: posts, Bus: bus})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{handler: srv.Handler(), sup: sup, posts: posts, bus: bus, release: release}
}

func (f *fixture) do(t *testing.T, method, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var body map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return rec, body
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if f.sup.State() == supervisor.StateIdle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("supervisor stuck in %s", f.sup.State())
}

func TestStartStopLifecycle(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/scraper/start")
	if rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d (%s)", rec.Code, rec.Body)
	}
	if body["success"] != true {
		t.Fatalf("start: expected success, got %v", body)
	}

	// Second start while running conflicts.
	rec, body = f.do(t, http.MethodPost, "/api/scraper/start")
	if rec.Code != http.StatusConflict {
		t.Fatalf("second start: expected 409, got %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("second start: expected success=false, got %v", body)
	}

	rec, _ = f.do(t, http.MethodGet, "/api/scraper/status")
	var status map[string]any
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status["running"] != true {
		t.Fatalf("status while scraping: %v", status)
	}

	rec, _ = f.do(t, http.MethodPost, "/api/scraper/stop")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}
	f.waitIdle(t)

	rec, _ = f.do(t, http.MethodGet, "/api/scraper/status")
	json.Unmarshal(rec.Body.Bytes(), &status)
	if status["running"] != false {
		t.Fatalf("status after stop: %v", status)
	}
}

func TestStopWhenIdleConflicts(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/scraper/stop")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if body["success"] != false {
		t.Fatalf("expected success=false, got %v", body)
	}
}

func TestDataEndpoint(t *testing.T) {
	f := newFixture(t)

	// Missing store file reads as empty, not as an error.
	rec, body := f.do(t, http.MethodGet, "/api/scraper/data")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(0) {
		t.Fatalf("expected count 0, got %v", body["count"])
	}

	if err := f.posts.Append(&domain.Post{ID: 1, Source: "r/solana", Link: "a", Title: "$PEP"}); err != nil {
		t.Fatal(err)
	}
	if err := f.posts.Append(&domain.Post{ID: 2, Source: "r/solana", Link: "b"}); err != nil {
		t.Fatal(err)
	}

	_, body = f.do(t, http.MethodGet, "/api/scraper/data")
	if body["count"] != float64(2) {
		t.Fatalf("expected count 2, got %v", body["count"])
	}
	data, ok := body["data"].([]any)
	if !ok || len(data) != 2 {
		t.Fatalf("expected 2 posts in data, got %v", body["data"])
	}
}

func TestMethodPatternsEnforced(t *testing.T) {
	f := newFixture(t)

	// GET on a POST-only route is rejected by the mux.
	rec, _ := f.do(t, http.MethodGet, "/api/scraper/start")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}

	rec, _ = f.do(t, http.MethodGet, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rec.Code)
	}
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodGet, "/health")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("health: got %d %q", rec.Code, rec.Body.String())
	}

	rec, body := f.do(t, http.MethodGet, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d", rec.Code)
	}
	if body["status"] != "running" || body["state"] != "idle" {
		t.Fatalf("unexpected status payload: %v", body)
	}
}

func TestWebsocketSendsSnapshotThenEvents(t *testing.T) {
	f := newFixture(t)
	if err := f.posts.Append(&domain.Post{ID: 1, Source: "r/solana", Link: "a"}); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(f.handler)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	var snapshot eventbus.Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatal(err)
	}
	if snapshot.Type != eventbus.TypeInitialSnapshot || snapshot.Count != 1 {
		t.Fatalf("expected initialSnapshot with 1 post, got %+v", snapshot)
	}

	f.bus.Publish(eventbus.CoinsUpdated(5))

	var ev eventbus.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != eventbus.TypeCoinsUpdated || ev.Count != 5 {
		t.Fatalf("expected coinsUpdated(5), got %+v", ev)
	}
}
