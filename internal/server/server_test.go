package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/gestureplc/internal/app"
)

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServer_Health(t *testing.T) {
	t.Run("reports uptime since New", func(t *testing.T) {
		s := New(Config{})
		s.start = time.Now().Add(-90 * time.Second)

		rec := serve(s, http.MethodGet, "/api/health")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response struct {
			Status string `json:"status"`
			Uptime string `json:"uptime"`
			PLC    string `json:"plc"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("decode: %v", err)
		}
		uptime, err := time.ParseDuration(response.Uptime)
		if err != nil {
			t.Fatalf("uptime %q is not a duration: %v", response.Uptime, err)
		}
		if response.Status != "ok" || uptime < 90*time.Second {
			t.Errorf("unexpected health: %+v", response)
		}
		if response.PLC != "" {
			t.Errorf("expected no plc state without an app, got %q", response.PLC)
		}
	})

	t.Run("includes backend state", func(t *testing.T) {
		s := New(Config{App: newTestApp(t, nil)})

		var response map[string]string
		if err := json.NewDecoder(serve(s, http.MethodGet, "/api/health").Body).Decode(&response); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if response["plc"] != "RUN" {
			t.Errorf("plc = %q, want RUN", response["plc"])
		}
	})

	t.Run("rejects writes", func(t *testing.T) {
		s := New(Config{})
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			if rec := serve(s, method, "/api/health"); rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_StaticAlongsideAPI(t *testing.T) {
	dir := t.TempDir()
	page := "<html><body>gesture status</body></html>"
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(page), 0644); err != nil {
		t.Fatalf("write index: %v", err)
	}
	// A stray file under api/ must not shadow the API routes.
	if err := os.MkdirAll(filepath.Join(dir, "api"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "api", "status"), []byte("stale"), 0644); err != nil {
		t.Fatalf("write api/status: %v", err)
	}

	s := New(Config{StaticDir: dir, App: newTestApp(t, nil)})

	if rec := serve(s, http.MethodGet, "/"); rec.Code != http.StatusOK || rec.Body.String() != page {
		t.Errorf("GET /: status %d body %q", rec.Code, rec.Body.String())
	}

	rec := serve(s, http.MethodGet, "/api/status")
	if rec.Code != http.StatusOK || strings.Contains(rec.Body.String(), "stale") {
		t.Errorf("GET /api/status should reach the API, got %d %q", rec.Code, rec.Body.String())
	}

	if rec := serve(s, http.MethodGet, "/missing.js"); rec.Code != http.StatusNotFound {
		t.Errorf("GET /missing.js: expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestServer_RoutesWithoutApp(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/", "/api/status", "/api/gestures", "/api/pulses", "/api/events"} {
		if rec := serve(s, http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("%s: expected status %d, got %d", path, http.StatusNotFound, rec.Code)
		}
	}
	if s.Events() != nil {
		t.Error("expected no event stream without an app")
	}
}

func TestEventsHandler_BroadcastSkipsFullClient(t *testing.T) {
	h := NewEventsHandler()

	// A client whose writer never drains its queue.
	stuck := &eventClient{send: make(chan []byte, clientBuffer), done: make(chan struct{})}
	h.clients[stuck] = struct{}{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < clientBuffer+5; i++ {
			h.Broadcast(app.Pulse{ID: "p", Gesture: "swipe_left"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client queue")
	}
	if got := len(stuck.send); got != clientBuffer {
		t.Errorf("expected %d queued events, got %d", clientBuffer, got)
	}

	h.remove(stuck)
	if h.Clients() != 0 {
		t.Errorf("expected no clients after remove, got %d", h.Clients())
	}
}
