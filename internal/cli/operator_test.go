package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/HR-AR/Project-Conductor-sub000/internal/resilience/breaker"
)

func TestAPIClient(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/breakers":
			_, _ = w.Write([]byte(`[{"scope":"builder","state":"open","isOpen":true,"failureCount":5}]`))
		case "/tasks/missing/resume":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"task not found"}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := &apiClient{base: srv.URL, http: srv.Client()}

	var snaps []breaker.Snapshot
	if err := c.do(context.Background(), http.MethodGet, "/breakers", &snaps); err != nil {
		t.Fatalf("do failed: %v", err)
	}
	if len(snaps) != 1 || snaps[0].Scope != "builder" || !snaps[0].IsOpen {
		t.Errorf("unexpected snapshots %+v", snaps)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("expected GET, got %s", gotMethod)
	}

	err := c.do(context.Background(), http.MethodPost, "/tasks/missing/resume", nil)
	if err == nil || !strings.Contains(err.Error(), "task not found") || !strings.Contains(err.Error(), "404") {
		t.Errorf("expected server error message, got %v", err)
	}
	if gotPath != "/tasks/missing/resume" {
		t.Errorf("unexpected path %s", gotPath)
	}

	err = c.do(context.Background(), http.MethodPost, "/other", nil)
	if err == nil || !strings.Contains(err.Error(), "unexpected status 418") {
		t.Errorf("expected status error, got %v", err)
	}
}
