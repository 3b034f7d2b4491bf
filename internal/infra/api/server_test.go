//go:build !integration

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"concept-forge/internal/infra/api"
	"concept-forge/internal/infra/logging"
)

func TestOpsServer(t *testing.T) {
	t.Run("healthz is always ok", func(t *testing.T) {
		s := api.NewOpsServer(0, nil, logging.Nop())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("readyz reports failing checks", func(t *testing.T) {
		s := api.NewOpsServer(0, map[string]api.Check{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("dial tcp: refused") },
		}, logging.Nop())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body["postgres"] != "ok" || body["redis"] == "ok" {
			t.Errorf("unexpected report %v", body)
		}
	})

	t.Run("readyz ok when all checks pass", func(t *testing.T) {
		s := api.NewOpsServer(0, map[string]api.Check{
			"postgres": func(context.Context) error { return nil },
		}, logging.Nop())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("metrics are served", func(t *testing.T) {
		s := api.NewOpsServer(0, nil, logging.Nop())
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}
