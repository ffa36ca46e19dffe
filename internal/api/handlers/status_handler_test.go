package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"spotperp/internal/models"
)

// ============ StatusHandler Tests ============

func TestStatusHandler_GetStatus(t *testing.T) {
	t.Run("returns status successfully", func(t *testing.T) {
		engine := newMockEngine()
		engine.routes = []models.RouteRuntime{
			{Name: "eth-usdt", Symbol: "ETHUSDT"},
			{Name: "btc-usdt", Symbol: "BTCUSDT"},
		}
		engine.PauseRoute("btc-usdt")
		risk := &mockRisk{}
		handler := NewStatusHandler(engine, risk, &mockClients{count: 3})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		w := httptest.NewRecorder()

		handler.GetStatus(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}

		var resp StatusResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}

		if resp.Status != "ok" {
			t.Errorf("expected status ok, got %q", resp.Status)
		}
		if resp.Routes != 2 {
			t.Errorf("expected 2 routes, got %d", resp.Routes)
		}
		if resp.PausedRoutes != 1 {
			t.Errorf("expected 1 paused route, got %d", resp.PausedRoutes)
		}
		if resp.WSClients != 3 {
			t.Errorf("expected 3 ws clients, got %d", resp.WSClients)
		}
		if resp.TradingPaused {
			t.Error("expected trading not paused")
		}
	})

	t.Run("reflects risk pause", func(t *testing.T) {
		engine := newMockEngine()
		risk := &mockRisk{}
		risk.Pause("manual")
		handler := NewStatusHandler(engine, risk, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		w := httptest.NewRecorder()

		handler.GetStatus(w, req)

		var resp StatusResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if !resp.TradingPaused {
			t.Error("expected trading paused")
		}
	})

	t.Run("returns 500 when engine is nil", func(t *testing.T) {
		handler := NewStatusHandler(nil, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
		w := httptest.NewRecorder()

		handler.GetStatus(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
		}
	})
}
