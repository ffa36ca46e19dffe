package handlers

import (
	"encoding/json"
	"net/http"
)

// RiskHandler обрабатывает HTTP запросы управления риск-контролем.
//
// Endpoints:
// - GET /api/v1/risk - текущее состояние риск-контроля
// - POST /api/v1/risk/pause - приостановить торговлю (kill switch)
// - POST /api/v1/risk/resume - возобновить торговлю
type RiskHandler struct {
	risk RiskService
}

// NewRiskHandler создает новый RiskHandler с внедрением зависимостей.
func NewRiskHandler(risk RiskService) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// GetRisk возвращает снимок состояния риск-контроля.
//
// GET /api/v1/risk
//
// Response 200 OK:
//
//	{
//	  "daily_notional": 12500.00,
//	  "reserved": 4000.00,
//	  "consecutive_losses": 1,
//	  "paused": false,
//	  "session_start": "2025-12-01T08:00:00Z",
//	  "session_end": "2025-12-01T16:00:00Z",
//	  "captured_at": "2025-12-01T12:00:00Z"
//	}
func (h *RiskHandler) GetRisk(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		respondError(w, http.StatusInternalServerError, "risk governor not initialized", "")
		return
	}

	respondJSON(w, http.StatusOK, h.risk.Snapshot())
}

// pauseRequest опциональное тело POST /api/v1/risk/pause
type pauseRequest struct {
	Reason string `json:"reason"`
}

// PauseTrading вручную приостанавливает торговлю на всех маршрутах.
//
// POST /api/v1/risk/pause
// Body (опционально): {"reason": "manual intervention"}
//
// Response 200 OK:
//
//	{"message": "trading paused"}
func (h *RiskHandler) PauseTrading(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		respondError(w, http.StatusInternalServerError, "risk governor not initialized", "")
		return
	}

	reason := "manual pause"
	if r.Body != nil {
		var req pauseRequest
		// тело опционально: пустое или некорректное тело не ошибка
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Reason != "" {
			reason = req.Reason
		}
	}

	h.risk.Pause(reason)
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "trading paused"})
}

// ResumeTrading возобновляет торговлю после ручной паузы.
//
// POST /api/v1/risk/resume
//
// Response 200 OK:
//
//	{"message": "trading resumed"}
func (h *RiskHandler) ResumeTrading(w http.ResponseWriter, r *http.Request) {
	if h.risk == nil {
		respondError(w, http.StatusInternalServerError, "risk governor not initialized", "")
		return
	}

	h.risk.Resume()
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "trading resumed"})
}
