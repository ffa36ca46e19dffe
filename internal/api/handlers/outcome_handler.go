package handlers

import (
	"net/http"
	"strconv"

	"spotperp/internal/models"
)

// OutcomeHandler обрабатывает HTTP запросы истории сделок.
//
// Endpoints:
// - GET /api/v1/outcomes?limit=N - последние исходы сделок (новые первыми)
type OutcomeHandler struct {
	engine EngineService
}

// NewOutcomeHandler создает новый OutcomeHandler с внедрением зависимостей.
func NewOutcomeHandler(engine EngineService) *OutcomeHandler {
	return &OutcomeHandler{engine: engine}
}

// GetOutcomes возвращает недавние исходы сделок из кольцевого буфера движка.
//
// GET /api/v1/outcomes?limit=20
//
// Query параметры:
// - limit: максимум записей (по умолчанию все, что есть в буфере)
//
// Response 200 OK:
//
//	[
//	  {
//	    "correlation_id": "a1b2...",
//	    "route": "eth-usdt",
//	    "realized_pnl": 3.50,
//	    "imbalanced": false,
//	    ...
//	  }
//	]
func (h *OutcomeHandler) GetOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	outcomes := h.engine.RecentOutcomes()
	if outcomes == nil {
		outcomes = []*models.TradeOutcome{}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", raw)
			return
		}
		if limit < len(outcomes) {
			outcomes = outcomes[:limit]
		}
	}

	respondJSON(w, http.StatusOK, outcomes)
}
