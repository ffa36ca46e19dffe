package handlers

import (
	"net/http"
	"time"
)

// ClientCounter возвращает число подключенных WebSocket клиентов
type ClientCounter interface {
	ClientCount() int
}

// StatusHandler обрабатывает HTTP запросы статуса сервиса.
//
// Endpoints:
// - GET /api/v1/status - общий статус: uptime, маршруты, WebSocket клиенты
type StatusHandler struct {
	engine    EngineService
	risk      RiskService
	clients   ClientCounter
	startedAt time.Time
}

// NewStatusHandler создает новый StatusHandler с внедрением зависимостей.
func NewStatusHandler(engine EngineService, risk RiskService, clients ClientCounter) *StatusHandler {
	return &StatusHandler{
		engine:    engine,
		risk:      risk,
		clients:   clients,
		startedAt: time.Now(),
	}
}

// StatusResponse агрегированный ответ GET /api/v1/status
type StatusResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Routes        int     `json:"routes"`
	PausedRoutes  int     `json:"paused_routes"`
	TradingPaused bool    `json:"trading_paused"`
	WSClients     int     `json:"ws_clients"`
}

// GetStatus возвращает общий статус сервиса.
//
// GET /api/v1/status
//
// Response 200 OK:
//
//	{
//	  "status": "ok",
//	  "uptime_seconds": 3600.5,
//	  "routes": 2,
//	  "paused_routes": 0,
//	  "trading_paused": false,
//	  "ws_clients": 1
//	}
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil || h.risk == nil {
		respondError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	routes := h.engine.RouteStatuses()
	paused := 0
	for _, route := range routes {
		if route.Paused {
			paused++
		}
	}

	resp := StatusResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Routes:        len(routes),
		PausedRoutes:  paused,
		TradingPaused: h.risk.Snapshot().Paused,
	}
	if h.clients != nil {
		resp.WSClients = h.clients.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}
