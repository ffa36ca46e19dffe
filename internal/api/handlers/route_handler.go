package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"spotperp/internal/models"
)

// RouteHandler обрабатывает HTTP запросы управления маршрутами.
//
// Endpoints:
// - GET /api/v1/routes - список маршрутов с runtime-статистикой
// - POST /api/v1/routes/{name}/pause - приостановить маршрут
// - POST /api/v1/routes/{name}/resume - возобновить маршрут
type RouteHandler struct {
	engine EngineService
}

// NewRouteHandler создает новый RouteHandler с внедрением зависимостей.
func NewRouteHandler(engine EngineService) *RouteHandler {
	return &RouteHandler{engine: engine}
}

// GetRoutes возвращает все маршруты с их текущим состоянием.
//
// GET /api/v1/routes
//
// Response 200 OK:
//
//	[
//	  {
//	    "name": "eth-usdt",
//	    "symbol": "ETHUSDT",
//	    "paused": false,
//	    "trades": 12,
//	    "realized_pnl": 84.50
//	  }
//	]
func (h *RouteHandler) GetRoutes(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	routes := h.engine.RouteStatuses()
	if routes == nil {
		routes = []models.RouteRuntime{}
	}

	respondJSON(w, http.StatusOK, routes)
}

// PauseRoute приостанавливает один маршрут, не трогая остальные.
//
// POST /api/v1/routes/{name}/pause
//
// Response 200 OK:    {"message": "route paused"}
// Response 404:       {"error": "route not found"}
func (h *RouteHandler) PauseRoute(w http.ResponseWriter, r *http.Request) {
	h.setRoutePaused(w, r, true)
}

// ResumeRoute возобновляет ранее приостановленный маршрут.
//
// POST /api/v1/routes/{name}/resume
//
// Response 200 OK:    {"message": "route resumed"}
// Response 404:       {"error": "route not found"}
func (h *RouteHandler) ResumeRoute(w http.ResponseWriter, r *http.Request) {
	h.setRoutePaused(w, r, false)
}

func (h *RouteHandler) setRoutePaused(w http.ResponseWriter, r *http.Request, paused bool) {
	if h.engine == nil {
		respondError(w, http.StatusInternalServerError, "engine not initialized", "")
		return
	}

	name := mux.Vars(r)["name"]
	if !h.routeExists(name) {
		respondError(w, http.StatusNotFound, "route not found", name)
		return
	}

	if paused {
		h.engine.PauseRoute(name)
		respondJSON(w, http.StatusOK, SuccessResponse{Message: "route paused"})
		return
	}

	h.engine.ResumeRoute(name)
	respondJSON(w, http.StatusOK, SuccessResponse{Message: "route resumed"})
}

func (h *RouteHandler) routeExists(name string) bool {
	for _, route := range h.engine.RouteStatuses() {
		if route.Name == name {
			return true
		}
	}
	return false
}
