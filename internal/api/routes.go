package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"spotperp/internal/api/handlers"
	"spotperp/internal/api/middleware"
	"spotperp/internal/bot"
	"spotperp/internal/websocket"
)

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	Engine *bot.Engine
	Hub    *websocket.Hub
	Logger *zap.Logger
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── GET  /status                  - статус сервиса
//	├── GET  /risk                    - снимок риск-контроля
//	├── POST /risk/pause              - приостановить торговлю
//	├── POST /risk/resume             - возобновить торговлю
//	├── GET  /routes                  - список маршрутов
//	├── POST /routes/{name}/pause     - приостановить маршрут
//	├── POST /routes/{name}/resume    - возобновить маршрут
//	└── GET  /outcomes?limit=N        - последние исходы сделок
//
// /ws/stream - WebSocket для real-time обновлений
// /metrics   - Prometheus метрики
//
// Middleware применяется в следующем порядке:
// 1. Recovery (для всех маршрутов)
// 2. Logging (для всех маршрутов)
// 3. CORS (для всех маршрутов)
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	logger := zap.NewNop()
	if deps != nil && deps.Logger != nil {
		logger = deps.Logger
	}

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.CORS)

	var engine handlers.EngineService
	var risk handlers.RiskService
	if deps != nil && deps.Engine != nil {
		engine = deps.Engine
		risk = deps.Engine.Governor()
	}

	var clients handlers.ClientCounter
	if deps != nil && deps.Hub != nil {
		clients = deps.Hub
	}

	statusHandler := handlers.NewStatusHandler(engine, risk, clients)
	riskHandler := handlers.NewRiskHandler(risk)
	routeHandler := handlers.NewRouteHandler(engine)
	outcomeHandler := handlers.NewOutcomeHandler(engine)

	// API v1 routes
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", statusHandler.GetStatus).Methods("GET")

	api.HandleFunc("/risk", riskHandler.GetRisk).Methods("GET")
	api.HandleFunc("/risk/pause", riskHandler.PauseTrading).Methods("POST")
	api.HandleFunc("/risk/resume", riskHandler.ResumeTrading).Methods("POST")

	api.HandleFunc("/routes", routeHandler.GetRoutes).Methods("GET")
	api.HandleFunc("/routes/{name}/pause", routeHandler.PauseRoute).Methods("POST")
	api.HandleFunc("/routes/{name}/resume", routeHandler.ResumeRoute).Methods("POST")

	api.HandleFunc("/outcomes", outcomeHandler.GetOutcomes).Methods("GET")

	// WebSocket stream
	if deps != nil && deps.Hub != nil {
		router.HandleFunc("/ws/stream", deps.Hub.ServeWS)
	}

	// Prometheus метрики
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}
