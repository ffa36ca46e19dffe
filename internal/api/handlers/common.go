package handlers

import (
	"encoding/json"
	"net/http"

	"spotperp/internal/models"
)

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// EngineService - операторский интерфейс торгового движка.
// Реализуется *bot.Engine; в тестах подменяется моком.
type EngineService interface {
	RouteStatuses() []models.RouteRuntime
	RecentOutcomes() []*models.TradeOutcome
	PauseRoute(name string)
	ResumeRoute(name string)
	RoutePaused(name string) bool
}

// RiskService - операторский интерфейс риск-контроля.
// Реализуется *bot.Governor.
type RiskService interface {
	Snapshot() models.RiskState
	Pause(reason string)
	Resume()
}

// respondJSON сериализует payload и пишет его с указанным статусом
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// respondError пишет стандартный ответ об ошибке
func respondError(w http.ResponseWriter, status int, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Details: details,
	})
}
