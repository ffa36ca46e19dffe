package handlers

import (
	"spotperp/internal/models"
)

// ============ Mocks ============

// mockEngine реализует EngineService для тестов handlers
type mockEngine struct {
	routes   []models.RouteRuntime
	outcomes []*models.TradeOutcome
	paused   map[string]bool
}

func newMockEngine() *mockEngine {
	return &mockEngine{paused: make(map[string]bool)}
}

func (m *mockEngine) RouteStatuses() []models.RouteRuntime {
	out := make([]models.RouteRuntime, len(m.routes))
	copy(out, m.routes)
	for i := range out {
		out[i].Paused = m.paused[out[i].Name]
	}
	return out
}

func (m *mockEngine) RecentOutcomes() []*models.TradeOutcome { return m.outcomes }
func (m *mockEngine) PauseRoute(name string)                 { m.paused[name] = true }
func (m *mockEngine) ResumeRoute(name string)                { m.paused[name] = false }
func (m *mockEngine) RoutePaused(name string) bool           { return m.paused[name] }

// mockRisk реализует RiskService для тестов handlers
type mockRisk struct {
	state       models.RiskState
	pauseCalls  []string
	resumeCalls int
}

func (m *mockRisk) Snapshot() models.RiskState { return m.state }

func (m *mockRisk) Pause(reason string) {
	m.state.Paused = true
	m.state.PauseReason = reason
	m.pauseCalls = append(m.pauseCalls, reason)
}

func (m *mockRisk) Resume() {
	m.state.Paused = false
	m.state.PauseReason = ""
	m.resumeCalls++
}

// mockClients реализует ClientCounter
type mockClients struct{ count int }

func (m *mockClients) ClientCount() int { return m.count }
