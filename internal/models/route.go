package models

import "fmt"

// RouteKind - закрытое множество видов маршрутов.
// Вид выбирается один раз при конструировании маршрута и больше
// не передиспетчеризуется на каждом тике.
type RouteKind string

// Виды маршрутов
const (
	// RouteKindSpotPerp - спот против перпетуального фьючерса того же актива
	RouteKindSpotPerp RouteKind = "spot_perp"
)

// RouteConfig - статическая конфигурация одного маршрута
type RouteConfig struct {
	Name      string    `json:"name" yaml:"name"`
	Kind      RouteKind `json:"kind" yaml:"kind"`
	Symbol    string    `json:"symbol" yaml:"symbol"`
	SpotVenue string    `json:"spot_venue" yaml:"spot_venue"`
	PerpVenue string    `json:"perp_venue" yaml:"perp_venue"`
}

// Validate проверяет конфигурацию маршрута
func (rc *RouteConfig) Validate() error {
	if rc.Name == "" {
		return fmt.Errorf("route name is required")
	}
	if rc.Symbol == "" {
		return fmt.Errorf("route %s: symbol is required", rc.Name)
	}
	if rc.SpotVenue == "" || rc.PerpVenue == "" {
		return fmt.Errorf("route %s: both spot_venue and perp_venue are required", rc.Name)
	}
	if rc.SpotVenue == rc.PerpVenue {
		return fmt.Errorf("route %s: spot and perp venues must differ", rc.Name)
	}
	switch rc.Kind {
	case RouteKindSpotPerp:
	default:
		return fmt.Errorf("route %s: unknown kind %q", rc.Name, rc.Kind)
	}
	return nil
}

// Состояния сделки (state machine координатора)
const (
	StatePlanned     = "PLANNED"     // план построен, резервация удержана
	StateDispatched  = "DISPATCHED"  // обе ноги отправлены параллельно
	StateReconciling = "RECONCILING" // классификация пары результатов
	StateUnwinding   = "UNWINDING"   // выравнивание одностороннего исполнения
	StateSettled     = "SETTLED"     // терминальное состояние
)

// RouteRuntime - наблюдаемое состояние маршрута для API и WS
type RouteRuntime struct {
	Name        string        `json:"name"`
	Symbol      string        `json:"symbol"`
	Paused      bool          `json:"paused"`
	Trades      int           `json:"trades"`
	RealizedPnl float64       `json:"realized_pnl"`
	LastOutcome *TradeOutcome `json:"last_outcome,omitempty"`
}
