package models

import "time"

// Direction - направление spot↔perp арбитража
type Direction string

// Направления сделки
const (
	// DirectionLongSpotShortPerp - покупаем спот, продаём перп (перп дорогой)
	DirectionLongSpotShortPerp Direction = "long_spot_short_perp"

	// DirectionShortSpotLongPerp - продаём спот, покупаем перп (перп дешёвый)
	DirectionShortSpotLongPerp Direction = "short_spot_long_perp"
)

// Opportunity - обнаруженная возможность между спотом и перпом.
//
// Создаётся заново на каждом цикле детекции и никогда не мутируется.
// Все ценовые поля скопированы из снимков по значению: последующие
// обновления стаканов не влияют на уже построенный план.
type Opportunity struct {
	Route     string    `json:"route"`
	Symbol    string    `json:"symbol"`
	Direction Direction `json:"direction"`

	// Цены касания для лимитных IOC ордеров
	BuyVenue  string  `json:"buy_venue"`
	BuyPrice  float64 `json:"buy_price"` // best ask стороны покупки
	SellVenue string  `json:"sell_venue"`
	SellPrice float64 `json:"sell_price"` // best bid стороны продажи

	// VWAP исполнения на выбранном размере
	BuyVWAP  float64 `json:"buy_vwap"`
	SellVWAP float64 `json:"sell_vwap"`
	Mid      float64 `json:"mid"`

	// Эдж и размер
	GrossEdgeBps float64 `json:"gross_edge_bps"`
	NetEdgeBps   float64 `json:"net_edge_bps"` // gross с поправкой на funding перп-ноги
	MaxSize      float64 `json:"max_size"`     // максимальный объём, на котором эдж держится

	// Входы свежести: возраст снимков на момент детекции
	SpotAge time.Duration `json:"spot_age"`
	PerpAge time.Duration `json:"perp_age"`

	DetectedAt time.Time `json:"detected_at"`
}

// Notional возвращает нотионал возможности в валюте котировки
func (o *Opportunity) Notional() float64 {
	return o.MaxSize * o.Mid
}
