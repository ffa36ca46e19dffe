package bot

import (
	"time"

	"go.uber.org/zap"

	"spotperp/internal/config"
	"spotperp/internal/models"
	"spotperp/pkg/utils"
)

// Detector ищет расхождение цен между спотом и перпом одного актива.
//
// Эдж считается по VWAP исполнения, а не по ценам касания: тонкая
// вершина стакана даёт красивый эдж на L1, который исчезает на
// реальном размере. Funding перпа входит в чистый эдж со знаком:
// шорт перпа получает funding (кредит), лонг перпа платит (расход).
type Detector struct {
	cfg    config.DetectorConfig
	books  *Books
	logger *zap.Logger
}

// NewDetector создаёт детектор
func NewDetector(cfg config.DetectorConfig, books *Books, logger *zap.Logger) *Detector {
	return &Detector{
		cfg:    cfg,
		books:  books,
		logger: logger.Named("detector"),
	}
}

// Detect оценивает маршрут по текущим стаканам.
//
// Возвращает ErrNoOpportunity если эдж ниже порога, StaleBookError
// если хотя бы один снимок устарел. Оба направления оцениваются
// независимо; при двух проходных берётся большее по чистому эджу.
func (d *Detector) Detect(route models.RouteConfig) (*models.Opportunity, error) {
	spot, err := d.books.Current(route.SpotVenue, route.Symbol)
	if err != nil {
		return nil, err
	}
	perp, err := d.books.Current(route.PerpVenue, route.Symbol)
	if err != nil {
		return nil, err
	}

	// Слишком широкий собственный спред стакана - признак нездорового
	// рынка или полупустого фида; такие данные не торгуются
	if spot.SpreadBps() > d.cfg.MaxSpreadBps || perp.SpreadBps() > d.cfg.MaxSpreadBps {
		return nil, ErrNoOpportunity
	}

	mid := (spot.Mid() + perp.Mid()) / 2
	if mid <= 0 {
		return nil, ErrNoOpportunity
	}

	now := time.Now()

	// Направление 1: спот дешевле - покупаем спот, продаём перп
	longSpot := d.evaluate(route, models.DirectionLongSpotShortPerp, spot, perp, mid, now)

	// Направление 2: перп дешевле - покупаем перп, продаём спот
	shortSpot := d.evaluate(route, models.DirectionShortSpotLongPerp, perp, spot, mid, now)

	best := longSpot
	if best == nil || (shortSpot != nil && shortSpot.NetEdgeBps > best.NetEdgeBps) {
		best = shortSpot
	}
	if best == nil {
		return nil, ErrNoOpportunity
	}

	OpportunitiesDetected.WithLabelValues(route.Name, string(best.Direction)).Inc()
	d.logger.Debug("opportunity detected",
		zap.String("route", route.Name),
		zap.String("direction", string(best.Direction)),
		zap.Float64("net_edge_bps", best.NetEdgeBps),
		zap.Float64("max_size", best.MaxSize),
	)
	return best, nil
}

// evaluate ищет максимальный размер, на котором чистый эдж направления
// держится выше порога.
//
// VWAP покупки с размером не убывает, VWAP продажи не возрастает,
// значит эдж по размеру монотонно не растёт. Кандидатные размеры
// перебираются от большего к меньшему: первый проходной - ответ.
func (d *Detector) evaluate(
	route models.RouteConfig,
	direction models.Direction,
	buyBook, sellBook *models.BookSnapshot,
	mid float64,
	now time.Time,
) *models.Opportunity {
	fundingAdj := d.fundingAdjustmentBps(direction)

	steps := utils.SizeSteps(buyBook.Asks, sellBook.Bids, d.cfg.DepthLevels)
	for i := len(steps) - 1; i >= 0; i-- {
		size := steps[i]

		buyVWAP, buyFilled := utils.WalkBook(buyBook.Asks, size)
		sellVWAP, sellFilled := utils.WalkBook(sellBook.Bids, size)
		if buyFilled < size || sellFilled < size {
			continue
		}

		gross := utils.EdgeBps(sellVWAP, buyVWAP, mid)
		net := gross + fundingAdj
		if i == len(steps)-1 {
			// в гистограмму попадает эдж на полной глубине, один раз за проход
			EdgeObserved.WithLabelValues(route.Name).Observe(net)
		}

		if net < d.cfg.MinEdgeBps {
			continue
		}

		return &models.Opportunity{
			Route:        route.Name,
			Symbol:       route.Symbol,
			Direction:    direction,
			BuyVenue:     buyBook.Venue,
			BuyPrice:     buyBook.BestAsk(),
			SellVenue:    sellBook.Venue,
			SellPrice:    sellBook.BestBid(),
			BuyVWAP:      buyVWAP,
			SellVWAP:     sellVWAP,
			Mid:          mid,
			GrossEdgeBps: gross,
			NetEdgeBps:   net,
			MaxSize:      size,
			SpotAge:      d.ageFor(route.SpotVenue, buyBook, sellBook, now),
			PerpAge:      d.ageFor(route.PerpVenue, buyBook, sellBook, now),
			DetectedAt:   now,
		}
	}
	return nil
}

// fundingAdjustmentBps возвращает поправку чистого эджа на funding
// перп-ноги, масштабированную на ожидаемое время удержания.
// Положительный funding: шорт перпа получает выплату, лонг платит.
func (d *Detector) fundingAdjustmentBps(direction models.Direction) float64 {
	scaled := d.cfg.FundingCostBpsPer8h * float64(d.cfg.MaxHoldMinutes) / 480
	if direction == models.DirectionLongSpotShortPerp {
		return scaled
	}
	return -scaled
}

// ageFor возвращает возраст снимка нужной площадки из пары buy/sell
func (d *Detector) ageFor(venue string, a, b *models.BookSnapshot, now time.Time) time.Duration {
	if a.Venue == venue {
		return a.Age(now)
	}
	return b.Age(now)
}
