package bot

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"spotperp/internal/config"
	"spotperp/internal/models"
	"spotperp/internal/venue"
	"spotperp/pkg/utils"
)

// Planner превращает возможность в неизменяемый план двуногой сделки.
//
// Планирование заканчивается либо планом с удержанной резервацией,
// либо детерминированным отказом. План с резервацией обязан дойти
// до координатора: резервацию освобождает только он.
type Planner struct {
	cfg      config.ExecutionConfig
	governor *Governor
	logger   *zap.Logger
}

// NewPlanner создаёт планировщик
func NewPlanner(cfg config.ExecutionConfig, governor *Governor, logger *zap.Logger) *Planner {
	return &Planner{
		cfg:      cfg,
		governor: governor,
		logger:   logger.Named("planner"),
	}
}

// PlanInputs - рыночные ограничения обеих площадок на момент планирования
type PlanInputs struct {
	BuyLimits   venue.Limits
	SellLimits  venue.Limits
	BuyBalance  float64 // доступный баланс площадки покупки, USD
	SellBalance float64
}

// Plan строит план сделки по возможности.
//
// Размер - минимум из размера возможности, разрешённого гавернором
// нотионала, потолка на сделку и балансов площадок; затем усечение
// вниз до шага размера. Если после усечения размер не проходит
// минимумы площадок - SizeTooSmallError, резервация не берётся.
func (p *Planner) Plan(opp *models.Opportunity, in PlanInputs) (*models.ExecutionPlan, *Reservation, error) {
	now := time.Now()

	// Возможность живёт миллисекунды: устаревшая отбрасывается,
	// следующий цикл детекции выдаст свежую
	if now.Sub(opp.DetectedAt) > p.cfg.PlanStaleAfter {
		return nil, nil, ErrStaleOpportunity
	}

	permitted := p.governor.PermittedNotional()
	if permitted <= 0 {
		return nil, nil, &RiskRejectedError{Route: opp.Route, Reason: "no permitted notional"}
	}

	notional := utils.Min(
		opp.Notional(),
		permitted,
		p.cfg.PerOrderCapUSD,
		in.BuyBalance,
		in.SellBalance,
	)
	if notional <= 0 {
		return nil, nil, &SizeTooSmallError{Route: opp.Route, Quantity: 0, Reason: "no notional available"}
	}

	quantity := notional / opp.Mid
	if quantity > opp.MaxSize {
		quantity = opp.MaxSize
	}

	// Усечение под общий шаг (НОК): кратность нужна каждой площадке,
	// последовательное усечение по двум шагам её не даёт
	quantity = utils.TruncateToStep(quantity, utils.CommonStep(in.BuyLimits.SizeStep, in.SellLimits.SizeStep))
	if quantity <= 0 {
		return nil, nil, &SizeTooSmallError{Route: opp.Route, Quantity: quantity, Reason: "truncated to zero"}
	}

	if err := p.checkMinimums(opp, quantity, in); err != nil {
		return nil, nil, err
	}

	// Guard-смещение: лимитка исполнится при небольшом неблагоприятном
	// движении, но проскальзывание ограничено сверху
	guard := p.cfg.GuardBps / 10000
	buyLimit := opp.BuyPrice * (1 + guard)
	sellLimit := opp.SellPrice * (1 - guard)

	planNotional := quantity * opp.Mid
	reservation, err := p.governor.Reserve(opp.Route, planNotional)
	if err != nil {
		return nil, nil, err
	}

	plan := &models.ExecutionPlan{
		CorrelationID: uuid.New().String(),
		Route:         opp.Route,
		Direction:     opp.Direction,
		BuyLeg: models.LegOrder{
			Venue:      opp.BuyVenue,
			Symbol:     opp.Symbol,
			Side:       models.SideBuy,
			Type:       models.OrderTypeIOC,
			LimitPrice: buyLimit,
			Quantity:   quantity,
		},
		SellLeg: models.LegOrder{
			Venue:      opp.SellVenue,
			Symbol:     opp.Symbol,
			Side:       models.SideSell,
			Type:       models.OrderTypeIOC,
			LimitPrice: sellLimit,
			Quantity:   quantity,
		},
		Notional:  planNotional,
		CreatedAt: now,
		ExpiresAt: now.Add(p.cfg.MaxLegLatency),
	}

	p.logger.Info("plan built",
		zap.String("correlation_id", plan.CorrelationID),
		zap.String("route", plan.Route),
		zap.String("direction", string(plan.Direction)),
		zap.Float64("quantity", quantity),
		zap.Float64("notional", planNotional),
		zap.Float64("buy_limit", buyLimit),
		zap.Float64("sell_limit", sellLimit),
	)

	return plan, reservation, nil
}

// checkMinimums проверяет минимальный размер и нотионал обеих площадок
func (p *Planner) checkMinimums(opp *models.Opportunity, quantity float64, in PlanInputs) error {
	notional := quantity * opp.Mid

	if quantity < in.BuyLimits.MinQty || notional < in.BuyLimits.MinNotional {
		return &SizeTooSmallError{Route: opp.Route, Quantity: quantity, Reason: "below buy venue minimums"}
	}
	if quantity < in.SellLimits.MinQty || notional < in.SellLimits.MinNotional {
		return &SizeTooSmallError{Route: opp.Route, Quantity: quantity, Reason: "below sell venue minimums"}
	}
	return nil
}
