package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"spotperp/internal/config"
	"spotperp/internal/models"
	"spotperp/internal/venue"
	"spotperp/pkg/retry"
	"spotperp/pkg/utils"
)

// qtyEpsilon - остаток меньше этого считается нулевым дисбалансом
const qtyEpsilon = 1e-9

// NotifyFunc - колбэк для операторских уведомлений.
// Вызывается синхронно, реализация обязана не блокироваться.
type NotifyFunc func(models.Notification)

// Coordinator исполняет план двуногой сделки: обе ноги отправляются
// ОДНОВРЕМЕННО (goroutines), общее время = max(латентность ног).
//
// Пессимизм по таймауту: нога без ответа к дедлайну считается
// "возможно исполненной" - на её площадку асинхронно уходит отмена,
// а противоположная исполненная нога выравнивается unwind'ом.
// Никогда не предполагаем, что зависшая нога не исполнилась.
type Coordinator struct {
	cfg    config.ExecutionConfig
	venues map[string]venue.Venue
	logger *zap.Logger
	notify NotifyFunc
}

// legResult - результат одной ноги из goroutine отправки
type legResult struct {
	outcome models.LegOutcome
	err     error
}

// NewCoordinator создаёт координатор
func NewCoordinator(cfg config.ExecutionConfig, venues map[string]venue.Venue, logger *zap.Logger, notify NotifyFunc) *Coordinator {
	if notify == nil {
		notify = func(models.Notification) {}
	}
	return &Coordinator{
		cfg:    cfg,
		venues: venues,
		logger: logger.Named("coordinator"),
		notify: notify,
	}
}

// Execute проводит план через state machine до терминального итога.
//
// Резервация завершается внутри ровно один раз: Release если ни один
// ордер не был отправлен, иначе Settle с итогом сделки. Ошибка
// возвращается только вместе с итогом при неразрешённом дисбалансе
// (UnwindFailedError) либо вместо итога при отказе до отправки.
func (c *Coordinator) Execute(ctx context.Context, plan *models.ExecutionPlan, reservation *Reservation) (*models.TradeOutcome, error) {
	log := c.logger.With(
		zap.String("correlation_id", plan.CorrelationID),
		zap.String("route", plan.Route),
	)

	buyVenue, buyOk := c.venues[plan.BuyLeg.Venue]
	sellVenue, sellOk := c.venues[plan.SellLeg.Venue]
	if !buyOk || !sellOk {
		// ордера не отправлялись - нотионал возвращается без учёта
		reservation.Release()
		return nil, fmt.Errorf("venue not found: buy=%s(%v) sell=%s(%v)",
			plan.BuyLeg.Venue, buyOk, plan.SellLeg.Venue, sellOk)
	}

	state := models.StatePlanned
	state = c.transition(log, state, models.StateDispatched)

	// Дедлайн обеих ног - срок жизни плана
	legCtx, cancel := context.WithDeadline(ctx, plan.ExpiresAt)
	defer cancel()

	buyCh := make(chan legResult, 1)
	sellCh := make(chan legResult, 1)

	go c.submitLeg(legCtx, buyVenue, plan.BuyLeg, buyCh)
	go c.submitLeg(legCtx, sellVenue, plan.SellLeg, sellCh)

	// Параллельное ожидание обоих результатов
	var buyRes, sellRes legResult
	var buyDone, sellDone bool

	for !buyDone || !sellDone {
		select {
		case buyRes = <-buyCh:
			buyDone = true
		case sellRes = <-sellCh:
			sellDone = true
		case <-legCtx.Done():
			// Дедлайн: не ответившие ноги помечаются timed_out,
			// на их площадки асинхронно уходит отмена
			if !buyDone {
				buyRes = c.settleAfterDeadline(buyCh, plan.BuyLeg, buyVenue, log)
				buyDone = true
			}
			if !sellDone {
				sellRes = c.settleAfterDeadline(sellCh, plan.SellLeg, sellVenue, log)
				sellDone = true
			}
		}
	}

	buyOutcome := c.normalizeOutcome(plan.BuyLeg, buyRes)
	sellOutcome := c.normalizeOutcome(plan.SellLeg, sellRes)

	state = c.transition(log, state, models.StateReconciling)
	outcome, err := c.reconcile(ctx, log, state, plan, buyOutcome, sellOutcome)

	reservation.Settle(outcome)
	return outcome, err
}

// submitLeg отправляет одну ногу и записывает её латентность
func (c *Coordinator) submitLeg(ctx context.Context, v venue.Venue, leg models.LegOrder, ch chan<- legResult) {
	start := time.Now()
	outcome, err := v.SubmitOrder(ctx, leg)
	LegLatency.WithLabelValues(leg.Venue, leg.Side).Observe(float64(time.Since(start).Milliseconds()))
	ch <- legResult{outcome: outcome, err: err}
}

// settleAfterDeadline дочитывает результат ноги на момент дедлайна.
// Результат, доставленный одновременно с дедлайном, важнее
// пессимистичной пометки timed_out - терять подтверждённое
// исполнение нельзя.
func (c *Coordinator) settleAfterDeadline(ch <-chan legResult, leg models.LegOrder, v venue.Venue, log *zap.Logger) legResult {
	select {
	case res := <-ch:
		return res
	default:
		return c.timeoutLeg(leg, v, log)
	}
}

// timeoutLeg оформляет ногу без ответа как timed_out и асинхронно
// отменяет её активные заявки отдельным бюджетом времени.
// Исполненность ноги неизвестна - отчёт об этом идёт в уведомление.
func (c *Coordinator) timeoutLeg(leg models.LegOrder, v venue.Venue, log *zap.Logger) legResult {
	log.Warn("leg timed out, fill state unknown",
		zap.String("venue", leg.Venue),
		zap.String("side", leg.Side),
	)

	go func() {
		cancelCtx, cancel := context.WithTimeout(context.Background(), c.cfg.UnwindTimeout)
		defer cancel()
		if err := v.CancelAll(cancelCtx, leg.Symbol); err != nil {
			c.logger.Error("cancel-all after timeout failed",
				zap.String("venue", leg.Venue),
				zap.Error(err),
			)
		}
	}()

	return legResult{outcome: models.LegOutcome{
		Order:       leg,
		Status:      models.FillStatusTimedOut,
		CompletedAt: time.Now(),
	}}
}

// normalizeOutcome приводит пару (outcome, err) к единому LegOutcome.
// Детерминированный отказ площадки - rejected, прочие ошибки
// трактуются пессимистично как timed_out.
func (c *Coordinator) normalizeOutcome(leg models.LegOrder, res legResult) models.LegOutcome {
	if res.err == nil {
		return res.outcome
	}

	status := models.FillStatusTimedOut
	if verr, ok := res.err.(*venue.Error); ok && verr.Rejected {
		status = models.FillStatusRejected
	}
	return models.LegOutcome{
		Order:       leg,
		Status:      status,
		CompletedAt: time.Now(),
	}
}

// reconcile классифицирует пару результатов и доводит сделку
// до SETTLED, при необходимости через UNWINDING.
func (c *Coordinator) reconcile(
	ctx context.Context,
	log *zap.Logger,
	state string,
	plan *models.ExecutionPlan,
	buy, sell models.LegOutcome,
) (*models.TradeOutcome, error) {
	outcome := &models.TradeOutcome{
		CorrelationID: plan.CorrelationID,
		Route:         plan.Route,
		Direction:     plan.Direction,
		BuyOutcome:    buy,
		SellOutcome:   sell,
	}

	imbalance := utils.Abs(buy.FilledQty - sell.FilledQty)
	matched := utils.Min(buy.FilledQty, sell.FilledQty)

	switch {
	case buy.FilledQty <= qtyEpsilon && sell.FilledQty <= qtyEpsilon:
		// Ничего не исполнилось: нулевой PnL, позиции нет
		c.transition(log, state, models.StateSettled)
		c.finalize(outcome, "noop")
		if buy.Status == models.FillStatusTimedOut && sell.Status == models.FillStatusTimedOut {
			// обе ноги без ответа - фид или площадки нездоровы
			c.notify(models.Notification{
				Timestamp: time.Now(),
				Type:      models.NotificationTypeError,
				Severity:  models.SeverityWarn,
				Route:     plan.Route,
				Message:   "both legs timed out, no confirmed fills",
				Meta:      map[string]interface{}{"correlation_id": plan.CorrelationID},
			})
		}
		return outcome, nil

	case c.balanced(imbalance, matched):
		// Обе ноги исполнены соразмерно - хедж стоит
		c.transition(log, state, models.StateSettled)
		outcome.RealizedPnl = c.cashFlow(outcome)
		c.finalize(outcome, "both_filled")
		c.notify(models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeTrade,
			Severity:  models.SeverityInfo,
			Route:     plan.Route,
			Message: fmt.Sprintf("trade settled: qty=%.6f pnl=%.2f",
				matched, outcome.RealizedPnl),
			Meta: map[string]interface{}{"correlation_id": plan.CorrelationID},
		})
		return outcome, nil

	default:
		// Односторонний или непропорциональный дисбаланс
		state = c.transition(log, state, models.StateUnwinding)
		err := c.unwind(ctx, log, plan, outcome, buy, sell, imbalance)
		c.transition(log, state, models.StateSettled)

		outcome.RealizedPnl = c.cashFlow(outcome)
		if err != nil {
			outcome.Imbalanced = true
			c.finalize(outcome, "unwind_failed")
			return outcome, err
		}
		c.finalize(outcome, "unwound")
		c.notify(models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeUnwind,
			Severity:  models.SeverityWarn,
			Route:     plan.Route,
			Message: fmt.Sprintf("imbalance of %.6f unwound in %d attempt(s), pnl=%.2f",
				imbalance, len(outcome.Unwinds), outcome.RealizedPnl),
			Meta: map[string]interface{}{"correlation_id": plan.CorrelationID},
		})
		return outcome, nil
	}
}

// balanced проверяет соразмерность исполнения двух ног.
// Небольшое расхождение частичных исполнений дешевле оставить,
// чем гонять unwind-ордер размером с пыль.
func (c *Coordinator) balanced(imbalance, matched float64) bool {
	if matched <= qtyEpsilon {
		return false
	}
	return imbalance/matched <= c.cfg.PartialFillTolerance
}

// unwind выравнивает дисбаланс рыночными ордерами с ограниченным
// числом попыток. Остаток после исчерпания попыток - UnwindFailedError.
func (c *Coordinator) unwind(
	ctx context.Context,
	log *zap.Logger,
	plan *models.ExecutionPlan,
	outcome *models.TradeOutcome,
	buy, sell models.LegOutcome,
	imbalance float64,
) error {
	// Выравниваем переисполненную сторону: купили больше - продаём
	// излишек там же; продали больше - откупаем
	var unwindVenue, unwindSide, symbol string
	if buy.FilledQty > sell.FilledQty {
		unwindVenue = buy.Order.Venue
		unwindSide = models.SideSell
		symbol = buy.Order.Symbol
	} else {
		unwindVenue = sell.Order.Venue
		unwindSide = models.SideBuy
		symbol = sell.Order.Symbol
	}

	v, ok := c.venues[unwindVenue]
	if !ok {
		return &UnwindFailedError{
			CorrelationID: plan.CorrelationID,
			Route:         plan.Route,
			Venue:         unwindVenue,
			Remaining:     imbalance,
			Attempts:      0,
		}
	}

	remaining := imbalance
	attempt := 0

	retryCfg := retry.AggressiveConfig()
	retryCfg.MaxRetries = c.cfg.UnwindAttempts
	retryCfg.OnRetry = func(n int, err error, delay time.Duration) {
		log.Warn("unwind retry",
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}

	err := retry.Do(ctx, func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.UnwindTimeout)
		defer cancel()

		legOutcome, err := v.SubmitOrder(attemptCtx, models.LegOrder{
			Venue:    unwindVenue,
			Symbol:   symbol,
			Side:     unwindSide,
			Type:     models.OrderTypeMarket,
			Quantity: remaining,
		})

		action := models.UnwindAction{
			Venue:   unwindVenue,
			Side:    unwindSide,
			Attempt: attempt,
		}
		if err != nil {
			action.Status = models.FillStatusRejected
			outcome.Unwinds = append(outcome.Unwinds, action)
			UnwindAttempts.WithLabelValues(plan.Route, "failed").Inc()
			return fmt.Errorf("unwind attempt %d: %w", attempt, err)
		}

		action.Quantity = remaining
		action.Status = legOutcome.Status
		action.FilledQty = legOutcome.FilledQty
		action.AvgFillPrice = legOutcome.AvgFillPrice
		action.Fee = legOutcome.Fee
		outcome.Unwinds = append(outcome.Unwinds, action)

		remaining -= legOutcome.FilledQty
		if remaining > qtyEpsilon {
			UnwindAttempts.WithLabelValues(plan.Route, "partial").Inc()
			return fmt.Errorf("unwind attempt %d: %v still unhedged", attempt, remaining)
		}

		UnwindAttempts.WithLabelValues(plan.Route, "filled").Inc()
		return nil
	}, retryCfg)

	if err != nil && remaining > qtyEpsilon {
		return &UnwindFailedError{
			CorrelationID: plan.CorrelationID,
			Route:         plan.Route,
			Venue:         unwindVenue,
			Remaining:     remaining,
			Attempts:      attempt,
		}
	}
	return nil
}

// cashFlow считает реализованный PnL как чистый кэш-флоу:
// выручка продаж минус затраты покупок минус все комиссии,
// включая unwind-ордера.
func (c *Coordinator) cashFlow(outcome *models.TradeOutcome) float64 {
	pnl := outcome.SellOutcome.FilledQty*outcome.SellOutcome.AvgFillPrice - outcome.SellOutcome.Fee
	pnl -= outcome.BuyOutcome.FilledQty*outcome.BuyOutcome.AvgFillPrice + outcome.BuyOutcome.Fee

	for _, u := range outcome.Unwinds {
		if u.Side == models.SideSell {
			pnl += u.FilledQty*u.AvgFillPrice - u.Fee
		} else {
			pnl -= u.FilledQty*u.AvgFillPrice + u.Fee
		}
	}
	return pnl
}

// finalize проставляет терминальные поля и метрики
func (c *Coordinator) finalize(outcome *models.TradeOutcome, result string) {
	outcome.SettledAt = time.Now()
	RecordTradeSettled(outcome.Route, result, outcome.RealizedPnl)
}

// transition выполняет переход state machine; незаконный переход
// логируется как ошибка программы, но исполнение не прерывается
func (c *Coordinator) transition(log *zap.Logger, from, to string) string {
	if !CanTransition(from, to) {
		log.Error("illegal state transition",
			zap.String("from", from),
			zap.String("to", to),
		)
	}
	return to
}
