package bot

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"spotperp/internal/config"
	"spotperp/internal/models"
)

// Governor - риск-гавернор: единственный учётчик нотионала и единая
// точка разрешения на вход. Все решения принимаются под одним
// мьютексом - гонка двух маршрутов за остаток дневного лимита
// невозможна по построению.
//
// Учёт оптимистичный: резервация удерживает полный плановый нотионал
// до завершения сделки, в дневной счётчик попадает только фактически
// исполненный. Потерять резервацию нельзя: Reservation завершается
// ровно одним из Release/Settle, повторные вызовы - no-op.
type Governor struct {
	cfg    config.RiskConfig
	logger *zap.Logger

	mu                sync.Mutex
	dailyNotional     float64 // исполнено за сессию
	reserved          float64 // удержано активными резервациями
	consecutiveLosses int
	paused            bool
	pauseReason       string
	sessionStart      time.Time
	sessionEnd        time.Time
	inFlight          map[string]bool // маршруты с активной сделкой
}

// NewGovernor создаёт гавернор и открывает торговую сессию
func NewGovernor(cfg config.RiskConfig, logger *zap.Logger) *Governor {
	now := time.Now()
	return &Governor{
		cfg:          cfg,
		logger:       logger.Named("governor"),
		sessionStart: now,
		sessionEnd:   now.Add(cfg.SessionDuration),
		inFlight:     make(map[string]bool),
	}
}

// Reservation - одноразовое удержание нотионала.
// Обязана быть завершена вызовом Release (сделка не состоялась)
// либо Settle (сделка завершена, есть итог).
type Reservation struct {
	gov      *Governor
	route    string
	notional float64
	done     sync.Once
}

// Notional возвращает удержанный нотионал
func (r *Reservation) Notional() float64 {
	return r.notional
}

// PermittedNotional возвращает доступный для новой сделки нотионал.
// Ноль означает что входы сейчас запрещены.
func (g *Governor) PermittedNotional() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused || time.Now().After(g.sessionEnd) {
		return 0
	}
	headroom := g.cfg.MaxDailyNotional - g.dailyNotional - g.reserved
	if headroom < 0 {
		return 0
	}
	return headroom
}

// Reserve удерживает нотионал под сделку маршрута.
//
// Отказы детерминированы: пауза, конец сессии, уже активная сделка
// на маршруте, нехватка дневного лимита. На маршруте допускается не
// более одной сделки в полёте - так дисбаланс одного маршрута не
// размножается.
func (g *Governor) Reserve(route string, notional float64) (*Reservation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.paused {
		RiskRejections.WithLabelValues("paused").Inc()
		return nil, &RiskRejectedError{Route: route, Reason: "trading is paused: " + g.pauseReason}
	}
	if time.Now().After(g.sessionEnd) {
		RiskRejections.WithLabelValues("session_ended").Inc()
		return nil, ErrSessionEnded
	}
	if g.inFlight[route] {
		RiskRejections.WithLabelValues("in_flight").Inc()
		return nil, &RiskRejectedError{Route: route, Reason: "trade already in flight"}
	}
	if notional <= 0 {
		RiskRejections.WithLabelValues("daily_cap").Inc()
		return nil, &RiskRejectedError{Route: route, Reason: "non-positive notional"}
	}
	if g.dailyNotional+g.reserved+notional > g.cfg.MaxDailyNotional {
		RiskRejections.WithLabelValues("daily_cap").Inc()
		return nil, &RiskRejectedError{Route: route, Reason: "daily notional cap exhausted"}
	}

	g.reserved += notional
	g.inFlight[route] = true
	NotionalReserved.Set(g.reserved)

	return &Reservation{gov: g, route: route, notional: notional}, nil
}

// Release возвращает удержанный нотионал без учёта в дневном счётчике.
// Вызывается когда сделка не состоялась (отказ площадки до отправки,
// план устарел). Повторный вызов безопасен.
func (r *Reservation) Release() {
	r.done.Do(func() {
		g := r.gov
		g.mu.Lock()
		defer g.mu.Unlock()

		g.reserved -= r.notional
		delete(g.inFlight, r.route)
		NotionalReserved.Set(g.reserved)
	})
}

// Settle завершает резервацию итогом сделки: в дневной счётчик
// попадает фактически исполненный нотионал, обновляется серия
// убытков. Достижение лимита серии ставит торговлю на паузу.
func (r *Reservation) Settle(outcome *models.TradeOutcome) {
	r.done.Do(func() {
		g := r.gov
		g.mu.Lock()
		defer g.mu.Unlock()

		g.reserved -= r.notional
		delete(g.inFlight, r.route)

		executed := outcome.ExecutedNotional()
		g.dailyNotional += executed

		if outcome.RealizedPnl < 0 {
			g.consecutiveLosses++
		} else if outcome.RealizedPnl > 0 {
			g.consecutiveLosses = 0
		}

		NotionalReserved.Set(g.reserved)
		DailyNotionalUsed.Set(g.dailyNotional)
		ConsecutiveLosses.Set(float64(g.consecutiveLosses))

		if g.consecutiveLosses >= g.cfg.MaxConsecutiveLosses && !g.paused {
			g.pauseLocked("consecutive loss limit reached")
		}
	})
}

// Pause останавливает выдачу новых резерваций.
// Активные сделки довыполняются: пауза не отменяет резервации.
func (g *Governor) Pause(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pauseLocked(reason)
}

func (g *Governor) pauseLocked(reason string) {
	if g.paused {
		return
	}
	g.paused = true
	g.pauseReason = reason
	TradingPaused.Set(1)
	g.logger.Warn("trading paused", zap.String("reason", reason))
}

// Resume снимает паузу и сбрасывает серию убытков.
// Вызывается только оператором через API.
func (g *Governor) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	g.pauseReason = ""
	g.consecutiveLosses = 0
	TradingPaused.Set(0)
	ConsecutiveLosses.Set(0)
	g.logger.Info("trading resumed by operator")
}

// IsPaused возвращает текущий флаг паузы
func (g *Governor) IsPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

// Snapshot возвращает консистентный снимок состояния для API и журнала
func (g *Governor) Snapshot() models.RiskState {
	g.mu.Lock()
	defer g.mu.Unlock()

	routes := make([]string, 0, len(g.inFlight))
	for route := range g.inFlight {
		routes = append(routes, route)
	}
	sort.Strings(routes)

	return models.RiskState{
		DailyNotional:     g.dailyNotional,
		Reserved:          g.reserved,
		ConsecutiveLosses: g.consecutiveLosses,
		Paused:            g.paused,
		PauseReason:       g.pauseReason,
		SessionStart:      g.sessionStart,
		SessionEnd:        g.sessionEnd,
		InFlightRoutes:    routes,
		CapturedAt:        time.Now(),
	}
}
