package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spotperp/internal/config"
	"spotperp/internal/models"
	"spotperp/internal/venue"
)

// tickInterval - период цикла детекции на маршрут
const tickInterval = 100 * time.Millisecond

// riskSnapshotInterval - период записи состояния гавернора в журнал
const riskSnapshotInterval = 30 * time.Second

// recentOutcomesCap - размер кольцевого буфера последних сделок
const recentOutcomesCap = 64

// JournalSink - приёмник записей журнала.
// Реализация обязана не блокировать вызывающего.
type JournalSink interface {
	RecordOutcome(outcome *models.TradeOutcome)
	RecordRiskState(state models.RiskState)
}

// Broadcaster рассылает события подписчикам (WebSocket hub)
type Broadcaster interface {
	Broadcast(messageType string, payload interface{})
}

// BookSetter - площадки, исполняющие ордера против локального стакана
type BookSetter interface {
	SetBook(snapshot *models.BookSnapshot)
}

// Engine связывает пайплайн: стаканы → детектор → планировщик →
// координатор, с единым риск-гавернором поверх всех маршрутов.
//
// Каждый маршрут крутится в собственной goroutine; общий бюджет
// риска сериализуется внутри гавернора, поэтому маршруты не
// координируются между собой напрямую.
type Engine struct {
	cfg         *config.Config
	routes      []models.RouteConfig
	books       *Books
	detector    *Detector
	planner     *Planner
	coordinator *Coordinator
	governor    *Governor
	venues      map[string]venue.Venue
	journal     JournalSink
	broadcaster Broadcaster
	logger      *zap.Logger

	notifyCh chan *models.Notification

	mu          sync.RWMutex
	routeStats  map[string]*models.RouteRuntime
	routePaused map[string]bool
	recent      []*models.TradeOutcome
	lastPaused  bool

	balanceMu    sync.Mutex
	balanceCache map[string]balanceEntry
}

type balanceEntry struct {
	value     float64
	fetchedAt time.Time
}

// NewEngine собирает движок. Маршруты должны быть уже валидированы
// при загрузке; неизвестная площадка в маршруте - ошибка конструирования.
func NewEngine(
	cfg *config.Config,
	routes []models.RouteConfig,
	venues map[string]venue.Venue,
	journal JournalSink,
	broadcaster Broadcaster,
	logger *zap.Logger,
) (*Engine, error) {
	for _, route := range routes {
		if err := route.Validate(); err != nil {
			return nil, err
		}
		if _, ok := venues[route.SpotVenue]; !ok {
			return nil, fmt.Errorf("route %s: unknown spot venue %s", route.Name, route.SpotVenue)
		}
		if _, ok := venues[route.PerpVenue]; !ok {
			return nil, fmt.Errorf("route %s: unknown perp venue %s", route.Name, route.PerpVenue)
		}
	}

	books := NewBooks(len(routes)*2, cfg.Detector.MinBookAge)
	governor := NewGovernor(cfg.Risk, logger)

	e := &Engine{
		cfg:          cfg,
		routes:       routes,
		books:        books,
		detector:     NewDetector(cfg.Detector, books, logger),
		planner:      NewPlanner(cfg.Execution, governor, logger),
		governor:     governor,
		venues:       venues,
		journal:      journal,
		broadcaster:  broadcaster,
		logger:       logger.Named("engine"),
		notifyCh:     make(chan *models.Notification, 256),
		routeStats:   make(map[string]*models.RouteRuntime, len(routes)),
		routePaused:  make(map[string]bool, len(routes)),
		balanceCache: make(map[string]balanceEntry),
	}
	e.coordinator = NewCoordinator(cfg.Execution, venues, logger, e.enqueueNotification)

	for _, route := range routes {
		e.routeStats[route.Name] = &models.RouteRuntime{
			Name:   route.Name,
			Symbol: route.Symbol,
		}
	}

	return e, nil
}

// Run запускает циклы маршрутов и обслуживающие goroutines.
// Блокируется до отмены контекста.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		zap.Int("routes", len(e.routes)),
		zap.Duration("session", e.cfg.Risk.SessionDuration),
	)

	g, ctx := errgroup.WithContext(ctx)

	for _, route := range e.routes {
		route := route
		g.Go(func() error {
			e.runRoute(ctx, route)
			return nil
		})
	}

	g.Go(func() error {
		e.dispatchNotifications(ctx)
		return nil
	})

	g.Go(func() error {
		e.journalRiskSnapshots(ctx)
		return nil
	})

	err := g.Wait()
	e.logger.Info("engine stopped")
	return err
}

// UpdateBook принимает снимок стакана от фида: валидирует, кладёт
// в хранилище и отдаёт бумажной площадке для исполнения ордеров.
func (e *Engine) UpdateBook(snapshot *models.BookSnapshot) {
	if err := e.books.Update(snapshot); err != nil {
		e.logger.Warn("book update rejected", zap.Error(err))
		return
	}
	if v, ok := e.venues[snapshot.Venue]; ok {
		if setter, ok := v.(BookSetter); ok {
			cp := snapshot.Clone()
			setter.SetBook(&cp)
		}
	}
}

// runRoute - цикл жизни одного маршрута: детекция → план → исполнение
func (e *Engine) runRoute(ctx context.Context, route models.RouteConfig) {
	log := e.logger.With(zap.String("route", route.Name))
	log.Info("route loop started")

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("route loop stopped")
			return
		case <-ticker.C:
			e.tickRoute(ctx, route, log)
		}
	}
}

// tickRoute выполняет один проход пайплайна по маршруту.
// Отсутствие возможности и устаревшие стаканы - тишина: это
// нормальное состояние рынка большую часть времени.
func (e *Engine) tickRoute(ctx context.Context, route models.RouteConfig, log *zap.Logger) {
	if e.RoutePaused(route.Name) || e.governor.IsPaused() {
		return
	}

	opp, err := e.detector.Detect(route)
	if err != nil {
		var stale *StaleBookError
		if errors.Is(err, ErrNoOpportunity) || errors.As(err, &stale) {
			return
		}
		log.Warn("detection failed", zap.Error(err))
		return
	}

	inputs, err := e.planInputs(ctx, opp)
	if err != nil {
		log.Warn("failed to collect plan inputs", zap.Error(err))
		return
	}

	plan, reservation, err := e.planner.Plan(opp, inputs)
	if err != nil {
		// отказы планировщика детерминированы и ожидаемы
		log.Debug("plan rejected", zap.Error(err))
		return
	}

	outcome, err := e.coordinator.Execute(ctx, plan, reservation)
	if outcome != nil {
		e.recordOutcome(route, outcome)
	}

	var unwindErr *UnwindFailedError
	if errors.As(err, &unwindErr) {
		e.escalateUnwindFailure(route, unwindErr)
	} else if err != nil {
		log.Error("execution failed", zap.Error(err))
	}
}

// planInputs собирает ограничения и балансы площадок для планирования.
// Балансы кэшируются: их точность до цента не нужна, а поход на
// площадку на каждом тике - лишняя латентность.
func (e *Engine) planInputs(ctx context.Context, opp *models.Opportunity) (PlanInputs, error) {
	buyVenue, ok := e.venues[opp.BuyVenue]
	if !ok {
		return PlanInputs{}, fmt.Errorf("unknown venue %s", opp.BuyVenue)
	}
	sellVenue, ok := e.venues[opp.SellVenue]
	if !ok {
		return PlanInputs{}, fmt.Errorf("unknown venue %s", opp.SellVenue)
	}

	buyBalance, err := e.cachedBalance(ctx, buyVenue)
	if err != nil {
		return PlanInputs{}, err
	}
	sellBalance, err := e.cachedBalance(ctx, sellVenue)
	if err != nil {
		return PlanInputs{}, err
	}

	return PlanInputs{
		BuyLimits:   buyVenue.Limits(opp.Symbol),
		SellLimits:  sellVenue.Limits(opp.Symbol),
		BuyBalance:  buyBalance,
		SellBalance: sellBalance,
	}, nil
}

// cachedBalance возвращает баланс площадки с TTL-кэшем
func (e *Engine) cachedBalance(ctx context.Context, v venue.Venue) (float64, error) {
	e.balanceMu.Lock()
	entry, ok := e.balanceCache[v.Name()]
	e.balanceMu.Unlock()

	if ok && time.Since(entry.fetchedAt) < e.cfg.Execution.BalanceCacheTTL {
		return entry.value, nil
	}

	balance, err := v.Balance(ctx)
	if err != nil {
		return 0, err
	}

	e.balanceMu.Lock()
	e.balanceCache[v.Name()] = balanceEntry{value: balance, fetchedAt: time.Now()}
	e.balanceMu.Unlock()

	return balance, nil
}

// recordOutcome обновляет статистику маршрута, кольцевой буфер,
// журнал и рассылку
func (e *Engine) recordOutcome(route models.RouteConfig, outcome *models.TradeOutcome) {
	e.mu.Lock()
	stats := e.routeStats[route.Name]
	stats.Trades++
	stats.RealizedPnl += outcome.RealizedPnl
	stats.LastOutcome = outcome

	e.recent = append(e.recent, outcome)
	if len(e.recent) > recentOutcomesCap {
		e.recent = e.recent[1:]
	}
	e.mu.Unlock()

	if e.journal != nil {
		e.journal.RecordOutcome(outcome)
	}
	if e.broadcaster != nil {
		e.broadcaster.Broadcast("trade_outcome", outcome)
	}

	// Автопауза гавернора по серии убытков становится видимой здесь.
	// Флаг обновляется на каждом исходе, иначе после Resume повторная
	// пауза осталась бы без уведомления.
	paused := e.governor.IsPaused()
	if e.swapLastPaused(paused) != paused && paused {
		e.enqueueNotification(models.Notification{
			Timestamp: time.Now(),
			Type:      models.NotificationTypeRiskPause,
			Severity:  models.SeverityError,
			Route:     route.Name,
			Message:   "governor paused trading",
		})
	}
}

// swapLastPaused атомарно подменяет предыдущий флаг паузы
func (e *Engine) swapLastPaused(current bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.lastPaused
	e.lastPaused = current
	return prev
}

// escalateUnwindFailure - неустранимый дисбаланс: маршрут и гавернор
// на паузу, оператору уходит эскалация. Автоматических повторов нет.
func (e *Engine) escalateUnwindFailure(route models.RouteConfig, unwindErr *UnwindFailedError) {
	e.PauseRoute(route.Name)
	e.governor.Pause(fmt.Sprintf("unwind failed on route %s", route.Name))

	e.logger.Error("unwind failed, operator attention required",
		zap.String("route", route.Name),
		zap.String("correlation_id", unwindErr.CorrelationID),
		zap.Float64("remaining", unwindErr.Remaining),
		zap.String("venue", unwindErr.Venue),
	)

	e.enqueueNotification(models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeUnwindFailed,
		Severity:  models.SeverityError,
		Route:     route.Name,
		Message:   unwindErr.Error(),
		Meta: map[string]interface{}{
			"correlation_id": unwindErr.CorrelationID,
			"remaining":      unwindErr.Remaining,
			"venue":          unwindErr.Venue,
		},
	})
}

// enqueueNotification кладёт уведомление в буфер диспетчера
func (e *Engine) enqueueNotification(notif models.Notification) {
	n := notif
	tryEnqueueNotification(e.notifyCh, &n)
}

// dispatchNotifications - единственный потребитель канала уведомлений:
// лог + рассылка в hub
func (e *Engine) dispatchNotifications(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif := <-e.notifyCh:
			switch notif.Severity {
			case models.SeverityError:
				e.logger.Error("notification", zap.String("type", notif.Type), zap.String("message", notif.Message))
			case models.SeverityWarn:
				e.logger.Warn("notification", zap.String("type", notif.Type), zap.String("message", notif.Message))
			default:
				e.logger.Info("notification", zap.String("type", notif.Type), zap.String("message", notif.Message))
			}
			if e.broadcaster != nil {
				e.broadcaster.Broadcast("notification", notif)
			}
		}
	}
}

// journalRiskSnapshots периодически пишет состояние гавернора в журнал
func (e *Engine) journalRiskSnapshots(ctx context.Context) {
	ticker := time.NewTicker(riskSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.journal != nil {
				e.journal.RecordRiskState(e.governor.Snapshot())
			}
		}
	}
}

// ============ Операторские методы (API) ============

// Governor возвращает риск-гавернор
func (e *Engine) Governor() *Governor {
	return e.governor
}

// PauseRoute останавливает входы на маршруте
func (e *Engine) PauseRoute(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routePaused[name] = true
	if stats, ok := e.routeStats[name]; ok {
		stats.Paused = true
	}
}

// ResumeRoute возобновляет входы на маршруте
func (e *Engine) ResumeRoute(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.routePaused, name)
	if stats, ok := e.routeStats[name]; ok {
		stats.Paused = false
	}
}

// RoutePaused возвращает флаг паузы маршрута
func (e *Engine) RoutePaused(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.routePaused[name]
}

// RouteStatuses возвращает наблюдаемое состояние всех маршрутов
func (e *Engine) RouteStatuses() []models.RouteRuntime {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.RouteRuntime, 0, len(e.routes))
	for _, route := range e.routes {
		if stats, ok := e.routeStats[route.Name]; ok {
			out = append(out, *stats)
		}
	}
	return out
}

// RecentOutcomes возвращает копию кольцевого буфера последних сделок,
// от новых к старым
func (e *Engine) RecentOutcomes() []*models.TradeOutcome {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*models.TradeOutcome, 0, len(e.recent))
	for i := len(e.recent) - 1; i >= 0; i-- {
		out = append(out, e.recent[i])
	}
	return out
}
