package bot

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"spotperp/internal/config"
	"spotperp/internal/models"
	"spotperp/internal/venue"
)

// fakeVenue - скриптованная площадка: отдаёт заранее заданные
// результаты в порядке вызовов SubmitOrder
type fakeVenue struct {
	name  string
	delay time.Duration

	mu      sync.Mutex
	script  []scripted
	submits []models.LegOrder
	cancels chan string
}

type scripted struct {
	status models.FillStatus
	qty    float64
	price  float64
	fee    float64
	err    error
}

func newFakeVenue(name string) *fakeVenue {
	return &fakeVenue{name: name, cancels: make(chan string, 4)}
}

func (f *fakeVenue) push(s scripted) *fakeVenue {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, s)
	return f
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) SubmitOrder(ctx context.Context, order models.LegOrder) (models.LegOutcome, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return models.LegOutcome{}, ctx.Err()
		case <-time.After(f.delay):
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits = append(f.submits, order)

	if len(f.script) == 0 {
		return models.LegOutcome{Order: order, Status: models.FillStatusUnfilled, CompletedAt: time.Now()}, nil
	}
	s := f.script[0]
	f.script = f.script[1:]
	if s.err != nil {
		return models.LegOutcome{}, s.err
	}
	return models.LegOutcome{
		Order:        order,
		Status:       s.status,
		FilledQty:    s.qty,
		AvgFillPrice: s.price,
		Fee:          s.fee,
		CompletedAt:  time.Now(),
	}, nil
}

func (f *fakeVenue) CancelAll(ctx context.Context, symbol string) error {
	select {
	case f.cancels <- symbol:
	default:
	}
	return nil
}

func (f *fakeVenue) Balance(ctx context.Context) (float64, error) { return 1e6, nil }

func (f *fakeVenue) Limits(symbol string) venue.Limits {
	return venue.Limits{SizeStep: 0.0001, MinQty: 0.0001, MinNotional: 1}
}

func (f *fakeVenue) Close() error { return nil }

func (f *fakeVenue) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submits)
}

// ============ Фикстуры ============

func testPlan(latency time.Duration) *models.ExecutionPlan {
	now := time.Now()
	return &models.ExecutionPlan{
		CorrelationID: "test-trade-1",
		Route:         "eth-spot-perp",
		Direction:     models.DirectionLongSpotShortPerp,
		BuyLeg: models.LegOrder{
			Venue:      "spotx",
			Symbol:     "ETH-USD",
			Side:       models.SideBuy,
			Type:       models.OrderTypeIOC,
			LimitPrice: 2001.0,
			Quantity:   1,
		},
		SellLeg: models.LegOrder{
			Venue:      "perpx",
			Symbol:     "ETH-USD",
			Side:       models.SideSell,
			Type:       models.OrderTypeIOC,
			LimitPrice: 2005.5,
			Quantity:   1,
		},
		Notional:  2003.25,
		CreatedAt: now,
		ExpiresAt: now.Add(latency),
	}
}

type coordFixture struct {
	coordinator *Coordinator
	governor    *Governor
	spot        *fakeVenue
	perp        *fakeVenue
	notifs      []models.Notification
	notifMu     sync.Mutex
}

func newCoordFixture(t *testing.T, execCfg config.ExecutionConfig) *coordFixture {
	t.Helper()
	fx := &coordFixture{
		governor: NewGovernor(testRiskConfig(), zap.NewNop()),
		spot:     newFakeVenue("spotx"),
		perp:     newFakeVenue("perpx"),
	}
	venues := map[string]venue.Venue{"spotx": fx.spot, "perpx": fx.perp}
	fx.coordinator = NewCoordinator(execCfg, venues, zap.NewNop(), func(n models.Notification) {
		fx.notifMu.Lock()
		fx.notifs = append(fx.notifs, n)
		fx.notifMu.Unlock()
	})
	return fx
}

func (fx *coordFixture) reserve(t *testing.T, notional float64) *Reservation {
	t.Helper()
	res, err := fx.governor.Reserve("eth-spot-perp", notional)
	if err != nil {
		t.Fatalf("Reserve() error: %v", err)
	}
	return res
}

func (fx *coordFixture) notifications() []models.Notification {
	fx.notifMu.Lock()
	defer fx.notifMu.Unlock()
	out := make([]models.Notification, len(fx.notifs))
	copy(out, fx.notifs)
	return out
}

// ============ Тесты ============

func TestExecuteBothLegsFilled(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	fx.spot.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2000.50, fee: 1.0})
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2006.00, fee: 1.0})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outcome.Imbalanced {
		t.Error("outcome must not be imbalanced")
	}
	if len(outcome.Unwinds) != 0 {
		t.Errorf("unwinds = %d, want 0", len(outcome.Unwinds))
	}

	// кэш-флоу: 2006.00 - 2000.50 - комиссии 2.0 = 3.50
	if math.Abs(outcome.RealizedPnl-3.50) > 1e-9 {
		t.Errorf("pnl = %v, want 3.50", outcome.RealizedPnl)
	}

	// резервация рассчитана: нотионал учтён в дневном счётчике
	snap := fx.governor.Snapshot()
	if snap.Reserved != 0 {
		t.Errorf("reserved = %v, want 0 after settle", snap.Reserved)
	}
	if snap.DailyNotional <= 0 {
		t.Errorf("daily notional = %v, executed trade must be counted", snap.DailyNotional)
	}
}

func TestExecuteOneLegUnfilledTriggersUnwind(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	// покупка исполнилась, продажа - нет; затем unwind-продажа излишка
	fx.spot.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2000.00, fee: 1.0})
	fx.spot.push(scripted{status: models.FillStatusFilled, qty: 1, price: 1995.00, fee: 1.0})
	fx.perp.push(scripted{status: models.FillStatusUnfilled})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(outcome.Unwinds) != 1 {
		t.Fatalf("unwinds = %d, want 1", len(outcome.Unwinds))
	}
	u := outcome.Unwinds[0]
	if u.Venue != "spotx" || u.Side != models.SideSell {
		t.Errorf("unwind leg = %s/%s, want spotx/sell", u.Venue, u.Side)
	}
	if outcome.Imbalanced {
		t.Error("imbalance was resolved, flag must be false")
	}

	// купили за 2000 (+1 fee), продали unwind'ом за 1995 (-1 fee): -7.00
	if math.Abs(outcome.RealizedPnl-(-7.00)) > 1e-9 {
		t.Errorf("pnl = %v, want -7.00", outcome.RealizedPnl)
	}

	// unwind-ордер обязан быть рыночным
	if got := fx.spot.submits[1].Type; got != models.OrderTypeMarket {
		t.Errorf("unwind order type = %s, want market", got)
	}
}

func TestExecuteUnwindExhaustionPausesNothing(t *testing.T) {
	execCfg := testExecutionConfig()
	execCfg.UnwindAttempts = 2
	fx := newCoordFixture(t, execCfg)

	fx.spot.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2000.00, fee: 1.0})
	fx.perp.push(scripted{status: models.FillStatusUnfilled})
	// обе unwind-попытки не исполняются
	fx.spot.push(scripted{status: models.FillStatusUnfilled})
	fx.spot.push(scripted{status: models.FillStatusUnfilled})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)

	var unwindErr *UnwindFailedError
	if !errors.As(err, &unwindErr) {
		t.Fatalf("err = %v, want UnwindFailedError", err)
	}
	if unwindErr.Remaining != 1 {
		t.Errorf("remaining = %v, want 1", unwindErr.Remaining)
	}
	if !outcome.Imbalanced {
		t.Error("outcome must be flagged imbalanced")
	}
	if len(outcome.Unwinds) != 2 {
		t.Errorf("unwind attempts recorded = %d, want 2", len(outcome.Unwinds))
	}

	// даже при провале резервация обязана завершиться
	if snap := fx.governor.Snapshot(); snap.Reserved != 0 {
		t.Errorf("reserved = %v, want 0", snap.Reserved)
	}
}

func TestExecuteLegTimeoutIsPessimistic(t *testing.T) {
	execCfg := testExecutionConfig()
	execCfg.UnwindTimeout = 500 * time.Millisecond
	fx := newCoordFixture(t, execCfg)

	// продажа исполняется мгновенно, покупка висит дольше дедлайна
	fx.spot.delay = 400 * time.Millisecond
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2006.00, fee: 1.0})
	// unwind откупает проданное
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 1, price: 2007.00, fee: 1.0})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(50*time.Millisecond), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outcome.BuyOutcome.Status != models.FillStatusTimedOut {
		t.Errorf("buy status = %s, want timed_out", outcome.BuyOutcome.Status)
	}

	// исполненная нога выровнена
	if len(outcome.Unwinds) != 1 {
		t.Fatalf("unwinds = %d, want 1", len(outcome.Unwinds))
	}
	if outcome.Unwinds[0].Venue != "perpx" || outcome.Unwinds[0].Side != models.SideBuy {
		t.Errorf("unwind = %s/%s, want perpx/buy", outcome.Unwinds[0].Venue, outcome.Unwinds[0].Side)
	}

	// на площадку зависшей ноги должна уйти отмена
	select {
	case symbol := <-fx.spot.cancels:
		if symbol != "ETH-USD" {
			t.Errorf("cancel-all symbol = %s, want ETH-USD", symbol)
		}
	case <-time.After(time.Second):
		t.Error("cancel-all was not issued to the timed-out venue")
	}
}

// Результат, уже доставленный к моменту дедлайна, не должен
// затираться пессимистичной пометкой timed_out
func TestSettleAfterDeadlineKeepsDeliveredFill(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	plan := testPlan(time.Second)

	ch := make(chan legResult, 1)
	ch <- legResult{outcome: models.LegOutcome{
		Order:        plan.BuyLeg,
		Status:       models.FillStatusFilled,
		FilledQty:    1,
		AvgFillPrice: 2000.50,
		CompletedAt:  time.Now(),
	}}

	res := fx.coordinator.settleAfterDeadline(ch, plan.BuyLeg, fx.spot, zap.NewNop())
	if res.outcome.Status != models.FillStatusFilled {
		t.Errorf("status = %s, want filled: delivered result was discarded", res.outcome.Status)
	}
	if res.outcome.FilledQty != 1 {
		t.Errorf("filled qty = %v, want 1", res.outcome.FilledQty)
	}

	// отмена не нужна - площадка уже ответила
	select {
	case <-fx.spot.cancels:
		t.Error("cancel-all must not be issued for an answered leg")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSettleAfterDeadlineStampsSilentLeg(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	plan := testPlan(time.Second)

	ch := make(chan legResult, 1)
	res := fx.coordinator.settleAfterDeadline(ch, plan.BuyLeg, fx.spot, zap.NewNop())
	if res.outcome.Status != models.FillStatusTimedOut {
		t.Errorf("status = %s, want timed_out", res.outcome.Status)
	}

	select {
	case symbol := <-fx.spot.cancels:
		if symbol != plan.BuyLeg.Symbol {
			t.Errorf("cancel-all symbol = %s, want %s", symbol, plan.BuyLeg.Symbol)
		}
	case <-time.After(time.Second):
		t.Error("cancel-all was not issued to the silent venue")
	}
}

func TestExecuteBothLegsTimedOut(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	fx.spot.delay = 300 * time.Millisecond
	fx.perp.delay = 300 * time.Millisecond

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(50*time.Millisecond), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outcome.RealizedPnl != 0 {
		t.Errorf("pnl = %v, want 0 with no confirmed fills", outcome.RealizedPnl)
	}
	if len(outcome.Unwinds) != 0 {
		t.Errorf("unwinds = %d, want 0", len(outcome.Unwinds))
	}

	// оператору уходит предупреждение: обе ноги без ответа
	var found bool
	for _, n := range fx.notifications() {
		if n.Severity == models.SeverityWarn && n.Type == models.NotificationTypeError {
			found = true
		}
	}
	if !found {
		t.Error("expected a warning notification about both legs timing out")
	}
}

func TestExecuteBothLegsRejectedIsNoop(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	fx.spot.push(scripted{err: &venue.Error{Venue: "spotx", Op: "submit", Rejected: true, Err: errors.New("min size")}})
	fx.perp.push(scripted{err: &venue.Error{Venue: "perpx", Op: "submit", Rejected: true, Err: errors.New("min size")}})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if outcome.BuyOutcome.Status != models.FillStatusRejected {
		t.Errorf("buy status = %s, want rejected", outcome.BuyOutcome.Status)
	}
	if outcome.RealizedPnl != 0 || len(outcome.Unwinds) != 0 {
		t.Errorf("rejected trade must settle as noop: pnl=%v unwinds=%d",
			outcome.RealizedPnl, len(outcome.Unwinds))
	}
}

// Пропорциональное частичное исполнение в пределах допуска
// не считается дисбалансом
func TestExecutePartialWithinTolerance(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	fx.spot.push(scripted{status: models.FillStatusPartial, qty: 0.99, price: 2000.00, fee: 0.99})
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 1.0, price: 2006.00, fee: 1.0})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(outcome.Unwinds) != 0 {
		t.Errorf("unwinds = %d, want 0: imbalance 1.01%% is within 2%% tolerance", len(outcome.Unwinds))
	}
	if outcome.Imbalanced {
		t.Error("outcome must not be flagged imbalanced")
	}
}

func TestExecutePartialBeyondToleranceUnwinds(t *testing.T) {
	fx := newCoordFixture(t, testExecutionConfig())
	fx.spot.push(scripted{status: models.FillStatusPartial, qty: 0.4, price: 2000.00, fee: 0.4})
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 1.0, price: 2006.00, fee: 1.0})
	// откуп излишка продажи: 0.6
	fx.perp.push(scripted{status: models.FillStatusFilled, qty: 0.6, price: 2007.00, fee: 0.6})

	res := fx.reserve(t, 2003.25)
	outcome, err := fx.coordinator.Execute(context.Background(), testPlan(time.Second), res)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}

	if len(outcome.Unwinds) != 1 {
		t.Fatalf("unwinds = %d, want 1", len(outcome.Unwinds))
	}
	u := outcome.Unwinds[0]
	if u.Venue != "perpx" || u.Side != models.SideBuy {
		t.Errorf("unwind = %s/%s, want perpx/buy", u.Venue, u.Side)
	}
	if math.Abs(u.Quantity-0.6) > 1e-9 {
		t.Errorf("unwind quantity = %v, want 0.6", u.Quantity)
	}
}
