package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"spotperp/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writesDropped - записи, потерянные из-за переполнения буфера
var writesDropped = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "journal",
		Name:      "dropped_total",
		Help:      "Journal writes dropped due to a full buffer",
	},
	[]string{"kind"},
)

// writeTimeout - бюджет одной вставки
const writeTimeout = 5 * time.Second

// Journal - асинхронный журнал сделок и снимков риска в PostgreSQL.
//
// Горячий путь сделки не ждёт базу: записи уходят в буферизованный
// канал, пишет единственная фоновая goroutine. Переполненный буфер
// роняет запись с метрикой - журнал вспомогателен, торговля важнее.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger

	entries chan entry
	done    chan struct{}
}

type entry struct {
	outcome *models.TradeOutcome
	risk    *models.RiskState
}

// New создаёт журнал и запускает писателя
func New(db *sql.DB, logger *zap.Logger) *Journal {
	j := &Journal{
		db:      db,
		logger:  logger.Named("journal"),
		entries: make(chan entry, 512),
		done:    make(chan struct{}),
	}
	go j.writeLoop()
	return j
}

// EnsureSchema создаёт таблицы журнала, если их ещё нет
func (j *Journal) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS trade_outcomes (
	id             BIGSERIAL PRIMARY KEY,
	correlation_id TEXT NOT NULL,
	route          TEXT NOT NULL,
	direction      TEXT NOT NULL,
	buy_venue      TEXT NOT NULL,
	buy_qty        DOUBLE PRECISION NOT NULL,
	buy_price      DOUBLE PRECISION NOT NULL,
	sell_venue     TEXT NOT NULL,
	sell_qty       DOUBLE PRECISION NOT NULL,
	sell_price     DOUBLE PRECISION NOT NULL,
	fees           DOUBLE PRECISION NOT NULL,
	realized_pnl   DOUBLE PRECISION NOT NULL,
	imbalanced     BOOLEAN NOT NULL,
	unwinds        JSONB,
	settled_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trade_outcomes_route ON trade_outcomes(route);
CREATE INDEX IF NOT EXISTS idx_trade_outcomes_settled ON trade_outcomes(settled_at);

CREATE TABLE IF NOT EXISTS risk_states (
	id                 BIGSERIAL PRIMARY KEY,
	daily_notional     DOUBLE PRECISION NOT NULL,
	reserved           DOUBLE PRECISION NOT NULL,
	consecutive_losses INT NOT NULL,
	paused             BOOLEAN NOT NULL,
	pause_reason       TEXT,
	session_start      TIMESTAMPTZ NOT NULL,
	session_end        TIMESTAMPTZ NOT NULL,
	captured_at        TIMESTAMPTZ NOT NULL
);`

	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// RecordOutcome ставит итог сделки в очередь записи. Не блокируется.
func (j *Journal) RecordOutcome(outcome *models.TradeOutcome) {
	select {
	case j.entries <- entry{outcome: outcome}:
	default:
		writesDropped.WithLabelValues("trade_outcome").Inc()
	}
}

// RecordRiskState ставит снимок гавернора в очередь записи. Не блокируется.
func (j *Journal) RecordRiskState(state models.RiskState) {
	s := state
	select {
	case j.entries <- entry{risk: &s}:
	default:
		writesDropped.WithLabelValues("risk_state").Inc()
	}
}

// Close дописывает очередь и останавливает писателя
func (j *Journal) Close() {
	close(j.entries)
	<-j.done
}

// writeLoop - единственный писатель журнала
func (j *Journal) writeLoop() {
	defer close(j.done)

	for e := range j.entries {
		switch {
		case e.outcome != nil:
			if err := j.writeOutcome(e.outcome); err != nil {
				j.logger.Error("failed to journal trade outcome",
					zap.String("correlation_id", e.outcome.CorrelationID),
					zap.Error(err),
				)
			}
		case e.risk != nil:
			if err := j.writeRiskState(e.risk); err != nil {
				j.logger.Error("failed to journal risk state", zap.Error(err))
			}
		}
	}
}

func (j *Journal) writeOutcome(outcome *models.TradeOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	// Без unwind-ног колонка остаётся NULL, а не пустым bytea
	var unwinds interface{}
	if len(outcome.Unwinds) > 0 {
		raw, err := json.Marshal(outcome.Unwinds)
		if err != nil {
			return fmt.Errorf("marshal unwinds: %w", err)
		}
		unwinds = raw
	}

	fees := outcome.BuyOutcome.Fee + outcome.SellOutcome.Fee
	for _, u := range outcome.Unwinds {
		fees += u.Fee
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO trade_outcomes (
			correlation_id, route, direction,
			buy_venue, buy_qty, buy_price,
			sell_venue, sell_qty, sell_price,
			fees, realized_pnl, imbalanced, unwinds, settled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		outcome.CorrelationID,
		outcome.Route,
		string(outcome.Direction),
		outcome.BuyOutcome.Order.Venue,
		outcome.BuyOutcome.FilledQty,
		outcome.BuyOutcome.AvgFillPrice,
		outcome.SellOutcome.Order.Venue,
		outcome.SellOutcome.FilledQty,
		outcome.SellOutcome.AvgFillPrice,
		fees,
		outcome.RealizedPnl,
		outcome.Imbalanced,
		unwinds,
		outcome.SettledAt,
	)
	return err
}

func (j *Journal) writeRiskState(state *models.RiskState) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO risk_states (
			daily_notional, reserved, consecutive_losses,
			paused, pause_reason, session_start, session_end, captured_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		state.DailyNotional,
		state.Reserved,
		state.ConsecutiveLosses,
		state.Paused,
		state.PauseReason,
		state.SessionStart,
		state.SessionEnd,
		state.CapturedAt,
	)
	return err
}
