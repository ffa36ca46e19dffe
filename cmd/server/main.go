package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"spotperp/internal/api"
	"spotperp/internal/bot"
	"spotperp/internal/config"
	"spotperp/internal/journal"
	"spotperp/internal/marketdata"
	"spotperp/internal/models"
	"spotperp/internal/venue"
	"spotperp/internal/websocket"
	"spotperp/pkg/utils"
)

func main() {
	// .env опционален: в контейнере конфигурация приходит из окружения
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	routes, err := config.LoadRoutes(cfg.RoutesFile)
	if err != nil {
		logger.Fatal("failed to load routes", zap.String("file", cfg.RoutesFile), zap.Error(err))
	}
	logger.Info("routes loaded", zap.Int("count", len(routes)))

	// База данных журнала сделок
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	jrnl := journal.New(db, logger)
	defer jrnl.Close()

	schemaCtx, cancelSchema := context.WithTimeout(context.Background(), 10*time.Second)
	if err := jrnl.EnsureSchema(schemaCtx); err != nil {
		cancelSchema()
		logger.Fatal("failed to ensure journal schema", zap.Error(err))
	}
	cancelSchema()

	// Бумажные площадки: по одной на каждое имя, встречающееся в маршрутах
	venues := buildVenues(routes)
	defer func() {
		for _, v := range venues {
			v.Close()
		}
	}()

	// WebSocket hub для операторского frontend
	hub := websocket.NewHub(logger)
	go hub.Run()

	engine, err := bot.NewEngine(cfg, routes, venues, jrnl, hub, logger)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	router := api.SetupRoutes(&api.Dependencies{
		Engine: engine,
		Hub:    hub,
		Logger: logger,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})

	// По одному фиду котировок на площадку
	for name := range venues {
		url := feedURL(name)
		if url == "" {
			logger.Warn("no feed url configured, venue will rely on pushed snapshots",
				zap.String("venue", name))
			continue
		}
		feed := marketdata.NewFeed(url, name, func(snapshot *models.BookSnapshot) {
			engine.UpdateBook(snapshot)
		}, logger)
		g.Go(func() error {
			return feed.Run(gctx)
		})
	}

	g.Go(func() error {
		logger.Info("starting http server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	// Остановка HTTP сервера по отмене контекста
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("exited with error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("server exited")
}

// buildVenues создает бумажную площадку для каждого уникального имени
// из маршрутов. Параметры симуляции берутся из окружения.
func buildVenues(routes []models.RouteConfig) map[string]venue.Venue {
	venues := make(map[string]venue.Venue)
	for _, route := range routes {
		for _, name := range []string{route.SpotVenue, route.PerpVenue} {
			if _, ok := venues[name]; ok {
				continue
			}
			venues[name] = venue.NewPaperVenue(venue.PaperConfig{
				Name:              name,
				TakerFeeBps:       envFloat("PAPER_TAKER_FEE_BPS", 5),
				Latency:           time.Duration(envInt("PAPER_LATENCY_MS", 20)) * time.Millisecond,
				FillRatio:         envFloat("PAPER_FILL_RATIO", 1.0),
				BalanceUSD:        envFloat("PAPER_BALANCE_USD", 100000),
				RequestsPerSecond: envFloat("PAPER_RPS", 20),
				Burst:             envInt("PAPER_BURST", 4),
			})
		}
	}
	return venues
}

// feedURL возвращает адрес фида котировок площадки,
// например FEED_URL_BINANCE для площадки "binance"
func feedURL(venueName string) string {
	key := "FEED_URL_" + strings.ToUpper(strings.ReplaceAll(venueName, "-", "_"))
	return os.Getenv(key)
}

func envFloat(key string, defaultValue float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func envInt(key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return value
}

// initDatabase создает подключение к базе данных журнала
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
