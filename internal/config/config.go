package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Logging   LoggingConfig
	Detector  DetectorConfig
	Execution ExecutionConfig
	Risk      RiskConfig

	// RoutesFile - путь к YAML файлу с описанием маршрутов
	RoutesFile string
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig - настройки подключения к БД журнала
type DatabaseConfig struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// DetectorConfig - параметры детектора возможностей
type DetectorConfig struct {
	// MinEdgeBps - минимальный чистый эдж для входа
	MinEdgeBps float64

	// MaxSpreadBps - максимальный спред стакана; шире - данные подозрительны
	MaxSpreadBps float64

	// MinBookAge - требование свежести: снимки старше отклоняются
	MinBookAge time.Duration

	// DepthLevels - глубина обхода стакана при поиске размера (L1..L10)
	DepthLevels int

	// MaxHoldMinutes - ожидаемое время удержания позиции
	MaxHoldMinutes int

	// FundingCostBpsPer8h - ставка funding перпа, bps за 8 часов
	FundingCostBpsPer8h float64
}

// ExecutionConfig - параметры планировщика и координатора
type ExecutionConfig struct {
	// GuardBps - ценовая подушка IOC лимитки против движения стакана
	GuardBps float64

	// MaxLegLatency - общий дедлайн обеих ног от отправки до ответа
	MaxLegLatency time.Duration

	// PerOrderCapUSD - потолок нотионала одной сделки
	PerOrderCapUSD float64

	// PlanStaleAfter - сколько возможность живёт между детекцией и планированием
	PlanStaleAfter time.Duration

	// PartialFillTolerance - допустимая доля расхождения частичных ног (0.02 = 2%)
	PartialFillTolerance float64

	// UnwindAttempts - ограниченное число попыток выравнивания
	UnwindAttempts int

	// UnwindTimeout - вторичный (более короткий) бюджет времени на unwind
	UnwindTimeout time.Duration

	// BalanceCacheTTL - время жизни кэша балансов площадок
	BalanceCacheTTL time.Duration
}

// RiskConfig - параметры риск-гавернора
type RiskConfig struct {
	// MaxDailyNotional - дневной потолок суммарного нотионала
	MaxDailyNotional float64

	// MaxConsecutiveLosses - серия убыточных сделок, после которой пауза
	MaxConsecutiveLosses int

	// SessionDuration - длительность торговой сессии
	SessionDuration time.Duration
}

// Load загружает конфигурацию из переменных окружения
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "spotperp"),
			User:     getEnv("DB_USER", "spotperp"),
			Password: getEnv("DB_PASSWORD", ""),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Detector: DetectorConfig{
			MinEdgeBps:          getEnvAsFloat("MIN_EDGE_BPS", 30),
			MaxSpreadBps:        getEnvAsFloat("MAX_SPREAD_BPS", 25),
			MinBookAge:          time.Duration(getEnvAsInt("MIN_BOOK_BBO_AGE_MS", 500)) * time.Millisecond,
			DepthLevels:         getEnvAsInt("DEPTH_LEVELS", 10),
			MaxHoldMinutes:      getEnvAsInt("MAX_HOLD_MINUTES", 30),
			FundingCostBpsPer8h: getEnvAsFloat("FUNDING_COST_BPS_PER_8H", 1.0),
		},
		Execution: ExecutionConfig{
			GuardBps:             getEnvAsFloat("GUARD_BPS", 5),
			MaxLegLatency:        time.Duration(getEnvAsInt("MAX_LEG_LATENCY_MS", 1500)) * time.Millisecond,
			PerOrderCapUSD:       getEnvAsFloat("PER_ORDER_CAP_USD", 5000),
			PlanStaleAfter:       getEnvAsDuration("PLAN_STALE_AFTER", 250*time.Millisecond),
			PartialFillTolerance: getEnvAsFloat("PARTIAL_FILL_TOLERANCE", 0.02),
			UnwindAttempts:       getEnvAsInt("UNWIND_ATTEMPTS", 3),
			UnwindTimeout:        getEnvAsDuration("UNWIND_TIMEOUT", 3*time.Second),
			BalanceCacheTTL:      getEnvAsDuration("BALANCE_CACHE_TTL", 5*time.Second),
		},
		Risk: RiskConfig{
			MaxDailyNotional:     getEnvAsFloat("MAX_DAILY_NOTIONAL", 50000),
			MaxConsecutiveLosses: getEnvAsInt("MAX_CONSECUTIVE_LOSSES", 3),
			SessionDuration:      getEnvAsDuration("SESSION_DURATION", 8*time.Hour),
		},
		RoutesFile: getEnv("ROUTES_FILE", "routes.yaml"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate проверяет числовые диапазоны параметров
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Detector.MinEdgeBps <= 0 {
		return fmt.Errorf("MIN_EDGE_BPS must be positive, got %v", c.Detector.MinEdgeBps)
	}
	if c.Detector.MaxSpreadBps <= 0 {
		return fmt.Errorf("MAX_SPREAD_BPS must be positive, got %v", c.Detector.MaxSpreadBps)
	}
	if c.Detector.MinBookAge <= 0 {
		return fmt.Errorf("MIN_BOOK_BBO_AGE_MS must be positive, got %v", c.Detector.MinBookAge)
	}
	if c.Detector.DepthLevels < 1 {
		return fmt.Errorf("DEPTH_LEVELS must be at least 1, got %d", c.Detector.DepthLevels)
	}
	if c.Detector.MaxHoldMinutes <= 0 {
		return fmt.Errorf("MAX_HOLD_MINUTES must be positive, got %d", c.Detector.MaxHoldMinutes)
	}

	if c.Execution.GuardBps < 0 {
		return fmt.Errorf("GUARD_BPS cannot be negative, got %v", c.Execution.GuardBps)
	}
	if c.Execution.MaxLegLatency <= 0 {
		return fmt.Errorf("MAX_LEG_LATENCY_MS must be positive, got %v", c.Execution.MaxLegLatency)
	}
	if c.Execution.PerOrderCapUSD <= 0 {
		return fmt.Errorf("PER_ORDER_CAP_USD must be positive, got %v", c.Execution.PerOrderCapUSD)
	}
	if c.Execution.PartialFillTolerance < 0 || c.Execution.PartialFillTolerance > 1 {
		return fmt.Errorf("PARTIAL_FILL_TOLERANCE must be within [0,1], got %v", c.Execution.PartialFillTolerance)
	}
	if c.Execution.UnwindAttempts < 1 {
		return fmt.Errorf("UNWIND_ATTEMPTS must be at least 1, got %d", c.Execution.UnwindAttempts)
	}
	if c.Execution.UnwindAttempts > 10 {
		return fmt.Errorf("UNWIND_ATTEMPTS should not exceed 10, got %d", c.Execution.UnwindAttempts)
	}
	if c.Execution.UnwindTimeout <= 0 {
		return fmt.Errorf("UNWIND_TIMEOUT must be positive, got %v", c.Execution.UnwindTimeout)
	}

	if c.Risk.MaxDailyNotional <= 0 {
		return fmt.Errorf("MAX_DAILY_NOTIONAL must be positive, got %v", c.Risk.MaxDailyNotional)
	}
	if c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("MAX_CONSECUTIVE_LOSSES must be at least 1, got %d", c.Risk.MaxConsecutiveLosses)
	}
	if c.Risk.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive, got %v", c.Risk.SessionDuration)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
