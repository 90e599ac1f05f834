package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// All environment variables are read here and nowhere else.
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data vendor
	MarketData MarketDataConfig

	// Notification transport
	Notify NotifyConfig

	// Pipeline thresholds and schedules
	Pipeline PipelineConfig

	// Backup housekeeping
	Backup BackupConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	URL      string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// MarketDataConfig holds the upstream vendor API configuration
type MarketDataConfig struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec int
	Timeout        time.Duration
}

// NotifyConfig holds alert delivery configuration.
// Telegram and email channels are independent; either may be left unset.
type NotifyConfig struct {
	TelegramToken  string
	TelegramChatID int64

	SMTPHost     string
	SMTPPort     int
	SMTPFrom     string
	SMTPTo       string
	SMTPPassword string
}

// SMTPRecipients splits the comma-separated SMTP_TO value
func (n NotifyConfig) SMTPRecipients() []string {
	parts := strings.Split(n.SMTPTo, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// PipelineConfig holds forecasting pipeline settings.
// The thresholds are documented operational defaults, not values derived
// from data; keep them tunable per environment.
type PipelineConfig struct {
	PrimaryInstrument string
	Instruments       []string

	HorizonDays    int
	HistoryDays    int
	EnsembleQuorum int

	FreshnessMaxDays      int
	MissingnessWindowDays int
	MissingnessMaxPct     float64
	AnomalyWindowDays     int
	AnomalyMaxMovePct     float64

	EvaluationWindowDays int
	MinSamples           int
	MAPEWarnPct          float64
	StalenessMaxDays     int

	MaxRetries        int
	RetryInitialDelay time.Duration
	RunTimeout        time.Duration

	CollectionSchedule string
	PipelineSchedule   string
	CollectionDaysBack int
}

// BackupConfig holds store snapshot settings.
// Retention is count-based: keep the newest Retain snapshots.
type BackupConfig struct {
	Dir      string
	Retain   int
	Schedule string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8090"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "cuprum"),
			User:            getEnv("DB_USER", "cuprum"),
			Password:        getEnv("DB_PASSWORD", ""),
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Market data vendor
		MarketData: MarketDataConfig{
			BaseURL:        getEnv("MARKETDATA_BASE_URL", "https://api.refinitiv.example.com"),
			APIKey:         getEnv("MARKETDATA_API_KEY", ""),
			RequestsPerSec: getEnvAsInt("MARKETDATA_RPS", 5),
			Timeout:        getEnvAsDuration("MARKETDATA_TIMEOUT", "30s"),
		},

		// Notification
		Notify: NotifyConfig{
			TelegramToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
			TelegramChatID: getEnvAsInt64("TELEGRAM_CHAT_ID", 0),
			SMTPHost:       getEnv("SMTP_HOST", ""),
			SMTPPort:       getEnvAsInt("SMTP_PORT", 587),
			SMTPFrom:       getEnv("SMTP_FROM", ""),
			SMTPTo:         getEnv("SMTP_TO", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		},

		// Pipeline
		Pipeline: PipelineConfig{
			PrimaryInstrument:     getEnv("PRIMARY_INSTRUMENT", "CMCU3"),
			Instruments:           getEnvAsList("INSTRUMENTS", "CMCU1,CMCU2,CMCU3"),
			HorizonDays:           getEnvAsInt("HORIZON_DAYS", 5),
			HistoryDays:           getEnvAsInt("HISTORY_DAYS", 100),
			EnsembleQuorum:        getEnvAsInt("ENSEMBLE_QUORUM", 2),
			FreshnessMaxDays:      getEnvAsInt("FRESHNESS_MAX_DAYS", 3),
			MissingnessWindowDays: getEnvAsInt("MISSINGNESS_WINDOW_DAYS", 30),
			MissingnessMaxPct:     getEnvAsFloat("MISSINGNESS_MAX_PCT", 10.0),
			AnomalyWindowDays:     getEnvAsInt("ANOMALY_WINDOW_DAYS", 7),
			AnomalyMaxMovePct:     getEnvAsFloat("ANOMALY_MAX_MOVE_PCT", 10.0),
			EvaluationWindowDays:  getEnvAsInt("EVALUATION_WINDOW_DAYS", 30),
			MinSamples:            getEnvAsInt("MIN_SAMPLES", 5),
			MAPEWarnPct:           getEnvAsFloat("MAPE_WARN_PCT", 5.0),
			StalenessMaxDays:      getEnvAsInt("STALENESS_MAX_DAYS", 2),
			MaxRetries:            getEnvAsInt("PIPELINE_MAX_RETRIES", 3),
			RetryInitialDelay:     getEnvAsDuration("PIPELINE_RETRY_DELAY", "1m"),
			RunTimeout:            getEnvAsDuration("PIPELINE_RUN_TIMEOUT", "1h"),
			CollectionSchedule:    getEnv("COLLECTION_SCHEDULE", "0 0 7 * * 1-5"),
			PipelineSchedule:      getEnv("PIPELINE_SCHEDULE", "0 0 8 * * 1-5"),
			CollectionDaysBack:    getEnvAsInt("COLLECTION_DAYS_BACK", 3),
		},

		// Backup
		Backup: BackupConfig{
			Dir:      getEnv("BACKUP_DIR", "backups"),
			Retain:   getEnvAsInt("BACKUP_RETAIN", 7),
			Schedule: getEnv("BACKUP_SCHEDULE", "0 0 2 * * *"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Pipeline.HorizonDays < 1 {
		return fmt.Errorf("HORIZON_DAYS must be at least 1")
	}

	if c.Pipeline.EnsembleQuorum < 1 {
		return fmt.Errorf("ENSEMBLE_QUORUM must be at least 1")
	}

	if c.Backup.Retain < 1 {
		return fmt.Errorf("BACKUP_RETAIN must be at least 1")
	}

	if !contains(c.Pipeline.Instruments, c.Pipeline.PrimaryInstrument) {
		return fmt.Errorf("PRIMARY_INSTRUMENT %q must be in INSTRUMENTS", c.Pipeline.PrimaryInstrument)
	}

	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

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

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
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

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key string, defaultValue string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
