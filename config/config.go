package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrConfiguration indicates malformed risk limits or thresholds.
var ErrConfiguration = errors.New("configuration error")

// Config is the top-level application configuration
type Config struct {
	LoggingConfig      LoggingConfig      `json:"logging"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	NotificationConfig NotificationConfig `json:"notification"`
	RiskConfig         RiskConfig         `json:"risk"`
	SizingConfig       SizingConfig       `json:"sizing"`
	ConfidenceConfig   ConfidenceConfig   `json:"confidence"`
	SchedulerConfig    SchedulerConfig    `json:"scheduler"`
	MarketDataConfig   MarketDataConfig   `json:"market_data"`
	PortfolioConfig    PortfolioConfig    `json:"portfolio"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis cache settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AdminUser           string        `json:"admin_user"`
	AdminPasswordHash   string        `json:"admin_password_hash"` // bcrypt
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// RiskConfig holds portfolio-level risk limits used by the veto gate
type RiskConfig struct {
	MaxConcurrentPositions int     `json:"max_concurrent_positions"` // Max open positions
	MaxSinglePositionPct   float64 `json:"max_single_position_pct"`  // Fraction of portfolio value
	MaxSectorExposurePct   float64 `json:"max_sector_exposure_pct"`  // Fraction of portfolio value
	MaxLeveragedExposure   float64 `json:"max_leveraged_exposure"`   // Aggregate leveraged notional multiple
	MinCashReservePct      float64 `json:"min_cash_reserve_pct"`     // Fraction of portfolio value
	CorrelationThreshold   float64 `json:"correlation_threshold"`    // Same-sector correlation advisory
}

// SizingConfig selects and parameterizes the position sizer
type SizingConfig struct {
	Method              string  `json:"method"`                // "fixed_fraction" or "half_kelly"
	RiskPerTradePct     float64 `json:"risk_per_trade_pct"`    // Fixed-fraction target risk
	ExtremeVolReduction float64 `json:"extreme_vol_reduction"` // Size cut when vol regime is EXTREME
	KellyFraction       float64 `json:"kelly_fraction"`        // 0.5 = half-Kelly
	MinTradesForKelly   int     `json:"min_trades_for_kelly"`  // Below this, Kelly sizing errors out
}

// ConfidenceConfig controls the factor scorer
type ConfidenceConfig struct {
	UseWeights       bool `json:"use_weights"`        // Weighted aggregation when weights are available
	MinFactorSamples int  `json:"min_factor_samples"` // Below this a factor falls back to weight 1.0
}

type SchedulerConfig struct {
	Enabled        bool   `json:"enabled"`
	PreMarketCron  string `json:"pre_market_cron"`
	PostMarketCron string `json:"post_market_cron"`
	RunOnStart     bool   `json:"run_on_start"`
}

type MarketDataConfig struct {
	ProxyURL     string `json:"proxy_url"`
	HistoryDays  int    `json:"history_days"`
	CacheTTLSecs int    `json:"cache_ttl_secs"`
}

// PortfolioConfig seeds the portfolio on first run
type PortfolioConfig struct {
	InitialValue float64 `json:"initial_value"`
}

// Load reads configuration from config.json (if present) and applies
// environment variable overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(configPath()); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.json"
}

func defaultConfig() *Config {
	return &Config{
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "reversion",
			Database: "reversion_bot",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			PoolSize: 10,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		AuthConfig: AuthConfig{
			AccessTokenDuration: 15 * time.Minute,
		},
		RiskConfig: RiskConfig{
			MaxConcurrentPositions: 4,
			MaxSinglePositionPct:   0.30,
			MaxSectorExposurePct:   0.50,
			MaxLeveragedExposure:   3.0,
			MinCashReservePct:      0.20,
			CorrelationThreshold:   0.80,
		},
		SizingConfig: SizingConfig{
			Method:              "fixed_fraction",
			RiskPerTradePct:     0.02,
			ExtremeVolReduction: 0.25,
			KellyFraction:       0.5,
			MinTradesForKelly:   10,
		},
		ConfidenceConfig: ConfidenceConfig{
			UseWeights:       true,
			MinFactorSamples: 5,
		},
		SchedulerConfig: SchedulerConfig{
			Enabled:        true,
			PreMarketCron:  "0 0 13 * * 1-5", // 13:00 UTC, before US open
			PostMarketCron: "0 30 21 * * 1-5",
			RunOnStart:     false,
		},
		MarketDataConfig: MarketDataConfig{
			HistoryDays:  365,
			CacheTTLSecs: 300,
		},
		PortfolioConfig: PortfolioConfig{
			InitialValue: 10000,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", cfg.LoggingConfig.Output)
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", cfg.LoggingConfig.JSONFormat)

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", cfg.DatabaseConfig.SSLMode)

	// Redis
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)

	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	// Auth
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUser = getEnvOrDefault("AUTH_ADMIN_USER", cfg.AuthConfig.AdminUser)
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)

	// Vault
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", cfg.VaultConfig.MountPath)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	// Notification
	cfg.NotificationConfig.Enabled = getEnvBoolOrDefault("NOTIFICATIONS_ENABLED", cfg.NotificationConfig.Enabled)
	cfg.NotificationConfig.Telegram.Enabled = getEnvBoolOrDefault("TELEGRAM_ENABLED", cfg.NotificationConfig.Telegram.Enabled)
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvBoolOrDefault("DISCORD_ENABLED", cfg.NotificationConfig.Discord.Enabled)
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	// Sizing
	cfg.SizingConfig.Method = getEnvOrDefault("SIZING_METHOD", cfg.SizingConfig.Method)
	cfg.SizingConfig.RiskPerTradePct = getEnvFloatOrDefault("SIZING_RISK_PER_TRADE_PCT", cfg.SizingConfig.RiskPerTradePct)

	// Scheduler
	cfg.SchedulerConfig.Enabled = getEnvBoolOrDefault("SCHEDULER_ENABLED", cfg.SchedulerConfig.Enabled)
	cfg.SchedulerConfig.RunOnStart = getEnvBoolOrDefault("SCHEDULER_RUN_ON_START", cfg.SchedulerConfig.RunOnStart)

	// Market data
	cfg.MarketDataConfig.ProxyURL = getEnvOrDefault("MARKET_DATA_PROXY_URL", cfg.MarketDataConfig.ProxyURL)
}

// Validate checks limits and thresholds for consistency.
func (c *Config) Validate() error {
	r := c.RiskConfig
	if r.MaxConcurrentPositions <= 0 {
		return fmt.Errorf("%w: max_concurrent_positions must be positive, got %d", ErrConfiguration, r.MaxConcurrentPositions)
	}
	if r.MaxSinglePositionPct <= 0 || r.MaxSinglePositionPct > 1 {
		return fmt.Errorf("%w: max_single_position_pct must be in (0,1], got %v", ErrConfiguration, r.MaxSinglePositionPct)
	}
	if r.MaxSectorExposurePct <= 0 || r.MaxSectorExposurePct > 1 {
		return fmt.Errorf("%w: max_sector_exposure_pct must be in (0,1], got %v", ErrConfiguration, r.MaxSectorExposurePct)
	}
	if r.MaxLeveragedExposure <= 0 {
		return fmt.Errorf("%w: max_leveraged_exposure must be positive, got %v", ErrConfiguration, r.MaxLeveragedExposure)
	}
	if r.MinCashReservePct < 0 || r.MinCashReservePct >= 1 {
		return fmt.Errorf("%w: min_cash_reserve_pct must be in [0,1), got %v", ErrConfiguration, r.MinCashReservePct)
	}

	s := c.SizingConfig
	if s.Method != "fixed_fraction" && s.Method != "half_kelly" {
		return fmt.Errorf("%w: unknown sizing method %q", ErrConfiguration, s.Method)
	}
	if s.RiskPerTradePct <= 0 || s.RiskPerTradePct > 0.5 {
		return fmt.Errorf("%w: risk_per_trade_pct must be in (0,0.5], got %v", ErrConfiguration, s.RiskPerTradePct)
	}
	if s.KellyFraction <= 0 || s.KellyFraction > 1 {
		return fmt.Errorf("%w: kelly_fraction must be in (0,1], got %v", ErrConfiguration, s.KellyFraction)
	}

	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("%w: auth enabled without jwt_secret", ErrConfiguration)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return def
}

func getEnvIntOrDefault(key string, def int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloatOrDefault(key string, def float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBoolOrDefault(key string, def bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return def
}
