package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the backtest core.
type Config struct {
	// Database
	DBPath string

	// Backtest defaults
	InitialEquity       float64
	CommissionPercent   float64 // per fill side
	WarmupBars          int
	LookbackBars        int
	RiskPercent         float64 // equity fraction risked per trade
	StopDistancePercent float64

	// Optimizer
	OptimizerWorkers int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the tool still runs when .env is missing.
	_ = godotenv.Load()

	return &Config{
		DBPath:              getEnv("DB_PATH", "./data/backtest.db"),
		InitialEquity:       getEnvFloat("INITIAL_EQUITY", 10000),
		CommissionPercent:   getEnvFloat("COMMISSION_PERCENT", 0.1),
		WarmupBars:          getEnvInt("WARMUP_BARS", 100),
		LookbackBars:        getEnvInt("LOOKBACK_BARS", 200),
		RiskPercent:         getEnvFloat("RISK_PERCENT", 1),
		StopDistancePercent: getEnvFloat("STOP_DISTANCE_PERCENT", 2),
		OptimizerWorkers:    getEnvInt("OPTIMIZER_WORKERS", 4),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
