package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.DBPath != "./data/backtest.db" {
		t.Fatalf("db path = %q", cfg.DBPath)
	}
	if cfg.InitialEquity != 10000 {
		t.Fatalf("initial equity = %v, want 10000", cfg.InitialEquity)
	}
	if cfg.CommissionPercent != 0.1 {
		t.Fatalf("commission = %v, want 0.1", cfg.CommissionPercent)
	}
	if cfg.WarmupBars != 100 || cfg.LookbackBars != 200 {
		t.Fatalf("windows = %d/%d, want 100/200", cfg.WarmupBars, cfg.LookbackBars)
	}
	if cfg.OptimizerWorkers != 4 {
		t.Fatalf("workers = %d, want 4", cfg.OptimizerWorkers)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("INITIAL_EQUITY", "50000")
	t.Setenv("OPTIMIZER_WORKERS", "8")
	t.Setenv("WARMUP_BARS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialEquity != 50000 {
		t.Fatalf("initial equity = %v, want 50000", cfg.InitialEquity)
	}
	if cfg.OptimizerWorkers != 8 {
		t.Fatalf("workers = %d, want 8", cfg.OptimizerWorkers)
	}
	if cfg.WarmupBars != 100 {
		t.Fatalf("malformed env should fall back to default, got %d", cfg.WarmupBars)
	}
}
