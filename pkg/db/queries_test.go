package db

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backtest-core/internal/backtest"
	"backtest-core/internal/optimize"
	"backtest-core/internal/strategy"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	database, err := New(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := ApplyMigrations(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return database.Store()
}

func sampleGraph() *strategy.Graph {
	return &strategy.Graph{
		Nodes: []strategy.Node{
			{ID: "price", Kind: strategy.NodePrice},
			{ID: "sma", Kind: strategy.NodeIndicator, Data: map[string]any{"indicatorType": "SMA", "period": 20.0}},
		},
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	if err := store.SaveStrategy(ctx, "s1", "Crossover", "demo", sampleGraph()); err != nil {
		t.Fatalf("save: %v", err)
	}

	g, err := store.GetStrategy(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(g.Nodes) != 2 || g.Nodes[1].ID != "sma" {
		t.Fatalf("graph mangled: %+v", g)
	}

	// Same id upserts rather than failing.
	updated := sampleGraph()
	updated.Nodes = updated.Nodes[:1]
	if err := store.SaveStrategy(ctx, "s1", "Crossover v2", "demo", updated); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	g, err = store.GetStrategy(ctx, "s1")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if len(g.Nodes) != 1 {
		t.Fatalf("upsert did not replace graph: %+v", g)
	}
}

func TestGetStrategyNotFound(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetStrategy(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResultRoundTrip(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	res := &backtest.Result{
		Summary: backtest.Summary{
			InitialEquity: 10000,
			FinalEquity:   10450,
			TotalTrades:   1,
			WinningTrades: 1,
			ProfitFactor:  math.Inf(1), // no losing trades
		},
		Trades: []backtest.Trade{{
			EntryTime:    now,
			ExitTime:     now.Add(3 * time.Hour),
			EntryPrice:   100,
			ExitPrice:    105,
			PositionType: strategy.PositionLong,
			Quantity:     90,
			Profit:       450,
		}},
		EquityCurve: []backtest.EquityPoint{
			{Timestamp: now, Equity: 10000},
			{Timestamp: now.Add(3 * time.Hour), Equity: 10450},
		},
		MonthlyReturns: []backtest.MonthlyReturn{{Year: 2024, Month: 3, Return: 4.5}},
	}

	if err := store.SaveResult(ctx, "r1", "s1", res); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.GetResult(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Summary.FinalEquity != 10450 {
		t.Fatalf("summary mangled: %+v", got.Summary)
	}
	if !math.IsInf(got.Summary.ProfitFactor, 1) {
		t.Fatalf("profit factor = %v, want +Inf survived the round trip", got.Summary.ProfitFactor)
	}
	if len(got.Trades) != 1 || got.Trades[0].Quantity != 90 {
		t.Fatalf("trades mangled: %+v", got.Trades)
	}
	if len(got.EquityCurve) != 2 || len(got.MonthlyReturns) != 1 {
		t.Fatalf("series mangled: %d curve points, %d months", len(got.EquityCurve), len(got.MonthlyReturns))
	}

	if _, err := store.GetResult(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	job := &optimize.Job{
		ID:     "j1",
		Target: "finalEquity",
		Status: optimize.StatusRunning,
	}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	job.Status = optimize.StatusCompleted
	job.Progress = 100
	job.BestParameters = map[string]float64{"fast_period": 10}
	job.BestSummary = &backtest.Summary{FinalEquity: 10900}
	if err := store.UpdateJob(ctx, job); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := store.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != optimize.StatusCompleted || got.Progress != 100 {
		t.Fatalf("job state = %s/%d, want COMPLETED/100", got.Status, got.Progress)
	}
	if got.BestParameters["fast_period"] != 10 {
		t.Fatalf("best parameters mangled: %v", got.BestParameters)
	}
	if got.BestSummary == nil || got.BestSummary.FinalEquity != 10900 {
		t.Fatalf("best summary mangled: %+v", got.BestSummary)
	}
}

func TestJobWithoutBest(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	job := &optimize.Job{ID: "j2", Target: "winRate", Status: optimize.StatusFailed, Error: "cancelled"}
	if err := store.CreateJob(ctx, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetJob(ctx, "j2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BestParameters != nil || got.BestSummary != nil {
		t.Fatalf("expected empty best docs, got %v / %v", got.BestParameters, got.BestSummary)
	}
	if got.Error != "cancelled" {
		t.Fatalf("error = %q, want cancelled", got.Error)
	}
}

func TestUpdateJobNotFound(t *testing.T) {
	store := testStore(t)
	err := store.UpdateJob(context.Background(), &optimize.Job{ID: "ghost"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	store := testStore(t)
	if _, err := store.GetJob(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
