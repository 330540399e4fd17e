package optimize

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"backtest-core/internal/backtest"
	"backtest-core/internal/events"
	"backtest-core/internal/market"
	"backtest-core/internal/strategy"
)

func sweepGraph() *strategy.Graph {
	node := func(id string, kind strategy.NodeKind, data map[string]any) strategy.Node {
		return strategy.Node{ID: id, Kind: kind, Data: data}
	}
	edge := func(source, sourceHandle, target, targetHandle string) strategy.Edge {
		return strategy.Edge{Source: source, SourceHandle: sourceHandle, Target: target, TargetHandle: targetHandle}
	}
	return &strategy.Graph{
		Nodes: []strategy.Node{
			node("price", strategy.NodePrice, nil),
			node("fast", strategy.NodeIndicator, map[string]any{"indicatorType": "SMA", "period": 2}),
			node("slow", strategy.NodeIndicator, map[string]any{"indicatorType": "SMA", "period": 6}),
			node("up", strategy.NodeCondition, map[string]any{"conditionType": strategy.OpCrossAbove}),
			node("down", strategy.NodeCondition, map[string]any{"conditionType": strategy.OpCrossBelow}),
			node("enter", strategy.NodeEntry, map[string]any{"positionType": "LONG"}),
			node("leave", strategy.NodeExit, map[string]any{"positionType": "LONG"}),
		},
		Edges: []strategy.Edge{
			edge("fast", "result", "up", "a"),
			edge("slow", "result", "up", "b"),
			edge("fast", "result", "down", "a"),
			edge("slow", "result", "down", "b"),
			edge("up", "result", "enter", "signal"),
			edge("down", "result", "leave", "signal"),
		},
	}
}

func sweepBars() []market.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	bars := make([]market.Bar, 0, 60)
	for i := 0; i < 60; i++ {
		switch {
		case i < 20:
			price--
		case i < 40:
			price++
		default:
			price--
		}
		bars = append(bars, market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		})
	}
	return bars
}

func waitFor(t *testing.T, ch <-chan any, what string) any {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return nil
	}
}

func TestRunnerCompletesSweep(t *testing.T) {
	store := NewMemStore()
	bus := events.NewBus()
	doneCh, unsub := bus.Subscribe(events.EventJobCompleted, 1)
	defer unsub()

	ranges := Ranges{
		"fast_period": {Values: []float64{2, 3}},
		"slow_period": {Values: []float64{6, 8}},
	}
	opts := backtest.Options{WarmupBars: 8}

	runner := NewRunner(store, bus, 2)
	job, err := runner.Start(context.Background(), "s1", sweepGraph(), sweepBars(), ranges, "finalEquity", opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if job.Status != StatusRunning {
		t.Fatalf("job status after start = %s, want RUNNING", job.Status)
	}

	waitFor(t, doneCh, "job completion")

	final, ok := store.GetJob(job.ID)
	if !ok {
		t.Fatalf("job %s missing from store", job.ID)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", final.Status)
	}
	if final.Progress != 100 {
		t.Fatalf("progress = %d, want 100", final.Progress)
	}
	if final.BestParameters == nil || final.BestSummary == nil {
		t.Fatalf("expected a best combination, got params=%v summary=%v", final.BestParameters, final.BestSummary)
	}
	if _, ok := final.BestParameters["fast_period"]; !ok {
		t.Fatalf("best parameters missing swept key: %v", final.BestParameters)
	}
}

func TestRunnerBestSelection(t *testing.T) {
	// One combination degenerates (fast == slow never crosses, equity
	// stays flat); the other trades the V shape profitably. Maximizing
	// final equity must pick the trading one.
	store := NewMemStore()
	bus := events.NewBus()
	doneCh, unsub := bus.Subscribe(events.EventJobCompleted, 1)
	defer unsub()

	ranges := Ranges{"fast_period": {Values: []float64{2, 6}}}
	opts := backtest.Options{WarmupBars: 8}

	runner := NewRunner(store, bus, 2)
	job, err := runner.Start(context.Background(), "s1", sweepGraph(), sweepBars(), ranges, "finalEquity", opts)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, doneCh, "job completion")

	final, _ := store.GetJob(job.ID)
	if final.BestParameters["fast_period"] != 2 {
		t.Fatalf("best fast_period = %v, want 2", final.BestParameters["fast_period"])
	}
	if final.BestSummary.FinalEquity <= final.BestSummary.InitialEquity {
		t.Fatalf("best summary should show a profit: %+v", final.BestSummary)
	}
}

func TestRunnerUnknownTarget(t *testing.T) {
	store := NewMemStore()
	runner := NewRunner(store, nil, 2)

	job, err := runner.Start(context.Background(), "s1", sweepGraph(), sweepBars(),
		Ranges{"fast_period": {Values: []float64{2}}}, "bestVibes", backtest.Options{})
	if err == nil {
		t.Fatalf("expected setup error for unknown target")
	}
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SetupError, got %T", err)
	}

	stored, _ := store.GetJob(job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.Error == "" {
		t.Fatalf("failed job should carry an error message")
	}
}

func TestRunnerZeroCombinations(t *testing.T) {
	store := NewMemStore()
	runner := NewRunner(store, nil, 2)

	job, err := runner.Start(context.Background(), "s1", sweepGraph(), sweepBars(),
		Ranges{"fast_period": {}}, "finalEquity", backtest.Options{})
	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected *SetupError, got %v", err)
	}
	stored, _ := store.GetJob(job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
}

func TestRunnerBrokenGraphFailsJob(t *testing.T) {
	store := NewMemStore()
	runner := NewRunner(store, nil, 2)

	broken := &strategy.Graph{Nodes: []strategy.Node{
		{ID: "x", Kind: strategy.NodeIndicator, Data: map[string]any{"indicatorType": "NOPE"}},
	}}
	job, err := runner.Start(context.Background(), "s1", broken, sweepBars(),
		Ranges{"fast_period": {Values: []float64{2}}}, "finalEquity", backtest.Options{})
	var ce *strategy.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *strategy.CompileError, got %v", err)
	}
	stored, _ := store.GetJob(job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
}

func TestRunnerCancellation(t *testing.T) {
	store := NewMemStore()
	bus := events.NewBus()
	failCh, unsub := bus.Subscribe(events.EventJobFailed, 1)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before any combination runs

	runner := NewRunner(store, bus, 2)
	job, err := runner.Start(ctx, "s1", sweepGraph(), sweepBars(),
		Ranges{"fast_period": {Values: []float64{2, 3, 4}}}, "finalEquity", backtest.Options{WarmupBars: 8})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, failCh, "job failure after cancellation")

	stored, _ := store.GetJob(job.ID)
	if stored.Status != StatusFailed {
		t.Fatalf("status = %s, want FAILED", stored.Status)
	}
	if stored.BestSummary != nil || stored.BestParameters != nil {
		t.Fatalf("cancelled job must not publish a partial best")
	}
}

func TestMetricValue(t *testing.T) {
	s := &backtest.Summary{
		FinalEquity:        10100,
		TotalReturnPercent: 1,
		AnnualReturn:       2,
		WinRate:            50,
		ProfitFactor:       math.Inf(1),
		SharpeRatio:        1.2,
		MaxDrawdown:        4,
		GrossProfit:        200,
	}

	tests := []struct {
		target string
		want   float64
	}{
		{"finalEquity", 10100},
		{"totalReturnPercent", 1},
		{"annualReturn", 2},
		{"winRate", 50},
		{"sharpeRatio", 1.2},
		{"maxDrawdown", 4},
		{"grossProfit", 200},
	}
	for _, tt := range tests {
		got, ok := metricValue(s, tt.target)
		if !ok || got != tt.want {
			t.Fatalf("metricValue(%s) = %v/%v, want %v", tt.target, got, ok, tt.want)
		}
	}

	if got, ok := metricValue(s, "profitFactor"); !ok || !math.IsInf(got, 1) {
		t.Fatalf("profitFactor = %v/%v, want +Inf", got, ok)
	}
	if _, ok := metricValue(nil, "finalEquity"); ok {
		t.Fatalf("nil summary must not report a metric")
	}
	if _, ok := metricValue(s, "unknown"); ok {
		t.Fatalf("unknown target must not report a metric")
	}
}

func TestRunnerLowerIsBetterTarget(t *testing.T) {
	// fast_period 2 trades a bump that ends in a loss, so its equity dips;
	// fast_period 6 equals the slow period, never crosses and stays flat
	// with zero drawdown. Minimizing maxDrawdown must pick the flat one.
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	bars := make([]market.Bar, 0, 60)
	for i := 0; i < 60; i++ {
		switch {
		case i < 20:
			price--
		case i < 24:
			price++
		default:
			price--
		}
		bars = append(bars, market.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      price,
			High:      price,
			Low:       price,
			Close:     price,
			Volume:    1000,
		})
	}

	store := NewMemStore()
	bus := events.NewBus()
	doneCh, unsub := bus.Subscribe(events.EventJobCompleted, 1)
	defer unsub()

	runner := NewRunner(store, bus, 2)
	job, err := runner.Start(context.Background(), "s1", sweepGraph(), bars,
		Ranges{"fast_period": {Values: []float64{2, 6}}}, "maxDrawdown", backtest.Options{WarmupBars: 8})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, doneCh, "job completion")

	final, _ := store.GetJob(job.ID)
	if final.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", final.Status)
	}
	if final.BestParameters["fast_period"] != 6 {
		t.Fatalf("best fast_period = %v, want 6 (zero drawdown)", final.BestParameters["fast_period"])
	}
	if final.BestSummary.MaxDrawdown != 0 {
		t.Fatalf("best max drawdown = %v, want 0", final.BestSummary.MaxDrawdown)
	}
}
