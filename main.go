package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"backtest-core/internal/backtest"
	"backtest-core/internal/events"
	"backtest-core/internal/market"
	"backtest-core/internal/optimize"
	"backtest-core/internal/strategy"
	"backtest-core/pkg/config"
	"backtest-core/pkg/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		strategyPath = flag.String("strategy", "", "path to a strategy graph YAML file (required)")
		barsPath     = flag.String("bars", "", "path to a CSV bar series (timestamp,open,high,low,close,volume)")
		synthetic    = flag.Int("synthetic", 0, "generate N synthetic bars instead of loading a CSV")
		seed         = flag.Int64("seed", 42, "seed for the synthetic series")
		rangesPath   = flag.String("ranges", "", "path to a sweep YAML file; runs the optimizer instead of a single backtest")
		dbPath       = flag.String("db", "", "override database path")
	)
	flag.Parse()

	if *strategyPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	store := database.Store()

	graphFile, err := strategy.LoadGraphFile(*strategyPath)
	if err != nil {
		log.Fatalf("load strategy: %v", err)
	}
	if graphFile.ID == "" {
		graphFile.ID = uuid.NewString()
	}
	if err := graphFile.SyncToDB(database.DB); err != nil {
		log.Fatalf("sync strategy: %v", err)
	}
	log.Printf("strategy %q (%s): %d nodes, %d edges",
		graphFile.Name, graphFile.ID, len(graphFile.Graph.Nodes), len(graphFile.Graph.Edges))

	bars, err := loadBars(*barsPath, *synthetic, *seed)
	if err != nil {
		log.Fatalf("load bars: %v", err)
	}
	log.Printf("loaded %d bars (%s -> %s)", len(bars),
		bars[0].Timestamp.Format("2006-01-02"), bars[len(bars)-1].Timestamp.Format("2006-01-02"))

	opts := backtest.Options{
		InitialEquity:       cfg.InitialEquity,
		CommissionPercent:   cfg.CommissionPercent,
		WarmupBars:          cfg.WarmupBars,
		LookbackBars:        cfg.LookbackBars,
		RiskPercent:         cfg.RiskPercent,
		StopDistancePercent: cfg.StopDistancePercent,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *rangesPath != "" {
		runSweep(ctx, store, graphFile, bars, *rangesPath, cfg.OptimizerWorkers, opts)
		return
	}
	runBacktest(ctx, store, graphFile, bars, opts)
}

func loadBars(path string, synthetic int, seed int64) ([]market.Bar, error) {
	if synthetic > 0 {
		return market.Synthetic(market.SyntheticConfig{Bars: synthetic, Drift: 0.05, Seed: seed}), nil
	}
	if path == "" {
		return nil, fmt.Errorf("either -bars or -synthetic is required")
	}
	return market.LoadCSV(path)
}

func runBacktest(ctx context.Context, store *db.Store, gf *strategy.GraphFile, bars []market.Bar, opts backtest.Options) {
	bar := initProgressBar(len(bars)-opts.WarmupBars, "Backtesting")
	opts.OnBar = func(done, total int) { _ = bar.Set(done) }

	engine, err := backtest.New(&gf.Graph, bars, nil, opts)
	if err != nil {
		log.Fatalf("backtest setup: %v", err)
	}
	result, err := engine.Run()
	if err != nil {
		log.Fatalf("backtest run: %v", err)
	}
	fmt.Println()

	id := uuid.NewString()
	if err := store.SaveResult(ctx, id, gf.ID, result); err != nil {
		log.Fatalf("save result: %v", err)
	}
	log.Printf("result saved as %s", id)

	printSummary(result.Summary)
}

func runSweep(ctx context.Context, store *db.Store, gf *strategy.GraphFile, bars []market.Bar, rangesPath string, workers int, opts backtest.Options) {
	ranges, target, err := optimize.LoadRangesFile(rangesPath)
	if err != nil {
		log.Fatalf("load ranges: %v", err)
	}

	bus := events.NewBus()
	progressCh, unsubProgress := bus.Subscribe(events.EventJobProgress, 64)
	defer unsubProgress()
	doneCh, unsubDone := bus.Subscribe(events.EventJobCompleted, 1)
	defer unsubDone()
	failCh, unsubFail := bus.Subscribe(events.EventJobFailed, 1)
	defer unsubFail()

	runner := optimize.NewRunner(store, bus, workers)
	job, err := runner.Start(ctx, gf.ID, &gf.Graph, bars, ranges, target, opts)
	if err != nil {
		log.Fatalf("start optimization: %v", err)
	}
	log.Printf("optimization job %s started (target %s)", job.ID, target)

	var bar *progressbar.ProgressBar
	for {
		select {
		case msg := <-progressCh:
			p, ok := msg.(events.JobProgress)
			if !ok {
				continue
			}
			if bar == nil {
				bar = initProgressBar(p.Total, "Optimizing")
			}
			_ = bar.Set(p.Completed)
		case <-doneCh:
			fmt.Println()
			final, err := store.GetJob(context.Background(), job.ID)
			if err != nil {
				log.Fatalf("load job: %v", err)
			}
			if final.BestSummary == nil {
				log.Printf("job %s completed with no scoreable combination", final.ID)
				return
			}
			fmt.Printf("Best parameters (target %s):\n", final.Target)
			for k, v := range final.BestParameters {
				fmt.Printf("  %-32s %v\n", k, v)
			}
			printSummary(*final.BestSummary)
			return
		case msg := <-failCh:
			fmt.Println()
			if d, ok := msg.(events.JobDone); ok {
				log.Fatalf("optimization failed: %s", d.Error)
			}
			log.Fatalf("optimization failed")
		case <-ctx.Done():
			fmt.Println()
			log.Printf("interrupted, stopping job %s...", job.ID)
			<-time.After(time.Second)
			return
		}
	}
}

func printSummary(s backtest.Summary) {
	fmt.Println("===== Backtest Report =====")
	fmt.Printf("Initial Equity:     %12.2f\n", s.InitialEquity)
	fmt.Printf("Final Equity:       %12.2f\n", s.FinalEquity)
	fmt.Printf("Total Return:       %11.2f%%\n", s.TotalReturnPercent)
	fmt.Printf("Annual Return:      %11.2f%%\n", s.AnnualReturn)
	fmt.Println("\n-- Trades --")
	fmt.Printf("Total Trades:       %12d\n", s.TotalTrades)
	fmt.Printf("Winning / Losing:   %7d / %d\n", s.WinningTrades, s.LosingTrades)
	fmt.Printf("Win Rate:           %11.2f%%\n", s.WinRate)
	fmt.Println("\n-- Risk --")
	fmt.Printf("Profit Factor:      %12.2f\n", s.ProfitFactor)
	fmt.Printf("Sharpe Ratio:       %12.2f\n", s.SharpeRatio)
	fmt.Printf("Max Drawdown:       %11.2f%%\n", s.MaxDrawdown)
	fmt.Println("===========================")
}

func initProgressBar(maxTicks int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription(description+" in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
