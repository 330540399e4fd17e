// Package db is the local document store for strategies, backtest results
// and optimization jobs: sqlite tables with JSON document columns.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"backtest-core/internal/backtest"
	"backtest-core/internal/optimize"
	"backtest-core/internal/strategy"
)

// ErrNotFound marks a missing record.
var ErrNotFound = errors.New("record not found")

// Store provides CRUD over the document tables. It implements
// optimize.JobStore.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ----------------------------------------
// Strategies
// ----------------------------------------

// SaveStrategy upserts a strategy graph document.
func (s *Store) SaveStrategy(ctx context.Context, id, name, description string, g *strategy.Graph) error {
	graphJSON, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, name, description, graph, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			graph = excluded.graph,
			updated_at = CURRENT_TIMESTAMP
	`, id, name, description, string(graphJSON))
	if err != nil {
		return fmt.Errorf("upsert strategy: %w", err)
	}
	return nil
}

// GetStrategy loads a strategy graph by id.
func (s *Store) GetStrategy(ctx context.Context, id string) (*strategy.Graph, error) {
	var graphJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT graph FROM strategies WHERE id = ?`, id).Scan(&graphJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query strategy: %w", err)
	}

	var g strategy.Graph
	if err := json.Unmarshal([]byte(graphJSON), &g); err != nil {
		return nil, fmt.Errorf("unmarshal graph %s: %w", id, err)
	}
	return &g, nil
}

// ----------------------------------------
// Backtest results
// ----------------------------------------

// SaveResult stores one backtest result as JSON documents.
func (s *Store) SaveResult(ctx context.Context, id, strategyID string, res *backtest.Result) error {
	summary, err := json.Marshal(res.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	trades, err := json.Marshal(res.Trades)
	if err != nil {
		return fmt.Errorf("marshal trades: %w", err)
	}
	curve, err := json.Marshal(res.EquityCurve)
	if err != nil {
		return fmt.Errorf("marshal equity curve: %w", err)
	}
	monthly, err := json.Marshal(res.MonthlyReturns)
	if err != nil {
		return fmt.Errorf("marshal monthly returns: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO backtest_results (id, strategy_id, summary, trades, equity_curve, monthly_returns)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, strategyID, string(summary), string(trades), string(curve), string(monthly))
	if err != nil {
		return fmt.Errorf("insert backtest result: %w", err)
	}
	return nil
}

// GetResult loads a stored backtest result by id.
func (s *Store) GetResult(ctx context.Context, id string) (*backtest.Result, error) {
	var summary, trades, curve, monthly string
	err := s.db.QueryRowContext(ctx, `
		SELECT summary, trades, equity_curve, COALESCE(monthly_returns, '[]')
		FROM backtest_results WHERE id = ?
	`, id).Scan(&summary, &trades, &curve, &monthly)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query backtest result: %w", err)
	}

	var res backtest.Result
	if err := json.Unmarshal([]byte(summary), &res.Summary); err != nil {
		return nil, fmt.Errorf("unmarshal summary: %w", err)
	}
	if err := json.Unmarshal([]byte(trades), &res.Trades); err != nil {
		return nil, fmt.Errorf("unmarshal trades: %w", err)
	}
	if err := json.Unmarshal([]byte(curve), &res.EquityCurve); err != nil {
		return nil, fmt.Errorf("unmarshal equity curve: %w", err)
	}
	if err := json.Unmarshal([]byte(monthly), &res.MonthlyReturns); err != nil {
		return nil, fmt.Errorf("unmarshal monthly returns: %w", err)
	}
	return &res, nil
}

// ----------------------------------------
// Optimization jobs
// ----------------------------------------

// CreateJob inserts a new optimization job row.
func (s *Store) CreateJob(ctx context.Context, job *optimize.Job) error {
	best, bestSummary, err := marshalJobDocs(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO optimization_jobs
			(id, strategy_id, target, status, progress, best_parameters, best_summary, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.StrategyID, job.Target, string(job.Status), job.Progress, best, bestSummary, job.Error)
	if err != nil {
		return fmt.Errorf("insert optimization job: %w", err)
	}
	return nil
}

// UpdateJob rewrites a job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, job *optimize.Job) error {
	best, bestSummary, err := marshalJobDocs(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE optimization_jobs
		SET status = ?, progress = ?, best_parameters = ?, best_summary = ?,
		    error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(job.Status), job.Progress, best, bestSummary, job.Error, job.ID)
	if err != nil {
		return fmt.Errorf("update optimization job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetJob loads a job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*optimize.Job, error) {
	var (
		job           optimize.Job
		status        string
		best, summary sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(strategy_id, ''), target, status, progress,
		       best_parameters, best_summary, COALESCE(error, ''),
		       created_at, updated_at
		FROM optimization_jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.StrategyID, &job.Target, &status, &job.Progress,
		&best, &summary, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query optimization job: %w", err)
	}

	job.Status = optimize.Status(status)
	if best.Valid && best.String != "" {
		if err := json.Unmarshal([]byte(best.String), &job.BestParameters); err != nil {
			return nil, fmt.Errorf("unmarshal best parameters: %w", err)
		}
	}
	if summary.Valid && summary.String != "" {
		job.BestSummary = &backtest.Summary{}
		if err := json.Unmarshal([]byte(summary.String), job.BestSummary); err != nil {
			return nil, fmt.Errorf("unmarshal best summary: %w", err)
		}
	}
	return &job, nil
}

func marshalJobDocs(job *optimize.Job) (best, bestSummary sql.NullString, err error) {
	if job.BestParameters != nil {
		b, merr := json.Marshal(job.BestParameters)
		if merr != nil {
			return best, bestSummary, fmt.Errorf("marshal best parameters: %w", merr)
		}
		best = sql.NullString{String: string(b), Valid: true}
	}
	if job.BestSummary != nil {
		b, merr := json.Marshal(job.BestSummary)
		if merr != nil {
			return best, bestSummary, fmt.Errorf("marshal best summary: %w", merr)
		}
		bestSummary = sql.NullString{String: string(b), Valid: true}
	}
	return best, bestSummary, nil
}
