package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/pulsarsearch/candypicker/internal/config"
)

const defaultPruneBatch = 500

// PruneResult reports what a prune removed.
type PruneResult struct {
	ByAge   int
	ByCount int
	Vacuum  bool
}

// Deleted is the total number of runs removed.
func (r PruneResult) Deleted() int {
	return r.ByAge + r.ByCount
}

// CountRuns returns the number of recorded runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM runs").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// PruneRuns applies the retention limits: first runs older than MaxAgeDays
// relative to now, then everything beyond the newest MaxRuns.
func (s *Store) PruneRuns(ctx context.Context, r config.Retention, now time.Time) (PruneResult, error) {
	var res PruneResult
	if err := r.Validate(); err != nil {
		return res, err
	}
	batch := r.BatchSize
	if batch == 0 {
		batch = defaultPruneBatch
	}

	if r.MaxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -r.MaxAgeDays)
		n, err := s.deleteBatched(ctx, batch, `
			DELETE FROM runs
			WHERE id IN (
				SELECT id FROM runs
				WHERE started_at < ?
				ORDER BY started_at ASC
				LIMIT ?
			)
		`, func(limit int) []any { return []any{cutoff.UnixMilli(), limit} })
		res.ByAge = n
		if err != nil {
			return res, fmt.Errorf("failed to prune old runs: %w", err)
		}
	}

	if r.MaxRuns > 0 {
		n, err := s.deleteBatched(ctx, batch, `
			DELETE FROM runs
			WHERE id IN (
				SELECT id FROM runs
				ORDER BY started_at DESC, rowid DESC
				LIMIT ? OFFSET ?
			)
		`, func(limit int) []any { return []any{limit, r.MaxRuns} })
		res.ByCount = n
		if err != nil {
			return res, fmt.Errorf("failed to prune excess runs: %w", err)
		}
	}

	if r.Vacuum && res.Deleted() > 0 {
		if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
			return res, fmt.Errorf("failed to vacuum: %w", err)
		}
		res.Vacuum = true
	}

	return res, nil
}

// deleteBatched runs query until it deletes fewer than batch rows.
func (s *Store) deleteBatched(ctx context.Context, batch int, query string, bind func(limit int) []any) (int, error) {
	args := bind(batch)
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("failed to execute delete: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += int(affected)

		if affected < int64(batch) {
			return total, nil
		}
	}
}
