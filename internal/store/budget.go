package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetOverageBudget returns the cents a user has authorized to exceed plan
// caps for a period. A missing row means 0 (spec.md §3).
func (s *Store) GetOverageBudget(ctx context.Context, userID string, period time.Time) (int64, error) {
	const q = `SELECT budget_cents FROM overage_budgets WHERE user_id = $1 AND period_start = $2`
	periodStart := PeriodStart(period)
	var cents int64
	row := s.db.QueryRowContext(ctx, q, userID, periodStart)
	if err := row.Scan(&cents); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("store: get overage budget: %w", err)
	}
	return cents, nil
}
