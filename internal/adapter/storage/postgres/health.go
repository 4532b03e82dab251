package postgres

import (
	"context"
	"errors"
	"fmt"
)

// HealthCheck reports the database healthy once it answers queries and the
// schema has been migrated.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Name() string { return "postgres" }

func (h *HealthCheck) Ping(ctx context.Context) error {
	var applied int64
	if err := h.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+migrationTable).Scan(&applied); err != nil {
		return fmt.Errorf("read %s: %w", migrationTable, err)
	}
	if applied == 0 {
		return errors.New("schema not migrated")
	}
	return nil
}
