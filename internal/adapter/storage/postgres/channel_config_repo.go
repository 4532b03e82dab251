package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"payrails/internal/core/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ChannelConfigRepo implements ports.ChannelConfigRepository.
type ChannelConfigRepo struct {
	pool Pool
}

// NewChannelConfigRepo creates a new ChannelConfigRepo.
func NewChannelConfigRepo(pool Pool) *ChannelConfigRepo {
	return &ChannelConfigRepo{pool: pool}
}

// Upsert stores cfg by name. Activating a configuration deactivates the others.
func (r *ChannelConfigRepo) Upsert(ctx context.Context, cfg *domain.ChannelConfig) error {
	channels := make([]string, len(cfg.Channels))
	for i, c := range cfg.Channels {
		channels[i] = string(c)
	}
	limits := make(map[string]string, len(cfg.Limits))
	for c, l := range cfg.Limits {
		limits[string(c)] = l.String()
	}
	limitsJSON, err := json.Marshal(limits)
	if err != nil {
		return fmt.Errorf("marshal channel limits: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin channel config upsert: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if cfg.Active {
		if _, err := tx.Exec(ctx, `UPDATE channel_configs SET active = false WHERE name <> $1 AND active`, cfg.Name); err != nil {
			return fmt.Errorf("deactivate channel configs: %w", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO channel_configs (name, channels, limits, active, updated_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET channels = EXCLUDED.channels, limits = EXCLUDED.limits,
			active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`,
		cfg.Name, channels, limitsJSON, cfg.Active, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert channel config: %w", err)
	}
	return tx.Commit(ctx)
}

// GetActive returns the active configuration, or nil if none is active.
func (r *ChannelConfigRepo) GetActive(ctx context.Context) (*domain.ChannelConfig, error) {
	var (
		cfg        domain.ChannelConfig
		channels   []string
		limitsJSON []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT name, channels, limits, active FROM channel_configs WHERE active LIMIT 1`,
	).Scan(&cfg.Name, &channels, &limitsJSON, &cfg.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active channel config: %w", err)
	}

	for _, c := range channels {
		cfg.Channels = append(cfg.Channels, domain.Channel(c))
	}
	var raw map[string]string
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &raw); err != nil {
			return nil, fmt.Errorf("decode channel limits: %w", err)
		}
	}
	cfg.Limits = make(map[domain.Channel]decimal.Decimal, len(raw))
	for c, v := range raw {
		l, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("decode limit for %s: %w", c, err)
		}
		cfg.Limits[domain.Channel(c)] = l
	}
	return &cfg, nil
}
