package memory

import (
	"context"

	"payrails/internal/core/domain"

	"github.com/shopspring/decimal"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct{ s *Store }

// Accounts returns the account repository view of the store.
func (s *Store) Accounts() *AccountRepo { return &AccountRepo{s: s} }

// Create inserts a; an existing id is left untouched.
func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.accounts[a.ID]; !ok {
		r.s.accounts[a.ID] = *a
	}
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

// ChannelConfigRepo implements ports.ChannelConfigRepository.
type ChannelConfigRepo struct{ s *Store }

// ChannelConfigs returns the channel configuration view of the store.
func (s *Store) ChannelConfigs() *ChannelConfigRepo { return &ChannelConfigRepo{s: s} }

func (r *ChannelConfigRepo) Upsert(ctx context.Context, cfg *domain.ChannelConfig) error {
	c := domain.ChannelConfig{
		Name:     cfg.Name,
		Channels: append([]domain.Channel(nil), cfg.Channels...),
		Limits:   make(map[domain.Channel]decimal.Decimal, len(cfg.Limits)),
		Active:   cfg.Active,
	}
	for ch, l := range cfg.Limits {
		c.Limits[ch] = l
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.Active {
		for name, other := range r.s.configs {
			if other.Active && name != c.Name {
				other.Active = false
				r.s.configs[name] = other
			}
		}
	}
	r.s.configs[c.Name] = c
	return nil
}

func (r *ChannelConfigRepo) GetActive(ctx context.Context) (*domain.ChannelConfig, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.configs {
		if c.Active {
			return &c, nil
		}
	}
	return nil, nil
}
