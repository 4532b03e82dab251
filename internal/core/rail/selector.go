// Package rail picks the settlement channel for a payment.
package rail

import (
	"payrails/internal/core/domain"

	"github.com/shopspring/decimal"
)

// Selector chooses a channel by walking a priority order against per-channel limits.
type Selector struct {
	priority []domain.Channel
}

// NewSelector builds a Selector. An empty priority uses domain.DefaultChannelPriority.
func NewSelector(priority []domain.Channel) *Selector {
	if len(priority) == 0 {
		priority = domain.DefaultChannelPriority
	}
	p := make([]domain.Channel, len(priority))
	copy(p, priority)
	return &Selector{priority: p}
}

// Priority returns a copy of the scan order.
func (s *Selector) Priority() []domain.Channel {
	p := make([]domain.Channel, len(s.priority))
	copy(p, s.priority)
	return p
}

// Select returns the channel for amount under cfg. A supported preferred channel
// within its limit wins; otherwise the first supported channel in priority order
// whose limit covers the amount. ok is false when nothing qualifies.
func (s *Selector) Select(amount decimal.Decimal, cfg *domain.ChannelConfig, preferred *domain.Channel) (domain.Channel, bool) {
	if cfg == nil {
		return "", false
	}
	fits := func(c domain.Channel) bool {
		if !cfg.Supports(c) {
			return false
		}
		limit, ok := cfg.LimitFor(c)
		return ok && amount.LessThanOrEqual(limit)
	}

	if preferred != nil && fits(*preferred) {
		return *preferred, true
	}
	for _, c := range s.priority {
		if fits(c) {
			return c, true
		}
	}
	return "", false
}

// SelectChannel applies the default priority to a raw channel set and limit table.
func SelectChannel(amount decimal.Decimal, supported []domain.Channel, limits map[domain.Channel]decimal.Decimal, preferred *domain.Channel) (domain.Channel, bool) {
	cfg := &domain.ChannelConfig{Channels: supported, Limits: limits, Active: true}
	return NewSelector(nil).Select(amount, cfg, preferred)
}
