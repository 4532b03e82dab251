package domain

import "github.com/shopspring/decimal"

// Channel is a settlement rail.
type Channel string

const (
	ChannelFedNow Channel = "fednow"
	ChannelRTP    Channel = "rtp"
	ChannelACH    Channel = "ach"
	ChannelCard   Channel = "card"
)

// DefaultChannelPriority orders channels fastest/cheapest first.
var DefaultChannelPriority = []Channel{ChannelFedNow, ChannelRTP, ChannelACH, ChannelCard}

// DefaultChannelLimits is the per-channel ceiling used when a configuration omits one.
var DefaultChannelLimits = map[Channel]decimal.Decimal{
	ChannelFedNow: decimal.NewFromInt(500000),
	ChannelRTP:    decimal.NewFromInt(1000000),
	ChannelACH:    decimal.NewFromInt(10000000),
	ChannelCard:   decimal.NewFromInt(50000),
}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, bool) {
	c := Channel(s)
	if _, ok := DefaultChannelLimits[c]; ok {
		return c, true
	}
	return "", false
}

// ChannelConfig is a routing configuration: the supported channels and their limits.
type ChannelConfig struct {
	Name     string                      `json:"name"`
	Channels []Channel                   `json:"channels"`
	Limits   map[Channel]decimal.Decimal `json:"limits"`
	Active   bool                        `json:"active"`
}

// Supports reports whether c is enabled in the configuration.
func (cc *ChannelConfig) Supports(c Channel) bool {
	for _, ch := range cc.Channels {
		if ch == c {
			return true
		}
	}
	return false
}

// LimitFor returns the configured ceiling for c, falling back to DefaultChannelLimits.
func (cc *ChannelConfig) LimitFor(c Channel) (decimal.Decimal, bool) {
	if l, ok := cc.Limits[c]; ok {
		return l, true
	}
	l, ok := DefaultChannelLimits[c]
	return l, ok
}
