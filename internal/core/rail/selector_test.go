package rail

import (
	"testing"

	"payrails/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func allChannels() *domain.ChannelConfig {
	return &domain.ChannelConfig{
		Name:     "default",
		Channels: []domain.Channel{domain.ChannelFedNow, domain.ChannelRTP, domain.ChannelACH, domain.ChannelCard},
		Limits:   domain.DefaultChannelLimits,
		Active:   true,
	}
}

func chanPtr(c domain.Channel) *domain.Channel { return &c }

func TestSelector_Select_PriorityScenarios(t *testing.T) {
	sel := NewSelector(nil)

	tests := []struct {
		name     string
		amount   int64
		channels []domain.Channel
		want     domain.Channel
		wantOK   bool
	}{
		{"small amount takes fastest", 1000, allChannels().Channels, domain.ChannelFedNow, true},
		{"above fednow limit takes rtp", 600000, allChannels().Channels, domain.ChannelRTP, true},
		{"above rtp limit takes ach", 1500000, allChannels().Channels, domain.ChannelACH, true},
		{"too large for two fastest", 20000000, []domain.Channel{domain.ChannelFedNow, domain.ChannelRTP}, "", false},
		{"exactly at limit", 500000, allChannels().Channels, domain.ChannelFedNow, true},
		{"card only within limit", 100, []domain.Channel{domain.ChannelCard}, domain.ChannelCard, true},
		{"card only over limit", 50001, []domain.Channel{domain.ChannelCard}, "", false},
		{"empty channel set", 1, nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := allChannels()
			cfg.Channels = tt.channels
			got, ok := sel.Select(decimal.NewFromInt(tt.amount), cfg, nil)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelector_Select_Preferred(t *testing.T) {
	sel := NewSelector(nil)
	cfg := allChannels()

	got, ok := sel.Select(decimal.NewFromInt(1000), cfg, chanPtr(domain.ChannelACH))
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelACH, got, "preference short-circuits priority")

	got, ok = sel.Select(decimal.NewFromInt(60000), cfg, chanPtr(domain.ChannelCard))
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelFedNow, got, "over-limit preference falls through")

	cfg.Channels = []domain.Channel{domain.ChannelRTP, domain.ChannelACH}
	got, ok = sel.Select(decimal.NewFromInt(10), cfg, chanPtr(domain.ChannelFedNow))
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelRTP, got, "unsupported preference falls through")
}

func TestSelector_Select_Deterministic(t *testing.T) {
	sel := NewSelector(nil)
	cfg := allChannels()
	amount := decimal.RequireFromString("499999.99")

	first, _ := sel.Select(amount, cfg, nil)
	for i := 0; i < 50; i++ {
		got, _ := sel.Select(amount, cfg, nil)
		assert.Equal(t, first, got)
	}
}

func TestSelector_Select_ConfiguredLimitOverridesDefault(t *testing.T) {
	cfg := allChannels()
	cfg.Limits = map[domain.Channel]decimal.Decimal{domain.ChannelFedNow: decimal.NewFromInt(100)}

	got, ok := NewSelector(nil).Select(decimal.NewFromInt(101), cfg, nil)
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelRTP, got)
}

func TestSelector_CustomPriority(t *testing.T) {
	sel := NewSelector([]domain.Channel{domain.ChannelCard, domain.ChannelACH})
	got, ok := sel.Select(decimal.NewFromInt(10), allChannels(), nil)
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelCard, got)
	assert.Equal(t, []domain.Channel{domain.ChannelCard, domain.ChannelACH}, sel.Priority())
}

func TestSelector_NilConfig(t *testing.T) {
	_, ok := NewSelector(nil).Select(decimal.NewFromInt(1), nil, nil)
	assert.False(t, ok)
}

func TestSelectChannel(t *testing.T) {
	got, ok := SelectChannel(decimal.NewFromInt(600000),
		[]domain.Channel{domain.ChannelFedNow, domain.ChannelRTP, domain.ChannelACH, domain.ChannelCard},
		domain.DefaultChannelLimits, nil)
	assert.True(t, ok)
	assert.Equal(t, domain.ChannelRTP, got)
}
