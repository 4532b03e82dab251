package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"payrails/internal/core/domain"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Log          LogConfig          `mapstructure:"log"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Routing      RoutingConfig      `mapstructure:"routing"`
	Settlement   SettlementConfig   `mapstructure:"settlement"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Notify       NotifyConfig       `mapstructure:"notify"`
	Seed         SeedConfig         `mapstructure:"seed"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

// Addr returns the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"` // startup retry budget
}

// DSN returns the PostgreSQL connection URL with credentials escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.DBName,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// ProviderConfig tunes the settlement simulator.
type ProviderConfig struct {
	FailureRate      float64           `mapstructure:"failure_rate"`
	AvailableBalance string            `mapstructure:"available_balance"`
	Latency          LatencyConfig     `mapstructure:"latency"`
	Limits           map[string]string `mapstructure:"limits"`
	// WebhookSecret verifies settlement callbacks. Empty disables the endpoint.
	WebhookSecret    string            `mapstructure:"webhook_secret"`
}

type LatencyConfig struct {
	FedNow time.Duration `mapstructure:"fednow"`
	RTP    time.Duration `mapstructure:"rtp"`
	ACH    time.Duration `mapstructure:"ach"`
	Card   time.Duration `mapstructure:"card"`
}

// ByChannel returns the latency table keyed by channel.
func (l LatencyConfig) ByChannel() map[domain.Channel]time.Duration {
	return map[domain.Channel]time.Duration{
		domain.ChannelFedNow: l.FedNow,
		domain.ChannelRTP:    l.RTP,
		domain.ChannelACH:    l.ACH,
		domain.ChannelCard:   l.Card,
	}
}

// RoutingConfig is the channel configuration seeded at startup.
type RoutingConfig struct {
	Name     string            `mapstructure:"name"`
	Priority []string          `mapstructure:"priority"`
	Channels []string          `mapstructure:"channels"`
	Limits   map[string]string `mapstructure:"limits"`
}

type SettlementConfig struct {
	DiscountRate     string   `mapstructure:"discount_rate"`
	DiscountChannels []string `mapstructure:"discount_channels"`
}

type OrchestratorConfig struct {
	RaceWait       time.Duration `mapstructure:"race_wait"`
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
	ExpirySweep    time.Duration `mapstructure:"expiry_sweep"`
}

type NotifyConfig struct {
	Secret         string          `mapstructure:"secret"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	RetryIntervals []time.Duration `mapstructure:"retry_intervals"`
}

// SeedConfig lists directory accounts created at startup if missing.
type SeedConfig struct {
	Accounts []SeedAccount `mapstructure:"accounts"`
}

type SeedAccount struct {
	ID          string `mapstructure:"id"`
	Kind        string `mapstructure:"kind"`
	DisplayName string `mapstructure:"display_name"`
	Status      string `mapstructure:"status"`
	NotifyURL   string `mapstructure:"notify_url"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: PAYRAILS_.
// Nested keys use underscore: PAYRAILS_DATABASE_HOST, PAYRAILS_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "payrails")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "30s")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_timeout", "10s")
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "payrails")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("provider.failure_rate", 0.05)
	v.SetDefault("provider.available_balance", "100000.00")
	v.SetDefault("provider.latency.fednow", "100ms")
	v.SetDefault("provider.latency.rtp", "100ms")
	v.SetDefault("provider.latency.ach", "500ms")
	v.SetDefault("provider.latency.card", "200ms")
	v.SetDefault("provider.webhook_secret", "")
	v.SetDefault("routing.name", "default")
	v.SetDefault("routing.priority", []string{"fednow", "rtp", "ach", "card"})
	v.SetDefault("routing.channels", []string{"fednow", "rtp", "ach", "card"})
	v.SetDefault("settlement.discount_rate", "0.9875")
	v.SetDefault("settlement.discount_channels", []string{"fednow", "rtp"})
	v.SetDefault("orchestrator.race_wait", "10s")
	v.SetDefault("orchestrator.idempotency_ttl", "24h")
	v.SetDefault("orchestrator.expiry_sweep", "1m")
	v.SetDefault("notify.secret", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.retry_intervals", []string{"15s", "60s", "2m", "5m", "10m"})

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: PAYRAILS_DATABASE_HOST -> database.host
	v.SetEnvPrefix("PAYRAILS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// ChannelConfig converts the routing section into the active domain configuration.
func (r RoutingConfig) ChannelConfig() (*domain.ChannelConfig, error) {
	channels, err := parseChannels(r.Channels)
	if err != nil {
		return nil, fmt.Errorf("routing.channels: %w", err)
	}
	limits, err := parseLimits(r.Limits)
	if err != nil {
		return nil, fmt.Errorf("routing.limits: %w", err)
	}
	return &domain.ChannelConfig{
		Name:     r.Name,
		Channels: channels,
		Limits:   limits,
		Active:   true,
	}, nil
}

// PriorityChannels parses the rail scan order.
func (r RoutingConfig) PriorityChannels() ([]domain.Channel, error) {
	return parseChannels(r.Priority)
}

// ProviderLimits parses the simulator's per-channel ceilings. Nil means defaults.
func (p ProviderConfig) ProviderLimits() (map[domain.Channel]decimal.Decimal, error) {
	if len(p.Limits) == 0 {
		return nil, nil
	}
	limits, err := parseLimits(p.Limits)
	if err != nil {
		return nil, fmt.Errorf("provider.limits: %w", err)
	}
	merged := make(map[domain.Channel]decimal.Decimal, len(domain.DefaultChannelLimits))
	for c, l := range domain.DefaultChannelLimits {
		merged[c] = l
	}
	for c, l := range limits {
		merged[c] = l
	}
	return merged, nil
}

// Discount returns the settlement discount rate and the channels it applies to.
func (s SettlementConfig) Discount() (decimal.Decimal, []domain.Channel, error) {
	rate, err := decimal.NewFromString(s.DiscountRate)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("settlement.discount_rate: %w", err)
	}
	if !rate.IsPositive() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, nil, fmt.Errorf("settlement.discount_rate must be in (0, 1], got %s", rate)
	}
	channels, err := parseChannels(s.DiscountChannels)
	if err != nil {
		return decimal.Zero, nil, fmt.Errorf("settlement.discount_channels: %w", err)
	}
	return rate, channels, nil
}

func parseChannels(names []string) ([]domain.Channel, error) {
	out := make([]domain.Channel, 0, len(names))
	for _, n := range names {
		c, ok := domain.ParseChannel(strings.ToLower(strings.TrimSpace(n)))
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", n)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseLimits(raw map[string]string) (map[domain.Channel]decimal.Decimal, error) {
	out := make(map[domain.Channel]decimal.Decimal, len(raw))
	for name, val := range raw {
		c, ok := domain.ParseChannel(strings.ToLower(name))
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", name)
		}
		l, err := decimal.NewFromString(val)
		if err != nil {
			return nil, fmt.Errorf("limit for %s: %w", name, err)
		}
		out[c] = l
	}
	return out, nil
}
