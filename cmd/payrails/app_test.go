package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"payrails/config"
	"payrails/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-jwt-secret"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	return &config.Config{
		Server:  config.ServerConfig{Mode: gin.TestMode},
		Storage: config.StorageConfig{Driver: "memory"},
		Redis:   config.RedisConfig{Enabled: true, Host: mr.Host(), Port: port},
		JWT:     config.JWTConfig{Secret: testSecret, Expiry: time.Hour, Issuer: "payrails"},
		Provider: config.ProviderConfig{
			FailureRate:      0,
			AvailableBalance: "100000.00",
		},
		Routing: config.RoutingConfig{
			Name:     "default",
			Priority: []string{"fednow", "rtp", "ach", "card"},
			Channels: []string{"fednow", "rtp", "ach", "card"},
		},
		Settlement: config.SettlementConfig{DiscountRate: "0.9875", DiscountChannels: []string{"fednow", "rtp"}},
		Orchestrator: config.OrchestratorConfig{RaceWait: time.Second, IdempotencyTTL: time.Hour},
		Notify:       config.NotifyConfig{Timeout: time.Second},
		Seed: config.SeedConfig{Accounts: []config.SeedAccount{
			{ID: "alice", Kind: "wallet", DisplayName: "Alice"},
			{ID: "shop", Kind: "merchant", DisplayName: "Coffee Shop"},
		}},
	}
}

type client struct {
	t      *testing.T
	router http.Handler
	tokens *service.JWTTokenService
}

func (c *client) do(method, path, account string, body any, headers ...string) (int, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if account != "" {
		tok, _, err := c.tokens.Generate(account)
		require.NoError(c.t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)

	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func data(resp map[string]any) map[string]any {
	d, _ := resp["data"].(map[string]any)
	return d
}

func TestApp_WalletPaysMerchantRequest(t *testing.T) {
	cfg := testConfig(t)
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	c := &client{t: t, router: a.router, tokens: service.NewJWTTokenService(testSecret, time.Hour, "payrails")}

	code, _ := c.do(http.MethodPost, "/api/v1/wallets/alice/topup", "alice", map[string]any{"amount": "100.00"})
	require.Equal(t, http.StatusCreated, code)

	code, resp := c.do(http.MethodPost, "/api/v1/payment-requests", "shop", map[string]any{
		"merchant_id": "shop", "amount": "40.00", "description": "beans",
	})
	require.Equal(t, http.StatusCreated, code)
	requestID := data(resp)["id"].(string)

	payPath := "/api/v1/payment-requests/" + requestID + "/pay"
	code, resp = c.do(http.MethodPost, payPath, "alice", map[string]any{"wallet_id": "alice"}, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, code)
	payment := data(resp)
	assert.Equal(t, "completed", payment["status"])
	assert.Equal(t, "fednow", payment["channel"])
	assert.Equal(t, "39.50", payment["settled_amount"])

	// A replay under the same key returns the same intent.
	code, resp = c.do(http.MethodPost, payPath, "alice", map[string]any{"wallet_id": "alice"}, "Idempotency-Key", "order-1")
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, payment["id"], data(resp)["id"])

	code, resp = c.do(http.MethodGet, "/api/v1/accounts/alice/balance", "alice", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "60.50", data(resp)["balance"])
	code, resp = c.do(http.MethodGet, "/api/v1/accounts/shop/balance", "shop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "39.50", data(resp)["balance"])

	code, resp = c.do(http.MethodGet, "/api/v1/payment-requests/"+requestID, "shop", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", data(resp)["status"])

	code, resp = c.do(http.MethodPost, "/api/v1/payments/"+payment["id"].(string)+"/cancel", "alice", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "PAY_009", resp["error_code"])
}

func TestApp_HealthReportsStorageAndRedis(t *testing.T) {
	a, err := newApp(context.Background(), testConfig(t), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	deps := body["dependencies"].(map[string]any)
	assert.Contains(t, deps, "memory")
	assert.Contains(t, deps, "redis")

	w = httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/spec", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApp_SettlementWebhookWiredWithSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Provider.WebhookSecret = "provider-secret"
	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	body := `{"reference_id":"ach_unknown","status":"completed"}`
	post := func(signature string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/settlement", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Signature", signature)
		w := httptest.NewRecorder()
		a.router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post("deadbeef"))
	signed := service.NewHMACSignatureService().Sign("provider-secret", body)
	assert.Equal(t, http.StatusNotFound, post(signed))
}

func TestApp_RejectsBadConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing jwt secret", func(c *config.Config) { c.JWT.Secret = "" }},
		{"unknown driver", func(c *config.Config) { c.Storage.Driver = "sqlite" }},
		{"unknown seed kind", func(c *config.Config) { c.Seed.Accounts[0].Kind = "bank" }},
		{"bad discount", func(c *config.Config) { c.Settlement.DiscountRate = "1.5" }},
		{"bad priority", func(c *config.Config) { c.Routing.Priority = []string{"swift"} }},
		{"no channels", func(c *config.Config) { c.Routing.Channels = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := newApp(context.Background(), cfg, zerolog.Nop())
			assert.Error(t, err)
		})
	}
}
