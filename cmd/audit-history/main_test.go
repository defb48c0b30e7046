package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godamri/helix-audit/audit"
	"github.com/godamri/helix-audit/config"
	"github.com/godamri/helix-audit/history"
	"github.com/godamri/helix-audit/log"
	"github.com/godamri/helix-audit/server/health"
)

func loadTestConfig(t *testing.T, env map[string]string) *Config {
	t.Helper()
	t.Setenv("KAFKA_BROKERS", "localhost:9092")
	t.Setenv("KAFKA_CONSUMER_TOPICS", "order-service-audit-logs,user-service-audit-logs")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.NewLoader[Config]("", "").Load()
	require.NoError(t, err)
	return cfg
}

func TestConfigDefaults(t *testing.T) {
	cfg := loadTestConfig(t, nil)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "audit-history", cfg.Consumer.GroupID)
	assert.Equal(t, "audit-logs-dlq", cfg.History.DLQTopic)
	assert.Equal(t, "postgres", cfg.History.Store)
	assert.Equal(t, "8080", cfg.HTTP.HTTPPort)
	assert.False(t, cfg.usesRedis())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "memory store needs no database", env: map[string]string{"HISTORY_STORE": "memory"}},
		{name: "postgres needs a dsn", env: nil, wantErr: "database"},
		{name: "postgres with dsn", env: map[string]string{"DB_DSN": "postgres://localhost/audit"}},
		{
			name:    "cache needs redis",
			env:     map[string]string{"HISTORY_STORE": "memory", "HISTORY_CACHE_ENABLED": "true"},
			wantErr: "redis",
		},
		{
			name:    "rate limit needs redis",
			env:     map[string]string{"HISTORY_STORE": "memory", "RATE_LIMIT_ENABLED": "true"},
			wantErr: "redis",
		},
		{
			name: "cache with redis",
			env:  map[string]string{"HISTORY_STORE": "memory", "HISTORY_CACHE_ENABLED": "true", "REDIS_ADDR": "localhost:6379"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := loadTestConfig(t, tt.env).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRouterServesQueryAPI(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"HISTORY_STORE": "memory"})

	store := history.NewMemoryStore()
	id, err := store.Insert(context.Background(), history.Record{
		EventID:        "evt-1",
		EventType:      audit.EventCreated,
		ActionType:     history.ActionCreate,
		ServiceName:    "order-service",
		EntityName:     "Order",
		EntityID:       "o-1",
		EventTimestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Timestamp:      time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
	})
	require.NoError(t, err)

	checker := health.NewChecker(log.Discard())
	router, err := newRouter(cfg, log.Discard(), history.NewQueryService(store), checker, nil)
	require.NoError(t, err)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	res, err := http.Get(srv.URL + "/api/v1/audit-logs/" + id)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotEmpty(t, res.Header.Get("X-Request-Id"))

	var body struct {
		Success bool           `json:"success"`
		Data    history.Record `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "evt-1", body.Data.EventID)

	for path, want := range map[string]int{
		"/health":                    http.StatusOK,
		"/ready":                     http.StatusOK,
		"/metrics":                   http.StatusOK,
		"/api/v1/audit-logs?size=0":  http.StatusBadRequest,
		"/api/v1/audit-logs/missing": http.StatusNotFound,
		"/api/v1/audit-logs/search":  http.StatusOK,
	} {
		res, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		res.Body.Close()
		assert.Equal(t, want, res.StatusCode, path)
	}
}

func TestRouterRejectsBadAuthConfig(t *testing.T) {
	cfg := loadTestConfig(t, map[string]string{"HISTORY_STORE": "memory", "AUTH_ENABLED": "true"})

	_, err := newRouter(cfg, log.Discard(), history.NewQueryService(history.NewMemoryStore()), health.NewChecker(nil), nil)
	assert.Error(t, err, "trusted header auth without proxies is refused")
}
