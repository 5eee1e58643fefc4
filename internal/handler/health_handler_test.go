package handler

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type stubBroker struct {
	healthy bool
}

func (b stubBroker) Healthy() bool { return b.healthy }

func TestHealthRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		pgErr      error
		redisErr   error
		broker     BrokerHealth
		path       string
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "livez",
			path:       "/livez",
			wantStatus: fiber.StatusOK,
		},
		{
			name:       "ready when everything is up",
			broker:     stubBroker{healthy: true},
			path:       "/readyz",
			wantStatus: fiber.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "rabbitmq": "ok"},
		},
		{
			name:       "not ready when postgres is down",
			pgErr:      errors.New("postgres down"),
			broker:     stubBroker{healthy: true},
			path:       "/readyz",
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "down", "redis": "ok", "rabbitmq": "ok"},
		},
		{
			name:       "not ready when redis is down",
			redisErr:   errors.New("redis down"),
			path:       "/readyz",
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "down"},
		},
		{
			name:       "not ready when broker is down",
			broker:     stubBroker{healthy: false},
			path:       "/readyz",
			wantStatus: fiber.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "ok", "rabbitmq": "down"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sqlDB := sql.OpenDB(stubConnector{pingErr: tt.pgErr})
			t.Cleanup(func() { _ = sqlDB.Close() })
			rdb := newStubRedisClient(tt.redisErr)
			t.Cleanup(func() { _ = rdb.Close() })

			app := newTestApp(t)
			RegisterHealthRoutes(app, sqlDB, rdb, tt.broker)

			resp, body := performRequest(t, app, http.MethodGet, tt.path, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.wantStatus, string(body))
			}
			if tt.wantChecks == nil {
				return
			}

			var payload struct {
				Checks map[string]string `json:"checks"`
			}
			if err := json.Unmarshal(body, &payload); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(payload.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", payload.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if payload.Checks[name] != want {
					t.Fatalf("checks[%s] = %q, want %q", name, payload.Checks[name], want)
				}
			}
		})
	}
}
