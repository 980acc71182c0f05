package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/service"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type mockHealthCheck struct {
	name string
	err  error
}

func (m *mockHealthCheck) Name() string { return m.name }
func (m *mockHealthCheck) Check(ctx context.Context) error { return m.err }

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) HealthStatus {
	t.Helper()
	var status HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

// =============================================================================
// 🧪 HealthHandler 测试
// =============================================================================

func TestHealthHandler_HandleHealth(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	// 存活探针不受失败的就绪检查影响
	h.RegisterCheck(&mockHealthCheck{name: "db", err: errors.New("down")})

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	status := decodeStatus(t, w)
	assert.Equal(t, "healthy", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name           string
		checks         []HealthCheck
		expectedStatus int
		check          func(*testing.T, HealthStatus)
	}{
		{
			name:           "no checks - ready",
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s HealthStatus) {
				assert.Equal(t, "healthy", s.Status)
			},
		},
		{
			name:           "all checks pass",
			checks:         []HealthCheck{&mockHealthCheck{name: "a"}, &mockHealthCheck{name: "b"}},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s HealthStatus) {
				assert.Len(t, s.Checks, 2)
				assert.Equal(t, "pass", s.Checks["a"].Status)
			},
		},
		{
			name:           "one check fails",
			checks:         []HealthCheck{&mockHealthCheck{name: "a"}, &mockHealthCheck{name: "b", err: errors.New("check failed")}},
			expectedStatus: http.StatusServiceUnavailable,
			check: func(t *testing.T, s HealthStatus) {
				assert.Equal(t, "unhealthy", s.Status)
				assert.Equal(t, "pass", s.Checks["a"].Status)
				assert.Equal(t, "fail", s.Checks["b"].Status)
				assert.Equal(t, "check failed", s.Checks["b"].Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			h.RegisterCheck(tt.checks...)

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			tt.check(t, decodeStatus(t, w))
		})
	}
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	h := NewHealthHandler(nil)

	w := httptest.NewRecorder()
	h.HandleVersion("1.0.0", "2026-01-01T00:00:00Z", "abc123")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", data["version"])
	assert.Equal(t, "abc123", data["git_commit"])
}

func TestHealthHandler_ConcurrentReady(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	for i := 0; i < 10; i++ {
		h.RegisterCheck(&mockHealthCheck{name: string(rune('a' + i))})
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}

func TestPingCheck(t *testing.T) {
	c := NewPingCheck("redis", func(ctx context.Context) error { return errors.New("refused") })
	assert.Equal(t, "redis", c.Name())
	assert.EqualError(t, c.Check(context.Background()), "refused")
}

// =============================================================================
// 🧪 ServiceCheck 测试
// =============================================================================

func TestServiceChecks(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	var probes atomic.Int32

	reg, err := service.NewRegistry(service.RegistryConfig{Mode: service.ModeLocal},
		[]service.Config{{Name: "search", Port: 9200}},
		zap.NewNop(),
		service.WithProber("http", service.ProberFunc(func(ctx context.Context, ep service.Endpoint) error {
			probes.Add(1)
			if healthy.Load() {
				return nil
			}
			return errors.New("connection refused")
		})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(ServiceChecks(reg, time.Minute)...)

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pass", decodeStatus(t, w).Checks["service:search"].Status)
	assert.Equal(t, int32(1), probes.Load())

	// 缓存未过期，不会再次探测
	w = httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), probes.Load())

	// 服务掉线后，实时检查失败
	healthy.Store(false)
	reg.CheckHealth(context.Background(), "search")
	w = httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeStatus(t, w).Checks["service:search"].Message, "unhealthy")
}
