package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecontract/internal/config"
	"ridecontract/internal/handler"
	"ridecontract/internal/middleware"
	"ridecontract/internal/service"
	"ridecontract/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter() *gin.Engine {
	fixture := tests.NewContractFixture(service.DefaultPolicy())
	registry := prometheus.NewRegistry()
	service.NewMetrics(registry)

	return NewRouter(RouterDeps{
		RideHandler:    handler.NewRideHandler(fixture.Service),
		RatingHandler:  handler.NewRatingHandler(fixture.Service),
		AccountHandler: handler.NewAccountHandler(fixture.Service),
		Authenticator:  middleware.NewCallerAuthenticator(config.AuthConfig{}),
		Gatherer:       registry,
	})
}

func TestRouterRegistersContractRoutes(t *testing.T) {
	router := newTestRouter()

	registered := make(map[string]bool)
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /v1/rides",
		"GET /v1/rides/:id",
		"GET /v1/rides/:id/destination",
		"GET /v1/rides/:id/price",
		"GET /v1/rides/:id/transfers",
		"POST /v1/rides/:id/accept",
		"POST /v1/rides/:id/complete",
		"POST /v1/rides/:id/mark-complete",
		"POST /v1/rides/:id/dispute",
		"POST /v1/rides/:id/resolve",
		"POST /v1/rides/:id/release",
		"POST /v1/rides/:id/cancel",
		"POST /v1/rides/:id/refund",
		"POST /v1/rides/:id/funds",
		"PUT /v1/rides/:id/destination",
		"PUT /v1/rides/:id/price",
		"POST /v1/rides/:id/rate-driver",
		"POST /v1/rides/:id/rate-rider",
		"GET /v1/drivers/:id/rating",
		"GET /v1/riders/:id/rating",
		"GET /v1/accounts/:id/balance",
		"GET /health",
		"GET /metrics",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestRouterHealthAndMetricsNeedNoCaller(t *testing.T) {
	router := newTestRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rides/r-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeyNamespace(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "lock", keyNamespace(redis.NewStringCmd(ctx, "get", "lock:ride:1")))
	assert.Equal(t, "cache", keyNamespace(redis.NewStringCmd(ctx, "del", "cache:ride:1")))
	assert.Equal(t, "plain", keyNamespace(redis.NewStringCmd(ctx, "get", "plain")))
	assert.Equal(t, "ride-contract", keyNamespace(redis.NewStringCmd(ctx, "ping")))
}
