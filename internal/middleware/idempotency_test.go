package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"ridecontract/internal/config"
)

type memoryResponseStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	failGet bool
}

func newMemoryResponseStore() *memoryResponseStore {
	return &memoryResponseStore{data: make(map[string][]byte)}
}

func (s *memoryResponseStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, errors.New("store unavailable")
	}
	return s.data[key], nil
}

func (s *memoryResponseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return nil
}

func newIdempotentRouter(store ResponseStore, status int, calls *int) *gin.Engine {
	router := gin.New()
	router.Use(CallerMiddleware(NewCallerAuthenticator(config.AuthConfig{})))
	router.Use(IdempotencyMiddleware(store))
	router.POST("/rides/:id/funds", func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"calls": *calls})
	})
	return router
}

func postFunds(router *gin.Engine, caller, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/rides/r-1/funds", nil)
	req.Header.Set("X-Caller-ID", caller)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysResponse(t *testing.T) {
	calls := 0
	router := newIdempotentRouter(newMemoryResponseStore(), http.StatusOK, &calls)

	first := postFunds(router, "rider-1", "key-1")
	second := postFunds(router, "rider-1", "key-1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestIdempotencyKeysAreScopedToCaller(t *testing.T) {
	calls := 0
	router := newIdempotentRouter(newMemoryResponseStore(), http.StatusOK, &calls)

	postFunds(router, "rider-1", "key-1")
	postFunds(router, "rider-2", "key-1")

	assert.Equal(t, 2, calls)
}

func TestIdempotencyWithoutKey(t *testing.T) {
	calls := 0
	router := newIdempotentRouter(newMemoryResponseStore(), http.StatusOK, &calls)

	postFunds(router, "rider-1", "")
	postFunds(router, "rider-1", "")

	assert.Equal(t, 2, calls)
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	calls := 0
	router := newIdempotentRouter(newMemoryResponseStore(), http.StatusServiceUnavailable, &calls)

	postFunds(router, "rider-1", "key-1")
	postFunds(router, "rider-1", "key-1")

	assert.Equal(t, 2, calls)
}

func TestIdempotencyStoreFailureProceeds(t *testing.T) {
	calls := 0
	store := newMemoryResponseStore()
	store.failGet = true
	router := newIdempotentRouter(store, http.StatusOK, &calls)

	rec := postFunds(router, "rider-1", "key-1")
	postFunds(router, "rider-1", "key-1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, calls)
}
