package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridecontract/internal/config"
	"ridecontract/internal/domain"
	"ridecontract/internal/middleware"
	"ridecontract/internal/repository"
	"ridecontract/internal/service"
	"ridecontract/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	router  *gin.Engine
	fixture *tests.ContractFixture
}

func newTestServer() *testServer {
	fixture := tests.NewContractFixture(service.DefaultPolicy())
	rides := NewRideHandler(fixture.Service)
	ratings := NewRatingHandler(fixture.Service)
	accounts := NewAccountHandler(fixture.Service)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.Use(middleware.CallerMiddleware(middleware.NewCallerAuthenticator(config.AuthConfig{})))
	v1.POST("/rides", rides.CreateRide)
	v1.GET("/rides/:id", rides.GetRide)
	v1.GET("/rides/:id/destination", rides.GetDestination)
	v1.GET("/rides/:id/price", rides.GetPrice)
	v1.GET("/rides/:id/transfers", rides.ListTransfers)
	v1.POST("/rides/:id/accept", rides.AcceptRide)
	v1.POST("/rides/:id/complete", rides.CompleteRide)
	v1.POST("/rides/:id/dispute", rides.DisputeRide)
	v1.POST("/rides/:id/resolve", rides.ResolveDispute)
	v1.POST("/rides/:id/release", rides.ReleasePayment)
	v1.POST("/rides/:id/funds", rides.AddFunds)
	v1.PUT("/rides/:id/price", rides.UpdatePrice)
	v1.POST("/rides/:id/rate-driver", rides.RateDriver)
	v1.GET("/drivers/:id/rating", ratings.GetDriverRating)
	v1.GET("/accounts/:id/balance", accounts.GetBalance)

	return &testServer{router: router, fixture: fixture}
}

func (s *testServer) do(t *testing.T, method, path, caller string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-ID", caller)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createRide(t *testing.T, price uint64) RideResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/rides", "rider-1", CreateRideRequest{Destination: []byte("dest"), Price: price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[RideResponse](t, rec)
}

func TestRideHandler_FullLifecycle(t *testing.T) {
	s := newTestServer()
	ride := s.createRide(t, 100)
	assert.Equal(t, "REQUESTED", ride.State)
	assert.Nil(t, ride.Driver)
	assert.Equal(t, []byte("dest"), ride.Destination)

	rec := s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/funds", "rider-1", AddFundsRequest{Amount: 150})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(150), decode[RideResponse](t, rec).Escrow)

	rec = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/accept", "driver-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	accepted := decode[RideResponse](t, rec)
	require.NotNil(t, accepted.Driver)
	assert.Equal(t, domain.Identity("driver-1"), *accepted.Driver)

	rec = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/complete", "driver-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/rate-driver", "rider-1", map[string]int{"rating": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/release", "rider-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	released := decode[RideResponse](t, rec)
	assert.Zero(t, released.Escrow)
	assert.Nil(t, released.Driver)

	rec = s.do(t, http.MethodGet, "/v1/accounts/driver-1/balance", "driver-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(150), decode[BalanceResponse](t, rec).Balance)

	rec = s.do(t, http.MethodGet, "/v1/drivers/driver-1/rating", "rider-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rating := decode[RatingResponse](t, rec)
	require.NotNil(t, rating.Average)
	assert.Equal(t, domain.Rating(5), *rating.Average)

	rec = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID+"/transfers", "rider-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	transfers := decode[struct {
		Transfers []TransferResponse `json:"transfers"`
	}](t, rec)
	require.Len(t, transfers.Transfers, 2)
	assert.Equal(t, "RELEASE", transfers.Transfers[1].Kind)
}

func TestRideHandler_ErrorMapping(t *testing.T) {
	s := newTestServer()
	ride := s.createRide(t, 100)
	s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/funds", "rider-1", AddFundsRequest{Amount: 150})

	cases := []struct {
		name       string
		method     string
		path       string
		caller     string
		body       any
		wantStatus int
		wantCode   string
	}{
		{"escrow cap", http.MethodPost, "/funds", "rider-1", AddFundsRequest{Amount: 60}, http.StatusUnprocessableEntity, "InvalidWithdrawal"},
		{"not rider", http.MethodPut, "/price", "driver-1", UpdatePriceRequest{Price: 10}, http.StatusForbidden, "NotRider"},
		{"no driver to complete", http.MethodPost, "/complete", "driver-1", nil, http.StatusUnprocessableEntity, "InvalidRide"},
		{"not disputed", http.MethodPost, "/resolve", "rider-1", map[string]bool{"resolved": true}, http.StatusConflict, "AlreadyResolved"},
		{"release without driver", http.MethodPost, "/release", "rider-1", nil, http.StatusConflict, "InvalidBid"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, "/v1/rides/"+ride.ID+tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestRideHandler_BadRequests(t *testing.T) {
	s := newTestServer()
	ride := s.createRide(t, 100)

	rec := s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/resolve", "rider-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/rate-driver", "rider-1", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides", "rider-1", map[string]any{"price": -5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides", "rider-1", CreateRideRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRideHandler_NotFoundAndUnauthenticated(t *testing.T) {
	s := newTestServer()

	rec := s.do(t, http.MethodGet, "/v1/rides/missing", "rider-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/rides", "", CreateRideRequest{Price: 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRideHandler_BusyRide(t *testing.T) {
	s := newTestServer()
	ride := s.createRide(t, 100)
	s.fixture.Locks.Hold(ride.ID)

	rec := s.do(t, http.MethodPost, "/v1/rides/"+ride.ID+"/accept", "driver-1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRideHandler_Reads(t *testing.T) {
	s := newTestServer()
	ride := s.createRide(t, 100)

	rec := s.do(t, http.MethodGet, "/v1/rides/"+ride.ID+"/price", "anyone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(100), decode[map[string]uint64](t, rec)["price"])

	rec = s.do(t, http.MethodGet, "/v1/rides/"+ride.ID+"/destination", "anyone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("dest"), decode[map[string][]byte](t, rec)["destination"])

	rec = s.do(t, http.MethodGet, "/v1/drivers/nobody/rating", "anyone", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decode[RatingResponse](t, rec).Average)
}

func TestMapErrorToHTTPStatus_PayoutOverflow(t *testing.T) {
	err := fmt.Errorf("%w: balance of driver-1", repository.ErrAmountOverflow)
	assert.Equal(t, http.StatusUnprocessableEntity, mapErrorToHTTPStatus(err))
}
