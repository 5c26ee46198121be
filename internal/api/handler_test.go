package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrders struct {
	createErr error
	cancelErr error
	lastKey   string
}

func (s *stubOrders) CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.Order, []models.Ticket, error) {
	s.lastKey = req.IdempotencyKey
	if s.createErr != nil {
		return nil, nil, s.createErr
	}
	return &models.Order{OrderID: 1, UserID: req.UserID, EventID: req.EventID,
			Status: models.OrderConfirmed, PaymentStatus: models.OrderPaymentSuccess, OrderTotal: 131.25},
		[]models.Ticket{{TicketID: 1, OrderID: 1, SeatID: req.SeatIDs[0]}}, nil
}

func (s *stubOrders) CancelOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	if s.cancelErr != nil {
		return nil, s.cancelErr
	}
	return &models.Order{OrderID: orderID, Status: models.OrderCanceled}, nil
}

func (s *stubOrders) GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.Ticket, error) {
	if orderID == 404 {
		return nil, nil, fmt.Errorf("order %d: %w", orderID, fault.ErrNotFound)
	}
	return &models.Order{OrderID: orderID, Status: models.OrderConfirmed}, nil, nil
}

func (s *stubOrders) ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error) {
	return []models.Order{{OrderID: 1, UserID: userID}}, nil
}

type stubSeats struct{}

func (stubSeats) Availability(ctx context.Context, eventID int64) ([]models.Seat, error) {
	return []models.Seat{
		{SeatID: 1, EventID: eventID, Status: models.SeatAvailable},
		{SeatID: 2, EventID: eventID, Status: models.SeatAllocated},
	}, nil
}

type stubPayments struct {
	refundErr error
}

func (s *stubPayments) Refund(ctx context.Context, paymentID int64) (*models.Payment, error) {
	if s.refundErr != nil {
		return nil, s.refundErr
	}
	return &models.Payment{PaymentID: paymentID, Status: models.PaymentRefunded}, nil
}

func newTestRouter(orders *stubOrders, payments *stubPayments) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewHandler(orders, stubSeats{}, payments).SetupRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderEndpoint(t *testing.T) {
	orders := &stubOrders{}
	router := newTestRouter(orders, &stubPayments{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", gin.H{
		"user_id":  7,
		"event_id": 1,
		"seat_ids": []int64{1, 2},
	}, map[string]string{"Idempotency-Key": "header-key"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "header-key", orders.lastKey, "header key reaches the payment step")

	var resp struct {
		Order   models.Order    `json:"order"`
		Tickets []models.Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.OrderConfirmed, resp.Order.Status)
	assert.Len(t, resp.Tickets, 1)
}

func TestCreateOrderEndpointBadBody(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"invalid request", fault.ErrInvalidRequest, http.StatusBadRequest},
		{"missing key", fault.ErrMissingIdempotencyKey, http.StatusBadRequest},
		{"seat conflict", &fault.SeatConflictError{SeatIDs: []int64{42}}, http.StatusConflict},
		{"key conflict", fault.ErrKeyConflict, http.StatusConflict},
		{"payment declined", fault.ErrPaymentDeclined, http.StatusPaymentRequired},
		{"not found", fault.ErrNotFound, http.StatusNotFound},
		{"invalid state", fault.ErrInvalidState, http.StatusUnprocessableEntity},
		{"dependency down", fault.ErrDependencyUnavailable, http.StatusServiceUnavailable},
		{"inconsistent", fault.ErrInconsistent, http.StatusInternalServerError},
		{"unclassified", fmt.Errorf("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(&stubOrders{createErr: tc.err}, &stubPayments{})
			rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", gin.H{
				"user_id": 7, "event_id": 1, "seat_ids": []int64{1},
			}, nil)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestSeatConflictResponseCarriesSeatIDs(t *testing.T) {
	router := newTestRouter(&stubOrders{
		createErr: &fault.SeatConflictError{SeatIDs: []int64{42, 43}},
	}, &stubPayments{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", gin.H{
		"user_id": 7, "event_id": 1, "seat_ids": []int64{42, 43},
	}, nil)

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp struct {
		SeatIDs []int64 `json:"seat_ids"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []int64{42, 43}, resp.SeatIDs)
}

func TestCancelOrderEndpoint(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/5/cancel", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/orders/abc/cancel", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelTerminalOrderEndpoint(t *testing.T) {
	router := newTestRouter(&stubOrders{
		cancelErr: fmt.Errorf("order 5 is CONFIRMED: %w", fault.ErrInvalidState),
	}, &stubPayments{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders/5/cancel", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetOrderEndpoint(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/5", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/v1/orders/404", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSeatAvailabilityEndpoint(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/events/1/seats", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		TotalSeats int           `json:"total_seats"`
		Seats      []models.Seat `json:"seats"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.TotalSeats)
}

func TestRefundEndpoint(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})
	rec := doJSON(t, router, http.MethodPost, "/api/v1/payments/3/refund", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	router = newTestRouter(&stubOrders{}, &stubPayments{
		refundErr: fmt.Errorf("payment 3 is REFUNDED: %w", fault.ErrInvalidState),
	})
	rec = doJSON(t, router, http.MethodPost, "/api/v1/payments/3/refund", nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(&stubOrders{}, &stubPayments{})

	rec := doJSON(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
