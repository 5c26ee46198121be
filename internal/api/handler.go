package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
	"ticketing-service/internal/service"
	"ticketing-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderAPI is the saga surface the handlers call.
type OrderAPI interface {
	CreateOrder(ctx context.Context, req *service.CreateOrderRequest) (*models.Order, []models.Ticket, error)
	CancelOrder(ctx context.Context, orderID int64) (*models.Order, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, []models.Ticket, error)
	ListUserOrders(ctx context.Context, userID int64) ([]models.Order, error)
}

// SeatAPI is the read-only seat surface.
type SeatAPI interface {
	Availability(ctx context.Context, eventID int64) ([]models.Seat, error)
}

// PaymentAPI is the explicit refund surface.
type PaymentAPI interface {
	Refund(ctx context.Context, paymentID int64) (*models.Payment, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orders   OrderAPI
	seats    SeatAPI
	payments PaymentAPI
}

// NewHandler creates a new HTTP handler
func NewHandler(orders OrderAPI, seats SeatAPI, payments PaymentAPI) *Handler {
	return &Handler{orders: orders, seats: seats, payments: payments}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders", h.createOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.GET("/users/:id/orders", h.listUserOrders)
		v1.GET("/events/:id/seats", h.seatAvailability)
		v1.POST("/payments/:id/refund", h.refundPayment)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// createOrder handles order creation. An Idempotency-Key header is honored
// end to end for the payment step.
func (h *Handler) createOrder(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	order, tickets, err := h.orders.CreateOrder(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order":   order,
		"tickets": tickets,
	})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "order canceled",
		"order":   order,
	})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := pathID(c)
	if !ok {
		return
	}

	order, tickets, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   order,
		"tickets": tickets,
	})
}

func (h *Handler) listUserOrders(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	orders, err := h.orders.ListUserOrders(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) seatAvailability(c *gin.Context) {
	eventID, ok := pathID(c)
	if !ok {
		return
	}

	seats, err := h.seats.Availability(c.Request.Context(), eventID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":    eventID,
		"total_seats": len(seats),
		"seats":       seats,
	})
}

func (h *Handler) refundPayment(c *gin.Context) {
	paymentID, ok := pathID(c)
	if !ok {
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), paymentID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "payment refunded",
		"payment": payment,
	})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// respondError maps the error taxonomy onto HTTP statuses. Anything
// outside the taxonomy surfaces as a generic 500 without internal detail.
func respondError(c *gin.Context, err error) {
	var conflict *fault.SeatConflictError

	switch {
	case errors.Is(err, fault.ErrInvalidRequest), errors.Is(err, fault.ErrMissingIdempotencyKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":    "seats not available",
			"seat_ids": conflict.SeatIDs,
		})
	case errors.Is(err, fault.ErrSeatUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": "seats not available"})
	case errors.Is(err, fault.ErrKeyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "idempotency key already used by another order"})
	case errors.Is(err, fault.ErrPaymentDeclined):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment declined"})
	case errors.Is(err, fault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, fault.ErrInvalidState):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, fault.ErrDependencyUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry later"})
	case errors.Is(err, fault.ErrInconsistent):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "order state requires reconciliation"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
