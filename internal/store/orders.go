package store

import (
	"context"
	"database/sql"
	"fmt"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
)

// CreateOrder creates a new PENDING order row
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (user_id, event_id, status, payment_status, order_total)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING order_id, created_at`

	return s.db.QueryRowxContext(ctx, query,
		order.UserID, order.EventID, order.Status, order.PaymentStatus, order.OrderTotal).
		Scan(&order.OrderID, &order.CreatedAt)
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %d: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// SetOrderOutcome moves a PENDING order to a terminal status. CONFIRMED and
// CANCELED are terminal, so the update is conditional on the current status;
// a second call against the same order is a no-op rather than an overwrite.
func (s *Store) SetOrderOutcome(ctx context.Context, orderID int64, status, paymentStatus string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_status = $2 WHERE order_id = $3 AND status = $4",
		status, paymentStatus, orderID, models.OrderPending)
	return err
}

// ConfirmOrderWithTickets flips a PENDING order to CONFIRMED and issues its
// tickets in one transaction, so a ticket exists exactly when its order
// reached CONFIRMED. Re-running it for a resumed saga is harmless: the
// status guard and the (order_id, seat_id) constraint make it a no-op.
func (s *Store) ConfirmOrderWithTickets(ctx context.Context, orderID int64, tickets []models.Ticket) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin confirmation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"UPDATE orders SET status = $1, payment_status = $2 WHERE order_id = $3 AND status = $4",
		models.OrderConfirmed, models.OrderPaymentSuccess, orderID, models.OrderPending)
	if err != nil {
		return fmt.Errorf("failed to confirm order: %w", err)
	}

	for i := range tickets {
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO tickets (order_id, event_id, seat_id, price_paid)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (order_id, seat_id) DO UPDATE SET price_paid = tickets.price_paid
			 RETURNING ticket_id`,
			tickets[i].OrderID, tickets[i].EventID, tickets[i].SeatID, tickets[i].PricePaid).
			Scan(&tickets[i].TicketID)
		if err != nil {
			return fmt.Errorf("failed to issue ticket for seat %d: %w", tickets[i].SeatID, err)
		}
	}

	return tx.Commit()
}

// GetTicketsByOrderID retrieves all tickets for an order
func (s *Store) GetTicketsByOrderID(ctx context.Context, orderID int64) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := s.db.SelectContext(ctx, &tickets,
		"SELECT * FROM tickets WHERE order_id = $1 ORDER BY seat_id", orderID)
	return tickets, err
}
