package store

import (
	"context"
	"database/sql"
	"fmt"

	"ticketing-service/internal/fault"
	"ticketing-service/internal/models"
)

// InsertPayment persists a charge attempt under its unique reference. The
// insert races through ON CONFLICT DO NOTHING and the winning row is read
// back, so concurrent duplicates with the same reference always collapse to
// exactly one record. The returned bool is true when this call created it.
func (s *Store) InsertPayment(ctx context.Context, payment *models.Payment) (bool, error) {
	query := `
		INSERT INTO payments (order_id, amount, method, status, reference, tx_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (reference) DO NOTHING
		RETURNING payment_id, created_at`

	err := s.db.QueryRowxContext(ctx, query,
		payment.OrderID, payment.Amount, payment.Method, payment.Status, payment.Reference, payment.TxID).
		Scan(&payment.PaymentID, &payment.CreatedAt)
	if err == nil {
		return true, nil
	}
	if err != sql.ErrNoRows {
		return false, fmt.Errorf("failed to insert payment: %w", err)
	}

	// Lost the race: someone else owns the reference.
	existing, err := s.GetPaymentByReference(ctx, payment.Reference)
	if err != nil {
		return false, err
	}
	*payment = *existing
	return false, nil
}

// GetPaymentByReference retrieves a payment by its idempotency reference
func (s *Store) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE reference = $1", reference)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment reference %q: %w", reference, fault.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetPaymentByID retrieves a payment by ID
func (s *Store) GetPaymentByID(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payments WHERE payment_id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("payment %d: %w", id, fault.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkPaymentRefunded transitions SUCCESS to REFUNDED. A missing payment
// reports ErrNotFound; any other current status leaves the row untouched and
// reports ErrInvalidState.
func (s *Store) MarkPaymentRefunded(ctx context.Context, paymentID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payments SET status = $1 WHERE payment_id = $2 AND status = $3",
		models.PaymentRefunded, paymentID, models.PaymentSuccess)
	if err != nil {
		return fmt.Errorf("failed to refund payment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var status string
	err = s.db.GetContext(ctx, &status,
		"SELECT status FROM payments WHERE payment_id = $1", paymentID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("payment %d: %w", paymentID, fault.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check payment: %w", err)
	}
	return fmt.Errorf("payment %d is %s: %w", paymentID, status, fault.ErrInvalidState)
}
