package models

import "time"

// Seat represents one sellable seat of an event. Price is fixed at catalog
// time; status is the only mutable column and moves only through the seat
// store's conditional transitions.
type Seat struct {
	SeatID  int64   `db:"seat_id" json:"seat_id"`
	EventID int64   `db:"event_id" json:"event_id"`
	Section string  `db:"section" json:"section"`
	Row     string  `db:"row" json:"row"`
	Number  string  `db:"number" json:"number"`
	Price   float64 `db:"price" json:"price"`
	Status  string  `db:"status" json:"status"`
}

// Seat statuses
const (
	SeatAvailable = "AVAILABLE"
	SeatReserved  = "RESERVED"
	SeatAllocated = "ALLOCATED"
)

// Order represents a customer order. Status is terminal once CONFIRMED or
// CANCELED; OrderTotal is computed once from reservation-time prices.
type Order struct {
	OrderID       int64     `db:"order_id" json:"order_id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	EventID       int64     `db:"event_id" json:"event_id"`
	Status        string    `db:"status" json:"status"`
	PaymentStatus string    `db:"payment_status" json:"payment_status"`
	OrderTotal    float64   `db:"order_total" json:"order_total"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Order statuses
const (
	OrderPending   = "PENDING"
	OrderConfirmed = "CONFIRMED"
	OrderCanceled  = "CANCELED"
)

// Order payment statuses
const (
	OrderPaymentPending = "PENDING"
	OrderPaymentSuccess = "SUCCESS"
	OrderPaymentFailed  = "FAILED"
)

// Ticket is issued per allocated seat of a confirmed order. Never mutated.
type Ticket struct {
	TicketID  int64   `db:"ticket_id" json:"ticket_id"`
	OrderID   int64   `db:"order_id" json:"order_id"`
	EventID   int64   `db:"event_id" json:"event_id"`
	SeatID    int64   `db:"seat_id" json:"seat_id"`
	PricePaid float64 `db:"price_paid" json:"price_paid"`
}

// Payment is one charge attempt keyed by its idempotency reference. At most
// one row ever exists per reference; FAILED never becomes SUCCESS.
type Payment struct {
	PaymentID int64     `db:"payment_id" json:"payment_id"`
	OrderID   int64     `db:"order_id" json:"order_id"`
	Amount    float64   `db:"amount" json:"amount"`
	Method    string    `db:"method" json:"method"`
	Status    string    `db:"status" json:"status"`
	Reference string    `db:"reference" json:"reference"`
	TxID      string    `db:"tx_id" json:"tx_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Payment statuses
const (
	PaymentSuccess  = "SUCCESS"
	PaymentFailed   = "FAILED"
	PaymentRefunded = "REFUNDED"
)

// Saga is the persisted checkpoint of one order workflow. It lets a crashed
// coordinator resume or compensate, and is the source of seat ids when a
// PENDING order is canceled before any ticket exists.
type Saga struct {
	SagaID         string    `db:"saga_id" json:"saga_id"`
	OrderID        int64     `db:"order_id" json:"order_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	EventID        int64     `db:"event_id" json:"event_id"`
	SeatIDs        []int64   `db:"-" json:"seat_ids"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key"`
	Step           string    `db:"step" json:"step"`
	LastError      string    `db:"last_error" json:"last_error,omitempty"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Saga steps. RESERVING through NOTIFYING are the forward path; COMPENSATING
// is the failure branch; DONE and CANCELED are terminal.
const (
	SagaReserving    = "RESERVING"
	SagaCharging     = "CHARGING"
	SagaAllocating   = "ALLOCATING"
	SagaIssuing      = "ISSUING"
	SagaNotifying    = "NOTIFYING"
	SagaDone         = "DONE"
	SagaCompensating = "COMPENSATING"
	SagaCanceled     = "CANCELED"
)

// SagaTerminal reports whether a step is terminal.
func SagaTerminal(step string) bool {
	return step == SagaDone || step == SagaCanceled
}
