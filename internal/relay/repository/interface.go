package repository

import (
	"context"
	"errors"
	"time"

	"curbside_relay/internal/relay/domain"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateOrder is returned when the customer already has an active order
// with the same number.
var ErrDuplicateOrder = errors.New("duplicate active order")

// =====================================
// Segregated Interfaces
// =====================================

// CustomerStore reads and mutates customers.
type CustomerStore interface {
	GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error)
	UpsertCustomer(ctx context.Context, phone, name string) (domain.Customer, error)
	MarkOptedIn(ctx context.Context, customerID uuid.UUID, at time.Time) error
	ResetOptIn(ctx context.Context, phone string) (domain.Customer, error)
}

// OrderStore reads and mutates orders.
type OrderStore interface {
	// CreateOrder returns ErrDuplicateOrder when the number is taken by an
	// active order of the same customer.
	CreateOrder(ctx context.Context, params CreateOrderParams) (domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error)
	// ActiveOrder returns the most recent non-COMPLETED order for phone.
	ActiveOrder(ctx context.Context, phone string) (domain.Order, error)
	// LatestOrder returns the most recent order for phone regardless of status.
	LatestOrder(ctx context.Context, phone string) (domain.Order, error)
	OrderByNumber(ctx context.Context, phone, orderNumber string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error
}

// TurnStore is the append-only conversation log. There is deliberately no
// update or delete.
type TurnStore interface {
	AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error)
	// RecentTurns returns up to limit most recent turns, oldest first.
	RecentTurns(ctx context.Context, phone string, limit int) ([]domain.Turn, error)
	// LatestParkingSpot returns the most recent non-null parking spot logged
	// for phone, or ok=false when none exists.
	LatestParkingSpot(ctx context.Context, phone string) (spot string, ok bool, err error)
	// HasOptInRequestSince reports whether a turn whose response carries the
	// opt-in request marker was logged for phone at or after since.
	HasOptInRequestSince(ctx context.Context, phone string, since time.Time) (bool, error)
}

// EscalationStore records voice escalations.
type EscalationStore interface {
	CreateVoiceEscalation(ctx context.Context, esc domain.VoiceEscalation) (domain.VoiceEscalation, error)
	// CompleteVoiceEscalation moves the INITIATED row matching callID to
	// COMPLETED. It returns ErrNotFound when no row matches or the row was
	// already completed.
	CompleteVoiceEscalation(ctx context.Context, completion domain.CallCompletion, endedAt time.Time) (domain.VoiceEscalation, error)
}

// Store combines every persistence concern of the relay.
type Store interface {
	CustomerStore
	OrderStore
	TurnStore
	EscalationStore
}

// CreateOrderParams describes a new order.
type CreateOrderParams struct {
	OrderNumber   string
	CustomerID    *uuid.UUID
	CustomerPhone string
	CustomerName  string
	StoreName     string
	StoreAddress  string
}

// OptInRequestMarker identifies the opt-in request template in logged responses.
const OptInRequestMarker = "Reply YES"
