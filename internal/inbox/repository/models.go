package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Reader is the read-only view dashboards query.
type Reader interface {
	ListConversations(ctx context.Context, limit, offset int) ([]ConversationSummary, error)
	ListTurns(ctx context.Context, phone string) ([]TurnRow, error)
	ListCalls(ctx context.Context, phone string) ([]CallRow, error)
	ListCustomers(ctx context.Context) ([]CustomerSummary, error)
	GetCustomer(ctx context.Context, phone string) (CustomerRow, error)
	ListOrders(ctx context.Context, phone string) ([]OrderRow, error)
	ConversationStats(ctx context.Context, phone string) (ConversationStats, error)
	CallStats(ctx context.Context, phone string) (CallStats, error)
	StatsReader
	Search(ctx context.Context, pattern string, limit, offset int) ([]SearchHit, error)
}

// StatsReader computes platform-wide aggregates. since is the start of the
// trailing 24 hour window; week is the start of the trailing 7 days.
type StatsReader interface {
	CustomerTotals(ctx context.Context, since, week time.Time) (CustomerTotals, error)
	OrderTotals(ctx context.Context, since time.Time) (OrderTotals, error)
	TurnTotals(ctx context.Context, since time.Time) (TurnTotals, error)
	CallTotals(ctx context.Context, since time.Time) (CallTotals, error)
}

type CustomerRow struct {
	ID        uuid.UUID
	Phone     string
	Name      string
	OptedIn   bool
	OptedInAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ConversationSummary is a customer with their most recent turn, if any.
type ConversationSummary struct {
	Customer      CustomerRow
	LastMessage   *string
	LastResponse  *string
	LastMessageAt *time.Time
	Sentiment     *string
	ParkingSpot   *string
	OrderNumber   *string
	StoreName     *string
	StoreAddress  *string
	OrderStatus   *string
	MessageCount  int64
}

type TurnRow struct {
	ID             uuid.UUID
	Phone          string
	Direction      string
	Intent         string
	MessageContent string
	ResponseText   string
	Sentiment      string
	ParkingSpot    *string
	CreatedAt      time.Time
	CustomerName   *string
	OrderNumber    *string
	StoreName      *string
	OrderStatus    *string
}

type CallRow struct {
	ID              uuid.UUID
	CallID          string
	Phone           string
	Status          string
	Transcript      string
	Summary         string
	DurationSeconds int
	EndedReason     string
	CreatedAt       time.Time
	EndedAt         *time.Time
	OrderNumber     *string
	CustomerName    *string
	StoreName       *string
}

type CustomerSummary struct {
	Customer      CustomerRow
	TotalOrders   int64
	LastOrderDate *time.Time
}

type OrderRow struct {
	ID            uuid.UUID
	OrderNumber   string
	CustomerPhone string
	CustomerName  string
	StoreName     string
	StoreAddress  string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ConversationStats struct {
	TotalMessages    int64
	InboundMessages  int64
	PositiveMessages int64
	NegativeMessages int64
	FirstAt          *time.Time
	LastAt           *time.Time
}

type CallStats struct {
	TotalCalls    int64
	TotalDuration int64
	LastCallAt    *time.Time
}

type CustomerTotals struct {
	Total   int64
	OptedIn int64
	New24h  int64
	New7d   int64
}

type OrderTotals struct {
	Total     int64
	New       int64
	Ready     int64
	Arrived   int64
	Completed int64
	Last24h   int64
}

type TurnTotals struct {
	Total    int64
	Inbound  int64
	Positive int64
	Negative int64
	Last24h  int64
}

type CallTotals struct {
	Total         int64
	Completed     int64
	TotalDuration int64
	AvgDuration   float64
	Last24h       int64
}

// SearchHit is one matching turn or call. Kind is "sms" or "voice_call".
type SearchHit struct {
	Kind         string
	Phone        string
	CustomerName *string
	Content      string
	Response     string
	CreatedAt    time.Time
	OrderNumber  *string
	StoreName    *string
	OrderStatus  *string
}
