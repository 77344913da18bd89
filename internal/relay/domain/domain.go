// Package domain holds the curbside relay's core types: customers, orders,
// conversation turns, voice escalations and the closed set of actions the
// classifier may resolve a message to.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderNew             OrderStatus = "NEW"
	OrderReadyForPickup  OrderStatus = "READY_FOR_PICKUP"
	OrderCustomerArrived OrderStatus = "CUSTOMER_ARRIVED"
	OrderCompleted       OrderStatus = "COMPLETED"
)

// IsTerminal reports whether the order no longer counts as active.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderNew, OrderReadyForPickup, OrderCustomerArrived, OrderCompleted:
		return true
	}
	return false
}

// Direction marks who produced a conversation turn.
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
	DirectionSystem   Direction = "SYSTEM"
)

// Sentiment is the detected tone of an inbound message.
type Sentiment string

const (
	SentimentPositive Sentiment = "POSITIVE"
	SentimentNeutral  Sentiment = "NEUTRAL"
	SentimentNegative Sentiment = "NEGATIVE"
)

// ParseSentiment maps free text to a Sentiment, defaulting to neutral.
func ParseSentiment(raw string) Sentiment {
	switch Sentiment(strings.ToUpper(strings.TrimSpace(raw))) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// EscalationStatus tracks a voice escalation call.
type EscalationStatus string

const (
	EscalationInitiated EscalationStatus = "INITIATED"
	EscalationCompleted EscalationStatus = "COMPLETED"
)

// Intents recorded on turns that are not classifier actions.
const (
	IntentOptInRequest   = "OPT_IN_REQUEST"
	IntentOptInConfirmed = "OPT_IN_CONFIRMED"
	IntentReadyForPickup = "READY_FOR_PICKUP_NOTICE"
	IntentCallSummary    = "VOICE_CALL_SUMMARY"
	IntentReviewRequest  = "REVIEW_REQUEST"
	IntentManual         = "MANUAL"
)

// NewOrderMarker is the message content logged alongside an opt-in request.
const NewOrderMarker = "NEW_ORDER_CREATED"

// Customer is identified by phone number.
type Customer struct {
	ID        uuid.UUID
	Phone     string
	Name      string
	OptedIn   bool
	OptedInAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DisplayName falls back to a generic label when no name is known.
func (c Customer) DisplayName() string {
	if strings.TrimSpace(c.Name) == "" {
		return "Customer"
	}
	return c.Name
}

// Order is a pickup order. Only the most recent non-terminal order of a
// customer is considered active.
type Order struct {
	ID            uuid.UUID
	OrderNumber   string
	CustomerID    *uuid.UUID
	CustomerPhone string
	CustomerName  string
	StoreName     string
	StoreAddress  string
	Status        OrderStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Turn is one append-only unit of conversation history.
type Turn struct {
	ID             uuid.UUID
	CustomerID     *uuid.UUID
	OrderID        *uuid.UUID
	Phone          string
	Direction      Direction
	Intent         string
	MessageContent string
	ResponseText   string
	Sentiment      Sentiment
	ParkingSpot    string
	CreatedAt      time.Time
}

// VoiceEscalation is an outbound call to the store manager.
type VoiceEscalation struct {
	ID              uuid.UUID
	OrderID         *uuid.UUID
	Phone           string
	CallID          string
	Status          EscalationStatus
	Transcript      string
	Summary         string
	DurationSeconds int
	EndedReason     string
	CreatedAt       time.Time
	EndedAt         *time.Time
}

// CallCompletion carries the fields of a voice provider's end-of-call report.
type CallCompletion struct {
	CallID          string
	Transcript      string
	Summary         string
	EndedReason     string
	DurationSeconds int
}
