// Package transport holds request and response shapes for the relay endpoints.
package transport

import (
	"time"

	"curbside_relay/internal/relay/domain"
)

// InboundSMS is the form posted by the messaging provider.
type InboundSMS struct {
	From       string `form:"From"`
	To         string `form:"To"`
	Body       string `form:"Body"`
	MessageSID string `form:"MessageSid"`
}

// CallRef identifies a call in a voice provider payload.
type CallRef struct {
	ID string `json:"id"`
}

// CallReport carries end-of-call fields. The provider sends them either
// nested under "message" or at the top level.
type CallReport struct {
	Type            string   `json:"type,omitempty"`
	Call            *CallRef `json:"call,omitempty"`
	Transcript      string   `json:"transcript,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	EndedReason     string   `json:"endedReason,omitempty"`
	DurationSeconds float64  `json:"durationSeconds,omitempty"`
}

// EndOfCallReport is the provider message type that finalizes a call.
const EndOfCallReport = "end-of-call-report"

// CallEndedRequest accepts both the nested and the flat payload shape.
type CallEndedRequest struct {
	Message *CallReport `json:"message,omitempty"`
	CallReport
}

// MessageType returns the provider message type, preferring the nested value.
func (r CallEndedRequest) MessageType() string {
	if r.Message != nil && r.Message.Type != "" {
		return r.Message.Type
	}
	return r.Type
}

// IsEndOfCall reports whether the payload finalizes the call. Untyped
// payloads are treated as final reports.
func (r CallEndedRequest) IsEndOfCall() bool {
	t := r.MessageType()
	return t == "" || t == EndOfCallReport
}

// Completion merges the nested and flat fields, preferring nested values.
func (r CallEndedRequest) Completion() domain.CallCompletion {
	flat := r.CallReport
	nested := CallReport{}
	if r.Message != nil {
		nested = *r.Message
	}

	callID := ""
	if nested.Call != nil && nested.Call.ID != "" {
		callID = nested.Call.ID
	} else if flat.Call != nil {
		callID = flat.Call.ID
	}

	duration := nested.DurationSeconds
	if duration == 0 {
		duration = flat.DurationSeconds
	}

	return domain.CallCompletion{
		CallID:          callID,
		Transcript:      firstNonEmpty(nested.Transcript, flat.Transcript),
		Summary:         firstNonEmpty(nested.Summary, flat.Summary),
		EndedReason:     firstNonEmpty(nested.EndedReason, flat.EndedReason),
		DurationSeconds: int(duration + 0.5),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// OrderEventRequest is posted by the store order system.
type OrderEventRequest struct {
	CustomerPhone string `json:"customer_phone" validate:"required,phone"`
	CustomerName  string `json:"customer_name" validate:"max=200"`
	OrderID       string `json:"order_id" validate:"required,max=64"`
	StoreName     string `json:"store_name" validate:"max=200"`
	StoreAddress  string `json:"store_address" validate:"max=500"`
}

type SendSMSRequest struct {
	To       string `json:"to" validate:"required,phone"`
	Message  string `json:"message" validate:"required,max=1600"`
	FromName string `json:"from_name" validate:"max=100"`
}

// CustomerResponse is the public view of a customer.
type CustomerResponse struct {
	ID        string     `json:"id"`
	Phone     string     `json:"phone"`
	Name      string     `json:"name"`
	OptedIn   bool       `json:"opted_in"`
	OptedInAt *time.Time `json:"opted_in_at"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewCustomerResponse(c domain.Customer) CustomerResponse {
	return CustomerResponse{
		ID:        c.ID.String(),
		Phone:     c.Phone,
		Name:      c.Name,
		OptedIn:   c.OptedIn,
		OptedInAt: c.OptedInAt,
		CreatedAt: c.CreatedAt,
	}
}
