package service

import (
	"context"
	"time"

	"curbside_relay/internal/followup"
	"curbside_relay/internal/relay/classifier"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/vapi"
)

// Classifier resolves messages to actions and writes free-form SMS text.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) (domain.Action, error)
	Generate(ctx context.Context, prompt string) (string, error)
}

// Messenger sends an SMS and returns the provider message id.
type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// VoiceCaller places the store manager escalation call.
type VoiceCaller interface {
	CreateEscalationCall(ctx context.Context, call vapi.EscalationContext) (string, error)
}

// Broadcaster fans events out to live observers. Best effort.
type Broadcaster interface {
	Broadcast(eventType, title, message string)
}

// StaffAlerter notifies store staff.
type StaffAlerter interface {
	Alert(ctx context.Context, subject, body string) error
}

// Scheduler runs follow-up jobs after a delay.
type Scheduler interface {
	Schedule(ctx context.Context, job followup.Job, delay time.Duration) error
	Cancel(ctx context.Context, orderKey string) error
}

// Archiver stores finished call transcripts.
type Archiver interface {
	ArchiveCall(ctx context.Context, completion domain.CallCompletion) error
}

// Fanout event types.
const (
	EventOptInConfirmed          = "opt_in_confirmed"
	EventCustomerArrival         = "customer_arrival"
	EventComplaintNoParkingSpot  = "complaint_no_parking_spot"
	EventComplaintEscalation     = "complaint_escalation"
	EventOrderCompleted          = "order_completed"
	EventGeneralInquiry          = "general_inquiry"
	EventNewOrder                = "new_order"
	EventReadyForPickup          = "ready_for_pickup"
	EventVoiceCallInitiated      = "vapi_call_initiated"
	EventManagerCallStartedAlert = "manager_call_started_alert"
	EventVoiceCallEnded          = "vapi_call_ended"
	EventManagerCallEndedAlert   = "manager_call_ended_alert"
	EventReviewRequestSent       = "review_request_sent"
	EventManualMessage           = "custom_sms_sent"
	EventOptInReset              = "opt_in_reset"
)

type noopArchiver struct{}

func (noopArchiver) ArchiveCall(context.Context, domain.CallCompletion) error { return nil }
