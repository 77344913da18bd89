// Package escalation decides whether a complaint goes to the store manager.
// A call is only placed once the customer's parking spot is known from
// conversation history.
package escalation

import (
	"context"
	"fmt"

	"curbside_relay/internal/relay/domain"
)

// AskForSpotResponse replaces the classifier's reply when no parking spot is
// on record.
const AskForSpotResponse = "I understand you're frustrated. To help you as quickly as possible, please let me know your parking spot number so I can escalate this to the store manager."

// SpotHistory is the slice of the store the policy consults.
type SpotHistory interface {
	LatestParkingSpot(ctx context.Context, phone string) (spot string, ok bool, err error)
}

// Decision is the policy result for one complaint.
type Decision struct {
	Response         string
	TriggerVoiceCall bool
	// ParkingSpot is resolved from history, never from the current message.
	ParkingSpot string
}

type Policy struct {
	history SpotHistory
}

func New(history SpotHistory) *Policy {
	return &Policy{history: history}
}

// EvaluateComplaint applies the location gate to a classified complaint.
// On a lookup error the returned decision is the no-spot branch, alongside
// the error.
func (p *Policy) EvaluateComplaint(ctx context.Context, phone string, action domain.Action) (Decision, error) {
	askForSpot := Decision{Response: AskForSpotResponse}

	spot, ok, err := p.history.LatestParkingSpot(ctx, phone)
	if err != nil {
		return askForSpot, fmt.Errorf("lookup parking spot: %w", err)
	}
	if !ok || spot == "" {
		return askForSpot, nil
	}

	return Decision{
		Response:         action.Response,
		TriggerVoiceCall: true,
		ParkingSpot:      spot,
	}, nil
}
