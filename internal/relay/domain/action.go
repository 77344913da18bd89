package domain

import (
	"fmt"
	"strings"
)

// ActionKind is the closed set of outcomes the classifier may resolve to.
type ActionKind string

const (
	ActionArrival       ActionKind = "ARRIVAL"
	ActionComplaint     ActionKind = "COMPLAINT"
	ActionOrderReceived ActionKind = "ORDER_RECEIVED"
	ActionGeneral       ActionKind = "GENERAL"
)

// FallbackGreeting is sent when classification fails.
const FallbackGreeting = "Hi! I'm your pickup assistant. How can I help with your pickup today?"

// Action is a resolved classifier result. Only the fields relevant to Kind
// are populated: ParkingSpot for arrivals (and optionally complaints),
// ComplaintReason for complaints.
type Action struct {
	Kind            ActionKind
	Response        string
	ParkingSpot     string
	ComplaintReason string
	Sentiment       Sentiment
	// Fallback is true when the action was substituted after a classifier failure.
	Fallback bool
}

// ParseActionKind maps a raw label to an ActionKind.
func ParseActionKind(raw string) (ActionKind, error) {
	kind := ActionKind(strings.ToUpper(strings.TrimSpace(raw)))
	switch kind {
	case ActionArrival, ActionComplaint, ActionOrderReceived, ActionGeneral:
		return kind, nil
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// NewAction builds a validated action. The response must be non-empty and
// sentiment defaults per kind when unset.
func NewAction(kind ActionKind, response string) (Action, error) {
	if _, err := ParseActionKind(string(kind)); err != nil {
		return Action{}, err
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return Action{}, fmt.Errorf("action %s: empty response", kind)
	}
	return Action{Kind: kind, Response: response, Sentiment: defaultSentiment(kind)}, nil
}

// FallbackGeneral is the action substituted when the classifier fails.
func FallbackGeneral() Action {
	return Action{
		Kind:      ActionGeneral,
		Response:  FallbackGreeting,
		Sentiment: SentimentNeutral,
		Fallback:  true,
	}
}

func defaultSentiment(kind ActionKind) Sentiment {
	switch kind {
	case ActionComplaint:
		return SentimentNegative
	case ActionOrderReceived:
		return SentimentPositive
	default:
		return SentimentNeutral
	}
}
