package escalation

import (
	"context"
	"errors"
	"testing"

	"curbside_relay/internal/relay/domain"
)

type stubHistory struct {
	spot string
	ok   bool
	err  error
}

func (s stubHistory) LatestParkingSpot(context.Context, string) (string, bool, error) {
	return s.spot, s.ok, s.err
}

func complaint(t *testing.T) domain.Action {
	t.Helper()
	action, err := domain.NewAction(domain.ActionComplaint, "So sorry, we're getting a manager now.")
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	action.ParkingSpot = "12"
	return action
}

func TestEvaluateComplaintWithoutSpotAsksForLocation(t *testing.T) {
	p := New(stubHistory{})

	decision, err := p.EvaluateComplaint(context.Background(), "+16502530000", complaint(t))
	if err != nil {
		t.Fatalf("EvaluateComplaint: %v", err)
	}
	if decision.TriggerVoiceCall {
		t.Fatalf("expected no voice call without a known spot")
	}
	if decision.Response != AskForSpotResponse {
		t.Fatalf("expected parking spot request, got %q", decision.Response)
	}
}

func TestEvaluateComplaintUsesSpotFromHistory(t *testing.T) {
	p := New(stubHistory{spot: "7", ok: true})
	action := complaint(t)

	decision, err := p.EvaluateComplaint(context.Background(), "+16502530000", action)
	if err != nil {
		t.Fatalf("EvaluateComplaint: %v", err)
	}
	if !decision.TriggerVoiceCall {
		t.Fatalf("expected voice call when spot is known")
	}
	if decision.ParkingSpot != "7" {
		t.Fatalf("expected history spot 7, got %q", decision.ParkingSpot)
	}
	if decision.Response != action.Response {
		t.Fatalf("expected classifier response to be kept, got %q", decision.Response)
	}
}

func TestEvaluateComplaintLookupErrorNeverEscalates(t *testing.T) {
	p := New(stubHistory{spot: "7", ok: true, err: errors.New("db down")})

	decision, err := p.EvaluateComplaint(context.Background(), "+16502530000", complaint(t))
	if err == nil {
		t.Fatalf("expected lookup error to be returned")
	}
	if decision.TriggerVoiceCall || decision.Response != AskForSpotResponse {
		t.Fatalf("expected no-spot decision on error, got %+v", decision)
	}
}
