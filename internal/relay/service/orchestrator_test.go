package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/escalation"
)

func TestOptInGrantedWithinWindow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.lifecycle.NewOrder(ctx, OrderInput{Phone: testPhone, CustomerName: "Jane", OrderNumber: "A100"}); err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	h.clock.Advance(23 * time.Hour)

	outcome, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "+16502530001", "  yes ")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeOptInConfirmed {
		t.Fatalf("expected opt-in confirmation, got %s", outcome.Kind)
	}
	if !h.store.customer(testPhone).OptedIn {
		t.Fatalf("expected customer to be opted in")
	}
	if h.classifier.calls() != 0 {
		t.Fatalf("opt-in must not reach the classifier")
	}
	if last := h.store.lastTurn(); last.Intent != domain.IntentOptInConfirmed {
		t.Fatalf("expected OPT_IN_CONFIRMED turn, got %q", last.Intent)
	}
	msgs := h.messenger.messages()
	if len(msgs) != 2 || !strings.Contains(msgs[1].Body, "opted in") {
		t.Fatalf("expected opt-in request and confirmation, got %+v", msgs)
	}
	if !containsEvent(h.fanout.types(), EventOptInConfirmed) {
		t.Fatalf("expected opt_in_confirmed event")
	}
}

func TestOptInRejectedOutsideWindow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	if _, err := h.lifecycle.NewOrder(ctx, OrderInput{Phone: testPhone, CustomerName: "Jane", OrderNumber: "A100"}); err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	h.clock.Advance(25 * time.Hour)
	sentBefore := len(h.messenger.messages())

	outcome, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "", "YES")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNotOptedIn {
		t.Fatalf("expected message to be dropped, got %s", outcome.Kind)
	}
	if h.store.customer(testPhone).OptedIn {
		t.Fatalf("stale YES must not opt the customer in")
	}
	if len(h.messenger.messages()) != sentBefore {
		t.Fatalf("expected no outbound message")
	}
}

func TestOptInRequiresExactKeyword(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if _, err := h.lifecycle.NewOrder(ctx, OrderInput{Phone: testPhone, CustomerName: "Jane", OrderNumber: "A100"}); err != nil {
		t.Fatalf("NewOrder: %v", err)
	}

	outcome, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "", "yes please")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNotOptedIn || h.store.customer(testPhone).OptedIn {
		t.Fatalf("expected non-exact reply to be ignored, got %s", outcome.Kind)
	}
}

func TestNonOptedInCustomerIsSilentlyDropped(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if _, err := h.lifecycle.NewOrder(ctx, OrderInput{Phone: testPhone, CustomerName: "Jane", OrderNumber: "A100"}); err != nil {
		t.Fatalf("NewOrder: %v", err)
	}
	turns, sent := h.store.turnCount(), len(h.messenger.messages())
	status := h.store.order("A100").Status

	outcome, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "", "I'm in spot 4")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNotOptedIn {
		t.Fatalf("expected drop, got %s", outcome.Kind)
	}
	if h.store.turnCount() != turns || len(h.messenger.messages()) != sent || h.store.order("A100").Status != status {
		t.Fatalf("dropped message must not change state or send anything")
	}
	if h.classifier.calls() != 0 {
		t.Fatalf("dropped message must not reach the classifier")
	}
}

func TestUnknownCustomerIsDropped(t *testing.T) {
	h := newHarness()
	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "YES")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNotOptedIn || len(h.messenger.messages()) != 0 {
		t.Fatalf("expected unknown customer to be dropped, got %+v", outcome)
	}
}

func TestNoActiveOrderIsDropped(t *testing.T) {
	h := newHarness()
	h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderCompleted)

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "hello?")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Kind != OutcomeIgnoredNoActiveOrder || len(h.messenger.messages()) != 0 {
		t.Fatalf("expected drop without active order, got %+v", outcome)
	}
}

func TestArrivalMovesOrderToCustomerArrived(t *testing.T) {
	for _, start := range []domain.OrderStatus{domain.OrderNew, domain.OrderReadyForPickup, domain.OrderCustomerArrived} {
		h := newHarness()
		h.store.seedOptedIn(testPhone, "Jane", "A100", start)
		h.classifier.actions = []domain.Action{scripted(domain.ActionArrival, "Thanks Jane, we're on our way!", "7")}

		outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "I'm in spot 7")
		if err != nil {
			t.Fatalf("HandleInboundMessage: %v", err)
		}
		if outcome.Kind != OutcomeHandled || outcome.Action.Kind != domain.ActionArrival {
			t.Fatalf("unexpected outcome %+v", outcome)
		}
		if got := h.store.order("A100").Status; got != domain.OrderCustomerArrived {
			t.Fatalf("from %s: expected CUSTOMER_ARRIVED, got %s", start, got)
		}
		alerts := h.staff.all()
		if len(alerts) != 1 || !strings.Contains(alerts[0].Body, "Spot 7") || !strings.Contains(alerts[0].Body, "Order #A100") {
			t.Fatalf("expected staff arrival alert with spot, got %+v", alerts)
		}
		if h.store.lastTurn().ParkingSpot != "7" {
			t.Fatalf("expected parking spot to be logged on the turn")
		}
	}
}

func TestOrderReceivedCompletesOrder(t *testing.T) {
	h := newHarness()
	h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderCustomerArrived)
	h.classifier.actions = []domain.Action{scripted(domain.ActionOrderReceived, "Enjoy! Leave us a review.", "")}

	if _, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "got it, thanks"); err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if got := h.store.order("A100").Status; got != domain.OrderCompleted {
		t.Fatalf("expected COMPLETED, got %s", got)
	}
	if !containsEvent(h.fanout.types(), EventOrderCompleted) {
		t.Fatalf("expected order_completed event")
	}
}

func TestComplaintWithoutSpotAsksForLocation(t *testing.T) {
	h := newHarness()
	h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderReadyForPickup)
	h.classifier.actions = []domain.Action{scripted(domain.ActionComplaint, "So sorry, escalating now.", "")}

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "this is taking forever")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if outcome.Escalated || len(h.voice.calls) != 0 {
		t.Fatalf("expected no voice escalation without a known spot")
	}
	msgs := h.messenger.messages()
	if len(msgs) != 1 || msgs[0].Body != escalation.AskForSpotResponse {
		t.Fatalf("expected parking spot request, got %+v", msgs)
	}
	if got := h.store.order("A100").Status; got != domain.OrderReadyForPickup {
		t.Fatalf("complaint must not change status, got %s", got)
	}
	if !containsEvent(h.fanout.types(), EventComplaintNoParkingSpot) {
		t.Fatalf("expected complaint_no_parking_spot event")
	}
}

func TestComplaintUsesSpotFromHistoryNotMessage(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	customer, order := h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderCustomerArrived)
	_, _ = h.store.AppendTurn(ctx, domain.Turn{CustomerID: &customer.ID, OrderID: &order.ID, Phone: testPhone, Direction: domain.DirectionInbound, ParkingSpot: "7"})
	h.classifier.actions = []domain.Action{scripted(domain.ActionComplaint, "So sorry, getting the manager.", "9")}

	outcome, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "", "I'm in spot 9 and nobody came!")
	if err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if !outcome.Escalated {
		t.Fatalf("expected escalation")
	}
	if len(h.voice.calls) != 1 {
		t.Fatalf("expected exactly one voice call, got %d", len(h.voice.calls))
	}
	if got := h.voice.calls[0].ParkingSpot; got != "7" {
		t.Fatalf("expected history spot 7, got %q", got)
	}
	if outcome.Response != "So sorry, getting the manager." {
		t.Fatalf("expected classifier response to be kept, got %q", outcome.Response)
	}
}

func TestClassifierFailureFallsBackToGeneral(t *testing.T) {
	h := newHarness()
	h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderReadyForPickup)
	h.classifier.err = errors.New("model unavailable")

	outcome, err := h.orchestrator.HandleInboundMessage(context.Background(), testPhone, "", "hi")
	if err != nil {
		t.Fatalf("classifier failure must not surface: %v", err)
	}
	if outcome.Action.Kind != domain.ActionGeneral || !outcome.Action.Fallback {
		t.Fatalf("expected fallback general action, got %+v", outcome.Action)
	}
	msgs := h.messenger.messages()
	if len(msgs) != 1 || msgs[0].Body != domain.FallbackGreeting {
		t.Fatalf("expected fallback greeting, got %+v", msgs)
	}
}

func TestHandledMessageProducesOneTurnOneReplyOneEvent(t *testing.T) {
	h := newHarness()
	h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderReadyForPickup)
	h.classifier.actions = []domain.Action{scripted(domain.ActionGeneral, "We open at 8am.", "")}
	turns := h.store.turnCount()

	if _, err := h.orchestrator.HandleInboundMessage(context.Background(), "(650) 253-0000", "", "when do you open?"); err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	if h.store.turnCount() != turns+1 {
		t.Fatalf("expected exactly one turn")
	}
	if len(h.messenger.messages()) != 1 || h.messenger.messages()[0].To != testPhone {
		t.Fatalf("expected one reply to the normalized phone")
	}
	if events := h.fanout.types(); len(events) != 1 || events[0] != EventGeneralInquiry {
		t.Fatalf("expected one general_inquiry event, got %v", events)
	}
	last := h.store.lastTurn()
	if last.Intent != string(domain.ActionGeneral) || last.MessageContent != "when do you open?" || last.ResponseText != "We open at 8am." {
		t.Fatalf("unexpected turn %+v", last)
	}
}

func TestClassifierReceivesRecentHistory(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	customer, order := h.store.seedOptedIn(testPhone, "Jane", "A100", domain.OrderReadyForPickup)
	for i := 0; i < 7; i++ {
		h.clock.Advance(time.Minute)
		_, _ = h.store.AppendTurn(ctx, domain.Turn{CustomerID: &customer.ID, OrderID: &order.ID, Phone: testPhone, Direction: domain.DirectionInbound, MessageContent: string(rune('a' + i))})
	}
	h.classifier.actions = []domain.Action{scripted(domain.ActionGeneral, "ok", "")}

	if _, err := h.orchestrator.HandleInboundMessage(ctx, testPhone, "", "hello"); err != nil {
		t.Fatalf("HandleInboundMessage: %v", err)
	}
	req := h.classifier.requests[0]
	if len(req.History) != historyLimit {
		t.Fatalf("expected %d turns of history, got %d", historyLimit, len(req.History))
	}
	if req.History[0].MessageContent != "c" || req.History[4].MessageContent != "g" {
		t.Fatalf("expected oldest-first window c..g, got %q..%q", req.History[0].MessageContent, req.History[4].MessageContent)
	}
}
