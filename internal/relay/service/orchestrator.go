package service

import (
	"context"
	"errors"
	"fmt"

	"curbside_relay/internal/relay/classifier"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/repository"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/phone"
)

// OutcomeKind classifies what happened to an inbound message.
type OutcomeKind string

const (
	OutcomeOptInConfirmed       OutcomeKind = "OPT_IN_CONFIRMED"
	OutcomeIgnoredNotOptedIn    OutcomeKind = "IGNORED_NOT_OPTED_IN"
	OutcomeIgnoredNoActiveOrder OutcomeKind = "IGNORED_NO_ACTIVE_ORDER"
	OutcomeHandled              OutcomeKind = "HANDLED"
)

// Outcome is the result of one inbound message.
type Outcome struct {
	Kind      OutcomeKind
	Action    domain.Action
	Response  string
	Escalated bool
}

// Orchestrator turns inbound customer messages into order state changes and
// outbound notifications.
type Orchestrator struct {
	deps  Deps
	voice *VoiceBridge
}

func NewOrchestrator(deps Deps, voice *VoiceBridge) *Orchestrator {
	return &Orchestrator{deps: deps.withDefaults(), voice: voice}
}

// HandleInboundMessage processes one message from a customer. Classifier and
// provider failures are absorbed; only store failures before any side effect
// are returned.
func (o *Orchestrator) HandleInboundMessage(ctx context.Context, from, to, text string) (Outcome, error) {
	customerPhone := phone.NormalizeE164(from)
	log := o.deps.Log.WithContext(ctx).WithPhone(customerPhone)
	log.WebhookReceived("sms", customerPhone, len(text))

	unlock, err := o.deps.Locker.Lock(ctx, "phone:"+customerPhone)
	if err != nil {
		return Outcome{}, fmt.Errorf("lock phone: %w", err)
	}
	defer unlock()

	customer, err := o.deps.Store.GetCustomerByPhone(ctx, customerPhone)
	known := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return Outcome{}, fmt.Errorf("load customer: %w", err)
	}

	if known && !customer.OptedIn && isAffirmative(text) {
		confirmed, err := o.tryConfirmOptIn(ctx, log, customer, text)
		if err != nil {
			return Outcome{}, err
		}
		if confirmed {
			return Outcome{Kind: OutcomeOptInConfirmed, Response: o.deps.Messages.OptInConfirmation()}, nil
		}
	}

	if !known || !customer.OptedIn {
		log.Info("dropping message from customer without opt-in", "known", known)
		return Outcome{Kind: OutcomeIgnoredNotOptedIn}, nil
	}

	order, err := o.deps.Store.ActiveOrder(ctx, customerPhone)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("dropping message without active order")
		return Outcome{Kind: OutcomeIgnoredNoActiveOrder}, nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("load active order: %w", err)
	}

	history, err := o.deps.Store.RecentTurns(ctx, customerPhone, historyLimit)
	if err != nil {
		log.DatabaseError("recent_turns", err)
		history = nil
	}

	action := o.classify(ctx, log, classifier.Request{
		Text:     text,
		Customer: customer,
		Order:    order,
		History:  history,
	})

	result := o.dispatch(ctx, log, customer, order, action)

	if _, err := o.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:     &customer.ID,
		OrderID:        &order.ID,
		Phone:          customerPhone,
		Direction:      domain.DirectionInbound,
		Intent:         string(action.Kind),
		MessageContent: text,
		ResponseText:   result.response,
		Sentiment:      action.Sentiment,
		ParkingSpot:    result.turnSpot,
	}); err != nil {
		log.DatabaseError("append_turn", err)
	}

	if _, err := o.deps.Messenger.Send(ctx, customerPhone, result.response); err != nil {
		log.OutboundFailed("sms", "reply", err)
	}

	o.deps.Fanout.Broadcast(result.event, result.title, result.message)

	if result.escalate && o.voice != nil {
		if _, err := o.voice.InitiateEscalation(ctx, order, customer, text, result.escalationSpot); err != nil {
			log.Warn("escalation not started", "order", order.OrderNumber, "error", err)
		}
	}

	return Outcome{
		Kind:      OutcomeHandled,
		Action:    action,
		Response:  result.response,
		Escalated: result.escalate,
	}, nil
}

// tryConfirmOptIn grants opt-in when a request was sent inside the window.
func (o *Orchestrator) tryConfirmOptIn(ctx context.Context, log *logger.Logger, customer domain.Customer, text string) (bool, error) {
	now := o.deps.Now()
	requested, err := o.deps.Store.HasOptInRequestSince(ctx, customer.Phone, now.Add(-o.deps.OptInWindow))
	if err != nil {
		return false, fmt.Errorf("check opt-in request: %w", err)
	}
	if !requested {
		log.Info("affirmative reply without a recent opt-in request")
		return false, nil
	}

	if err := o.deps.Store.MarkOptedIn(ctx, customer.ID, now); err != nil {
		return false, fmt.Errorf("mark opted in: %w", err)
	}

	confirmation := o.deps.Messages.OptInConfirmation()
	if _, err := o.deps.Messenger.Send(ctx, customer.Phone, confirmation); err != nil {
		log.OutboundFailed("sms", "opt_in_confirmation", err)
	}

	if _, err := o.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:     &customer.ID,
		Phone:          customer.Phone,
		Direction:      domain.DirectionInbound,
		Intent:         domain.IntentOptInConfirmed,
		MessageContent: text,
		ResponseText:   confirmation,
		Sentiment:      domain.SentimentPositive,
	}); err != nil {
		log.DatabaseError("append_turn", err)
	}

	o.deps.Fanout.Broadcast(EventOptInConfirmed,
		fmt.Sprintf("%s Opted In", customer.DisplayName()),
		fmt.Sprintf("Customer %s (%s) is now opted in for notifications", customer.DisplayName(), customer.Phone))

	log.Info("customer opted in")
	return true, nil
}

func (o *Orchestrator) classify(ctx context.Context, log *logger.Logger, req classifier.Request) domain.Action {
	action, err := o.deps.Classifier.Classify(ctx, req)
	if err != nil {
		log.Warn("classifier failed, using fallback", "error", err)
		return domain.FallbackGeneral()
	}
	if _, err := domain.ParseActionKind(string(action.Kind)); err != nil || action.Response == "" {
		log.Warn("classifier returned invalid action, using fallback", "kind", action.Kind)
		return domain.FallbackGeneral()
	}
	return action
}

type dispatchResult struct {
	response       string
	turnSpot       string
	escalate       bool
	escalationSpot string
	event          string
	title          string
	message        string
}

// dispatch applies the per-action state transition and side effects.
func (o *Orchestrator) dispatch(ctx context.Context, log *logger.Logger, customer domain.Customer, order domain.Order, action domain.Action) dispatchResult {
	name := customerName(customer, order)
	result := dispatchResult{
		response: action.Response,
		turnSpot: action.ParkingSpot,
	}

	switch action.Kind {
	case domain.ActionArrival:
		if err := o.deps.Store.UpdateOrderStatus(ctx, order.ID, domain.OrderCustomerArrived); err != nil {
			log.DatabaseError("update_order_status", err)
		}
		spot := action.ParkingSpot
		if spot == "" {
			if known, ok, err := o.deps.Store.LatestParkingSpot(ctx, customer.Phone); err == nil && ok {
				spot = known
			}
		}
		if err := o.deps.Staff.Alert(ctx, "Customer arrived: order #"+order.OrderNumber,
			o.deps.Messages.ArrivalAlert(order.OrderNumber, spot, name)); err != nil {
			log.OutboundFailed("staff", "arrival_alert", err)
		}
		result.event = EventCustomerArrival
		result.title = "Customer Arrived - Spot " + orDefault(spot, unknownSpot)
		result.message = fmt.Sprintf("%s has arrived at %s in parking spot %s. Store team has been notified to prepare order #%s.",
			name, orDefault(order.StoreName, "the store"), orDefault(spot, unknownSpot), order.OrderNumber)

	case domain.ActionComplaint:
		decision, err := o.deps.Policy.EvaluateComplaint(ctx, customer.Phone, action)
		if err != nil {
			log.DatabaseError("latest_parking_spot", err)
		}
		result.response = decision.Response
		if decision.TriggerVoiceCall {
			result.escalate = true
			result.escalationSpot = decision.ParkingSpot
			result.turnSpot = decision.ParkingSpot
			result.event = EventComplaintEscalation
			result.title = "Complaint Escalated - Manager Call Triggered"
			result.message = fmt.Sprintf("Customer %s complained about order #%s. Customer is in spot %s. Store manager is being contacted via phone call.",
				name, order.OrderNumber, decision.ParkingSpot)
		} else {
			result.event = EventComplaintNoParkingSpot
			result.title = "Complaint Detected - Waiting for Parking Spot"
			result.message = fmt.Sprintf("Customer %s complained about order #%s but hasn't provided a parking spot yet. Asking for location first.",
				name, order.OrderNumber)
		}

	case domain.ActionOrderReceived:
		if err := o.deps.Store.UpdateOrderStatus(ctx, order.ID, domain.OrderCompleted); err != nil {
			log.DatabaseError("update_order_status", err)
		}
		result.event = EventOrderCompleted
		result.title = fmt.Sprintf("Order #%s Completed", order.OrderNumber)
		result.message = fmt.Sprintf("Customer %s has confirmed receipt of their order.", name)

	default:
		result.event = EventGeneralInquiry
		result.title = "General Customer Inquiry"
		result.message = fmt.Sprintf("Customer %s sent a general message about order #%s.", name, order.OrderNumber)
	}

	return result
}
