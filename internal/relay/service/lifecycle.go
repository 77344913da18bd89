package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/repository"
	"curbside_relay/platform/apperr"
	"curbside_relay/platform/phone"
)

// OrderInput identifies an order pushed by the store system.
type OrderInput struct {
	Phone        string
	CustomerName string
	OrderNumber  string
	StoreName    string
	StoreAddress string
}

type NewOrderResult struct {
	Customer  domain.Customer
	Order     domain.Order
	MessageID string
}

type ReadyResult struct {
	Notified  bool
	Order     domain.Order
	MessageID string
}

// Lifecycle handles store-driven order events and administrative actions.
type Lifecycle struct {
	deps Deps
}

func NewLifecycle(deps Deps) *Lifecycle {
	return &Lifecycle{deps: deps.withDefaults()}
}

// NewOrder registers an order and sends the opt-in request.
func (l *Lifecycle) NewOrder(ctx context.Context, in OrderInput) (NewOrderResult, error) {
	customerPhone := phone.NormalizeE164(in.Phone)
	log := l.deps.Log.WithContext(ctx).WithPhone(customerPhone)

	unlock, err := l.deps.Locker.Lock(ctx, "phone:"+customerPhone)
	if err != nil {
		return NewOrderResult{}, apperr.Internal("failed to lock customer", err)
	}
	defer unlock()

	customer, err := l.deps.Store.UpsertCustomer(ctx, customerPhone, strings.TrimSpace(in.CustomerName))
	if err != nil {
		return NewOrderResult{}, apperr.Internal("failed to save customer", err).WithOp("lifecycle.NewOrder")
	}

	customerID := customer.ID
	order, err := l.deps.Store.CreateOrder(ctx, repository.CreateOrderParams{
		OrderNumber:   strings.TrimSpace(in.OrderNumber),
		CustomerID:    &customerID,
		CustomerPhone: customerPhone,
		CustomerName:  customer.Name,
		StoreName:     in.StoreName,
		StoreAddress:  in.StoreAddress,
	})
	if errors.Is(err, repository.ErrDuplicateOrder) {
		log.Info("duplicate active order ignored", "order", in.OrderNumber)
		return NewOrderResult{}, apperr.Conflict("order already active for this customer").WithOp("lifecycle.NewOrder")
	}
	if err != nil {
		return NewOrderResult{}, apperr.Internal("failed to create order", err).WithOp("lifecycle.NewOrder")
	}

	request := l.deps.Messages.OptInRequest(order.OrderNumber)
	messageID, err := l.deps.Messenger.Send(ctx, customerPhone, request)
	if err != nil {
		log.OutboundFailed("sms", "opt_in_request", err)
		return NewOrderResult{}, apperr.Upstream("failed to send opt-in request", err)
	}

	orderID := order.ID
	if _, err := l.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:     &customerID,
		OrderID:        &orderID,
		Phone:          customerPhone,
		Direction:      domain.DirectionSystem,
		Intent:         domain.IntentOptInRequest,
		MessageContent: domain.NewOrderMarker,
		ResponseText:   request,
		Sentiment:      domain.SentimentNeutral,
	}); err != nil {
		// The opt-in window is anchored on this turn.
		return NewOrderResult{}, apperr.Internal("failed to log opt-in request", err).WithOp("lifecycle.NewOrder")
	}

	l.deps.Fanout.Broadcast(EventNewOrder,
		fmt.Sprintf("New Order #%s", order.OrderNumber),
		fmt.Sprintf("Order #%s created for %s at %s. Opt-in request sent.", order.OrderNumber, customer.DisplayName(), orDefault(order.StoreName, "the store")))

	log.Info("order created", "order", order.OrderNumber)
	return NewOrderResult{Customer: customer, Order: order, MessageID: messageID}, nil
}

// ReadyForPickup notifies an opted-in customer that their order is ready.
// Customers without opt-in are reported with Notified=false.
func (l *Lifecycle) ReadyForPickup(ctx context.Context, in OrderInput) (ReadyResult, error) {
	customerPhone := phone.NormalizeE164(in.Phone)
	log := l.deps.Log.WithContext(ctx).WithPhone(customerPhone)

	unlock, err := l.deps.Locker.Lock(ctx, "phone:"+customerPhone)
	if err != nil {
		return ReadyResult{}, apperr.Internal("failed to lock customer", err)
	}
	defer unlock()

	customer, err := l.deps.Store.GetCustomerByPhone(ctx, customerPhone)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !customer.OptedIn) {
		log.Info("ready notice skipped, customer not opted in")
		return ReadyResult{Notified: false}, nil
	}
	if err != nil {
		return ReadyResult{}, apperr.Internal("failed to load customer", err).WithOp("lifecycle.ReadyForPickup")
	}

	order, err := l.deps.Store.OrderByNumber(ctx, customerPhone, strings.TrimSpace(in.OrderNumber))
	if errors.Is(err, repository.ErrNotFound) {
		return ReadyResult{}, apperr.NotFound("order not found")
	}
	if err != nil {
		return ReadyResult{}, apperr.Internal("failed to load order", err).WithOp("lifecycle.ReadyForPickup")
	}

	if err := l.deps.Store.UpdateOrderStatus(ctx, order.ID, domain.OrderReadyForPickup); err != nil {
		return ReadyResult{}, apperr.Internal("failed to update order", err).WithOp("lifecycle.ReadyForPickup")
	}
	order.Status = domain.OrderReadyForPickup

	name := orDefault(strings.TrimSpace(in.CustomerName), customer.DisplayName())
	store := orDefault(strings.TrimSpace(in.StoreName), order.StoreName)
	notice := l.deps.Messages.ReadyForPickup(name, order.OrderNumber, store)

	messageID, err := l.deps.Messenger.Send(ctx, customerPhone, notice)
	if err != nil {
		log.OutboundFailed("sms", "ready_for_pickup", err)
		return ReadyResult{}, apperr.Upstream("failed to send ready notice", err)
	}

	customerID, orderID := customer.ID, order.ID
	if _, err := l.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:   &customerID,
		OrderID:      &orderID,
		Phone:        customerPhone,
		Direction:    domain.DirectionOutbound,
		Intent:       domain.IntentReadyForPickup,
		ResponseText: notice,
		Sentiment:    domain.SentimentNeutral,
	}); err != nil {
		log.DatabaseError("append_turn", err)
	}

	l.deps.Fanout.Broadcast(EventReadyForPickup,
		fmt.Sprintf("Order #%s Ready", order.OrderNumber),
		fmt.Sprintf("%s has been notified that order #%s is ready for pickup.", name, order.OrderNumber))

	return ReadyResult{Notified: true, Order: order, MessageID: messageID}, nil
}

// SendManualMessage sends an ad-hoc SMS on behalf of sender. Logging the turn
// is best effort.
func (l *Lifecycle) SendManualMessage(ctx context.Context, to, body, sender string) (string, error) {
	customerPhone := phone.NormalizeE164(to)
	log := l.deps.Log.WithContext(ctx).WithPhone(customerPhone)

	messageID, err := l.deps.Messenger.Send(ctx, customerPhone, body)
	if err != nil {
		log.OutboundFailed("sms", "manual", err)
		return "", apperr.Upstream("failed to send message", err)
	}

	turn := domain.Turn{
		Phone:          customerPhone,
		Direction:      domain.DirectionOutbound,
		Intent:         domain.IntentManual,
		MessageContent: fmt.Sprintf("[MANUAL: %s]", orDefault(strings.TrimSpace(sender), "Dashboard")),
		ResponseText:   body,
		Sentiment:      domain.SentimentNeutral,
	}
	if customer, err := l.deps.Store.GetCustomerByPhone(ctx, customerPhone); err == nil {
		turn.CustomerID = &customer.ID
	}
	if order, err := l.deps.Store.ActiveOrder(ctx, customerPhone); err == nil {
		turn.OrderID = &order.ID
	}
	if _, err := l.deps.Store.AppendTurn(ctx, turn); err != nil {
		log.DatabaseError("append_turn", err)
	}

	l.deps.Fanout.Broadcast(EventManualMessage, "Custom SMS Sent",
		fmt.Sprintf("Message sent to %s: %q", customerPhone, truncateSMS(body, 50)))
	return messageID, nil
}

// ResetOptIn clears a customer's consent and cancels their pending follow-ups.
func (l *Lifecycle) ResetOptIn(ctx context.Context, rawPhone string) (domain.Customer, error) {
	customerPhone := phone.NormalizeE164(rawPhone)
	log := l.deps.Log.WithContext(ctx).WithPhone(customerPhone)

	customer, err := l.deps.Store.ResetOptIn(ctx, customerPhone)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Customer{}, apperr.NotFound("customer not found")
	}
	if err != nil {
		return domain.Customer{}, apperr.Internal("failed to reset opt-in", err).WithOp("lifecycle.ResetOptIn")
	}

	if order, err := l.deps.Store.LatestOrder(ctx, customerPhone); err == nil && l.deps.Scheduler != nil {
		if err := l.deps.Scheduler.Cancel(ctx, order.ID.String()); err != nil {
			log.Warn("pending followups not cancelled", "order", order.OrderNumber, "error", err)
		}
	}

	l.deps.Fanout.Broadcast(EventOptInReset,
		fmt.Sprintf("%s Opt-In Reset", customer.DisplayName()),
		fmt.Sprintf("Customer %s (%s) opt-in status has been reset", customer.DisplayName(), customerPhone))

	log.Info("opt-in reset")
	return customer, nil
}
