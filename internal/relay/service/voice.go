package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"curbside_relay/internal/followup"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/repository"
	"curbside_relay/internal/vapi"
)

// CompletionResult reports what a call-completion event triggered.
type CompletionResult struct {
	CallID             string
	Matched            bool
	CustomerNotified   bool
	FollowupsScheduled int
}

// VoiceBridge places manager escalation calls and finalizes them when the
// provider reports the call ended.
type VoiceBridge struct {
	deps Deps
}

var _ followup.Runner = (*VoiceBridge)(nil)

func NewVoiceBridge(deps Deps) *VoiceBridge {
	return &VoiceBridge{deps: deps.withDefaults()}
}

// InitiateEscalation requests a manager call. Nothing is persisted unless the
// provider returns a call id, and failures are not retried.
func (v *VoiceBridge) InitiateEscalation(ctx context.Context, order domain.Order, customer domain.Customer, complaint, spot string) (string, error) {
	log := v.deps.Log.WithContext(ctx).WithPhone(customer.Phone)
	name := customerName(customer, order)

	callID, err := v.deps.Voice.CreateEscalationCall(ctx, vapi.EscalationContext{
		Brand:        v.deps.Messages.Brand,
		CustomerName: name,
		OrderNumber:  order.OrderNumber,
		ParkingSpot:  spot,
		StoreName:    order.StoreName,
		Complaint:    complaint,
		Timestamp:    v.deps.Now(),
	})
	if err != nil {
		log.OutboundFailed("voice", "create_call", err)
		return "", err
	}

	orderID := order.ID
	if _, err := v.deps.Store.CreateVoiceEscalation(ctx, domain.VoiceEscalation{
		OrderID: &orderID,
		Phone:   customer.Phone,
		CallID:  callID,
		Status:  domain.EscalationInitiated,
	}); err != nil {
		log.DatabaseError("create_voice_escalation", err)
	}

	v.deps.Fanout.Broadcast(EventVoiceCallInitiated,
		"Manager Call Started - "+callID,
		fmt.Sprintf("Store manager call initiated for customer %s. Order #%s complaint escalation in progress.", name, order.OrderNumber))

	if err := v.deps.Staff.Alert(ctx, "Escalation: order #"+order.OrderNumber,
		v.deps.Messages.EscalationStartedAlert(name, order.OrderNumber, spot, complaint)); err != nil {
		log.OutboundFailed("staff", "escalation_started_alert", err)
	} else {
		v.deps.Fanout.Broadcast(EventManagerCallStartedAlert,
			"Manager Call Started Alert Sent",
			fmt.Sprintf("Manager alerted: call initiated for customer %s complaint about order #%s", name, order.OrderNumber))
	}

	log.Info("escalation call initiated", "call_id", callID, "order", order.OrderNumber)
	return callID, nil
}

// HandleCallCompletion records the end of a call. An unknown or already
// completed call id is a silent no-op. Without a transcript only the record is
// updated.
func (v *VoiceBridge) HandleCallCompletion(ctx context.Context, completion domain.CallCompletion) (CompletionResult, error) {
	log := v.deps.Log.WithContext(ctx)
	result := CompletionResult{CallID: completion.CallID}

	if strings.TrimSpace(completion.CallID) == "" {
		log.Warn("call completion without call id")
		return result, nil
	}

	esc, err := v.deps.Store.CompleteVoiceEscalation(ctx, completion, v.deps.Now())
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("call completion ignored: unknown or already completed", "call_id", completion.CallID)
		return result, nil
	}
	if err != nil {
		return result, fmt.Errorf("complete voice escalation: %w", err)
	}
	result.Matched = true

	if completion.Transcript != "" || completion.Summary != "" {
		if err := v.deps.Archive.ArchiveCall(ctx, completion); err != nil {
			log.Warn("call transcript not archived", "call_id", completion.CallID, "error", err)
		}
	}

	if strings.TrimSpace(completion.Transcript) == "" {
		return result, nil
	}

	order, err := v.escalationOrder(ctx, esc)
	if err != nil {
		return result, fmt.Errorf("resolve escalation order: %w", err)
	}
	customerPhone := orDefault(order.CustomerPhone, esc.Phone)
	log = log.WithPhone(customerPhone)

	update := v.postCallMessage(ctx, order, completion)
	if _, err := v.deps.Messenger.Send(ctx, customerPhone, update); err != nil {
		log.OutboundFailed("sms", "post_call_update", err)
	} else {
		result.CustomerNotified = true
	}

	orderID := order.ID
	if _, err := v.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:   order.CustomerID,
		OrderID:      &orderID,
		Phone:        customerPhone,
		Direction:    domain.DirectionOutbound,
		Intent:       domain.IntentCallSummary,
		ResponseText: update,
		Sentiment:    domain.SentimentNeutral,
	}); err != nil {
		log.DatabaseError("append_turn", err)
	}

	v.deps.Fanout.Broadcast(EventVoiceCallEnded,
		"Manager Call Completed - "+completion.CallID,
		fmt.Sprintf("Call with store manager ended. Duration: %ds. Post-call SMS sent to customer.", completion.DurationSeconds))

	for _, kind := range followup.Kinds() {
		job := followup.Job{
			Kind:    kind,
			OrderID: order.ID.String(),
			Phone:   customerPhone,
			CallID:  completion.CallID,
		}
		if err := v.deps.Scheduler.Schedule(ctx, job, v.delayFor(kind)); err != nil {
			log.Error("followup not scheduled", "kind", kind, "error", err)
			continue
		}
		result.FollowupsScheduled++
	}

	return result, nil
}

func (v *VoiceBridge) delayFor(kind followup.Kind) time.Duration {
	if kind == followup.KindReviewRequest {
		return v.deps.ReviewRequestDelay
	}
	return v.deps.ResolutionAlertDelay
}

func (v *VoiceBridge) escalationOrder(ctx context.Context, esc domain.VoiceEscalation) (domain.Order, error) {
	if esc.OrderID != nil {
		order, err := v.deps.Store.GetOrder(ctx, *esc.OrderID)
		if err == nil || !errors.Is(err, repository.ErrNotFound) {
			return order, err
		}
	}
	return v.deps.Store.LatestOrder(ctx, esc.Phone)
}

// postCallMessage asks the classifier for a short customer update, falling
// back to a fixed text.
func (v *VoiceBridge) postCallMessage(ctx context.Context, order domain.Order, completion domain.CallCompletion) string {
	prompt := v.deps.Messages.PostCallPrompt(order.OrderNumber, completion.Transcript, completion.Summary)
	text, err := v.deps.Classifier.Generate(ctx, prompt)
	if err != nil || strings.TrimSpace(text) == "" {
		v.deps.Log.WithContext(ctx).Warn("post-call text generation failed, using fallback", "error", err)
		return fallbackCallUpdate
	}
	return truncateSMS(text, maxPostCallLength)
}

// RunFollowup executes a scheduled follow-up. Order and parking spot are
// re-read here since they may have changed since scheduling.
func (v *VoiceBridge) RunFollowup(ctx context.Context, job followup.Job) error {
	log := v.deps.Log.WithContext(ctx).WithPhone(job.Phone)

	order, err := v.deps.Store.LatestOrder(ctx, job.Phone)
	if errors.Is(err, repository.ErrNotFound) {
		log.Info("followup skipped, no order for phone", "kind", job.Kind)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load latest order: %w", err)
	}

	switch job.Kind {
	case followup.KindResolutionAlert:
		return v.sendResolutionAlert(ctx, order, job.Phone)
	case followup.KindReviewRequest:
		return v.sendReviewRequest(ctx, order, job.Phone)
	default:
		return fmt.Errorf("unknown followup kind %q", job.Kind)
	}
}

func (v *VoiceBridge) sendResolutionAlert(ctx context.Context, order domain.Order, customerPhone string) error {
	spot, _, err := v.deps.Store.LatestParkingSpot(ctx, customerPhone)
	if err != nil {
		v.deps.Log.WithContext(ctx).DatabaseError("latest_parking_spot", err)
		spot = ""
	}

	body := v.deps.Messages.ResolutionAlert(order.OrderNumber, spot, order.CustomerName, v.deps.Now())
	if err := v.deps.Staff.Alert(ctx, "Escalation resolved: order #"+order.OrderNumber, body); err != nil {
		return fmt.Errorf("send resolution alert: %w", err)
	}

	v.deps.Fanout.Broadcast(EventManagerCallEndedAlert,
		"Manager Call Ended Alert Sent",
		fmt.Sprintf("Manager alerted: call completed for order #%s. Issue resolved.", order.OrderNumber))
	return nil
}

func (v *VoiceBridge) sendReviewRequest(ctx context.Context, order domain.Order, customerPhone string) error {
	body := v.deps.Messages.ReviewRequest(order.OrderNumber)
	if _, err := v.deps.Messenger.Send(ctx, customerPhone, body); err != nil {
		return fmt.Errorf("send review request: %w", err)
	}

	orderID := order.ID
	if _, err := v.deps.Store.AppendTurn(ctx, domain.Turn{
		CustomerID:   order.CustomerID,
		OrderID:      &orderID,
		Phone:        customerPhone,
		Direction:    domain.DirectionOutbound,
		Intent:       domain.IntentReviewRequest,
		ResponseText: body,
		Sentiment:    domain.SentimentNeutral,
	}); err != nil {
		v.deps.Log.WithContext(ctx).DatabaseError("append_turn", err)
	}

	v.deps.Fanout.Broadcast(EventReviewRequestSent,
		"Review Request Sent",
		fmt.Sprintf("Customer %s received review request for completed order #%s", orDefault(order.CustomerName, "Customer"), order.OrderNumber))

	if err := v.deps.Store.UpdateOrderStatus(ctx, order.ID, domain.OrderCompleted); err != nil {
		return fmt.Errorf("complete order: %w", err)
	}
	return nil
}
