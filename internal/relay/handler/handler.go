// Package handler exposes the relay's webhooks, order lifecycle endpoints and
// operator actions over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"curbside_relay/internal/adapters/storage"
	"curbside_relay/internal/archive"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/service"
	"curbside_relay/internal/relay/transport"
	"curbside_relay/platform/httpkit"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/phone"
	"curbside_relay/platform/sanitize"
	"curbside_relay/platform/validator"
)

const (
	emptyTwiML          = "<Response/>"
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgNotOptedIn       = "Customer not opted in"
	msgArchiveDisabled  = "call archive not configured"
)

// Inbound processes customer messages.
type Inbound interface {
	HandleInboundMessage(ctx context.Context, from, to, text string) (service.Outcome, error)
}

// CallCompleter finalizes voice escalations.
type CallCompleter interface {
	HandleCallCompletion(ctx context.Context, completion domain.CallCompletion) (service.CompletionResult, error)
}

// Lifecycle handles store order events and operator actions.
type Lifecycle interface {
	NewOrder(ctx context.Context, in service.OrderInput) (service.NewOrderResult, error)
	ReadyForPickup(ctx context.Context, in service.OrderInput) (service.ReadyResult, error)
	SendManualMessage(ctx context.Context, to, body, sender string) (string, error)
	ResetOptIn(ctx context.Context, phone string) (domain.Customer, error)
}

// CallArchive reads archived calls back.
type CallArchive interface {
	DownloadURL(ctx context.Context, callID string) (*storage.PresignedURL, error)
	Load(ctx context.Context, callID string) (archive.Record, error)
}

// Handler handles HTTP requests for the relay.
type Handler struct {
	inbound   Inbound
	calls     CallCompleter
	lifecycle Lifecycle
	archive   CallArchive
	val       *validator.Validator
	log       *logger.Logger
}

// New creates a relay handler. archive may be nil.
func New(inbound Inbound, calls CallCompleter, lifecycle Lifecycle, archive CallArchive, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{inbound: inbound, calls: calls, lifecycle: lifecycle, archive: archive, val: val, log: log}
}

// InboundSMS receives a customer message. The provider always gets an empty
// TwiML document; replies are sent through the REST API.
// POST /webhook/sms
func (h *Handler) InboundSMS(c *gin.Context) {
	var form transport.InboundSMS
	if err := c.ShouldBind(&form); err != nil || strings.TrimSpace(form.From) == "" {
		h.log.WithContext(c.Request.Context()).Warn("malformed sms webhook acknowledged", "error", err)
		twiml(c, http.StatusOK)
		return
	}

	if _, err := h.inbound.HandleInboundMessage(c.Request.Context(), form.From, form.To, form.Body); err != nil {
		h.log.WithContext(c.Request.Context()).Error("sms webhook failed", "error", err)
		twiml(c, http.StatusInternalServerError)
		return
	}
	twiml(c, http.StatusOK)
}

// CallEnded receives the voice provider's end-of-call report.
// POST /vapi/call-ended
func (h *Handler) CallEnded(c *gin.Context) {
	var req transport.CallEndedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	completion := req.Completion()
	h.log.WithContext(c.Request.Context()).WebhookReceived("voice", completion.CallID, len(completion.Transcript))

	if !req.IsEndOfCall() {
		httpkit.OK(c, gin.H{
			"message":   "Ignored " + req.MessageType() + " message",
			"callId":    completion.CallID,
			"processed": false,
		})
		return
	}

	result, err := h.calls.HandleCallCompletion(c.Request.Context(), completion)
	if err != nil {
		h.log.WithContext(c.Request.Context()).Error("call completion failed", "call_id", completion.CallID, "error", err)
		httpkit.Error(c, http.StatusInternalServerError, "call completion failed", nil)
		return
	}
	httpkit.OK(c, gin.H{
		"message":   "Call ended webhook processed",
		"callId":    completion.CallID,
		"processed": result.Matched,
	})
}

// NewOrder registers an order and sends the opt-in request.
// POST /orders/new
func (h *Handler) NewOrder(c *gin.Context) {
	var req transport.OrderEventRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.lifecycle.NewOrder(c.Request.Context(), orderInput(req))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"message":  "Order created and opt-in SMS sent",
		"order_id": result.Order.OrderNumber,
		"sms_sid":  result.MessageID,
	})
}

// ReadyForPickup tells an opted-in customer their order is ready.
// POST /orders/ready
func (h *Handler) ReadyForPickup(c *gin.Context) {
	var req transport.OrderEventRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.lifecycle.ReadyForPickup(c.Request.Context(), orderInput(req))
	if httpkit.HandleError(c, err) {
		return
	}
	if !result.Notified {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": msgNotOptedIn})
		return
	}
	httpkit.OK(c, gin.H{
		"message":  "Ready SMS sent",
		"order_id": result.Order.OrderNumber,
		"sms_sid":  result.MessageID,
	})
}

// SendSMS sends an operator message.
// POST /api/send-sms
func (h *Handler) SendSMS(c *gin.Context) {
	var req transport.SendSMSRequest
	if !h.bindJSON(c, &req) {
		return
	}

	sid, err := h.lifecycle.SendManualMessage(c.Request.Context(), req.To, sanitize.Text(req.Message), sanitize.Line(req.FromName))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"message": "SMS sent successfully",
		"sid":     sid,
		"to":      phone.NormalizeE164(req.To),
	})
}

// ResetOptIn clears a customer's opt-in.
// POST /api/reset-optin/:phone
func (h *Handler) ResetOptIn(c *gin.Context) {
	customer, err := h.lifecycle.ResetOptIn(c.Request.Context(), c.Param("phone"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"message":  "Opt-in status reset successfully",
		"customer": transport.NewCustomerResponse(customer),
	})
}

// CallArchiveLink returns a presigned link to an archived call.
// GET /api/calls/:callId/archive
func (h *Handler) CallArchiveLink(c *gin.Context) {
	if h.archive == nil {
		httpkit.Error(c, http.StatusNotFound, msgArchiveDisabled, nil)
		return
	}
	link, err := h.archive.DownloadURL(c.Request.Context(), c.Param("callId"))
	if errors.Is(err, archive.ErrInvalidCallID) {
		httpkit.Error(c, http.StatusBadRequest, "invalid call id", nil)
		return
	}
	if err != nil {
		h.log.WithContext(c.Request.Context()).OutboundFailed("minio", "presign", err)
		httpkit.Error(c, http.StatusBadGateway, "archive unavailable", nil)
		return
	}
	httpkit.OK(c, gin.H{"archive": link})
}

// CallTranscript returns the archived transcript and summary of a call.
// GET /api/calls/:callId/transcript
func (h *Handler) CallTranscript(c *gin.Context) {
	if h.archive == nil {
		httpkit.Error(c, http.StatusNotFound, msgArchiveDisabled, nil)
		return
	}
	rec, err := h.archive.Load(c.Request.Context(), c.Param("callId"))
	switch {
	case errors.Is(err, archive.ErrInvalidCallID):
		httpkit.Error(c, http.StatusBadRequest, "invalid call id", nil)
		return
	case errors.Is(err, storage.ErrObjectNotFound):
		httpkit.Error(c, http.StatusNotFound, "call not archived", nil)
		return
	case err != nil:
		h.log.WithContext(c.Request.Context()).OutboundFailed("minio", "load_call", err)
		httpkit.Error(c, http.StatusBadGateway, "archive unavailable", nil)
		return
	}
	httpkit.OK(c, gin.H{"call": rec})
}

func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func orderInput(req transport.OrderEventRequest) service.OrderInput {
	return service.OrderInput{
		Phone:        req.CustomerPhone,
		CustomerName: sanitize.Line(req.CustomerName),
		OrderNumber:  sanitize.Line(req.OrderID),
		StoreName:    sanitize.Line(req.StoreName),
		StoreAddress: sanitize.Line(req.StoreAddress),
	}
}

func twiml(c *gin.Context, status int) {
	c.Data(status, "text/xml; charset=utf-8", []byte(emptyTwiML))
}
