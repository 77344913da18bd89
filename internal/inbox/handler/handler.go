// Package handler serves the dashboard read API.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"curbside_relay/internal/inbox/transport"
	"curbside_relay/platform/httpkit"
	"curbside_relay/platform/phone"
	"curbside_relay/platform/validator"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Reader is the read side the handler serves.
type Reader interface {
	ListConversations(ctx context.Context, page transport.PageRequest) (transport.ConversationListResponse, error)
	Messages(ctx context.Context, phone string, page transport.PageRequest) (transport.MessageListResponse, error)
	ListCustomers(ctx context.Context) ([]transport.CustomerSummaryResponse, error)
	CustomerProfile(ctx context.Context, phone string) (transport.CustomerProfileResponse, error)
	Stats(ctx context.Context) (transport.StatsResponse, error)
	Search(ctx context.Context, req transport.SearchRequest) (transport.SearchResponse, error)
}

type Handler struct {
	svc Reader
	val *validator.Validator
}

func New(svc Reader, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// ListConversations returns one entry per customer with their latest turn.
// GET /api/conversations
func (h *Handler) ListConversations(c *gin.Context) {
	var req transport.PageRequest
	if !h.bindQuery(c, &req) {
		return
	}
	result, err := h.svc.ListConversations(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"conversations": result.Conversations,
		"total_count":   result.TotalCount,
		"pagination":    result.Pagination,
	})
}

// Messages returns the merged SMS and voice thread of one customer.
// GET /api/conversations/:phone/messages
func (h *Handler) Messages(c *gin.Context) {
	var req transport.PageRequest
	if !h.bindQuery(c, &req) {
		return
	}
	result, err := h.svc.Messages(c.Request.Context(), phoneParam(c), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"phone":            result.Phone,
		"messages":         result.Messages,
		"total_count":      result.TotalCount,
		"sms_count":        result.SMSCount,
		"voice_call_count": result.VoiceCallCount,
		"pagination":       result.Pagination,
	})
}

// ListCustomers GET /api/customers
func (h *Handler) ListCustomers(c *gin.Context) {
	customers, err := h.svc.ListCustomers(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"customers": customers})
}

// CustomerProfile GET /api/customers/:phone
func (h *Handler) CustomerProfile(c *gin.Context) {
	profile, err := h.svc.CustomerProfile(c.Request.Context(), phoneParam(c))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"customer":           profile.Customer,
		"orders":             profile.Orders,
		"conversation_stats": profile.ConversationStats,
		"call_stats":         profile.CallStats,
		"conversation_id":    profile.ConversationID,
	})
}

// Stats GET /api/stats
func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"platform":      stats.Source,
		"timestamp":     stats.Timestamp,
		"customers":     stats.Customers,
		"orders":        stats.Orders,
		"conversations": stats.Conversations,
		"voice_calls":   stats.VoiceCalls,
	})
}

// Search GET /api/search?q=
func (h *Handler) Search(c *gin.Context) {
	var req transport.SearchRequest
	if !h.bindQuery(c, &req) {
		return
	}
	result, err := h.svc.Search(c.Request.Context(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{
		"query":         result.Query,
		"results":       result.Results,
		"total_results": result.TotalResults,
		"pagination":    result.Pagination,
	})
}

func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

// phoneParam accepts the path phone in any dialable form.
func phoneParam(c *gin.Context) string {
	return phone.NormalizeE164(c.Param("phone"))
}
