// Package service assembles the dashboard read models: conversation lists,
// merged threads, customer profiles, platform statistics and search.
package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"curbside_relay/internal/inbox/repository"
	"curbside_relay/internal/inbox/transport"
	"curbside_relay/platform/apperr"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"

	noTranscript = "Voice call - no transcript available"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

type Service struct {
	repo repository.Reader
	now  func() time.Time
}

func New(repo repository.Reader) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithClock overrides the clock used for trailing windows.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) ListConversations(ctx context.Context, page transport.PageRequest) (transport.ConversationListResponse, error) {
	limit := limitOr(page.Limit, transport.DefaultConversationLimit)
	rows, err := s.repo.ListConversations(ctx, limit, page.Offset)
	if err != nil {
		return transport.ConversationListResponse{}, apperr.Internal("failed to list conversations", err).WithOp("inbox.ListConversations")
	}

	items := make([]transport.ConversationResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, conversationResponse(row))
	}
	return transport.ConversationListResponse{
		Conversations: items,
		TotalCount:    len(items),
		Pagination:    transport.Pagination{Limit: limit, Offset: page.Offset},
	}, nil
}

// Messages merges the SMS turns and voice calls of phone into one thread
// ordered by time, then applies the page window.
func (s *Service) Messages(ctx context.Context, phone string, page transport.PageRequest) (transport.MessageListResponse, error) {
	limit := limitOr(page.Limit, transport.DefaultMessageLimit)

	var turns []repository.TurnRow
	var calls []repository.CallRow
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		turns, err = s.repo.ListTurns(gctx, phone)
		return err
	})
	g.Go(func() (err error) {
		calls, err = s.repo.ListCalls(gctx, phone)
		return err
	})
	if err := g.Wait(); err != nil {
		return transport.MessageListResponse{}, apperr.Internal("failed to load messages", err).WithOp("inbox.Messages")
	}

	all := make([]transport.MessageResponse, 0, len(turns)+len(calls))
	for _, t := range turns {
		all = append(all, turnMessage(t))
	}
	for _, c := range calls {
		all = append(all, callMessage(c))
	}
	slices.SortStableFunc(all, func(a, b transport.MessageResponse) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})

	total := len(all)
	return transport.MessageListResponse{
		Phone:          phone,
		Messages:       window(all, page.Offset, limit),
		TotalCount:     total,
		SMSCount:       len(turns),
		VoiceCallCount: len(calls),
		Pagination:     transport.Pagination{Limit: limit, Offset: page.Offset, Total: &total},
	}, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]transport.CustomerSummaryResponse, error) {
	rows, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, apperr.Internal("failed to list customers", err).WithOp("inbox.ListCustomers")
	}
	items := make([]transport.CustomerSummaryResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, transport.CustomerSummaryResponse{
			CustomerResponse: customerResponse(row.Customer),
			TotalOrders:      row.TotalOrders,
			LastOrderDate:    row.LastOrderDate,
		})
	}
	return items, nil
}

func (s *Service) CustomerProfile(ctx context.Context, phone string) (transport.CustomerProfileResponse, error) {
	customer, err := s.repo.GetCustomer(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return transport.CustomerProfileResponse{}, apperr.NotFound("Customer not found")
	}
	if err != nil {
		return transport.CustomerProfileResponse{}, apperr.Internal("failed to load customer", err).WithOp("inbox.CustomerProfile")
	}

	var (
		orders    []repository.OrderRow
		convStats repository.ConversationStats
		callStats repository.CallStats
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		orders, err = s.repo.ListOrders(gctx, phone)
		return err
	})
	g.Go(func() (err error) {
		convStats, err = s.repo.ConversationStats(gctx, phone)
		return err
	})
	g.Go(func() (err error) {
		callStats, err = s.repo.CallStats(gctx, phone)
		return err
	})
	if err := g.Wait(); err != nil {
		return transport.CustomerProfileResponse{}, apperr.Internal("failed to load customer history", err).WithOp("inbox.CustomerProfile")
	}

	orderItems := make([]transport.OrderResponse, 0, len(orders))
	for _, o := range orders {
		orderItems = append(orderItems, transport.OrderResponse{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerPhone: o.CustomerPhone,
			CustomerName:  o.CustomerName,
			StoreName:     o.StoreName,
			StoreAddress:  o.StoreAddress,
			Status:        o.Status,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		})
	}

	return transport.CustomerProfileResponse{
		Customer: customerResponse(customer),
		Orders:   orderItems,
		ConversationStats: transport.ConversationStatsResponse{
			TotalMessages:       convStats.TotalMessages,
			InboundMessages:     convStats.InboundMessages,
			PositiveMessages:    convStats.PositiveMessages,
			NegativeMessages:    convStats.NegativeMessages,
			LastConversationAt:  convStats.LastAt,
			FirstConversationAt: convStats.FirstAt,
		},
		CallStats: transport.CallStatsResponse{
			TotalCalls:        callStats.TotalCalls,
			TotalCallDuration: callStats.TotalDuration,
			LastCallAt:        callStats.LastCallAt,
		},
		ConversationID: transport.ConversationID(customer.Phone),
	}, nil
}

// Stats runs the four aggregate queries concurrently.
func (s *Service) Stats(ctx context.Context) (transport.StatsResponse, error) {
	now := s.now()
	since := now.Add(-24 * time.Hour)
	week := now.Add(-7 * 24 * time.Hour)

	var (
		customers repository.CustomerTotals
		orders    repository.OrderTotals
		turns     repository.TurnTotals
		calls     repository.CallTotals
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		customers, err = s.repo.CustomerTotals(gctx, since, week)
		return err
	})
	g.Go(func() (err error) {
		orders, err = s.repo.OrderTotals(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		turns, err = s.repo.TurnTotals(gctx, since)
		return err
	})
	g.Go(func() (err error) {
		calls, err = s.repo.CallTotals(gctx, since)
		return err
	})
	if err := g.Wait(); err != nil {
		return transport.StatsResponse{}, apperr.Internal("failed to compute statistics", err).WithOp("inbox.Stats")
	}

	return transport.StatsResponse{
		Source:    transport.SourceName,
		Timestamp: now.UTC(),
		Customers: transport.CustomerCounts{
			Total:   customers.Total,
			OptedIn: customers.OptedIn,
			New24h:  customers.New24h,
			New7d:   customers.New7d,
		},
		Orders: transport.OrderCounts{
			Total:     orders.Total,
			New:       orders.New,
			Ready:     orders.Ready,
			Arrived:   orders.Arrived,
			Completed: orders.Completed,
			Orders24h: orders.Last24h,
		},
		Conversations: transport.ConversationCounts{
			Total:             turns.Total,
			Inbound:           turns.Inbound,
			PositiveSentiment: turns.Positive,
			NegativeSentiment: turns.Negative,
			Conversations24h:  turns.Last24h,
		},
		VoiceCalls: transport.CallCounts{
			Total:         calls.Total,
			Completed:     calls.Completed,
			TotalDuration: calls.TotalDuration,
			AvgDuration:   calls.AvgDuration,
			Calls24h:      calls.Last24h,
		},
	}, nil
}

// Search finds turns and calls whose text contains the query, case
// insensitively. The trimmed query must be at least two characters.
func (s *Service) Search(ctx context.Context, req transport.SearchRequest) (transport.SearchResponse, error) {
	query := strings.TrimSpace(req.Query)
	if len([]rune(query)) < transport.MinSearchLength {
		return transport.SearchResponse{}, apperr.Validation("Search query must be at least 2 characters")
	}
	limit := limitOr(req.Limit, transport.DefaultConversationLimit)

	hits, err := s.repo.Search(ctx, "%"+likeEscaper.Replace(query)+"%", limit, req.Offset)
	if err != nil {
		return transport.SearchResponse{}, apperr.Internal("search failed", err).WithOp("inbox.Search")
	}

	results := make([]transport.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, transport.SearchResult{
			ConversationID: transport.ConversationID(h.Phone),
			CustomerName:   h.CustomerName,
			Phone:          h.Phone,
			Content:        h.Content,
			Response:       h.Response,
			CreatedAt:      h.CreatedAt,
			OrderNumber:    h.OrderNumber,
			StoreName:      h.StoreName,
			OrderStatus:    h.OrderStatus,
			ResultType:     h.Kind,
			Source:         transport.SourceName,
		})
	}
	return transport.SearchResponse{
		Query:        query,
		Results:      results,
		TotalResults: len(results),
		Pagination:   transport.Pagination{Limit: limit, Offset: req.Offset},
	}, nil
}

func conversationResponse(row repository.ConversationSummary) transport.ConversationResponse {
	c := row.Customer
	display := c.Name
	if display == "" {
		display = c.Phone
	}
	last := "New customer"
	if row.LastMessage != nil && *row.LastMessage != "" {
		last = *row.LastMessage
	}
	return transport.ConversationResponse{
		ConversationID:     transport.ConversationID(c.Phone),
		DisplayName:        display,
		UserIdentifier:     c.Phone,
		LastMessageAt:      row.LastMessageAt,
		LastMessageContent: last,
		Source:             transport.SourceName,
		MessageCount:       row.MessageCount,
		Metadata: transport.ConversationMetadata{
			CustomerID:      c.ID,
			OptedIn:         c.OptedIn,
			OptedInAt:       c.OptedInAt,
			CustomerSince:   c.CreatedAt,
			OrderNumber:     row.OrderNumber,
			StoreName:       row.StoreName,
			StoreAddress:    row.StoreAddress,
			OrderStatus:     row.OrderStatus,
			LastSentiment:   row.Sentiment,
			LastParkingSpot: row.ParkingSpot,
		},
	}
}

func turnMessage(t repository.TurnRow) transport.MessageResponse {
	role := roleAssistant
	content := t.ResponseText
	switch t.Direction {
	case "INBOUND":
		role = roleUser
		content = t.MessageContent
	case "SYSTEM":
		role = roleSystem
		if content == "" {
			content = t.MessageContent
		}
	}
	return transport.MessageResponse{
		MessageID:      transport.MessageSMS + "_" + t.ID.String(),
		ConversationID: transport.ConversationID(t.Phone),
		MessageContent: content,
		MessageRole:    role,
		MessageType:    transport.MessageSMS,
		CreatedAt:      t.CreatedAt,
		Source:         transport.SourceName,
		Details: map[string]any{
			"direction":     t.Direction,
			"intent":        t.Intent,
			"inbound_text":  t.MessageContent,
			"ai_response":   t.ResponseText,
			"sentiment":     t.Sentiment,
			"parking_spot":  t.ParkingSpot,
			"order_context": t.OrderNumber,
			"store_context": t.StoreName,
			"order_status":  t.OrderStatus,
		},
		Metadata: map[string]any{
			"customer_name": t.CustomerName,
			"phone":         t.Phone,
		},
	}
}

func callMessage(c repository.CallRow) transport.MessageResponse {
	content := c.Transcript
	if content == "" {
		content = noTranscript
	}
	var duration *string
	if c.DurationSeconds > 0 {
		label := strconv.Itoa(c.DurationSeconds) + "s"
		duration = &label
	}
	return transport.MessageResponse{
		MessageID:      transport.MessageCall + "_" + c.ID.String(),
		ConversationID: transport.ConversationID(c.Phone),
		MessageContent: content,
		MessageRole:    roleSystem,
		MessageType:    transport.MessageCall,
		CreatedAt:      c.CreatedAt,
		Source:         transport.SourceName,
		Details: map[string]any{
			"call_id":          c.CallID,
			"call_status":      c.Status,
			"summary":          c.Summary,
			"duration_seconds": c.DurationSeconds,
			"ended_reason":     c.EndedReason,
			"ended_at":         c.EndedAt,
			"order_context":    c.OrderNumber,
			"store_context":    c.StoreName,
		},
		Metadata: map[string]any{
			"customer_name": c.CustomerName,
			"phone":         c.Phone,
			"call_duration": duration,
		},
	}
}

func customerResponse(c repository.CustomerRow) transport.CustomerResponse {
	return transport.CustomerResponse{
		ID:        c.ID,
		Phone:     c.Phone,
		Name:      c.Name,
		OptedIn:   c.OptedIn,
		OptedInAt: c.OptedInAt,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func limitOr(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	return limit
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+limit, len(items))
	return items[offset:end]
}
