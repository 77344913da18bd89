// Package repository provides read-only queries over the relay's tables for
// dashboards.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Reader = (*Repository)(nil)

const customerColumns = `c.id, c.phone, c.name, c.opted_in, c.opted_in_at, c.created_at, c.updated_at`

func (r *Repository) ListConversations(ctx context.Context, limit, offset int) ([]ConversationSummary, error) {
	rows, err := r.pool.Query(ctx, `
		WITH latest AS (
			SELECT DISTINCT ON (t.phone)
				t.phone, t.order_id, t.message_content, t.response_text, t.sentiment, t.parking_spot, t.created_at
			FROM conversation_turns t
			ORDER BY t.phone, t.created_at DESC
		)
		SELECT `+customerColumns+`,
			l.message_content, l.response_text, l.created_at, l.sentiment, l.parking_spot,
			o.order_number, o.store_name, o.store_address, o.status,
			(SELECT COUNT(*) FROM conversation_turns x WHERE x.phone = c.phone)
		FROM customers c
		LEFT JOIN latest l ON l.phone = c.phone
		LEFT JOIN orders o ON o.id = l.order_id
		ORDER BY l.created_at DESC NULLS LAST, c.created_at DESC
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ConversationSummary, 0, limit)
	for rows.Next() {
		var s ConversationSummary
		c := &s.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.OptedIn, &c.OptedInAt, &c.CreatedAt, &c.UpdatedAt,
			&s.LastMessage, &s.LastResponse, &s.LastMessageAt, &s.Sentiment, &s.ParkingSpot,
			&s.OrderNumber, &s.StoreName, &s.StoreAddress, &s.OrderStatus, &s.MessageCount); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *Repository) ListTurns(ctx context.Context, phone string) ([]TurnRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.phone, t.direction, t.intent, t.message_content, t.response_text, t.sentiment,
			t.parking_spot, t.created_at, c.name, o.order_number, o.store_name, o.status
		FROM conversation_turns t
		LEFT JOIN customers c ON c.id = t.customer_id
		LEFT JOIN orders o ON o.id = t.order_id
		WHERE t.phone = $1
		ORDER BY t.created_at ASC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TurnRow
	for rows.Next() {
		var t TurnRow
		if err := rows.Scan(&t.ID, &t.Phone, &t.Direction, &t.Intent, &t.MessageContent, &t.ResponseText,
			&t.Sentiment, &t.ParkingSpot, &t.CreatedAt, &t.CustomerName, &t.OrderNumber, &t.StoreName,
			&t.OrderStatus); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

func (r *Repository) ListCalls(ctx context.Context, phone string) ([]CallRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT v.id, v.call_id, v.phone, v.status, v.transcript, v.summary, v.duration_seconds,
			v.ended_reason, v.created_at, v.ended_at, o.order_number, o.customer_name, o.store_name
		FROM voice_escalations v
		LEFT JOIN orders o ON o.id = v.order_id
		WHERE v.phone = $1 OR o.customer_phone = $1
		ORDER BY v.created_at ASC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CallRow
	for rows.Next() {
		var c CallRow
		if err := rows.Scan(&c.ID, &c.CallID, &c.Phone, &c.Status, &c.Transcript, &c.Summary,
			&c.DurationSeconds, &c.EndedReason, &c.CreatedAt, &c.EndedAt, &c.OrderNumber,
			&c.CustomerName, &c.StoreName); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *Repository) ListCustomers(ctx context.Context) ([]CustomerSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+customerColumns+`, COUNT(o.id), MAX(o.created_at)
		FROM customers c
		LEFT JOIN orders o ON o.customer_phone = c.phone
		GROUP BY c.id
		ORDER BY c.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CustomerSummary
	for rows.Next() {
		var s CustomerSummary
		c := &s.Customer
		if err := rows.Scan(&c.ID, &c.Phone, &c.Name, &c.OptedIn, &c.OptedInAt, &c.CreatedAt, &c.UpdatedAt,
			&s.TotalOrders, &s.LastOrderDate); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *Repository) GetCustomer(ctx context.Context, phone string) (CustomerRow, error) {
	var c CustomerRow
	err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers c WHERE c.phone = $1`, phone).
		Scan(&c.ID, &c.Phone, &c.Name, &c.OptedIn, &c.OptedInAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CustomerRow{}, ErrNotFound
	}
	return c, err
}

func (r *Repository) ListOrders(ctx context.Context, phone string) ([]OrderRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, order_number, customer_phone, customer_name, store_name, store_address, status, created_at, updated_at
		FROM orders
		WHERE customer_phone = $1
		ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderRow
	for rows.Next() {
		var o OrderRow
		if err := rows.Scan(&o.ID, &o.OrderNumber, &o.CustomerPhone, &o.CustomerName, &o.StoreName,
			&o.StoreAddress, &o.Status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *Repository) ConversationStats(ctx context.Context, phone string) (ConversationStats, error) {
	var s ConversationStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'INBOUND'),
			COUNT(*) FILTER (WHERE sentiment = 'POSITIVE'),
			COUNT(*) FILTER (WHERE sentiment = 'NEGATIVE'),
			MIN(created_at), MAX(created_at)
		FROM conversation_turns
		WHERE phone = $1`, phone).
		Scan(&s.TotalMessages, &s.InboundMessages, &s.PositiveMessages, &s.NegativeMessages, &s.FirstAt, &s.LastAt)
	return s, err
}

func (r *Repository) CallStats(ctx context.Context, phone string) (CallStats, error) {
	var s CallStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(v.duration_seconds), 0), MAX(v.created_at)
		FROM voice_escalations v
		LEFT JOIN orders o ON o.id = v.order_id
		WHERE v.phone = $1 OR o.customer_phone = $1`, phone).
		Scan(&s.TotalCalls, &s.TotalDuration, &s.LastCallAt)
	return s, err
}

func (r *Repository) CustomerTotals(ctx context.Context, since, week time.Time) (CustomerTotals, error) {
	var t CustomerTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE opted_in),
			COUNT(*) FILTER (WHERE created_at > $1),
			COUNT(*) FILTER (WHERE created_at > $2)
		FROM customers`, since, week).
		Scan(&t.Total, &t.OptedIn, &t.New24h, &t.New7d)
	return t, err
}

func (r *Repository) OrderTotals(ctx context.Context, since time.Time) (OrderTotals, error) {
	var t OrderTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'NEW'),
			COUNT(*) FILTER (WHERE status = 'READY_FOR_PICKUP'),
			COUNT(*) FILTER (WHERE status = 'CUSTOMER_ARRIVED'),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COUNT(*) FILTER (WHERE created_at > $1)
		FROM orders`, since).
		Scan(&t.Total, &t.New, &t.Ready, &t.Arrived, &t.Completed, &t.Last24h)
	return t, err
}

func (r *Repository) TurnTotals(ctx context.Context, since time.Time) (TurnTotals, error) {
	var t TurnTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE direction = 'INBOUND'),
			COUNT(*) FILTER (WHERE sentiment = 'POSITIVE'),
			COUNT(*) FILTER (WHERE sentiment = 'NEGATIVE'),
			COUNT(*) FILTER (WHERE created_at > $1)
		FROM conversation_turns`, since).
		Scan(&t.Total, &t.Inbound, &t.Positive, &t.Negative, &t.Last24h)
	return t, err
}

func (r *Repository) CallTotals(ctx context.Context, since time.Time) (CallTotals, error) {
	var t CallTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COALESCE(SUM(duration_seconds), 0),
			COALESCE(AVG(duration_seconds), 0)::float8,
			COUNT(*) FILTER (WHERE created_at > $1)
		FROM voice_escalations`, since).
		Scan(&t.Total, &t.Completed, &t.TotalDuration, &t.AvgDuration, &t.Last24h)
	return t, err
}

// Search matches pattern, an ILIKE expression, against turn and call text,
// customer names and order numbers. Newest first.
func (r *Repository) Search(ctx context.Context, pattern string, limit, offset int) ([]SearchHit, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT * FROM (
			SELECT 'sms' AS kind, t.phone, c.name AS customer_name, t.message_content AS content,
				t.response_text AS response, t.created_at, o.order_number, o.store_name, o.status
			FROM conversation_turns t
			LEFT JOIN customers c ON c.id = t.customer_id
			LEFT JOIN orders o ON o.id = t.order_id
			WHERE t.message_content ILIKE $1 OR t.response_text ILIKE $1
				OR c.name ILIKE $1 OR o.order_number ILIKE $1

			UNION ALL

			SELECT 'voice_call', v.phone, o.customer_name, v.transcript, v.summary, v.created_at,
				o.order_number, o.store_name, o.status
			FROM voice_escalations v
			LEFT JOIN orders o ON o.id = v.order_id
			WHERE v.transcript ILIKE $1 OR v.summary ILIKE $1
				OR o.customer_name ILIKE $1 OR o.order_number ILIKE $1
		) hits
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]SearchHit, 0, limit)
	for rows.Next() {
		var h SearchHit
		if err := rows.Scan(&h.Kind, &h.Phone, &h.CustomerName, &h.Content, &h.Response, &h.CreatedAt,
			&h.OrderNumber, &h.StoreName, &h.OrderStatus); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}
