// Package repository persists customers, orders, conversation turns and
// voice escalations in PostgreSQL.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curbside_relay/internal/relay/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ Store = (*Repository)(nil)

const customerColumns = `id, phone, name, opted_in, opted_in_at, created_at, updated_at`

const orderColumns = `id, order_number, customer_id, customer_phone, customer_name, store_name, store_address, status, created_at, updated_at`

const turnColumns = `id, customer_id, order_id, phone, direction, intent, message_content, response_text, sentiment, parking_spot, created_at`

const escalationColumns = `id, order_id, phone, call_id, status, transcript, summary, duration_seconds, ended_reason, created_at, ended_at`

func scanCustomer(row pgx.Row) (domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(&c.ID, &c.Phone, &c.Name, &c.OptedIn, &c.OptedInAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Customer{}, ErrNotFound
	}
	return c, err
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.OrderNumber, &o.CustomerID, &o.CustomerPhone, &o.CustomerName,
		&o.StoreName, &o.StoreAddress, &status, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, ErrNotFound
	}
	o.Status = domain.OrderStatus(status)
	return o, err
}

func scanTurn(row pgx.Row) (domain.Turn, error) {
	var t domain.Turn
	var direction, sentiment string
	var spot *string
	err := row.Scan(&t.ID, &t.CustomerID, &t.OrderID, &t.Phone, &direction, &t.Intent,
		&t.MessageContent, &t.ResponseText, &sentiment, &spot, &t.CreatedAt)
	if err != nil {
		return domain.Turn{}, err
	}
	t.Direction = domain.Direction(direction)
	t.Sentiment = domain.ParseSentiment(sentiment)
	if spot != nil {
		t.ParkingSpot = *spot
	}
	return t, nil
}

func scanEscalation(row pgx.Row) (domain.VoiceEscalation, error) {
	var e domain.VoiceEscalation
	var status string
	err := row.Scan(&e.ID, &e.OrderID, &e.Phone, &e.CallID, &status, &e.Transcript, &e.Summary,
		&e.DurationSeconds, &e.EndedReason, &e.CreatedAt, &e.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VoiceEscalation{}, ErrNotFound
	}
	e.Status = domain.EscalationStatus(status)
	return e, err
}

// ===== customers =====

func (r *Repository) GetCustomerByPhone(ctx context.Context, phone string) (domain.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone = $1`, phone))
}

func (r *Repository) UpsertCustomer(ctx context.Context, phone, name string) (domain.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `
		INSERT INTO customers (phone, name, opted_in)
		VALUES ($1, $2, FALSE)
		ON CONFLICT (phone) DO UPDATE SET name = EXCLUDED.name, updated_at = NOW()
		RETURNING `+customerColumns, phone, name))
}

func (r *Repository) MarkOptedIn(ctx context.Context, customerID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE customers SET opted_in = TRUE, opted_in_at = $2, updated_at = NOW()
		WHERE id = $1`, customerID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ResetOptIn(ctx context.Context, phone string) (domain.Customer, error) {
	return scanCustomer(r.pool.QueryRow(ctx, `
		UPDATE customers SET opted_in = FALSE, opted_in_at = NULL, updated_at = NOW()
		WHERE phone = $1
		RETURNING `+customerColumns, phone))
}

// ===== orders =====

func (r *Repository) CreateOrder(ctx context.Context, params CreateOrderParams) (domain.Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `
		INSERT INTO orders (order_number, customer_id, customer_phone, customer_name, store_name, store_address, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderColumns,
		params.OrderNumber, params.CustomerID, params.CustomerPhone, params.CustomerName,
		params.StoreName, params.StoreAddress, string(domain.OrderNew)))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Order{}, ErrDuplicateOrder
	}
	return order, err
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

func (r *Repository) ActiveOrder(ctx context.Context, phone string) (domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_phone = $1 AND status <> $2
		ORDER BY created_at DESC
		LIMIT 1`, phone, string(domain.OrderCompleted)))
}

func (r *Repository) LatestOrder(ctx context.Context, phone string) (domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_phone = $1
		ORDER BY created_at DESC
		LIMIT 1`, phone))
}

func (r *Repository) OrderByNumber(ctx context.Context, phone, orderNumber string) (domain.Order, error) {
	return scanOrder(r.pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE customer_phone = $1 AND order_number = $2
		ORDER BY created_at DESC
		LIMIT 1`, phone, orderNumber))
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status domain.OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid order status %q", status)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ===== conversation turns =====

func (r *Repository) AppendTurn(ctx context.Context, turn domain.Turn) (domain.Turn, error) {
	var spot *string
	if turn.ParkingSpot != "" {
		spot = &turn.ParkingSpot
	}
	sentiment := turn.Sentiment
	if sentiment == "" {
		sentiment = domain.SentimentNeutral
	}
	return scanTurn(r.pool.QueryRow(ctx, `
		INSERT INTO conversation_turns (customer_id, order_id, phone, direction, intent, message_content, response_text, sentiment, parking_spot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+turnColumns,
		turn.CustomerID, turn.OrderID, turn.Phone, string(turn.Direction), turn.Intent,
		turn.MessageContent, turn.ResponseText, string(sentiment), spot))
}

func (r *Repository) RecentTurns(ctx context.Context, phone string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+turnColumns+` FROM (
			SELECT `+turnColumns+` FROM conversation_turns
			WHERE phone = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC`, phone, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	turns := make([]domain.Turn, 0, limit)
	for rows.Next() {
		turn, err := scanTurn(rows)
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (r *Repository) LatestParkingSpot(ctx context.Context, phone string) (string, bool, error) {
	var spot string
	err := r.pool.QueryRow(ctx, `
		SELECT parking_spot FROM conversation_turns
		WHERE phone = $1 AND parking_spot IS NOT NULL AND parking_spot <> ''
		ORDER BY created_at DESC
		LIMIT 1`, phone).Scan(&spot)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return spot, true, nil
}

func (r *Repository) HasOptInRequestSince(ctx context.Context, phone string, since time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_turns
			WHERE phone = $1 AND response_text ILIKE '%' || $2 || '%' AND created_at >= $3
		)`, phone, OptInRequestMarker, since).Scan(&exists)
	return exists, err
}

// ===== voice escalations =====

func (r *Repository) CreateVoiceEscalation(ctx context.Context, esc domain.VoiceEscalation) (domain.VoiceEscalation, error) {
	status := esc.Status
	if status == "" {
		status = domain.EscalationInitiated
	}
	return scanEscalation(r.pool.QueryRow(ctx, `
		INSERT INTO voice_escalations (order_id, phone, call_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+escalationColumns, esc.OrderID, esc.Phone, esc.CallID, string(status)))
}

func (r *Repository) CompleteVoiceEscalation(ctx context.Context, completion domain.CallCompletion, endedAt time.Time) (domain.VoiceEscalation, error) {
	return scanEscalation(r.pool.QueryRow(ctx, `
		UPDATE voice_escalations
		SET status = $2, transcript = $3, summary = $4, duration_seconds = $5, ended_reason = $6, ended_at = $7
		WHERE call_id = $1 AND status = $8
		RETURNING `+escalationColumns,
		completion.CallID, string(domain.EscalationCompleted), completion.Transcript, completion.Summary,
		completion.DurationSeconds, completion.EndedReason, endedAt, string(domain.EscalationInitiated)))
}
