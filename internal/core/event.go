package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/platform"
	"github.com/jackc/pgx/v5"
)

// EventInput is a usage event as submitted by a tenant's application.
type EventInput struct {
	CustomerID     string
	EventName      string
	Properties     map[string]any
	IdempotencyKey string
}

// IngestResult identifies the stored event. Duplicate is set when the
// idempotency key was already used and no new event was written.
type IngestResult struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// EventService records raw usage events.
type EventService struct {
	db DB
}

// NewEventService creates a new EventService.
func NewEventService(db DB) *EventService {
	return &EventService{db: db}
}

// Ingest validates and stores one event in the pending state. A repeated
// idempotency key for the same tenant is a no-op returning the original id.
func (s *EventService) Ingest(ctx context.Context, tenantID string, in EventInput) (*IngestResult, error) {
	customerID := strings.TrimSpace(in.CustomerID)
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer_id is required", ErrBadRequest)
	}
	// Stored as received; matching is exact against product event names.
	eventName := in.EventName
	if strings.TrimSpace(eventName) == "" {
		return nil, fmt.Errorf("%w: event_name is required", ErrBadRequest)
	}

	props := in.Properties
	if props == nil {
		props = map[string]any{}
	}
	var idemKey *string
	if k := strings.TrimSpace(in.IdempotencyKey); k != "" {
		idemKey = &k
	}

	id := platform.NewID()
	var storedID string
	err := s.db.QueryRow(ctx,
		`INSERT INTO events (id, tenant_id, customer_id, event_name, properties, idempotency_key, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (tenant_id, idempotency_key) WHERE idempotency_key IS NOT NULL DO NOTHING
		 RETURNING id`,
		id, tenantID, customerID, eventName, props, idemKey, model.EventPending,
	).Scan(&storedID)
	switch {
	case err == nil:
		metrics.EventsIngested.WithLabelValues("accepted").Inc()
		return &IngestResult{ID: storedID}, nil
	case errors.Is(err, pgx.ErrNoRows) && idemKey != nil:
		return s.duplicate(ctx, tenantID, *idemKey)
	case isPgError(err, pgForeignKeyViolation):
		metrics.EventsIngested.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: customer not found", ErrBadRequest)
	default:
		return nil, fmt.Errorf("insert event: %w", err)
	}
}

func (s *EventService) duplicate(ctx context.Context, tenantID, key string) (*IngestResult, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT id FROM events WHERE tenant_id = $1 AND idempotency_key = $2`,
		tenantID, key,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("lookup event by idempotency key: %w", err)
	}
	metrics.EventsIngested.WithLabelValues("duplicate").Inc()
	return &IngestResult{ID: id, Duplicate: true}, nil
}

// List returns the tenant's events, newest first.
func (s *EventService) List(ctx context.Context, tenantID string, params request.ListParams) ([]model.Event, bool, error) {
	query := `SELECT id, tenant_id, customer_id, event_name, properties, idempotency_key, status, product_id, created_at, processed_at
		FROM events WHERE tenant_id = $1`
	args := []any{tenantID}
	if params.Status != "" {
		args = append(args, params.Status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if params.CustomerID != "" {
		args = append(args, params.CustomerID)
		query += fmt.Sprintf(` AND customer_id = $%d`, len(args))
	}
	query, args = pageCursor(query, args, "events", params.Cursor)
	query, args = pageLimit(query, args, params.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CustomerID, &e.EventName, &e.Properties,
			&e.IdempotencyKey, &e.Status, &e.ProductID, &e.CreatedAt, &e.ProcessedAt); err != nil {
			return nil, false, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("iterate events: %w", err)
	}

	events, hasMore := trimPage(events, params.Limit)
	return events, hasMore, nil
}
