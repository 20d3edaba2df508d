package core

import (
	"context"
	"fmt"
	"time"

	"github.com/edvin/metering/internal/metrics"
	"github.com/edvin/metering/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of events claimed per aggregation batch.
const DefaultBatchSize = 500

// BatchResult summarizes one aggregation batch.
type BatchResult struct {
	Claimed   int `json:"claimed"`
	Counted   int `json:"counted"`
	Unmatched int `json:"unmatched"`
	Groups    int `json:"groups"`
}

// DrainResult sums the batches of one Drain call.
type DrainResult struct {
	Batches int `json:"batches"`
	BatchResult
}

// UsageAggregator folds pending events into daily usage aggregates.
type UsageAggregator struct {
	db     DB
	logger zerolog.Logger
}

// NewUsageAggregator creates a new UsageAggregator.
func NewUsageAggregator(db DB, logger zerolog.Logger) *UsageAggregator {
	return &UsageAggregator{db: db, logger: logger.With().Str("component", "aggregator").Logger()}
}

// RunBatch claims up to limit pending events, adds their counts to the open
// aggregates and marks them processed, all in one transaction. Events locked
// by a concurrent batch are skipped, so parallel runs split the backlog
// without counting an event twice. On any error nothing is applied.
func (a *UsageAggregator) RunBatch(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	start := time.Now()

	var res BatchResult
	err := pgx.BeginFunc(ctx, a.db, func(tx pgx.Tx) error {
		rules, err := loadMatchRules(ctx, tx)
		if err != nil {
			return err
		}

		events, err := claimPendingEvents(ctx, tx, limit)
		if err != nil {
			return err
		}
		res = BatchResult{Claimed: len(events)}
		if len(events) == 0 {
			return nil
		}

		plan := PlanBatch(rules, events)
		for _, c := range plan.Conflicts {
			a.logger.Warn().
				Str("tenant_id", c.TenantID).
				Str("event_name", c.EventName).
				Strs("product_ids", c.ProductIDs).
				Str("chosen_product_id", c.Chosen).
				Msg("multiple products match event name")
		}

		for _, g := range plan.Groups {
			if _, err := tx.Exec(ctx,
				`INSERT INTO usage_aggregates (tenant_id, customer_id, product_id, usage_date, usage_count, created_at, updated_at)
				 VALUES ($1, $2, $3, $4, $5, now(), now())
				 ON CONFLICT (tenant_id, customer_id, product_id, usage_date) WHERE NOT billed
				 DO UPDATE SET usage_count = usage_aggregates.usage_count + EXCLUDED.usage_count, updated_at = now()`,
				g.TenantID, g.CustomerID, g.ProductID, g.UsageDate, g.Count,
			); err != nil {
				return fmt.Errorf("upsert usage aggregate: %w", err)
			}
		}

		for _, pe := range plan.Counted {
			if _, err := tx.Exec(ctx,
				`UPDATE events SET status = $1, product_id = $2, processed_at = now() WHERE id = ANY($3)`,
				model.EventCounted, pe.ProductID, pe.EventIDs,
			); err != nil {
				return fmt.Errorf("mark events counted: %w", err)
			}
		}
		if len(plan.Unmatched) > 0 {
			if _, err := tx.Exec(ctx,
				`UPDATE events SET status = $1, processed_at = now() WHERE id = ANY($2)`,
				model.EventUnmatched, plan.Unmatched,
			); err != nil {
				return fmt.Errorf("mark events unmatched: %w", err)
			}
		}

		res.Counted = plan.CountedEvents()
		res.Unmatched = len(plan.Unmatched)
		res.Groups = len(plan.Groups)
		return nil
	})
	metrics.AggregationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AggregationBatches.WithLabelValues("failed").Inc()
		return BatchResult{}, fmt.Errorf("aggregation batch: %w", err)
	}

	metrics.AggregationBatches.WithLabelValues("committed").Inc()
	metrics.EventsAggregated.WithLabelValues(model.EventCounted).Add(float64(res.Counted))
	metrics.EventsAggregated.WithLabelValues(model.EventUnmatched).Add(float64(res.Unmatched))
	if res.Claimed > 0 {
		a.logger.Info().
			Int("claimed", res.Claimed).
			Int("counted", res.Counted).
			Int("unmatched", res.Unmatched).
			Int("groups", res.Groups).
			Msg("aggregation batch committed")
	}
	return res, nil
}

// Drain runs batches until one comes back short or maxBatches is reached.
func (a *UsageAggregator) Drain(ctx context.Context, limit, maxBatches int) (DrainResult, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	if maxBatches <= 0 {
		maxBatches = 1
	}
	var total DrainResult
	for total.Batches < maxBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		res, err := a.RunBatch(ctx, limit)
		if err != nil {
			return total, err
		}
		total.Batches++
		total.Claimed += res.Claimed
		total.Counted += res.Counted
		total.Unmatched += res.Unmatched
		total.Groups += res.Groups
		if res.Claimed < limit {
			break
		}
	}
	return total, nil
}

func claimPendingEvents(ctx context.Context, tx querier, limit int) ([]model.Event, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, tenant_id, customer_id, event_name, created_at FROM events
		 WHERE status = $1
		 ORDER BY created_at, id
		 LIMIT $2
		 FOR UPDATE SKIP LOCKED`,
		model.EventPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim pending events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(&e.ID, &e.TenantID, &e.CustomerID, &e.EventName, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending events: %w", err)
	}
	return events, nil
}
