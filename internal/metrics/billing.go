package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metering"

var (
	// EventsIngested counts ingestion attempts by result:
	// accepted, duplicate or rejected.
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_ingested_total",
		Help:      "Usage events received by the ingestion endpoint.",
	}, []string{"result"})

	// EventsAggregated counts events consumed by the aggregator by outcome:
	// counted or unmatched.
	EventsAggregated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_aggregated_total",
		Help:      "Events consumed by aggregation batches.",
	}, []string{"outcome"})

	AggregationBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "aggregation_batches_total",
		Help:      "Aggregation batches by status.",
	}, []string{"status"})

	AggregationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "aggregation_batch_duration_seconds",
		Help:      "Duration of one aggregation batch transaction.",
		Buckets:   prometheus.DefBuckets,
	})

	// InvoicesGenerated counts invoice generation attempts by result:
	// created, empty or failed.
	InvoicesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoices_generated_total",
		Help:      "Invoice generation attempts by result.",
	}, []string{"result"})

	InvoicedCents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "invoiced_cents_total",
		Help:      "Sum of invoice totals in minor currency units.",
	}, []string{"currency"})
)
