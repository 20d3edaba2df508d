package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/edvin/metering/internal/api/response"
	"github.com/edvin/metering/internal/core"
)

// Aggregation triggers usage aggregation on demand.
type Aggregation struct {
	aggregator *core.UsageAggregator
	batchSize  int
	maxBatches int
}

// NewAggregation creates a new Aggregation handler.
func NewAggregation(aggregator *core.UsageAggregator, batchSize, maxBatches int) *Aggregation {
	return &Aggregation{aggregator: aggregator, batchSize: batchSize, maxBatches: maxBatches}
}

// Run drains pending events. Query: batch_size and max_batches override the
// configured values.
func (h *Aggregation) Run(w http.ResponseWriter, r *http.Request) {
	batchSize, err := positiveQueryInt(r, "batch_size", h.batchSize)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	maxBatches, err := positiveQueryInt(r, "max_batches", h.maxBatches)
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.aggregator.Drain(r.Context(), batchSize, maxBatches)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, res)
}

func positiveQueryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}

