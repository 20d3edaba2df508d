package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUsageService_ListAggregates(t *testing.T) {
	db := &mockDB{}
	svc := NewUsageService(db)
	ctx := context.Background()

	db.On("Query", ctx,
		sqlHas("AND usage_date >= $3 AND usage_date <= $4 AND NOT billed ORDER BY usage_date"),
		[]any{"t1", "c1", day(2024, 1, 1), day(2024, 1, 31)},
	).Return(aggregateRows(aggregate("a1", "p1", day(2024, 1, 5), 7)), nil)

	aggs, err := svc.ListAggregates(ctx, "t1", "c1", UsageFilter{
		From:         time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC),
		To:           day(2024, 1, 31),
		UnbilledOnly: true,
	})
	require.NoError(t, err)
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(7), aggs[0].UsageCount)
	db.AssertExpectations(t)
}

func TestUsageService_ListAggregates_NoFilter(t *testing.T) {
	db := &mockDB{}
	svc := NewUsageService(db)
	ctx := context.Background()
	db.On("Query", ctx, sqlHas("customer_id = $2 ORDER BY usage_date, product_id, created_at"), []any{"t1", "c1"}).
		Return(newEmptyMockRows(), nil)

	aggs, err := svc.ListAggregates(ctx, "t1", "c1", UsageFilter{})
	require.NoError(t, err)
	assert.Empty(t, aggs)
}
