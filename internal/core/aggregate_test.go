package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/model"
)

func ruleRows(rules ...model.MatchRule) *mockRows {
	var fns []func(dest ...any) error
	for _, r := range rules {
		fns = append(fns, func(dest ...any) error {
			*(dest[0].(*string)) = r.ProductID
			*(dest[1].(*string)) = r.TenantID
			*(dest[2].(*string)) = r.EventNameMatch
			return nil
		})
	}
	return newMockRows(fns...)
}

func pendingRows(events ...model.Event) *mockRows {
	var fns []func(dest ...any) error
	for _, e := range events {
		fns = append(fns, func(dest ...any) error {
			*(dest[0].(*string)) = e.ID
			*(dest[1].(*string)) = e.TenantID
			*(dest[2].(*string)) = e.CustomerID
			*(dest[3].(*string)) = e.EventName
			*(dest[4].(*time.Time)) = e.CreatedAt
			return nil
		})
	}
	return newMockRows(fns...)
}

func TestUsageAggregator_RunBatch(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tx := db.expectBegin()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).
		Return(ruleRows(model.MatchRule{ProductID: "p1", TenantID: "t1", EventNameMatch: "api_call"}), nil)
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), []any{model.EventPending, 100}).
		Return(pendingRows(
			evt("e1", "t1", "c1", "api_call", at),
			evt("e2", "t1", "c1", "api_call", at.Add(time.Hour)),
			evt("e3", "t1", "c1", "page_view", at),
		), nil)
	db.On("Exec", ctx, sqlHas("usage_aggregates.usage_count + EXCLUDED.usage_count"),
		[]any{"t1", "c1", "p1", day(2024, 1, 10), int64(2)}).Return(tag("INSERT 0 1"), nil).Once()
	db.On("Exec", ctx, sqlHas("SET status = $1, product_id = $2"),
		[]any{model.EventCounted, "p1", []string{"e1", "e2"}}).Return(tag("UPDATE 2"), nil).Once()
	db.On("Exec", ctx, sqlHas("SET status = $1, processed_at = now()"),
		[]any{model.EventUnmatched, []string{"e3"}}).Return(tag("UPDATE 1"), nil).Once()

	res, err := agg.RunBatch(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 3, Counted: 2, Unmatched: 1, Groups: 1}, res)
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestUsageAggregator_RunBatch_Empty(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()

	tx := db.expectBegin()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil)
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).Return(newEmptyMockRows(), nil)

	res, err := agg.RunBatch(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{}, res)
	assert.True(t, tx.committed)
	db.AssertNotCalled(t, "Exec", mock.Anything, mock.Anything, mock.Anything)
}

func TestUsageAggregator_RunBatch_DefaultLimit(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()

	db.expectBegin()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil)
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), []any{model.EventPending, DefaultBatchSize}).
		Return(newEmptyMockRows(), nil)

	_, err := agg.RunBatch(ctx, -5)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestUsageAggregator_RunBatch_RollsBackOnFailure(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	tx := db.expectBegin()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).
		Return(ruleRows(model.MatchRule{ProductID: "p1", TenantID: "t1", EventNameMatch: "api_call"}), nil)
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).
		Return(pendingRows(evt("e1", "t1", "c1", "api_call", at)), nil)
	db.On("Exec", ctx, sqlHas("INSERT INTO usage_aggregates"), mock.Anything).Return(tag("INSERT 0 1"), nil)
	db.On("Exec", ctx, sqlHas("product_id = $2"), mock.Anything).
		Return(tag(""), errors.New("deadlock detected"))

	_, err := agg.RunBatch(ctx, 100)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark events counted")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestUsageAggregator_RunBatch_CommitFailure(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()

	tx := db.expectBegin()
	tx.commitErr = errors.New("serialization failure")
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil)
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).Return(newEmptyMockRows(), nil)

	_, err := agg.RunBatch(ctx, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialization failure")
}

func TestUsageAggregator_Drain_StopsOnShortBatch(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	// First batch is full (2 of 2), second is short (1 of 2).
	db.On("Begin", mock.Anything).Return(&mockTx{db: db}, nil).Once()
	db.On("Begin", mock.Anything).Return(&mockTx{db: db}, nil).Once()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil).Once()
	db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil).Once()
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).
		Return(pendingRows(evt("e1", "t1", "c1", "x", at), evt("e2", "t1", "c1", "x", at)), nil).Once()
	db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).
		Return(pendingRows(evt("e3", "t1", "c1", "x", at)), nil).Once()
	db.On("Exec", ctx, sqlHas("SET status = $1, processed_at = now()"), mock.Anything).Return(tag("UPDATE 1"), nil)

	res, err := agg.Drain(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 3, res.Claimed)
	assert.Equal(t, 3, res.Unmatched)
	db.AssertExpectations(t)
}

func TestUsageAggregator_Drain_RespectsMaxBatches(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx := context.Background()
	at := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

	for range 3 {
		db.expectBegin()
		db.On("Query", ctx, sqlHas("FROM products"), []any(nil)).Return(ruleRows(), nil).Once()
		db.On("Query", ctx, sqlHas("FOR UPDATE SKIP LOCKED"), mock.Anything).
			Return(pendingRows(evt("e", "t1", "c1", "x", at)), nil).Once()
	}
	db.On("Exec", ctx, sqlHas("processed_at = now()"), mock.Anything).Return(tag("UPDATE 1"), nil)

	res, err := agg.Drain(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batches)
	db.AssertExpectations(t)
}

func TestUsageAggregator_Drain_CanceledContext(t *testing.T) {
	db := &mockDB{}
	agg := NewUsageAggregator(db, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := agg.Drain(ctx, 10, 5)
	require.ErrorIs(t, err, context.Canceled)
	db.AssertNotCalled(t, "Begin", mock.Anything)
}
