package core

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/edvin/metering/internal/model"
)

func existsRow(v bool) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*bool)) = v
		return nil
	}}
}

func createdAtRow(at time.Time) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*time.Time)) = at
		return nil
	}}
}

func TestCatalogService_CreateProduct(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tx := db.expectBegin()
	db.On("Exec", ctx, sqlHas("pg_advisory_xact_lock"), []any{"product:t1:api_call"}).Return(tag("SELECT 1"), nil)
	db.On("QueryRow", ctx, sqlHas("SELECT EXISTS"), []any{"t1", "api_call"}).Return(existsRow(false))
	db.On("QueryRow", ctx, sqlHas("INSERT INTO products"), mock.Anything).Return(createdAtRow(now))

	var priceArgs []any
	db.On("QueryRow", ctx, sqlHas("INSERT INTO prices"), mock.Anything).
		Run(func(a mock.Arguments) { priceArgs = a.Get(2).([]any) }).
		Return(createdAtRow(now))

	p, err := svc.CreateProduct(ctx, "t1", ProductInput{
		Name:            " API calls ",
		EventNameMatch:  "api_call",
		UnitAmountCents: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, "API calls", p.Name)
	require.NotNil(t, p.Price)
	assert.Equal(t, int64(5), p.Price.UnitAmountCents)
	assert.Equal(t, "USD", p.Price.Currency)
	assert.Equal(t, model.PricingPerUnit, p.Price.PricingType)
	assert.Equal(t, p.ID, priceArgs[1])
	assert.True(t, tx.committed)
	db.AssertExpectations(t)
}

func TestCatalogService_CreateProduct_DuplicateMatch(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	tx := db.expectBegin()
	db.On("Exec", ctx, sqlHas("pg_advisory_xact_lock"), mock.Anything).Return(tag("SELECT 1"), nil)
	db.On("QueryRow", ctx, sqlHas("SELECT EXISTS"), []any{"t1", "api_call"}).Return(existsRow(true))

	_, err := svc.CreateProduct(ctx, "t1", ProductInput{Name: "Calls v2", EventNameMatch: "api_call", UnitAmountCents: 7})
	require.ErrorIs(t, err, ErrConflict)
	assert.True(t, tx.rolledBack)
	db.AssertNotCalled(t, "QueryRow", mock.Anything, sqlHas("INSERT INTO products"), mock.Anything)
}

func TestCatalogService_CreateProduct_Validation(t *testing.T) {
	tests := []struct {
		name string
		in   ProductInput
	}{
		{"missing name", ProductInput{EventNameMatch: "x", UnitAmountCents: 1}},
		{"missing match", ProductInput{Name: "x", UnitAmountCents: 1}},
		{"negative price", ProductInput{Name: "x", EventNameMatch: "x", UnitAmountCents: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &mockDB{}
			svc := NewCatalogService(db, "USD")
			_, err := svc.CreateProduct(context.Background(), "t1", tt.in)
			require.ErrorIs(t, err, ErrBadRequest)
			db.AssertNotCalled(t, "Begin", mock.Anything)
		})
	}
}

func TestCatalogService_GetProduct(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlHas("WHERE p.tenant_id = $1 AND p.id = $2"), []any{"t1", "p1"}).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = "p1"
			*(dest[1].(*string)) = "t1"
			*(dest[2].(*string)) = "API calls"
			*(dest[3].(*string)) = "api_call"
			priceID, pricing, currency := "price-1", model.PricingPerUnit, "ZAR"
			amount := int64(250)
			*(dest[5].(**string)) = &priceID
			*(dest[6].(**string)) = &pricing
			*(dest[7].(**int64)) = &amount
			*(dest[8].(**string)) = &currency
			return nil
		}})
	db.On("QueryRow", ctx, sqlHas("WHERE p.tenant_id = $1 AND p.id = $2"), []any{"t1", "p2"}).
		Return(errRow(pgx.ErrNoRows))

	p, err := svc.GetProduct(ctx, "t1", "p1")
	require.NoError(t, err)
	require.NotNil(t, p.Price)
	assert.Equal(t, int64(250), p.Price.UnitAmountCents)
	assert.Equal(t, "ZAR", p.Price.Currency)
	assert.Equal(t, "p1", p.Price.ProductID)

	_, err = svc.GetProduct(ctx, "t1", "p2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogService_ListProducts_WithoutPrice(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	db.On("Query", ctx, sqlHas("ORDER BY p.name, p.id"), []any{"t1"}).
		Return(newMockRows(func(dest ...any) error {
			*(dest[0].(*string)) = "p1"
			*(dest[2].(*string)) = "Legacy"
			return nil
		}), nil)

	products, err := svc.ListProducts(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Nil(t, products[0].Price)
}

func TestCatalogService_SetPrice(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlHas("SELECT tenant_id FROM products"), []any{"p1", "t1"}).
		Return(returnID("t1"))
	db.On("QueryRow", ctx, sqlHas("ON CONFLICT (product_id) DO UPDATE"), mock.Anything).
		Return(&mockRow{scanFunc: func(dest ...any) error {
			*(dest[0].(*string)) = "price-1"
			return nil
		}})

	price, err := svc.SetPrice(ctx, "t1", "p1", 9, "")
	require.NoError(t, err)
	assert.Equal(t, "price-1", price.ID)
	assert.Equal(t, int64(9), price.UnitAmountCents)
	assert.Equal(t, "USD", price.Currency)
}

func TestCatalogService_SetPrice_ForeignProduct(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	db.On("QueryRow", ctx, sqlHas("SELECT tenant_id FROM products"), []any{"p1", "t2"}).
		Return(errRow(pgx.ErrNoRows))

	_, err := svc.SetPrice(ctx, "t2", "p1", 9, "USD")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogService_LoadMatchRules(t *testing.T) {
	db := &mockDB{}
	svc := NewCatalogService(db, "USD")
	ctx := context.Background()

	db.On("Query", ctx, sqlHas("SELECT id, tenant_id, event_name_match FROM products"), []any(nil)).
		Return(ruleRows(
			model.MatchRule{ProductID: "p1", TenantID: "t1", EventNameMatch: "a"},
			model.MatchRule{ProductID: "p2", TenantID: "t2", EventNameMatch: "a"},
		), nil)

	rules, err := svc.LoadMatchRules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 2)
	assert.Equal(t, "t2", rules[1].TenantID)
}
