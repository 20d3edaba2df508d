//go:build integration

package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edvin/metering/internal/api/request"
	"github.com/edvin/metering/internal/blob"
	meteringdb "github.com/edvin/metering/internal/db"
	"github.com/edvin/metering/internal/model"
	"github.com/edvin/metering/internal/render"
)

type testEnv struct {
	pool *pgxpool.Pool
	svcs *Services
}

// newTestEnv starts a throwaway Postgres, applies the migrations and wires
// the services against it.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("metering_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, meteringdb.RunMigrations(dsn))

	pool, err := meteringdb.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store, err := blob.NewLocal(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	return &testEnv{
		pool: pool,
		svcs: NewServices(pool, store, render.NewPDF(), Options{Currency: "USD"}, zerolog.Nop()),
	}
}

func (e *testEnv) seed(t *testing.T, tenantID, customerID, eventName string, unitCents int64) *model.Product {
	t.Helper()
	ctx := context.Background()
	_, err := e.svcs.Tenant.Create(ctx, tenantID, "Tenant "+tenantID)
	require.NoError(t, err)
	_, err = e.svcs.Customer.Create(ctx, tenantID, CustomerInput{ID: customerID, Name: "Customer " + customerID})
	require.NoError(t, err)
	p, err := e.svcs.Catalog.CreateProduct(ctx, tenantID, ProductInput{
		Name:            "Product " + eventName,
		EventNameMatch:  eventName,
		UnitAmountCents: unitCents,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) ingest(t *testing.T, tenantID, customerID, eventName string, n int) {
	t.Helper()
	for range n {
		_, err := e.svcs.Event.Ingest(context.Background(), tenantID, EventInput{CustomerID: customerID, EventName: eventName})
		require.NoError(t, err)
	}
}

func (e *testEnv) usage(t *testing.T, tenantID, customerID string) []model.UsageAggregate {
	t.Helper()
	aggs, err := e.svcs.Usage.ListAggregates(context.Background(), tenantID, customerID, UsageFilter{})
	require.NoError(t, err)
	return aggs
}

func TestIntegration_ExampleScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	product := env.seed(t, "T", "C", "api_call", 5)

	env.ingest(t, "T", "C", "api_call", 3)

	res, err := env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, BatchResult{Claimed: 3, Counted: 3, Groups: 1}, res)

	aggs := env.usage(t, "T", "C")
	require.Len(t, aggs, 1)
	assert.Equal(t, product.ID, aggs[0].ProductID)
	assert.Equal(t, int64(3), aggs[0].UsageCount)
	assert.Equal(t, UsageDate(time.Now()), aggs[0].UsageDate.UTC())

	inv, err := env.svcs.Generator.Generate(ctx, "T", "C")
	require.NoError(t, err)
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, int64(3), inv.LineItems[0].Quantity)
	assert.Equal(t, int64(5), inv.LineItems[0].UnitAmountCents)
	assert.Equal(t, int64(15), inv.LineItems[0].LineTotalCents)
	assert.Equal(t, int64(15), inv.TotalCents)

	aggs = env.usage(t, "T", "C")
	require.Len(t, aggs, 1)
	assert.True(t, aggs[0].Billed)
	require.NotNil(t, aggs[0].InvoiceID)
	assert.Equal(t, inv.ID, *aggs[0].InvoiceID)

	_, err = env.svcs.Generator.Generate(ctx, "T", "C")
	require.ErrorIs(t, err, ErrNoContent)

	stored, err := env.svcs.Invoice.Get(ctx, "T", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.LineItems, stored.LineItems)

	rc, info, err := env.svcs.Invoice.OpenDocument(ctx, "T", inv.ID)
	require.NoError(t, err)
	defer rc.Close()
	assert.Positive(t, info.Size)
}

func TestIntegration_AggregationIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T", "C", "api_call", 5)
	env.ingest(t, "T", "C", "api_call", 4)
	env.ingest(t, "T", "C", "unpriced_thing", 2)

	first, err := env.svcs.Aggregator.Drain(ctx, 3, 10)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Claimed)
	assert.Equal(t, 4, first.Counted)
	assert.Equal(t, 2, first.Unmatched)

	again, err := env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)
	assert.Zero(t, again.Claimed)

	aggs := env.usage(t, "T", "C")
	require.Len(t, aggs, 1)
	assert.Equal(t, int64(4), aggs[0].UsageCount)

	unmatched, _, err := env.svcs.Event.List(ctx, "T", request.ListParams{Limit: 10, Status: model.EventUnmatched})
	require.NoError(t, err)
	assert.Len(t, unmatched, 2)
}

func TestIntegration_ConcurrentAggregationCountsOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T", "C", "api_call", 1)
	env.ingest(t, "T", "C", "api_call", 200)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.svcs.Aggregator.Drain(ctx, 25, 100); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var total int64
	for _, a := range env.usage(t, "T", "C") {
		total += a.UsageCount
	}
	assert.Equal(t, int64(200), total)
}

func TestIntegration_NoDoubleBilling(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T", "C", "api_call", 5)
	env.ingest(t, "T", "C", "api_call", 10)
	_, err := env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		invoices []*model.Invoice
		empties  int
	)
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inv, err := env.svcs.Generator.Generate(ctx, "T", "C")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				invoices = append(invoices, inv)
			case errors.Is(err, ErrNoContent):
				empties++
			default:
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, invoices, 1)
	assert.Equal(t, 4, empties)
	assert.Equal(t, int64(50), invoices[0].TotalCents)

	// Usage arriving after billing opens a fresh aggregate for the same day.
	env.ingest(t, "T", "C", "api_call", 2)
	_, err = env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)

	aggs := env.usage(t, "T", "C")
	require.Len(t, aggs, 2)
	next, err := env.svcs.Generator.Generate(ctx, "T", "C")
	require.NoError(t, err)
	assert.Equal(t, int64(10), next.TotalCents)
	assert.NotEqual(t, invoices[0].FilePath, next.FilePath)
}

func TestIntegration_TenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T1", "C", "api_call", 5)
	env.seed(t, "T2", "C", "api_call", 7)

	env.ingest(t, "T1", "C", "api_call", 3)
	env.ingest(t, "T2", "C", "api_call", 1)
	_, err := env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)

	inv1, err := env.svcs.Generator.Generate(ctx, "T1", "C")
	require.NoError(t, err)
	assert.Equal(t, int64(15), inv1.TotalCents)

	inv2, err := env.svcs.Generator.Generate(ctx, "T2", "C")
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv2.TotalCents)

	_, err = env.svcs.Invoice.Get(ctx, "T2", inv1.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, _, err = env.svcs.Invoice.OpenDocument(ctx, "T2", inv1.ID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = env.svcs.Event.Ingest(ctx, "T2", EventInput{CustomerID: "only-in-t1", EventName: "api_call"})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestIntegration_IdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T", "C", "api_call", 5)
	_, err := env.svcs.Customer.Create(ctx, "T", CustomerInput{ID: "C2", Name: "Other"})
	require.NoError(t, err)

	first, err := env.svcs.Event.Ingest(ctx, "T", EventInput{CustomerID: "C", EventName: "api_call", IdempotencyKey: "req-1"})
	require.NoError(t, err)
	second, err := env.svcs.Event.Ingest(ctx, "T", EventInput{CustomerID: "C2", EventName: "api_call", IdempotencyKey: "req-1"})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.ID)

	res, err := env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Claimed)
}

func TestIntegration_DuplicateProductMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seed(t, "T", "C", "api_call", 5)

	_, err := env.svcs.Catalog.CreateProduct(ctx, "T", ProductInput{Name: "Again", EventNameMatch: "api_call", UnitAmountCents: 1})
	require.ErrorIs(t, err, ErrConflict)

	// Legacy duplicates inserted behind the API's back still aggregate
	// deterministically to the lowest product id.
	for _, id := range []string{"zzz-legacy", "000-legacy"} {
		_, err := env.pool.Exec(ctx,
			`INSERT INTO products (id, tenant_id, name, event_name_match) VALUES ($1, 'T', $2, 'api_call')`,
			id, fmt.Sprintf("Legacy %s", id))
		require.NoError(t, err)
	}
	env.ingest(t, "T", "C", "api_call", 1)
	_, err = env.svcs.Aggregator.RunBatch(ctx, 500)
	require.NoError(t, err)

	aggs := env.usage(t, "T", "C")
	require.Len(t, aggs, 1)
	assert.Equal(t, "000-legacy", aggs[0].ProductID)
}
