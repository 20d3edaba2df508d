package activity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Drain(ctx context.Context, limit, maxBatches int) (core.DrainResult, error) {
	args := m.Called(limit, maxBatches)
	return args.Get(0).(core.DrainResult), args.Error(1)
}

type mockInvoicer struct {
	mock.Mock
}

func (m *mockInvoicer) Generate(ctx context.Context, tenantID, customerID string) (*model.Invoice, error) {
	args := m.Called(tenantID, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Invoice), args.Error(1)
}

func (m *mockInvoicer) ListBillable(ctx context.Context) ([]core.BillableCustomer, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]core.BillableCustomer), args.Error(1)
}

func newBillingEnv(t *testing.T, a *Billing) *testsuite.TestActivityEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a)
	return env
}

func TestAggregateUsageBatch(t *testing.T) {
	agg := &mockAggregator{}
	want := core.DrainResult{Batches: 2, BatchResult: core.BatchResult{Claimed: 700, Counted: 690, Unmatched: 10, Groups: 12}}
	agg.On("Drain", 500, 4).Return(want, nil).Once()

	a := NewBilling(agg, &mockInvoicer{})
	val, err := newBillingEnv(t, a).ExecuteActivity(a.AggregateUsageBatch, AggregateUsageParams{BatchSize: 500, MaxBatches: 4})
	require.NoError(t, err)

	var got core.DrainResult
	require.NoError(t, val.Get(&got))
	assert.Equal(t, want, got)
	agg.AssertExpectations(t)
}

func TestAggregateUsageBatch_Error(t *testing.T) {
	agg := &mockAggregator{}
	agg.On("Drain", 500, 1).Return(core.DrainResult{}, errors.New("deadlock detected")).Once()

	a := NewBilling(agg, &mockInvoicer{})
	_, err := newBillingEnv(t, a).ExecuteActivity(a.AggregateUsageBatch, AggregateUsageParams{BatchSize: 500, MaxBatches: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
}

func TestListBillableCustomers(t *testing.T) {
	inv := &mockInvoicer{}
	inv.On("ListBillable").Return([]core.BillableCustomer{{TenantID: "t1", CustomerID: "c1"}}, nil).Once()

	a := NewBilling(&mockAggregator{}, inv)
	val, err := newBillingEnv(t, a).ExecuteActivity(a.ListBillableCustomers)
	require.NoError(t, err)

	var got []core.BillableCustomer
	require.NoError(t, val.Get(&got))
	assert.Equal(t, []core.BillableCustomer{{TenantID: "t1", CustomerID: "c1"}}, got)
}

func TestGenerateInvoice(t *testing.T) {
	inv := &mockInvoicer{}
	inv.On("Generate", "t1", "c1").Return(&model.Invoice{ID: "inv-1", TotalCents: 1500, Currency: "USD"}, nil).Once()

	a := NewBilling(&mockAggregator{}, inv)
	val, err := newBillingEnv(t, a).ExecuteActivity(a.GenerateInvoice, GenerateInvoiceParams{TenantID: "t1", CustomerID: "c1"})
	require.NoError(t, err)

	var got GenerateInvoiceResult
	require.NoError(t, val.Get(&got))
	assert.Equal(t, GenerateInvoiceResult{InvoiceID: "inv-1", TotalCents: 1500, Currency: "USD"}, got)
}

func TestGenerateInvoice_NothingToBill(t *testing.T) {
	inv := &mockInvoicer{}
	inv.On("Generate", "t1", "c1").Return(nil, fmt.Errorf("%w: no unbilled usage", core.ErrNoContent)).Once()

	a := NewBilling(&mockAggregator{}, inv)
	val, err := newBillingEnv(t, a).ExecuteActivity(a.GenerateInvoice, GenerateInvoiceParams{TenantID: "t1", CustomerID: "c1"})
	require.NoError(t, err)

	var got GenerateInvoiceResult
	require.NoError(t, val.Get(&got))
	assert.True(t, got.Skipped)
}

func TestGenerateInvoice_ErrorClasses(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		nonRetryable bool
	}{
		{"unknown customer", fmt.Errorf("%w: customer c1", core.ErrNotFound), true},
		{"overflow", fmt.Errorf("%w: invoice total", core.ErrAmountOverflow), true},
		{"upload failure", errors.New("s3: request timeout"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &mockInvoicer{}
			inv.On("Generate", "t1", "c1").Return(nil, tt.err).Once()

			a := NewBilling(&mockAggregator{}, inv)
			_, err := newBillingEnv(t, a).ExecuteActivity(a.GenerateInvoice, GenerateInvoiceParams{TenantID: "t1", CustomerID: "c1"})
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.nonRetryable, appErr.NonRetryable())
		})
	}
}
