package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/gateway"
	"github.com/punchamoorthee/payops/internal/service"
)

type mockLister struct {
	invoices []domain.Invoice
	err      error
}

func (m *mockLister) UnpaidWithOrderRef(ctx context.Context) ([]domain.Invoice, error) {
	return m.invoices, m.err
}

type mockGateway struct {
	responses map[string]domain.GatewayEvent
	errs      map[string]error
	calls     []string
}

func (m *mockGateway) GetOrder(ctx context.Context, orderRef string) (domain.GatewayEvent, error) {
	m.calls = append(m.calls, orderRef)
	if err := m.errs[orderRef]; err != nil {
		return domain.GatewayEvent{}, err
	}
	return m.responses[orderRef], nil
}

type mockReconciler struct {
	applied []domain.GatewayEvent
	errs    map[string]error
}

func (m *mockReconciler) Apply(ctx context.Context, ev domain.GatewayEvent) (*service.ReconcileResult, error) {
	m.applied = append(m.applied, ev)
	if err := m.errs[ev.TraceNumber]; err != nil {
		return nil, err
	}
	return &service.ReconcileResult{
		Invoice: &domain.Invoice{Number: ev.OrderRef},
		Payment: &domain.Payment{TraceNumber: ev.TraceNumber},
		State:   domain.StatePaid,
	}, nil
}

func invoice(number, orderRef string) domain.Invoice {
	return domain.Invoice{
		ID:          uuid.New(),
		Number:      number,
		OrderRef:    orderRef,
		AmountTotal: decimal.RequireFromString("100.00"),
		Currency:    "USD",
		State:       domain.StateUnpaid,
	}
}

func TestRunReconcilesCapturedOrders(t *testing.T) {
	gw := &mockGateway{responses: map[string]domain.GatewayEvent{
		"FC-1": {OrderRef: "FC-1", TraceNumber: "TXN1", Amount: decimal.RequireFromString("100.00")},
	}}
	rec := &mockReconciler{}
	p := New(&mockLister{invoices: []domain.Invoice{invoice("INV1", "FC-1")}}, gw, rec, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, rec.applied, 1)
	assert.Equal(t, "TXN1", rec.applied[0].TraceNumber)
}

func TestRunOneFailureDoesNotAbortBatch(t *testing.T) {
	gw := &mockGateway{
		responses: map[string]domain.GatewayEvent{
			"FC-2": {OrderRef: "FC-2", TraceNumber: "TXN2", Amount: decimal.RequireFromString("50.00")},
			"FC-3": {OrderRef: "FC-3", TraceNumber: "TXN3", Amount: decimal.RequireFromString("75.00")},
		},
		errs: map[string]error{
			"FC-1": &gateway.Error{Status: 503, Body: "unavailable"},
		},
	}
	rec := &mockReconciler{errs: map[string]error{"TXN2": errors.New("ledger hiccup")}}
	lister := &mockLister{invoices: []domain.Invoice{
		invoice("INV1", "FC-1"),
		invoice("INV2", "FC-2"),
		invoice("INV3", "FC-3"),
	}}
	p := New(lister, gw, rec, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []string{"FC-1", "FC-2", "FC-3"}, gw.calls, "every invoice is polled despite failures")
	require.Len(t, rec.applied, 2)
	assert.Equal(t, "TXN3", rec.applied[1].TraceNumber)
}

func TestRunSkipsOrdersWithoutCapture(t *testing.T) {
	gw := &mockGateway{responses: map[string]domain.GatewayEvent{
		"FC-1": {OrderRef: "FC-1", Status: "pending"},
	}}
	rec := &mockReconciler{}
	p := New(&mockLister{invoices: []domain.Invoice{invoice("INV1", "FC-1")}}, gw, rec, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	assert.Empty(t, rec.applied)
}

func TestRunTreatsReplayAsNoOp(t *testing.T) {
	gw := &mockGateway{responses: map[string]domain.GatewayEvent{
		"FC-1": {OrderRef: "FC-1", TraceNumber: "TXN1", Amount: decimal.RequireFromString("100.00")},
	}}
	rec := &mockReconciler{errs: map[string]error{"TXN1": service.ErrAlreadyProcessed}}
	p := New(&mockLister{invoices: []domain.Invoice{invoice("INV1", "FC-1")}}, gw, rec, zap.NewNop())

	require.NoError(t, p.Run(context.Background()))
	require.Len(t, rec.applied, 1)
}

func TestRunListerFailure(t *testing.T) {
	p := New(&mockLister{err: errors.New("db down")}, &mockGateway{}, &mockReconciler{}, zap.NewNop())
	assert.Error(t, p.Run(context.Background()))
}

func TestRunEmptyBatch(t *testing.T) {
	p := New(&mockLister{}, &mockGateway{}, &mockReconciler{}, zap.NewNop())
	assert.NoError(t, p.Run(context.Background()))
}
