package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/gateway"
)

type mockInvoiceStore struct {
	invoice *domain.Invoice
	saved   []struct {
		ID       uuid.UUID
		Link     string
		OrderRef string
	}
	saveErr error
}

func (m *mockInvoiceStore) InvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return m.invoice, nil
}

func (m *mockInvoiceStore) SavePaylink(ctx context.Context, id uuid.UUID, link, orderRef string) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, struct {
		ID       uuid.UUID
		Link     string
		OrderRef string
	}{id, link, orderRef})
	return nil
}

type mockGateway struct {
	requests []gateway.PaylinkRequest
	link     *gateway.Paylink
	err      error
}

func (m *mockGateway) CreatePaylink(ctx context.Context, req gateway.PaylinkRequest) (*gateway.Paylink, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.link, nil
}

func customerInvoice() *domain.Invoice {
	return &domain.Invoice{
		ID:           uuid.New(),
		Number:       "INV/2024/001",
		Kind:         domain.KindCustomer,
		PartnerName:  "Ada Lovelace",
		PartnerEmail: "ada@example.com",
		PartnerPhone: "+2519000000",
		AmountTotal:  decimal.RequireFromString("100.00"),
		Currency:     "USD",
		State:        domain.StateUnpaid,
		PayOption:    "145",
	}
}

func TestIssueCreatesLink(t *testing.T) {
	invoices := &mockInvoiceStore{invoice: customerInvoice()}
	gw := &mockGateway{link: &gateway.Paylink{InvoiceLink: "https://pay.example/abc", OrderRef: "INV/2024/001"}}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	res, err := svc.Issue(context.Background(), "INV/2024/001", false)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "https://pay.example/abc", res.Link)

	require.Len(t, gw.requests, 1)
	req := gw.requests[0]
	assert.Equal(t, "INV/2024/001", req.OrderID)
	assert.Equal(t, "Invoice INV/2024/001", req.Description)
	assert.Equal(t, "145", req.PayOption)
	assert.Equal(t, "Ada", req.Payer.FirstName)
	assert.Equal(t, "Lovelace", req.Payer.LastName)
	assert.Equal(t, "US", req.Payer.Country) // default when none on file
	assert.Equal(t, "ada@example.com", req.Payer.Email)

	require.Len(t, invoices.saved, 1)
	assert.Equal(t, "https://pay.example/abc", invoices.saved[0].Link)
	assert.Equal(t, "INV/2024/001", invoices.saved[0].OrderRef)
}

func TestIssueIsIdempotent(t *testing.T) {
	inv := customerInvoice()
	inv.PaymentLink = "https://pay.example/existing"
	invoices := &mockInvoiceStore{invoice: inv}
	gw := &mockGateway{}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	res, err := svc.Issue(context.Background(), inv.Number, false)
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "https://pay.example/existing", res.Link)
	assert.Empty(t, gw.requests, "existing link must not trigger a gateway call")
}

func TestIssueForceRegenerates(t *testing.T) {
	inv := customerInvoice()
	inv.PaymentLink = "https://pay.example/old"
	invoices := &mockInvoiceStore{invoice: inv}
	gw := &mockGateway{link: &gateway.Paylink{InvoiceLink: "https://pay.example/new", OrderRef: inv.Number}}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	res, err := svc.Issue(context.Background(), inv.Number, true)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "https://pay.example/new", res.Link)
}

func TestIssueRejectsVendorInvoice(t *testing.T) {
	inv := customerInvoice()
	inv.Kind = domain.KindVendor
	invoices := &mockInvoiceStore{invoice: inv}
	gw := &mockGateway{}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	_, err := svc.Issue(context.Background(), inv.Number, false)
	assert.ErrorIs(t, err, ErrNotCustomerInvoice)
	assert.Empty(t, gw.requests)
}

func TestIssueUnknownInvoice(t *testing.T) {
	svc := NewLinkService(&mockInvoiceStore{}, &mockGateway{}, zap.NewNop())

	_, err := svc.Issue(context.Background(), "INV/404", false)
	assert.ErrorIs(t, err, ErrInvoiceNotFound)
}

func TestIssueGatewayFailurePersistsNothing(t *testing.T) {
	invoices := &mockInvoiceStore{invoice: customerInvoice()}
	gw := &mockGateway{err: &gateway.Error{Status: 502, Body: "bad gateway"}}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	_, err := svc.Issue(context.Background(), "INV/2024/001", false)
	var gwErr *gateway.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Empty(t, invoices.saved)
}

func TestIssueSingleTokenNameGetsSentinelLastName(t *testing.T) {
	inv := customerInvoice()
	inv.PartnerName = "Prince"
	invoices := &mockInvoiceStore{invoice: inv}
	gw := &mockGateway{link: &gateway.Paylink{InvoiceLink: "https://pay.example/p", OrderRef: inv.Number}}
	svc := NewLinkService(invoices, gw, zap.NewNop())

	_, err := svc.Issue(context.Background(), inv.Number, false)
	require.NoError(t, err)
	require.Len(t, gw.requests, 1)
	assert.Equal(t, "Prince", gw.requests[0].Payer.FirstName)
	assert.Equal(t, "X", gw.requests[0].Payer.LastName)
}
