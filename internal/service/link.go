package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/gateway"
)

var ErrNotCustomerInvoice = errors.New("paylinks are only issued for customer invoices")

// LinkService requests hosted payment pages from the gateway and stores
// the resulting link and order reference on the invoice.
type LinkService struct {
	invoices InvoiceStore
	gateway  PaylinkGateway
	log      *zap.Logger
}

func NewLinkService(invoices InvoiceStore, gw PaylinkGateway, log *zap.Logger) *LinkService {
	return &LinkService{invoices: invoices, gateway: gw, log: log}
}

// LinkResult carries the link plus whether this call created it.
type LinkResult struct {
	Invoice *domain.Invoice
	Link    string
	Created bool
}

// Issue returns the invoice's payment link, creating one if none is stored.
// An existing link is returned as-is unless force is set; nothing is
// persisted when the gateway call fails.
func (s *LinkService) Issue(ctx context.Context, number string, force bool) (*LinkResult, error) {
	inv, err := s.invoices.InvoiceByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("invoice lookup: %w", err)
	}
	if inv == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvoiceNotFound, number)
	}
	if inv.Kind != domain.KindCustomer {
		return nil, fmt.Errorf("%w: invoice %s", ErrNotCustomerInvoice, inv.Number)
	}
	if inv.PaymentLink != "" && !force {
		return &LinkResult{Invoice: inv, Link: inv.PaymentLink}, nil
	}

	payer := gateway.SplitName(inv.PartnerName)
	payer.Country = inv.PartnerCountry
	if payer.Country == "" {
		payer.Country = "US"
	}
	payer.Mobile = inv.PartnerPhone
	payer.Email = inv.PartnerEmail

	link, err := s.gateway.CreatePaylink(ctx, gateway.PaylinkRequest{
		OrderID:     inv.Number,
		Description: "Invoice " + inv.Number,
		Amount:      inv.AmountTotal,
		Currency:    inv.Currency,
		PayOption:   inv.PayOption,
		Payer:       payer,
	})
	if err != nil {
		return nil, err
	}

	if err := s.invoices.SavePaylink(ctx, inv.ID, link.InvoiceLink, link.OrderRef); err != nil {
		return nil, fmt.Errorf("persist paylink for %s: %w", inv.Number, err)
	}

	s.log.Info("paylink issued",
		zap.String("invoice", inv.Number),
		zap.String("order_ref", link.OrderRef),
		zap.Bool("forced", force))

	inv.PaymentLink = link.InvoiceLink
	inv.OrderRef = link.OrderRef
	return &LinkResult{Invoice: inv, Link: link.InvoiceLink, Created: true}, nil
}
