package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/gateway"
)

// Ledger is the transactional view of the store used by the reconciliation
// engine. Every method runs on the same database transaction handed out by
// the UnitOfWork, so a failure partway rolls everything back.
type Ledger interface {
	// InvoiceByOrderRef resolves the target invoice by the configured
	// lookup key (stored gateway order reference or invoice number).
	InvoiceByOrderRef(ctx context.Context, ref string) (*domain.Invoice, error)
	// PaymentByTraceNumber is the idempotency point query.
	PaymentByTraceNumber(ctx context.Context, trace string) (*domain.Payment, error)
	// SettlementAccount returns the bank account payments settle into.
	SettlementAccount(ctx context.Context) (*domain.Account, error)
	// CreatePayment inserts a draft payment. A duplicate trace number must
	// surface as ErrAlreadyProcessed via the unique constraint.
	CreatePayment(ctx context.Context, p *domain.Payment) error
	// PostPayment writes the payment's debit/credit lines and marks it posted.
	PostPayment(ctx context.Context, p *domain.Payment) error
	// Reconcile matches the payment's receivable lines against the
	// invoice's open receivable lines and returns the resulting state.
	Reconcile(ctx context.Context, inv *domain.Invoice, p *domain.Payment) (domain.SettlementState, error)
}

// UnitOfWork runs fn inside one database transaction, committing only if
// fn returns nil.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Ledger) error) error
}

// InvoiceStore is the non-transactional read/write surface used by link
// issuance and the API.
type InvoiceStore interface {
	InvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	SavePaylink(ctx context.Context, id uuid.UUID, link, orderRef string) error
}

// PaylinkGateway creates hosted payment pages.
type PaylinkGateway interface {
	CreatePaylink(ctx context.Context, req gateway.PaylinkRequest) (*gateway.Paylink, error)
}

// Notifier delivers payment confirmations. Delivery failures never undo a
// reconciliation; callers log and move on.
type Notifier interface {
	PaymentConfirmed(ctx context.Context, n domain.PaymentNotice) error
}
