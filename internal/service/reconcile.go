package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
)

var (
	ErrInvalidEvent        = errors.New("event is missing order reference or trace number")
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrAlreadyProcessed    = errors.New("payment already processed")
	ErrAlreadySettled      = errors.New("invoice already settled")
	ErrNoCaptureYet        = errors.New("no captured amount yet")
	ErrNoSettlementAccount = errors.New("no bank settlement account configured")
)

// ReconcileService applies validated gateway transaction events to the
// ledger: at most one posted payment per trace number, invoice settlement
// state never regressing from paid.
type ReconcileService struct {
	uow      UnitOfWork
	notifier Notifier
	log      *zap.Logger
}

func NewReconcileService(uow UnitOfWork, notifier Notifier, log *zap.Logger) *ReconcileService {
	return &ReconcileService{uow: uow, notifier: notifier, log: log}
}

// ReconcileResult reports what a successfully applied event did.
type ReconcileResult struct {
	Invoice *domain.Invoice
	Payment *domain.Payment
	State   domain.SettlementState
}

// Apply runs the full reconciliation for one event inside a single
// transaction: guard, resolve, create, post, reconcile. On success the
// payer and handler confirmations go out; their failure is a logged
// warning, never a rollback.
func (s *ReconcileService) Apply(ctx context.Context, ev domain.GatewayEvent) (*ReconcileResult, error) {
	if ev.OrderRef == "" || ev.TraceNumber == "" {
		return nil, fmt.Errorf("%w: order_ref=%q trace_number=%q", ErrInvalidEvent, ev.OrderRef, ev.TraceNumber)
	}

	var res ReconcileResult
	err := s.uow.RunInTx(ctx, func(ctx context.Context, tx Ledger) error {
		// Idempotency guard. The unique constraint on trace number is the
		// backstop for a true double-delivery race; this lookup handles
		// the common replay without burning a payment id.
		if existing, err := tx.PaymentByTraceNumber(ctx, ev.TraceNumber); err != nil {
			return fmt.Errorf("idempotency lookup: %w", err)
		} else if existing != nil {
			return ErrAlreadyProcessed
		}

		inv, err := tx.InvoiceByOrderRef(ctx, ev.OrderRef)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("%w: order reference %q", ErrInvoiceNotFound, ev.OrderRef)
		}
		if inv.State == domain.StatePaid {
			return fmt.Errorf("%w: invoice %s", ErrAlreadySettled, inv.Number)
		}
		if !ev.Amount.IsPositive() {
			return ErrNoCaptureYet
		}

		account, err := tx.SettlementAccount(ctx)
		if err != nil {
			return fmt.Errorf("settlement account lookup: %w", err)
		}
		if account == nil {
			return ErrNoSettlementAccount
		}

		payment := &domain.Payment{
			ID:          uuid.New(),
			InvoiceID:   inv.ID,
			Amount:      ev.Amount,
			Currency:    inv.Currency,
			TraceNumber: ev.TraceNumber,
			Ref:         "Flocash " + ev.TraceNumber,
			AccountID:   account.ID,
			State:       domain.PaymentDraft,
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if err := tx.PostPayment(ctx, payment); err != nil {
			return fmt.Errorf("post payment %s: %w", payment.ID, err)
		}
		payment.State = domain.PaymentPosted
		payment.PostedAt = time.Now()

		state, err := tx.Reconcile(ctx, inv, payment)
		if err != nil {
			return fmt.Errorf("reconcile invoice %s: %w", inv.Number, err)
		}

		inv.State = state
		inv.TraceNumber = ev.TraceNumber
		res = ReconcileResult{Invoice: inv, Payment: payment, State: state}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("payment reconciled",
		zap.String("invoice", res.Invoice.Number),
		zap.String("trace_number", res.Payment.TraceNumber),
		zap.String("amount", res.Payment.Amount.String()),
		zap.String("state", string(res.State)))

	s.dispatchNotice(ctx, res)
	return &res, nil
}

func (s *ReconcileService) dispatchNotice(ctx context.Context, res ReconcileResult) {
	if s.notifier == nil {
		return
	}
	notice := domain.PaymentNotice{
		InvoiceNumber: res.Invoice.Number,
		PaymentRef:    res.Payment.Ref,
		TraceNumber:   res.Payment.TraceNumber,
		Amount:        res.Payment.Amount,
		Currency:      res.Payment.Currency,
		PayerEmail:    res.Invoice.PartnerEmail,
		HandlerEmail:  res.Invoice.HandlerEmail,
	}
	if err := s.notifier.PaymentConfirmed(ctx, notice); err != nil {
		s.log.Warn("payment confirmation not delivered",
			zap.String("invoice", res.Invoice.Number),
			zap.Error(err))
	}
}
