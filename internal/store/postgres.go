// Package store is the pgx-backed ledger store: invoices, payments,
// double-entry lines and the reconciliation transaction.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payops/internal/config"
	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/service"
)

const invoiceColumns = `id, number, kind, partner_name, partner_email, partner_phone,
	partner_country, handler_email, amount_total, currency, state,
	payment_link, order_ref, trace_number, pay_option, created_at`

type Store struct {
	db     *pgxpool.Pool
	lookup string
}

// New wires the store over an existing pool. lookup selects the invoice
// resolution key for inbound order references.
func New(db *pgxpool.Pool, lookup string) *Store {
	if lookup == "" {
		lookup = config.LookupOrderRef
	}
	return &Store{db: db, lookup: lookup}
}

// RunInTx executes fn inside one RepeatableRead transaction. The Ledger
// passed to fn shares that transaction, so create+post+reconcile commit or
// roll back as a unit.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx service.Ledger) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &txLedger{tx: tx, lookup: s.lookup}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

// InvoiceByNumber returns nil when no invoice matches.
func (s *Store) InvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error) {
	return scanInvoice(s.db.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE number = $1", number))
}

// SavePaylink persists the issued link and order reference in one write.
func (s *Store) SavePaylink(ctx context.Context, id uuid.UUID, link, orderRef string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE invoices SET payment_link = $1, order_ref = $2 WHERE id = $3",
		link, orderRef, id)
	if err != nil {
		return fmt.Errorf("save paylink: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save paylink: %w", service.ErrInvoiceNotFound)
	}
	return nil
}

// CreateInvoice inserts the invoice together with its receivable debit and
// income credit lines.
func (s *Store) CreateInvoice(ctx context.Context, inv *domain.Invoice) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.Kind == "" {
		inv.Kind = domain.KindCustomer
	}
	if inv.State == "" {
		inv.State = domain.StateUnpaid
	}
	if inv.PayOption == "" {
		inv.PayOption = "145"
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO invoices (id, number, kind, partner_name, partner_email, partner_phone,
			partner_country, handler_email, amount_total, currency, state, pay_option)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		inv.ID, inv.Number, inv.Kind, inv.PartnerName, inv.PartnerEmail, inv.PartnerPhone,
		inv.PartnerCountry, inv.HandlerEmail, inv.AmountTotal, inv.Currency, inv.State, inv.PayOption)
	if err != nil {
		return fmt.Errorf("invoice insert failed: %w", err)
	}

	receivable, err := accountByType(ctx, tx, domain.AccountReceivable)
	if err != nil {
		return fmt.Errorf("receivable account: %w", err)
	}
	income, err := accountByType(ctx, tx, domain.AccountIncome)
	if err != nil {
		return fmt.Errorf("income account: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO ledger_lines (account_id, invoice_id, debit, credit)
		VALUES ($1, $2, $3, 0), ($4, $2, 0, $3)`,
		receivable.ID, inv.ID, inv.AmountTotal, income.ID)
	if err != nil {
		return fmt.Errorf("invoice lines failed: %w", err)
	}
	return tx.Commit(ctx)
}

// UnpaidWithOrderRef lists invoices the poller should check: not yet paid
// and already carrying a gateway order reference.
func (s *Store) UnpaidWithOrderRef(ctx context.Context) ([]domain.Invoice, error) {
	rows, err := s.db.Query(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE state <> $1 AND order_ref <> '' ORDER BY created_at",
		domain.StatePaid)
	if err != nil {
		return nil, fmt.Errorf("unpaid query failed: %w", err)
	}
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

// PaymentsForInvoice returns the invoice's payments, newest first.
func (s *Store) PaymentsForInvoice(ctx context.Context, invoiceID uuid.UUID) ([]domain.Payment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, invoice_id, amount, currency, trace_number, ref, account_id, state,
			COALESCE(posted_at, 'epoch'::timestamptz), created_at
		FROM payments WHERE invoice_id = $1 ORDER BY created_at DESC`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("payments query failed: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Currency, &p.TraceNumber,
			&p.Ref, &p.AccountID, &p.State, &p.PostedAt, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// txLedger is the transactional Ledger handed to the reconciliation engine.
type txLedger struct {
	tx     pgx.Tx
	lookup string
}

func (l *txLedger) InvoiceByOrderRef(ctx context.Context, ref string) (*domain.Invoice, error) {
	column := "order_ref"
	if l.lookup == config.LookupNumber {
		column = "number"
	}
	return scanInvoice(l.tx.QueryRow(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE "+column+" = $1 FOR UPDATE", ref))
}

func (l *txLedger) PaymentByTraceNumber(ctx context.Context, trace string) (*domain.Payment, error) {
	var p domain.Payment
	err := l.tx.QueryRow(ctx, `
		SELECT id, invoice_id, amount, currency, trace_number, ref, account_id, state,
			COALESCE(posted_at, 'epoch'::timestamptz), created_at
		FROM payments WHERE trace_number = $1`, trace).
		Scan(&p.ID, &p.InvoiceID, &p.Amount, &p.Currency, &p.TraceNumber,
			&p.Ref, &p.AccountID, &p.State, &p.PostedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("payment lookup failed: %w", err)
	}
	return &p, nil
}

func (l *txLedger) SettlementAccount(ctx context.Context) (*domain.Account, error) {
	account, err := accountByType(ctx, l.tx, domain.AccountBank)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return account, err
}

func (l *txLedger) CreatePayment(ctx context.Context, p *domain.Payment) error {
	_, err := l.tx.Exec(ctx, `
		INSERT INTO payments (id, invoice_id, amount, currency, trace_number, ref, account_id, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.InvoiceID, p.Amount, p.Currency, p.TraceNumber, p.Ref, p.AccountID, p.State)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Double delivery raced past the guard; the constraint wins.
			return service.ErrAlreadyProcessed
		}
		return fmt.Errorf("payment insert failed: %w", err)
	}
	return nil
}

func (l *txLedger) PostPayment(ctx context.Context, p *domain.Payment) error {
	receivable, err := accountByType(ctx, l.tx, domain.AccountReceivable)
	if err != nil {
		return fmt.Errorf("receivable account: %w", err)
	}

	// Debit the bank, credit the receivable.
	_, err = l.tx.Exec(ctx, `
		INSERT INTO ledger_lines (account_id, payment_id, debit, credit)
		VALUES ($1, $2, $3, 0), ($4, $2, 0, $3)`,
		p.AccountID, p.ID, p.Amount, receivable.ID)
	if err != nil {
		return fmt.Errorf("payment lines failed: %w", err)
	}

	_, err = l.tx.Exec(ctx,
		"UPDATE payments SET state = $1, posted_at = now() WHERE id = $2",
		domain.PaymentPosted, p.ID)
	if err != nil {
		return fmt.Errorf("payment post failed: %w", err)
	}
	return nil
}

func (l *txLedger) Reconcile(ctx context.Context, inv *domain.Invoice, p *domain.Payment) (domain.SettlementState, error) {
	var matchID int64
	if err := l.tx.QueryRow(ctx, "SELECT nextval('reconcile_match_seq')").Scan(&matchID); err != nil {
		return "", fmt.Errorf("match id failed: %w", err)
	}

	// Only receivable-group lines participate in the match set; the bank
	// and income legs stay out.
	_, err := l.tx.Exec(ctx, `
		UPDATE ledger_lines SET match_id = $1
		WHERE payment_id = $2
		  AND account_id IN (SELECT id FROM accounts WHERE type = $3)`,
		matchID, p.ID, domain.AccountReceivable)
	if err != nil {
		return "", fmt.Errorf("payment match failed: %w", err)
	}
	_, err = l.tx.Exec(ctx, `
		UPDATE ledger_lines SET match_id = $1
		WHERE invoice_id = $2 AND match_id IS NULL
		  AND account_id IN (SELECT id FROM accounts WHERE type = $3)`,
		matchID, inv.ID, domain.AccountReceivable)
	if err != nil {
		return "", fmt.Errorf("invoice match failed: %w", err)
	}

	var settled decimal.Decimal
	err = l.tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM payments WHERE invoice_id = $1 AND state = $2",
		inv.ID, domain.PaymentPosted).Scan(&settled)
	if err != nil {
		return "", fmt.Errorf("settled sum failed: %w", err)
	}

	state := domain.StatePartial
	if settled.GreaterThanOrEqual(inv.AmountTotal) {
		state = domain.StatePaid
	}
	_, err = l.tx.Exec(ctx,
		"UPDATE invoices SET state = $1, trace_number = $2 WHERE id = $3",
		state, p.TraceNumber, inv.ID)
	if err != nil {
		return "", fmt.Errorf("invoice state update failed: %w", err)
	}
	return state, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Kind, &inv.PartnerName, &inv.PartnerEmail,
		&inv.PartnerPhone, &inv.PartnerCountry, &inv.HandlerEmail, &inv.AmountTotal,
		&inv.Currency, &inv.State, &inv.PaymentLink, &inv.OrderRef, &inv.TraceNumber,
		&inv.PayOption, &inv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invoice scan failed: %w", err)
	}
	return &inv, nil
}

func accountByType(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, t domain.AccountType) (*domain.Account, error) {
	var a domain.Account
	err := q.QueryRow(ctx,
		"SELECT id, name, type FROM accounts WHERE type = $1 ORDER BY id LIMIT 1", t).
		Scan(&a.ID, &a.Name, &a.Type)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("account lookup failed: %w", err)
	}
	return &a, nil
}
