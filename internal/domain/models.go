package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementState tracks how much of an invoice's receivable is covered
// by posted payments.
type SettlementState string

const (
	StateUnpaid  SettlementState = "unpaid"
	StatePartial SettlementState = "partial"
	StatePaid    SettlementState = "paid"
)

// InvoiceKind distinguishes customer invoices (the only kind eligible for
// hosted payment links) from vendor bills.
type InvoiceKind string

const (
	KindCustomer InvoiceKind = "customer"
	KindVendor   InvoiceKind = "vendor"
)

// Invoice is the receivable-side document. OrderRef and TraceNumber are
// written once by link issuance and reconciliation respectively.
type Invoice struct {
	ID             uuid.UUID       `json:"id"`
	Number         string          `json:"number"`
	Kind           InvoiceKind     `json:"kind"`
	PartnerName    string          `json:"partner_name"`
	PartnerEmail   string          `json:"partner_email,omitempty"`
	PartnerPhone   string          `json:"partner_phone,omitempty"`
	PartnerCountry string          `json:"partner_country,omitempty"`
	HandlerEmail   string          `json:"handler_email,omitempty"`
	AmountTotal    decimal.Decimal `json:"amount_total"`
	Currency       string          `json:"currency"`
	State          SettlementState `json:"state"`
	PaymentLink    string          `json:"payment_link,omitempty"`
	OrderRef       string          `json:"order_ref,omitempty"`
	TraceNumber    string          `json:"trace_number,omitempty"`
	PayOption      string          `json:"pay_option"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentState follows the post lifecycle: a draft payment has no ledger
// effect until it is posted.
type PaymentState string

const (
	PaymentDraft  PaymentState = "draft"
	PaymentPosted PaymentState = "posted"
)

// Payment is an inbound ledger payment created from a gateway capture.
// TraceNumber is unique across all payments; that constraint is what makes
// event replay safe.
type Payment struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	TraceNumber string          `json:"trace_number"`
	Ref         string          `json:"ref"`
	AccountID   int64           `json:"account_id"`
	State       PaymentState    `json:"state"`
	PostedAt    time.Time       `json:"posted_at,omitzero"`
	CreatedAt   time.Time       `json:"created_at"`
}

// AccountType classifies ledger accounts. Reconciliation only ever matches
// lines whose account is receivable; settlement targets a bank account.
type AccountType string

const (
	AccountBank       AccountType = "bank"
	AccountReceivable AccountType = "receivable"
	AccountIncome     AccountType = "income"
)

// Account is a ledger account.
type Account struct {
	ID   int64       `json:"id"`
	Name string      `json:"name"`
	Type AccountType `json:"type"`
}

// LedgerLine is one leg of a double-entry move, owned either by an invoice
// or by a payment. Matched lines share a MatchID.
type LedgerLine struct {
	ID        int64           `json:"id"`
	AccountID int64           `json:"account_id"`
	InvoiceID *uuid.UUID      `json:"invoice_id,omitempty"`
	PaymentID *uuid.UUID      `json:"payment_id,omitempty"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	MatchID   *int64          `json:"match_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// GatewayEvent is the canonical payment-status notification, produced by
// intake from a webhook push or an order-status poll.
type GatewayEvent struct {
	OrderRef    string          `json:"order_ref"`
	TraceNumber string          `json:"trace_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	Status      string          `json:"status,omitempty"`
}

// PaymentNotice is the confirmation message sent after a successful
// reconciliation, once to the payer and once to the assigned handler.
type PaymentNotice struct {
	InvoiceNumber string          `json:"invoice"`
	PaymentRef    string          `json:"payment_ref"`
	TraceNumber   string          `json:"trace_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PayerEmail    string          `json:"payer_email,omitempty"`
	HandlerEmail  string          `json:"handler_email,omitempty"`
}

// Credentials hold one gateway account configuration. Read-only at
// reconciliation time; only administrative config mutates them.
type Credentials struct {
	Environment     string // "sandbox" or "production"
	Username        string
	Password        string
	MerchantAccount string
}

const (
	sandboxBaseURL    = "https://sandbox.flocash.com/rest/v2"
	productionBaseURL = "https://pay.flocash.com/rest/v2"
)

// BaseURL selects the gateway endpoint for the configured environment.
// Anything other than "production" stays in the sandbox.
func (c Credentials) BaseURL() string {
	if c.Environment == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}
