// Package gateway is the Flocash REST v2 client: hosted paylink creation
// and order-status polling.
package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
)

const (
	apiVersion     = "1.5"
	requestTimeout = 30 * time.Second
)

// Error carries the gateway's HTTP status and raw body for operator
// diagnosis. Transport failures have Status 0 and a wrapped cause.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway request failed: %v", e.Err)
	}
	return fmt.Sprintf("gateway error %d: %s", e.Status, e.Body)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient: a transport error or
// a gateway-side 5xx. 4xx responses need operator attention instead.
func (e *Error) Retryable() bool {
	return e.Err != nil || e.Status >= http.StatusInternalServerError
}

type Client struct {
	http    *http.Client
	creds   domain.Credentials
	baseURL string
	log     *zap.Logger
}

func NewClient(creds domain.Credentials, log *zap.Logger) *Client {
	return &Client{
		http:    &http.Client{Timeout: requestTimeout},
		creds:   creds,
		baseURL: creds.BaseURL(),
		log:     log,
	}
}

// Payer identifies the paying party on the hosted page.
type Payer struct {
	Country   string `json:"country"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Mobile    string `json:"mobile"`
	Email     string `json:"email"`
}

// SplitName derives the payer's first and last name from a display name:
// first whitespace token and last token. A name with no second token gets
// the sentinel last name "X", which the gateway requires non-empty.
func SplitName(name string) Payer {
	parts := strings.Fields(name)
	p := Payer{FirstName: "X", LastName: "X"}
	if len(parts) > 0 {
		p.FirstName = parts[0]
		p.LastName = parts[len(parts)-1]
	}
	if len(parts) == 1 {
		p.LastName = "X"
	}
	return p
}

// PaylinkRequest is the order submitted to POST /paylinks.
type PaylinkRequest struct {
	OrderID     string
	Description string
	Amount      decimal.Decimal
	Currency    string
	PayOption   string
	Payer       Payer
}

// Paylink is the persisted result of a successful paylink creation.
type Paylink struct {
	InvoiceLink string
	OrderRef    string
	TraceNumber string
}

type orderBody struct {
	Custom    string `json:"custom"`
	Amount    string `json:"amount"`
	OrderID   string `json:"orderId"`
	Currency  string `json:"currency"`
	ItemName  string `json:"item_name"`
	ItemPrice string `json:"item_price"`
	Quantity  string `json:"quantity"`
}

type paylinkBody struct {
	Order    orderBody         `json:"order"`
	Merchant map[string]string `json:"merchant"`
	PayOpt   map[string]string `json:"payOption"`
	Payer    Payer             `json:"payer"`
}

type orderResponse struct {
	Order struct {
		InvoiceLink string          `json:"invoiceLink"`
		OrderID     string          `json:"orderId"`
		TraceNumber string          `json:"traceNumber"`
		Amount      json.RawMessage `json:"amount"`
		Currency    string          `json:"currency"`
		Status      string          `json:"status"`
	} `json:"order"`
}

// CreatePaylink requests a hosted payment page. Only a 200/201 response
// carrying an invoice link counts as success.
func (c *Client) CreatePaylink(ctx context.Context, req PaylinkRequest) (*Paylink, error) {
	amount := req.Amount.String()
	body := paylinkBody{
		Order: orderBody{
			Custom:    req.OrderID,
			Amount:    amount,
			OrderID:   req.OrderID,
			Currency:  req.Currency,
			ItemName:  req.Description,
			ItemPrice: amount,
			Quantity:  "1",
		},
		Merchant: map[string]string{"merchantAccount": c.creds.MerchantAccount},
		PayOpt:   map[string]string{"id": req.PayOption},
		Payer:    req.Payer,
	}

	var resp orderResponse
	raw, status, err := c.do(ctx, http.MethodPost, "/paylinks", body, &resp)
	if err != nil {
		return nil, err
	}
	if resp.Order.InvoiceLink == "" {
		return nil, &Error{Status: status, Body: "response missing order.invoiceLink: " + string(raw)}
	}

	orderRef := resp.Order.OrderID
	if orderRef == "" {
		orderRef = req.OrderID
	}
	return &Paylink{
		InvoiceLink: resp.Order.InvoiceLink,
		OrderRef:    orderRef,
		TraceNumber: resp.Order.TraceNumber,
	}, nil
}

// GetOrder polls order status and returns it as a canonical gateway event.
// An order with no captured amount yet yields a zero amount.
func (c *Client) GetOrder(ctx context.Context, orderRef string) (domain.GatewayEvent, error) {
	var resp orderResponse
	if _, _, err := c.do(ctx, http.MethodGet, "/orders/"+orderRef, nil, &resp); err != nil {
		return domain.GatewayEvent{}, err
	}

	ev := domain.GatewayEvent{
		OrderRef:    resp.Order.OrderID,
		TraceNumber: resp.Order.TraceNumber,
		Currency:    resp.Order.Currency,
		Status:      resp.Order.Status,
	}
	if ev.OrderRef == "" {
		ev.OrderRef = orderRef
	}
	if len(resp.Order.Amount) > 0 {
		amount, err := decimal.NewFromString(strings.Trim(string(resp.Order.Amount), `"`))
		if err != nil {
			return domain.GatewayEvent{}, &Error{Body: fmt.Sprintf("unparseable amount %s", resp.Order.Amount)}
		}
		ev.Amount = amount
	}
	return ev, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api-version", apiVersion)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+basicAuth(c.creds.Username, c.creds.Password))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &Error{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &Error{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.log.Warn("gateway rejected request",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return raw, resp.StatusCode, &Error{Status: resp.StatusCode, Body: string(raw)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, resp.StatusCode, &Error{Status: resp.StatusCode, Body: "undecodable response: " + string(raw)}
	}
	return raw, resp.StatusCode, nil
}

func basicAuth(user, pass string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
}
