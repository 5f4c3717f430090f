// Package intake normalizes gateway payment-status notifications into one
// canonical event shape, regardless of how they arrive.
package intake

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/punchamoorthee/payops/internal/domain"
)

var (
	ErrMalformedPayload = errors.New("payload is not form, query or JSON encoded")
	ErrMissingFields    = errors.New("orderId and traceNumber are required")
)

// ParsePush decodes a webhook delivery. Precedence: structured form fields
// if present, then a raw body containing '=' decoded as query pairs, then
// JSON. A body that fits none of those is malformed.
func ParsePush(form url.Values, raw []byte) (domain.GatewayEvent, error) {
	fields := map[string]string{}

	switch {
	case len(form) > 0:
		for k, vs := range form {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
	case bytes.ContainsRune(raw, '='):
		parsed, err := url.ParseQuery(string(raw))
		if err != nil {
			return domain.GatewayEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		for k, vs := range parsed {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
	case len(raw) > 0:
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			return domain.GatewayEvent{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		for k, v := range body {
			fields[k] = stringify(v)
		}
	default:
		return domain.GatewayEvent{}, ErrMalformedPayload
	}

	return fromFields(fields)
}

func fromFields(fields map[string]string) (domain.GatewayEvent, error) {
	ev := domain.GatewayEvent{
		OrderRef:    fields["orderId"],
		TraceNumber: fields["traceNumber"],
		Currency:    fields["currencyName"],
		Status:      fields["status"],
	}
	if ev.OrderRef == "" || ev.TraceNumber == "" {
		return domain.GatewayEvent{}, ErrMissingFields
	}

	// A missing amount means "no capture yet", not a bad event.
	if raw := fields["amount"]; raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.GatewayEvent{}, fmt.Errorf("%w: bad amount %q", ErrMalformedPayload, raw)
		}
		ev.Amount = amount
	}
	return ev, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	case json.Number:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
