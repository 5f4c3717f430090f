// Package poller periodically asks the gateway for the status of unpaid
// invoices that already have an order reference, feeding any capture into
// the same reconciliation path the webhook uses.
package poller

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/service"
)

var (
	invoicesPolled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payops_poll_invoices_total",
		Help: "Polled invoices by outcome",
	}, []string{"outcome"})
)

// InvoiceLister selects the invoices worth polling.
type InvoiceLister interface {
	UnpaidWithOrderRef(ctx context.Context) ([]domain.Invoice, error)
}

// OrderGetter polls the gateway order-status endpoint.
type OrderGetter interface {
	GetOrder(ctx context.Context, orderRef string) (domain.GatewayEvent, error)
}

// Reconciler applies a polled event.
type Reconciler interface {
	Apply(ctx context.Context, ev domain.GatewayEvent) (*service.ReconcileResult, error)
}

type Poller struct {
	invoices   InvoiceLister
	gateway    OrderGetter
	reconciler Reconciler
	log        *zap.Logger
}

func New(invoices InvoiceLister, gw OrderGetter, reconciler Reconciler, log *zap.Logger) *Poller {
	return &Poller{invoices: invoices, gateway: gw, reconciler: reconciler, log: log}
}

// Run performs one polling pass. Invoices are handled sequentially and a
// failure on one never aborts the rest of the batch.
func (p *Poller) Run(ctx context.Context) error {
	invoices, err := p.invoices.UnpaidWithOrderRef(ctx)
	if err != nil {
		return err
	}
	if len(invoices) == 0 {
		return nil
	}
	p.log.Info("polling gateway for open invoices", zap.Int("count", len(invoices)))

	for _, inv := range invoices {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.checkInvoice(ctx, inv)
	}
	return nil
}

func (p *Poller) checkInvoice(ctx context.Context, inv domain.Invoice) {
	ev, err := p.gateway.GetOrder(ctx, inv.OrderRef)
	if err != nil {
		invoicesPolled.WithLabelValues("gateway_error").Inc()
		p.log.Warn("order status poll failed",
			zap.String("invoice", inv.Number),
			zap.String("order_ref", inv.OrderRef),
			zap.Error(err))
		return
	}
	if ev.TraceNumber == "" {
		// Order exists but nothing has been paid against it.
		invoicesPolled.WithLabelValues("no_capture").Inc()
		return
	}

	_, err = p.reconciler.Apply(ctx, ev)
	switch {
	case err == nil:
		invoicesPolled.WithLabelValues("reconciled").Inc()
		p.log.Info("poll reconciled payment",
			zap.String("invoice", inv.Number),
			zap.String("trace_number", ev.TraceNumber))
	case errors.Is(err, service.ErrAlreadyProcessed), errors.Is(err, service.ErrNoCaptureYet):
		invoicesPolled.WithLabelValues("no_op").Inc()
	default:
		invoicesPolled.WithLabelValues("error").Inc()
		p.log.Error("poll reconciliation failed",
			zap.String("invoice", inv.Number),
			zap.String("order_ref", inv.OrderRef),
			zap.Error(err))
	}
}
