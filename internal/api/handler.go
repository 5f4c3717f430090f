package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
	"github.com/punchamoorthee/payops/internal/gateway"
	"github.com/punchamoorthee/payops/internal/intake"
	"github.com/punchamoorthee/payops/internal/service"
)

// Metrics
var (
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payops_webhook_events_total",
		Help: "Webhook deliveries by outcome",
	}, []string{"outcome"})

	webhookLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payops_webhook_duration_seconds",
		Help:    "Webhook handling latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})

	paylinksIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payops_paylinks_issued_total",
		Help: "Paylink issuance results",
	}, []string{"result"})
)

// Reconciler applies a canonical gateway event to the ledger.
type Reconciler interface {
	Apply(ctx context.Context, ev domain.GatewayEvent) (*service.ReconcileResult, error)
}

// LinkIssuer creates or returns the invoice's hosted payment link.
type LinkIssuer interface {
	Issue(ctx context.Context, number string, force bool) (*service.LinkResult, error)
}

// InvoiceReader is the read/create surface behind the invoice endpoints.
type InvoiceReader interface {
	InvoiceByNumber(ctx context.Context, number string) (*domain.Invoice, error)
	CreateInvoice(ctx context.Context, inv *domain.Invoice) error
}

type Handler struct {
	reconciler Reconciler
	links      LinkIssuer
	invoices   InvoiceReader
	log        *zap.Logger
}

func NewHandler(reconciler Reconciler, links LinkIssuer, invoices InvoiceReader, log *zap.Logger) *Handler {
	return &Handler{reconciler: reconciler, links: links, invoices: invoices, log: log}
}

// Register attaches all routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/flocash/callback", h.FlocashCallback).Methods("POST")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/invoices", h.CreateInvoice).Methods("POST")
	apiV1.HandleFunc("/invoices/{number}", h.GetInvoice).Methods("GET")
	apiV1.HandleFunc("/invoices/{number}/paylink", h.IssuePaylink).Methods("POST")
}

// FlocashCallback is the public payment-status webhook. It never lets an
// error escape: every outcome maps to a structured JSON response.
func (h *Handler) FlocashCallback(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(webhookLatency)
	defer timer.ObserveDuration()
	defer func() {
		if rec := recover(); rec != nil {
			h.log.Error("panic in webhook handler", zap.Any("panic", rec))
			webhookEvents.WithLabelValues("panic").Inc()
			respondJSON(w, http.StatusInternalServerError, callbackResponse{Status: "error", Message: "internal error"})
		}
	}()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		webhookEvents.WithLabelValues("read_error").Inc()
		respondJSON(w, http.StatusInternalServerError, callbackResponse{Status: "error", Message: "could not read request body"})
		return
	}

	var form url.Values
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		if parsed, err := url.ParseQuery(string(body)); err == nil {
			form = parsed
		}
	}

	// Observability before validation: log whatever arrived.
	h.log.Info("flocash callback received", zap.ByteString("body", body), zap.Int("form_fields", len(form)))

	ev, err := intake.ParsePush(form, body)
	if err != nil {
		webhookEvents.WithLabelValues("invalid").Inc()
		respondJSON(w, http.StatusBadRequest, callbackResponse{Status: "error", Message: "Invalid data"})
		return
	}

	res, err := h.reconciler.Apply(r.Context(), ev)
	if err != nil {
		h.respondApplyError(w, ev, err)
		return
	}

	webhookEvents.WithLabelValues("processed").Inc()
	respondJSON(w, http.StatusOK, callbackResponse{
		Status:      "ok",
		Message:     "Payment processed",
		Invoice:     res.Invoice.Number,
		Amount:      res.Payment.Amount.String(),
		TraceNumber: res.Payment.TraceNumber,
	})
}

func (h *Handler) respondApplyError(w http.ResponseWriter, ev domain.GatewayEvent, err error) {
	switch {
	case errors.Is(err, service.ErrAlreadyProcessed):
		webhookEvents.WithLabelValues("replay").Inc()
		respondJSON(w, http.StatusOK, callbackResponse{Status: "ok", Message: "Payment already processed", TraceNumber: ev.TraceNumber})
	case errors.Is(err, service.ErrNoCaptureYet):
		webhookEvents.WithLabelValues("no_capture").Inc()
		respondJSON(w, http.StatusOK, callbackResponse{Status: "ok", Message: "No captured amount yet"})
	case errors.Is(err, service.ErrInvalidEvent):
		webhookEvents.WithLabelValues("invalid").Inc()
		respondJSON(w, http.StatusBadRequest, callbackResponse{Status: "error", Message: "Invalid data"})
	case errors.Is(err, service.ErrInvoiceNotFound):
		webhookEvents.WithLabelValues("not_found").Inc()
		respondJSON(w, http.StatusNotFound, callbackResponse{Status: "error", Message: "Invoice not found"})
	case errors.Is(err, service.ErrAlreadySettled):
		webhookEvents.WithLabelValues("settled").Inc()
		respondJSON(w, http.StatusConflict, callbackResponse{Status: "error", Message: "Invoice already settled"})
	default:
		h.log.Error("webhook reconciliation failed",
			zap.String("order_ref", ev.OrderRef),
			zap.String("trace_number", ev.TraceNumber),
			zap.Error(err))
		webhookEvents.WithLabelValues("error").Inc()
		respondJSON(w, http.StatusInternalServerError, callbackResponse{Status: "error", Message: err.Error()})
	}
}

func (h *Handler) IssuePaylink(w http.ResponseWriter, r *http.Request) {
	number := mux.Vars(r)["number"]
	force := r.URL.Query().Get("force") == "1" || r.URL.Query().Get("force") == "true"

	res, err := h.links.Issue(r.Context(), number, force)
	if err != nil {
		var gwErr *gateway.Error
		switch {
		case errors.Is(err, service.ErrInvoiceNotFound):
			paylinksIssued.WithLabelValues("not_found").Inc()
			respondError(w, http.StatusNotFound, "Invoice not found")
		case errors.Is(err, service.ErrNotCustomerInvoice):
			paylinksIssued.WithLabelValues("rejected").Inc()
			respondError(w, http.StatusUnprocessableEntity, "Paylinks are only issued for customer invoices")
		case errors.As(err, &gwErr):
			paylinksIssued.WithLabelValues("gateway_error").Inc()
			h.log.Error("paylink gateway failure",
				zap.String("invoice", number),
				zap.Int("status", gwErr.Status),
				zap.String("body", gwErr.Body))
			respondError(w, http.StatusBadGateway, gwErr.Error())
		default:
			paylinksIssued.WithLabelValues("error").Inc()
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	paylinksIssued.WithLabelValues("ok").Inc()
	respondJSON(w, http.StatusOK, map[string]any{
		"invoice": res.Invoice.Number,
		"link":    res.Link,
		"created": res.Created,
	})
}

func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.invoices.InvoiceByNumber(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if inv == nil {
		respondError(w, http.StatusNotFound, "Invoice not found")
		return
	}
	respondJSON(w, http.StatusOK, inv)
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var inv domain.Invoice
	if err := json.NewDecoder(r.Body).Decode(&inv); err != nil {
		respondError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}
	if inv.Number == "" || inv.PartnerName == "" || inv.Currency == "" || !inv.AmountTotal.IsPositive() {
		respondError(w, http.StatusUnprocessableEntity, "number, partner_name, currency and a positive amount_total are required")
		return
	}
	if err := h.invoices.CreateInvoice(r.Context(), &inv); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

type callbackResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	Invoice     string `json:"invoice,omitempty"`
	Amount      string `json:"amount,omitempty"`
	TraceNumber string `json:"trace_number,omitempty"`
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, map[string]string{"status": "error", "message": message})
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}
