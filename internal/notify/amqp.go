// Package notify publishes payment confirmations as email jobs on a
// durable AMQP queue; a separate comms worker renders and sends them.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payops/internal/domain"
)

const EmailQueue = "payment_email_jobs"

// emailJob is the queue contract with the comms worker.
type emailJob struct {
	Type      string               `json:"type"`
	Recipient string               `json:"recipient"`
	Notice    domain.PaymentNotice `json:"notice"`
}

type AMQPNotifier struct {
	conn *amqp.Connection
	chn  *amqp.Channel
	log  *zap.Logger
}

// NewAMQPNotifier dials the broker and declares the email queue.
func NewAMQPNotifier(url string, log *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := chn.QueueDeclare(EmailQueue, true, false, false, false, nil); err != nil {
		chn.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", EmailQueue, err)
	}
	return &AMQPNotifier{conn: conn, chn: chn, log: log}, nil
}

func (n *AMQPNotifier) Close() error {
	if err := n.chn.Close(); err != nil {
		return err
	}
	return n.conn.Close()
}

// PaymentConfirmed publishes up to two jobs: one to the payer, one to the
// assigned handler. Recipients without an email address are skipped. The
// two sends are independent; both are attempted even if the first fails.
func (n *AMQPNotifier) PaymentConfirmed(ctx context.Context, notice domain.PaymentNotice) error {
	var errs []error
	for _, job := range []emailJob{
		{Type: "payment_confirmation_payer", Recipient: notice.PayerEmail, Notice: notice},
		{Type: "payment_confirmation_handler", Recipient: notice.HandlerEmail, Notice: notice},
	} {
		if job.Recipient == "" {
			continue
		}
		if err := n.publish(ctx, job); err != nil {
			n.log.Warn("email job not published",
				zap.String("type", job.Type),
				zap.String("invoice", notice.InvoiceNumber),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *AMQPNotifier) publish(ctx context.Context, job emailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return n.chn.PublishWithContext(ctx, "", EmailQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// LogNotifier is the fallback when no broker is configured: confirmations
// are only logged.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) PaymentConfirmed(_ context.Context, notice domain.PaymentNotice) error {
	n.Log.Info("payment confirmation (no broker configured)",
		zap.String("invoice", notice.InvoiceNumber),
		zap.String("payer_email", notice.PayerEmail),
		zap.String("handler_email", notice.HandlerEmail),
		zap.String("amount", notice.Amount.String()),
		zap.String("currency", notice.Currency))
	return nil
}
