// Package notify drives best-effort delivery of order notifications over the
// email and WhatsApp channels. The order is committed before any of this
// runs; channel failures are recorded, never propagated.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type FlagStore interface {
	MarkNotificationSent(ctx context.Context, orderID string, channel domain.NotificationChannel) error
}

// Outcome reports per-channel delivery. A false flag with a nil error means
// the channel had no target to send to.
type Outcome struct {
	Email       bool
	WhatsApp    bool
	EmailErr    error
	WhatsAppErr error
}

type Dispatcher struct {
	email    EmailSender
	whatsapp MessageSender
	store    FlagStore
	timeout  time.Duration
	logger   *slog.Logger
}

func NewDispatcher(email EmailSender, whatsapp MessageSender, store FlagStore, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		email:    email,
		whatsapp: whatsapp,
		store:    store,
		timeout:  timeout,
		logger:   logger,
	}
}

// OrderCreated sends the confirmation message on both channels.
func (d *Dispatcher) OrderCreated(ctx context.Context, order *domain.Order, user *domain.User) Outcome {
	subject, html, err := confirmationEmail(order)
	if err != nil {
		// Template failure hits both outcomes equally; nothing is sent.
		d.logger.Error("failed to build confirmation message", "error", err, "order_id", order.ID)
		return Outcome{EmailErr: err, WhatsAppErr: err}
	}

	return d.dispatch(ctx, order, user, subject, html, confirmationText(order))
}

// StatusChanged sends the status-update message for the order's current
// status. An unmapped status fails closed: neither channel is attempted.
func (d *Dispatcher) StatusChanged(ctx context.Context, order *domain.Order, user *domain.User) Outcome {
	subject, html, err := statusEmail(order)
	if err != nil {
		d.logger.Error("failed to build status message", "error", err, "order_id", order.ID, "status", order.OrderStatus)
		return Outcome{EmailErr: err, WhatsAppErr: err}
	}

	text, err := statusText(order)
	if err != nil {
		d.logger.Error("failed to build status message", "error", err, "order_id", order.ID, "status", order.OrderStatus)
		return Outcome{EmailErr: err, WhatsAppErr: err}
	}

	return d.dispatch(ctx, order, user, subject, html, text)
}

// dispatch runs the two channel attempts concurrently. Each attempt is
// independent: one failing neither blocks nor fails the other.
func (d *Dispatcher) dispatch(ctx context.Context, order *domain.Order, user *domain.User, subject, html, text string) Outcome {
	var outcome Outcome
	var wg sync.WaitGroup

	wg.Add(2)

	go func() {
		defer wg.Done()
		outcome.Email, outcome.EmailErr = d.sendEmail(ctx, order, user, subject, html)
	}()

	go func() {
		defer wg.Done()
		outcome.WhatsApp, outcome.WhatsAppErr = d.sendWhatsApp(ctx, order, user, text)
	}()

	wg.Wait()

	d.logger.Info("notification dispatch finished",
		"order_id", order.ID,
		"email", outcome.Email,
		"whatsapp", outcome.WhatsApp,
	)

	return outcome
}

func (d *Dispatcher) sendEmail(ctx context.Context, order *domain.Order, user *domain.User, subject, html string) (bool, error) {
	to := user.Email
	if to == "" {
		to = order.BillingAddress.Email
	}
	if to == "" {
		d.logger.Warn("no email address for order", "order_id", order.ID)
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.email.Send(sendCtx, to, subject, html); err != nil {
		d.logger.Error("email delivery failed", "error", err, "order_id", order.ID)
		return false, fmt.Errorf("send email: %w", err)
	}

	d.mark(ctx, order.ID, domain.ChannelEmail)
	return true, nil
}

func (d *Dispatcher) sendWhatsApp(ctx context.Context, order *domain.Order, user *domain.User, text string) (bool, error) {
	to := order.BillingAddress.Phone
	if to == "" {
		to = user.Phone
	}
	if to == "" {
		d.logger.Warn("no phone number for order", "order_id", order.ID)
		return false, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.whatsapp.Send(sendCtx, to, text); err != nil {
		d.logger.Error("whatsapp delivery failed", "error", err, "order_id", order.ID)
		return false, fmt.Errorf("send whatsapp: %w", err)
	}

	d.mark(ctx, order.ID, domain.ChannelWhatsApp)
	return true, nil
}

// mark records confirmed delivery. It runs on its own deadline: the send may
// have used up most of the channel timeout, and a delivered message whose
// flag write gets cancelled would be re-sent on replay. A failed flag write
// only means the channel stays retry-eligible.
func (d *Dispatcher) mark(ctx context.Context, orderID string, channel domain.NotificationChannel) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.store.MarkNotificationSent(ctx, orderID, channel); err != nil {
		d.logger.Error("failed to record notification flag", "error", err, "order_id", orderID, "channel", channel)
	}
}
