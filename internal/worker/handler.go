// Package worker consumes order lifecycle events and drives notification
// delivery. It reloads the order from the store rather than trusting event
// payloads, so notifications always reflect the persisted record.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/notify"
	"github.com/joao-fontenele/storefront/internal/users"
)

type OrderLoader interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type Notifier interface {
	OrderCreated(ctx context.Context, order *domain.Order, user *domain.User) notify.Outcome
	StatusChanged(ctx context.Context, order *domain.Order, user *domain.User) notify.Outcome
}

type Handler struct {
	orders     OrderLoader
	directory  users.Directory
	dispatcher Notifier
	logger     *slog.Logger
}

func NewHandler(orders OrderLoader, directory users.Directory, dispatcher Notifier, logger *slog.Logger) *Handler {
	return &Handler{
		orders:     orders,
		directory:  directory,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *Handler) HandleOrderCreated(ctx context.Context, payload []byte) error {
	var event domain.OrderCreatedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order created event: %w", err)
	}

	h.logger.Info("processing order created event", "order_id", event.OrderID, "order_number", event.OrderNumber)

	order, user, err := h.load(ctx, event.OrderID, event.UserID)
	if err != nil {
		return err
	}

	outcome := h.dispatcher.OrderCreated(ctx, order, user)
	h.logOutcome("order confirmation", order, outcome)
	return nil
}

func (h *Handler) HandleStatusChanged(ctx context.Context, payload []byte) error {
	var event domain.OrderStatusChangedEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal status changed event: %w", err)
	}

	h.logger.Info("processing status changed event", "order_id", event.OrderID, "new_status", event.NewStatus)

	order, user, err := h.load(ctx, event.OrderID, event.UserID)
	if err != nil {
		return err
	}

	outcome := h.dispatcher.StatusChanged(ctx, order, user)
	h.logOutcome("status update", order, outcome)
	return nil
}

func (h *Handler) load(ctx context.Context, orderID, userID string) (*domain.Order, *domain.User, error) {
	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order %s: %w", orderID, err)
	}

	user, err := h.directory.GetByID(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	return order, user, nil
}

// logOutcome makes channel failures observable: the flags stay false in the
// store and the errors land in the log, which is what a later re-send job
// keys off.
func (h *Handler) logOutcome(kind string, order *domain.Order, outcome notify.Outcome) {
	if outcome.EmailErr != nil {
		h.logger.Error(kind+" email not delivered", "error", outcome.EmailErr, "order_id", order.ID)
	}
	if outcome.WhatsAppErr != nil {
		h.logger.Error(kind+" whatsapp not delivered", "error", outcome.WhatsAppErr, "order_id", order.ID)
	}
	h.logger.Info(kind+" dispatched",
		"order_id", order.ID,
		"email", outcome.Email,
		"whatsapp", outcome.WhatsApp,
	)
}
