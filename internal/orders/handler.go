package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/currency"
	"github.com/joao-fontenele/storefront/internal/domain"
	"github.com/joao-fontenele/storefront/internal/pricing"
)

// createMaxAttempts bounds the allocate-and-insert retry loop on order
// number collisions.
const createMaxAttempts = 3

type Store interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus, trackingNumber string) (*domain.Order, error)
	Stats(ctx context.Context) (*Stats, error)
}

type NumberAllocator interface {
	Allocate(ctx context.Context) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Handler struct {
	store         Store
	alloc         NumberAllocator
	createdEvents EventPublisher
	statusEvents  EventPublisher
	rates         currency.Source
	logger        *slog.Logger

	// Optional dashboard counters, set by the wiring when the user and
	// product stores are available.
	CountUsers    func(ctx context.Context) (int, error)
	CountProducts func(ctx context.Context) (int, error)
}

func NewHandler(store Store, alloc NumberAllocator, createdEvents, statusEvents EventPublisher, rates currency.Source, logger *slog.Logger) *Handler {
	return &Handler{
		store:         store,
		alloc:         alloc,
		createdEvents: createdEvents,
		statusEvents:  statusEvents,
		rates:         rates,
		logger:        logger,
	}
}

type createOrderRequest struct {
	UserID          string               `json:"user_id"`
	Items           []domain.LineItem    `json:"items"`
	BillingAddress  domain.Address       `json:"billing_address"`
	ShippingAddress domain.Address       `json:"shipping_address"`
	PaymentMethod   domain.PaymentMethod `json:"payment_method"`
	Notes           string               `json:"notes"`
}

func (req *createOrderRequest) validate() string {
	switch {
	case req.UserID == "":
		return "user_id is required"
	case len(req.Items) == 0:
		return "items are required"
	case req.BillingAddress == (domain.Address{}):
		return "billing address is required"
	case req.ShippingAddress == (domain.Address{}):
		return "shipping address is required"
	case !domain.ValidPaymentMethod(req.PaymentMethod):
		return "invalid payment method"
	}
	return ""
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := req.validate(); msg != "" {
		h.writeError(w, http.StatusBadRequest, msg)
		return
	}

	totals, err := pricing.ComputeTotals(req.Items)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order := &domain.Order{
		UserID:          req.UserID,
		Items:           req.Items,
		BillingAddress:  req.BillingAddress,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusPending,
		Subtotal:        totals.Subtotal,
		Tax:             totals.Tax,
		ShippingCost:    totals.ShippingCost,
		TotalAmount:     totals.TotalAmount,
		Notes:           req.Notes,
		CreatedAt:       time.Now().UTC(),
	}

	if err := h.createWithRetry(r.Context(), order); err != nil {
		h.logger.Error("failed to create order", "error", err)
		h.writeDomainError(w, err)
		return
	}

	h.publishCreated(r.Context(), order)

	h.logger.Info("order created", "order_id", order.ID, "order_number", order.OrderNumber, "user_id", order.UserID)
	h.writeJSON(w, http.StatusCreated, order)
}

// createWithRetry re-allocates the order number when the insert loses a
// uniqueness race. Exhausting the attempts bubbles the duplicate error up as
// an internal failure; it is never shown to the client as such.
func (h *Handler) createWithRetry(ctx context.Context, order *domain.Order) error {
	var err error
	for attempt := 0; attempt < createMaxAttempts; attempt++ {
		order.OrderNumber, err = h.alloc.Allocate(ctx)
		if err != nil {
			return err
		}

		err = h.store.Create(ctx, order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) {
			return err
		}
		h.logger.Warn("order number collision, re-allocating", "order_number", order.OrderNumber)
	}
	return err
}

func (h *Handler) publishCreated(ctx context.Context, order *domain.Order) {
	if h.createdEvents == nil {
		return
	}
	event := domain.OrderCreatedEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Timestamp:   order.CreatedAt,
	}
	if err := h.createdEvents.Publish(ctx, order.ID, event); err != nil {
		// The order is already committed; notification delivery is
		// best-effort and must not fail the request.
		h.logger.Error("failed to publish order created event", "error", err, "order_id", order.ID)
	}
}

type orderResponse struct {
	*domain.Order
	Display *displayAmount `json:"display,omitempty"`
}

// displayAmount is a presentation-only conversion of the stored total. The
// base-currency amounts on the order remain authoritative.
type displayAmount struct {
	Currency    string          `json:"currency"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := orderResponse{Order: order}
	if target := r.URL.Query().Get("currency"); target != "" && h.rates != nil {
		resp.Display = h.displayIn(r.Context(), order, target)
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) displayIn(ctx context.Context, order *domain.Order, target string) *displayAmount {
	snapshot, err := h.rates.Rates(ctx)
	if err != nil {
		h.logger.Warn("rates unavailable, skipping display conversion", "error", err)
		return nil
	}

	converted, err := currency.Convert(order.TotalAmount, currency.BaseCurrency, target, snapshot)
	if err != nil {
		h.logger.Warn("display conversion failed", "error", err, "currency", target)
		return nil
	}

	return &displayAmount{Currency: target, TotalAmount: converted}
}

func (h *Handler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	list, err := h.store.ListByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to list user orders", "error", err, "user_id", userID)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

type updateStatusRequest struct {
	OrderStatus    domain.OrderStatus `json:"order_status"`
	TrackingNumber string             `json:"tracking_number"`
}

func (h *Handler) HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.store.UpdateStatus(r.Context(), id, req.OrderStatus, req.TrackingNumber)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.publishStatusChanged(r.Context(), order)

	h.logger.Info("order status updated", "order_id", order.ID, "status", order.OrderStatus)
	h.writeJSON(w, http.StatusOK, order)
}

func (h *Handler) publishStatusChanged(ctx context.Context, order *domain.Order) {
	if h.statusEvents == nil {
		return
	}
	event := domain.OrderStatusChangedEvent{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		NewStatus:      order.OrderStatus,
		TrackingNumber: order.TrackingNumber,
		Timestamp:      time.Now().UTC(),
	}
	if err := h.statusEvents.Publish(ctx, order.ID, event); err != nil {
		h.logger.Error("failed to publish status changed event", "error", err, "order_id", order.ID)
	}
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := ListFilter{
		Status:        domain.OrderStatus(q.Get("status")),
		PaymentStatus: domain.PaymentStatus(q.Get("payment_status")),
		Limit:         10,
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid page")
			return
		}
		filter.Offset = (page - 1) * filter.Limit
	}

	list, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err)
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, list)
}

type statsResponse struct {
	*Stats
	TotalUsers    *int `json:"total_users,omitempty"`
	TotalProducts *int `json:"total_products,omitempty"`
}

func (h *Handler) HandleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", "error", err)
		h.writeDomainError(w, err)
		return
	}

	resp := statsResponse{Stats: stats}
	if h.CountUsers != nil {
		if n, err := h.CountUsers(r.Context()); err == nil {
			resp.TotalUsers = &n
		} else {
			h.logger.Error("failed to count users", "error", err)
		}
	}
	if h.CountProducts != nil {
		if n, err := h.CountProducts(r.Context()); err == nil {
			resp.TotalProducts = &n
		} else {
			h.logger.Error("failed to count products", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		h.writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrTransitionConflict):
		h.writeError(w, http.StatusConflict, "order was modified concurrently, retry")
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
