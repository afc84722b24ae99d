package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const uniqueViolation = "23505"

// Create persists the order and its items in one transaction. A unique
// violation on order_number surfaces as ErrDuplicateOrderNumber so the
// caller can re-allocate and retry.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	if order.UserID == "" || order.OrderNumber == "" || len(order.Items) == 0 {
		return fmt.Errorf("%w: missing required order fields", domain.ErrInvalidInput)
	}

	billing, err := json.Marshal(order.BillingAddress)
	if err != nil {
		return fmt.Errorf("marshal billing address: %w", err)
	}
	shipping, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("marshal shipping address: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, order_number, user_id, billing_address, shipping_address,
			payment_method, payment_status, order_status,
			subtotal, tax, shipping_cost, total_amount,
			notes, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
	`, order.ID, order.OrderNumber, order.UserID, billing, shipping,
		order.PaymentMethod, order.PaymentStatus, order.OrderStatus,
		order.Subtotal, order.Tax, order.ShippingCost, order.TotalAmount,
		order.Notes, order.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateOrderNumber, order.OrderNumber)
		}
		return err
	}

	for _, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (id, order_id, product_id, name, unit_price, quantity, size, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, uuid.New().String(), order.ID, item.ProductID, item.Name, item.UnitPrice, item.Quantity, item.Size, item.Color)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

const orderColumns = `
	id, order_number, user_id, billing_address, shipping_address,
	payment_method, payment_status, order_status,
	subtotal, tax, shipping_cost, total_amount,
	notes, tracking_number, notifications_email, notifications_whatsapp,
	created_at, updated_at
`

func (r *OrderRepository) scanOrder(row *sql.Row) (*domain.Order, error) {
	order := &domain.Order{}
	var billing, shipping []byte

	err := row.Scan(
		&order.ID, &order.OrderNumber, &order.UserID, &billing, &shipping,
		&order.PaymentMethod, &order.PaymentStatus, &order.OrderStatus,
		&order.Subtotal, &order.Tax, &order.ShippingCost, &order.TotalAmount,
		&order.Notes, &order.TrackingNumber,
		&order.NotificationsSent.Email, &order.NotificationsSent.WhatsApp,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal billing address: %w", err)
	}
	if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}

	return order, nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

// GetByOrderNumber resolves the customer-facing number back to the order.
func (r *OrderRepository) GetByOrderNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	order, err := r.scanOrder(r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, orderNumber))
	if err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, []*domain.Order{order}); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]domain.Order, error) {
	return r.list(ctx, `WHERE user_id = $1`, []any{userID}, "")
}

type ListFilter struct {
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	Limit         int
	Offset        int
}

// List returns orders newest first, optionally filtered and paginated.
func (r *OrderRepository) List(ctx context.Context, filter ListFilter) ([]domain.Order, error) {
	where := ""
	var args []any

	if filter.Status != "" {
		args = append(args, filter.Status)
		where = fmt.Sprintf("WHERE order_status = $%d", len(args))
	}
	if filter.PaymentStatus != "" {
		args = append(args, filter.PaymentStatus)
		clause := fmt.Sprintf("payment_status = $%d", len(args))
		if where == "" {
			where = "WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}

	paging := ""
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		paging = fmt.Sprintf(" LIMIT $%d", len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			paging += fmt.Sprintf(" OFFSET $%d", len(args))
		}
	}

	return r.list(ctx, where, args, paging)
}

func (r *OrderRepository) list(ctx context.Context, where string, args []any, paging string) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders `+where+` ORDER BY created_at DESC`+paging, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var orders []*domain.Order
	for rows.Next() {
		order := &domain.Order{}
		var billing, shipping []byte
		err := rows.Scan(
			&order.ID, &order.OrderNumber, &order.UserID, &billing, &shipping,
			&order.PaymentMethod, &order.PaymentStatus, &order.OrderStatus,
			&order.Subtotal, &order.Tax, &order.ShippingCost, &order.TotalAmount,
			&order.Notes, &order.TrackingNumber,
			&order.NotificationsSent.Email, &order.NotificationsSent.WhatsApp,
			&order.CreatedAt, &order.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(billing, &order.BillingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal billing address: %w", err)
		}
		if err := json.Unmarshal(shipping, &order.ShippingAddress); err != nil {
			return nil, fmt.Errorf("unmarshal shipping address: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.loadItems(ctx, orders); err != nil {
		return nil, err
	}

	result := make([]domain.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, *order)
	}
	return result, nil
}

func (r *OrderRepository) loadItems(ctx context.Context, orders []*domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	byID := make(map[string]*domain.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		order.Items = []domain.LineItem{}
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, unit_price, quantity, size, color
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var orderID string
		var item domain.LineItem
		if err := rows.Scan(&orderID, &item.ProductID, &item.Name, &item.UnitPrice, &item.Quantity, &item.Size, &item.Color); err != nil {
			return err
		}
		order := byID[orderID]
		order.Items = append(order.Items, item)
	}

	return rows.Err()
}

// UpdateStatus applies the transition rules and swaps the status with a
// compare-and-swap on the current value, which serializes concurrent
// transitions on the same order.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, newStatus domain.OrderStatus, trackingNumber string) (*domain.Order, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := domain.ValidateTransition(current.OrderStatus, newStatus, trackingNumber); err != nil {
		return nil, err
	}

	// Tracking number is only written entering shipped; afterwards the stored
	// value is preserved even if the caller resubmits one.
	tracking := current.TrackingNumber
	if newStatus == domain.OrderStatusShipped {
		tracking = trackingNumber
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET order_status = $1, tracking_number = $2, updated_at = NOW()
		WHERE id = $3 AND order_status = $4
	`, newStatus, tracking, id, current.OrderStatus)
	if err != nil {
		return nil, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: order %s", domain.ErrTransitionConflict, id)
	}

	return r.GetByID(ctx, id)
}

// MarkNotificationSent sets the per-channel delivery flag. Setting an
// already-set flag is a no-op; flags are never cleared.
func (r *OrderRepository) MarkNotificationSent(ctx context.Context, id string, channel domain.NotificationChannel) error {
	var column string
	switch channel {
	case domain.ChannelEmail:
		column = "notifications_email"
	case domain.ChannelWhatsApp:
		column = "notifications_whatsapp"
	default:
		return fmt.Errorf("%w: unknown notification channel %q", domain.ErrInvalidInput, channel)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE orders SET `+column+` = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}

	return nil
}

type Stats struct {
	TotalOrders   int                        `json:"total_orders"`
	TotalRevenue  decimal.Decimal            `json:"total_revenue"`
	OrdersByState map[domain.OrderStatus]int `json:"orders_by_status"`
	RecentOrders  []domain.Order             `json:"recent_orders"`
}

func (r *OrderRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		TotalRevenue:  decimal.Zero,
		OrdersByState: make(map[domain.OrderStatus]int),
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_amount), 0) FROM orders
	`).Scan(&stats.TotalOrders, &stats.TotalRevenue)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT order_status, COUNT(*) FROM orders GROUP BY order_status
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status domain.OrderStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats.OrdersByState[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	recent, err := r.List(ctx, ListFilter{Limit: 5})
	if err != nil {
		return nil, err
	}
	stats.RecentOrders = recent

	return stats, nil
}
