package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentMethodCreditCard     PaymentMethod = "credit_card"
	PaymentMethodDebitCard      PaymentMethod = "debit_card"
	PaymentMethodPayPal         PaymentMethod = "paypal"
	PaymentMethodStripe         PaymentMethod = "stripe"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func ValidPaymentMethod(m PaymentMethod) bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodPayPal,
		PaymentMethodStripe, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// LineItem captures a product at the price it was purchased for. Items are
// immutable once the order is created.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Size      string          `json:"size,omitempty"`
	Color     string          `json:"color,omitempty"`
}

type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Street    string `json:"street"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
}

// NotificationChannel names an independent delivery path tracked per order.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "email"
	ChannelWhatsApp NotificationChannel = "whatsapp"
)

// NotificationsSent flags are set only on confirmed delivery and never reset.
// A false flag marks the channel as eligible for a later re-send.
type NotificationsSent struct {
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
}

type Order struct {
	ID                string            `json:"id"`
	OrderNumber       string            `json:"order_number"`
	UserID            string            `json:"user_id"`
	Items             []LineItem        `json:"items"`
	BillingAddress    Address           `json:"billing_address"`
	ShippingAddress   Address           `json:"shipping_address"`
	PaymentMethod     PaymentMethod     `json:"payment_method"`
	PaymentStatus     PaymentStatus     `json:"payment_status"`
	OrderStatus       OrderStatus       `json:"order_status"`
	Subtotal          decimal.Decimal   `json:"subtotal"`
	Tax               decimal.Decimal   `json:"tax"`
	ShippingCost      decimal.Decimal   `json:"shipping_cost"`
	TotalAmount       decimal.Decimal   `json:"total_amount"`
	Notes             string            `json:"notes,omitempty"`
	TrackingNumber    string            `json:"tracking_number,omitempty"`
	NotificationsSent NotificationsSent `json:"notifications_sent"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
