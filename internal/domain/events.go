package domain

import "time"

type OrderCreatedEvent struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	UserID      string    `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
}

type OrderStatusChangedEvent struct {
	OrderID        string      `json:"order_id"`
	OrderNumber    string      `json:"order_number"`
	UserID         string      `json:"user_id"`
	NewStatus      OrderStatus `json:"new_status"`
	TrackingNumber string      `json:"tracking_number,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
