package notify

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/joao-fontenele/storefront/internal/domain"
)

// statusMessages is the fixed mapping for status-update notifications. A
// status missing here fails closed: no message is sent.
var statusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Your order has been confirmed!",
	domain.OrderStatusShipped:   "Your order has been shipped!",
	domain.OrderStatusDelivered: "Your order has been delivered!",
	domain.OrderStatusCancelled: "Your order has been cancelled.",
}

func statusMessage(status domain.OrderStatus) (string, error) {
	msg, ok := statusMessages[status]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownStatusMessage, status)
	}
	return msg, nil
}

var confirmationEmailTmpl = template.Must(template.New("order_confirmation").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Order Confirmation</h2>
  <p>Thank you for your order!</p>
  <p><strong>Order Number:</strong> {{.OrderNumber}}</p>

  <h3>Order Details:</h3>
  <table style="width: 100%; border-collapse: collapse;">
    <thead>
      <tr style="background-color: #f0f0f0;">
        <th style="padding: 10px; text-align: left;">Product</th>
        <th style="padding: 10px; text-align: left;">Qty</th>
        <th style="padding: 10px; text-align: left;">Price</th>
      </tr>
    </thead>
    <tbody>
      {{range .Items}}
      <tr>
        <td style="padding: 10px; border-bottom: 1px solid #ddd;">{{.Name}}</td>
        <td style="padding: 10px; border-bottom: 1px solid #ddd;">{{.Quantity}}x</td>
        <td style="padding: 10px; border-bottom: 1px solid #ddd;">${{.UnitPrice}}</td>
      </tr>
      {{end}}
    </tbody>
  </table>

  <h3 style="margin-top: 20px;">Total: ${{.TotalAmount}}</h3>

  <h3>Shipping Address:</h3>
  <p>
    {{.ShippingAddress.FirstName}} {{.ShippingAddress.LastName}}<br>
    {{.ShippingAddress.Street}}<br>
    {{.ShippingAddress.City}}, {{.ShippingAddress.State}} {{.ShippingAddress.ZipCode}}<br>
    {{.ShippingAddress.Country}}<br>
    {{.ShippingAddress.Phone}}
  </p>

  <p style="margin-top: 30px; color: #666;">We'll send you another email when your order ships!</p>
</div>
`))

var statusEmailTmpl = template.Must(template.New("status_update").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>Order Update</h2>
  <p>{{.Message}}</p>
  <p><strong>Order Number:</strong> {{.OrderNumber}}</p>
  {{if .TrackingNumber}}<p><strong>Tracking Number:</strong> {{.TrackingNumber}}</p>{{end}}
  <p style="margin-top: 30px; color: #666;">Thank you for your business!</p>
</div>
`))

func confirmationEmail(order *domain.Order) (subject, html string, err error) {
	var b strings.Builder
	if err := confirmationEmailTmpl.Execute(&b, order); err != nil {
		return "", "", fmt.Errorf("render confirmation email: %w", err)
	}
	return "Order Confirmation - " + order.OrderNumber, b.String(), nil
}

func statusEmail(order *domain.Order) (subject, html string, err error) {
	msg, err := statusMessage(order.OrderStatus)
	if err != nil {
		return "", "", err
	}

	var b strings.Builder
	err = statusEmailTmpl.Execute(&b, struct {
		Message        string
		OrderNumber    string
		TrackingNumber string
	}{msg, order.OrderNumber, order.TrackingNumber})
	if err != nil {
		return "", "", fmt.Errorf("render status email: %w", err)
	}
	return "Order Status Update - " + order.OrderNumber, b.String(), nil
}

func confirmationText(order *domain.Order) string {
	return fmt.Sprintf(
		"Order Confirmed!\n\nOrder #: %s\nTotal: $%s\n\nThank you for shopping with us! We'll keep you updated on your order status.",
		order.OrderNumber, order.TotalAmount)
}

func statusText(order *domain.Order) (string, error) {
	msg, err := statusMessage(order.OrderStatus)
	if err != nil {
		return "", err
	}

	text := fmt.Sprintf("%s\n\nOrder #: %s", msg, order.OrderNumber)
	if order.TrackingNumber != "" {
		text += "\nTracking #: " + order.TrackingNumber
	}
	return text, nil
}
