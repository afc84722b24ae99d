// Package pricing is the single authority for order totals. It is pure
// computation: callers that re-derive amounts for display must reconcile with
// the totals stored on the order, never recompute them independently.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

var (
	// TaxRate is a flat rate applied to the subtotal. Named so jurisdiction
	// overrides stay a one-line change.
	TaxRate = decimal.NewFromFloat(0.10)

	// FreeShippingThreshold waives the flat fee when the subtotal strictly
	// exceeds it. A subtotal of exactly 100 still pays shipping.
	FreeShippingThreshold = decimal.NewFromInt(100)
	FlatShippingFee       = decimal.NewFromInt(10)
)

type Totals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	ShippingCost decimal.Decimal `json:"shipping_cost"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
}

// ComputeTotals derives subtotal, tax, shipping and total from the line
// items. Amounts are rounded to the smallest currency unit, so
// TotalAmount == Subtotal + Tax + ShippingCost holds exactly.
func ComputeTotals(items []domain.LineItem) (Totals, error) {
	if len(items) == 0 {
		return Totals{}, fmt.Errorf("%w: order has no items", domain.ErrInvalidInput)
	}

	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return Totals{}, fmt.Errorf("%w: item %d has quantity %d", domain.ErrInvalidInput, i, item.Quantity)
		}
		if item.UnitPrice.IsNegative() {
			return Totals{}, fmt.Errorf("%w: item %d has negative unit price", domain.ErrInvalidInput, i)
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	tax := subtotal.Mul(TaxRate).Round(2)

	shipping := FlatShippingFee
	if subtotal.GreaterThan(FreeShippingThreshold) {
		shipping = decimal.Zero
	}

	return Totals{
		Subtotal:     subtotal,
		Tax:          tax,
		ShippingCost: shipping,
		TotalAmount:  subtotal.Add(tax).Add(shipping),
	}, nil
}
