package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

func item(price float64, qty int) domain.LineItem {
	return domain.LineItem{
		ProductID: "prod-1",
		Name:      "test sneaker",
		UnitPrice: decimal.NewFromFloat(price),
		Quantity:  qty,
	}
}

func TestComputeTotals(t *testing.T) {
	tests := []struct {
		name     string
		items    []domain.LineItem
		subtotal string
		tax      string
		shipping string
		total    string
	}{
		{
			name:     "free shipping above threshold",
			items:    []domain.LineItem{item(50, 2), item(20, 1)},
			subtotal: "120",
			tax:      "12",
			shipping: "0",
			total:    "132",
		},
		{
			name:     "flat shipping below threshold",
			items:    []domain.LineItem{item(10, 1)},
			subtotal: "10",
			tax:      "1",
			shipping: "10",
			total:    "21",
		},
		{
			name:     "subtotal exactly at threshold still pays shipping",
			items:    []domain.LineItem{item(100, 1)},
			subtotal: "100",
			tax:      "10",
			shipping: "10",
			total:    "120",
		},
		{
			name:     "fractional prices round tax to cents",
			items:    []domain.LineItem{item(19.99, 3)},
			subtotal: "59.97",
			tax:      "6",
			shipping: "10",
			total:    "75.97",
		},
		{
			name:     "zero price item is allowed",
			items:    []domain.LineItem{item(0, 1), item(5, 1)},
			subtotal: "5",
			tax:      "0.5",
			shipping: "10",
			total:    "15.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			totals, err := ComputeTotals(tt.items)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			check := func(field string, got decimal.Decimal, want string) {
				if !got.Equal(decimal.RequireFromString(want)) {
					t.Errorf("%s: expected %s, got %s", field, want, got)
				}
			}
			check("subtotal", totals.Subtotal, tt.subtotal)
			check("tax", totals.Tax, tt.tax)
			check("shipping", totals.ShippingCost, tt.shipping)
			check("total", totals.TotalAmount, tt.total)

			sum := totals.Subtotal.Add(totals.Tax).Add(totals.ShippingCost)
			if !totals.TotalAmount.Equal(sum) {
				t.Errorf("total %s does not equal subtotal+tax+shipping %s", totals.TotalAmount, sum)
			}
		})
	}
}

func TestComputeTotals_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		items []domain.LineItem
	}{
		{name: "empty items", items: nil},
		{name: "zero quantity", items: []domain.LineItem{item(10, 0)}},
		{name: "negative quantity", items: []domain.LineItem{item(10, -1)}},
		{name: "negative price", items: []domain.LineItem{item(-5, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeTotals(tt.items)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}
