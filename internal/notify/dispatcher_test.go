package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/storefront/internal/domain"
)

type fakeChannel struct {
	mu    sync.Mutex
	sent  []string
	err   error
	delay time.Duration
}

type fakeEmail struct {
	fakeChannel
}

func (c *fakeEmail) Send(ctx context.Context, to, subject, body string) error {
	return c.record(ctx, to)
}

type fakeWhatsApp struct {
	fakeChannel
}

func (c *fakeWhatsApp) Send(ctx context.Context, to, body string) error {
	return c.record(ctx, to)
}

func (c *fakeChannel) record(ctx context.Context, to string) error {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	c.sent = append(c.sent, to)
	c.mu.Unlock()
	return nil
}

type fakeFlagStore struct {
	mu      sync.Mutex
	marked  map[domain.NotificationChannel]int
	err     error
	latency time.Duration
}

func newFakeFlagStore() *fakeFlagStore {
	return &fakeFlagStore{marked: make(map[domain.NotificationChannel]int)}
}

func (s *fakeFlagStore) MarkNotificationSent(ctx context.Context, orderID string, channel domain.NotificationChannel) error {
	if s.latency > 0 {
		select {
		case <-time.After(s.latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.marked[channel]++
	return nil
}

func testOrder(status domain.OrderStatus) *domain.Order {
	return &domain.Order{
		ID:          "order-1",
		OrderNumber: "ORD-1700000000000-1",
		UserID:      "user-1",
		OrderStatus: status,
		Items: []domain.LineItem{
			{ProductID: "p1", Name: "Air Runner", UnitPrice: decimal.NewFromInt(50), Quantity: 2},
		},
		TotalAmount: decimal.NewFromInt(132),
		BillingAddress: domain.Address{
			FirstName: "Ada",
			Phone:     "+15550100001",
		},
		ShippingAddress: domain.Address{
			FirstName: "Ada",
			LastName:  "L",
			Street:    "1 Main St",
			City:      "Springfield",
			State:     "IL",
			ZipCode:   "62704",
			Country:   "US",
			Phone:     "+15550100001",
		},
	}
}

func testUser() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Name:  "Ada L",
		Email: "ada@example.com",
		Phone: "+15550100002",
	}
}

func newTestDispatcher(email *fakeEmail, whatsapp *fakeWhatsApp, store *fakeFlagStore) *Dispatcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(email, whatsapp, store, time.Second, logger)
}

func TestDispatcher_OrderCreated(t *testing.T) {
	t.Run("delivers on both channels and records flags", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		outcome := d.OrderCreated(context.Background(), testOrder(domain.OrderStatusPending), testUser())

		if !outcome.Email || !outcome.WhatsApp {
			t.Fatalf("expected both channels delivered, got %+v", outcome)
		}
		if outcome.EmailErr != nil || outcome.WhatsAppErr != nil {
			t.Fatalf("unexpected errors: %+v", outcome)
		}
		if got := email.sent; len(got) != 1 || got[0] != "ada@example.com" {
			t.Errorf("unexpected email recipients: %v", got)
		}
		// Billing phone wins over the user profile phone.
		if got := whatsapp.sent; len(got) != 1 || got[0] != "+15550100001" {
			t.Errorf("unexpected whatsapp recipients: %v", got)
		}
		if store.marked[domain.ChannelEmail] != 1 || store.marked[domain.ChannelWhatsApp] != 1 {
			t.Errorf("expected both flags marked once, got %v", store.marked)
		}
	})

	t.Run("one channel failing does not affect the other", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		email.err = errors.New("smtp relay down")
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		outcome := d.OrderCreated(context.Background(), testOrder(domain.OrderStatusPending), testUser())

		if outcome.Email {
			t.Error("expected email delivery to fail")
		}
		if outcome.EmailErr == nil {
			t.Error("expected an email error")
		}
		if !outcome.WhatsApp || outcome.WhatsAppErr != nil {
			t.Errorf("whatsapp should be unaffected, got %+v", outcome)
		}
		if store.marked[domain.ChannelEmail] != 0 {
			t.Error("email flag must not be marked on failure")
		}
		if store.marked[domain.ChannelWhatsApp] != 1 {
			t.Error("whatsapp flag should be marked")
		}
	})

	t.Run("missing recipient is skipped without error", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		order := testOrder(domain.OrderStatusPending)
		order.BillingAddress.Phone = ""
		user := testUser()
		user.Email = ""
		user.Phone = ""
		order.BillingAddress.Email = ""

		outcome := d.OrderCreated(context.Background(), order, user)

		if outcome.Email || outcome.EmailErr != nil {
			t.Errorf("expected skipped email with no error, got %+v", outcome)
		}
		if outcome.WhatsApp || outcome.WhatsAppErr != nil {
			t.Errorf("expected skipped whatsapp with no error, got %+v", outcome)
		}
		if len(email.sent) != 0 || len(whatsapp.sent) != 0 {
			t.Error("nothing should be sent without a recipient")
		}
	})

	t.Run("falls back to billing email and user phone", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		order := testOrder(domain.OrderStatusPending)
		order.BillingAddress.Email = "billing@example.com"
		order.BillingAddress.Phone = ""
		user := testUser()
		user.Email = ""

		outcome := d.OrderCreated(context.Background(), order, user)

		if !outcome.Email || !outcome.WhatsApp {
			t.Fatalf("expected both channels delivered, got %+v", outcome)
		}
		if got := email.sent; len(got) != 1 || got[0] != "billing@example.com" {
			t.Errorf("expected billing email fallback, got %v", got)
		}
		if got := whatsapp.sent; len(got) != 1 || got[0] != "+15550100002" {
			t.Errorf("expected user phone fallback, got %v", got)
		}
	})

	t.Run("slow delivery still gets its flag recorded", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		email.delay = 150 * time.Millisecond
		store := newFakeFlagStore()
		store.latency = 100 * time.Millisecond
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		d := NewDispatcher(email, whatsapp, store, 200*time.Millisecond, logger)

		outcome := d.OrderCreated(context.Background(), testOrder(domain.OrderStatusPending), testUser())

		if !outcome.Email || outcome.EmailErr != nil {
			t.Fatalf("expected delivery within the timeout, got %+v", outcome)
		}
		if store.marked[domain.ChannelEmail] != 1 {
			t.Error("flag write must not inherit the nearly spent send deadline")
		}
	})

	t.Run("slow channel is cut off by the per-channel timeout", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		email.delay = 5 * time.Second
		store := newFakeFlagStore()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		d := NewDispatcher(email, whatsapp, store, 20*time.Millisecond, logger)

		outcome := d.OrderCreated(context.Background(), testOrder(domain.OrderStatusPending), testUser())

		if outcome.Email {
			t.Error("expected email delivery to time out")
		}
		if outcome.EmailErr == nil {
			t.Error("expected a timeout error")
		}
		if !outcome.WhatsApp {
			t.Error("whatsapp should still deliver")
		}
	})
}

func TestDispatcher_StatusChanged(t *testing.T) {
	t.Run("delivers the mapped message", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		outcome := d.StatusChanged(context.Background(), testOrder(domain.OrderStatusShipped), testUser())

		if !outcome.Email || !outcome.WhatsApp {
			t.Fatalf("expected both channels delivered, got %+v", outcome)
		}
	})

	t.Run("unmapped status fails closed", func(t *testing.T) {
		email, whatsapp := &fakeEmail{}, &fakeWhatsApp{}
		store := newFakeFlagStore()
		d := newTestDispatcher(email, whatsapp, store)

		outcome := d.StatusChanged(context.Background(), testOrder(domain.OrderStatusPending), testUser())

		if outcome.Email || outcome.WhatsApp {
			t.Errorf("nothing should be sent for an unmapped status, got %+v", outcome)
		}
		if !errors.Is(outcome.EmailErr, domain.ErrUnknownStatusMessage) {
			t.Errorf("expected unknown status error, got %v", outcome.EmailErr)
		}
		if !errors.Is(outcome.WhatsAppErr, domain.ErrUnknownStatusMessage) {
			t.Errorf("expected unknown status error, got %v", outcome.WhatsAppErr)
		}
		if len(email.sent) != 0 || len(whatsapp.sent) != 0 {
			t.Error("no channel may be attempted for an unmapped status")
		}
	})
}

func TestTemplates(t *testing.T) {
	t.Run("confirmation email lists items and total", func(t *testing.T) {
		subject, html, err := confirmationEmail(testOrder(domain.OrderStatusPending))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if subject != "Order Confirmation - ORD-1700000000000-1" {
			t.Errorf("unexpected subject: %q", subject)
		}
		for _, want := range []string{"Air Runner", "2x", "$132", "Springfield"} {
			if !strings.Contains(html, want) {
				t.Errorf("expected body to contain %q", want)
			}
		}
	})

	t.Run("status email includes tracking number when present", func(t *testing.T) {
		order := testOrder(domain.OrderStatusShipped)
		order.TrackingNumber = "TRK-42"

		_, html, err := statusEmail(order)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(html, "TRK-42") {
			t.Error("expected tracking number in body")
		}
		if !strings.Contains(html, "Your order has been shipped!") {
			t.Error("expected shipped message in body")
		}
	})

	t.Run("status email omits tracking section without a tracking number", func(t *testing.T) {
		_, html, err := statusEmail(testOrder(domain.OrderStatusConfirmed))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(html, "Tracking Number") {
			t.Error("expected no tracking section")
		}
	})

	t.Run("status text mirrors the mapped message", func(t *testing.T) {
		text, err := statusText(testOrder(domain.OrderStatusDelivered))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(text, "Your order has been delivered!") {
			t.Errorf("unexpected text: %q", text)
		}
	})
}
