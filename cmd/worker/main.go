package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/notify"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/users"
	"github.com/joao-fontenele/storefront/internal/worker"
)

// channelTimeout bounds each external channel call; a slower channel is
// treated as failed and left retry-eligible.
const channelTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := telemetry.NewLogger()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "notification-worker", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	required := func(name string) string {
		value := os.Getenv(name)
		if value == "" {
			logger.Error(name + " environment variable is required")
			os.Exit(1)
		}
		return value
	}

	postgresURL := required("POSTGRES_URL")
	kafkaBrokers := required("KAFKA_BROKERS")
	emailServiceURL := required("EMAIL_SERVICE_URL")
	whatsappServiceURL := required("WHATSAPP_SERVICE_URL")

	db, err := telemetry.OpenDB("postgres", postgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{
		Timeout:   channelTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	orderRepo := orders.NewOrderRepository(db)
	userRepo := users.NewUserRepository(db)

	dispatcher := notify.NewDispatcher(
		notify.NewEmailClient(emailServiceURL, httpClient),
		notify.NewWhatsAppClient(whatsappServiceURL, httpClient),
		orderRepo,
		channelTimeout,
		logger,
	)

	handler := worker.NewHandler(orderRepo, userRepo, dispatcher, logger)

	brokers := strings.Split(kafkaBrokers, ",")

	createdConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderCreated, "notification-worker", logger)
	defer func() { _ = createdConsumer.Close() }()

	statusConsumer := messaging.NewConsumer(brokers, messaging.TopicOrderStatusChanged, "notification-worker", logger)
	defer func() { _ = statusConsumer.Close() }()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers)

	errCh := make(chan error, 2)
	go func() { errCh <- createdConsumer.Consume(ctx, handler.HandleOrderCreated) }()
	go func() { errCh <- statusConsumer.Consume(ctx, handler.HandleStatusChanged) }()

	if err := <-errCh; err != nil {
		if ctx.Err() == context.Canceled {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
