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
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/joao-fontenele/storefront/internal/auth"
	"github.com/joao-fontenele/storefront/internal/currency"
	"github.com/joao-fontenele/storefront/internal/messaging"
	"github.com/joao-fontenele/storefront/internal/orders"
	"github.com/joao-fontenele/storefront/internal/products"
	"github.com/joao-fontenele/storefront/internal/telemetry"
	"github.com/joao-fontenele/storefront/internal/users"
)

const defaultRatesAPIURL = "https://api.exchangerate-api.com/v4/latest/USD"

func main() {
	ctx := context.Background()
	logger := telemetry.NewLogger()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "storefront-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("storefront-api", "0.1.0")
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Error("failed to start runtime metrics", "error", err)
		os.Exit(1)
	}

	postgresURL := os.Getenv("POSTGRES_URL")
	if postgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		logger.Error("JWT_SECRET environment variable is required")
		os.Exit(1)
	}

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

	var createdEvents, statusEvents orders.EventPublisher
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")

		createdProducer := messaging.NewProducer(brokers, messaging.TopicOrderCreated)
		defer func() { _ = createdProducer.Close() }()
		createdEvents = createdProducer

		statusProducer := messaging.NewProducer(brokers, messaging.TopicOrderStatusChanged)
		defer func() { _ = statusProducer.Close() }()
		statusEvents = statusProducer
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events will not be published")
	}

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	var rates currency.Source = currency.StaticSource{}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		ratesAPIURL := os.Getenv("RATES_API_URL")
		if ratesAPIURL == "" {
			ratesAPIURL = defaultRatesAPIURL
		}
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer func() { _ = redisClient.Close() }()
		rates = currency.NewCachedSource(ratesAPIURL, httpClient, redisClient, time.Hour, logger)
	} else {
		logger.Warn("REDIS_ADDR not set, serving static currency rates")
	}

	orderRepo := orders.NewOrderRepository(db)
	alloc := orders.NewAllocator(orders.NewPostgresSequence(db))
	userRepo := users.NewUserRepository(db)
	productRepo := products.NewProductRepository(db)

	orderHandler := orders.NewHandler(orderRepo, alloc, createdEvents, statusEvents, rates, logger)
	orderHandler.CountUsers = func(ctx context.Context) (int, error) {
		return userRepo.CountByRole(ctx, "user")
	}
	orderHandler.CountProducts = productRepo.Count

	userHandler := users.NewHandler(userRepo, logger)
	productHandler := products.NewHandler(productRepo, logger)
	currencyHandler := currency.NewHandler(rates, logger)
	verifier := auth.NewVerifier([]byte(jwtSecret), logger)

	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", telemetry.WithHTTPRoute(orderHandler.HandleCreate))
	mux.HandleFunc("GET /orders/{id}", telemetry.WithHTTPRoute(orderHandler.HandleGet))
	mux.HandleFunc("GET /orders/user/{userId}", telemetry.WithHTTPRoute(orderHandler.HandleListByUser))
	mux.HandleFunc("PUT /orders/{id}/status", telemetry.WithHTTPRoute(verifier.RequireAdmin(orderHandler.HandleUpdateStatus)))
	mux.HandleFunc("GET /orders/admin/all", telemetry.WithHTTPRoute(verifier.RequireAdmin(orderHandler.HandleAdminList)))
	mux.HandleFunc("GET /orders/admin/stats", telemetry.WithHTTPRoute(verifier.RequireAdmin(orderHandler.HandleAdminStats)))

	mux.HandleFunc("GET /products", telemetry.WithHTTPRoute(productHandler.HandleList))
	mux.HandleFunc("GET /products/{id}", telemetry.WithHTTPRoute(productHandler.HandleGet))
	mux.HandleFunc("GET /products/featured/all", telemetry.WithHTTPRoute(productHandler.HandleFeatured))
	mux.HandleFunc("POST /admin/products", telemetry.WithHTTPRoute(verifier.RequireAdmin(productHandler.HandleCreate)))
	mux.HandleFunc("PUT /admin/products/{id}", telemetry.WithHTTPRoute(verifier.RequireAdmin(productHandler.HandleUpdate)))
	mux.HandleFunc("DELETE /admin/products/{id}", telemetry.WithHTTPRoute(verifier.RequireAdmin(productHandler.HandleDelete)))

	mux.HandleFunc("GET /users/{id}", telemetry.WithHTTPRoute(userHandler.HandleGet))
	mux.HandleFunc("GET /currency/rates", telemetry.WithHTTPRoute(currencyHandler.HandleRates))

	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr: ":" + port,
		Handler: otelhttp.NewHandler(mux, "storefront-api",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting storefront api", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
