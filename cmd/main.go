package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tabletap/internal/cart"
	"tabletap/internal/config"
	"tabletap/internal/database"
	"tabletap/internal/logger"
	"tabletap/internal/menu"
	"tabletap/internal/messaging"
	"tabletap/internal/services/dashboard"
	"tabletap/internal/services/kitchen"
	"tabletap/internal/services/order"
	"tabletap/internal/services/tracking"
)

func main() {
	var (
		mode       = flag.String("mode", "", "Service mode (order-service, dashboard, kitchen-display, tracking-service)")
		port       = flag.Int("port", 0, "HTTP port (overrides config)")
		configPath = flag.String("config", "config.yaml", "Path to config file")
		prefetch   = flag.Int("prefetch", 1, "RabbitMQ prefetch count")
	)
	flag.Parse()

	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	log := logger.New(*mode)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode": *mode,
		"port": cfg.HTTP.Port,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("graceful_shutdown", "Received shutdown signal", requestID, nil)
		cancel()
	}()

	switch *mode {
	case "order-service":
		err = runOrderService(ctx, cfg, log)
	case "dashboard":
		err = runDashboard(ctx, cfg, log, *prefetch)
	case "kitchen-display":
		err = runKitchenDisplay(ctx, cfg, log, *prefetch)
	case "tracking-service":
		err = runTrackingService(ctx, cfg, log, *prefetch)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}

	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runOrderService runs the HTTP API used by diner and staff clients
func runOrderService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	if err := db.RunMigrations(ctx, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := messaging.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	cartStore, err := cart.NewRedisStore(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB,
		time.Duration(cfg.Cart.SessionTTLSeconds)*time.Second)
	if err != nil {
		return fmt.Errorf("failed to initialize cart store: %w", err)
	}
	defer cartStore.Close()

	log.Info("redis_connected", "Connected to Redis", requestID, nil)

	publisher := messaging.NewPublisher(conn, log)
	orderStore := order.NewPostgresStore(db)

	orders := order.NewService(orderStore, publisher, log)
	carts := cart.NewService(cartStore, cfg.Cart.TaxRate, log)
	catalog := menu.NewCatalog(db, log)

	handler := order.NewHandler(orders, carts, catalog, db, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.SetupRoutes(),
	}

	go func() {
		log.Info("service_started", fmt.Sprintf("Order service listening on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	return server.Shutdown(shutdownCtx)
}

// runDashboard runs the front-of-house observer
func runDashboard(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	db, conn, err := connectObserver(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	defer conn.Close()

	queue := "orders.events.dashboard"
	if err := conn.DeclareObserverQueue(queue); err != nil {
		return fmt.Errorf("failed to declare observer queue: %w", err)
	}

	consumer := messaging.NewConsumer(conn, log, queue, "dashboard", prefetch)
	return dashboard.New(order.NewPostgresStore(db), consumer, log).Start(ctx)
}

// runKitchenDisplay runs the kitchen observer
func runKitchenDisplay(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	db, conn, err := connectObserver(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	defer conn.Close()

	queue := "orders.events.kitchen"
	if err := conn.DeclareObserverQueue(queue); err != nil {
		return fmt.Errorf("failed to declare observer queue: %w", err)
	}

	consumer := messaging.NewConsumer(conn, log, queue, "kitchen-display", prefetch)
	return kitchen.New(order.NewPostgresStore(db), consumer, log).Start(ctx)
}

// runTrackingService runs the customer tracker: an HTTP endpoint for
// status queries plus the notification-driven refresh loop
func runTrackingService(ctx context.Context, cfg *config.Config, log *logger.Logger, prefetch int) error {
	requestID := logger.GenerateRequestID()

	db, conn, err := connectObserver(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	defer conn.Close()

	queue := "orders.events.tracking"
	if err := conn.DeclareObserverQueue(queue); err != nil {
		return fmt.Errorf("failed to declare observer queue: %w", err)
	}

	store := order.NewPostgresStore(db)
	consumer := messaging.NewConsumer(conn, log, queue, "tracking-service", prefetch)
	tracker := tracking.NewTracker(store, consumer, log)

	service := tracking.NewService(store, log)
	handler := tracking.NewHandler(service, db, log)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler.SetupRoutes(),
	}

	go func() {
		log.Info("service_started", fmt.Sprintf("Tracking service listening on port %d", cfg.HTTP.Port), requestID, map[string]interface{}{
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server_failed", "HTTP server failed", requestID, err, nil)
		}
	}()

	trackerDone := make(chan error, 1)
	go func() {
		trackerDone <- tracker.Start(ctx)
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-trackerDone
}

// connectObserver opens the database and messaging connections shared by
// all observer modes
func connectObserver(cfg *config.Config, log *logger.Logger) (*database.DB, *messaging.Connection, error) {
	requestID := logger.GenerateRequestID()

	db, err := database.New(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Info("db_connected", "Connected to PostgreSQL database", requestID, nil)

	conn, err := messaging.New(cfg, log)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to initialize messaging: %w", err)
	}

	log.Info("rabbitmq_connected", "Connected to RabbitMQ", requestID, nil)

	return db, conn, nil
}
