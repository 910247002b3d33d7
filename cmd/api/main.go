package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"courtbook/internal/api"
	"courtbook/internal/config"
	"courtbook/internal/database"
	"courtbook/internal/events"
	"courtbook/internal/export"
	"courtbook/internal/gateway"
	"courtbook/internal/google"
	"courtbook/internal/logging"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/notify"
	"courtbook/internal/repository"
	"courtbook/internal/service"
	"courtbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := initDatabase(ctx, cfg, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}
	store := initStore(cfg, redisClient, &logger)

	payGateway, err := gateway.New(cfg.Payments, cfg.App.BaseURL, &logger)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}

	bus := events.NewEventBus()
	if len(cfg.Kafka.Brokers) > 0 {
		forwarder := events.NewKafkaForwarder(cfg.Kafka, &logger)
		forwarder.Attach(bus)
		go forwarder.Run(ctx)
	}

	outbox := worker.NewOutboxWorker(db, redisClient, worker.RetryPolicy{}, &logger)
	loc := cfg.Booking.Location()

	dispatcher, err := initNotifications(cfg, db, outbox, loc, &logger)
	if err != nil {
		return err
	}
	outbox.Register(models.TaskNotify, func(ctx context.Context, task models.SyncTask) error {
		return dispatcher.Deliver(ctx, task.EntityID)
	})

	if sheet := initGoogleSheets(ctx, cfg, db, loc, &logger); sheet != nil {
		outbox.Register(models.TaskSheetUpsert, sheet.HandleTask)
		go sheet.Start(ctx)
	}

	bookings := service.NewBookingService(db, db, dispatcher, bus, outbox, cfg.Booking, &logger)
	payments := service.NewPaymentService(db, db, db, payGateway, service.PaymentDeps{
		Notifier:  dispatcher,
		EventBus:  bus,
		Tasks:     outbox,
		Checkouts: store,
	}, cfg.Payments, &logger)
	users := service.NewUserService(db, &logger)
	exporter := export.NewExporter(db, cfg.Exports.Path, loc)

	go outbox.Start(ctx)

	if cfg.Backup.Enabled {
		go database.NewBackupService(db, cfg.Backup, &logger).Start(ctx)
	}

	startMetrics(ctx, cfg, &logger)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, bookings, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
	}

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Bookings: bookings,
		Payments: payments,
		Users:    users,
		Reports:  exporter,
		Limits:   store,
	}, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initDatabase(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error().Err(err).Str("driver", cfg.Database.Driver).Msg("init database")
		return nil, err
	}

	if err := db.SyncResources(ctx, cfg.Courts); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync courts: %w", err)
	}
	if err := db.SyncPaymentMethods(ctx, cfg.PaymentMethods); err != nil {
		db.Close()
		return nil, fmt.Errorf("sync payment methods: %w", err)
	}
	logger.Info().Int("courts", len(cfg.Courts)).Int("payment_methods", len(cfg.PaymentMethods)).Msg("catalog synced")
	return db, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = client.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return client
}

// initStore backs the checkout cache and booking limits with Redis when
// available, failing over to process memory.
func initStore(cfg *config.Config, client *redis.Client, logger *zerolog.Logger) repository.Store {
	memory := repository.NewMemoryStore(cfg.Payments.CheckoutTTL)
	if client == nil {
		return memory
	}
	return repository.NewFailoverStore(repository.NewRedisStore(client, cfg.Payments.CheckoutTTL), memory, logger)
}

func initNotifications(cfg *config.Config, db *database.DB, outbox *worker.OutboxWorker, loc *time.Location, logger *zerolog.Logger) (*notify.Dispatcher, error) {
	sender, err := notify.NewSender(cfg.Notifications, logger)
	if err != nil {
		return nil, err
	}

	var staff notify.StaffFeed
	if cfg.Notifications.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Notifications.Telegram)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without staff feed")
		} else {
			staff = tg
		}
	}

	return notify.NewDispatcher(db, db, outbox, sender, staff, loc, logger), nil
}

func initGoogleSheets(ctx context.Context, cfg *config.Config, db *database.DB, loc *time.Location, logger *zerolog.Logger) *google.ReservationSheet {
	if cfg.Google.CredentialsFile == "" || cfg.Google.ReservationsSpreadsheetID == "" {
		return nil
	}

	sheet, err := google.NewReservationSheet(ctx, cfg.Google, db, db, loc, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("google sheets init failed, continuing without sheets")
		return nil
	}
	if err := sheet.TestConnection(ctx); err != nil {
		logger.Warn().Err(err).Msg("google sheets unreachable, continuing without sheets")
		return nil
	}

	logger.Info().Msg("google sheets connected")
	return sheet
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	errCh := make(chan error, 2)

	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	if cfg.API.HTTP.Enabled {
		go func() {
			if err := httpServer.Start(); err != nil {
				errCh <- fmt.Errorf("http server: %w", err)
			}
		}()
	}

	logger.Info().Bool("grpc", grpcServer != nil).Int("http_port", cfg.API.HTTP.Port).Msg("courtbook started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("server stopped unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("http shutdown")
	}

	logger.Info().Msg("courtbook stopped")
	return serveErr
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
