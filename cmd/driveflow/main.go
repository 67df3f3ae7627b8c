package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	bookinghttp "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/adapters/httpadapter"
	bookingrepo "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/adapters/repository"
	bookingrmq "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/adapters/rmq"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/booking/adapters/sequence"
	bookingapp "github.com/Charan951/driveflow-dashboard-sub001/internal/booking/app"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/auth"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/config"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/db"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/log"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/rabbitmq"
	"github.com/Charan951/driveflow-dashboard-sub001/internal/common/redisx"
	commonws "github.com/Charan951/driveflow-dashboard-sub001/internal/common/ws"
	trackingapi "github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/adapters/api"
	trackingrepo "github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/adapters/repository"
	trackingws "github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/adapters/ws"
	trackingapp "github.com/Charan951/driveflow-dashboard-sub001/internal/tracking/app"
)

const migrationsDir = "migrations"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.New("driveflow")
	log.Info(ctx, logger, "init_start", "DriveFlow core initializing...")

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Error(ctx, logger, "config_load_fail", "Failed to load configuration", err)
		os.Exit(1)
	}
	log.Info(ctx, logger, "config_loaded", "Configuration loaded successfully")

	if err := runMigrations(cfg.DB.DSN()); err != nil {
		log.Error(ctx, logger, "migrations_fail", "Failed to apply migrations", err)
		os.Exit(1)
	}
	log.Info(ctx, logger, "migrations_applied", "Database migrations applied")

	dbPool, err := db.ConnectPostgres(ctx, cfg.DB)
	if err != nil {
		log.Error(ctx, logger, "connect_db_fail", "Failed to connect to database", err)
		os.Exit(1)
	}
	defer dbPool.Close()
	log.Info(ctx, logger, "db_connected", "Successfully connected to database")

	rdb, err := redisx.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Error(ctx, logger, "connect_redis_fail", "Failed to connect to redis", err)
		os.Exit(1)
	}
	defer rdb.Close()
	log.Info(ctx, logger, "redis_connected", "Successfully connected to redis")

	rmq := rabbitmq.NewMQ(cfg.RMQ, logger)
	if err := rmq.Connect(ctx); err != nil {
		log.Error(ctx, logger, "rmq_connect_fail", "Failed to connect to Rabbit MQ", err)
		os.Exit(1)
	}
	if err := rmq.DeclareTopology(); err != nil {
		log.Error(ctx, logger, "rmq_declare_topology_fail", "Failed to declare RMQ topology", err)
		os.Exit(1)
	}
	log.Info(ctx, logger, "rmq_ready", "RabbitMQ connected and topology declared")

	hub := commonws.NewHub()
	authMgr := auth.NewManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	bkRepo := bookingrepo.NewBookingRepository(dbPool)
	users := bookingrepo.NewUserStore(dbPool)
	counter := sequence.NewRedisCounter(rdb)
	publisher := bookingrmq.NewPublisher(rmq, logger)

	trRepo := trackingrepo.NewTrackingRepository(dbPool)
	mirror := trackingrepo.NewPresenceMirror(rdb, rmq)

	presence := trackingapp.NewPresenceStore()
	resolver := trackingapp.NewResolver(trRepo, cfg.Tracking.CacheTTL, cfg.Tracking.ResolveTimeout, logger)
	trackSvc := trackingapp.NewService(presence, resolver, hub, mirror, trRepo, logger)

	otp := bookingapp.NewOtpIssuer(cfg.Otp.TTL, cfg.Otp.MaxAttempts)
	bookSvc := bookingapp.NewService(
		bkRepo, users, counter,
		publisher, publisher, hub,
		presence, otp,
		cfg.Tracking.GeofenceRadiusM,
		logger,
	)

	mux := http.NewServeMux()
	bookinghttp.NewHandler(bookSvc, authMgr, logger).Register(mux)
	trackingapi.NewHandler(trackSvc, authMgr, logger).Register(mux)
	trackingws.NewHandler(hub, trackSvc, authMgr, bkRepo, logger).Register(mux)

	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, logger, "http_start_fail", "HTTP server stopped with error", err)
			cancel()
		}
	}()
	log.Info(ctx, logger, "http_listening", "HTTP server is listening at "+cfg.HTTP.Addr)

	// --- Graceful shutdown ---
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-stop:
	case <-ctx.Done():
	}

	log.Info(ctx, logger, "shutdown", "DriveFlow core shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, logger, "http_shutdown_fail", "HTTP server shutdown error", err)
	}

	cancel()
	rmq.Close()
	log.Info(ctx, logger, "shutdown_complete", "Service stopped successfully")
}

func runMigrations(dsn string) error {
	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return goose.Up(sqlDB, migrationsDir)
}
