package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/leafyhealth/fulfillment/internal/config"
	"github.com/leafyhealth/fulfillment/internal/httpx"
	"github.com/leafyhealth/fulfillment/internal/inventory"
	kafkax "github.com/leafyhealth/fulfillment/internal/kafka"
	"github.com/leafyhealth/fulfillment/internal/orders"
	"github.com/leafyhealth/fulfillment/internal/postgres"
	"github.com/leafyhealth/fulfillment/internal/redisx"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MigrationsDir != "" {
		if err := postgres.Migrate(cfg.MigrationsDir, cfg.PostgresDSN); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pCreated := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pCreated.Start(ctx)
	pChanged := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 1024)
	pChanged.Start(ctx)
	pAlerts := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockAlerts, 256)
	pAlerts.Start(ctx)

	orderSvc := orders.NewService(&orders.Repo{DB: db}, rdb, pCreated, pChanged, logger, cfg.ServiceName)
	invSvc := inventory.NewService(&inventory.Repo{DB: db}, pAlerts, logger, cfg.ServiceName)

	router := httpx.NewRouter()
	(&httpx.OrdersHandler{Svc: orderSvc}).Register(router)
	(&httpx.InventoryHandler{Svc: invSvc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		logger.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes -> flush & close writers, then stop the loops
	pCreated.Close()
	pChanged.Close()
	pAlerts.Close()
	cancel()
	pCreated.WaitClosed()
	pChanged.WaitClosed()
	pAlerts.WaitClosed()
}
