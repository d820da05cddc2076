package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/leafyhealth/fulfillment/internal/config"
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

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pOK := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockCommitted, 1024)
	pOK.Start(ctx)
	pRJ := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockRejected, 1024)
	pRJ.Start(ctx)
	pRL := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReleased, 1024)
	pRL.Start(ctx)
	pAlerts := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockAlerts, 256)
	pAlerts.Start(ctx)

	name := cfg.ServiceName + "-stock"
	invSvc := inventory.NewService(&inventory.Repo{DB: db}, pAlerts, logger, name)
	// status changes from the worker go to the same topic it consumes; the
	// handler ignores its own FAILED events.
	pChanged := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatus, 256)
	pChanged.Start(ctx)
	orderSvc := orders.NewService(&orders.Repo{DB: db}, rdb, nil, pChanged, logger, name)

	worker := &inventory.Worker{
		Svc:             invSvc,
		Orders:          orderSvc,
		Dedup:           &redisx.EventDedup{Client: rdb, Name: name},
		ProducerOK:      pOK,
		ProducerReject:  pRJ,
		ProducerRelease: pRL,
		Log:             logger,
		Name:            name,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, orders.TopicOrderStatus, cfg.Workers, logger)
	go func() {
		logger.Info("stock worker consuming",
			zap.String("group", cfg.ConsumerGroup),
			zap.String("topic", orders.TopicOrderStatus),
			zap.Int("workers", cfg.Workers))
		if err := cons.Start(ctx, worker.HandleOrderEvent); err != nil {
			logger.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down consumer...")

	producers := []*kafkax.Producer{pOK, pRJ, pRL, pAlerts, pChanged}
	for _, p := range producers {
		p.Close()
	}
	cancel()
	time.Sleep(200 * time.Millisecond)
	for _, p := range producers {
		p.WaitClosed()
	}
}
