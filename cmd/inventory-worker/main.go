package main

import (
	"context"
	"os"
	"time"

	"github.com/dmehra2102/storefront-engine/internal/catalog/application"
	catalogkafka "github.com/dmehra2102/storefront-engine/internal/catalog/infrastructure/kafka"
	catalogpersist "github.com/dmehra2102/storefront-engine/internal/catalog/infrastructure/persistence"
	"github.com/dmehra2102/storefront-engine/internal/config"
	"github.com/dmehra2102/storefront-engine/pkg/idempotency"
	"github.com/dmehra2102/storefront-engine/pkg/logging"
	"github.com/dmehra2102/storefront-engine/pkg/shutdown"
	"github.com/dmehra2102/storefront-engine/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		log.Error("KAFKA_ADDR is required")
		os.Exit(1)
	}
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("memory store is private to this process, restocks will not reach the engine")
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "inventory-worker", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	store, err := config.OpenStore(ctx, log, cfg)
	if err != nil {
		log.Error("store open failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	svc := application.NewService(log, store, catalogpersist.NewRepository(log))

	var dedupe catalogkafka.Deduper
	if rdb := config.Redis(cfg); rdb != nil {
		dedupe = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
		defer rdb.Close()
	}
	consumer := catalogkafka.NewConsumer(log, cfg.KafkaBrokers, cfg.OutboxTopic, cfg.ConsumerGroup, svc, dedupe)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("consuming", "topic", cfg.OutboxTopic, "group", cfg.ConsumerGroup)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Graceful(log, 10*time.Second,
		shutdown.Step{Name: "consumer", Stop: func(ctx context.Context) error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		shutdown.Step{Name: "store", Stop: func(context.Context) error { return store.Close() }},
		shutdown.Step{Name: "tracing", Stop: tp.Shutdown},
	)
	if err != nil {
		os.Exit(1)
	}
	log.Info("inventory-worker shutdown complete")
}
