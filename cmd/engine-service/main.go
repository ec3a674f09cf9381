package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmehra2102/storefront-engine/internal/config"
	"github.com/dmehra2102/storefront-engine/pkg/idempotency"
	"github.com/dmehra2102/storefront-engine/pkg/logging"
	"github.com/dmehra2102/storefront-engine/pkg/outbox"
	"github.com/dmehra2102/storefront-engine/pkg/shutdown"
	"github.com/dmehra2102/storefront-engine/pkg/tracing"

	cartpersist "github.com/dmehra2102/storefront-engine/internal/cart/infrastructure/persistence"
	catalogapp "github.com/dmehra2102/storefront-engine/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/storefront-engine/internal/catalog/infrastructure/http"
	catalogpersist "github.com/dmehra2102/storefront-engine/internal/catalog/infrastructure/persistence"
	"github.com/dmehra2102/storefront-engine/internal/engine/application"
	enginegrpc "github.com/dmehra2102/storefront-engine/internal/engine/infrastructure/grpc"
	enginehttp "github.com/dmehra2102/storefront-engine/internal/engine/infrastructure/http"
	orderapp "github.com/dmehra2102/storefront-engine/internal/order/application"
	orderpersist "github.com/dmehra2102/storefront-engine/internal/order/infrastructure/persistence"
	wishlistpersist "github.com/dmehra2102/storefront-engine/internal/wishlist/infrastructure/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, "engine-service", cfg.OTelEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	store, err := config.OpenStore(ctx, log, cfg)
	if err != nil {
		log.Error("store open failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}

	products := catalogpersist.NewRepository(log)
	catalog := catalogapp.NewService(log, store, products)
	hub := application.NewHub(log, 32)
	svc := application.NewService(log, application.Deps{
		Store:     store,
		Products:  products,
		Carts:     cartpersist.NewRepository(log),
		Wishlists: wishlistpersist.NewRepository(log),
		Ledger:    orderapp.NewLedger(orderpersist.NewRepository(log)),
		Hub:       hub,
	})

	var mw []func(http.Handler) http.Handler
	if rdb := config.Redis(cfg); rdb != nil {
		mw = append(mw, idempotency.Middleware(log, idempotency.NewStore(rdb, cfg.IdempotencyTTL)))
		defer rdb.Close()
	} else {
		log.Warn("REDIS_ADDR not set, Idempotency-Key headers are ignored")
	}

	r := chi.NewRouter()
	r.Mount("/products", cataloghttp.NewHandler(log, catalog).Routes(mw...))
	r.Mount("/", enginehttp.NewHandler(log, svc).Routes(mw...))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
	}
	// end open event streams so Shutdown is not held up by them
	srv.RegisterOnShutdown(hub.Close)

	health := enginegrpc.NewServer(log, store)
	gs, grpcAddr, err := enginegrpc.Run(cfg.GRPCAddr, health)
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}
	log.Info("grpc health listening", "addr", grpcAddr)
	go health.Watch(ctx, 10*time.Second)

	// Outbox events stay pending in the store until a broker is configured.
	stopRelay := func(context.Context) error { return nil }
	if len(cfg.KafkaBrokers) > 0 {
		writer := outbox.NewWriter(cfg.KafkaBrokers)
		dispatch := outbox.NewDispatcher(log, writer, cfg.OutboxTopic)
		relay := outbox.NewRelay(log, outbox.NewDocStore(log, store, 5), dispatch, "engine-service-relay")
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
		stopRelay = func(ctx context.Context) error {
			select {
			case <-done:
			case <-ctx.Done():
			}
			return writer.Close()
		}
	} else {
		log.Warn("KAFKA_ADDR not set, outbox relay disabled")
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Graceful(log, 10*time.Second,
		shutdown.Step{Name: "http", Stop: srv.Shutdown},
		shutdown.Step{Name: "grpc", Stop: func(context.Context) error { gs.GracefulStop(); return nil }},
		shutdown.Step{Name: "relay", Stop: stopRelay},
		shutdown.Step{Name: "store", Stop: func(context.Context) error { return store.Close() }},
		shutdown.Step{Name: "tracing", Stop: tp.Shutdown},
	)
	if err != nil {
		os.Exit(1)
	}
	log.Info("engine-service shutdown complete")
}
