package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-orders.git/internal/config"
	"github.com/ariefcatur/go-shop-orders.git/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/logx"
	"github.com/ariefcatur/go-shop-orders.git/internal/mongox"
	"github.com/ariefcatur/go-shop-orders.git/internal/postgres"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
	"github.com/ariefcatur/go-shop-orders.git/internal/reserve"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/joho/godotenv"
)

// dataStore is everything the API needs from whichever store the
// deployment selected.
type dataStore interface {
	reserve.Store
	httpx.Catalog
	httpx.AdminStore
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store (driver-selected). Mongo resolves its transaction capability
	// once here; a standalone server puts the engine in fallback mode.
	var store dataStore
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := mongox.Connect(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect")
		}
		defer client.Disconnect(context.Background())
		capable, err := mongox.DetectTxnSupport(ctx, client)
		if err != nil {
			log.Fatal().Err(err).Msg("mongo capability probe")
		}
		if !capable {
			log.Warn().Msg("mongo deployment has no multi-document transactions; order placement runs in fallback mode")
		}
		store = mongox.NewStore(client.Database(cfg.MongoDB), capable)
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres connect")
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate")
		}
		store = postgres.NewStore(db)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	orderEvents := kafkax.NewProducer(cfg.KafkaBrokers, shop.TopicOrderPlaced, 1024, log)
	orderEvents.Start(ctx)
	stockEvents := kafkax.NewProducer(cfg.KafkaBrokers, shop.TopicStockChanged, 1024, log)
	stockEvents.Start(ctx)

	// Engine & handlers
	engine := reserve.NewEngine(store, log)
	router := httpx.NewRouter()
	(&httpx.OrdersHandler{
		Engine:      engine,
		Orders:      store,
		OrderEvents: orderEvents,
		StockEvents: stockEvents,
		Redis:       rdb,
		Service:     cfg.ServiceName,
	}).Register(router)
	(&httpx.ProductsHandler{
		Catalog: store,
		Stock:   &redisx.StockCache{RDB: rdb},
	}).Register(router)
	(&httpx.AdminHandler{
		Store:       store,
		StockEvents: stockEvents,
		Service:     cfg.ServiceName,
	}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.StoreDriver).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	orderEvents.Close()
	stockEvents.Close()
	cancel()
	orderEvents.WaitClosed()
	stockEvents.WaitClosed()
}
