package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-orders.git/internal/config"
	kafkax "github.com/ariefcatur/go-shop-orders.git/internal/kafka"
	"github.com/ariefcatur/go-shop-orders.git/internal/logx"
	"github.com/ariefcatur/go-shop-orders.git/internal/redisx"
	"github.com/ariefcatur/go-shop-orders.git/internal/shop"
	"github.com/ariefcatur/go-shop-orders.git/internal/stockfeed"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-stockfeed")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &stockfeed.Service{
		Cache:       &redisx.StockCache{RDB: rdb},
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-stockfeed",
		Log:         log,
	}

	group := getenv("STOCKFEED_GROUP", "stockfeed-svc")
	workers := mustAtoi(os.Getenv("STOCKFEED_WORKERS"), 4)
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, shop.TopicStockChanged, workers, log)

	go func() {
		log.Info().Str("group", group).Int("workers", workers).Msg("stockfeed consumer started")
		if err := cons.Start(ctx, svc.HandleStockChanged); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}
