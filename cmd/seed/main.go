// Command seed fills the configured store with demo customers, carts and
// orders in every status.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/utafrali/mobileshop/internal/app"
	"github.com/utafrali/mobileshop/internal/config"
	"github.com/utafrali/mobileshop/internal/event"
	"github.com/utafrali/mobileshop/internal/seed"
	"github.com/utafrali/mobileshop/internal/service"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
	"github.com/utafrali/mobileshop/pkg/logger"
)

func main() {
	users := flag.Int("users", 10, "number of demo users to create")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New("mobileshop-seed", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	st, _, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer st.Close()

	// Seeding does not announce anything on Kafka.
	events := event.NewProducer(pkgkafka.NopPublisher{}, log)
	seeder := seed.New(seed.Services{
		Profiles: service.NewProfileService(st, log),
		Ledger:   service.NewLedgerService(st, events, log),
		Cart:     service.NewCartService(st, events, log),
		Orders: service.NewOrderService(st, events, log, service.OrderOptions{
			ClearCartOnOrder: cfg.OrderClearCart,
		}),
	}, log)

	sum, err := seeder.Run(ctx, *users)
	if err != nil {
		log.Error("seed failed", slog.String("error", err.Error()), slog.Int("users_seeded", sum.Users))
		os.Exit(1)
	}
	for status, n := range sum.Orders {
		log.Info("orders seeded", slog.String("status", string(status)), slog.Int("count", n))
	}
}
