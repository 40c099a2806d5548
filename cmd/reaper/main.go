package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"roomstay/internal/adapters/observability"
	"roomstay/internal/adapters/payhub"
	redisad "roomstay/internal/adapters/redis"
	"roomstay/internal/app"
	"roomstay/internal/shared"
	mysqlrepo "roomstay/internal/storage/mysql"
	"roomstay/migrations"
)

func main() {
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)

	log.Info().
		Dur("interval", cfg.SweepInterval).
		Int("batch", cfg.SweepBatch).
		Int("workers", cfg.SweepWorkers).
		Msg("reaper starting")

	observability.Serve()

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	if err := migrations.Apply(context.Background(), db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	partner, err := payhub.New(cfg.PayhubBase, cfg.PayhubKey, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize payhub client")
	}

	alloc := app.NewAllocator(repo)
	pricing := app.NewPricingEngine(repo, cfg.TaxRate)
	reservations := app.NewReservationService(repo, repo, alloc, pricing, partner, cache,
		app.WithHoldTTL(cfg.HoldTTL))

	reaper := app.NewReaper(repo, reservations, cfg.SweepInterval, cfg.SweepBatch, cfg.SweepWorkers)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reaper.Run(ctx)
	log.Info().Msg("reaper shut down")
}
