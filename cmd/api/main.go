package main

import (
	"context"
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "roomstay/internal/adapters/http_server"
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

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
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
	log.Info().Msg("database connection ok")

	// deps
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
	queries := app.NewQueryService(repo, repo, pricing, cache, cfg.CacheTTL)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{R: reservations, Q: queries})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
