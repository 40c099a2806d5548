package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	MetricsAddr   string
	MySQLDSN      string
	RedisAddr     string
	RedisDB       int
	RedisPass     string
	PayhubBase    string
	PayhubKey     string
	TaxRate       float64
	HoldTTL       time.Duration
	SweepInterval time.Duration
	SweepBatch    int
	SweepWorkers  int
	CacheTTL      time.Duration
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	atof := func(k string, def float64) float64 {
		if v := os.Getenv(k); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f
			}
		}
		return def
	}
	c := Config{
		AppEnv:        env("APP_ENV", "prod"),
		HTTPAddr:      env("HTTP_ADDR", ":8080"),
		MetricsAddr:   env("METRICS_ADDR", ":9100"),
		MySQLDSN:      env("MYSQL_DSN", "root:root@tcp(localhost:3306)/roomstay?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
		RedisPass:     env("REDIS_PASSWORD", ""),
		PayhubBase:    env("PAYHUB_BASE_URL", "https://api.payhub.example/v1"),
		PayhubKey:     env("PAYHUB_API_KEY", ""),
		TaxRate:       atof("TAX_RATE", 0.10),
		HoldTTL:       time.Duration(atoi("HOLD_TTL_SECONDS", 900)) * time.Second,
		SweepInterval: time.Duration(atoi("SWEEP_INTERVAL_SECONDS", 60)) * time.Second,
		SweepBatch:    atoi("SWEEP_BATCH", 100),
		SweepWorkers:  atoi("SWEEP_WORKERS", 4),
		CacheTTL:      time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
	}
	if c.PayhubKey == "" {
		log.Warn().Msg("PAYHUB_API_KEY is empty")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
