package observability

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomstay", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "external_requests_total", Help: "Outbound requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "roomstay", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	InventoryHolds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "inventory_holds_total", Help: "Per-room hold attempts."},
		[]string{"result"}, // result: held|conflict|error
	)
	InventoryReleases = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "inventory_releases_total", Help: "Compensating releases."},
	)
	RollbackFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "roomstay", Name: "rollback_failures_total",
			Help: "Failed compensations leaving the ledger inconsistent. Alert on any increase.",
		},
	)
	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "booking_transitions_total", Help: "Booking state transitions."},
		[]string{"to"},
	)
	ReaperSweeps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "roomstay", Name: "reaper_bookings_total", Help: "Expired bookings processed by the reaper."},
		[]string{"result"}, // result: reaped|error
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency, CacheEvents,
		InventoryHolds, InventoryReleases, RollbackFailures, BookingTransitions, ReaperSweeps,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveHold(result string) { // result: held|conflict|error
	InventoryHolds.WithLabelValues(result).Inc()
}

func ObserveRelease() { InventoryReleases.Inc() }

func ObserveRollbackFailure() { RollbackFailures.Inc() }

func ObserveTransition(to string) { BookingTransitions.WithLabelValues(to).Inc() }

func ObserveReaped(result string) { ReaperSweeps.WithLabelValues(result).Inc() }

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
