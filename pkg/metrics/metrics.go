package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Polls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graffitibot_long_polls_total",
		Help: "Total long-poll requests issued.",
	})
	PollFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graffitibot_long_poll_failures_total",
		Help: "Long-poll failure replies by the failed code the server sent.",
	}, []string{"code"})
	UpdatesDispatched = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graffitibot_updates_dispatched_total",
		Help: "Total raw updates dispatched.",
	})
	HandlerFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graffitibot_handler_failures_total",
		Help: "Handler errors and panics caught before reaching the poll loop.",
	})
	Uploads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "graffitibot_uploads_total",
		Help: "Upload flows by result (ok, error).",
	}, []string{"result"})
	CacheSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "graffitibot_cache_files_swept_total",
		Help: "Stale cached images removed by the sweeper.",
	})
)

// Register adds all collectors to the default registry.
func Register() {
	prometheus.MustRegister(
		Polls, PollFailures, UpdatesDispatched,
		HandlerFailures, Uploads, CacheSwept,
	)
}

// Serve exposes /metrics on addr. It blocks; run it in a goroutine.
func Serve(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("metrics listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("metrics server error", zap.Error(err))
	}
}
