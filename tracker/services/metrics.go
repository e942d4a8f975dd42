package services

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	templateSaveMetric    = promauto.NewSummary(prometheus.SummaryOpts{Name: "tracker_template_save", Help: "Template saves"})
	measurementSaveMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "tracker_measurement_save", Help: "Measurement saves"})
	measurementListMetric = promauto.NewSummary(prometheus.SummaryOpts{Name: "tracker_measurement_list", Help: "Measurement queries"})
	statisticsMetric      = promauto.NewSummary(prometheus.SummaryOpts{Name: "tracker_statistics", Help: "Statistics queries"})

	statisticsSampleSize = promauto.NewSummary(prometheus.SummaryOpts{
		Name: "tracker_statistics_sample_size",
		Help: "Number of measurements aggregated per statistics query",
	})

	outOfRangeValues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_out_of_range_values_total",
		Help: "Submitted values lying outside the bounds of their definition",
	}, []string{"definition"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_login_attempts_total",
		Help: "Token requests by outcome",
	}, []string{"result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func instrument(next http.Handler) http.Handler {
	handler := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		requestDuration.WithLabelValues(r.Method, route, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	}
	return http.HandlerFunc(handler)
}
