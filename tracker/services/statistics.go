package services

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/fuszti/measure/utils"
	"github.com/fuszti/measure/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type StatisticsService struct {
	repo storage.Repository
	gate *auth.TokenGate
}

func (s *StatisticsService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.gate.AuthMiddleware()...)

		r.Get("/{template_id}", s.Get)
	})

	return r
}

func (s *StatisticsService) Get(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParam(r, "template_id")
	if err != nil {
		writeError(w, CodedError(err, http.StatusBadRequest))
		return
	}

	start, end, err := parseDateRange(r, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	template, err := s.repo.GetTemplate(r.Context(), templateId)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	timer := prometheus.NewTimer(statisticsMetric)
	defer timer.ObserveDuration()

	measurements, err := s.repo.ListMeasurements(r.Context(), storage.MeasurementFilter{
		TemplateId: templateId,
		Start:      &start,
		End:        &end,
	})
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	statisticsSampleSize.Observe(float64(len(measurements)))
	slog.Debug("computing statistics", "template_id", templateId, "measurements", len(measurements), "code", logging.STATISTICS_COMPUTE)

	utils.WriteJsonResponse(w, measure.ComputeStatistics(template, measurements))
}
