package services

import (
	"errors"
	"fmt"
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

type MeasurementService struct {
	repo storage.Repository
	gate *auth.TokenGate
}

func (s *MeasurementService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.gate.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Put)
		r.Get("/{measurement_id}", s.Get)
	})

	return r
}

func (s *MeasurementService) List(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseDateRange(r, time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	timer := prometheus.NewTimer(measurementListMetric)
	defer timer.ObserveDuration()

	filter := storage.MeasurementFilter{
		TemplateId: r.URL.Query().Get("template_id"),
		Start:      &start,
		End:        &end,
	}
	measurements, err := s.repo.ListMeasurements(r.Context(), filter)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	utils.WriteJsonResponse(w, measurements)
}

func (s *MeasurementService) Get(w http.ResponseWriter, r *http.Request) {
	measurementId, err := utils.URLParam(r, "measurement_id")
	if err != nil {
		writeError(w, CodedError(err, http.StatusBadRequest))
		return
	}

	measurement, err := s.repo.GetMeasurement(r.Context(), measurementId)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	utils.WriteJsonResponse(w, measurement)
}

// Put checks the submission against its template before storing it. The
// checks run in a fixed order: the template must exist and be active, every
// value definition must be supplied, and finally the store rejects values the
// template does not define.
func (s *MeasurementService) Put(w http.ResponseWriter, r *http.Request) {
	var measurement measure.Measurement
	if !utils.ParseRequestBody(w, r, &measurement) {
		return
	}

	user, err := auth.UserFromContext(r)
	if err != nil {
		writeError(w, CodedError(err, http.StatusInternalServerError))
		return
	}
	if measurement.UserId == "" {
		measurement.UserId = user.Username
	}

	template, err := s.repo.GetTemplate(r.Context(), measurement.TemplateId)
	if err != nil {
		if errors.Is(err, storage.ErrTemplateNotFound) {
			writeError(w, CodedError(fmt.Errorf("template '%v' not found", measurement.TemplateId), http.StatusNotFound))
			return
		}
		writeError(w, repoError(err))
		return
	}

	if !template.IsActive {
		writeError(w, CodedError(fmt.Errorf("%w: '%v'", ErrTemplateInactive, template.Id), http.StatusUnprocessableEntity))
		return
	}

	if err := measure.Validate(measurement.Values, template); err != nil {
		writeError(w, CodedError(err, http.StatusBadRequest))
		return
	}

	for _, violation := range measure.OutOfRange(measurement.Values, template) {
		outOfRangeValues.WithLabelValues(violation.DefinitionName).Inc()
		slog.Warn("value outside of declared range",
			"template_id", template.Id,
			"definition", violation.DefinitionName,
			"value", violation.Value,
			"code", logging.MEASUREMENT_RANGE,
		)
	}

	timer := prometheus.NewTimer(measurementSaveMetric)
	defer timer.ObserveDuration()

	stored, err := s.repo.PutMeasurement(r.Context(), measurement)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	slog.Info("saved measurement", "measurement_id", stored.Id, "template_id", stored.TemplateId, "code", logging.MEASUREMENT_SAVE)
	utils.WriteJsonResponse(w, stored)
}
