package services

import (
	"log/slog"
	"net/http"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/tracker/measure"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/fuszti/measure/utils"
	"github.com/fuszti/measure/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

type TemplateService struct {
	repo storage.Repository
	gate *auth.TokenGate
}

func (s *TemplateService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.gate.AuthMiddleware()...)

		r.Get("/", s.List)
		r.Post("/", s.Put)
		r.Get("/{template_id}", s.Get)
	})

	return r
}

func (s *TemplateService) List(w http.ResponseWriter, r *http.Request) {
	templates, err := s.repo.ListTemplates(r.Context())
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	utils.WriteJsonResponse(w, templates)
}

func (s *TemplateService) Get(w http.ResponseWriter, r *http.Request) {
	templateId, err := utils.URLParam(r, "template_id")
	if err != nil {
		writeError(w, CodedError(err, http.StatusBadRequest))
		return
	}

	template, err := s.repo.GetTemplate(r.Context(), templateId)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	utils.WriteJsonResponse(w, template)
}

// Put creates the template, or replaces it entirely when its id is already
// in use.
func (s *TemplateService) Put(w http.ResponseWriter, r *http.Request) {
	var template measure.Template
	if !utils.ParseRequestBody(w, r, &template) {
		return
	}

	if err := template.CheckStructure(); err != nil {
		writeError(w, CodedError(err, http.StatusUnprocessableEntity))
		return
	}

	timer := prometheus.NewTimer(templateSaveMetric)
	defer timer.ObserveDuration()

	stored, err := s.repo.PutTemplate(r.Context(), template)
	if err != nil {
		writeError(w, repoError(err))
		return
	}

	slog.Info("saved template", "template_id", stored.Id, "definitions", len(stored.ValueDefinitions), "code", logging.TEMPLATE_SAVE)
	utils.WriteJsonResponse(w, stored)
}
