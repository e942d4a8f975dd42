package services

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/fuszti/measure/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	welcomeMessage = "Welcome to the Life Measurements Tracker API"

	// login attempts allowed per client ip per minute
	loginRateLimit = 10
)

type Tracker struct {
	user        UserService
	template    TemplateService
	measurement MeasurementService
	statistics  StatisticsService
}

func NewTracker(repo storage.Repository, gate *auth.TokenGate) Tracker {
	return Tracker{
		user:        UserService{gate: gate},
		template:    TemplateService{repo: repo, gate: gate},
		measurement: MeasurementService{repo: repo, gate: gate},
		statistics:  StatisticsService{repo: repo, gate: gate},
	}
}

func (t *Tracker) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger: log.New(os.Stderr, "", log.LstdFlags), NoColor: false,
	}))
	r.Use(instrument)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJsonResponse(w, map[string]string{"message": welcomeMessage})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteSuccess(w)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.With(httprate.LimitByIP(loginRateLimit, time.Minute)).Post("/token", t.user.Token)
	r.Mount("/users", t.user.Routes())
	r.Mount("/templates", t.template.Routes())
	r.Mount("/measurements", t.measurement.Routes())
	r.Mount("/statistics", t.statistics.Routes())

	return r
}
