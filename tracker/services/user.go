package services

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/utils"
	"github.com/fuszti/measure/utils/logging"
	"github.com/go-chi/chi/v5"
)

type UserService struct {
	gate *auth.TokenGate
}

func (s *UserService) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(s.gate.AuthMiddleware()...)

		r.Get("/me", s.Me)
	})

	return r
}

// Token exchanges form encoded username and password fields for a bearer
// token.
func (s *UserService) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, CodedError(fmt.Errorf("error parsing form: %w", err), http.StatusBadRequest))
		return
	}

	username, password := r.PostForm.Get("username"), r.PostForm.Get("password")
	if username == "" || password == "" {
		writeError(w, CodedError(errors.New("username and password are required"), http.StatusUnprocessableEntity))
		return
	}

	token, err := s.gate.Login(username, password)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			code = http.StatusUnauthorized
			w.Header().Set("WWW-Authenticate", "Bearer")
		case errors.Is(err, auth.ErrUserDisabled):
			code = http.StatusBadRequest
		}
		loginAttempts.WithLabelValues("rejected").Inc()
		slog.Info("login rejected", "username", username, "error", err, "code", logging.AUTH_LOGIN)
		writeError(w, CodedError(err, code))
		return
	}

	loginAttempts.WithLabelValues("accepted").Inc()
	utils.WriteJsonResponse(w, token)
}

func (s *UserService) Me(w http.ResponseWriter, r *http.Request) {
	user, err := auth.UserFromContext(r)
	if err != nil {
		writeError(w, CodedError(err, http.StatusInternalServerError))
		return
	}

	utils.WriteJsonResponse(w, user)
}
