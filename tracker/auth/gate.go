package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fuszti/measure/tracker/config"
	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrUserDisabled       = errors.New("inactive user")
	ErrGeneratingJwt      = errors.New("error generating jwt")
)

type contextKey string

const userRequestContextKey contextKey = "user"

type User struct {
	Username string `json:"username"`
	Disabled bool   `json:"disabled"`
}

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenGate issues bearer tokens for the users of a fixed credential table and
// authenticates requests carrying them.
type TokenGate struct {
	jwtManager  *JwtManager
	credentials config.Credentials
	auditLog    AuditLogger
}

func NewTokenGate(secret []byte, expiry time.Duration, credentials config.Credentials, auditLog AuditLogger) *TokenGate {
	return &TokenGate{
		jwtManager:  NewJwtManager(secret, expiry),
		credentials: credentials,
		auditLog:    auditLog,
	}
}

// unknownUserHash is compared against when a login names an unknown user so
// that the response takes as long as for a known user.
var unknownUserHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("unknown user"), bcrypt.DefaultCost)
	if err != nil {
		slog.Error("error hashing placeholder password", "error", err)
	}
	return hash
})

func (g *TokenGate) Login(username, password string) (Token, error) {
	record, ok := g.credentials.Lookup(username)
	if !ok {
		_ = bcrypt.CompareHashAndPassword(unknownUserHash(), []byte(password))
		return Token{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(record.PasswordHash, []byte(password)); err != nil {
		return Token{}, ErrInvalidCredentials
	}

	if record.Disabled {
		return Token{}, ErrUserDisabled
	}

	token, err := g.jwtManager.CreateUserJwt(username)
	if err != nil {
		return Token{}, ErrGeneratingJwt
	}

	slog.Info("issued access token", "username", username)
	return Token{AccessToken: token, TokenType: "bearer"}, nil
}

func (g *TokenGate) addUserToContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		handler := func(w http.ResponseWriter, r *http.Request) {
			username, err := ValueFromContext(r, subjectKey)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			record, ok := g.credentials.Lookup(username)
			if !ok {
				http.Error(w, fmt.Sprintf("could not validate credentials for user '%v'", username), http.StatusUnauthorized)
				return
			}

			if record.Disabled {
				http.Error(w, ErrUserDisabled.Error(), http.StatusBadRequest)
				return
			}

			user := User{Username: username, Disabled: record.Disabled}
			reqCtx := context.WithValue(r.Context(), userRequestContextKey, user)
			next.ServeHTTP(w, r.WithContext(reqCtx))
		}

		return http.HandlerFunc(handler)
	}
}

func (g *TokenGate) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{g.jwtManager.Verifier(), g.jwtManager.Authenticator(), g.addUserToContext(), g.auditLog.Middleware}
}

func UserFromContext(r *http.Request) (User, error) {
	userUntyped := r.Context().Value(userRequestContextKey)
	if userUntyped == nil {
		return User{}, fmt.Errorf("user field not found in request context")
	}
	user, ok := userUntyped.(User)
	if !ok {
		return User{}, fmt.Errorf("invalid value for user field")
	}
	return user, nil
}
