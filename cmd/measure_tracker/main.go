package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/tracker/config"
	"github.com/fuszti/measure/tracker/services"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/fuszti/measure/utils/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func loadEnvFile(envFile string) error {
	slog.Info(fmt.Sprintf("loading env from file %v", envFile))
	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("error loading .env file '%v': %w", envFile, err)
	}
	return nil
}

func openLogFile(dir, name string) (*os.File, error) {
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0666)
	if err != nil {
		return nil, fmt.Errorf("error opening log file %v: %w", name, err)
	}
	return file, nil
}

func runApp() error {
	envFile := flag.String("env", "", "File to load env variables from. If not specified will just load them from the environment variables already defined.")
	port := flag.Int("port", 8000, "Port to run server on")

	flag.Parse()

	if *envFile != "" {
		if err := loadEnvFile(*envFile); err != nil {
			return err
		}
	}

	env, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("error loading env: %w", err)
	}

	if err := os.MkdirAll(env.LogDir, 0777); err != nil {
		return fmt.Errorf("error creating log dir: %w", err)
	}

	logFile, err := openLogFile(env.LogDir, "measure_tracker.log")
	if err != nil {
		return err
	}
	defer logFile.Close()

	auditLog, err := openLogFile(env.LogDir, "audit.log")
	if err != nil {
		return err
	}
	defer auditLog.Close()

	logging.InitLogging(logFile, env.Level())

	repo, err := storage.Open(env.StorageConfig())
	if err != nil {
		return fmt.Errorf("error opening %v store: %w", env.StorageBackend, err)
	}
	defer repo.Close()

	credentials, err := env.Credentials()
	if err != nil {
		return fmt.Errorf("error loading credentials: %w", err)
	}
	slog.Info("loaded credentials", "users", credentials.Usernames())

	gate := auth.NewTokenGate([]byte(env.SecretKey), env.AccessTokenExpire, credentials, auth.NewAuditLogger(auditLog))

	tracker := services.NewTracker(repo, gate)

	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   env.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Mount("/", tracker.Routes())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", *port, "backend", env.StorageBackend, "code", logging.SYSTEM)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen and serve returned error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down server", "code", logging.SYSTEM)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	return nil
}

func main() {
	if err := runApp(); err != nil {
		log.Fatalf("measure tracker failed: %v", err)
	}
}
