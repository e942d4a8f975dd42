package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/fuszti/measure/tracker/storage"
)

type TrackerEnv struct {
	SecretKey         string        `env:"SECRET_KEY,required,notEmpty"`
	AccessTokenExpire time.Duration `env:"ACCESS_TOKEN_EXPIRE" envDefault:"30m"`

	AuthUsers     string `env:"AUTH_USERS" envDefault:"admin:password"`
	AuthUsersFile string `env:"AUTH_USERS_FILE"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sql"`
	DatabaseUrl    string `env:"DATABASE_URL" envDefault:"sqlite://data/measure.db"`
	DataDir        string `env:"DATA_DIR" envDefault:"./data"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	LogDir   string `env:"LOG_DIR" envDefault:"./logs"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

/**
 * ==========================================================================
 * ==== All variables used by the tracker must be loaded here. This is   ====
 * ==== to make the data flow clear so that a user can see what          ====
 * ==== variables are exposed, and how the values are propagated through ====
 * ==== the system.                                                      ====
 * ==========================================================================
 */
func LoadEnv() (*TrackerEnv, error) {
	cfg := &TrackerEnv{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	switch cfg.StorageBackend {
	case storage.SqlBackend, storage.FileBackend, storage.BadgerBackend:
	default:
		return nil, fmt.Errorf("%w: '%v'", storage.ErrUnknownBackend, cfg.StorageBackend)
	}

	return cfg, nil
}

func (e *TrackerEnv) StorageConfig() storage.Config {
	return storage.Config{
		Backend:     e.StorageBackend,
		DatabaseUrl: e.DatabaseUrl,
		DataDir:     e.DataDir,
	}
}

// Credentials loads the credential table, preferring AUTH_USERS_FILE over
// AUTH_USERS when both are set.
func (e *TrackerEnv) Credentials() (Credentials, error) {
	if e.AuthUsersFile != "" {
		slog.Info("loading credentials from file", "path", e.AuthUsersFile)
		return LoadCredentialsFile(e.AuthUsersFile)
	}
	return ParseCredentials(e.AuthUsers)
}

func (e *TrackerEnv) Level() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(e.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}
