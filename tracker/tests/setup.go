package tests

import (
	"bytes"
	"testing"
	"time"

	"github.com/fuszti/measure/tracker/auth"
	"github.com/fuszti/measure/tracker/config"
	"github.com/fuszti/measure/tracker/services"
	"github.com/fuszti/measure/tracker/storage"
	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	api  chi.Router
	repo storage.Repository
}

const (
	adminUsername    = "admin"
	adminPassword    = "admin_password123"
	disabledUsername = "retired"
	disabledPassword = "retired_password123"
)

func setupTestEnv(t *testing.T) *testEnv {
	db, err := storage.OpenDatabase("file::memory:")
	if err != nil {
		t.Fatal(err)
	}

	repo := storage.NewSqlRepository(db)
	t.Cleanup(func() { repo.Close() })

	adminHash, err := config.HashPassword(adminPassword)
	if err != nil {
		t.Fatal(err)
	}
	disabledHash, err := config.HashPassword(disabledPassword)
	if err != nil {
		t.Fatal(err)
	}

	credentials := config.NewCredentials(map[string]config.UserRecord{
		adminUsername:    {PasswordHash: adminHash},
		disabledUsername: {PasswordHash: disabledHash, Disabled: true},
	})

	gate := auth.NewTokenGate([]byte("290zcv02ai249"), 30*time.Minute, credentials, auth.NewAuditLogger(new(bytes.Buffer)))

	tracker := services.NewTracker(repo, gate)

	return &testEnv{api: tracker.Routes(), repo: repo}
}

func (t *testEnv) newClient() client {
	return client{api: t.api}
}

func (t *testEnv) adminClient() (client, error) {
	c := t.newClient()
	err := c.login(adminUsername, adminPassword)
	return c, err
}
