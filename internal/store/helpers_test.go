package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/larder/internal/database"
	"github.com/dukerupert/larder/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, us *UserStore, username string) *model.User {
	t.Helper()
	u, err := us.Create(context.Background(), username, "hash", model.Profile{})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return u
}
