package db

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"sample-app/internal/config"
	"sample-app/internal/db/migrations"
)

func TestMigrationsCreateCaseInsensitiveEmailIndex(t *testing.T) {
	data, err := fs.ReadFile(migrations.FS, "00001_create_users.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	script := string(data)
	if !strings.Contains(script, "-- +goose Up") || !strings.Contains(script, "-- +goose Down") {
		t.Fatalf("expected goose annotations")
	}
	if !strings.Contains(script, "ON users (lower(email))") {
		t.Fatalf("expected unique index on lower(email)")
	}
}

func TestMigrateRunsGooseFromEmbeddedRoot(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string) error {
		gotDir = dir
		return errors.New("stop")
	}

	if err := migrate(context.Background(), nil); err == nil || err.Error() != "stop" {
		t.Fatalf("expected seam error, got %v", err)
	}
	if gotDir != "." {
		t.Fatalf("expected embedded root dir, got %q", gotDir)
	}
}

func TestNewPoolRequiresURL(t *testing.T) {
	if _, err := NewPool(context.Background(), &config.Config{}); err == nil {
		t.Fatalf("expected error without database url")
	}
}
