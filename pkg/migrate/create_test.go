package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/simvoyage/esim-backend/pkg/migrate"
)

func TestCreateSQLMigrationWritesSkeleton(t *testing.T) {
	dir := t.TempDir()

	path, err := migrate.CreateSQLMigration(dir, "Add Promo Codes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	base := filepath.Base(path)
	if !strings.HasSuffix(base, "_add_promo_codes.sql") {
		t.Fatalf("unexpected filename %q", base)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(string(data), marker) {
			t.Fatalf("skeleton missing %q", marker)
		}
	}

	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate dir: %v", err)
	}
}

func TestCreateSQLMigrationRejectsEmptySlug(t *testing.T) {
	if _, err := migrate.CreateSQLMigration(t.TempDir(), "!!!"); err == nil {
		t.Fatal("expected sanitized-empty name to fail")
	}
}

func TestValidateDirFlagsBadFilename(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad-name.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestValidateDirFlagsMissingMarkers(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "20260101000000_missing_down.sql"), []byte("-- +goose Up\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected missing goose markers to fail validation")
	}
}

func TestShippedMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("shipped migrations invalid: %v", err)
	}
}
