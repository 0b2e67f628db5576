package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var migrationFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// ValidateDir checks every SQL migration in dir for a well-formed
// versioned filename, a unique version, and the goose Up/Down markers.
// A directory with no SQL migrations passes.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	versions := map[string]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		name := e.Name()

		m := migrationFileRe.FindStringSubmatch(name)
		if m == nil {
			return fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		if prev, ok := versions[m[1]]; ok {
			return fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name)
		}
		versions[m[1]] = name

		if err := checkGooseMarkers(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func checkGooseMarkers(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %q: %w", path, err)
	}
	sql := string(b)
	for _, marker := range []string{"-- +goose Up", "-- +goose Down"} {
		if !strings.Contains(sql, marker) {
			return fmt.Errorf("migration %q missing %q", filepath.Base(path), marker)
		}
	}
	return nil
}
