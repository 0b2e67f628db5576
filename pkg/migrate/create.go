package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var slugRe = regexp.MustCompile(`[^a-z0-9_]+`)

// CreateSQLMigration writes an empty goose migration skeleton named
// <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its path.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	if name == "" {
		return "", fmt.Errorf("name is required")
	}

	slug := slugify(name)
	if slug == "" {
		return "", fmt.Errorf("name %q leaves nothing after sanitizing", name)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := time.Now().UTC().Format("20060102150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", version, slug))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("migration already exists: %s", path)
	}

	skeleton := fmt.Sprintf(`-- +goose Up
-- +goose StatementBegin
-- %s
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- rollback %s
-- +goose StatementEnd
`, slug, slug)

	if err := os.WriteFile(path, []byte(skeleton), 0o644); err != nil {
		return "", fmt.Errorf("write migration %q: %w", path, err)
	}
	return path, nil
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	slug = slugRe.ReplaceAllString(slug, "_")
	return strings.Trim(slug, "_")
}
