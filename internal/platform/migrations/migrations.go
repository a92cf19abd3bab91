// Package migrations applies schema migrations for the sqlshell service
// through golang-migrate. Migrations run over their own short-lived
// database/sql connection before the service opens its exclusive handle.
package migrations

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// BuildDatabaseURL builds a golang-migrate sqlite URL for the given file
// path, accounting for Windows drive letters.
func BuildDatabaseURL(dbPath string) (string, error) {
	absPath, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("resolve database path: %w", err)
	}
	urlPath := filepath.ToSlash(absPath)
	if runtime.GOOS == "windows" && len(urlPath) >= 2 && urlPath[1] == ':' {
		urlPath = "/" + urlPath
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "sqlite://" + urlPath, nil
}

// Apply runs all pending migrations from sourceURL (e.g. "file://migrations")
// against the database at dbPath. It is safe to call repeatedly; an
// up-to-date schema is not an error.
func Apply(dbPath, sourceURL string) error {
	databaseURL, err := BuildDatabaseURL(dbPath)
	if err != nil {
		return err
	}
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Version returns the currently applied migration version and whether the
// database is in a dirty state. A never-migrated database reports (0, false).
func Version(dbPath, sourceURL string) (uint, bool, error) {
	databaseURL, err := BuildDatabaseURL(dbPath)
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return 0, false, fmt.Errorf("create migrate instance: %w", err)
	}
	defer func() {
		_, _ = m.Close()
	}()

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}
