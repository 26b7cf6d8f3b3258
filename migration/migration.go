package migration

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

//go:embed postgresql sqlite
var FS embed.FS

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Dialect maps a database driver name to the goose dialect and the migration
// directory holding its scripts.
func Dialect(driver string) (goose.Dialect, string, error) {
	switch driver {
	case DriverPostgres, "":
		return goose.DialectPostgres, "postgresql", nil
	case DriverSQLite:
		return goose.DialectSQLite3, "sqlite", nil
	default:
		return "", "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// Dir returns the embedded migration directory of a database.
func Dir(driver, databaseName string) (string, error) {
	_, dir, err := Dialect(driver)
	if err != nil {
		return "", err
	}
	return path.Join(dir, databaseName), nil
}

// Apply runs every pending embedded migration of databaseName.
func Apply(ctx context.Context, db *sql.DB, driver, databaseName string) error {
	dialect, _, err := Dialect(driver)
	if err != nil {
		return err
	}

	dir, err := Dir(driver, databaseName)
	if err != nil {
		return err
	}

	migrations, err := fs.Sub(FS, dir)
	if err != nil {
		return err
	}

	provider, err := goose.NewProvider(dialect, db, migrations)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply %s migrations: %w", databaseName, err)
	}

	for _, result := range results {
		logrus.WithFields(logrus.Fields{
			"database": databaseName,
			"version":  result.Source.Version,
			"duration": result.Duration.String(),
		}).Info("migration applied")
	}

	return nil
}
