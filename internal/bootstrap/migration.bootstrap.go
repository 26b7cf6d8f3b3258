package bootstrap

import (
	"database/sql"
	"errors"
	"path/filepath"

	"github.com/guregu/null/v6"
	"github.com/krobus00/signal-order-service/internal/config"
	"github.com/krobus00/signal-order-service/internal/util"
	"github.com/krobus00/signal-order-service/migration"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

func StartMigrate(cmd *cobra.Command, args []string) {
	databaseName, _ := cmd.Flags().GetString("databaseName")
	actionType, _ := cmd.Flags().GetString("action")
	migrationName, _ := cmd.Flags().GetString("name")
	version, _ := cmd.Flags().GetInt64("version")

	dbCfg, ok := config.Env.Database[databaseName]
	if !ok {
		util.ContinueOrFatal(errors.New("unknown database: " + databaseName))
	}

	driver := dbCfg.Driver
	if driver == "" {
		driver = migration.DriverPostgres
	}

	dialect, _, err := migration.Dialect(driver)
	util.ContinueOrFatal(err)

	migrationDir, err := migration.Dir(driver, databaseName)
	util.ContinueOrFatal(err)

	db, err := sql.Open(driver, dbCfg.DSN)
	util.ContinueOrFatal(err)
	defer db.Close()

	err = goose.SetDialect(string(dialect))
	util.ContinueOrFatal(err)

	// scripts are read from the embedded tree, new ones are written to the source tree
	goose.SetBaseFS(migration.FS)
	if actionType == "create" {
		goose.SetBaseFS(nil)
		migrationDir = filepath.Join("migration", migrationDir)
	}

	switch actionType {
	case "create":
		err = goose.Create(db, migrationDir, migrationName, "sql")
	case "up":
		err = goose.Up(db, migrationDir, goose.WithAllowMissing())
	case "up-by-one":
		err = goose.UpByOne(db, migrationDir, goose.WithAllowMissing())
	case "up-to":
		err = goose.UpTo(db, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "down":
		err = goose.Down(db, migrationDir, goose.WithAllowMissing())
	case "down-to":
		err = goose.DownTo(db, migrationDir, null.IntFrom(version).Int64, goose.WithAllowMissing())
	case "status":
		err = goose.Status(db, migrationDir)
	case "reset":
		err = goose.Reset(db, migrationDir, goose.WithAllowMissing())
		if err != nil {
			break
		}
		err = goose.Up(db, migrationDir, goose.WithAllowMissing())
	default:
		err = errors.New("invalid command")
	}

	util.ContinueOrFatal(err)
}
