package app

import (
	"context"
	"fabtracker/internal/app/config"
	"fabtracker/internal/app/database"
	"fmt"
	"io"
	"os"
	"strings"
)

const ConsoleAppKeyword = "impulse101"

type ConsoleApp struct {
	config *config.Config
	output io.Writer
}

func NewConsoleApp(cfg *config.Config) ConsoleApp {
	return ConsoleApp{config: cfg, output: os.Stdout}
}

// Console mode is "<keyword> <command> [argument]".
func IsConsoleMode(args []string) bool {
	return len(args) > 1 && args[0] == ConsoleAppKeyword
}

func (app ConsoleApp) Run(ctx context.Context, args []string) error {
	fmt.Fprintln(app.output, "starting console...")

	if len(args) < 2 {
		return fmt.Errorf("not enough arguments")
	}

	if args[0] != ConsoleAppKeyword {
		return fmt.Errorf("invalid keyword")
	}

	command := args[1]

	switch command {
	case "migrate", "migrate:rollback":
		migrator, closeConnection, err := app.openMigrator(ctx)
		if err != nil {
			return err
		}

		defer closeConnection()

		migrator.SetOutput(app.output)

		if command == "migrate" {
			return migrator.Migrate(ctx)
		}

		return migrator.RollbackMigrations(ctx)
	case "create:migration":
		if len(args) < 3 || strings.TrimSpace(args[2]) == "" {
			return fmt.Errorf("no migration name given")
		}

		paths, err := database.CreateNewMigration(app.config.Database.Driver, strings.TrimSpace(args[2]))
		for _, path := range paths {
			fmt.Fprintln(app.output, "Created", path)
		}

		return err
	}

	return fmt.Errorf("unknown command %q", command)
}

func (app ConsoleApp) openMigrator(ctx context.Context) (*database.Migrator, func(), error) {
	if app.config.Database.Driver == config.DriverSqlite {
		db, err := database.NewSqlite(app.config.Database.SqliteFile())
		if err != nil {
			return nil, nil, err
		}

		migrator, err := database.NewSqliteMigrator(db)
		if err != nil {
			db.CloseConnection()
			return nil, nil, err
		}

		return migrator, db.CloseConnection, nil
	}

	db, err := database.NewPostgres(ctx, app.config.Database.PostgresDsn())
	if err != nil {
		return nil, nil, err
	}

	migrator, err := database.NewPostgresMigrator(db)
	if err != nil {
		db.CloseConnection()
		return nil, nil, err
	}

	return migrator, db.CloseConnection, nil
}
