package database

import (
	"context"
	"errors"
	"fabtracker/internal/app/helpers"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/stoewer/go-strcase"
)

const (
	migrationsDir        string = "schema"
	fileNamePrefixFormat string = "2006_01_02_150405"
	fileNameSuffixUp     string = ".up.sql"
	fileNameSuffixDown   string = ".down.sql"
)

// Driver specific bookkeeping, every call of apply/revert runs within its own transaction.
type migrationTarget interface {
	prepareTables(ctx context.Context) error
	isMigrated(ctx context.Context, migration string) (bool, error)
	latestBatch(ctx context.Context) (int, error)
	batchMigrations(ctx context.Context, batch int) ([]string, error)
	apply(ctx context.Context, sql string, migration string, batch int) error
	revert(ctx context.Context, sql string, migration string) error
}

type Migrator struct {
	target migrationTarget
	files  fs.FS
	output io.Writer
}

func newMigrator(target migrationTarget, files fs.FS, driver string) (*Migrator, error) {
	driverFiles, err := fs.Sub(files, driver)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s migrations: %w", driver, err)
	}

	return &Migrator{
		target: target,
		files:  driverFiles,
		output: os.Stdout,
	}, nil
}

// Redirect progress output.
func (m *Migrator) SetOutput(output io.Writer) {
	m.output = output
}

// Apply new migrations in a single batch.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.target.prepareTables(ctx); err != nil {
		return fmt.Errorf("unable to prepare tables: %w", err)
	}

	files, err := m.getFilesToMigrate(ctx)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		fmt.Fprintln(m.output, "Nothing to migrate.")
		return nil
	}

	batch, err := m.target.latestBatch(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch latest migration batch: %w", err)
	}

	batch += 1

	color.New(color.FgYellow).Fprintln(m.output, "Running migrations.")

	for _, fileName := range files {
		start := time.Now()
		migrationName := strings.TrimSuffix(fileName, fileNameSuffixUp)

		fmt.Fprint(m.output, migrationName)

		sql, err := m.readFile(fileName)
		if err == nil {
			err = m.target.apply(ctx, sql, migrationName, batch)
		}

		if err != nil {
			color.New(color.FgRed).Fprintln(m.output, " FAIL")
			return fmt.Errorf("migration %s failed: %w", migrationName, err)
		}

		m.printDone(start)
	}

	return nil
}

// Rollback latest migrations in single batch.
func (m *Migrator) RollbackMigrations(ctx context.Context) error {
	if err := m.target.prepareTables(ctx); err != nil {
		return fmt.Errorf("unable to prepare tables: %w", err)
	}

	batch, err := m.target.latestBatch(ctx)
	if err != nil {
		return fmt.Errorf("unable to fetch latest migration batch: %w", err)
	}

	if batch == 0 {
		fmt.Fprintln(m.output, "Nothing to rollback.")
		return nil
	}

	migrations, err := m.target.batchMigrations(ctx, batch)
	if err != nil {
		return fmt.Errorf("unable to fetch batch migrations: %w", err)
	}

	color.New(color.FgYellow).Fprintln(m.output, "Rolling back migrations.")

	for _, migrationName := range migrations {
		start := time.Now()

		fmt.Fprint(m.output, migrationName)

		sql, err := m.readFile(helpers.ConcatStrings(migrationName, fileNameSuffixDown))
		if err == nil {
			err = m.target.revert(ctx, sql, migrationName)
		}

		if err != nil {
			color.New(color.FgRed).Fprintln(m.output, " FAIL")
			return fmt.Errorf("rollback of %s failed: %w", migrationName, err)
		}

		m.printDone(start)
	}

	return nil
}

// Create new pair of migration files for the driver, returns created paths.
func CreateNewMigration(driver string, name string) ([]string, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("migration name is empty")
	}

	rootDir, err := helpers.GetRootDir()
	if err != nil {
		return nil, fmt.Errorf("unable to get root directory: %w", err)
	}

	return CreateMigrationFiles(filepath.Join(rootDir, migrationsDir, driver), name, time.Now())
}

// Create up and down files in dir named after date and snake cased name.
func CreateMigrationFiles(dir string, name string, currentDate time.Time) ([]string, error) {
	migrationName := helpers.ConcatStrings(currentDate.Format(fileNamePrefixFormat), "_", strcase.SnakeCase(name))

	var paths []string

	for _, suffix := range []string{fileNameSuffixUp, fileNameSuffixDown} {
		filePath := filepath.Join(dir, helpers.ConcatStrings(migrationName, suffix))

		file, err := os.Create(filePath)
		if err != nil {
			return paths, fmt.Errorf("unable to create migration file: %w", err)
		}

		file.Close()

		paths = append(paths, filePath)
	}

	return paths, nil
}

func (m *Migrator) readFile(fileName string) (string, error) {
	content, err := fs.ReadFile(m.files, fileName)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(content)), nil
}

// Get list of files that must be migrated.
func (m *Migrator) getFilesToMigrate(ctx context.Context) ([]string, error) {
	filesList, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, fmt.Errorf("unable to read migration files: %w", err)
	}

	var migrations []string

	for _, file := range filesList {
		fileName := file.Name()

		if !strings.HasSuffix(fileName, fileNameSuffixUp) {
			continue
		}

		migrated, err := m.target.isMigrated(ctx, strings.TrimSuffix(fileName, fileNameSuffixUp))
		if err != nil {
			return nil, fmt.Errorf("unable to check if migrated: %w", err)
		}

		if migrated {
			continue
		}

		migrations = append(migrations, fileName)
	}

	return migrations, nil
}

func (m *Migrator) printDone(start time.Time) {
	fmt.Fprint(m.output, helpers.ConcatStrings("..........", time.Since(start).Round(time.Millisecond).String(), " "))
	color.New(color.FgGreen).Fprintln(m.output, "DONE")
}
