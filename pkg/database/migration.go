package database

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationConfig controls the migration run
type MigrationConfig struct {
	FolderPath string
	// Version migrates to a specific version instead of latest when non-zero
	Version uint
	// AutoRollback forces a dirty database back to the pre-run version before
	// returning the migration error
	AutoRollback bool
}

// MigrationService applies golang-migrate migrations at startup
type MigrationService struct {
	config MigrationConfig
	logger ectologger.Logger
}

// NewMigrationService creates a migration service
func NewMigrationService(logger ectologger.Logger, config MigrationConfig) *MigrationService {
	return &MigrationService{config: config, logger: logger}
}

type migrationLogger struct {
	ectologger.Logger
}

func (l migrationLogger) Verbose() bool { return true }

func (l migrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Migrate runs pending migrations against the given database driver
func (ms *MigrationService) Migrate(databaseName string, driver migratedb.Driver) error {
	folder := ms.resolveFolder()
	if _, err := os.Stat(folder); err != nil {
		return fmt.Errorf("migration folder %s does not exist: %w", folder, err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+folder, databaseName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("failed to create migrate instance")
		return err
	}
	m.Log = migrationLogger{Logger: ms.logger}

	previous, _, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Warn("failed to read current migration version")
	}

	var runErr error
	if ms.config.Version != 0 {
		runErr = m.Migrate(ms.config.Version)
	} else {
		runErr = m.Up()
	}

	return ms.handleResult(m, runErr, previous)
}

func (ms *MigrationService) handleResult(m *migrate.Migrate, err error, previous uint) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}
	if err == migrate.ErrNoChange {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	ms.logger.WithError(err).Error("migration failed")

	version, dirty, versionErr := m.Version()
	if versionErr != nil && versionErr != migrate.ErrNilVersion {
		ms.logger.WithError(versionErr).Error("failed to read migration version after failure")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previous == 0 && version > 0 {
			previous = version - 1
		}
		ms.logger.Warnf("Database dirty at version %d, forcing back to version %d", version, previous)
		if forceErr := m.Force(int(previous)); forceErr != nil {
			ms.logger.WithError(forceErr).Errorf("failed to force database to version %d", previous)
			return forceErr
		}
	}

	// The original error still fails startup even after a successful rollback.
	return err
}

func (ms *MigrationService) resolveFolder() string {
	folder := ms.config.FolderPath
	if _, err := os.Stat(folder); err == nil {
		return folder
	}
	wd, _ := os.Getwd()
	return wd + "/" + folder
}
