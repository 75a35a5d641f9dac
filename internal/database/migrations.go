package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sirupsen/logrus"

	"github.com/pharmref-mcp-server/migrations"
)

// MigrationRunner applies the reference schema migrations.
type MigrationRunner struct {
	m      *migrate.Migrate
	source string
	log    *logrus.Logger
}

// NewMigrationRunner creates a runner. An empty migrationsPath uses the
// migrations compiled into the binary.
func NewMigrationRunner(databaseURL, migrationsPath string, logger *logrus.Logger) (*MigrationRunner, error) {
	mr := &MigrationRunner{log: logger, source: "embedded"}

	var err error
	if migrationsPath == "" {
		src, srcErr := iofs.New(migrations.FS, ".")
		if srcErr != nil {
			return nil, fmt.Errorf("failed to open embedded migrations: %w", srcErr)
		}
		mr.m, err = migrate.NewWithSourceInstance("iofs", src, databaseURL)
	} else {
		mr.source = migrationsPath
		mr.m, err = migrate.New("file://"+migrationsPath, databaseURL)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}
	mr.m.Log = migrateLogger{logger}
	return mr, nil
}

// Up applies every pending migration. Cancelling ctx stops after the
// migration in flight.
func (mr *MigrationRunner) Up(ctx context.Context) error {
	mr.log.WithField("source", mr.source).Info("Applying schema migrations")
	return mr.run(ctx, "up", mr.m.Up)
}

// Down rolls back the most recent migration.
func (mr *MigrationRunner) Down(ctx context.Context) error {
	mr.log.WithField("source", mr.source).Info("Rolling back latest schema migration")
	return mr.run(ctx, "down", func() error { return mr.m.Steps(-1) })
}

// Force records version as applied and clears the dirty flag. Use it after
// repairing a migration that failed halfway.
func (mr *MigrationRunner) Force(version int) error {
	if err := mr.m.Force(version); err != nil {
		return fmt.Errorf("failed to force version %d: %w", version, err)
	}
	mr.logVersion("Forced schema version")
	return nil
}

// Version returns the current version and dirty flag. It returns
// migrate.ErrNilVersion before the first migration.
func (mr *MigrationRunner) Version() (uint, bool, error) {
	return mr.m.Version()
}

func (mr *MigrationRunner) Close() error {
	sourceErr, dbErr := mr.m.Close()
	return errors.Join(sourceErr, dbErr)
}

func (mr *MigrationRunner) run(ctx context.Context, direction string, step func() error) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			mr.m.GracefulStop <- true
		case <-done:
		}
	}()

	err := step()
	if errors.Is(err, migrate.ErrNoChange) {
		mr.log.WithField("direction", direction).Info("Schema already current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", direction, err)
	}
	mr.logVersion("Schema migration finished")
	return nil
}

func (mr *MigrationRunner) logVersion(msg string) {
	version, dirty, err := mr.m.Version()
	if err != nil {
		mr.log.WithError(err).Warn("Could not read schema version")
		return
	}
	mr.log.WithFields(logrus.Fields{
		"version": version,
		"dirty":   dirty,
	}).Info(msg)
}

// migrateLogger routes golang-migrate's progress lines into logrus at debug.
type migrateLogger struct {
	log *logrus.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debugf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.IsLevelEnabled(logrus.DebugLevel)
}
