// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the accountd PostgreSQL schema and connection pool.
package store

import (
	"cmp"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	// Register pgx/v5 database driver for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migration is one embedded schema change, shipped as an up and a down file.
type Migration struct {
	Version uint
	Name    string
}

// String returns the file stem, e.g. "000001_create_accounts".
func (m Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// SchemaStatus reports the database schema against the embedded migrations.
type SchemaStatus struct {
	Version uint
	Dirty   bool
	Applied []Migration
	Pending []Migration
}

// UpToDate is true when every embedded migration is applied and the last
// one completed.
func (s SchemaStatus) UpToDate() bool {
	return !s.Dirty && len(s.Pending) == 0
}

var embeddedMigrations = sync.OnceValues(func() ([]Migration, error) {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "open migrations dir").Wrap(err)
	}
	return parseMigrations(sub)
})

// Migrations returns the embedded migrations in version order.
func Migrations() ([]Migration, error) {
	ms, err := embeddedMigrations()
	if err != nil {
		return nil, err
	}
	return slices.Clone(ms), nil
}

// parseMigrations reads NNNNNN_name.{up,down}.sql files from fsys. A file
// that does not follow the pattern, or a version missing either direction,
// is an error.
func parseMigrations(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "read migrations dir").Wrap(err)
	}

	type pair struct {
		name     string
		up, down bool
	}
	byVersion := make(map[uint]*pair)
	for _, entry := range entries {
		file := entry.Name()
		stem, direction, ok := splitMigrationFile(file)
		if !ok {
			return nil, oops.Code("MIGRATION_MALFORMED").With("file", file).
				Errorf("migration file must be named NNNNNN_name.up.sql or NNNNNN_name.down.sql")
		}
		rawVersion, name, _ := strings.Cut(stem, "_")
		version, err := strconv.ParseUint(rawVersion, 10, 32)
		if err != nil || len(rawVersion) != 6 || name == "" || version == 0 {
			return nil, oops.Code("MIGRATION_MALFORMED").With("file", file).
				Errorf("migration file must start with a six digit version and a name")
		}

		p, seen := byVersion[uint(version)]
		if !seen {
			p = &pair{name: name}
			byVersion[uint(version)] = p
		}
		if p.name != name {
			return nil, oops.Code("MIGRATION_MALFORMED").With("file", file).
				Errorf("version %d is used by %q and %q", version, p.name, name)
		}
		if direction == "up" {
			p.up = true
		} else {
			p.down = true
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for version, p := range byVersion {
		if !p.up || !p.down {
			return nil, oops.Code("MIGRATION_MALFORMED").
				With("version", version).
				With("name", p.name).
				Errorf("migration needs both an up and a down file")
		}
		migrations = append(migrations, Migration{Version: version, Name: p.name})
	}
	slices.SortFunc(migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return migrations, nil
}

func splitMigrationFile(file string) (stem, direction string, ok bool) {
	if stem, ok = strings.CutSuffix(file, ".up.sql"); ok {
		return stem, "up", true
	}
	if stem, ok = strings.CutSuffix(file, ".down.sql"); ok {
		return stem, "down", true
	}
	return "", "", false
}

// migrateIface is the subset of *migrate.Migrate the Migrator drives.
type migrateIface interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Close() (source error, database error)
}

// Migrator applies the embedded accounts schema with golang-migrate.
type Migrator struct {
	m          migrateIface
	migrations []Migration
}

// NewMigrator opens databaseURL for migration. postgres:// and
// postgresql:// URLs are accepted alongside the driver's own pgx5://.
func NewMigrator(databaseURL string) (*Migrator, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").With("operation", "create migration source").Wrap(err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, migrateURL(databaseURL))
	if err != nil {
		_ = source.Close() //nolint:errcheck // init error takes precedence
		return nil, oops.Code("MIGRATION_INIT_FAILED").With("operation", "initialize migrator").Wrap(err)
	}
	m.Log = migrateLogger{logger: slog.Default()}

	return &Migrator{m: m, migrations: migrations}, nil
}

func migrateURL(databaseURL string) string {
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(databaseURL, scheme); ok {
			return "pgx5://" + rest
		}
	}
	return databaseURL
}

// migrateLogger routes golang-migrate progress lines to slog.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), "component", "migrate")
}

func (l migrateLogger) Verbose() bool { return false }

// Up applies all pending migrations. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

// Rollback reverts the last steps migrations, or all of them when steps is
// zero. Rolling back everything drops the accounts and password_resets
// tables with their data.
func (m *Migrator) Rollback(steps int) error {
	if steps < 0 {
		return oops.Code("MIGRATION_INVALID_STEPS").With("steps", steps).Errorf("steps must be non-negative")
	}

	var err error
	if steps == 0 {
		err = m.m.Down()
	} else {
		err = m.m.Steps(-steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_ROLLBACK_FAILED").With("steps", steps).Wrap(err)
	}
	return nil
}

// Force records version as applied and clears the dirty flag without
// running any SQL. version must be an embedded migration, or -1 to mark
// the schema empty.
func (m *Migrator) Force(version int) error {
	known := version == -1 || slices.ContainsFunc(m.migrations, func(mg Migration) bool {
		return version >= 0 && mg.Version == uint(version)
	})
	if !known {
		return oops.Code("MIGRATION_INVALID_VERSION").
			With("version", version).
			Errorf("version %d is not an embedded migration", version)
	}
	if err := m.m.Force(version); err != nil {
		return oops.Code("MIGRATION_FORCE_FAILED").With("version", version).Wrap(err)
	}
	return nil
}

// Status reads the schema version and splits the embedded migrations into
// applied and pending. An empty schema reports version 0.
func (m *Migrator) Status() (SchemaStatus, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		version, dirty, err = 0, false, nil
	}
	if err != nil {
		return SchemaStatus{}, oops.Code("MIGRATION_STATUS_FAILED").With("operation", "read version").Wrap(err)
	}

	status := SchemaStatus{Version: version, Dirty: dirty}
	for _, mg := range m.migrations {
		if mg.Version <= version {
			status.Applied = append(status.Applied, mg)
		} else {
			status.Pending = append(status.Pending, mg)
		}
	}
	return status, nil
}

// Close releases the migration source and database connection.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		return oops.Code("MIGRATION_CLOSE_FAILED").
			With("source_failed", srcErr != nil).
			With("database_failed", dbErr != nil).
			Wrap(err)
	}
	return nil
}
