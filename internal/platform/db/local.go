package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// LocalConfig configures the embedded SQLite catalog store.
type LocalConfig struct {
	// Path is a file path or ":memory:".
	Path        string
	Development bool
}

// OpenLocal opens the embedded store. Writes are serialized through a single
// connection, which also keeps ":memory:" databases alive across calls.
func OpenLocal(cfg LocalConfig, logger zerolog.Logger) (*gorm.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("local database path is required")
	}

	level := gormlogger.Silent
	if cfg.Development {
		level = gormlogger.Warn
	}
	gdb, err := gorm.Open(sqlite.Open(localDSN(cfg.Path)), &gorm.Config{
		Logger: gormlogger.New(zerologWriter{logger: logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access local database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping local database: %w", err)
	}
	return gdb, nil
}

func localDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on"
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// AutoMigrate creates or updates the local tables for the given models.
func AutoMigrate(ctx context.Context, gdb *gorm.DB, models ...any) error {
	if err := gdb.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("migrate local schema: %w", err)
	}
	return nil
}

// zerologWriter adapts zerolog to the gorm logger Writer interface.
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Str("component", "gorm").Msgf(format, args...)
}
