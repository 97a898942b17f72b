// Package dbtest opens throwaway local stores for package tests.
package dbtest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/platform/db"
)

// Open returns a file-backed store in t.TempDir with models migrated.
func Open(t testing.TB, models ...any) *gorm.DB {
	t.Helper()
	gdb, err := db.OpenLocal(db.LocalConfig{Path: filepath.Join(t.TempDir(), "rxpad.db")}, zerolog.Nop())
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	if err := db.AutoMigrate(context.Background(), gdb, models...); err != nil {
		t.Fatalf("migrate local store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}
