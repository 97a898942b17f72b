package db

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// LocalStats reports the embedded store's connection statistics.
type LocalStats struct {
	OpenConns    int    `json:"open_conns"`
	InUse        int    `json:"in_use"`
	Idle         int    `json:"idle"`
	WaitCount    int64  `json:"wait_count"`
	WaitDuration string `json:"wait_duration"`
	Healthy      bool   `json:"healthy"`
}

// GetLocalStats returns connection statistics of the local store.
func GetLocalStats(gdb *gorm.DB) *LocalStats {
	sqlDB, err := gdb.DB()
	if err != nil {
		return &LocalStats{}
	}
	stat := sqlDB.Stats()
	return &LocalStats{
		OpenConns:    stat.OpenConnections,
		InUse:        stat.InUse,
		Idle:         stat.Idle,
		WaitCount:    stat.WaitCount,
		WaitDuration: stat.WaitDuration.String(),
		Healthy:      true,
	}
}

// HealthHandler reports local store health and whether the app is online.
// Being offline is not unhealthy.
func HealthHandler(gdb *gorm.DB, version string, online func() bool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		stats := GetLocalStats(gdb)
		isOnline := online != nil && online()

		sqlDB, err := gdb.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":  "unhealthy",
				"error":   err.Error(),
				"version": version,
				"online":  isOnline,
				"local":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"version": version,
			"online":  isOnline,
			"local":   stats,
		})
	}
}
