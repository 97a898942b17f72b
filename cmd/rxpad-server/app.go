package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/rxpad/rxpad/internal/config"
	"github.com/rxpad/rxpad/internal/domain/diagnosis"
	"github.com/rxpad/rxpad/internal/domain/medication"
	"github.com/rxpad/rxpad/internal/domain/patient"
	"github.com/rxpad/rxpad/internal/domain/practice"
	"github.com/rxpad/rxpad/internal/domain/prescription"
	"github.com/rxpad/rxpad/internal/domain/treatment"
	"github.com/rxpad/rxpad/internal/platform/analytics"
	"github.com/rxpad/rxpad/internal/platform/auth"
	"github.com/rxpad/rxpad/internal/platform/connectivity"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/platform/middleware"
)

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func localModels() []any {
	var models []any
	for _, m := range [][]any{
		medication.Models(),
		diagnosis.Models(),
		treatment.Models(),
		patient.Models(),
		prescription.Models(),
		practice.Models(),
		analytics.Models(),
	} {
		models = append(models, m...)
	}
	return models
}

func openLocalStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*gorm.DB, error) {
	gdb, err := db.OpenLocal(db.LocalConfig{Path: cfg.LocalDBPath, Development: cfg.IsDev()}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(ctx, gdb, localModels()...); err != nil {
		return nil, err
	}
	return gdb, nil
}

// app holds every service of one process. Nothing here is global.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	local   *gorm.DB
	monitor *connectivity.Monitor
	queue   *analytics.Queue
	closers []func()

	medications   *medication.Service
	diagnoses     *diagnosis.Service
	treatments    *treatment.Service
	patients      *patient.Service
	prescriptions *prescription.Service
	practice      *practice.Service
}

func newApp(ctx context.Context, cfg *config.Config, gdb *gorm.DB, logger zerolog.Logger) (*app, error) {
	tx := db.NewTransactor(gdb)
	a := &app{cfg: cfg, logger: logger, local: gdb}

	a.practice = practice.NewService(practice.NewTemplateRepoGorm(gdb), practice.NewConfigRepoGorm(gdb), tx, logger)
	a.medications = medication.NewService(medication.NewRepoGorm(gdb), tx, logger)
	a.treatments = treatment.NewService(treatment.NewRepoGorm(gdb), tx, treatment.Config{
		AutoApplyThreshold: cfg.LearningAutoApplyThreshold,
	}, logger)
	a.diagnoses = diagnosis.NewService(diagnosis.NewRepoGorm(gdb), tx, a.treatments, logger)
	a.patients = patient.NewService(patient.NewRepoGorm(gdb), tx, logger)

	a.monitor = connectivity.NewMonitor(connectivity.Config{
		CheckURL:        cfg.ConnectivityCheckURL,
		Interval:        cfg.ConnectivityInterval,
		InitiallyOnline: cfg.ConnectivityCheckURL == "",
	}, logger)

	sink, closeSink, err := buildSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeSink != nil {
		a.closers = append(a.closers, closeSink)
	}
	a.queue = analytics.NewQueue(analytics.NewStoreGorm(gdb), sink, a.monitor, a.practice, analytics.Config{
		BatchSize:     cfg.MetricsBatchSize,
		MaxRetries:    cfg.MetricsMaxRetries,
		RetryBase:     cfg.MetricsRetryBase,
		FlushInterval: cfg.MetricsFlushInterval,
		AppVersion:    cfg.AppVersion,
		Environment:   cfg.Env,
	}, logger)

	a.prescriptions = prescription.NewService(prescription.NewRepoGorm(gdb), tx, prescription.Deps{
		Patients:    a.patients,
		Medications: a.medications,
		Diagnoses:   a.diagnoses,
		Learner:     a.treatments,
		Practice:    a.practice,
		Metrics:     a.queue,
	}, logger)
	return a, nil
}

// buildSink returns nil when METRICS_SINK is none; events then stay queued.
func buildSink(ctx context.Context, cfg *config.Config) (analytics.Sink, func(), error) {
	switch cfg.MetricsSink {
	case config.SinkHTTP:
		return analytics.NewHTTPSink(cfg.MetricsEndpoint, cfg.MetricsAPIKey, 15*time.Second), nil, nil
	case config.SinkPostgres:
		pool, err := db.NewRemotePool(ctx, cfg.RemoteDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		return analytics.NewPostgresSink(pool, cfg.RemoteSchema), pool.Close, nil
	case config.SinkKafka:
		sink := analytics.NewKafkaSink(analytics.NewKafkaWriter(cfg.MetricsKafkaBrokers, cfg.MetricsKafkaTopic))
		return sink, func() { sink.Close() }, nil
	case config.SinkNone, "":
		return nil, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown metrics sink %q", cfg.MetricsSink)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if sqlDB, err := a.local.DB(); err == nil {
		sqlDB.Close()
	}
}

func (a *app) server() *echo.Echo {
	cfg, logger := a.cfg, a.logger

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(analytics.RequestMiddleware(a.queue, analytics.MiddlewareConfig{
		SlowThreshold: cfg.SlowRequestThreshold,
		Skipper:       auth.AuthSkipper,
	}, logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, SigningKey: []byte(cfg.SigningKey)}
	if cfg.ResolvedAuthMode() == "development" {
		e.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	health := db.HealthHandler(a.local, cfg.AppVersion, a.monitor.Online)
	e.GET("/health", health)
	e.GET("/health/db", health)

	apiV1 := e.Group("/api/v1", middleware.RequestTimeout(30*time.Second))
	medication.NewHandler(a.medications).WithSearchLimit(cfg.SearchDefaultLimit).RegisterRoutes(apiV1)
	diagnosis.NewHandler(a.diagnoses).WithSearchLimit(cfg.SearchDefaultLimit).RegisterRoutes(apiV1)
	treatment.NewHandler(a.treatments).RegisterRoutes(apiV1)
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	prescription.NewHandler(a.prescriptions).RegisterRoutes(apiV1)
	practice.NewHandler(a.practice).RegisterRoutes(apiV1)
	analytics.NewHandler(a.queue).RegisterRoutes(apiV1)

	return e
}

func newMigrator(ctx context.Context, cfg *config.Config) (*db.Migrator, *pgxpool.Pool, error) {
	pool, err := db.NewRemotePool(ctx, cfg.RemoteDatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, db.RemoteMigrations()), pool, nil
}
