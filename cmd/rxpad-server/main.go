package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rxpad/rxpad/internal/config"
	"github.com/rxpad/rxpad/internal/platform/db"
	"github.com/rxpad/rxpad/internal/seed"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rxpad-server",
		Short: "Offline-first prescription pad API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(metricsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Env)
	gdb, err := openLocalStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, gdb, logger)
	if err != nil {
		if sqlDB, dbErr := gdb.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return a, nil
}

func runServer() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	logger := a.logger

	go a.monitor.Run(ctx)
	go a.queue.Run(ctx, a.monitor.Regained())

	e := a.server()
	addr := ":" + a.cfg.Port
	logger.Info().
		Str("addr", addr).
		Str("env", a.cfg.Env).
		Str("auth_mode", a.cfg.ResolvedAuthMode()).
		Str("metrics_sink", a.cfg.MetricsSink).
		Msg("starting server")

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	stop()
	a.prescriptions.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the remote metrics schema",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := schemaFlag(cmd, cfg)

			ctx := context.Background()
			migrator, pool, err := newMigrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "", "Target schema (defaults to REMOTE_SCHEMA)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			schema := schemaFlag(cmd, cfg)

			ctx := context.Background()
			migrator, pool, err := newMigrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "", "Target schema (defaults to REMOTE_SCHEMA)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func schemaFlag(cmd *cobra.Command, cfg *config.Config) string {
	schema, _ := cmd.Flags().GetString("schema")
	if schema != "" {
		return schema
	}
	if cfg.RemoteSchema != "" {
		return cfg.RemoteSchema
	}
	return db.DefaultSchema
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load or prepare base catalog files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "apply <file>",
		Short: "Load base medications and diagnoses from a .json, .yaml or .xlsx catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := seed.Apply(ctx, cat, a.medications, a.diagnoses)
			if err != nil {
				return err
			}
			fmt.Printf("Seeded %d medication(s) and %d diagnosis(es).\n", res.Medications, res.Diagnoses)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "template <file.xlsx>",
		Short: "Write an empty catalog workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			if err := seed.WriteTemplate(f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	})

	return cmd
}

func metricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect or sync the local metrics queue",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "flush",
		Short: "Send pending metric events to the configured sink",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			// check once so a CLI flush does not depend on the background monitor
			a.monitor.Check(ctx)
			res, err := a.queue.Flush(ctx)
			if err != nil {
				return err
			}
			if res.Skipped != "" {
				fmt.Printf("Flush skipped: %s\n", res.Skipped)
				return nil
			}
			fmt.Printf("Attempted %d, synced %d, failed %d.\n", res.Attempted, res.Synced, res.Failed)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.queue.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %d\n%-10s %d\n%-10s %d\n", "pending", st.Pending, "synced", st.Synced, "exhausted", st.Exhausted)
			return nil
		},
	})

	return cmd
}
