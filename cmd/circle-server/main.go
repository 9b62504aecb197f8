package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carecircle/carecircle/internal/config"
	"github.com/carecircle/carecircle/internal/domain/circle"
	"github.com/carecircle/carecircle/internal/domain/field"
	"github.com/carecircle/carecircle/internal/domain/policy"
	"github.com/carecircle/carecircle/internal/platform/auth"
	"github.com/carecircle/carecircle/internal/platform/db"
	"github.com/carecircle/carecircle/internal/platform/middleware"
	"github.com/carecircle/carecircle/internal/platform/privacy"
	"github.com/carecircle/carecircle/internal/platform/vault"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "circle-server",
		Short: "Care-circle access-control and confidentiality API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(saltCmd())

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

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
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
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

func saltCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "salt",
		Short: "Manage the deployment salt",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate a deployment salt suitable for CIRCLE_SALT",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := make([]byte, 32)
			if _, err := rand.Read(raw); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(raw))
			return nil
		},
	})

	return cmd
}

func runServer() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")

	// Circle and membership domain
	circleRepo := circle.NewCircleRepoPG(pool)
	circleSvc := circle.NewService(circleRepo)
	circleHandler := circle.NewHandler(circleSvc)
	circleHandler.RegisterRoutes(apiV1)

	// Policy store and permission resolver
	catalog := policy.DefaultCatalog()
	policyRepo := policy.NewPolicyRepoPG(pool)
	resolver := policy.NewResolver(policyRepo, catalog)
	policySvc := policy.NewService(policyRepo, catalog, cfg.StrictCatalog)
	policyHandler := policy.NewHandler(resolver, policySvc, circleSvc)
	policyHandler.RegisterRoutes(apiV1)

	// Sensitive-field codec. The environment salt and the database salt are
	// both live sources; old ciphertext written under either stays readable.
	saltSource := privacy.NewMultiSaltSource(
		privacy.NewStaticSaltSource(cfg.CircleSalt),
		privacy.NewDBSaltSource(pool),
	)
	deriver := privacy.NewKeyDeriver(cfg.SaltMinLength)
	fieldSvc := field.NewService(deriver, saltSource)
	fieldHandler := field.NewHandler(fieldSvc, resolver, circleSvc)
	fieldHandler.RegisterRoutes(apiV1)
	if cfg.CircleSalt == "" {
		logger.Warn().Msg("CIRCLE_SALT not set; sealing requires a database-stored salt")
	}

	// Device key vault
	vaultRepo := vault.NewKeyRepoPG(pool)
	vaultSvc := vault.NewService(vaultRepo, vault.ScryptParams{
		N: cfg.VaultScryptN,
		R: cfg.VaultScryptR,
		P: cfg.VaultScryptP,
	})
	vaultHandler := vault.NewHandler(vaultSvc)
	vaultHandler.RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
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
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
