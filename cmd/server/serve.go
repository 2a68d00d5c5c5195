package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"secrets-backend/internal/admin"
	"secrets-backend/internal/api"
	"secrets-backend/internal/apperror"
	"secrets-backend/internal/auth"
	"secrets-backend/internal/certificate"
	"secrets-backend/internal/config"
	"secrets-backend/internal/instrument"
	"secrets-backend/internal/role"
	"secrets-backend/internal/sealer"
	"secrets-backend/internal/store"
)

const (
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Hour
)

func newServeCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			log.Printf("Config loaded (port: %d, driver: %s)", cfg.Server.Port, cfg.Database.Driver)
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Println("Database connected")

	srv, err := newServer(ctx, cfg, st)
	if err != nil {
		return err
	}

	go runEventCleanup(ctx, st, time.Duration(cfg.Instrumentation.RetentionDays)*24*time.Hour)

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		log.Printf("Starting server on %s", addr)
		listenErr <- srv.app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		srv.close(context.Background())
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.close(shutdownCtx)
}

type server struct {
	app    *fiber.App
	buffer *instrument.EventBuffer
}

// newServer wires every handler onto a fiber app.
func newServer(ctx context.Context, cfg *config.Config, st *store.Store) (*server, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	sl, err := sealer.New(key)
	if err != nil {
		return nil, err
	}

	roles := role.NewStore(st)
	reg := role.NewRegistry()
	if err := role.LoadAll(ctx, roles, reg); err != nil {
		log.Printf("WARN: Failed to load roles: %v", err)
	}
	certRepo := certificate.NewRepository(st)
	certs := certificate.NewService(certRepo, sl)

	var buffer *instrument.EventBuffer
	if cfg.Instrumentation.Enabled {
		buffer = instrument.NewEventBuffer(st, cfg.Instrumentation.BufferSize, cfg.Instrumentation.FlushIntervalMs)
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          apperror.Handler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(instrument.Middleware(cfg.Instrumentation, buffer))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// auth routes first, they carry no middleware
	auth.RegisterRoutes(app, auth.NewHandler(st, cfg.JWTSecret))

	authMW := auth.Middleware(cfg.JWTSecret)
	adminMW := auth.RequireAdmin()

	api.RegisterRoutes(app, api.NewHandler(reg), authMW)
	admin.RegisterAdminRoutes(app, admin.NewHandler(roles, reg, certs, certRepo), authMW, adminMW)
	instrument.NewEventHandler(st).RegisterRoutes(app.Group("/api"), authMW, adminMW)

	return &server{app: app, buffer: buffer}, nil
}

// close stops the listener and drains the event buffer. Both are attempted
// even when the first fails.
func (s *server) close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.app.ShutdownWithContext(ctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown http: %w", err))
	}
	if s.buffer != nil {
		if err := s.buffer.Stop(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("flush events: %w", err))
		}
	}
	return result.ErrorOrNil()
}

func runEventCleanup(ctx context.Context, st *store.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		if _, err := instrument.CleanupOldEvents(ctx, st, retention); err != nil {
			log.Printf("ERROR: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
