// Package main provides the Conduit API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/services"
	"github.com/dukex/conduit/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

const shutdownTimeout = 10 * time.Second

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	engine      *engine.Engine
	client      *connectors.Client
	resolver    *auth.Resolver
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	engine *engine.Engine,
	client *connectors.Client,
	resolver *auth.Resolver,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		engine:      engine,
		client:      client,
		resolver:    resolver,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	flowService := services.NewFlow(a.persistence, a.engine)
	executionService := services.NewExecution(a.persistence, a.engine, a.logger)
	connectorService := services.NewConnector(a.persistence.ConnectorRepository(), a.client, a.resolver)

	handlers := web.NewAPIHandlers(flowService, executionService, connectorService, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Conduit API")
	})

	handlers.Register(app)

	return app
}

// Start serves the API until ctx is cancelled.
func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		err := app.ShutdownWithTimeout(shutdownTimeout)
		if err != nil {
			a.logger.Error("Failed to shutdown API server", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
