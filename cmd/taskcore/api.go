package main

import (
	"context"
	"log/slog"

	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/advisoros/taskcore/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger   *slog.Logger
	registry *services.Registry
	tasks    *services.TaskGraph
	comments *services.Collaboration
	broker   *broker.Broker
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	registry *services.Registry,
	tasks *services.TaskGraph,
	comments *services.Collaboration,
	eventBroker *broker.Broker,
) *API {
	return &API{
		logger:   logger,
		registry: registry,
		tasks:    tasks,
		comments: comments,
		broker:   eventBroker,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.registry, a.tasks, a.comments, a.broker, a.validate, a.logger)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Taskcore API")
	})

	handlers.Register(app)

	return app
}

// Start serves until ctx is cancelled and then shuts the server down.
func (a *API) Start(ctx context.Context, port string) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		a.logger.Info("Shutting down API server")

		if err := app.Shutdown(); err != nil {
			a.logger.Error("Failed to shut down API server", "error", err)
		}
	}()

	return app.Listen(":" + port)
}
