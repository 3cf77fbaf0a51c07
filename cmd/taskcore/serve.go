package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/advisoros/taskcore/pkg/automation"
	"github.com/advisoros/taskcore/pkg/broker"
	"github.com/advisoros/taskcore/pkg/cmd"
	"github.com/advisoros/taskcore/pkg/events"
	"github.com/advisoros/taskcore/pkg/log"
	"github.com/advisoros/taskcore/pkg/otelhelper"
	"github.com/advisoros/taskcore/pkg/services"
	"github.com/urfave/cli/v3"
)

const defaultPort = 9091

func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Persistence URL (file://dir or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Transport between stores and broker (inline, gochannel, kafka)",
				Value:   cmd.EventBusInline,
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses, used by the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "journal-url",
				Usage:   "Event journal for catch-up (memory or redis://...)",
				Value:   "memory",
				Sources: cli.EnvVars("JOURNAL_URL"),
			},
			&cli.IntFlag{
				Name:    "subscriber-queue-size",
				Usage:   "Events buffered per subscriber before it must resync",
				Value:   broker.DefaultQueueSize,
				Sources: cli.EnvVars("SUBSCRIBER_QUEUE_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "require-approvals",
				Usage:   "Refuse to complete tasks with pending or rejected approvals",
				Sources: cli.EnvVars("REQUIRE_APPROVALS"),
			},
			&cli.StringFlag{
				Name:    "overdue-schedule",
				Usage:   "Cron expression of the overdue re-evaluation pass",
				Value:   automation.DefaultOverdueSchedule,
				Sources: cli.EnvVars("OVERDUE_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.FloatFlag{
				Name:    "otel-sample-ratio",
				Usage:   "Fraction of command traces to sample",
				Value:   1,
				Sources: cli.EnvVars("OTEL_SAMPLE_RATIO"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("taskcore")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing taskcore")

	if command.Bool("otel-enabled") {
		shutdown, err := otelhelper.Setup(ctx, "taskcore", command.Float("otel-sample-ratio"))
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.Background()); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	j, err := cmd.NewJournal(ctx, logger, command.String("journal-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := j.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close journal", "error", err)
		}
	}()

	transport, err := cmd.NewEventBus(command.String("event-bus"), command.StringSlice("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := transport.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	eventBroker := broker.New(log.WithModule("broker"),
		broker.WithQueueSize(command.Int("subscriber-queue-size")),
		broker.WithJournal(j),
	)
	defer eventBroker.Close()

	var sink events.Sink = eventBroker

	if transport.Bus != nil {
		err = transport.Bus.Relay(ctx, eventBroker)
		if err != nil {
			return fmt.Errorf("failed to relay events to the broker: %w", err)
		}

		sink = transport.Bus
	}

	runtime := services.NewRuntime(services.Config{
		Persistence:      persistence,
		Journal:          j,
		Sink:             sink,
		Automation:       automation.NewEngine(logger, cmd.NewDispatcher(transport, logger)),
		Logger:           logger,
		RequireApprovals: command.Bool("require-approvals"),
	})
	defer runtime.Close()

	registry := services.NewRegistry(runtime)
	tasks := services.NewTaskGraph(runtime)
	eventBroker.SetSnapshots(registry)

	scheduler, err := automation.NewScheduler(logger, tasks, command.String("overdue-schedule"))
	if err != nil {
		return err
	}

	err = scheduler.Start(ctx)
	if err != nil {
		return err
	}
	defer scheduler.Stop()

	api := NewAPI(logger, registry, tasks, services.NewCollaboration(runtime), eventBroker)

	return api.Start(ctx, strconv.Itoa(command.Int("port")))
}
