package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/otelhelper"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/sink"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "conduit-api",
		Usage:                 "Create flows, run them and manage connectors over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL for persistence (file path, file:// or postgres://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus for execution events (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL used to lock token refreshes across instances",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "token-refresh-schedule",
				Usage:   "Cron schedule of the background OAuth2 token refresh",
				Value:   "*/5 * * * *",
				Sources: cli.EnvVars("TOKEN_REFRESH_SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "execution-timeout",
				Usage:   "Maximum duration of an execution, 0 for none",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("EXECUTION_TIMEOUT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:     "plugins-path",
				Usage:    "Path to the directory containing node plugins",
				Value:    "./plugins",
				Required: false,
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
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "Initializing Conduit API")

	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithExecutionTimeout(command.Duration("execution-timeout")),
	}

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "conduit-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()

		engineOpts = append(engineOpts, engine.WithTracer(tracer))
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

	resolverOpts, closeLocker, err := cmd.NewResolverOptions(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeLocker(); err != nil {
			logger.ErrorContext(ctx, "Failed to close token refresh locker", "error", err)
		}
	}()

	connectorRepo := persistence.ConnectorRepository()
	resolver := auth.NewResolver(append(resolverOpts, auth.WithStore(connectorRepo), auth.WithLogger(logger))...)
	client := connectors.NewClient(nil, resolver, connectorRepo, logger)

	reg, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"), registry.Dependencies{
		Connectors: client,
		Tables:     persistence.TableRepository(),
	})
	if err != nil {
		return fmt.Errorf("failed to load node plugins: %w", err)
	}

	pub, sub, err := cmd.NewEventChannel(command.String("event-bus"), command.String("kafka-brokers"), logger)
	if err != nil {
		return err
	}

	eventSink := sink.NewEventSink(persistence.ExecutionRepository(), pub, sub, logger)
	defer func() {
		if err := eventSink.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	refresher, err := auth.NewRefresher(resolver, connectorRepo, command.String("token-refresh-schedule"), logger)
	if err != nil {
		return err
	}

	err = refresher.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start token refresher: %w", err)
	}
	defer refresher.Stop()

	api := NewAPI(
		logger,
		persistence,
		reg,
		engine.New(reg, eventSink, engineOpts...),
		client,
		resolver,
	)

	logger.InfoContext(ctx, "Starting API server", "port", command.Int("port"), "event_bus", command.String("event-bus"))

	return api.Start(ctx, command.Int("port"))
}
