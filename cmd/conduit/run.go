package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dukex/conduit/pkg/auth"
	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/config"
	"github.com/dukex/conduit/pkg/connectors"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/dukex/conduit/pkg/sink"
	"github.com/urfave/cli/v3"
)

var (
	ErrExecutionFailed = errors.New("execution failed")
	ErrStreamClosed    = errors.New("event stream closed before the execution finished")
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a flow file and stream its events to stdout",
		ArgsUsage: "<flow.json|flow.yaml>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Usage:   "Execution input as a JSON object, or @file.json",
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Store for executions, connectors and tables (file path or postgres://)",
				Value:   "./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Event output format (text, json)",
				Value:   "text",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Maximum duration of the execution, 0 for none",
				Value: 0,
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("cli").With("action", "run")

			flow, err := config.LoadFlowFile(command.Args().First())
			if err != nil {
				return err
			}

			input, err := parseInput(command.String("input"))
			if err != nil {
				return err
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

			connectorRepo := persistence.ConnectorRepository()
			resolver := auth.NewResolver(auth.WithStore(connectorRepo), auth.WithLogger(logger))

			reg, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"), registry.Dependencies{
				Connectors: connectors.NewClient(nil, resolver, connectorRepo, logger),
				Tables:     persistence.TableRepository(),
			})
			if err != nil {
				return fmt.Errorf("failed to load node plugins: %w", err)
			}

			pub, sub, err := cmd.NewEventChannel("memory", "", logger)
			if err != nil {
				return err
			}

			events := sink.NewEventSink(persistence.ExecutionRepository(), pub, sub, logger)
			defer func() {
				if err := events.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			eng := engine.New(reg, events,
				engine.WithLogger(logger),
				engine.WithExecutionTimeout(command.Duration("timeout")),
			)

			printer, err := newPrinter(command.String("output"), command.Root().Writer)
			if err != nil {
				return err
			}

			result, err := runFlow(ctx, eng, events, flow, input, printer)
			if err != nil {
				return err
			}

			if result.Status != models.ExecutionStatusSuccess {
				return fmt.Errorf("%w: %s", ErrExecutionFailed, result.Error)
			}

			return nil
		},
	}
}

// runFlow executes flow synchronously and hands every event of the execution to emit,
// returning once the final status has been printed.
func runFlow(
	ctx context.Context,
	eng *engine.Engine,
	events *sink.EventSink,
	flow *models.Flow,
	input map[string]any,
	emit func(sink.Event) error,
) (*models.ExecutionResult, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := events.Subscribe(streamCtx, "")
	if err != nil {
		return nil, err
	}

	done := make(chan error, 1)

	go func() {
		var printErr error

		for event := range stream {
			if printErr == nil {
				printErr = emit(event)
			}

			if event.Terminal() {
				done <- printErr

				return
			}
		}

		done <- ErrStreamClosed
	}()

	result, err := eng.Execute(ctx, flow, input)
	if err != nil {
		return nil, err
	}

	select {
	case err := <-done:
		if err != nil {
			return result, err
		}
	case <-ctx.Done():
		return result, ctx.Err()
	}

	return result, nil
}

func newPrinter(format string, w io.Writer) (func(sink.Event) error, error) {
	switch format {
	case "json":
		encoder := json.NewEncoder(w)

		return func(event sink.Event) error {
			return encoder.Encode(event)
		}, nil
	case "text":
		return func(event sink.Event) error {
			return printText(w, event)
		}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

func printText(w io.Writer, event sink.Event) error {
	var err error

	switch event.Type {
	case sink.EventLog:
		entry := event.Log

		node := entry.NodeID
		if node == "" {
			node = "-"
		}

		_, err = fmt.Fprintf(w, "%4d %s %-7s %-12s %s\n",
			entry.Sequence, entry.Timestamp.Format(time.TimeOnly), entry.Level, node, entry.Message)
	case sink.EventNodeStatus:
		_, err = fmt.Fprintf(w, "     node %s is %s\n", event.NodeID, event.NodeStatus)
	case sink.EventStatus:
		execution := event.Execution

		_, err = fmt.Fprintf(w, "execution %s %s", execution.ID, execution.Status)
		if err == nil && execution.Status != models.ExecutionStatusRunning {
			_, err = fmt.Fprintf(w, " in %dms", execution.DurationMs)
			if err == nil && execution.Error != "" {
				_, err = fmt.Fprintf(w, ": %s", execution.Error)
			}
		}

		if err == nil {
			_, err = fmt.Fprintln(w)
		}
	}

	return err
}
