package main

import (
	"context"
	"fmt"

	"github.com/dukex/conduit/pkg/cmd"
	"github.com/dukex/conduit/pkg/config"
	"github.com/dukex/conduit/pkg/engine"
	"github.com/dukex/conduit/pkg/log"
	"github.com/dukex/conduit/pkg/registry"
	"github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Check that a flow file forms a runnable graph",
		ArgsUsage: "<flow.json|flow.yaml>",
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			logger := log.WithModule("cli").With("action", "validate")

			flow, err := config.LoadFlowFile(command.Args().First())
			if err != nil {
				return err
			}

			reg, err := cmd.NewRegistry(ctx, logger, command.String("plugins-path"), registry.Dependencies{})
			if err != nil {
				return fmt.Errorf("failed to load node plugins: %w", err)
			}

			err = engine.New(reg, nil, engine.WithLogger(logger)).Validate(flow)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "%s: %d nodes, %d edges, ok\n", flow.Name, len(flow.Nodes), len(flow.Edges))

			return err
		},
	}
}
