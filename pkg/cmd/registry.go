// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"log/slog"

	"github.com/dukex/conduit/pkg/registry"
)

func registerNodePlugins(reg *registry.Registry, pluginsPath string) error {
	nodePlugins, err := reg.LoadNodePlugins(pluginsPath)
	if err != nil {
		return err
	}

	for _, plugin := range nodePlugins {
		reg.RegisterNode(plugin)
	}

	return nil
}

// NewRegistry registers the built-in nodes and then the plugins under pluginsPath, which
// may replace built-in node types.
func NewRegistry(ctx context.Context, log *slog.Logger, pluginsPath string, deps registry.Dependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)
	reg.RegisterDefaultNodes(deps)

	if pluginsPath == "" {
		return reg, nil
	}

	err := registerNodePlugins(reg, pluginsPath)
	if err != nil {
		return nil, err
	}

	log.InfoContext(ctx, "Node types registered", "count", len(reg.NodeTypes()))

	return reg, nil
}
