package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

var ErrNodeTypeNotRegistered = errors.New("node type not registered")

type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	factories map[models.NodeType]protocol.NodeFactory
	executors map[models.NodeType]protocol.NodeExecutor
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[models.NodeType]protocol.NodeFactory),
		executors: make(map[models.NodeType]protocol.NodeExecutor),
	}
}

// LoadNodePlugins loads node factories exported as the "Node" symbol from .so files
// under pluginsPath/nodes.
func (r *Registry) LoadNodePlugins(pluginsPath string) ([]protocol.NodeFactory, error) {
	return loadPlugin[protocol.NodeFactory](r.logger, pluginsPath, "Node")
}

// RegisterNode adds a factory, replacing any factory for the same node type.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[factory.ID()] = factory
	delete(r.executors, factory.ID())
}

// IsRegistered reports whether a factory exists for nodeType.
func (r *Registry) IsRegistered(nodeType models.NodeType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.factories[nodeType]

	return ok
}

// Executor returns the executor for nodeType, creating it on first use.
func (r *Registry) Executor(ctx context.Context, nodeType models.NodeType) (protocol.NodeExecutor, error) {
	r.mu.RLock()
	executor, ok := r.executors[nodeType]
	r.mu.RUnlock()

	if ok {
		return executor, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if executor, ok := r.executors[nodeType]; ok {
		return executor, nil
	}

	factory, ok := r.factories[nodeType]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNodeTypeNotRegistered, nodeType)
	}

	executor, err := factory.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create executor for '%s': %w", nodeType, err)
	}

	r.executors[nodeType] = executor

	return executor, nil
}

// GetAvailableNodes returns all registered factories ordered by node type.
func (r *Registry) GetAvailableNodes() []protocol.NodeFactory {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factories := make([]protocol.NodeFactory, 0, len(r.factories))
	for _, factory := range r.factories {
		factories = append(factories, factory)
	}

	sort.Slice(factories, func(i, j int) bool {
		return factories[i].ID() < factories[j].ID()
	})

	return factories
}

// NodeTypes returns the catalogue of registered node types.
func (r *Registry) NodeTypes() []models.NodeTypeInfo {
	factories := r.GetAvailableNodes()

	infos := make([]models.NodeTypeInfo, 0, len(factories))
	for _, factory := range factories {
		infos = append(infos, models.NodeTypeInfo{
			Type:        factory.ID(),
			Name:        factory.Name(),
			Description: factory.Description(),
			Schema:      factory.Schema(),
		})
	}

	return infos
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := pluginsPath + "/" + strings.ToLower(symbolName) + "s"
	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", pluginsPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(rootPath + "/" + p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s has no %s symbol: %w", p, symbolName, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: %s symbol has type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded node plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
