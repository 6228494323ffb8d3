package table

import (
	"context"
	"errors"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

type TableNodeFactory struct {
	repository Repository
}

func NewTableNodeFactory(repository Repository) protocol.NodeFactory {
	return &TableNodeFactory{repository: repository}
}

func (f *TableNodeFactory) Create(ctx context.Context) (protocol.NodeExecutor, error) {
	if f.repository == nil {
		return nil, errors.New("table node requires a table repository")
	}

	return NewTableNode(f.repository), nil
}

func (f *TableNodeFactory) ID() models.NodeType {
	return models.NodeTypeTable
}

func (f *TableNodeFactory) Name() string {
	return "Table"
}

func (f *TableNodeFactory) Description() string {
	return "Reads rows matching a filter from a user table, or writes a row to it"
}

func (f *TableNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type": "string",
				"enum": []string{"read", "write"},
			},
			"tableId": map[string]any{
				"type": "string",
			},
			"filter": map[string]any{
				"type":        "object",
				"description": "Read only. Rows whose data contains every key with an equal value are returned",
			},
			"data": map[string]any{
				"type":        "object",
				"description": "Write only. Row contents; values support {{tokens}}",
			},
		},
		"required": []string{"operation", "tableId"},
	}
}
