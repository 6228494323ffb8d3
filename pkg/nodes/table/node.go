// Package table provides the table node executor, which reads and writes rows of user
// tables.
package table

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/protocol"
)

// Repository stores table rows.
type Repository interface {
	ReadRows(ctx context.Context, tableID string, filter map[string]any) ([]*models.Row, error)
	WriteRow(ctx context.Context, row *models.Row) (*models.Row, error)
}

type TableNode struct {
	repository Repository
}

func NewTableNode(repository Repository) *TableNode {
	return &TableNode{repository: repository}
}

func (n *TableNode) Type() models.NodeType {
	return models.NodeTypeTable
}

// Execute reads rows matching the filter or writes one row. Storage failures are TableError.
func (n *TableNode) Execute(ctx context.Context, cfg models.NodeConfig, nctx *protocol.NodeContext) (*protocol.Result, error) {
	config, ok := cfg.(*models.TableConfig)
	if !ok {
		return nil, protocol.Errorf(protocol.KindConfig, "expected table config, got %T", cfg)
	}

	switch config.Operation {
	case models.TableOperationRead:
		rows, err := n.repository.ReadRows(ctx, config.TableID, config.Filter)
		if err != nil {
			return nil, protocol.NewError(protocol.KindTable, fmt.Errorf("read %s: %w", config.TableID, err))
		}

		output, err := toJSONValue(rows)
		if err != nil {
			return nil, protocol.NewError(protocol.KindTable, err)
		}

		if output == nil {
			output = []any{}
		}

		result := &protocol.Result{Output: output}
		result.Log(models.LogLevelInfo, fmt.Sprintf("Read %d rows from %s", len(rows), config.TableID), nil)

		return result, nil

	case models.TableOperationWrite:
		row, err := n.repository.WriteRow(ctx, &models.Row{TableID: config.TableID, Data: config.Data})
		if err != nil {
			return nil, protocol.NewError(protocol.KindTable, fmt.Errorf("write %s: %w", config.TableID, err))
		}

		output, err := toJSONValue(row)
		if err != nil {
			return nil, protocol.NewError(protocol.KindTable, err)
		}

		return &protocol.Result{Output: output}, nil

	default:
		return nil, protocol.Errorf(protocol.KindConfig, "unsupported table operation %q", config.Operation)
	}
}

func toJSONValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var out any

	err = json.Unmarshal(data, &out)

	return out, err
}
