package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
	"github.com/google/uuid"
)

const executionColumns = `
	id
  , flow_id
  , owner
  , status
  , started_at
  , finished_at
  , duration_ms
  , input
  , output
  , node_statuses
  , error
`

// ExecutionRepository handles execution records and logs.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

func (r *ExecutionRepository) SaveExecution(ctx context.Context, execution *models.Execution) error {
	inputJSON, err := json.Marshal(execution.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}

	outputJSON, err := json.Marshal(execution.Output)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}

	statuses := execution.NodeStatuses
	if statuses == nil {
		statuses = map[string]models.NodeStatus{}
	}

	statusesJSON, err := json.Marshal(statuses)
	if err != nil {
		return fmt.Errorf("failed to marshal node statuses: %w", err)
	}

	query := `
		INSERT INTO executions (id, flow_id, owner, status, started_at, finished_at,
			duration_ms, input, output, node_statuses, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			duration_ms = EXCLUDED.duration_ms,
			output = EXCLUDED.output,
			node_statuses = executions.node_statuses || EXCLUDED.node_statuses,
			error = EXCLUDED.error
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID,
		execution.FlowID,
		execution.Owner,
		execution.Status,
		execution.StartedAt,
		execution.FinishedAt,
		execution.DurationMs,
		nullableJSON(inputJSON),
		nullableJSON(outputJSON),
		string(statusesJSON),
		execution.Error,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("ExecutionByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("ExecutionByID", id, err)
	}

	return execution, nil
}

// ExecutionsByFlow returns the executions of a flow, most recent first.
func (r *ExecutionRepository) ExecutionsByFlow(ctx context.Context, flowID string) ([]*models.Execution, error) {
	query := `SELECT ` + executionColumns + `
		FROM executions
		WHERE flow_id = $1
		ORDER BY started_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error {
	query := `
		UPDATE executions
		SET node_statuses = node_statuses || jsonb_build_object($2::text, $3::text)
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, executionID, nodeID, string(status))
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// AppendLog stores entry. Entries without a sequence get the next one of their execution.
func (r *ExecutionRepository) AppendLog(ctx context.Context, entry *models.ExecutionLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	dataJSON, err := json.Marshal(entry.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal log data: %w", err)
	}

	query := `
		INSERT INTO execution_logs (id, execution_id, node_id, sequence, logged_at, level, message, data)
		VALUES (
			$1, $2, $3,
			CASE WHEN $4::bigint > 0 THEN $4::bigint
				ELSE (SELECT COALESCE(MAX(sequence), 0) + 1 FROM execution_logs WHERE execution_id = $2)
			END,
			$5, $6, $7, $8
		)
		RETURNING sequence
	`

	err = r.db.QueryRowContext(ctx, query,
		entry.ID,
		entry.ExecutionID,
		entry.NodeID,
		entry.Sequence,
		entry.Timestamp,
		string(entry.Level),
		entry.Message,
		nullableJSON(dataJSON),
	).Scan(&entry.Sequence)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) Logs(ctx context.Context, executionID string, after int64) ([]*models.ExecutionLog, error) {
	query := `
		SELECT id, execution_id, node_id, sequence, logged_at, level, message, data
		FROM execution_logs
		WHERE execution_id = $1 AND sequence > $2
		ORDER BY sequence
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, after)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution logs: %w", err)
	}
	defer closeRows(ctx, r.logger, rows)

	logs := make([]*models.ExecutionLog, 0)

	for rows.Next() {
		var (
			entry    models.ExecutionLog
			dataJSON []byte
		)

		err := rows.Scan(
			&entry.ID,
			&entry.ExecutionID,
			&entry.NodeID,
			&entry.Sequence,
			&entry.Timestamp,
			&entry.Level,
			&entry.Message,
			&dataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution log: %w", err)
		}

		if len(dataJSON) > 0 {
			err = json.Unmarshal(dataJSON, &entry.Data)
			if err != nil {
				return nil, fmt.Errorf("failed to unmarshal log data: %w", err)
			}
		}

		logs = append(logs, &entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating execution logs: %w", err)
	}

	return logs, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution                          models.Execution
		finishedAt                         sql.NullTime
		inputJSON, outputJSON, statusesRaw []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.FlowID,
		&execution.Owner,
		&execution.Status,
		&execution.StartedAt,
		&finishedAt,
		&execution.DurationMs,
		&inputJSON,
		&outputJSON,
		&statusesRaw,
		&execution.Error,
	)
	if err != nil {
		return nil, err
	}

	if finishedAt.Valid {
		execution.FinishedAt = &finishedAt.Time
	}

	for _, field := range []struct {
		data   []byte
		target any
		name   string
	}{
		{inputJSON, &execution.Input, "input"},
		{outputJSON, &execution.Output, "output"},
		{statusesRaw, &execution.NodeStatuses, "node statuses"},
	} {
		if len(field.data) == 0 {
			continue
		}

		err = json.Unmarshal(field.data, field.target)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", field.name, err)
		}
	}

	return &execution, nil
}
