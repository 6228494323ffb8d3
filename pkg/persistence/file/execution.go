package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/dukex/conduit/pkg/models"
	"github.com/dukex/conduit/pkg/persistence"
)

const (
	executionsDir = "executions"
	logsDir       = "execution_logs"

	maxLogLine = 16 << 20
)

// ExecutionRepository handles execution records and their JSON-lines logs.
type ExecutionRepository struct {
	store *store
}

func (r *ExecutionRepository) SaveExecution(_ context.Context, execution *models.Execution) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	err := r.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("SaveExecution", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) ExecutionByID(_ context.Context, id string) (*models.Execution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return r.load("ExecutionByID", id)
}

func (r *ExecutionRepository) load(op, id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := r.store.read(executionsDir, id, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError(op, id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError(op, id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// ExecutionsByFlow returns the executions of a flow, most recent first.
func (r *ExecutionRepository) ExecutionsByFlow(_ context.Context, flowID string) ([]*models.Execution, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	ids, err := r.store.ids(executionsDir)
	if err != nil {
		return nil, err
	}

	executions := make([]*models.Execution, 0)

	for _, id := range ids {
		execution, err := r.load("ExecutionsByFlow", id)
		if err != nil {
			return nil, err
		}

		if execution.FlowID == flowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartedAt.After(executions[j].StartedAt)
	})

	return executions, nil
}

func (r *ExecutionRepository) UpdateNodeStatus(_ context.Context, executionID, nodeID string, status models.NodeStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	execution, err := r.load("UpdateNodeStatus", executionID)
	if err != nil {
		return err
	}

	if execution.NodeStatuses == nil {
		execution.NodeStatuses = make(map[string]models.NodeStatus)
	}

	execution.NodeStatuses[nodeID] = status

	err = r.store.write(executionsDir, executionID, execution)
	if err != nil {
		return persistence.NewExecutionError("UpdateNodeStatus", executionID, err)
	}

	return nil
}

// AppendLog appends entry to the log of its execution. Entries without a sequence get
// the next one.
func (r *ExecutionRepository) AppendLog(_ context.Context, entry *models.ExecutionLog) error {
	err := validateID(entry.ExecutionID)
	if err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if entry.Sequence == 0 {
		existing, err := r.readLogs(entry.ExecutionID)
		if err != nil {
			return err
		}

		entry.Sequence = 1
		if len(existing) > 0 {
			entry.Sequence = existing[len(existing)-1].Sequence + 1
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	err = os.MkdirAll(filepath.Join(r.store.root, logsDir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	file, err := os.OpenFile(r.logPath(entry.ExecutionID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	_, err = file.Write(append(data, '\n'))
	closeErr := file.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		return persistence.NewExecutionError("AppendLog", entry.ExecutionID, err)
	}

	return nil
}

func (r *ExecutionRepository) Logs(_ context.Context, executionID string, after int64) ([]*models.ExecutionLog, error) {
	err := validateID(executionID)
	if err != nil {
		return nil, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	entries, err := r.readLogs(executionID)
	if err != nil {
		return nil, err
	}

	logs := make([]*models.ExecutionLog, 0, len(entries))

	for _, entry := range entries {
		if entry.Sequence > after {
			logs = append(logs, entry)
		}
	}

	return logs, nil
}

func (r *ExecutionRepository) logPath(executionID string) string {
	return r.store.path(logsDir, executionID+".jsonl")
}

func (r *ExecutionRepository) readLogs(executionID string) ([]*models.ExecutionLog, error) {
	file, err := os.Open(r.logPath(executionID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, persistence.NewExecutionError("Logs", executionID, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)

	var logs []*models.ExecutionLog

	for scanner.Scan() {
		var entry models.ExecutionLog

		err := json.Unmarshal(scanner.Bytes(), &entry)
		if err != nil {
			return nil, persistence.NewExecutionError("Logs", executionID, err)
		}

		logs = append(logs, &entry)
	}

	err = scanner.Err()
	if err != nil {
		return nil, persistence.NewExecutionError("Logs", executionID, err)
	}

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Sequence < logs[j].Sequence
	})

	return logs, nil
}
