package state

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecutionTable is the typed accessor for the executions table.
type ExecutionTable struct {
	pool *pgxpool.Pool
}

const executionColumns = `id, name, owner_id, description, status, priority, size,
	services_count, running_services_count, time_submit, time_start, time_finish`

func scanExecutionRow(row pgx.Row) (Execution, error) {
	var e Execution
	err := row.Scan(&e.ID, &e.Name, &e.OwnerID, &e.Description, &e.Status, &e.Priority, &e.Size,
		&e.ServicesCount, &e.RunningServicesCount, &e.TimeSubmit, &e.TimeStart, &e.TimeFinish)
	return e, err
}

func scanExecutionRows(rows pgx.Rows) ([]Execution, error) {
	defer rows.Close()
	var out []Execution
	for rows.Next() {
		e, err := scanExecutionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get fetches one execution by id.
func (t *ExecutionTable) Get(ctx context.Context, id int64) (Execution, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM executions WHERE id = $1`, id)
	return scanExecutionRow(row)
}

// SelectByStatus returns every execution with the given status, ordered by
// submission time. Used at scheduler startup to reseed the pending/running
// queues from whatever was in flight before a restart.
func (t *ExecutionTable) SelectByStatus(ctx context.Context, status ExecutionStatus) ([]Execution, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM executions WHERE status = $1 ORDER BY time_submit`, status)
	if err != nil {
		return nil, fmt.Errorf("selecting executions by status %s: %w", status, err)
	}
	return scanExecutionRows(rows)
}

// Insert creates a new execution and returns its assigned id.
func (t *ExecutionTable) Insert(ctx context.Context, e Execution) (int64, error) {
	var id int64
	err := t.pool.QueryRow(ctx, `
		INSERT INTO executions (name, owner_id, description, status, priority, size,
			services_count, running_services_count, time_submit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, e.Name, e.OwnerID, e.Description, e.Status, e.Priority, e.Size,
		e.ServicesCount, e.RunningServicesCount, e.TimeSubmit).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting execution: %w", err)
	}
	return id, nil
}

// UpdateStatus sets an execution's status, stamping time_start/time_finish
// as the status transitions into/out of the running family (spec §4.6 FSM).
func (t *ExecutionTable) UpdateStatus(ctx context.Context, id int64, status ExecutionStatus) error {
	var setStart, setFinish bool
	switch status {
	case ExecutionRunning:
		setStart = true
	case ExecutionTerminated, ExecutionError, ExecutionFinished:
		setFinish = true
	}

	now := time.Now()
	var err error
	switch {
	case setStart:
		_, err = t.pool.Exec(ctx, `UPDATE executions SET status = $2, time_start = $3 WHERE id = $1`, id, status, now)
	case setFinish:
		_, err = t.pool.Exec(ctx, `UPDATE executions SET status = $2, time_finish = $3 WHERE id = $1`, id, status, now)
	default:
		_, err = t.pool.Exec(ctx, `UPDATE executions SET status = $2 WHERE id = $1`, id, status)
	}
	if err != nil {
		return fmt.Errorf("updating execution %d status: %w", id, err)
	}
	return nil
}

// UpdateSize persists a refreshed size value (spec §4.6 "Progress accounting").
func (t *ExecutionTable) UpdateSize(ctx context.Context, id int64, size float64) error {
	_, err := t.pool.Exec(ctx, `UPDATE executions SET size = $2 WHERE id = $1`, id, size)
	if err != nil {
		return fmt.Errorf("updating execution %d size: %w", id, err)
	}
	return nil
}

// UpdateRunningServicesCount persists how many of an execution's services
// are currently in the started backend state.
func (t *ExecutionTable) UpdateRunningServicesCount(ctx context.Context, id int64, count int) error {
	_, err := t.pool.Exec(ctx, `UPDATE executions SET running_services_count = $2 WHERE id = $1`, id, count)
	if err != nil {
		return fmt.Errorf("updating execution %d running count: %w", id, err)
	}
	return nil
}

// Delete removes an execution by id. Callers are expected to have already
// torn down its services and ports (ownership, spec §3).
func (t *ExecutionTable) Delete(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM executions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting execution %d: %w", id, err)
	}
	return nil
}
