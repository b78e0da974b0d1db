package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// QuotaTable is the typed accessor for the quotas table.
type QuotaTable struct {
	pool *pgxpool.Pool
}

const quotaColumns = `id, name, concurrent_executions, cores, memory_bytes, runtime_limit_hours`

func scanQuotaRow(row pgx.Row) (Quota, error) {
	var q Quota
	err := row.Scan(&q.ID, &q.Name, &q.ConcurrentExecutions, &q.Cores, &q.MemoryBytes, &q.RuntimeLimitHours)
	return q, err
}

// Get fetches one quota by id.
func (t *QuotaTable) Get(ctx context.Context, id int64) (Quota, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+quotaColumns+` FROM quotas WHERE id = $1`, id)
	return scanQuotaRow(row)
}

// List returns every quota, ordered by id.
func (t *QuotaTable) List(ctx context.Context) ([]Quota, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+quotaColumns+` FROM quotas ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing quotas: %w", err)
	}
	defer rows.Close()

	var out []Quota
	for rows.Next() {
		q, err := scanQuotaRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Insert creates a new quota and returns its assigned id.
func (t *QuotaTable) Insert(ctx context.Context, q Quota) (int64, error) {
	var id int64
	err := t.pool.QueryRow(ctx, `
		INSERT INTO quotas (name, concurrent_executions, cores, memory_bytes, runtime_limit_hours)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, q.Name, q.ConcurrentExecutions, q.Cores, q.MemoryBytes, q.RuntimeLimitHours).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting quota: %w", err)
	}
	return id, nil
}

// Delete removes a quota by id.
func (t *QuotaTable) Delete(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM quotas WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting quota %d: %w", id, err)
	}
	return nil
}
