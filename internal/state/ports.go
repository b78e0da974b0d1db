package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PortTable is the typed accessor for the ports table.
type PortTable struct {
	pool *pgxpool.Pool
}

const portColumns = `id, service_id, internal_number, protocol, external_number, name, is_main_endpoint`

func scanPortRow(row pgx.Row) (int64, Port, error) {
	var id, serviceID int64
	var p Port
	err := row.Scan(&id, &serviceID, &p.InternalNumber, &p.Protocol, &p.ExternalNumber, &p.Name, &p.IsMainEndpoint)
	return id, p, err
}

// SelectByService returns every port belonging to a service, ordered by id.
func (t *PortTable) SelectByService(ctx context.Context, serviceID int64) ([]Port, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+portColumns+` FROM ports WHERE service_id = $1 ORDER BY id`, serviceID)
	if err != nil {
		return nil, fmt.Errorf("selecting ports for service %d: %w", serviceID, err)
	}
	defer rows.Close()

	var out []Port
	for rows.Next() {
		_, p, err := scanPortRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Insert creates a new port for a service.
func (t *PortTable) Insert(ctx context.Context, serviceID int64, p Port) (int64, error) {
	var id int64
	err := t.pool.QueryRow(ctx, `
		INSERT INTO ports (service_id, internal_number, protocol, external_number, name, is_main_endpoint)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, serviceID, p.InternalNumber, p.Protocol, p.ExternalNumber, p.Name, p.IsMainEndpoint).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting port: %w", err)
	}
	return id, nil
}

// UpdateExternalNumber records the external mapping discovered after spawn.
func (t *PortTable) UpdateExternalNumber(ctx context.Context, id int64, externalNumber int) error {
	_, err := t.pool.Exec(ctx, `UPDATE ports SET external_number = $2 WHERE id = $1`, id, externalNumber)
	if err != nil {
		return fmt.Errorf("updating port %d external number: %w", id, err)
	}
	return nil
}

// DeleteByService removes every port belonging to a service.
func (t *PortTable) DeleteByService(ctx context.Context, serviceID int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM ports WHERE service_id = $1`, serviceID)
	if err != nil {
		return fmt.Errorf("deleting ports for service %d: %w", serviceID, err)
	}
	return nil
}
