package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ServiceTable is the typed accessor for the services table.
type ServiceTable struct {
	pool *pgxpool.Pool
}

const serviceColumns = `id, execution_id, name, unique_name, dns_name, is_essential, is_monitor,
	resource_reservation, environment, volumes, image, command, network,
	backend_id, backend_host, backend_status`

func scanServiceRow(row pgx.Row) (Service, error) {
	var s Service
	var reservationJSON, envJSON, volumesJSON []byte
	err := row.Scan(&s.ID, &s.ExecutionID, &s.Name, &s.UniqueName, &s.DNSName, &s.IsEssential, &s.IsMonitor,
		&reservationJSON, &envJSON, &volumesJSON, &s.Image, &s.Command, &s.Network,
		&s.BackendID, &s.BackendHost, &s.BackendStatus)
	if err != nil {
		return Service{}, err
	}
	if err := json.Unmarshal(reservationJSON, &s.ResourceReservation); err != nil {
		return Service{}, fmt.Errorf("decoding resource_reservation: %w", err)
	}
	if err := json.Unmarshal(envJSON, &s.Environment); err != nil {
		return Service{}, fmt.Errorf("decoding environment: %w", err)
	}
	if err := json.Unmarshal(volumesJSON, &s.Volumes); err != nil {
		return Service{}, fmt.Errorf("decoding volumes: %w", err)
	}
	return s, nil
}

func scanServiceRows(rows pgx.Rows) ([]Service, error) {
	defer rows.Close()
	var out []Service
	for rows.Next() {
		s, err := scanServiceRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Get fetches one service by id.
func (t *ServiceTable) Get(ctx context.Context, id int64) (Service, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	return scanServiceRow(row)
}

// SelectByExecution returns every service belonging to an execution,
// ordered by id.
func (t *ServiceTable) SelectByExecution(ctx context.Context, executionID int64) ([]Service, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+serviceColumns+` FROM services WHERE execution_id = $1 ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("selecting services for execution %d: %w", executionID, err)
	}
	return scanServiceRows(rows)
}

// SelectByBackendHost returns every service the state store believes is
// placed on the given backend node, used by the core-limit adjuster
// (spec §4.6).
func (t *ServiceTable) SelectByBackendHost(ctx context.Context, backendHost string, status BackendStatus) ([]Service, error) {
	rows, err := t.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE backend_host = $1 AND backend_status = $2 ORDER BY id`,
		backendHost, status)
	if err != nil {
		return nil, fmt.Errorf("selecting services on node %s: %w", backendHost, err)
	}
	return scanServiceRows(rows)
}

// Insert creates a new service and returns its assigned id.
func (t *ServiceTable) Insert(ctx context.Context, s Service) (int64, error) {
	reservationJSON, err := json.Marshal(s.ResourceReservation)
	if err != nil {
		return 0, fmt.Errorf("encoding resource_reservation: %w", err)
	}
	envJSON, err := json.Marshal(s.Environment)
	if err != nil {
		return 0, fmt.Errorf("encoding environment: %w", err)
	}
	volumesJSON, err := json.Marshal(s.Volumes)
	if err != nil {
		return 0, fmt.Errorf("encoding volumes: %w", err)
	}

	var id int64
	err = t.pool.QueryRow(ctx, `
		INSERT INTO services (execution_id, name, unique_name, dns_name, is_essential, is_monitor,
			resource_reservation, environment, volumes, image, command, network,
			backend_id, backend_host, backend_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id
	`, s.ExecutionID, s.Name, s.UniqueName, s.DNSName, s.IsEssential, s.IsMonitor,
		reservationJSON, envJSON, volumesJSON, s.Image, s.Command, s.Network,
		s.BackendID, s.BackendHost, s.BackendStatus).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting service: %w", err)
	}
	return id, nil
}

// UpdateBackendStatus is the one mutation monitor threads are allowed to
// perform (spec §8 property 4: the scheduler never downgrades this field).
func (t *ServiceTable) UpdateBackendStatus(ctx context.Context, id int64, status BackendStatus, backendID, backendHost string) error {
	_, err := t.pool.Exec(ctx,
		`UPDATE services SET backend_status = $2, backend_id = $3, backend_host = $4 WHERE id = $1`,
		id, status, backendID, backendHost)
	if err != nil {
		return fmt.Errorf("updating service %d backend status: %w", id, err)
	}
	return nil
}

// Delete removes a service by id.
func (t *ServiceTable) Delete(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting service %d: %w", id, err)
	}
	return nil
}
