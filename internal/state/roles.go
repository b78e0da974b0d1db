package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleTable is the typed accessor for the roles table.
type RoleTable struct {
	pool *pgxpool.Pool
}

const roleColumns = `id, name, can_see_status, can_change_config, can_operate_others,
	can_delete_executions, can_access_api, can_customize_resources, can_access_full_zapp_shop`

func scanRoleRow(row pgx.Row) (Role, error) {
	var r Role
	err := row.Scan(&r.ID, &r.Name, &r.CanSeeStatus, &r.CanChangeConfig, &r.CanOperateOthers,
		&r.CanDeleteExecutions, &r.CanAccessAPI, &r.CanCustomizeResources, &r.CanAccessFullZAppShop)
	return r, err
}

// Get fetches one role by id.
func (t *RoleTable) Get(ctx context.Context, id int64) (Role, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id)
	return scanRoleRow(row)
}

// List returns every role, ordered by id.
func (t *RoleTable) List(ctx context.Context) ([]Role, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		r, err := scanRoleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert creates a new role and returns its assigned id.
func (t *RoleTable) Insert(ctx context.Context, r Role) (int64, error) {
	var id int64
	err := t.pool.QueryRow(ctx, `
		INSERT INTO roles (name, can_see_status, can_change_config, can_operate_others,
			can_delete_executions, can_access_api, can_customize_resources, can_access_full_zapp_shop)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, r.Name, r.CanSeeStatus, r.CanChangeConfig, r.CanOperateOthers,
		r.CanDeleteExecutions, r.CanAccessAPI, r.CanCustomizeResources, r.CanAccessFullZAppShop).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting role: %w", err)
	}
	return id, nil
}

// Delete removes a role by id.
func (t *RoleTable) Delete(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting role %d: %w", id, err)
	}
	return nil
}
