package state

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserTable is the typed accessor for the users table.
type UserTable struct {
	pool *pgxpool.Pool
}

const userColumns = `id, username, email, fs_uid, enabled, priority, auth_source, role_id, quota_id`

func scanUserRow(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FSUid, &u.Enabled, &u.Priority, &u.AuthSource, &u.RoleID, &u.QuotaID)
	return u, err
}

func scanUserRows(rows pgx.Rows) ([]User, error) {
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Get fetches one user by id.
func (t *UserTable) Get(ctx context.Context, id int64) (User, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUserRow(row)
}

// GetByUsername fetches one user by its unique username.
func (t *UserTable) GetByUsername(ctx context.Context, username string) (User, error) {
	row := t.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUserRow(row)
}

// List returns every user, enabled or not, ordered by id.
func (t *UserTable) List(ctx context.Context) ([]User, error) {
	rows, err := t.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return scanUserRows(rows)
}

// Insert creates a new user and returns its assigned id.
func (t *UserTable) Insert(ctx context.Context, u User) (int64, error) {
	var id int64
	err := t.pool.QueryRow(ctx, `
		INSERT INTO users (username, email, fs_uid, enabled, priority, auth_source, role_id, quota_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, u.Username, u.Email, u.FSUid, u.Enabled, u.Priority, u.AuthSource, u.RoleID, u.QuotaID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting user: %w", err)
	}
	return id, nil
}

// Update applies field changes to an existing user.
func (t *UserTable) Update(ctx context.Context, u User) error {
	_, err := t.pool.Exec(ctx, `
		UPDATE users SET email = $2, fs_uid = $3, enabled = $4, priority = $5,
			auth_source = $6, role_id = $7, quota_id = $8
		WHERE id = $1
	`, u.ID, u.Email, u.FSUid, u.Enabled, u.Priority, u.AuthSource, u.RoleID, u.QuotaID)
	if err != nil {
		return fmt.Errorf("updating user %d: %w", u.ID, err)
	}
	return nil
}

// Delete removes a user by id.
func (t *UserTable) Delete(ctx context.Context, id int64) error {
	_, err := t.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user %d: %w", id, err)
	}
	return nil
}
