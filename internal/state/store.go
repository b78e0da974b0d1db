package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AtosCodex/zoe/internal/platform"
	"github.com/AtosCodex/zoe/internal/zoeerrors"
)

// SchemaVersion is the schema version this binary expects to find recorded
// in public.versions for its deployment. Bump whenever migrations change
// the tables this package reads/writes.
const SchemaVersion = 1

// Store is the persistent, transactional record of users, roles, quotas,
// executions, services, and ports for one Zoe deployment. It owns a pgx
// pool whose every connection has its search_path pinned to the
// deployment's schema (spec §4.1).
type Store struct {
	pool           *pgxpool.Pool
	databaseURL    string
	deploymentName string
	schemaName     string
	migrationsDir  string
	logger         *slog.Logger
}

// SchemaName returns the Postgres schema a deployment's tables live in.
func SchemaName(deploymentName string) string {
	return "zoe_" + deploymentName
}

// Open creates a Store backed by a fresh pgx pool whose search_path is
// pinned to the deployment's schema.
func Open(ctx context.Context, databaseURL, deploymentName, migrationsDir string, logger *slog.Logger) (*Store, error) {
	schema := SchemaName(deploymentName)

	// search_path is sent as a connection startup parameter, so every
	// connection the pool opens is pinned to the deployment's schema.
	sep := "?"
	if strings.Contains(databaseURL, "?") {
		sep = "&"
	}
	pool, err := platform.NewPostgresPool(ctx, fmt.Sprintf("%s%ssearch_path=%s,public", databaseURL, sep, schema))
	if err != nil {
		return nil, err
	}

	return &Store{
		pool:           pool,
		databaseURL:    databaseURL,
		deploymentName: deploymentName,
		schemaName:     schema,
		migrationsDir:  migrationsDir,
		logger:         logger,
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the raw pool for components (like LISTEN/NOTIFY users) that
// need it directly; prefer the typed accessors below wherever possible.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Init gates startup on the deployment's schema version (spec §4.1, §8
// property 6). On a fresh database it creates the schema, runs migrations,
// and records SchemaVersion. On an existing database it compares the
// recorded version against SchemaVersion and refuses to start on mismatch.
// If force is true, the schema is dropped and recreated from scratch.
func (s *Store) Init(ctx context.Context, force bool) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS public.versions (
			deployment TEXT PRIMARY KEY,
			version    INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating public.versions: %w", err)
	}

	if force {
		if _, err := s.pool.Exec(ctx, `DELETE FROM public.versions WHERE deployment = $1`, s.deploymentName); err != nil {
			return fmt.Errorf("clearing version row: %w", err)
		}
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", s.schemaName)); err != nil {
			return fmt.Errorf("dropping schema: %w", err)
		}
	}

	var found int
	err := s.pool.QueryRow(ctx, `SELECT version FROM public.versions WHERE deployment = $1`, s.deploymentName).Scan(&found)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// fresh deployment: fall through and provision it below.
	case err != nil:
		return fmt.Errorf("reading schema version: %w", err)
	default:
		if found != SchemaVersion {
			return &zoeerrors.SchemaMismatch{Want: SchemaVersion, Found: found}
		}
		return nil
	}

	if _, err := s.pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", s.schemaName)); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	if err := platform.RunDeploymentMigrations(s.migrationsURL(), s.migrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO public.versions (deployment, version) VALUES ($1, $2)
		 ON CONFLICT (deployment) DO UPDATE SET version = EXCLUDED.version`,
		s.deploymentName, SchemaVersion,
	); err != nil {
		return fmt.Errorf("recording schema version: %w", err)
	}

	return nil
}

// migrationsURL builds the DSN golang-migrate needs, pinning its session to
// the deployment's schema the same way Open pins every pool connection
// (teacher pattern: pkg/tenant/provisioner.go's withSearchPath).
func (s *Store) migrationsURL() string {
	sep := "?"
	if strings.Contains(s.databaseURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%ssearch_path=%s,public", s.databaseURL, sep, s.schemaName)
}

// Users returns the typed accessor for the users table.
func (s *Store) Users() *UserTable { return &UserTable{pool: s.pool} }

// Roles returns the typed accessor for the roles table.
func (s *Store) Roles() *RoleTable { return &RoleTable{pool: s.pool} }

// Quotas returns the typed accessor for the quotas table.
func (s *Store) Quotas() *QuotaTable { return &QuotaTable{pool: s.pool} }

// Executions returns the typed accessor for the executions table.
func (s *Store) Executions() *ExecutionTable { return &ExecutionTable{pool: s.pool} }

// Services returns the typed accessor for the services table.
func (s *Store) Services() *ServiceTable { return &ServiceTable{pool: s.pool} }

// Ports returns the typed accessor for the ports table.
func (s *Store) Ports() *PortTable { return &PortTable{pool: s.pool} }
