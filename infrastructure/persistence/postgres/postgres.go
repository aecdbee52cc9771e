// Package postgres stores idea nodes in a PostgreSQL table, one row per
// node, with connection lists held in a TEXT[] column.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/woragis/woragis-sub002/application/ports"
	"github.com/woragis/woragis-sub002/domain/core/entities"
	"github.com/woragis/woragis-sub002/domain/core/valueobjects"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ ports.NodeRepository = (*NodeRepository)(nil)
	_ ports.HealthChecker  = (*NodeRepository)(nil)
)

// NodeRepository implements ports.NodeRepository on PostgreSQL.
type NodeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNodeRepository wraps an open database handle. The schema is expected
// to be migrated already.
func NewNodeRepository(db *sql.DB, logger *zap.Logger) *NodeRepository {
	return &NodeRepository{db: db, logger: logger}
}

// Open connects to the database at databaseURL, configures the pool and
// applies pending migrations.
func Open(databaseURL string, logger *zap.Logger) (*NodeRepository, error) {
	db, err := OpenDB(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewNodeRepository(db, logger), nil
}

// OpenDB opens and pings a connection pool without touching the schema.
func OpenDB(databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies every pending up migration.
func Migrate(db *sql.DB) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// MigrateDown rolls back the given number of migrations.
func MigrateDown(db *sql.DB, steps int) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back migrations: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version. A database with no
// migrations applied reports version 0.
func MigrationVersion(db *sql.DB) (uint, bool, error) {
	m, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// Close closes the underlying database connection.
func (r *NodeRepository) Close() error {
	return r.db.Close()
}

// RunInTransaction runs fn inside a database transaction. The transaction
// is rolled back when fn returns an error.
func (r *NodeRepository) RunInTransaction(ctx context.Context, fn func(tx executor) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.NewDatabaseError("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.NewDatabaseError("commit transaction", err)
	}
	return nil
}

func (r *NodeRepository) Save(ctx context.Context, node *entities.IdeaNode) error {
	if err := querySaveNode(ctx, r.db, node); err != nil {
		return err
	}
	node.MarkPersisted()
	return nil
}

func (r *NodeRepository) GetByID(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID) (*entities.IdeaNode, error) {
	return queryGetNode(ctx, r.db, ideaID.String(), id.String(), false)
}

func (r *NodeRepository) ListByIdea(ctx context.Context, ideaID valueobjects.IdeaID) ([]*entities.IdeaNode, error) {
	return queryListNodes(ctx, r.db, ideaID.String())
}

func (r *NodeRepository) CountByIdea(ctx context.Context, ideaID valueobjects.IdeaID) (int, error) {
	return queryCountNodes(ctx, r.db, ideaID.String())
}

// Delete removes the node. A non-zero expectedVersion is checked under a
// row lock in the same transaction as the delete.
func (r *NodeRepository) Delete(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) error {
	if expectedVersion == 0 {
		return queryDeleteNode(ctx, r.db, ideaID.String(), id.String())
	}
	return r.RunInTransaction(ctx, func(tx executor) error {
		if err := queryLockExpected(ctx, tx, ideaID.String(), id.String(), expectedVersion); err != nil {
			return err
		}
		return queryDeleteNode(ctx, tx, ideaID.String(), id.String())
	})
}

// DeleteAndScrub locks the target and every sibling that references it,
// rewrites the siblings and deletes the target in one transaction.
func (r *NodeRepository) DeleteAndScrub(ctx context.Context, ideaID valueobjects.IdeaID, id valueobjects.NodeID, expectedVersion int) ([]*entities.IdeaNode, error) {
	var scrubbed []*entities.IdeaNode
	err := r.RunInTransaction(ctx, func(tx executor) error {
		if err := queryLockExpected(ctx, tx, ideaID.String(), id.String(), expectedVersion); err != nil {
			return err
		}

		referencing, err := queryReferencingNodes(ctx, tx, ideaID.String(), id.String())
		if err != nil {
			return err
		}

		scrubbed = make([]*entities.IdeaNode, 0, len(referencing))
		for _, sibling := range referencing {
			if !sibling.RemoveConnectionsTo(id) {
				continue
			}
			if err := querySaveNode(ctx, tx, sibling); err != nil {
				return err
			}
			scrubbed = append(scrubbed, sibling)
		}

		return queryDeleteNode(ctx, tx, ideaID.String(), id.String())
	})
	if err != nil {
		return nil, err
	}

	for _, sibling := range scrubbed {
		sibling.MarkPersisted()
	}
	r.logger.Debug("Deleted node with scrub",
		zap.String("idea_id", ideaID.String()),
		zap.String("node_id", id.String()),
		zap.Int("scrubbed", len(scrubbed)),
	)
	return scrubbed, nil
}

// Ping checks the database connection.
func (r *NodeRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return pkgerrors.NewUnavailableError("postgres").WithCause(err)
	}
	return nil
}
