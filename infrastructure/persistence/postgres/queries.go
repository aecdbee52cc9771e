package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/woragis/woragis-sub002/domain/core/entities"
	pkgerrors "github.com/woragis/woragis-sub002/pkg/errors"
)

// nodeColumns is the column list used for SELECT statements on idea_nodes.
const nodeColumns = `id, idea_id, title, content, type, position_x, position_y,
	width, height, color, connections, visible, version, created_at, updated_at`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

func scanNode(row scannable) (*entities.IdeaNode, error) {
	var (
		s           entities.NodeSnapshot
		color       sql.NullString
		connections pq.StringArray
	)
	err := row.Scan(
		&s.ID,
		&s.IdeaID,
		&s.Title,
		&s.Content,
		&s.Type,
		&s.PositionX,
		&s.PositionY,
		&s.Width,
		&s.Height,
		&color,
		&connections,
		&s.Visible,
		&s.Version,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if color.Valid {
		s.Color = &color.String
	}
	s.Connections = []string(connections)
	return entities.ReconstructIdeaNode(s)
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func connectionsArray(conns []string) pq.StringArray {
	if conns == nil {
		return pq.StringArray{}
	}
	return pq.StringArray(conns)
}

// querySaveNode inserts a new node or updates an existing one, guarded by
// the version the node was loaded at.
func querySaveNode(ctx context.Context, db executor, node *entities.IdeaNode) error {
	s := node.Snapshot()
	if node.PersistedVersion() == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO idea_nodes (
				id, idea_id, title, content, type, position_x, position_y,
				width, height, color, connections, visible, version, created_at, updated_at
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7,
				$8, $9, $10, $11, $12, $13, $14, $15
			)
			ON CONFLICT (idea_id, id) DO NOTHING`,
			s.ID, s.IdeaID, s.Title, s.Content, s.Type, s.PositionX, s.PositionY,
			s.Width, s.Height, nullString(s.Color), connectionsArray(s.Connections),
			s.Visible, s.Version, s.CreatedAt, s.UpdatedAt,
		)
		if err != nil {
			return pkgerrors.NewDatabaseError("insert node", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return pkgerrors.NewDatabaseError("insert node", err)
		} else if n == 0 {
			return pkgerrors.NewConflictError("node already exists").WithCode(pkgerrors.CodeAlreadyExists)
		}
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE idea_nodes SET
			title = $3, content = $4, type = $5, position_x = $6, position_y = $7,
			width = $8, height = $9, color = $10, connections = $11, visible = $12,
			version = $13, updated_at = $14
		WHERE idea_id = $1 AND id = $2 AND version = $15`,
		s.IdeaID, s.ID, s.Title, s.Content, s.Type, s.PositionX, s.PositionY,
		s.Width, s.Height, nullString(s.Color), connectionsArray(s.Connections),
		s.Visible, s.Version, s.UpdatedAt, node.PersistedVersion(),
	)
	if err != nil {
		return pkgerrors.NewDatabaseError("update node", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.NewDatabaseError("update node", err)
	}
	if n > 0 {
		return nil
	}

	var actual int
	err = db.QueryRowContext(ctx,
		`SELECT version FROM idea_nodes WHERE idea_id = $1 AND id = $2`,
		s.IdeaID, s.ID,
	).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return pkgerrors.NewNotFoundError("node")
	}
	if err != nil {
		return pkgerrors.NewDatabaseError("read node version", err)
	}
	return pkgerrors.NewVersionConflictError("node", node.PersistedVersion(), actual)
}

func queryGetNode(ctx context.Context, db executor, ideaID, id string, forUpdate bool) (*entities.IdeaNode, error) {
	query := `SELECT ` + nodeColumns + ` FROM idea_nodes WHERE idea_id = $1 AND id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	node, err := scanNode(db.QueryRowContext(ctx, query, ideaID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.NewNotFoundError("node")
	}
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get node", err)
	}
	return node, nil
}

func queryListNodes(ctx context.Context, db executor, ideaID string) ([]*entities.IdeaNode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM idea_nodes WHERE idea_id = $1 ORDER BY created_at, id`,
		ideaID,
	)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("list nodes", err)
	}
	return collectNodes(rows, "list nodes")
}

// queryLockExpected locks a node row and checks its version. Zero skips
// the check.
func queryLockExpected(ctx context.Context, db executor, ideaID, id string, expectedVersion int) error {
	node, err := queryGetNode(ctx, db, ideaID, id, true)
	if err != nil {
		return err
	}
	if expectedVersion != 0 && node.Version() != expectedVersion {
		return pkgerrors.NewVersionConflictError("node", expectedVersion, node.Version())
	}
	return nil
}

// queryReferencingNodes locks and returns the other nodes of the idea whose
// connection list contains target. $2 is compared against a TEXT[] and a
// UUID column, so both sides are cast to text explicitly.
func queryReferencingNodes(ctx context.Context, db executor, ideaID, target string) ([]*entities.IdeaNode, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+nodeColumns+` FROM idea_nodes
		WHERE idea_id = $1 AND $2::text = ANY(connections) AND id::text <> $2::text
		ORDER BY created_at, id
		FOR UPDATE`,
		ideaID, target,
	)
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("find referencing nodes", err)
	}
	return collectNodes(rows, "find referencing nodes")
}

func collectNodes(rows *sql.Rows, op string) ([]*entities.IdeaNode, error) {
	defer rows.Close()

	nodes := []*entities.IdeaNode{}
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError(op, err)
		}
		nodes = append(nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.NewDatabaseError(op, err)
	}
	return nodes, nil
}

func queryCountNodes(ctx context.Context, db executor, ideaID string) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM idea_nodes WHERE idea_id = $1`, ideaID,
	).Scan(&count)
	if err != nil {
		return 0, pkgerrors.NewDatabaseError("count nodes", err)
	}
	return count, nil
}

func queryDeleteNode(ctx context.Context, db executor, ideaID, id string) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM idea_nodes WHERE idea_id = $1 AND id = $2`, ideaID, id,
	)
	if err != nil {
		return pkgerrors.NewDatabaseError("delete node", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return pkgerrors.NewDatabaseError("delete node", err)
	}
	if n == 0 {
		return pkgerrors.NewNotFoundError("node")
	}
	return nil
}
