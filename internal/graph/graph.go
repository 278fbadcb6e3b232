package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested node doesn't exist
var ErrNotFound = errors.New("not found")

// Edge types recorded by the scan engine.
const (
	EdgeContains = "contains" // directory -> file
	EdgeTagged   = "tagged"   // file -> tag node
)

// Node is a filesystem path with attached metadata.
type Node struct {
	ID        int64          `json:"id"`
	Path      string         `json:"path"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Edge is a typed, weighted relationship between two paths.
type Edge struct {
	ID        int64          `json:"id"`
	Source    string         `json:"source"`
	Target    string         `json:"target"`
	Type      string         `json:"type"`
	Weight    float64        `json:"weight"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// EdgeFilter narrows ListEdges. Zero fields match everything.
type EdgeFilter struct {
	Source string
	Target string
	Type   string
}

// Stats summarizes the stored graph.
type Stats struct {
	Nodes int64 `json:"nodes"`
	Edges int64 `json:"edges"`
}

// Store persists the scan graph in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the graph database at dbPath and applies
// migrations.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// SQLite benefits from a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertNode creates or replaces the node for path.
func (s *Store) UpsertNode(ctx context.Context, path string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}

	query := `
		INSERT INTO nodes (path, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`
	now := time.Now()
	if _, err := s.db.ExecContext(ctx, query, path, string(raw), now, now); err != nil {
		return fmt.Errorf("failed to upsert node %s: %w", path, err)
	}
	return nil
}

// UpsertEdge creates or replaces the (source, target, type) edge.
func (s *Store) UpsertEdge(ctx context.Context, edge Edge) error {
	var raw any
	if edge.Metadata != nil {
		data, err := json.Marshal(edge.Metadata)
		if err != nil {
			return fmt.Errorf("marshal edge metadata: %w", err)
		}
		raw = string(data)
	}

	query := `
		INSERT INTO edges (source, target, type, weight, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, target, type) DO UPDATE SET
			weight = excluded.weight,
			metadata = excluded.metadata
	`
	_, err := s.db.ExecContext(ctx, query,
		edge.Source, edge.Target, edge.Type, edge.Weight, raw, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s->%s: %w", edge.Source, edge.Target, err)
	}
	return nil
}

// GetNode retrieves the node for path.
func (s *Store) GetNode(ctx context.Context, path string) (*Node, error) {
	query := `
		SELECT id, path, metadata, created_at, updated_at
		FROM nodes
		WHERE path = ?
	`
	var node Node
	var raw string
	err := s.db.QueryRowContext(ctx, query, path).Scan(
		&node.ID, &node.Path, &raw, &node.CreatedAt, &node.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &node.Metadata); err != nil {
		return nil, fmt.Errorf("decode node metadata: %w", err)
	}
	return &node, nil
}

// ListEdges returns edges matching the filter, ordered by creation.
func (s *Store) ListEdges(ctx context.Context, filter EdgeFilter) ([]*Edge, error) {
	query := `
		SELECT id, source, target, type, weight, metadata, created_at
		FROM edges
		WHERE 1=1
	`
	var args []any
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, filter.Source)
	}
	if filter.Target != "" {
		query += " AND target = ?"
		args = append(args, filter.Target)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, filter.Type)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	edges := make([]*Edge, 0)
	for rows.Next() {
		var edge Edge
		var raw sql.NullString
		err := rows.Scan(&edge.ID, &edge.Source, &edge.Target, &edge.Type,
			&edge.Weight, &raw, &edge.CreatedAt)
		if err != nil {
			return nil, err
		}
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &edge.Metadata); err != nil {
				return nil, fmt.Errorf("decode edge metadata: %w", err)
			}
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}

// DeleteNode removes a node and every edge that touches it. It reports
// whether a node row was deleted.
func (s *Store) DeleteNode(ctx context.Context, path string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE source = ? OR target = ?", path, path); err != nil {
		return false, fmt.Errorf("failed to delete edges for %s: %w", path, err)
	}
	result, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE path = ?", path)
	if err != nil {
		return false, fmt.Errorf("failed to delete node %s: %w", path, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Stats returns node and edge counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&stats.Nodes); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&stats.Edges); err != nil {
		return stats, err
	}
	return stats, nil
}
