// SPDX-License-Identifier: MIT

package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/store"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// SQLiteBackend stores entities in a single SQLite table. Sibling
// renumbering runs in one transaction.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the database at dbPath and runs
// migrations. WAL mode plus busy_timeout suits the read-heavy editor
// workload.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_synchronous=NORMAL", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	b := &SQLiteBackend{db: db}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return b, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK(kind IN ('course', 'chapter', 'video')),
		parent TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL,
		ord INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending' CHECK(status IN ('pending', 'uploading', 'processing', 'ready', 'error'))
	);

	CREATE INDEX IF NOT EXISTS idx_entities_parent ON entities(parent);
	CREATE INDEX IF NOT EXISTS idx_entities_parent_ord ON entities(parent, ord);
	`
	_, err := b.db.Exec(schema)
	return err
}

// Mutate applies one write.
func (b *SQLiteBackend) Mutate(ctx context.Context, m Mutation) (Result, error) {
	switch m.Kind {
	case MutationCreate:
		e := m.Entity
		if e.ID == "" || strings.HasPrefix(e.ID, "tmp-") {
			e.ID = uuid.NewString()
		}
		_, err := b.db.ExecContext(ctx, `
			INSERT INTO entities (id, kind, parent, title, ord, status)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind = excluded.kind, parent = excluded.parent,
				title = excluded.title, ord = excluded.ord, status = excluded.status`,
			e.ID, string(e.Kind), e.Parent, e.Title, e.Order, string(e.Status))
		if err != nil {
			return Result{}, fmt.Errorf("sqlite create: %w", err)
		}
		return Result{Success: true, Entity: &e}, nil

	case MutationRename:
		res, err := b.db.ExecContext(ctx,
			`UPDATE entities SET title = ? WHERE id = ?`, m.Entity.Title, m.Entity.ID)
		if err != nil {
			return Result{}, fmt.Errorf("sqlite rename: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Result{Success: false, Err: "not found"}, nil
		}
		e, err := b.FetchEntity(ctx, m.Entity.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Entity: &e}, nil

	case MutationReorder:
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return Result{}, fmt.Errorf("sqlite begin: %w", err)
		}
		for _, s := range m.Siblings {
			res, err := tx.ExecContext(ctx,
				`UPDATE entities SET ord = ? WHERE id = ? AND parent = ?`,
				s.Order, s.ID, m.Entity.Parent)
			if err != nil {
				_ = tx.Rollback()
				return Result{}, fmt.Errorf("sqlite reorder %s: %w", s.ID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				_ = tx.Rollback()
				return Result{Success: false, Err: "sibling not found: " + s.ID}, nil
			}
		}
		if err := tx.Commit(); err != nil {
			return Result{}, fmt.Errorf("sqlite commit: %w", err)
		}
		e, err := b.FetchEntity(ctx, m.Entity.ID)
		if err != nil {
			return Result{}, err
		}
		return Result{Success: true, Entity: &e}, nil

	case MutationDelete:
		res, err := b.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, m.Entity.ID)
		if err != nil {
			return Result{}, fmt.Errorf("sqlite delete: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return Result{Success: false, Err: "not found"}, nil
		}
		return Result{Success: true}, nil

	default:
		return Result{Success: false, Err: "unknown mutation kind"}, nil
	}
}

// FetchChildren returns entities under parent ordered by ord, id.
func (b *SQLiteBackend) FetchChildren(ctx context.Context, parent string) ([]store.Entity, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, kind, parent, title, ord, status
		FROM entities WHERE parent = ?
		ORDER BY ord ASC, id ASC`, parent)
	if err != nil {
		return nil, fmt.Errorf("sqlite query children: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Entity
	for rows.Next() {
		var e store.Entity
		var kind, status string
		if err := rows.Scan(&e.ID, &kind, &e.Parent, &e.Title, &e.Order, &status); err != nil {
			return nil, fmt.Errorf("sqlite scan: %w", err)
		}
		e.Kind = store.Kind(kind)
		e.Status = store.Status(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FetchEntity returns one entity by id.
func (b *SQLiteBackend) FetchEntity(ctx context.Context, id string) (store.Entity, error) {
	var e store.Entity
	var kind, status string
	err := b.db.QueryRowContext(ctx, `
		SELECT id, kind, parent, title, ord, status
		FROM entities WHERE id = ?`, id).
		Scan(&e.ID, &kind, &e.Parent, &e.Title, &e.Order, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entity{}, ErrNotFound
	}
	if err != nil {
		return store.Entity{}, fmt.Errorf("sqlite query entity: %w", err)
	}
	e.Kind = store.Kind(kind)
	e.Status = store.Status(status)
	return e, nil
}

var _ Backend = (*SQLiteBackend)(nil)
