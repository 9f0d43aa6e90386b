package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/livelist/livelist/pkg/types"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS records_position ON records(position);
`

// SQLite is a write-through Backend that keeps the table in a SQLite file.
// Row order is kept in the position column so a reload reproduces the
// in-memory insertion order.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite creates or opens the database at path.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout
//   - a single open connection, matching the store's single writer
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Load returns every row in position order.
func (b *SQLite) Load(ctx context.Context) ([]types.Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, name FROM records ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var r types.Record
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Apply writes m in a single transaction. Existing ids keep their position;
// new ids are placed after the current maximum.
func (b *SQLite) Apply(ctx context.Context, m Mutation) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if m.Reset {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return fmt.Errorf("sqlite: reset: %w", err)
		}
	}

	if len(m.Records) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO records (id, name, position)
			VALUES (?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM records))
			ON CONFLICT(id) DO UPDATE SET name = excluded.name
		`)
		if err != nil {
			return fmt.Errorf("sqlite: prepare upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range m.Records {
			if _, err := stmt.ExecContext(ctx, r.ID, r.Name); err != nil {
				return fmt.Errorf("sqlite: upsert %q: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *SQLite) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
