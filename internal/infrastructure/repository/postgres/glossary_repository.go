package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// GlossaryRepository stores the abbreviation glossary used by query
// expansion. Terms are tenant-wide; the table is small and read once at
// startup, then on periodic refresh.
type GlossaryRepository struct {
	db *sql.DB
}

func NewGlossaryRepository(db *sql.DB) *GlossaryRepository {
	return &GlossaryRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *GlossaryRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent service startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082301)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS glossary_terms (
	term TEXT PRIMARY KEY,
	expansion TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *GlossaryRepository) LoadGlossary(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT term, expansion FROM glossary_terms`)
	if err != nil {
		return nil, fmt.Errorf("query glossary: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var term, expansion string
		if err := rows.Scan(&term, &expansion); err != nil {
			return nil, fmt.Errorf("scan glossary row: %w", err)
		}
		term = strings.ToLower(strings.TrimSpace(term))
		expansion = strings.TrimSpace(expansion)
		if term == "" || expansion == "" {
			continue
		}
		out[term] = expansion
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate glossary rows: %w", err)
	}
	return out, nil
}

func (r *GlossaryRepository) UpsertTerm(ctx context.Context, term, expansion string) error {
	term = strings.ToLower(strings.TrimSpace(term))
	expansion = strings.TrimSpace(expansion)
	if term == "" || expansion == "" {
		return fmt.Errorf("term and expansion are required")
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO glossary_terms (term, expansion, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (term) DO UPDATE SET expansion = EXCLUDED.expansion, updated_at = EXCLUDED.updated_at`,
		term, expansion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert glossary term: %w", err)
	}
	return nil
}
