package corpus

import (
	"context"
	"database/sql"
	"fmt"
)

// DefaultQuery reads a documents(id, text) table in insertion order.
const DefaultQuery = `SELECT id::text, COALESCE(text, '') FROM documents ORDER BY id`

// Querier is satisfied by *sql.DB, *sql.Tx and *postgres.Client.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// PostgresSource loads documents with a query returning (id, text) rows.
type PostgresSource struct {
	db    Querier
	query string
}

func NewPostgresSource(db Querier, query string) *PostgresSource {
	if query == "" {
		query = DefaultQuery
	}
	return &PostgresSource{db: db, query: query}
}

func (s *PostgresSource) Load(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus: %w", err)
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Text); err != nil {
			return nil, fmt.Errorf("scanning corpus row: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	return docs, nil
}
