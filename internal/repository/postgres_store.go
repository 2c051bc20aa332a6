package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for a duplicate key
const uniqueViolation = "23505"

// dbExecutor is an interface that both *sql.DB and *sql.Tx implement
type dbExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// PostgresStore keeps records as JSONB rows in the records table
type PostgresStore struct {
	db dbExecutor
}

// NewPostgresStore creates a store over an open connection
func NewPostgresStore(db dbExecutor) *PostgresStore {
	return &PostgresStore{db: db}
}

// Save inserts a new record; a duplicate key is a Conflict
func (s *PostgresStore) Save(ctx context.Context, table, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.InternalError("failed to encode record", err)
	}

	query := `
		INSERT INTO records (table_name, record_key, data)
		VALUES ($1, $2, $3)
	`
	if _, err := s.db.ExecContext(ctx, query, table, key, data); err != nil {
		var pqErr *pq.Error
		if stderrors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return errors.Conflict(fmt.Sprintf("%s record %s already exists", table, key), err)
		}
		return errors.DatabaseError("failed to save record", err).WithOperation("save")
	}
	return nil
}

// Update upserts a record
func (s *PostgresStore) Update(ctx context.Context, table, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.InternalError("failed to encode record", err)
	}

	query := `
		INSERT INTO records (table_name, record_key, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (table_name, record_key)
		DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`
	if _, err := s.db.ExecContext(ctx, query, table, key, data); err != nil {
		return errors.DatabaseError("failed to update record", err).WithOperation("update")
	}
	return nil
}

// Get decodes one record into dest
func (s *PostgresStore) Get(ctx context.Context, table, key string, dest interface{}) error {
	query := `SELECT data FROM records WHERE table_name = $1 AND record_key = $2`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, table, key).Scan(&data)
	if err == sql.ErrNoRows {
		return errors.NotFound(fmt.Sprintf("%s record %s not found", table, key), nil)
	}
	if err != nil {
		return errors.DatabaseError("failed to get record", err).WithOperation("get")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.InternalError("failed to decode record", err)
	}
	return nil
}

// List returns every record of a table in insertion order
func (s *PostgresStore) List(ctx context.Context, table string) ([][]byte, error) {
	query := `
		SELECT data FROM records
		WHERE table_name = $1
		ORDER BY created_at, record_key
	`
	rows, err := s.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, errors.DatabaseError("failed to list records", err).WithOperation("list")
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.DatabaseError("failed to scan record", err)
		}
		out = append(out, data)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.DatabaseError("failed to iterate records", err)
	}
	return out, nil
}
