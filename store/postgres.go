package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresKV implements KV backed by the kv_records table (see migrations/).
type PostgresKV struct {
	db *sql.DB
}

func NewPostgresKV(db *sql.DB) *PostgresKV {
	return &PostgresKV{db: db}
}

func (s *PostgresKV) Get(ctx context.Context, storeName, key string) (*Record, error) {
	var rec Record
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, updated_at
		FROM kv_records
		WHERE store_name = $1 AND key = $2
	`, storeName, key).Scan(&rec.Key, &rec.Value, &rec.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s/%s: %w", storeName, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return &rec, nil
}

func (s *PostgresKV) Save(ctx context.Context, storeName string, rec Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record key cannot be empty")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_records (store_name, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (store_name, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, storeName, rec.Key, []byte(rec.Value))

	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *PostgresKV) Delete(ctx context.Context, storeName, key string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM kv_records
		WHERE store_name = $1 AND key = $2
	`, storeName, key)
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s/%s: %w", storeName, key, ErrNotFound)
	}
	return nil
}

func (s *PostgresKV) GetAll(ctx context.Context, storeName string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value, updated_at
		FROM kv_records
		WHERE store_name = $1
		ORDER BY key ASC
	`, storeName)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}
