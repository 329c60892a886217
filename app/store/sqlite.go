package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, bool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, false, fmt.Errorf("failed to connect to database: %w", err)
	}

	version, fresh, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, false, err
	}

	slog.Info("Database ready", "path", path, "schema_version", version, "fresh", fresh)
	return &SQLiteStore{db: db}, fresh, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rest_id, author_handle, is_truncated, is_quote_missing, quoted_status_id
		FROM incomplete_tweets
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load incomplete tweets: %w", err)
	}
	defer rows.Close()

	records := make(map[string]Record)
	for rows.Next() {
		var rec Record
		var quoted sql.NullString
		if err := rows.Scan(&rec.RestID, &rec.AuthorHandle, &rec.IsTruncated, &rec.IsQuoteMissing, &quoted); err != nil {
			return nil, fmt.Errorf("failed to scan incomplete tweet row: %w", err)
		}
		if quoted.Valid {
			rec.QuotedStatusID = &quoted.String
		}
		records[rec.RestID] = rec
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating incomplete tweet rows: %w", err)
	}

	return records, nil
}

func (s *SQLiteStore) Replace(ctx context.Context, records map[string]Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM incomplete_tweets`); err != nil {
		return fmt.Errorf("failed to clear incomplete tweets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO incomplete_tweets (rest_id, author_handle, is_truncated, is_quote_missing, quoted_status_id)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, rec := range records {
		var quoted sql.NullString
		if rec.QuotedStatusID != nil {
			quoted = sql.NullString{String: *rec.QuotedStatusID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, rec.AuthorHandle, rec.IsTruncated, rec.IsQuoteMissing, quoted); err != nil {
			return fmt.Errorf("failed to insert incomplete tweet %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit incomplete tweets: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, restID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM incomplete_tweets WHERE rest_id = ?`, restID); err != nil {
		return fmt.Errorf("failed to delete incomplete tweet %s: %w", restID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
