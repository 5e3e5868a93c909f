package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/curator/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		sheet TEXT NOT NULL,
		row INTEGER NOT NULL,
		name TEXT NOT NULL,
		zone TEXT,
		category TEXT,
		authors TEXT,
		instructor TEXT,
		technique TEXT,
		fields TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_items_source ON items(source);
	CREATE INDEX IF NOT EXISTS idx_items_order ON items(source, sheet, row);

	CREATE TABLE IF NOT EXISTS ingest_runs (
		id TEXT PRIMARY KEY,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status TEXT NOT NULL,
		report TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON ingest_runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertItems inserts or replaces items in a transaction.
func (s *SQLiteStorage) UpsertItems(ctx context.Context, items []*models.Item) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO items
		 (id, source, sheet, row, name, zone, category, authors, instructor, technique, fields, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, item := range items {
		fieldsJSON, err := json.Marshal(item.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		item.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx,
			item.ID, item.Source, item.Sheet, item.Row, item.Name, item.Zone, item.Category,
			item.Authors, item.Instructor, item.Technique, string(fieldsJSON), item.UpdatedAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

const itemColumns = `id, source, sheet, row, name, zone, category, authors, instructor, technique, fields, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(r rowScanner) (*models.Item, error) {
	var item models.Item
	var fieldsJSON string
	if err := r.Scan(&item.ID, &item.Source, &item.Sheet, &item.Row, &item.Name, &item.Zone,
		&item.Category, &item.Authors, &item.Instructor, &item.Technique, &fieldsJSON, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if fieldsJSON != "" && fieldsJSON != "null" {
		if err := json.Unmarshal([]byte(fieldsJSON), &item.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields: %w", err)
		}
	}
	return &item, nil
}

// GetItem returns an item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id string) (*models.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return item, err
}

// ListItems returns items in catalog order with offset and limit.
func (s *SQLiteStorage) ListItems(ctx context.Context, offset, limit int) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY source, sheet, row LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// DeleteItemsBySource removes every item read from source.
func (s *SQLiteStorage) DeleteItemsBySource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE source = ?`, source)
	return err
}

// ListSources returns the distinct sources items were read from, sorted.
func (s *SQLiteStorage) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM items ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// CountItems returns the total number of items.
func (s *SQLiteStorage) CountItems(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items`).Scan(&count)
	return count, err
}

// SaveRun records an ingest report. Saving the same run again replaces it.
func (s *SQLiteStorage) SaveRun(ctx context.Context, report *models.IngestReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ingest_runs (id, started_at, finished_at, status, report)
		 VALUES (?, ?, ?, ?, ?)`,
		report.RunID, report.StartedAt, report.FinishedAt, report.Status, string(data),
	)
	return err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, limit int) ([]*models.IngestReport, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM ingest_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.IngestReport
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var report models.IngestReport
		if err := json.Unmarshal([]byte(data), &report); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report: %w", err)
		}
		runs = append(runs, &report)
	}
	return runs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
