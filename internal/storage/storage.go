// Package storage defines the persistence interface for catalog items and ingest runs.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/curator/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines catalog item and ingest run persistence operations.
type Storage interface {
	// Item operations
	UpsertItems(ctx context.Context, items []*models.Item) error
	GetItem(ctx context.Context, id string) (*models.Item, error)
	ListItems(ctx context.Context, offset, limit int) ([]*models.Item, error)
	DeleteItemsBySource(ctx context.Context, source string) error
	ListSources(ctx context.Context) ([]string, error)
	CountItems(ctx context.Context) (int64, error)

	// Run history
	SaveRun(ctx context.Context, report *models.IngestReport) error
	ListRuns(ctx context.Context, limit int) ([]*models.IngestReport, error)

	Close() error
}
