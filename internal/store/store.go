package store

import (
	"context"

	"github.com/joescharf/repochat/internal/models"
)

// Store defines the scan archive: a durable record of completed repository
// scans. Chat sessions are deliberately not persisted here.
type Store interface {
	RecordScan(ctx context.Context, rec *models.ScanRecord) error
	ListScans(ctx context.Context, limit int) ([]*models.ScanRecord, error)
	GetScan(ctx context.Context, id string) (*models.ScanRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
