package repository

import (
	"cardscan/internal/model"
)

// ScanRepository defines the interface for archived scan sessions.
type ScanRepository interface {
	// Create operations
	Insert(scan *model.ScanRecord) error

	// Read operations
	GetByID(id string) (*model.ScanRecord, error)
	GetAll(filter *model.ScanFilter) ([]model.ScanRecord, error)
	GetTotalCount(filter *model.ScanFilter) (int, error)

	// Delete operations
	Delete(id string) error
}

// FrameRepository defines the interface for frames retained by a scan.
type FrameRepository interface {
	// Create operations
	InsertBatch(frames []model.FrameRecord) error

	// Read operations
	GetByScanID(scanID string) ([]model.FrameRecord, error)

	// Delete operations
	DeleteByScanID(scanID string) error
}
