package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"cardscan/internal/model"
)

// FrameRepository implements repository.FrameRepository for SQLite.
type FrameRepository struct {
	db *DB
}

// NewFrameRepository creates a new SQLite frame repository.
func NewFrameRepository(db *DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// InsertBatch adds multiple frames in a single transaction.
func (r *FrameRepository) InsertBatch(frames []model.FrameRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO frames (scan_id, position, sequence, captured_at, bin, last4, expiry,
			centered_card_state, ocr_success, flash_forced_on, confidence, number_boxes, square_path, full_path)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		boxes, err := encodeBoxes(f.NumberBoxes)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(f.ScanID, f.Position, f.Sequence, f.CapturedAt, f.Bin, f.LastFour, f.Expiry,
			f.CenteredCardState, f.OcrSuccess, f.FlashForcedOn, f.Confidence, boxes, f.SquarePath, f.FullPath); err != nil {
			return fmt.Errorf("failed to insert frame: %w", err)
		}
	}

	return tx.Commit()
}

// GetByScanID retrieves the frames of a scan in drain order.
func (r *FrameRepository) GetByScanID(scanID string) ([]model.FrameRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, scan_id, position, sequence, captured_at, bin, last4, expiry, centered_card_state,
			ocr_success, flash_forced_on, confidence, number_boxes, square_path, full_path
		FROM frames WHERE scan_id = ? ORDER BY position
	`, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []model.FrameRecord
	for rows.Next() {
		var f model.FrameRecord
		var capturedAt sql.NullTime
		var boxes string
		if err := rows.Scan(&f.ID, &f.ScanID, &f.Position, &f.Sequence, &capturedAt, &f.Bin, &f.LastFour, &f.Expiry,
			&f.CenteredCardState, &f.OcrSuccess, &f.FlashForcedOn, &f.Confidence, &boxes, &f.SquarePath, &f.FullPath); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		if capturedAt.Valid {
			f.CapturedAt = capturedAt.Time
		}
		if f.NumberBoxes, err = decodeBoxes(boxes); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}

	return frames, rows.Err()
}

// DeleteByScanID removes all frames of a scan.
func (r *FrameRepository) DeleteByScanID(scanID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM frames WHERE scan_id = ?`, scanID); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	return nil
}

func encodeBoxes(boxes []model.Box) (string, error) {
	if len(boxes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(boxes)
	if err != nil {
		return "", fmt.Errorf("failed to encode boxes: %w", err)
	}
	return string(data), nil
}

func decodeBoxes(v string) ([]model.Box, error) {
	if v == "" {
		return nil, nil
	}
	var boxes []model.Box
	if err := json.Unmarshal([]byte(v), &boxes); err != nil {
		return nil, fmt.Errorf("failed to decode boxes: %w", err)
	}
	return boxes, nil
}
