package sqlite

import (
	"database/sql"
	"fmt"

	"cardscan/internal/model"
)

// ScanRepository implements repository.ScanRepository for SQLite.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new SQLite scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Insert adds a new scan record to the database.
func (r *ScanRepository) Insert(scan *model.ScanRecord) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().Exec(`
		INSERT INTO scans (id, profile, required_bin, required_last4, started_at, completed_at,
			final_state, frame_count, ocr_frame_count, card_frame_count, verification_status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.ID, string(scan.Profile), scan.RequiredBin, scan.RequiredLastFour, scan.StartedAt, scan.CompletedAt,
		scan.FinalState, scan.FrameCount, scan.OcrFrameCount, scan.CardFrameCount, string(scan.VerificationStatus))
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

const scanColumns = `id, profile, required_bin, required_last4, started_at, completed_at,
	final_state, frame_count, ocr_frame_count, card_frame_count, verification_status`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanScan(row rowScanner) (model.ScanRecord, error) {
	var s model.ScanRecord
	var profile, status string
	err := row.Scan(&s.ID, &profile, &s.RequiredBin, &s.RequiredLastFour, &s.StartedAt, &s.CompletedAt,
		&s.FinalState, &s.FrameCount, &s.OcrFrameCount, &s.CardFrameCount, &status)
	s.Profile = model.Profile(profile)
	s.VerificationStatus = model.VerificationStatus(status)
	return s, err
}

// GetByID retrieves a scan by its ID. It returns nil when no scan matches.
func (r *ScanRepository) GetByID(id string) (*model.ScanRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	s, err := scanScan(r.db.Conn().QueryRow(`SELECT `+scanColumns+` FROM scans WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &s, nil
}

func whereScans(filter *model.ScanFilter) (string, []interface{}) {
	query := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return query, args
	}

	if filter.Profile != "" {
		query += " AND profile = ?"
		args = append(args, string(filter.Profile))
	}

	if filter.FinalState != "" {
		query += " AND final_state = ?"
		args = append(args, filter.FinalState)
	}

	if filter.LastFour != "" {
		query += " AND id IN (SELECT scan_id FROM frames WHERE last4 = ?)"
		args = append(args, filter.LastFour)
	}

	if !filter.StartDate.IsZero() {
		query += " AND started_at >= ?"
		args = append(args, filter.StartDate)
	}

	if !filter.EndDate.IsZero() {
		query += " AND started_at <= ?"
		args = append(args, filter.EndDate)
	}

	return query, args
}

// GetAll retrieves scans based on filter criteria, newest first.
func (r *ScanRepository) GetAll(filter *model.ScanFilter) ([]model.ScanRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereScans(filter)
	query := `SELECT ` + scanColumns + ` FROM scans` + where + ` ORDER BY started_at DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scans: %w", err)
	}
	defer rows.Close()

	var scans []model.ScanRecord
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		scans = append(scans, s)
	}

	return scans, rows.Err()
}

// GetTotalCount returns the number of scans matching the filter.
func (r *ScanRepository) GetTotalCount(filter *model.ScanFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := whereScans(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM scans`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scans: %w", err)
	}
	return count, nil
}

// Delete removes a scan and its frames.
func (r *ScanRepository) Delete(id string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM frames WHERE scan_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM scans WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}
	return nil
}
