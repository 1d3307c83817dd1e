package model

import "time"

// ScanRecord is an archived scan session.
type ScanRecord struct {
	ID                 string             `json:"id"`
	Profile            Profile            `json:"profile"`
	RequiredBin        string             `json:"required_bin,omitempty"`
	RequiredLastFour   string             `json:"required_last4,omitempty"`
	StartedAt          time.Time          `json:"started_at"`
	CompletedAt        time.Time          `json:"completed_at"`
	FinalState         string             `json:"final_state"`
	FrameCount         int                `json:"frame_count"`
	OcrFrameCount      int                `json:"ocr_frame_count"`
	CardFrameCount     int                `json:"card_frame_count"`
	VerificationStatus VerificationStatus `json:"verification_status"`
}

// FrameRecord is a retained frame of an archived session. Images live on disk.
type FrameRecord struct {
	ID                int64     `json:"id"`
	ScanID            string    `json:"scan_id"`
	Position          int       `json:"position"`
	Sequence          int       `json:"sequence"`
	CapturedAt        time.Time `json:"captured_at"`
	Bin               string    `json:"bin,omitempty"`
	LastFour          string    `json:"last4,omitempty"`
	Expiry            string    `json:"expiry,omitempty"`
	CenteredCardState string    `json:"centered_card_state"`
	OcrSuccess        bool      `json:"ocr_success"`
	FlashForcedOn     bool      `json:"flash_forced_on"`
	Confidence        float32   `json:"confidence"`
	NumberBoxes       []Box     `json:"number_boxes,omitempty"`
	SquarePath        string    `json:"square_path,omitempty"`
	FullPath          string    `json:"full_path,omitempty"`
}

// ScanFilter contains filtering options for querying archived scans.
type ScanFilter struct {
	Profile    Profile
	FinalState string
	LastFour   string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
	Offset     int
}
