package dto

import "cardscan/internal/model"

// StateUpdate answers every frame on the scan socket and is broadcast to viewers.
type StateUpdate struct {
	Type         string                    `json:"type"`
	SessionID    string                    `json:"session_id"`
	State        string                    `json:"state"`
	Changed      bool                      `json:"changed"`
	Finished     bool                      `json:"finished"`
	ForceFlash   bool                      `json:"force_flash,omitempty"`
	ElapsedMs    int64                     `json:"elapsed_ms"`
	FrameCount   int                       `json:"frame_count"`
	Verification *model.VerificationResult `json:"verification,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// DebugFrame is a drained frame pushed to viewers when image retention is on.
type DebugFrame struct {
	Type              string `json:"type"`
	SessionID         string `json:"session_id"`
	Position          int    `json:"position"`
	Sequence          int    `json:"sequence"`
	CenteredCardState string `json:"centered_card_state"`
	OcrSuccess        bool   `json:"ocr_success"`
	FlashForcedOn     bool   `json:"flash_forced_on"`
	LastFour          string `json:"last4,omitempty"`
	// Image is the base64 JPEG, annotated when a full frame was available.
	Image string `json:"image,omitempty"`
}

// Viewer message types.
const (
	TypeState = "state"
	TypeDebug = "debug"
)
