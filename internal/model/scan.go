package model

import (
	"strings"
	"time"
)

// Profile selects the scan-completion policy.
type Profile string

const (
	ProfileFast     Profile = "fast"
	ProfileAccurate Profile = "accurate"
)

// ParseProfile falls back to def for unknown values.
func ParseProfile(v string, def Profile) Profile {
	switch Profile(v) {
	case ProfileFast, ProfileAccurate:
		return Profile(v)
	default:
		return def
	}
}

// ScanStats summarises a finished scan session.
type ScanStats struct {
	SessionID      string      `json:"session_id"`
	Profile        Profile     `json:"profile"`
	Requirement    Requirement `json:"requirement"`
	StartedAt      time.Time   `json:"started_at"`
	CompletedAt    time.Time   `json:"completed_at"`
	FinalState     string      `json:"final_state"`
	FrameCount     int         `json:"frame_count"`
	OcrFrameCount  int         `json:"ocr_frame_count"`
	CardFrameCount int         `json:"card_frame_count"`
	FlashFrames    int         `json:"flash_frames"`
	Success        bool        `json:"success"`
}

// Duration is the wall time between start and completion.
func (s ScanStats) Duration() time.Duration {
	return s.CompletedAt.Sub(s.StartedAt)
}

type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationAccepted   VerificationStatus = "accepted"
	VerificationRejected   VerificationStatus = "rejected"
)

// VerificationResult is what the downstream fraud check returns for a session.
type VerificationResult struct {
	SessionID  string             `json:"session_id"`
	Status     VerificationStatus `json:"status"`
	FrameCount int                `json:"frame_count"`
	Archived   bool               `json:"archived"`
}

// MaxSessionIDLength bounds client-chosen session ids.
const MaxSessionIDLength = 128

// SafeSessionID reports whether id can name a directory under the frame
// directory without resolving outside it.
func SafeSessionID(id string) bool {
	return id != "" && id != "." && id != ".." && len(id) <= MaxSessionIDLength &&
		!strings.ContainsAny(id, "/\\\x00")
}
