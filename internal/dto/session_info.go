package dto

import (
	"encoding/json"

	"cardscan/internal/model"
)

// SessionInfo is an archived session as shown to operators.
type SessionInfo struct {
	model.ScanRecord
}

// MarshalJSON adds a human-readable date and the scan duration.
func (s SessionInfo) MarshalJSON() ([]byte, error) {
	type Alias model.ScanRecord
	return json.Marshal(&struct {
		Date       string `json:"date"`
		DurationMs int64  `json:"duration_ms"`
		Alias
	}{
		Date:       s.StartedAt.Format("02-01-2006 15:04:05"),
		DurationMs: s.CompletedAt.Sub(s.StartedAt).Milliseconds(),
		Alias:      (Alias)(s.ScanRecord),
	})
}
