// SessionsData is a paginated response payload for the archived sessions list.
package dto

import "cardscan/internal/model"

type SessionsData struct {
	Sessions    []SessionInfo `json:"sessions"`
	FramesDir   string        `json:"framesDir"`
	Length      int           `json:"length"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	Limit       int           `json:"pageSize"`
}

// FramesData lists the retained frames of one archived session.
type FramesData struct {
	Session SessionInfo         `json:"session"`
	Frames  []model.FrameRecord `json:"frames"`
}
