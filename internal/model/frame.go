package model

import "time"

// Capture carries what the camera side knows about a frame: the images and
// whether the torch was forced on.
type Capture struct {
	SquareImage   []byte
	FullImage     []byte
	FlashForcedOn bool
	CapturedAt    time.Time
}

// FrameData is a frame retained for fraud analysis.
type FrameData struct {
	Sequence          int               `json:"sequence"`
	CapturedAt        time.Time         `json:"captured_at"`
	Bin               string            `json:"bin,omitempty"`
	LastFour          string            `json:"last4,omitempty"`
	Expiry            *Expiry           `json:"expiry,omitempty"`
	NumberBoxes       []Box             `json:"number_boxes,omitempty"`
	ExpiryBoxes       []Box             `json:"expiry_boxes,omitempty"`
	SquareImage       []byte            `json:"square_image,omitempty"`
	FullImage         []byte            `json:"full_image,omitempty"`
	CenteredCardState CenteredCardState `json:"centered_card_state"`
	OcrSuccess        bool              `json:"ocr_success"`
	Confidence        Confidence        `json:"confidence"`
	FlashForcedOn     bool              `json:"flash_forced_on"`
}

// NewFrameData builds a retained frame from a prediction and its capture.
func NewFrameData(seq int, p Prediction, c Capture, ocrSuccess bool) FrameData {
	fd := FrameData{
		Sequence:          seq,
		CapturedAt:        c.CapturedAt,
		SquareImage:       c.SquareImage,
		FullImage:         c.FullImage,
		CenteredCardState: p.CenteredCardState,
		OcrSuccess:        ocrSuccess,
		Confidence:        p.Confidence,
		FlashForcedOn:     c.FlashForcedOn,
	}
	if ocrSuccess {
		fd.Bin = p.Bin()
		fd.LastFour = p.LastFour()
		fd.Expiry = p.Expiry
		fd.NumberBoxes = p.NumberBoxes
		fd.ExpiryBoxes = p.ExpiryBoxes
	}
	return fd
}
