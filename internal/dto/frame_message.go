package dto

import (
	"time"

	"cardscan/internal/model"
)

// Message types carried by FrameMessage.Type.
const (
	MessageStart = "start"
	MessageFrame = "frame"
	MessageEnd   = "end"
)

// FrameMessage is one prediction from the ML pipeline together with the frame
// it was computed on. It arrives as JSON or CBOR over the scan websocket and as
// CBOR over the ingest socket. Start messages carry the session options; frame
// messages carry the prediction.
type FrameMessage struct {
	Type      string `json:"type" cbor:"type"`
	SessionID string `json:"session_id,omitempty" cbor:"session_id,omitempty"`

	Profile  string `json:"profile,omitempty" cbor:"profile,omitempty"`
	Bin      string `json:"bin,omitempty" cbor:"bin,omitempty"`
	LastFour string `json:"last4,omitempty" cbor:"last4,omitempty"`

	Number            string           `json:"number,omitempty" cbor:"number,omitempty"`
	Expiry            *model.Expiry    `json:"expiry,omitempty" cbor:"expiry,omitempty"`
	Name              string           `json:"name,omitempty" cbor:"name,omitempty"`
	CenteredCardState string           `json:"centered_card_state,omitempty" cbor:"centered_card_state,omitempty"`
	NumberBoxes       []model.Box      `json:"number_boxes,omitempty" cbor:"number_boxes,omitempty"`
	ExpiryBoxes       []model.Box      `json:"expiry_boxes,omitempty" cbor:"expiry_boxes,omitempty"`
	CardBox           *model.Box       `json:"card_box,omitempty" cbor:"card_box,omitempty"`
	Confidence        model.Confidence `json:"confidence" cbor:"confidence"`

	SquareImage []byte `json:"square_image,omitempty" cbor:"square_image,omitempty"`
	FullImage   []byte `json:"full_image,omitempty" cbor:"full_image,omitempty"`
	Flash       bool   `json:"flash,omitempty" cbor:"flash,omitempty"`
	// Timestamp is the capture time in Unix milliseconds; zero means now.
	Timestamp int64 `json:"ts,omitempty" cbor:"ts,omitempty"`
}

// Prediction extracts the model output.
func (m *FrameMessage) Prediction() model.Prediction {
	p := model.Prediction{
		Number:            m.Number,
		Expiry:            m.Expiry,
		Name:              m.Name,
		CenteredCardState: model.ParseCenteredCardState(m.CenteredCardState),
		NumberBoxes:       m.NumberBoxes,
		ExpiryBoxes:       m.ExpiryBoxes,
		Confidence:        m.Confidence,
	}
	if m.CardBox != nil {
		p.CardBox = *m.CardBox
	}
	return p
}

// Capture extracts the frame images and flash state. now is used when the
// message carries no timestamp; the zero time lets the session stamp it.
func (m *FrameMessage) Capture(now time.Time) model.Capture {
	capturedAt := now
	if m.Timestamp > 0 {
		capturedAt = time.UnixMilli(m.Timestamp)
	}
	return model.Capture{
		SquareImage:   m.SquareImage,
		FullImage:     m.FullImage,
		FlashForcedOn: m.Flash,
		CapturedAt:    capturedAt,
	}
}

// Requirement returns the card constraint a start message asks for.
func (m *FrameMessage) Requirement() model.Requirement {
	return model.Requirement{Bin: m.Bin, LastFour: m.LastFour}
}
