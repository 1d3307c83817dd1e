package model

import (
	"fmt"
	"strings"
)

// CenteredCardState is the card-presence model's classification of a frame.
type CenteredCardState int

const (
	NoCard CenteredCardState = iota
	NumberSide
	NonNumberSide
)

// HasCard reports whether any side of a card is framed.
func (s CenteredCardState) HasCard() bool {
	return s == NumberSide || s == NonNumberSide
}

func (s CenteredCardState) String() string {
	switch s {
	case NumberSide:
		return "number_side"
	case NonNumberSide:
		return "non_number_side"
	default:
		return "no_card"
	}
}

// ParseCenteredCardState accepts the names produced by String; anything
// unrecognised is treated as no card.
func ParseCenteredCardState(v string) CenteredCardState {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "number_side", "numberside":
		return NumberSide
	case "non_number_side", "nonnumberside":
		return NonNumberSide
	default:
		return NoCard
	}
}

// Expiry is a card expiry date as read by OCR.
type Expiry struct {
	Month int `json:"month" cbor:"month"`
	Year  int `json:"year" cbor:"year"`
}

func (e Expiry) String() string {
	return fmt.Sprintf("%02d/%02d", e.Month, e.Year%100)
}

// Box is a bounding box in pixel coordinates of the full frame.
type Box struct {
	X      int `json:"x" cbor:"x"`
	Y      int `json:"y" cbor:"y"`
	Width  int `json:"width" cbor:"width"`
	Height int `json:"height" cbor:"height"`
}

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Confidence holds the per-frame model confidences attached to retained frames.
type Confidence struct {
	Centered      float32 `json:"centered" cbor:"centered"`
	NoCard        float32 `json:"no_card" cbor:"no_card"`
	NumberSide    float32 `json:"number_side" cbor:"number_side"`
	NonNumberSide float32 `json:"non_number_side" cbor:"non_number_side"`
	Ocr           float32 `json:"ocr" cbor:"ocr"`
}

// Prediction is the ML pipeline's output for exactly one frame. It is passed by
// value and never modified once built.
type Prediction struct {
	Number            string
	Expiry            *Expiry
	Name              string
	CenteredCardState CenteredCardState
	NumberBoxes       []Box
	ExpiryBoxes       []Box
	CardBox           Box
	Confidence        Confidence
}

// HasOcr reports whether a card number was recognised in this frame.
func (p Prediction) HasOcr() bool {
	return p.Number != ""
}

// HasCard reports whether the card-presence model saw a card.
func (p Prediction) HasCard() bool {
	return p.CenteredCardState.HasCard()
}

// Bin returns the first six digits of the recognised number.
func (p Prediction) Bin() string {
	return Bin(p.Number)
}

// LastFour returns the last four digits of the recognised number.
func (p Prediction) LastFour() string {
	return LastFour(p.Number)
}

// Bin returns up to the first six characters of number.
func Bin(number string) string {
	if len(number) <= 6 {
		return number
	}
	return number[:6]
}

// LastFour returns up to the last four characters of number.
func LastFour(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// Requirement constrains which card a session accepts. Empty fields accept any
// card.
type Requirement struct {
	Bin      string `json:"bin,omitempty"`
	LastFour string `json:"last4,omitempty"`
}

// Matches reports whether number satisfies both constraints.
func (r Requirement) Matches(number string) bool {
	if r.Bin != "" && Bin(number) != r.Bin {
		return false
	}
	if r.LastFour != "" && LastFour(number) != r.LastFour {
		return false
	}
	return true
}
