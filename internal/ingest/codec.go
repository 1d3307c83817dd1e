package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"cardscan/internal/dto"

	"github.com/fxamacker/cbor/v2"
)

// DecodeCBOR decodes one CBOR-encoded frame message.
func DecodeCBOR(data []byte) (*dto.FrameMessage, error) {
	var msg dto.FrameMessage
	if err := cbor.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode CBOR message: %w", err)
	}
	return &msg, nil
}

// DecodeJSON decodes one JSON-encoded frame message.
func DecodeJSON(data []byte) (*dto.FrameMessage, error) {
	var msg dto.FrameMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode JSON message: %w", err)
	}
	return &msg, nil
}

// EncodeCBOR encodes a frame message for the ingest socket.
func EncodeCBOR(msg *dto.FrameMessage) ([]byte, error) {
	return cbor.Marshal(msg)
}

// Reader reads a recorded stream of frame messages, either a CBOR sequence or
// newline-delimited JSON.
type Reader struct {
	next func(*dto.FrameMessage) error
}

func NewCBORReader(r io.Reader) *Reader {
	dec := cbor.NewDecoder(r)
	return &Reader{next: func(m *dto.FrameMessage) error { return dec.Decode(m) }}
}

func NewJSONReader(r io.Reader) *Reader {
	dec := json.NewDecoder(r)
	return &Reader{next: func(m *dto.FrameMessage) error { return dec.Decode(m) }}
}

// Next returns the next message, or io.EOF at the end of the stream.
func (r *Reader) Next() (*dto.FrameMessage, error) {
	var msg dto.FrameMessage
	if err := r.next(&msg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}
	return &msg, nil
}
