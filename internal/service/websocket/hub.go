package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"

	"github.com/gorilla/websocket"
)

const broadcastQueueSize = 256

// Annotator draws a retained frame's OCR boxes onto its full image.
type Annotator interface {
	Annotate(full []byte, frame model.FrameData) ([]byte, error)
}

// HubService fans scan state updates and debug frames out to every connected
// viewer.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
	annotator  Annotator
}

// NewHubService creates a hub. annotator may be nil, in which case debug
// frames carry the square crop unchanged.
func NewHubService(logger *logger.Logger, annotator Annotator) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueueSize),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
		annotator:  annotator,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every
// viewer connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", count)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a viewer. After the hub stopped the connection is closed
// instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for every viewer. It never blocks a scan: when
// the queue is full the message is dropped.
func (h *HubService) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warning("Viewer broadcast queue full - dropping message")
	}
}

// PublishStateUpdate broadcasts a session's state.
func (h *HubService) PublishStateUpdate(update dto.StateUpdate) {
	update.Type = dto.TypeState
	data, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("Error encoding state update: %v", err)
		return
	}
	h.Broadcast(data)
}

// PublishDebugFrames broadcasts the frames a session retained for verification.
func (h *HubService) PublishDebugFrames(sessionID string, frames []model.FrameData) {
	for i, frame := range frames {
		msg := dto.DebugFrame{
			Type:              dto.TypeDebug,
			SessionID:         sessionID,
			Position:          i,
			Sequence:          frame.Sequence,
			CenteredCardState: frame.CenteredCardState.String(),
			OcrSuccess:        frame.OcrSuccess,
			FlashForcedOn:     frame.FlashForcedOn,
			LastFour:          frame.LastFour,
		}
		if img := h.debugImage(frame); len(img) > 0 {
			msg.Image = base64.StdEncoding.EncodeToString(img)
		}

		data, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("Error encoding debug frame: %v", err)
			continue
		}
		h.Broadcast(data)
	}
}

func (h *HubService) debugImage(frame model.FrameData) []byte {
	if h.annotator != nil && len(frame.FullImage) > 0 {
		annotated, err := h.annotator.Annotate(frame.FullImage, frame)
		if err == nil {
			return annotated
		}
		h.logger.Warning("Could not annotate frame %d: %v", frame.Sequence, err)
	}
	return frame.SquareImage
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
