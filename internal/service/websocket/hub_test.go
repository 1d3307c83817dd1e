package websocket

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"

	"github.com/gorilla/websocket"
)

type stubAnnotator struct {
	err error
}

func (a stubAnnotator) Annotate(full []byte, _ model.FrameData) ([]byte, error) {
	if a.err != nil {
		return nil, a.err
	}
	return append([]byte("annotated:"), full...), nil
}

func newTestHub(annotator Annotator) *HubService {
	return NewHubService(logger.NewWriter(&bytes.Buffer{}), annotator)
}

func TestHub_PublishDebugFramesPrefersAnnotatedFullImage(t *testing.T) {
	hub := newTestHub(stubAnnotator{})

	hub.PublishDebugFrames("s1", []model.FrameData{
		{Sequence: 4, FullImage: []byte("full"), SquareImage: []byte("square"), OcrSuccess: true, LastFour: "4242"},
		{Sequence: 5, SquareImage: []byte("square")},
	})

	var first, second dto.DebugFrame
	if err := json.Unmarshal(<-hub.broadcast, &first); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if err := json.Unmarshal(<-hub.broadcast, &second); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}

	if first.Type != dto.TypeDebug || first.SessionID != "s1" || first.Position != 0 || first.LastFour != "4242" {
		t.Errorf("Unexpected first frame: %+v", first)
	}
	if img, _ := base64.StdEncoding.DecodeString(first.Image); string(img) != "annotated:full" {
		t.Errorf("Expected annotated image, got %q", img)
	}
	if img, _ := base64.StdEncoding.DecodeString(second.Image); string(img) != "square" {
		t.Errorf("Expected square crop fallback, got %q", img)
	}
}

func TestHub_AnnotationFailureFallsBackToSquare(t *testing.T) {
	hub := newTestHub(stubAnnotator{err: errors.New("decode")})

	hub.PublishDebugFrames("s1", []model.FrameData{{FullImage: []byte("full"), SquareImage: []byte("square")}})

	var frame dto.DebugFrame
	if err := json.Unmarshal(<-hub.broadcast, &frame); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if img, _ := base64.StdEncoding.DecodeString(frame.Image); string(img) != "square" {
		t.Errorf("Expected square crop, got %q", img)
	}
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := newTestHub(nil)

	for i := 0; i < broadcastQueueSize+10; i++ {
		hub.Broadcast([]byte("x"))
	}
	if len(hub.broadcast) != broadcastQueueSize {
		t.Errorf("Expected full queue of %d, got %d", broadcastQueueSize, len(hub.broadcast))
	}
}

func TestHub_DeliversStateUpdatesToViewers(t *testing.T) {
	hub := newTestHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for hub.GetClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Viewer never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.PublishStateUpdate(dto.StateUpdate{SessionID: "s1", State: "ocr_and_card", Changed: true})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}

	var update dto.StateUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if update.Type != dto.TypeState || update.State != "ocr_and_card" || !update.Changed {
		t.Errorf("Unexpected update: %+v", update)
	}
}
