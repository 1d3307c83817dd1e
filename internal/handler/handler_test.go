package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/repository/sqlite"
	"cardscan/internal/service/scan"

	ws "github.com/gorilla/websocket"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	cfg    *config.Config
	logger *logger.Logger
	scans  *sqlite.ScanRepository
	frames *sqlite.FrameRepository
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return &env{
		cfg: &config.Config{
			FrameDirectory:                        filepath.Join(dir, "frames"),
			LogDirectory:                          filepath.Join(dir, "logs"),
			DefaultProfile:                        "fast",
			RequireOcrBeforeCapturingUxOnlyFrames: true,
			SessionTimeout:                        time.Minute,
			ReapInterval:                          time.Second,
		},
		logger: logger.NewWriter(&bytes.Buffer{}),
		scans:  sqlite.NewScanRepository(db),
		frames: sqlite.NewFrameRepository(db),
	}
}

func TestAtoiDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"10", 5, 10},
		{"1", 0, 1},
		{"", 5, 5},
		{"abc", 10, 10},
		{"-1", 5, 5},
		{"0", 5, 5},
		{"12.5", 5, 5},
	}

	for _, tt := range tests {
		if result := atoiDefault(tt.input, tt.def); result != tt.expected {
			t.Errorf("atoiDefault(%q, %d) = %d, expected %d", tt.input, tt.def, result, tt.expected)
		}
	}
}

func TestParseDate(t *testing.T) {
	if got := parseDate("2024-05-01"); got.Year() != 2024 || got.Month() != time.May || got.Day() != 1 {
		t.Errorf("Unexpected date: %v", got)
	}
	if !parseDate("01-05-2024").IsZero() || !parseDate("").IsZero() {
		t.Error("Invalid dates should parse to zero")
	}
}

func TestFramePath(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"scan-1/00_0001_square.jpg", true},
		{"scan-1", true},
		{"../secret.txt", false},
		{"scan-1/../../secret.txt", false},
		{".", false},
	}
	for _, tt := range tests {
		if _, ok := framePath("frames", tt.name); ok != tt.ok {
			t.Errorf("framePath(%q) ok = %v, expected %v", tt.name, ok, tt.ok)
		}
	}
}

func TestGetSessionsHandler(t *testing.T) {
	e := newEnv(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := &model.ScanRecord{ID: id, Profile: model.ProfileFast, StartedAt: base.Add(time.Duration(i) * time.Hour),
			CompletedAt: base.Add(time.Duration(i)*time.Hour + 2*time.Second), FinalState: "finished"}
		if err := e.scans.Insert(rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions?limit=2&page=1", nil)
	rr := httptest.NewRecorder()
	GetSessionsHandler(e.cfg, e.logger, e.scans)(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var body struct {
		Sessions []struct {
			ID         string `json:"id"`
			DurationMs int64  `json:"duration_ms"`
		} `json:"sessions"`
		Length     int `json:"length"`
		TotalPages int `json:"totalPages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if body.Length != 3 || body.TotalPages != 2 || len(body.Sessions) != 2 {
		t.Errorf("Unexpected page: %+v", body)
	}
	if body.Sessions[0].ID != "c" || body.Sessions[0].DurationMs != 2000 {
		t.Errorf("Expected newest session first with duration, got %+v", body.Sessions[0])
	}
}

func TestGetSessionFramesHandler(t *testing.T) {
	e := newEnv(t)
	if err := e.scans.Insert(&model.ScanRecord{ID: "a", Profile: model.ProfileFast, StartedAt: time.Now(), CompletedAt: time.Now()}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := e.frames.InsertBatch([]model.FrameRecord{{ScanID: "a", Sequence: 3, CenteredCardState: "number_side"}}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}
	h := GetSessionFramesHandler(e.logger, e.scans, e.frames)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/frames?id=a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	var body dto.FramesData
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(body.Frames) != 1 || body.Frames[0].Sequence != 3 {
		t.Errorf("Unexpected frames: %+v", body.Frames)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/frames?id=missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/frames", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestDeleteSessionHandler(t *testing.T) {
	e := newEnv(t)
	if err := e.scans.Insert(&model.ScanRecord{ID: "a", Profile: model.ProfileFast, StartedAt: time.Now(), CompletedAt: time.Now()}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	dir := filepath.Join(e.cfg.FrameDirectory, "a")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, "00_0001_square.jpg"), []byte{0xFF, 0xD8}, 0644)

	h := DeleteSessionHandler(e.cfg, e.logger, e.scans)

	rr := httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodGet, "/api/sessions/delete?id=a", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/delete?id=a", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if scan, _ := e.scans.GetByID("a"); scan != nil {
		t.Error("Scan should be deleted")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("Frame directory should be removed")
	}

	rr = httptest.NewRecorder()
	h(rr, httptest.NewRequest(http.MethodPost, "/api/sessions/delete?id=..", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for traversal, got %d", rr.Code)
	}
}

func TestViewFrameHandler(t *testing.T) {
	e := newEnv(t)
	dir := filepath.Join(e.cfg.FrameDirectory, "a")
	os.MkdirAll(dir, 0755)
	os.WriteFile(filepath.Join(dir, "f.jpg"), []byte{0xFF, 0xD8, 0xFF, 0xD9}, 0644)

	tests := []struct {
		target string
		want   int
	}{
		{"/api/frames/view?file=a/f.jpg", http.StatusOK},
		{"/api/frames/view?file=a/missing.jpg", http.StatusNotFound},
		{"/api/frames/view?file=../../etc/passwd", http.StatusBadRequest},
		{"/api/frames/view", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := httptest.NewRecorder()
		ViewFrameHandler(e.cfg)(rr, httptest.NewRequest(http.MethodGet, tt.target, nil))
		if rr.Code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.want, rr.Code)
		}
	}
}

func TestShowLogsHandler(t *testing.T) {
	e := newEnv(t)
	os.MkdirAll(e.cfg.LogDirectory, 0755)
	os.WriteFile(filepath.Join(e.cfg.LogDirectory, "error.log"), []byte("boom\n"), 0644)

	rr := httptest.NewRecorder()
	ShowLogsHandler(e.cfg, "error")(rr, httptest.NewRequest(http.MethodGet, "/logs/error", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "boom") {
		t.Errorf("Expected error log content, got %d %q", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	ShowLogsHandler(e.cfg, "info")(rr, httptest.NewRequest(http.MethodGet, "/logs/info", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing log, got %d", rr.Code)
	}
}

func TestScanOptions(t *testing.T) {
	cfg := &config.Config{DefaultProfile: "accurate", FlashFlowEnabled: true}

	opts, err := scanOptions(httptest.NewRequest(http.MethodGet, "/api/scan?last4=4242&flash=false", nil), cfg)
	if err != nil {
		t.Fatalf("scanOptions failed: %v", err)
	}
	if opts.Profile != model.ProfileAccurate || opts.Requirement.LastFour != "4242" || opts.FlashFlowEnabled {
		t.Errorf("Unexpected options: %+v", opts)
	}

	for _, target := range []string{"/api/scan?last4=42", "/api/scan?bin=abcdef", "/api/scan?flash=maybe"} {
		if _, err := scanOptions(httptest.NewRequest(http.MethodGet, target, nil), cfg); err == nil {
			t.Errorf("%s: expected error", target)
		}
	}
}

func TestScanWebsocketHandler_CompletesScan(t *testing.T) {
	e := newEnv(t)
	clock := &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	manager := scan.NewManager(e.cfg, e.logger, scan.Deps{Clock: clock.Now})
	t.Cleanup(manager.Shutdown)

	server := httptest.NewServer(ScanWebsocketHandler(manager, e.cfg, e.logger))
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	if _, resp, err := ws.DefaultDialer.Dial(url+"?last4=12", nil); err == nil || resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Expected handshake rejection for bad last4, got %v", err)
	}

	conn, _, err := ws.DefaultDialer.Dial(url+"?last4=4242", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var update dto.StateUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if update.State != "initial" || update.SessionID == "" {
		t.Fatalf("Unexpected greeting: %+v", update)
	}
	id := update.SessionID

	frame := dto.FrameMessage{Type: dto.MessageFrame, Number: "4242424242424242", CenteredCardState: "number_side"}
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if update.State != "ocr_and_card" || !update.Changed {
		t.Fatalf("Expected ocr_and_card, got %+v", update)
	}

	if err := conn.WriteMessage(ws.TextMessage, []byte("{")); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if update.Error == "" {
		t.Error("Expected decode error in update")
	}

	clock.Advance(2 * time.Second)
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	update = dto.StateUpdate{}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if !update.Finished || update.Verification == nil || update.Verification.Status != model.VerificationUnverified {
		t.Fatalf("Expected finished update with verification, got %+v", update)
	}
	if update.SessionID != id {
		t.Errorf("Session id changed: %s != %s", update.SessionID, id)
	}

	if _, _, err := conn.ReadMessage(); !ws.IsCloseError(err, ws.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
}

func TestSendAndClose_LogWriteErrors(t *testing.T) {
	var logs bytes.Buffer
	log := logger.NewWriter(&logs)

	type outcome struct {
		sent bool
	}
	results := make(chan outcome, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			results <- outcome{}
			return
		}
		conn.Close()
		sent := send(conn, log, "scan-1", dto.StateUpdate{Type: dto.TypeState})
		closeNormal(conn, log, "scan-1", "scan finished")
		results <- outcome{sent: sent}
	}))
	defer server.Close()

	conn, _, err := ws.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	select {
	case res := <-results:
		if res.sent {
			t.Error("send on a closed connection should report failure")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Handler did not finish")
	}

	out := logs.String()
	for _, want := range []string{"Scan scan-1 write error", "Scan scan-1 close error"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected log %q, got: %s", want, out)
		}
	}
}
