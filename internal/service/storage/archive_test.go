package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/repository/sqlite"
	"cardscan/internal/service/fraud"
)

func newArchive(t *testing.T, next fraud.Verifier) (*ArchiveService, *sqlite.ScanRepository, *sqlite.FrameRepository, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	scans := sqlite.NewScanRepository(db)
	frames := sqlite.NewFrameRepository(db)
	cfg := &config.Config{FrameDirectory: filepath.Join(dir, "frames")}

	return NewArchiveService(cfg, logger.NewWriter(&bytes.Buffer{}), scans, frames, next), scans, frames, cfg.FrameDirectory
}

func TestArchiveService_PersistsFramesAndScan(t *testing.T) {
	archive, scans, frames, framesDir := newArchive(t, nil)
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	drained := []model.FrameData{
		{Sequence: 3, FlashForcedOn: true, CenteredCardState: model.NonNumberSide, SquareImage: []byte{0xFF, 0xD8, 0xFF, 0xD9}},
		{Sequence: 7, OcrSuccess: true, LastFour: "4242", Bin: "424242", Expiry: &model.Expiry{Month: 4, Year: 2029},
			CenteredCardState: model.NumberSide, FullImage: []byte{0xFF, 0xD8, 0x00, 0xFF, 0xD9}},
	}
	stats := model.ScanStats{
		SessionID:   "scan-1",
		Profile:     model.ProfileFast,
		Requirement: model.Requirement{LastFour: "4242"},
		StartedAt:   start,
		CompletedAt: start.Add(2 * time.Second),
		FinalState:  "finished",
		FrameCount:  20,
	}

	result, err := archive.Verify(context.Background(), drained, stats)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !result.Archived || result.Status != model.VerificationUnverified || result.FrameCount != 2 {
		t.Errorf("Unexpected result: %+v", result)
	}

	scan, err := scans.GetByID("scan-1")
	if err != nil || scan == nil {
		t.Fatalf("Expected archived scan, got (%v, %v)", scan, err)
	}
	if scan.RequiredLastFour != "4242" || scan.VerificationStatus != model.VerificationUnverified {
		t.Errorf("Unexpected scan record: %+v", scan)
	}

	records, err := frames.GetByScanID("scan-1")
	if err != nil {
		t.Fatalf("GetByScanID failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 frame records, got %d", len(records))
	}
	if records[0].Sequence != 3 || records[0].SquarePath == "" || records[0].FullPath != "" {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if records[1].Expiry != "04/29" || records[1].CenteredCardState != "number_side" {
		t.Errorf("Unexpected second record: %+v", records[1])
	}

	data, err := os.ReadFile(filepath.Join(framesDir, records[1].FullPath))
	if err != nil {
		t.Fatalf("Full image not written: %v", err)
	}
	if !bytes.Equal(data, drained[1].FullImage) {
		t.Error("Full image content mismatch")
	}
}

func TestArchiveService_DelegatesVerdict(t *testing.T) {
	next := fraud.VerifierFunc(func(_ context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error) {
		return &model.VerificationResult{SessionID: stats.SessionID, Status: model.VerificationRejected, FrameCount: len(frames)}, nil
	})
	archive, scans, _, _ := newArchive(t, next)

	result, err := archive.Verify(context.Background(), nil, model.ScanStats{SessionID: "scan-2", Profile: model.ProfileAccurate})
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.Status != model.VerificationRejected || !result.Archived {
		t.Errorf("Unexpected result: %+v", result)
	}

	scan, _ := scans.GetByID("scan-2")
	if scan == nil || scan.VerificationStatus != model.VerificationRejected {
		t.Errorf("Stored verdict should match the verifier, got %+v", scan)
	}
}

func TestArchiveService_VerifierErrorSkipsArchive(t *testing.T) {
	boom := errors.New("boom")
	next := fraud.VerifierFunc(func(context.Context, []model.FrameData, model.ScanStats) (*model.VerificationResult, error) {
		return nil, boom
	})
	archive, scans, _, _ := newArchive(t, next)

	if _, err := archive.Verify(context.Background(), nil, model.ScanStats{SessionID: "scan-3"}); !errors.Is(err, boom) {
		t.Fatalf("Expected verifier error, got %v", err)
	}
	if scan, _ := scans.GetByID("scan-3"); scan != nil {
		t.Error("Scan should not be archived when verification fails")
	}
}

func TestArchiveService_DuplicateSessionNotArchived(t *testing.T) {
	archive, _, _, _ := newArchive(t, nil)
	stats := model.ScanStats{SessionID: "scan-4", Profile: model.ProfileFast}

	if first, _ := archive.Verify(context.Background(), nil, stats); !first.Archived {
		t.Fatal("First archive should succeed")
	}
	second, err := archive.Verify(context.Background(), nil, stats)
	if err != nil {
		t.Fatalf("Archive failure must not fail verification: %v", err)
	}
	if second.Archived {
		t.Error("Duplicate session should not report Archived")
	}
}

func TestArchiveService_RejectsEscapingSessionID(t *testing.T) {
	archive, scans, _, framesDir := newArchive(t, nil)
	drained := []model.FrameData{{Sequence: 1, SquareImage: []byte{0xFF, 0xD8, 0xFF, 0xD9}}}

	result, err := archive.Verify(context.Background(), drained, model.ScanStats{SessionID: "../escaped"})
	if err != nil {
		t.Fatalf("Archive failure must not fail verification: %v", err)
	}
	if result.Archived {
		t.Error("Escaping session id must not be archived")
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(framesDir), "escaped")); !os.IsNotExist(err) {
		t.Errorf("Nothing may be written outside the frame directory, stat err=%v", err)
	}
	if scan, _ := scans.GetByID("../escaped"); scan != nil {
		t.Error("Escaping session id must not be stored")
	}
}
