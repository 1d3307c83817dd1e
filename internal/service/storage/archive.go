package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"cardscan/internal/config"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/repository"
	"cardscan/internal/service/fraud"
)

// ArchiveService writes a finished session's retained frames to disk and the
// database, then hands them to the next verifier.
type ArchiveService struct {
	framesDir string
	logger    *logger.Logger
	scanRepo  repository.ScanRepository
	frameRepo repository.FrameRepository
	next      fraud.Verifier
}

// NewArchiveService creates an ArchiveService. A nil next verifier behaves like
// fraud.NopVerifier.
func NewArchiveService(config *config.Config, logger *logger.Logger, scanRepo repository.ScanRepository,
	frameRepo repository.FrameRepository, next fraud.Verifier) *ArchiveService {
	if next == nil {
		next = fraud.NopVerifier{}
	}
	return &ArchiveService{
		framesDir: config.FrameDirectory,
		logger:    logger,
		scanRepo:  scanRepo,
		frameRepo: frameRepo,
		next:      next,
	}
}

// Verify runs the next verifier first so the stored record carries its
// verdict. Archiving failures are logged and leave Archived false; they never
// fail the verification.
func (s *ArchiveService) Verify(ctx context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error) {
	result, err := s.next.Verify(ctx, frames, stats)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &model.VerificationResult{SessionID: stats.SessionID, Status: model.VerificationUnverified, FrameCount: len(frames)}
	}

	if err := s.archive(frames, stats, result.Status); err != nil {
		s.logger.Error("Error archiving scan %s: %v", stats.SessionID, err)
		return result, nil
	}

	result.Archived = true
	return result, nil
}

func (s *ArchiveService) archive(frames []model.FrameData, stats model.ScanStats, status model.VerificationStatus) error {
	if !model.SafeSessionID(stats.SessionID) {
		return fmt.Errorf("session id %q cannot name a frame directory", stats.SessionID)
	}
	scanDir := filepath.Join(s.framesDir, stats.SessionID)
	if err := os.MkdirAll(scanDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	records := make([]model.FrameRecord, 0, len(frames))
	savedImages := 0
	for i, frame := range frames {
		record := model.FrameRecord{
			ScanID:            stats.SessionID,
			Position:          i,
			Sequence:          frame.Sequence,
			CapturedAt:        frame.CapturedAt,
			Bin:               frame.Bin,
			LastFour:          frame.LastFour,
			CenteredCardState: frame.CenteredCardState.String(),
			OcrSuccess:        frame.OcrSuccess,
			FlashForcedOn:     frame.FlashForcedOn,
			Confidence:        frame.Confidence.Ocr,
			NumberBoxes:       frame.NumberBoxes,
		}
		if frame.Expiry != nil {
			record.Expiry = frame.Expiry.String()
		}

		if len(frame.SquareImage) > 0 {
			name := fmt.Sprintf("%02d_%04d_square.jpg", i, frame.Sequence)
			if err := os.WriteFile(filepath.Join(scanDir, name), frame.SquareImage, 0644); err != nil {
				s.logger.Error("Error saving image %s: %v", name, err)
			} else {
				record.SquarePath = filepath.Join(stats.SessionID, name)
				savedImages++
			}
		}
		if len(frame.FullImage) > 0 {
			name := fmt.Sprintf("%02d_%04d_full.jpg", i, frame.Sequence)
			if err := os.WriteFile(filepath.Join(scanDir, name), frame.FullImage, 0644); err != nil {
				s.logger.Error("Error saving image %s: %v", name, err)
			} else {
				record.FullPath = filepath.Join(stats.SessionID, name)
				savedImages++
			}
		}

		records = append(records, record)
	}

	if s.scanRepo != nil {
		scan := &model.ScanRecord{
			ID:                 stats.SessionID,
			Profile:            stats.Profile,
			RequiredBin:        stats.Requirement.Bin,
			RequiredLastFour:   stats.Requirement.LastFour,
			StartedAt:          stats.StartedAt,
			CompletedAt:        stats.CompletedAt,
			FinalState:         stats.FinalState,
			FrameCount:         stats.FrameCount,
			OcrFrameCount:      stats.OcrFrameCount,
			CardFrameCount:     stats.CardFrameCount,
			VerificationStatus: status,
		}
		if err := s.scanRepo.Insert(scan); err != nil {
			return err
		}
	}

	if s.frameRepo != nil && len(records) > 0 {
		if err := s.frameRepo.InsertBatch(records); err != nil {
			return err
		}
	}

	s.logger.Info("Archived scan %s: %d frames, %d images", stats.SessionID, len(records), savedImages)
	return nil
}
