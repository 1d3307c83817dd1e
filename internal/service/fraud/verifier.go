package fraud

import (
	"context"

	"cardscan/internal/model"
)

// Verifier submits a finished session's frames for fraud scoring.
type Verifier interface {
	Verify(ctx context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error)

func (f VerifierFunc) Verify(ctx context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error) {
	return f(ctx, frames, stats)
}

// NopVerifier stands in for the remote fraud check, which has no protocol yet.
// Every session comes back unverified.
type NopVerifier struct{}

func (NopVerifier) Verify(_ context.Context, frames []model.FrameData, stats model.ScanStats) (*model.VerificationResult, error) {
	return &model.VerificationResult{
		SessionID:  stats.SessionID,
		Status:     model.VerificationUnverified,
		FrameCount: len(frames),
	}, nil
}

// DebugSink receives a copy of the drained frames when image retention for
// debugging is on.
type DebugSink interface {
	PublishDebugFrames(sessionID string, frames []model.FrameData)
}
