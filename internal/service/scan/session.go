package scan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/service/fraud"
	"cardscan/internal/service/statemachine"
)

// Update is the outcome of one frame.
type Update struct {
	SessionID string
	State     statemachine.State
	Changed   bool
	Finished  bool
	// ForceFlash asks the capture side to turn the torch on.
	ForceFlash   bool
	Elapsed      time.Duration
	FrameCount   int
	Verification *model.VerificationResult
}

// DTO converts the update to its wire form.
func (u Update) DTO() dto.StateUpdate {
	return dto.StateUpdate{
		Type:         dto.TypeState,
		SessionID:    u.SessionID,
		State:        u.State.String(),
		Changed:      u.Changed,
		Finished:     u.Finished,
		ForceFlash:   u.ForceFlash,
		ElapsedMs:    u.Elapsed.Milliseconds(),
		FrameCount:   u.FrameCount,
		Verification: u.Verification,
	}
}

// Session drives one scan: every frame goes to the fraud buffer and then the
// completion state machine, until the machine finishes.
type Session struct {
	ID      string
	opts    Options
	machine statemachine.Machine
	data    *fraud.Data
	clock   statemachine.Clock

	logger   *logger.Logger
	cropper  Cropper
	notifier Notifier
	onDone   func(*Session)

	mu          sync.Mutex
	lastFrameAt time.Time
	stats       model.ScanStats
	finished    bool
	closed      bool
	result      *model.VerificationResult
}

// Options returns the options the session was started with.
func (s *Session) Options() Options {
	return s.opts
}

// State returns the machine's current state.
func (s *Session) State() statemachine.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.State()
}

// Result is the verification outcome once the session finished.
func (s *Session) Result() *model.VerificationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrameAt
}

// HandleFrame runs one iteration of the scan loop. When the machine reaches
// Finished the buffer is drained and verified, and the returned update
// carries the verification result.
func (s *Session) HandleFrame(ctx context.Context, p model.Prediction, c model.Capture) (Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return Update{}, ErrSessionFinished
	}
	if s.closed {
		return Update{}, ErrSessionNotFound
	}

	now := s.clock()
	s.lastFrameAt = now
	if c.CapturedAt.IsZero() {
		c.CapturedAt = now
	}
	c = s.crop(p, c)

	s.count(p, c)
	if p.HasOcr() {
		s.data.OnNumberRecognized(p, c)
	} else {
		s.data.OnFrameDetected(p, c)
	}

	prev := s.machine.State()
	state, changed := s.machine.Transition(p)
	if changed {
		s.logger.Debug("Scan %s: %s -> %s", s.ID, prev, state)
	}

	update := Update{
		SessionID:  s.ID,
		State:      state,
		Changed:    changed,
		ForceFlash: state == statemachine.OcrForceFlash,
		Elapsed:    s.machine.Session().Elapsed(now),
		FrameCount: s.stats.FrameCount,
	}

	if state != statemachine.Finished {
		if changed {
			s.notify(update)
		}
		return update, nil
	}

	update.Finished = true
	s.finished = true
	result, err := s.complete(ctx, now)
	update.Verification = result
	s.notify(update)
	if err != nil {
		return update, fmt.Errorf("failed to verify scan %s: %w", s.ID, err)
	}
	return update, nil
}

func (s *Session) count(p model.Prediction, c model.Capture) {
	s.stats.FrameCount++
	if p.HasOcr() {
		s.stats.OcrFrameCount++
	}
	if p.HasCard() {
		s.stats.CardFrameCount++
	}
	if c.FlashForcedOn {
		s.stats.FlashFrames++
	}
}

// crop fills in the square image from the full frame when the capture side
// only sent the latter.
func (s *Session) crop(p model.Prediction, c model.Capture) model.Capture {
	if s.cropper == nil || len(c.SquareImage) > 0 || len(c.FullImage) == 0 || p.CardBox.Empty() {
		return c
	}
	square, err := s.cropper.Crop(c.FullImage, p.CardBox)
	if err != nil {
		s.logger.Warning("Scan %s: could not crop frame: %v", s.ID, err)
		return c
	}
	c.SquareImage = square
	return c
}

func (s *Session) complete(ctx context.Context, now time.Time) (*model.VerificationResult, error) {
	stats := s.stats
	stats.CompletedAt = now
	stats.FinalState = statemachine.Finished.String()
	stats.Success = true

	// The machine already finished; a cancelled caller must not lose the
	// drained frames.
	result, err := s.data.OnScanComplete(context.WithoutCancel(ctx), stats)
	s.data.Close()
	s.result = result
	s.done()

	if err != nil {
		s.logger.Error("Scan %s verification failed: %v", s.ID, err)
		return nil, err
	}
	if result != nil {
		s.logger.Info("Scan %s finished in %v: %d frames seen, %d retained, %s",
			s.ID, stats.Duration(), stats.FrameCount, result.FrameCount, result.Status)
	}
	return result, nil
}

// abandon stops the session without verification.
func (s *Session) abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.closed {
		return
	}
	s.closed = true
	s.data.Close()
}

func (s *Session) done() {
	if s.onDone != nil {
		s.onDone(s)
	}
}

func (s *Session) notify(u Update) {
	if s.notifier != nil {
		s.notifier.PublishStateUpdate(u.DTO())
	}
}
