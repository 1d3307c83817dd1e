package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cardscan/internal/config"
	"cardscan/internal/dto"
	"cardscan/internal/logger"
	"cardscan/internal/model"
	"cardscan/internal/service/fraud"
	"cardscan/internal/service/statemachine"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound = errors.New("scan session not found")
	ErrSessionFinished = errors.New("scan session finished")
	ErrSessionExists   = errors.New("scan session already exists")
	ErrInvalidID       = errors.New("invalid scan session id")
)

// Cropper cuts the card out of a full frame.
type Cropper interface {
	Crop(full []byte, box model.Box) ([]byte, error)
}

// Notifier receives state changes for viewers.
type Notifier interface {
	PublishStateUpdate(update dto.StateUpdate)
}

// Options configure one session.
type Options struct {
	// ID is generated when empty.
	ID               string
	Profile          model.Profile
	Requirement      model.Requirement
	FlashFlowEnabled bool
}

// Deps are the collaborators shared by every session. All are optional.
type Deps struct {
	Verifier fraud.Verifier
	Debug    fraud.DebugSink
	Cropper  Cropper
	Notifier Notifier
	Clock    statemachine.Clock
}

// Manager owns the live scan sessions.
type Manager struct {
	deps   Deps
	logger *logger.Logger

	requireOcr         bool
	debugRetainImages  bool
	nameExpiryDuration time.Duration
	sessionTimeout     time.Duration
	reapInterval       time.Duration

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg *config.Config, logger *logger.Logger, deps Deps) *Manager {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Manager{
		deps:               deps,
		logger:             logger,
		requireOcr:         cfg.RequireOcrBeforeCapturingUxOnlyFrames,
		debugRetainImages:  cfg.DebugRetainImages,
		nameExpiryDuration: cfg.NameExpiryDuration,
		sessionTimeout:     cfg.SessionTimeout,
		reapInterval:       cfg.ReapInterval,
		sessions:           make(map[string]*Session),
	}
}

// Start creates and registers a session.
func (m *Manager) Start(opts Options) (*Session, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if !model.SafeSessionID(opts.ID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, opts.ID)
	}
	if opts.Profile == "" {
		opts.Profile = model.ProfileFast
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[opts.ID]; exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionExists, opts.ID)
	}

	now := m.deps.Clock()
	constraints := statemachine.Constraints{
		Requirement:      opts.Requirement,
		FlashFlowEnabled: opts.FlashFlowEnabled,
	}

	s := &Session{
		ID:      opts.ID,
		opts:    opts,
		machine: statemachine.New(opts.Profile, constraints, m.nameExpiryDuration, m.deps.Clock),
		data: fraud.NewData(opts.ID, fraud.Options{
			RequireOcrBeforeCapturingUxOnlyFrames: m.requireOcr,
			DebugRetainImages:                     m.debugRetainImages,
			Verifier:                              m.deps.Verifier,
			Debug:                                 m.deps.Debug,
			Logger:                                m.logger,
		}),
		clock:       m.deps.Clock,
		logger:      m.logger,
		cropper:     m.deps.Cropper,
		notifier:    m.deps.Notifier,
		onDone:      m.remove,
		lastFrameAt: now,
		stats: model.ScanStats{
			SessionID:   opts.ID,
			Profile:     opts.Profile,
			Requirement: opts.Requirement,
			StartedAt:   now,
		},
	}
	m.sessions[s.ID] = s

	m.logger.Info("Scan %s started (profile %s, flash flow %t)", s.ID, opts.Profile, opts.FlashFlowEnabled)
	return s, nil
}

// Get returns a live session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End abandons a live session without verifying it.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.abandon()
	m.logger.Info("Scan %s ended before completion", id)
	return nil
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
}

// HandleMessage dispatches a pipeline message to its session.
func (m *Manager) HandleMessage(ctx context.Context, msg *dto.FrameMessage, flashFlowEnabled bool) (Update, error) {
	switch msg.Type {
	case dto.MessageStart:
		s, err := m.Start(Options{
			ID:               msg.SessionID,
			Profile:          model.ParseProfile(msg.Profile, model.ProfileFast),
			Requirement:      msg.Requirement(),
			FlashFlowEnabled: flashFlowEnabled || msg.Flash,
		})
		if err != nil {
			return Update{}, err
		}
		return Update{SessionID: s.ID, State: statemachine.Initial}, nil

	case dto.MessageFrame, "":
		s, err := m.Get(msg.SessionID)
		if err != nil {
			return Update{}, err
		}
		return s.HandleFrame(ctx, msg.Prediction(), msg.Capture(time.Time{}))

	case dto.MessageEnd:
		return Update{SessionID: msg.SessionID}, m.End(msg.SessionID)

	default:
		return Update{}, fmt.Errorf("unknown message type %q", msg.Type)
	}
}

// Run reaps sessions that stopped receiving frames until ctx is done, then
// abandons the rest. Abandoned sessions are never verified. Reaping is off when
// the interval or timeout is not positive.
func (m *Manager) Run(ctx context.Context) {
	if m.reapInterval <= 0 || m.sessionTimeout <= 0 {
		<-ctx.Done()
		m.Shutdown()
		return
	}

	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Reap ends every session idle for longer than the session timeout and
// returns how many were ended.
func (m *Manager) Reap() int {
	now := m.deps.Clock()

	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	reaped := 0
	for _, s := range sessions {
		if now.Sub(s.idleSince()) <= m.sessionTimeout {
			continue
		}
		if err := m.End(s.ID); err == nil {
			m.logger.Warning("Scan %s timed out after %v without frames", s.ID, m.sessionTimeout)
			reaped++
		}
	}
	return reaped
}

// Shutdown abandons every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.abandon()
	}
	if len(sessions) > 0 {
		m.logger.Info("Abandoned %d scan sessions on shutdown", len(sessions))
	}
}
