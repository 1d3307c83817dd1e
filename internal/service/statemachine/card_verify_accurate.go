package statemachine

import (
	"time"

	"cardscan/internal/model"
)

// CardVerifyAccurate extends the fast policy: before finishing it waits up to
// NameExpiryDuration for a name and an expiry to have been read at least once.
type CardVerifyAccurate struct {
	constraints        Constraints
	nameExpiryDuration time.Duration
	clock              Clock
	session            Session
}

// NewCardVerifyAccurate creates an accurate machine in Initial. A zero
// nameExpiryDuration uses DefaultNameExpiryDuration.
func NewCardVerifyAccurate(c Constraints, nameExpiryDuration time.Duration, clock Clock) *CardVerifyAccurate {
	if clock == nil {
		clock = time.Now
	}
	if nameExpiryDuration <= 0 {
		nameExpiryDuration = DefaultNameExpiryDuration
	}
	return &CardVerifyAccurate{
		constraints:        c,
		nameExpiryDuration: nameExpiryDuration,
		clock:              clock,
		session:            Session{State: Initial, EnteredAt: clock()},
	}
}

func (m *CardVerifyAccurate) State() State {
	return m.session.State
}

func (m *CardVerifyAccurate) Session() Session {
	return m.session
}

func (m *CardVerifyAccurate) NameExpiryDuration() time.Duration {
	return m.nameExpiryDuration
}

func (m *CardVerifyAccurate) Transition(p model.Prediction) (State, bool) {
	next, fired := m.Evaluate(m.session, p, m.clock())
	m.session = next
	return next.State, fired
}

// Reset starts a new session: the sticky flags are cleared along with the
// state, only the constraints carry over.
func (m *CardVerifyAccurate) Reset() Machine {
	return NewCardVerifyAccurate(m.constraints, m.nameExpiryDuration, m.clock)
}

// Evaluate is the pure reducer behind Transition. The returned session has the
// sticky flags folded in even when no transition fired.
func (m *CardVerifyAccurate) Evaluate(s Session, p model.Prediction, now time.Time) (Session, bool) {
	if s.State == Finished {
		return s, false
	}

	s.HasNamePrediction = s.HasNamePrediction || p.Name != ""
	s.HasExpiryPrediction = s.HasExpiryPrediction || p.Expiry != nil

	next, ok := m.next(s, newFrame(m.constraints, s, p, now))
	if !ok {
		return s, false
	}
	return enter(s, next, now), true
}

func (m *CardVerifyAccurate) next(s Session, f frame) (State, bool) {
	complete := s.HasNameAndExpiry()

	switch s.State {
	case OcrAndCard:
		if f.elapsed >= OcrAndCardHold {
			if complete {
				return m.constraints.finish(), true
			}
			return NameAndExpiry, true
		}
		return s.State, false

	case OcrDelayForCard:
		switch {
		case f.hasCard:
			return OcrAndCard, true
		case f.elapsed >= OcrDelayForCardTimeout && complete:
			return m.constraints.finish(), true
		case f.elapsed >= OcrDelayForCardTimeout:
			return NameAndExpiry, true
		}
		return s.State, false

	case NameAndExpiry:
		if complete || f.elapsed >= m.nameExpiryDuration {
			return m.constraints.finish(), true
		}
		return s.State, false
	}

	return nextFast(m.constraints, s.State, f)
}
