package statemachine

import (
	"time"

	"cardscan/internal/model"
)

// CardVerify is the fast completion policy: a matching card read held for
// OcrAndCardHold ends the scan.
type CardVerify struct {
	constraints Constraints
	clock       Clock
	session     Session
}

// NewCardVerify creates a fast machine in Initial. A nil clock uses time.Now.
func NewCardVerify(c Constraints, clock Clock) *CardVerify {
	if clock == nil {
		clock = time.Now
	}
	return &CardVerify{
		constraints: c,
		clock:       clock,
		session:     Session{State: Initial, EnteredAt: clock()},
	}
}

func (m *CardVerify) State() State {
	return m.session.State
}

func (m *CardVerify) Session() Session {
	return m.session
}

func (m *CardVerify) Constraints() Constraints {
	return m.constraints
}

func (m *CardVerify) Transition(p model.Prediction) (State, bool) {
	next, fired := m.Evaluate(m.session, p, m.clock())
	m.session = next
	return next.State, fired
}

func (m *CardVerify) Reset() Machine {
	return NewCardVerify(m.constraints, m.clock)
}

// Evaluate is the pure reducer behind Transition.
func (m *CardVerify) Evaluate(s Session, p model.Prediction, now time.Time) (Session, bool) {
	next, ok := nextFast(m.constraints, s.State, newFrame(m.constraints, s, p, now))
	if !ok {
		return s, false
	}
	return enter(s, next, now), true
}

// nextFast is the fast transition table. Rows are checked in order and the
// first match wins.
func nextFast(c Constraints, state State, f frame) (State, bool) {
	switch state {
	case Initial:
		switch {
		case f.hasOcr && f.hasCard && f.matches:
			return OcrAndCard, true
		case f.hasOcr && !f.matches:
			return OcrIncorrect, true
		case f.hasCard:
			return CardOnly, true
		case f.hasOcr && f.matches:
			return OcrOnly, true
		}

	case CardOnly:
		switch {
		case f.hasOcr && !f.matches:
			return OcrIncorrect, true
		case f.hasOcr && f.matches:
			return OcrAndCard, true
		}

	case OcrOnly:
		switch {
		case f.hasCard:
			return OcrAndCard, true
		case f.elapsed >= OcrOnlyWaitForCard:
			return OcrDelayForCard, true
		}

	case OcrAndCard:
		if f.elapsed >= OcrAndCardHold {
			return c.finish(), true
		}

	case OcrIncorrect:
		switch {
		case f.hasOcr && !f.hasCard && f.matches:
			return OcrOnly, true
		case f.hasOcr && f.hasCard && f.matches:
			return OcrAndCard, true
		case f.hasOcr && !f.matches:
			return OcrIncorrect, true
		case f.elapsed >= OcrIncorrectGrace:
			return Initial, true
		}

	case OcrDelayForCard:
		switch {
		case f.hasCard:
			return OcrAndCard, true
		case f.elapsed >= OcrDelayForCardTimeout:
			return c.finish(), true
		}

	case OcrForceFlash:
		if f.elapsed >= ForceFlashHold {
			return Finished, true
		}
	}

	return state, false
}
