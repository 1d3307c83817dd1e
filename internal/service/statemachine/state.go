package statemachine

import (
	"fmt"
	"time"

	"cardscan/internal/model"
)

// State is a step of the scan-completion loop.
type State int

const (
	Initial State = iota
	CardOnly
	OcrOnly
	OcrIncorrect
	OcrAndCard
	OcrDelayForCard
	NameAndExpiry
	OcrForceFlash
	Finished
)

var stateNames = map[State]string{
	Initial:         "initial",
	CardOnly:        "card_only",
	OcrOnly:         "ocr_only",
	OcrIncorrect:    "ocr_incorrect",
	OcrAndCard:      "ocr_and_card",
	OcrDelayForCard: "ocr_delay_for_card",
	NameAndExpiry:   "name_and_expiry",
	OcrForceFlash:   "ocr_force_flash",
	Finished:        "finished",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Time thresholds measured from entry into the current state.
const (
	OcrAndCardHold         = 1500 * time.Millisecond
	OcrOnlyWaitForCard     = 1500 * time.Millisecond
	OcrIncorrectGrace      = 2 * time.Second
	OcrDelayForCardTimeout = 2 * time.Second
	ForceFlashHold         = 1500 * time.Millisecond

	DefaultNameExpiryDuration = 4 * time.Second
)

// Constraints are fixed for the lifetime of a machine and survive Reset.
type Constraints struct {
	Requirement      model.Requirement
	FlashFlowEnabled bool
}

// Session is the complete mutable surface of a machine. The sticky flags only
// ever go from false to true.
type Session struct {
	State               State
	EnteredAt           time.Time
	HasNamePrediction   bool
	HasExpiryPrediction bool
}

// HasNameAndExpiry reports whether both secondary fields were ever seen.
func (s Session) HasNameAndExpiry() bool {
	return s.HasNamePrediction && s.HasExpiryPrediction
}

// Elapsed is the time spent in the current state as of now.
func (s Session) Elapsed(now time.Time) time.Duration {
	return now.Sub(s.EnteredAt)
}

// Clock returns the current time; tests substitute a fake.
type Clock func() time.Time

// Machine is the per-session completion policy. Transition must not be called
// concurrently for the same machine.
type Machine interface {
	// Transition evaluates one frame at the clock's current time and applies
	// the result. It returns the new state when a transition fired.
	Transition(p model.Prediction) (State, bool)
	State() State
	Session() Session
	// Reset returns a fresh machine in Initial with the same constraints.
	Reset() Machine
}

// frame is the per-frame evidence every transition guard reads.
type frame struct {
	elapsed time.Duration
	hasOcr  bool
	hasCard bool
	matches bool
}

func newFrame(c Constraints, s Session, p model.Prediction, now time.Time) frame {
	return frame{
		elapsed: s.Elapsed(now),
		hasOcr:  p.HasOcr(),
		hasCard: p.HasCard(),
		matches: c.Requirement.Matches(p.Number),
	}
}

// finish is where a satisfied session goes: through the flash capture phase
// when that flow is enabled.
func (c Constraints) finish() State {
	if c.FlashFlowEnabled {
		return OcrForceFlash
	}
	return Finished
}

// enter applies a fired transition: the state changes and its timer restarts.
func enter(s Session, next State, now time.Time) Session {
	s.State = next
	s.EnteredAt = now
	return s
}

// New builds the machine for a scan profile.
func New(profile model.Profile, c Constraints, nameExpiryDuration time.Duration, clock Clock) Machine {
	if profile == model.ProfileAccurate {
		return NewCardVerifyAccurate(c, nameExpiryDuration, clock)
	}
	return NewCardVerify(c, clock)
}
