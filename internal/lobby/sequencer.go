package lobby

import (
	"errors"
	"time"
)

var (
	ErrCountdownRunning   = errors.New("countdown already running")
	ErrGameAlreadyStarted = errors.New("game already started")
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseCountdown Phase = "countdown"
	PhaseStarted   Phase = "started"
)

// Sequencer drives Idle -> Countdown -> Started for a lobby. Each countdown
// gets a new generation so a stale timer fire can be told apart from the
// live one.
type Sequencer struct {
	phase  Phase
	gameID int
	gen    uint64
	timer  *time.Timer
}

func (s *Sequencer) Phase() Phase {
	if s.phase == "" {
		return PhaseIdle
	}
	return s.phase
}

func (s *Sequencer) GameID() int { return s.gameID }

// Begin moves into Countdown for gameID and returns the generation the
// timer must report back with.
func (s *Sequencer) Begin(gameID int) (uint64, error) {
	switch s.Phase() {
	case PhaseCountdown:
		return 0, ErrCountdownRunning
	case PhaseStarted:
		if s.gameID == gameID {
			return 0, ErrGameAlreadyStarted
		}
	}
	s.phase = PhaseCountdown
	s.gameID = gameID
	s.gen++
	return s.gen, nil
}

// Arm attaches the countdown timer so it can be stopped on shutdown.
func (s *Sequencer) Arm(t *time.Timer) { s.timer = t }

// Fire completes the countdown of generation gen. ok is false for a stale or
// unexpected fire.
func (s *Sequencer) Fire(gen uint64) (gameID int, ok bool) {
	if s.Phase() != PhaseCountdown || gen != s.gen {
		return 0, false
	}
	s.phase = PhaseStarted
	s.timer = nil
	return s.gameID, true
}

// Cancel stops a pending countdown timer. There is no client-facing cancel;
// this only runs when the lobby shuts down.
func (s *Sequencer) Cancel() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.Phase() == PhaseCountdown {
		s.phase = PhaseIdle
		s.gen++
	}
}
