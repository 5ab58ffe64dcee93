package engine

import (
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quizchest/quizchest/go/internal/game/content"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	// ErrInvalidTransition means a command is not legal in the current
	// phase or came from the wrong team. Callers drop it silently; the
	// session is unchanged.
	ErrInvalidTransition = errors.New("command not valid in current phase")
	// ErrDuplicate means a reveal/score-once command was replayed. The
	// replay is a no-op and is not surfaced to participants.
	ErrDuplicate = errors.New("command already applied")
	// ErrInvalidBet means a bet outside [0, score] or from an ineligible
	// team.
	ErrInvalidBet = errors.New("bet not allowed")
)

// Engine drives a session through the turn state machine. It validates
// every command against the current phase and team ownership before
// touching state; an accepted mutation never partially applies. The
// engine assumes the host actor serializes all Apply calls.
type Engine struct {
	store *session.Store
	bank  *content.Bank
	cfg   models.GameConfig
	clock clockwork.Clock
}

// New creates an engine bound to a session store and its question bank.
func New(store *session.Store, bank *content.Bank, cfg models.GameConfig, clock clockwork.Clock) *Engine {
	return &Engine{store: store, bank: bank, cfg: cfg, clock: clock}
}

// Store exposes the underlying session store.
func (e *Engine) Store() *session.Store {
	return e.store
}

// Apply runs one command against the session. A nil return means state
// changed and a snapshot should be broadcast. ErrAlreadyClaimed is
// surfaced to the losing participant only; every other error leaves the
// session untouched and is invisible to participants.
func (e *Engine) Apply(cmd Command) error {
	s := e.store.Session()

	switch cmd.Type {
	case CommandClaimTeam:
		if s.Phase == models.PhaseFinished {
			return ErrInvalidTransition
		}
		return e.store.TryClaim(cmd.TeamIndex, cmd.ParticipantRef)

	case CommandResetClaims:
		e.store.ResetClaims()
		return nil

	case CommandStartGame:
		if s.Phase != models.PhaseWaiting {
			return ErrInvalidTransition
		}
		e.store.AdvanceQuestionCursor()
		e.startQuestion()
		return nil

	case CommandStopTimer:
		if s.Phase != models.PhaseQuestion {
			return ErrInvalidTransition
		}
		if err := e.requireActiveTeam(cmd.TeamIndex, cmd.ParticipantRef); err != nil {
			return err
		}
		e.store.ClearTimer()
		e.store.SetPhase(models.PhaseGrading)
		return nil

	case CommandTimerExpired:
		// Only the deadline currently armed may end the question; an
		// expiry raced by a pass or stop is stale and ignored.
		if s.Phase != models.PhaseQuestion || s.TimerEnd == nil || !s.TimerEnd.Equal(cmd.Deadline) {
			return ErrInvalidTransition
		}
		e.store.ClearTimer()
		e.store.SetPhase(models.PhaseGrading)
		return nil

	case CommandMarkAnswer:
		if s.Phase != models.PhaseGrading {
			return ErrInvalidTransition
		}
		if cmd.Correct {
			e.store.SetPhase(models.PhaseCorrectAnswer)
		} else {
			e.store.SetPhase(models.PhaseIncorrectAnswer)
		}
		return nil

	case CommandAcknowledgeAnswer:
		if s.Phase != models.PhaseCorrectAnswer {
			return ErrInvalidTransition
		}
		tier := models.RewardTierFull
		if s.QuestionPassed {
			tier = models.RewardTierHalf
		}
		e.enterBoxes(tier)
		return nil

	case CommandPassQuestion:
		// The one transition that re-enters question from outside the
		// forward path, and it may happen at most once per question.
		if s.Phase != models.PhaseIncorrectAnswer || s.QuestionPassed {
			return ErrInvalidTransition
		}
		if cmd.TeamIndex == s.ActiveTeamIndex {
			return ErrInvalidTransition
		}
		if err := e.store.SetActiveTeam(cmd.TeamIndex); err != nil {
			return ErrInvalidTransition
		}
		e.store.SetQuestionPassed(true)
		e.armTimer()
		e.store.SetPhase(models.PhaseQuestion)
		return nil

	case CommandRevealAnswer:
		if s.Phase != models.PhaseIncorrectAnswer {
			return ErrInvalidTransition
		}
		e.store.ClearTimer()
		e.store.SetPhase(models.PhaseLearningTime)
		return nil

	case CommandFinishLearning:
		if s.Phase != models.PhaseLearningTime {
			return ErrInvalidTransition
		}
		e.enterBoxes(models.RewardTierFailure)
		return nil

	case CommandSelectChest:
		return e.applySelectChest(cmd)

	case CommandContinueAfterBoxes:
		return e.applyContinue()

	case CommandSubmitBet:
		return e.applySubmitBet(cmd)

	case CommandRevealFinalQuestion:
		return e.applyRevealFinalQuestion()

	case CommandRevealFinalAnswer:
		if s.Phase != models.PhaseFinalQuestion {
			return ErrInvalidTransition
		}
		e.store.SetPhase(models.PhaseFinalAnswerRevealed)
		return nil

	case CommandBeginFinalScoring:
		if s.Phase != models.PhaseFinalAnswerRevealed {
			return ErrInvalidTransition
		}
		e.store.SetPhase(models.PhaseFinalScoring)
		return nil

	case CommandScoreFinalTeam:
		return e.applyScoreFinalTeam(cmd)

	default:
		log.Warn().Str("command", string(cmd.Type)).Msg("unknown command type - ignoring")
		return ErrInvalidTransition
	}
}

// requireActiveTeam rejects commands for a team that is not on turn, and
// remote commands from a participant that does not own the team.
func (e *Engine) requireActiveTeam(teamIndex int, participantRef string) error {
	s := e.store.Session()
	if teamIndex != s.ActiveTeamIndex {
		return ErrInvalidTransition
	}
	if participantRef != "" && !e.store.OwnsTeam(teamIndex, participantRef) {
		return ErrInvalidTransition
	}
	return nil
}

// currentQuestion returns the in-progress bank entry.
func (e *Engine) currentQuestion() models.Question {
	return e.bank.Questions[e.store.Session().QuestionCursor-1]
}

// startQuestion arms a fresh timer for the current question and resets
// the pass marker.
func (e *Engine) startQuestion() {
	e.store.SetQuestionPassed(false)
	e.armTimer()
	e.store.SetPhase(models.PhaseQuestion)
}

func (e *Engine) armTimer() {
	duration := time.Duration(e.currentQuestion().DurationSec) * time.Second
	e.store.ArmTimer(e.clock.Now().Add(duration))
}

// enterBoxes installs the box board for the reward tier in play.
func (e *Engine) enterBoxes(tier models.RewardTier) {
	values := append([]int(nil), e.cfg.Table(tier)...)
	e.store.SetPhase(models.PhaseBoxes)
	e.store.SetBoxState(&models.BoxState{Tier: tier, Values: values})
}

// applySelectChest reveals exactly one box per question. Replays of the
// same intent, or any reveal after the first, observe ErrDuplicate and
// are no-ops.
func (e *Engine) applySelectChest(cmd Command) error {
	s := e.store.Session()
	if (s.Phase != models.PhaseBoxes && s.Phase != models.PhaseBoxesRevealed) || s.BoxState == nil {
		return ErrInvalidTransition
	}
	if err := e.requireActiveTeam(cmd.TeamIndex, cmd.ParticipantRef); err != nil {
		return err
	}
	if s.BoxState.RevealedIndex != nil {
		return ErrDuplicate
	}
	if cmd.ChestIndex < 0 || cmd.ChestIndex >= len(s.BoxState.Values) {
		return ErrInvalidTransition
	}

	idx := cmd.ChestIndex
	value := s.BoxState.Values[idx]
	s.BoxState.RevealedIndex = &idx
	s.BoxState.RevealedValue = &value
	if err := e.store.AdjustScore(s.ActiveTeamIndex, value); err != nil {
		return err
	}
	e.store.SetPhase(models.PhaseBoxesRevealed)
	return nil
}

// applyContinue advances past a revealed box: either into the next
// question, or into the final round once the bank is exhausted.
func (e *Engine) applyContinue() error {
	s := e.store.Session()
	if s.Phase != models.PhaseBoxesRevealed {
		return ErrInvalidTransition
	}

	e.store.AdvanceQuestionCursor()
	if s.QuestionCursor > s.TotalQuestions {
		if e.bank.Final == nil {
			e.finish()
			return nil
		}
		e.enterBetting()
		return nil
	}

	next := (s.QuestionCursor - 1) % len(s.Teams)
	if err := e.store.SetActiveTeam(next); err != nil {
		return err
	}
	e.startQuestion()
	return nil
}
