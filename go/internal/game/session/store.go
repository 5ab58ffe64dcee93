package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quizchest/quizchest/go/internal/game/content"
	"github.com/quizchest/quizchest/go/internal/models"
)

// Store owns the canonical session record. All mutation goes through its
// methods, and every mutator either applies completely or leaves the
// record untouched. The store itself is not goroutine safe: the host
// actor is the single writer and serializes every call.
type Store struct {
	session *models.Session
	options SavedOptions
}

// Initialize creates a session from a roster and the question bank
// length. TotalQuestions is the largest multiple of the team count that
// fits in the bank; a zero result fails with ErrContentExhausted before
// any session exists.
func Initialize(req CreateSessionRequest) (*Store, error) {
	if len(req.Teams) == 0 {
		return nil, ErrNoTeams
	}

	total := content.TotalQuestions(req.ContentLen, len(req.Teams))
	if total == 0 {
		return nil, ErrContentExhausted
	}

	code := req.Code
	if code == "" {
		code = NewCode(codeLength)
	}

	teams := make([]models.Team, len(req.Teams))
	for i, seed := range req.Teams {
		teams[i] = models.Team{
			Index:       i,
			DisplayName: seed.DisplayName,
			IconRef:     seed.IconRef,
		}
	}

	return &Store{
		session: &models.Session{
			Code:            code,
			HostRef:         req.HostRef,
			Teams:           teams,
			ActiveTeamIndex: 0,
			QuestionCursor:  0,
			TotalQuestions:  total,
			Phase:           models.PhaseWaiting,
			CreatedAt:       time.Now().UTC(),
		},
		options: SavedOptions{BankRef: req.BankRef, Config: req.Config},
	}, nil
}

// Session returns the live record. Host-side use only; everything that
// leaves the host goes through Snapshot.
func (st *Store) Session() *models.Session {
	return st.session
}

// Options returns the content reference and config the session was
// created with.
func (st *Store) Options() SavedOptions {
	return st.options
}

// Snapshot returns a deep copy safe to serialize and broadcast while the
// live record keeps mutating.
func (st *Store) Snapshot() *models.Session {
	return st.session.Clone()
}

// AdjustScore applies a signed delta to one team's score.
func (st *Store) AdjustScore(teamIndex, delta int) error {
	if teamIndex < 0 || teamIndex >= len(st.session.Teams) {
		return ErrTeamIndex
	}
	st.session.Teams[teamIndex].Score += delta
	return nil
}

// SetActiveTeam moves the turn to the given team.
func (st *Store) SetActiveTeam(index int) error {
	if index < 0 || index >= len(st.session.Teams) {
		return ErrTeamIndex
	}
	st.session.ActiveTeamIndex = index
	return nil
}

// AdvanceQuestionCursor bumps the 1-based question cursor.
func (st *Store) AdvanceQuestionCursor() {
	st.session.QuestionCursor++
}

// SetPhase moves the turn engine to a new phase. Sub-state records live
// only while their phase family is active, so leaving a family drops the
// record.
func (st *Store) SetPhase(phase models.Phase) {
	st.session.Phase = phase
	switch phase {
	case models.PhaseBoxes, models.PhaseBoxesRevealed:
	default:
		st.session.BoxState = nil
	}
	switch phase {
	case models.PhaseBetting, models.PhaseFinalQuestion, models.PhaseFinalAnswerRevealed, models.PhaseFinalScoring, models.PhaseFinished:
	default:
		st.session.BettingState = nil
	}
}

// SetBoxState installs the box board for the current question.
func (st *Store) SetBoxState(bs *models.BoxState) {
	st.session.BoxState = bs
}

// SetBettingState installs the final-round record.
func (st *Store) SetBettingState(bt *models.BettingState) {
	st.session.BettingState = bt
}

// SetQuestionPassed records whether the in-progress question was handed
// off to a non-turn-order team.
func (st *Store) SetQuestionPassed(passed bool) {
	st.session.QuestionPassed = passed
}

// ArmTimer sets the absolute countdown deadline republished in every
// snapshot while the timer is live.
func (st *Store) ArmTimer(end time.Time) {
	st.session.TimerEnd = &end
}

// ClearTimer stops the countdown. Observers simply stop receiving a
// deadline and revert to a non-counting display.
func (st *Store) ClearTimer() {
	st.session.TimerEnd = nil
}

// SetWinners records the final standings.
func (st *Store) SetWinners(winners []int) {
	st.session.Winners = winners
}

// SaveBlob serializes the session plus its content options for
// persistence across host reloads.
func (st *Store) SaveBlob() ([]byte, error) {
	saved := SavedSession{Session: st.Snapshot(), Options: st.options}
	blob, err := json.Marshal(saved)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session blob: %w", err)
	}
	return blob, nil
}

// Restore rebuilds a store from a persisted blob. Transient flags from
// before the reload cannot be trusted, so the pass marker and any live
// timer are cleared.
func Restore(blob []byte) (*Store, error) {
	var saved SavedSession
	if err := json.Unmarshal(blob, &saved); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session blob: %w", err)
	}
	if saved.Session == nil {
		return nil, fmt.Errorf("session blob has no session record")
	}

	saved.Session.QuestionPassed = false
	saved.Session.TimerEnd = nil

	return &Store{session: saved.Session, options: saved.Options}, nil
}
