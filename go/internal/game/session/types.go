package session

import (
	"errors"

	"github.com/quizchest/quizchest/go/internal/models"
)

var (
	// ErrContentExhausted means the question bank cannot give every team
	// at least one turn, so the session must not start.
	ErrContentExhausted = errors.New("not enough questions for team count")
	// ErrAlreadyClaimed is returned to the loser of a team-claim race.
	ErrAlreadyClaimed = errors.New("team already claimed")
	// ErrTeamIndex means a team index outside the roster.
	ErrTeamIndex = errors.New("team index out of range")
	// ErrNoTeams means a session was requested with an empty roster.
	ErrNoTeams = errors.New("session needs at least one team")
)

// TeamSeed describes one team at session creation.
type TeamSeed struct {
	DisplayName string `json:"display_name"`
	IconRef     string `json:"icon_ref,omitempty"`
}

// CreateSessionRequest carries everything needed to initialize a session.
// Code is optional; a fresh join code is generated when empty.
type CreateSessionRequest struct {
	Code       string            `json:"code,omitempty"`
	HostRef    string            `json:"host_ref"`
	Teams      []TeamSeed        `json:"teams"`
	ContentLen int               `json:"content_len"`
	BankRef    string            `json:"bank_ref,omitempty"`
	Config     models.GameConfig `json:"config"`
}

// SavedSession is the persisted blob format: the full session plus the
// options needed to resume without re-fetching content choices.
type SavedSession struct {
	Session *models.Session `json:"session"`
	Options SavedOptions    `json:"options"`
}

// SavedOptions references the content and config the session was built
// with so a host reload can resume where it left off.
type SavedOptions struct {
	BankRef string            `json:"bank_ref,omitempty"`
	Config  models.GameConfig `json:"config"`
}
