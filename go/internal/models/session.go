package models

import (
	"math"
	"time"
)

// Phase defines the current state of a session's turn engine.
type Phase string

const (
	PhaseWaiting             Phase = "WAITING"
	PhaseQuestion            Phase = "QUESTION"
	PhaseGrading             Phase = "GRADING"
	PhaseCorrectAnswer       Phase = "CORRECT_ANSWER"
	PhaseIncorrectAnswer     Phase = "INCORRECT_ANSWER"
	PhaseLearningTime        Phase = "LEARNING_TIME"
	PhaseBoxes               Phase = "BOXES"
	PhaseBoxesRevealed       Phase = "BOXES_REVEALED"
	PhaseBetting             Phase = "BETTING"
	PhaseFinalQuestion       Phase = "FINAL_QUESTION"
	PhaseFinalAnswerRevealed Phase = "FINAL_ANSWER_REVEALED"
	PhaseFinalScoring        Phase = "FINAL_SCORING"
	PhaseFinished            Phase = "FINISHED"
)

// RewardTier selects which box score table is in play for a question.
type RewardTier string

const (
	RewardTierFull    RewardTier = "FULL"
	RewardTierHalf    RewardTier = "HALF"
	RewardTierFailure RewardTier = "FAILURE"
)

// BoxState is the box-pick sub-state, present only while the phase is in
// the boxes family.
type BoxState struct {
	Tier          RewardTier `json:"tier"`
	Values        []int      `json:"values"`
	RevealedIndex *int       `json:"revealed_index,omitempty"`
	RevealedValue *int       `json:"revealed_value,omitempty"`
}

// BettingState is the final-round sub-state, present only while the phase
// is in the betting family. Bets and Scored are indexed by team index; a
// nil bet means the team has not placed one yet.
type BettingState struct {
	Bets   []*int `json:"bets"`
	Scored []bool `json:"scored"`
}

// Session is the canonical record of one game session. It is owned and
// mutated exclusively by the host; participants only ever see snapshots.
type Session struct {
	Code            string        `json:"code"`
	HostRef         string        `json:"host_ref"`
	Teams           []Team        `json:"teams"`
	ActiveTeamIndex int           `json:"active_team_index"`
	QuestionCursor  int           `json:"question_cursor"`
	TotalQuestions  int           `json:"total_questions"`
	Phase           Phase         `json:"phase"`
	QuestionPassed  bool          `json:"question_passed"`
	BoxState        *BoxState     `json:"box_state,omitempty"`
	BettingState    *BettingState `json:"betting_state,omitempty"`
	TimerEnd        *time.Time    `json:"timer_end,omitempty"`
	Winners         []int         `json:"winners,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// ActiveTeam returns the team whose turn it is.
func (s *Session) ActiveTeam() *Team {
	return &s.Teams[s.ActiveTeamIndex]
}

// RemainingSeconds reconstructs the countdown from the absolute timer
// deadline. Every observer runs this against its own clock; the result is
// clamped so a late evaluation never goes negative.
func (s *Session) RemainingSeconds(now time.Time) int {
	if s.TimerEnd == nil {
		return 0
	}
	remaining := int(math.Round(s.TimerEnd.Sub(now).Seconds()))
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy of the session. Snapshots handed to the
// broadcaster must not share mutable references with the live record.
func (s *Session) Clone() *Session {
	c := *s
	c.Teams = make([]Team, len(s.Teams))
	for i, t := range s.Teams {
		c.Teams[i] = t
		if t.Claim != nil {
			claim := *t.Claim
			c.Teams[i].Claim = &claim
		}
	}
	if s.BoxState != nil {
		bs := *s.BoxState
		bs.Values = append([]int(nil), s.BoxState.Values...)
		if s.BoxState.RevealedIndex != nil {
			idx := *s.BoxState.RevealedIndex
			bs.RevealedIndex = &idx
		}
		if s.BoxState.RevealedValue != nil {
			val := *s.BoxState.RevealedValue
			bs.RevealedValue = &val
		}
		c.BoxState = &bs
	}
	if s.BettingState != nil {
		bt := BettingState{
			Bets:   make([]*int, len(s.BettingState.Bets)),
			Scored: append([]bool(nil), s.BettingState.Scored...),
		}
		for i, b := range s.BettingState.Bets {
			if b != nil {
				amount := *b
				bt.Bets[i] = &amount
			}
		}
		c.BettingState = &bt
	}
	if s.TimerEnd != nil {
		end := *s.TimerEnd
		c.TimerEnd = &end
	}
	c.Winners = append([]int(nil), s.Winners...)
	return &c
}
