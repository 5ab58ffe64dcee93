package engine

import (
	"github.com/quizchest/quizchest/go/internal/models"
)

// enterBetting opens the final round. Teams that cannot stake anything
// are recorded at bet 0 immediately so they never block the all-bets
// gate.
func (e *Engine) enterBetting() {
	s := e.store.Session()
	bt := &models.BettingState{
		Bets:   make([]*int, len(s.Teams)),
		Scored: make([]bool, len(s.Teams)),
	}
	for i := range s.Teams {
		if s.Teams[i].Score <= 0 {
			amount := 0
			bt.Bets[i] = &amount
		}
	}
	e.store.ClearTimer()
	e.store.SetPhase(models.PhaseBetting)
	e.store.SetBettingState(bt)
}

// applySubmitBet records a team's stake. Bets are snapped down to the
// configured increment and must land in [0, score]. A team may revise
// its bet until the final question is revealed; nothing is applied to
// scores yet, so revisions are harmless.
func (e *Engine) applySubmitBet(cmd Command) error {
	s := e.store.Session()
	if s.Phase != models.PhaseBetting || s.BettingState == nil {
		return ErrInvalidTransition
	}
	if cmd.TeamIndex < 0 || cmd.TeamIndex >= len(s.Teams) {
		return ErrInvalidTransition
	}
	if cmd.ParticipantRef != "" && !e.store.OwnsTeam(cmd.TeamIndex, cmd.ParticipantRef) {
		return ErrInvalidTransition
	}

	team := &s.Teams[cmd.TeamIndex]
	if team.Score <= 0 {
		return ErrInvalidBet
	}
	if cmd.BetAmount < 0 || cmd.BetAmount > team.Score {
		return ErrInvalidBet
	}

	amount := cmd.BetAmount
	if e.cfg.BetIncrement > 1 {
		amount -= amount % e.cfg.BetIncrement
	}
	s.BettingState.Bets[cmd.TeamIndex] = &amount
	return nil
}

// applyRevealFinalQuestion opens the final question once every eligible
// team has a recorded bet.
func (e *Engine) applyRevealFinalQuestion() error {
	s := e.store.Session()
	if s.Phase != models.PhaseBetting || s.BettingState == nil {
		return ErrInvalidTransition
	}
	for i := range s.Teams {
		if s.BettingState.Bets[i] == nil {
			return ErrInvalidTransition
		}
	}
	e.store.SetPhase(models.PhaseFinalQuestion)
	return nil
}

// applyScoreFinalTeam settles one team's bet exactly once: correct adds
// the stake, incorrect subtracts it. Once every team is settled the
// session finishes and winners are computed.
func (e *Engine) applyScoreFinalTeam(cmd Command) error {
	s := e.store.Session()
	if s.Phase != models.PhaseFinalScoring || s.BettingState == nil {
		return ErrInvalidTransition
	}
	if cmd.TeamIndex < 0 || cmd.TeamIndex >= len(s.Teams) {
		return ErrInvalidTransition
	}
	if s.BettingState.Scored[cmd.TeamIndex] {
		return ErrDuplicate
	}

	bet := 0
	if b := s.BettingState.Bets[cmd.TeamIndex]; b != nil {
		bet = *b
	}
	delta := bet
	if !cmd.Correct {
		delta = -bet
	}
	if err := e.store.AdjustScore(cmd.TeamIndex, delta); err != nil {
		return err
	}
	s.BettingState.Scored[cmd.TeamIndex] = true

	for i := range s.Teams {
		if !s.BettingState.Scored[i] {
			return nil
		}
	}
	e.finish()
	return nil
}

// finish computes the winner set (all teams tied on the maximum score)
// and closes the session.
func (e *Engine) finish() {
	s := e.store.Session()
	best := s.Teams[0].Score
	for _, t := range s.Teams[1:] {
		if t.Score > best {
			best = t.Score
		}
	}
	var winners []int
	for _, t := range s.Teams {
		if t.Score == best {
			winners = append(winners, t.Index)
		}
	}
	e.store.SetWinners(winners)
	e.store.ClearTimer()
	e.store.SetPhase(models.PhaseFinished)
}
