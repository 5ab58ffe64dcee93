package session

import "github.com/quizchest/quizchest/go/internal/models"

// TryClaim binds a participant to a team slot. The first claim applied
// wins; any later claim for the same team, including a retry from the
// same participant, observes ErrAlreadyClaimed and leaves the session
// unchanged. Races between participants are resolved purely by the order
// the host actor applies intents, never by locking here.
func (st *Store) TryClaim(teamIndex int, participantRef string) error {
	if teamIndex < 0 || teamIndex >= len(st.session.Teams) {
		return ErrTeamIndex
	}
	team := &st.session.Teams[teamIndex]
	if team.Claim != nil {
		return ErrAlreadyClaimed
	}
	team.Claim = &models.Claim{ParticipantRef: participantRef}
	return nil
}

// OwnsTeam reports whether the participant holds the claim on a team.
func (st *Store) OwnsTeam(teamIndex int, participantRef string) bool {
	if teamIndex < 0 || teamIndex >= len(st.session.Teams) {
		return false
	}
	claim := st.session.Teams[teamIndex].Claim
	return claim != nil && claim.ParticipantRef == participantRef
}

// ResetClaims releases every team binding. Explicit host reset is the
// only way a claim ever reverts within a session.
func (st *Store) ResetClaims() {
	for i := range st.session.Teams {
		st.session.Teams[i].Claim = nil
	}
}
