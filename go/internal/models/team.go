package models

// Claim binds a remote participant identity to a team slot.
type Claim struct {
	ParticipantRef string `json:"participant_ref"`
}

// Team is one competing team inside a session. Index is its stable
// identity for the session's lifetime; slice order is turn order.
type Team struct {
	Index       int    `json:"index"`
	DisplayName string `json:"display_name"`
	IconRef     string `json:"icon_ref,omitempty"`
	Score       int    `json:"score"`
	Claim       *Claim `json:"claim,omitempty"`
}

// Claimed reports whether a remote participant has bound to this team.
func (t *Team) Claimed() bool {
	return t.Claim != nil
}
