package engine

import "time"

// CommandType tags every input the host actor can apply to a session.
// Participant intents and local host actions share one command stream so
// a single serialized apply order resolves all races.
type CommandType string

const (
	// Participant intents, arriving via the action channel.
	CommandClaimTeam   CommandType = "CLAIM_TEAM"
	CommandStopTimer   CommandType = "STOP_TIMER"
	CommandSelectChest CommandType = "SELECT_CHEST"
	CommandSubmitBet   CommandType = "SUBMIT_BET"

	// Host actions, local to the host device.
	CommandStartGame           CommandType = "START_GAME"
	CommandMarkAnswer          CommandType = "MARK_ANSWER"
	CommandAcknowledgeAnswer   CommandType = "ACKNOWLEDGE_ANSWER"
	CommandPassQuestion        CommandType = "PASS_QUESTION"
	CommandRevealAnswer        CommandType = "REVEAL_ANSWER"
	CommandFinishLearning      CommandType = "FINISH_LEARNING"
	CommandContinueAfterBoxes  CommandType = "CONTINUE_AFTER_BOXES"
	CommandRevealFinalQuestion CommandType = "REVEAL_FINAL_QUESTION"
	CommandRevealFinalAnswer   CommandType = "REVEAL_FINAL_ANSWER"
	CommandBeginFinalScoring   CommandType = "BEGIN_FINAL_SCORING"
	CommandScoreFinalTeam      CommandType = "SCORE_FINAL_TEAM"
	CommandResetClaims         CommandType = "RESET_CLAIMS"

	// Raised by the host's timer scheduler, never by a participant.
	CommandTimerExpired CommandType = "TIMER_EXPIRED"
)

// Command is one unit of input to the engine. Fields outside the ones a
// command type uses are ignored. ParticipantRef is empty for commands
// originating on the host device; when set, team ownership is checked.
type Command struct {
	Type           CommandType `json:"type"`
	TeamIndex      int         `json:"team_index,omitempty"`
	ParticipantRef string      `json:"participant_ref,omitempty"`
	ChestIndex     int         `json:"chest_index,omitempty"`
	BetAmount      int         `json:"bet_amount,omitempty"`
	Correct        bool        `json:"correct,omitempty"`
	Deadline       time.Time   `json:"deadline,omitempty"`
}
