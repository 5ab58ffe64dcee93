package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/models"
)

// MessageType tags every frame on the wire, in both directions.
type MessageType string

const (
	// Host → participants. The payload is always a full, self-contained
	// session snapshot: a participant that misses any number of frames
	// is fully consistent again after the next one.
	MessageTypeSnapshot MessageType = "SessionSnapshot"

	// Host → one participant. The only user-visible rejection: the
	// loser of a team-claim race must pick another team.
	MessageTypeClaimRejected MessageType = "ClaimRejected"

	// Participant → host intents.
	MessageTypeClaimTeam   MessageType = "ClaimTeam"
	MessageTypeStopTimer   MessageType = "StopTimer"
	MessageTypeSelectChest MessageType = "SelectChest"
	MessageTypeSubmitBet   MessageType = "SubmitBet"
)

// Message is the wire envelope for both directions.
type Message struct {
	Type      MessageType     `json:"type"`
	Code      string          `json:"code,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// IntentPayload is the body of a participant intent frame.
type IntentPayload struct {
	TeamIndex  int `json:"team_index"`
	ChestIndex int `json:"chest_index,omitempty"`
	BetAmount  int `json:"bet_amount,omitempty"`
}

// ClaimRejectedPayload tells the losing participant which claim failed.
type ClaimRejectedPayload struct {
	TeamIndex int    `json:"team_index"`
	Reason    string `json:"reason"`
}

// NewSnapshotMessage wraps a session snapshot for broadcast.
func NewSnapshotMessage(snapshot *models.Session) (*Message, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return &Message{
		Type:      MessageTypeSnapshot,
		Code:      snapshot.Code,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}, nil
}

// ParseIntent converts an inbound frame into an engine command. Only the
// four participant intents are accepted here; host actions never enter
// through the action channel.
func ParseIntent(raw []byte, participantRef string) (engine.Command, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return engine.Command{}, fmt.Errorf("failed to parse intent frame: %w", err)
	}

	var payload IntentPayload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			return engine.Command{}, fmt.Errorf("failed to parse intent payload: %w", err)
		}
	}

	cmd := engine.Command{
		TeamIndex:      payload.TeamIndex,
		ParticipantRef: participantRef,
	}
	switch msg.Type {
	case MessageTypeClaimTeam:
		cmd.Type = engine.CommandClaimTeam
	case MessageTypeStopTimer:
		cmd.Type = engine.CommandStopTimer
	case MessageTypeSelectChest:
		cmd.Type = engine.CommandSelectChest
		cmd.ChestIndex = payload.ChestIndex
	case MessageTypeSubmitBet:
		cmd.Type = engine.CommandSubmitBet
		cmd.BetAmount = payload.BetAmount
	default:
		return engine.Command{}, fmt.Errorf("unknown intent type %q", msg.Type)
	}
	return cmd, nil
}
