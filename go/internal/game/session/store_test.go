package session

import (
	"errors"
	"testing"
	"time"

	"github.com/quizchest/quizchest/go/internal/models"
)

func newTestStore(t *testing.T, teamCount, contentLen int) *Store {
	t.Helper()
	seeds := make([]TeamSeed, teamCount)
	for i := range seeds {
		seeds[i] = TeamSeed{DisplayName: "team"}
	}
	store, err := Initialize(CreateSessionRequest{
		HostRef:    "host-1",
		Teams:      seeds,
		ContentLen: contentLen,
		BankRef:    "general",
		Config:     models.DefaultGameConfig(),
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return store
}

func TestInitializeRoundsDownToTeamMultiple(t *testing.T) {
	store := newTestStore(t, 3, 10)
	if got := store.Session().TotalQuestions; got != 9 {
		t.Errorf("expected 9 total questions for 10 questions / 3 teams, got %d", got)
	}
}

func TestInitializeRejectsExhaustedContent(t *testing.T) {
	seeds := []TeamSeed{{DisplayName: "a"}, {DisplayName: "b"}, {DisplayName: "c"}}
	_, err := Initialize(CreateSessionRequest{
		HostRef:    "host-1",
		Teams:      seeds,
		ContentLen: 2,
		Config:     models.DefaultGameConfig(),
	})
	if !errors.Is(err, ErrContentExhausted) {
		t.Errorf("expected ErrContentExhausted for 2 questions / 3 teams, got %v", err)
	}
}

func TestInitializeRejectsEmptyRoster(t *testing.T) {
	_, err := Initialize(CreateSessionRequest{HostRef: "host-1", ContentLen: 10})
	if !errors.Is(err, ErrNoTeams) {
		t.Errorf("expected ErrNoTeams, got %v", err)
	}
}

func TestInitializeGeneratesCode(t *testing.T) {
	store := newTestStore(t, 2, 4)
	if got := store.Session().Code; len(got) != 5 {
		t.Errorf("expected a 5 character join code, got %q", got)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	store := newTestStore(t, 2, 4)
	store.SetBoxState(&models.BoxState{Tier: models.RewardTierFull, Values: []int{10, 20}})
	store.ArmTimer(time.Now().Add(time.Minute))

	snap := store.Snapshot()

	if err := store.AdjustScore(0, 50); err != nil {
		t.Fatalf("AdjustScore failed: %v", err)
	}
	store.Session().BoxState.Values[0] = 99
	store.ClearTimer()

	if snap.Teams[0].Score != 0 {
		t.Error("snapshot observed a later score mutation")
	}
	if snap.BoxState.Values[0] != 10 {
		t.Error("snapshot shares box values with the live record")
	}
	if snap.TimerEnd == nil {
		t.Error("snapshot lost its timer deadline when the live one cleared")
	}
}

func TestSetPhaseDropsStaleSubState(t *testing.T) {
	store := newTestStore(t, 2, 4)

	store.SetPhase(models.PhaseBoxes)
	store.SetBoxState(&models.BoxState{Tier: models.RewardTierFull, Values: []int{10}})
	store.SetPhase(models.PhaseBoxesRevealed)
	if store.Session().BoxState == nil {
		t.Fatal("box state must survive within the boxes phase family")
	}

	store.SetPhase(models.PhaseQuestion)
	if store.Session().BoxState != nil {
		t.Error("box state must drop when leaving the boxes phases")
	}

	store.SetPhase(models.PhaseBetting)
	store.SetBettingState(&models.BettingState{Bets: make([]*int, 2), Scored: make([]bool, 2)})
	store.SetPhase(models.PhaseFinalQuestion)
	if store.Session().BettingState == nil {
		t.Fatal("betting state must survive through the final round")
	}

	store.SetPhase(models.PhaseWaiting)
	if store.Session().BettingState != nil {
		t.Error("betting state must drop when leaving the final round")
	}
}

func TestSaveAndRestore(t *testing.T) {
	store := newTestStore(t, 2, 4)
	if err := store.AdjustScore(1, 30); err != nil {
		t.Fatalf("AdjustScore failed: %v", err)
	}
	store.SetPhase(models.PhaseQuestion)
	store.SetQuestionPassed(true)
	store.ArmTimer(time.Now().Add(time.Minute))

	blob, err := store.SaveBlob()
	if err != nil {
		t.Fatalf("SaveBlob failed: %v", err)
	}

	restored, err := Restore(blob)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	s := restored.Session()
	if s.Code != store.Session().Code {
		t.Errorf("expected code %q, got %q", store.Session().Code, s.Code)
	}
	if s.Teams[1].Score != 30 {
		t.Errorf("expected restored score 30, got %d", s.Teams[1].Score)
	}
	if restored.Options().BankRef != "general" {
		t.Errorf("expected bank ref to survive the round trip, got %q", restored.Options().BankRef)
	}

	// Transient flags from before the reload cannot be trusted.
	if s.QuestionPassed {
		t.Error("restore must clear the pass marker")
	}
	if s.TimerEnd != nil {
		t.Error("restore must clear the timer deadline")
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	if _, err := Restore([]byte("not json")); err == nil {
		t.Error("expected an error for a corrupt blob")
	}
	if _, err := Restore([]byte(`{"options":{}}`)); err == nil {
		t.Error("expected an error for a blob without a session record")
	}
}
