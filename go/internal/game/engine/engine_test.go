package engine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quizchest/quizchest/go/internal/game/content"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/quizchest/quizchest/go/internal/models"
)

func testBank(n int, withFinal bool) *content.Bank {
	qs := make([]models.Question, n)
	for i := range qs {
		qs[i] = models.Question{
			Prompt:      fmt.Sprintf("question %d", i+1),
			Answer:      fmt.Sprintf("answer %d", i+1),
			DurationSec: 30,
		}
	}
	bank := &content.Bank{Name: "test bank", Questions: qs}
	if withFinal {
		bank.Final = &models.FinalQuestion{Prompt: "final question", Answer: "final answer"}
	}
	return bank
}

func newTestEngine(t *testing.T, teamCount, questionCount int, withFinal bool) (*Engine, *clockwork.FakeClock) {
	t.Helper()

	seeds := make([]session.TeamSeed, teamCount)
	for i := range seeds {
		seeds[i] = session.TeamSeed{DisplayName: fmt.Sprintf("team %d", i+1)}
	}

	store, err := session.Initialize(session.CreateSessionRequest{
		HostRef:    "host-1",
		Teams:      seeds,
		ContentLen: questionCount,
		Config:     models.DefaultGameConfig(),
	})
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	bank := testBank(questionCount, withFinal)
	clock := clockwork.NewFakeClock()
	return New(store, bank, models.DefaultGameConfig(), clock), clock
}

func mustApply(t *testing.T, e *Engine, cmd Command) {
	t.Helper()
	if err := e.Apply(cmd); err != nil {
		t.Fatalf("Apply(%s) failed: %v", cmd.Type, err)
	}
}

// runQuestion drives the current question through grading into the
// revealed box, marking the answer correct.
func runQuestion(t *testing.T, e *Engine) {
	t.Helper()
	s := e.Store().Session()
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: s.ActiveTeamIndex})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})
	mustApply(t, e, Command{Type: CommandSelectChest, TeamIndex: s.ActiveTeamIndex, ChestIndex: 0})
}

func TestStartGameArmsTimer(t *testing.T) {
	e, clock := newTestEngine(t, 2, 4, false)

	mustApply(t, e, Command{Type: CommandStartGame})

	s := e.Store().Session()
	if s.Phase != models.PhaseQuestion {
		t.Errorf("expected phase %s, got %s", models.PhaseQuestion, s.Phase)
	}
	if s.QuestionCursor != 1 {
		t.Errorf("expected cursor 1, got %d", s.QuestionCursor)
	}
	if s.TimerEnd == nil {
		t.Fatal("expected an armed timer")
	}
	want := clock.Now().Add(30 * time.Second)
	if !s.TimerEnd.Equal(want) {
		t.Errorf("expected deadline %v, got %v", want, *s.TimerEnd)
	}
}

func TestStartGameOnlyFromWaiting(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)

	mustApply(t, e, Command{Type: CommandStartGame})
	if err := e.Apply(Command{Type: CommandStartGame}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTurnRotation(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)

	mustApply(t, e, Command{Type: CommandStartGame})

	var got []int
	for q := 0; q < 4; q++ {
		got = append(got, e.Store().Session().ActiveTeamIndex)
		runQuestion(t, e)
		mustApply(t, e, Command{Type: CommandContinueAfterBoxes})
	}

	want := []int{0, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn order %v, want %v", got, want)
		}
	}
	if e.Store().Session().Phase != models.PhaseFinished {
		t.Errorf("expected session finished after bank exhausted without final, got %s", e.Store().Session().Phase)
	}
}

func TestFourTeamFullPass(t *testing.T) {
	e, _ := newTestEngine(t, 4, 8, false)

	mustApply(t, e, Command{Type: CommandStartGame})

	s := e.Store().Session()
	if s.TotalQuestions != 8 {
		t.Fatalf("expected 8 total questions, got %d", s.TotalQuestions)
	}

	// Team 0 answers question 1 correctly, no pass: full tier, chest
	// value 30 lands on its score, and the turn moves to team 1.
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})
	if s.BoxState.Tier != models.RewardTierFull {
		t.Fatalf("expected full tier, got %s", s.BoxState.Tier)
	}
	mustApply(t, e, Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: 2})
	if s.Teams[0].Score != 30 {
		t.Errorf("expected score 30, got %d", s.Teams[0].Score)
	}
	mustApply(t, e, Command{Type: CommandContinueAfterBoxes})
	if s.QuestionCursor != 2 || s.ActiveTeamIndex != 1 {
		t.Errorf("expected question 2 with team 1 active, got cursor %d team %d", s.QuestionCursor, s.ActiveTeamIndex)
	}

	var got []int
	got = append(got, 0, s.ActiveTeamIndex)
	for q := 2; q < 8; q++ {
		runQuestion(t, e)
		mustApply(t, e, Command{Type: CommandContinueAfterBoxes})
		got = append(got, e.Store().Session().ActiveTeamIndex)
	}

	want := []int{0, 1, 2, 3, 0, 1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("turn order %v, want %v", got, want)
		}
	}
}

func TestStopTimerRequiresActiveTeam(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})

	if err := e.Apply(Command{Type: CommandStopTimer, TeamIndex: 1}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("non-active team stop: expected ErrInvalidTransition, got %v", err)
	}
	if e.Store().Session().Phase != models.PhaseQuestion {
		t.Errorf("rejected stop must not change phase, got %s", e.Store().Session().Phase)
	}

	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})

	s := e.Store().Session()
	if s.Phase != models.PhaseGrading {
		t.Errorf("expected phase %s, got %s", models.PhaseGrading, s.Phase)
	}
	if s.TimerEnd != nil {
		t.Error("stop must clear the timer deadline")
	}
}

func TestStopTimerChecksOwnership(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandClaimTeam, TeamIndex: 0, ParticipantRef: "alice"})
	mustApply(t, e, Command{Type: CommandStartGame})

	if err := e.Apply(Command{Type: CommandStopTimer, TeamIndex: 0, ParticipantRef: "mallory"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stop from non-owner: expected ErrInvalidTransition, got %v", err)
	}
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0, ParticipantRef: "alice"})
}

func TestTimerExpiredStaleDeadlineIgnored(t *testing.T) {
	e, clock := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})

	deadline := *e.Store().Session().TimerEnd

	stale := clock.Now().Add(5 * time.Second)
	if err := e.Apply(Command{Type: CommandTimerExpired, Deadline: stale}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("stale expiry: expected ErrInvalidTransition, got %v", err)
	}
	if e.Store().Session().Phase != models.PhaseQuestion {
		t.Errorf("stale expiry must not change phase, got %s", e.Store().Session().Phase)
	}

	mustApply(t, e, Command{Type: CommandTimerExpired, Deadline: deadline})
	if e.Store().Session().Phase != models.PhaseGrading {
		t.Errorf("expected phase %s after expiry, got %s", models.PhaseGrading, e.Store().Session().Phase)
	}
}

func TestTimerExpiredAfterStopIgnored(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})

	deadline := *e.Store().Session().TimerEnd
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})

	if err := e.Apply(Command{Type: CommandTimerExpired, Deadline: deadline}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expiry after stop: expected ErrInvalidTransition, got %v", err)
	}
	if e.Store().Session().Phase != models.PhaseGrading {
		t.Errorf("expected phase unchanged at %s, got %s", models.PhaseGrading, e.Store().Session().Phase)
	}
}

func TestSelectChestOnlyOnce(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})

	s := e.Store().Session()
	if s.Phase != models.PhaseBoxes {
		t.Fatalf("expected phase %s, got %s", models.PhaseBoxes, s.Phase)
	}
	if s.BoxState == nil || s.BoxState.Tier != models.RewardTierFull {
		t.Fatalf("expected full reward tier board, got %+v", s.BoxState)
	}

	mustApply(t, e, Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: 2})

	wantScore := models.DefaultGameConfig().BoxTables.Full[2]
	if got := s.Teams[0].Score; got != wantScore {
		t.Errorf("expected score %d, got %d", wantScore, got)
	}
	if s.Phase != models.PhaseBoxesRevealed {
		t.Errorf("expected phase %s, got %s", models.PhaseBoxesRevealed, s.Phase)
	}

	// Replays of the same intent and any later reveal are duplicates.
	if err := e.Apply(Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: 2}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("replayed reveal: expected ErrDuplicate, got %v", err)
	}
	if err := e.Apply(Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: 4}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("second reveal: expected ErrDuplicate, got %v", err)
	}
	if got := s.Teams[0].Score; got != wantScore {
		t.Errorf("second reveal must not change score, got %d", got)
	}
	if s.Phase != models.PhaseBoxesRevealed {
		t.Errorf("replay must not change phase, got %s", s.Phase)
	}
}

func TestSelectChestOutOfRange(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})

	if err := e.Apply(Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: 5}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("out-of-range chest: expected ErrInvalidTransition, got %v", err)
	}
	if err := e.Apply(Command{Type: CommandSelectChest, TeamIndex: 0, ChestIndex: -1}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("negative chest: expected ErrInvalidTransition, got %v", err)
	}
}

func TestPassQuestionHalvesReward(t *testing.T) {
	e, clock := newTestEngine(t, 3, 3, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})

	clock.Advance(10 * time.Second)
	mustApply(t, e, Command{Type: CommandPassQuestion, TeamIndex: 2})

	s := e.Store().Session()
	if s.Phase != models.PhaseQuestion {
		t.Fatalf("expected phase %s after pass, got %s", models.PhaseQuestion, s.Phase)
	}
	if s.ActiveTeamIndex != 2 {
		t.Errorf("expected active team 2, got %d", s.ActiveTeamIndex)
	}
	if !s.QuestionPassed {
		t.Error("expected pass marker set")
	}
	if s.TimerEnd == nil || !s.TimerEnd.Equal(clock.Now().Add(30*time.Second)) {
		t.Error("pass must re-arm a fresh full-duration timer")
	}

	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 2})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})

	if s.BoxState == nil || s.BoxState.Tier != models.RewardTierHalf {
		t.Errorf("passed question must award the half tier, got %+v", s.BoxState)
	}
}

func TestPassQuestionOnlyOnce(t *testing.T) {
	e, _ := newTestEngine(t, 3, 3, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})
	mustApply(t, e, Command{Type: CommandPassQuestion, TeamIndex: 1})

	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 1})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})

	if err := e.Apply(Command{Type: CommandPassQuestion, TeamIndex: 2}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second pass on same question: expected ErrInvalidTransition, got %v", err)
	}
}

func TestPassQuestionNotToActiveTeam(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})

	if err := e.Apply(Command{Type: CommandPassQuestion, TeamIndex: 0}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("pass to self: expected ErrInvalidTransition, got %v", err)
	}
}

func TestRevealAnswerLeadsToFailureTier(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})
	mustApply(t, e, Command{Type: CommandRevealAnswer})

	s := e.Store().Session()
	if s.Phase != models.PhaseLearningTime {
		t.Fatalf("expected phase %s, got %s", models.PhaseLearningTime, s.Phase)
	}

	mustApply(t, e, Command{Type: CommandFinishLearning})
	if s.BoxState == nil || s.BoxState.Tier != models.RewardTierFailure {
		t.Errorf("expected failure tier board, got %+v", s.BoxState)
	}
}

func TestPassMarkerResetsNextQuestion(t *testing.T) {
	e, _ := newTestEngine(t, 2, 4, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 0})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: false})
	mustApply(t, e, Command{Type: CommandPassQuestion, TeamIndex: 1})

	mustApply(t, e, Command{Type: CommandStopTimer, TeamIndex: 1})
	mustApply(t, e, Command{Type: CommandMarkAnswer, Correct: true})
	mustApply(t, e, Command{Type: CommandAcknowledgeAnswer})
	mustApply(t, e, Command{Type: CommandSelectChest, TeamIndex: 1, ChestIndex: 0})
	mustApply(t, e, Command{Type: CommandContinueAfterBoxes})

	s := e.Store().Session()
	if s.QuestionPassed {
		t.Error("pass marker must reset when the next question starts")
	}
	if s.ActiveTeamIndex != 1 {
		t.Errorf("turn order must resume from the cursor, got active team %d", s.ActiveTeamIndex)
	}
}

func TestClaimRejectedWhenFinished(t *testing.T) {
	e, _ := newTestEngine(t, 2, 2, false)
	mustApply(t, e, Command{Type: CommandStartGame})
	for q := 0; q < 2; q++ {
		runQuestion(t, e)
		mustApply(t, e, Command{Type: CommandContinueAfterBoxes})
	}
	if e.Store().Session().Phase != models.PhaseFinished {
		t.Fatalf("expected finished session, got %s", e.Store().Session().Phase)
	}
	if err := e.Apply(Command{Type: CommandClaimTeam, TeamIndex: 0, ParticipantRef: "late"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("claim on finished session: expected ErrInvalidTransition, got %v", err)
	}
}
