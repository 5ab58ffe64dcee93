package host

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Broadcaster pushes full session snapshots to every observer. Delivery
// is fire-and-forget: the state machine never waits on it and never
// rolls back because of it.
type Broadcaster interface {
	BroadcastSnapshot(code string, snapshot *models.Session)
}

// Saver persists session snapshots across host reloads. Failures are
// logged and otherwise ignored; the in-memory record stays authoritative.
type Saver interface {
	SaveSnapshot(ctx context.Context, snapshot *models.Session, opts session.SavedOptions) error
}

type envelope struct {
	cmd   engine.Command
	reply chan error
}

// Host is the single-writer actor for one session. Participant intents,
// host actions and timer expiries all funnel through one channel, so the
// engine only ever sees one command at a time. This serialization, not
// locking, is what makes claim races and score-once guards correct.
type Host struct {
	eng         *engine.Engine
	broadcaster Broadcaster
	saver       Saver
	clock       clockwork.Clock
	cmdCh       chan envelope

	// Armed deadline the scheduler is currently waiting on.
	armed *time.Time
	timer clockwork.Timer
}

// New creates a host actor. saver may be nil for sessions that should
// not be persisted.
func New(eng *engine.Engine, broadcaster Broadcaster, saver Saver, clock clockwork.Clock) *Host {
	return &Host{
		eng:         eng,
		broadcaster: broadcaster,
		saver:       saver,
		clock:       clock,
		cmdCh:       make(chan envelope, 64),
	}
}

// Code returns the session join code.
func (h *Host) Code() string {
	return h.eng.Store().Session().Code
}

// Snapshot returns a deep copy of the current session.
func (h *Host) Snapshot() *models.Session {
	return h.eng.Store().Snapshot()
}

// Do submits a command and waits for its outcome. Commands are applied
// strictly in submission-dequeue order; two racing claims resolve to one
// success and one session.ErrAlreadyClaimed no matter how they arrive.
func (h *Host) Do(ctx context.Context, cmd engine.Command) error {
	reply := make(chan error, 1)
	select {
	case h.cmdCh <- envelope{cmd: cmd, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the session until ctx is canceled. It is the only goroutine
// that ever mutates the session record.
func (h *Host) Run(ctx context.Context) {
	code := h.Code()
	log.Info().Str("code", code).Msg("session host started")
	defer log.Info().Str("code", code).Msg("session host stopped")

	h.reconcileTimer()

	for {
		select {
		case <-ctx.Done():
			if h.timer != nil {
				h.timer.Stop()
			}
			return

		case env := <-h.cmdCh:
			h.apply(env.cmd, env.reply)

		case <-h.timerChan():
			deadline := *h.armed
			h.armed = nil
			h.timer = nil
			h.apply(engine.Command{Type: engine.CommandTimerExpired, Deadline: deadline}, nil)
		}
	}
}

func (h *Host) timerChan() <-chan time.Time {
	if h.timer == nil {
		return nil
	}
	return h.timer.Chan()
}

func (h *Host) apply(cmd engine.Command, reply chan error) {
	err := h.eng.Apply(cmd)
	if reply != nil {
		reply <- err
	}
	if err != nil {
		// Stale, out-of-phase and duplicate commands are dropped by
		// design; the log line is the only trace they leave.
		log.Debug().
			Str("code", h.Code()).
			Str("command", string(cmd.Type)).
			Err(err).
			Msg("command dropped")
		return
	}

	h.reconcileTimer()

	snapshot := h.eng.Store().Snapshot()
	h.broadcaster.BroadcastSnapshot(snapshot.Code, snapshot)

	if h.saver != nil {
		opts := h.eng.Store().Options()
		go func() {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.saver.SaveSnapshot(saveCtx, snapshot, opts); err != nil {
				log.Error().Err(err).Str("code", snapshot.Code).Msg("failed to persist session snapshot")
			}
		}()
	}
}

// reconcileTimer aligns the scheduler with the session's TimerEnd: a new
// deadline replaces the armed timer, a cleared deadline cancels it.
func (h *Host) reconcileTimer() {
	end := h.eng.Store().Session().TimerEnd
	if end == nil {
		if h.timer != nil {
			h.timer.Stop()
			h.timer = nil
		}
		h.armed = nil
		return
	}
	if h.armed != nil && h.armed.Equal(*end) {
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	deadline := *end
	h.armed = &deadline
	h.timer = h.clock.NewTimer(deadline.Sub(h.clock.Now()))
}
