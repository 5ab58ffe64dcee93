package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/quizchest/quizchest/go/internal/game/content"
	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// ErrUnknownSession means no live host exists for a join code.
var ErrUnknownSession = errors.New("no active session for code")

// BankLoader resolves a content reference to its question bank. Used
// when resuming a persisted session.
type BankLoader func(ref string) (*content.Bank, error)

// SessionStore is the persistence surface the manager needs: snapshot
// load for resume, delete on explicit end.
type SessionStore interface {
	Saver
	LoadSession(ctx context.Context, code string) (*session.Store, error)
	DeleteSession(ctx context.Context, code string) error
}

type hostEntry struct {
	host   *Host
	cancel context.CancelFunc
}

// Manager tracks the live session hosts by join code. One process can
// run many concurrent sessions; each gets its own single-writer actor.
type Manager struct {
	mu    sync.RWMutex
	hosts map[string]*hostEntry

	broadcaster Broadcaster
	store       SessionStore
	loadBank    BankLoader
	clock       clockwork.Clock
}

// NewManager creates a session manager. store and loadBank may be nil
// when persistence/resume is disabled.
func NewManager(broadcaster Broadcaster, store SessionStore, loadBank BankLoader, clock clockwork.Clock) *Manager {
	return &Manager{
		hosts:       make(map[string]*hostEntry),
		broadcaster: broadcaster,
		store:       store,
		loadBank:    loadBank,
		clock:       clock,
	}
}

// CreateSession initializes a session against a question bank and starts
// its host actor. The join code is re-rolled until unique among active
// sessions.
func (m *Manager) CreateSession(ctx context.Context, req session.CreateSessionRequest, bank *content.Bank) (*Host, error) {
	req.ContentLen = len(bank.Questions)

	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Code == "" {
		code := session.NewCode(5)
		for m.hosts[code] != nil {
			code = session.NewCode(5)
		}
		req.Code = code
	} else if m.hosts[req.Code] != nil {
		return nil, fmt.Errorf("session code %q already active", req.Code)
	}

	store, err := session.Initialize(req)
	if err != nil {
		return nil, err
	}
	return m.startLocked(ctx, store, bank), nil
}

// ResumeSession restores a persisted session and starts a host for it.
func (m *Manager) ResumeSession(ctx context.Context, code string) (*Host, error) {
	if m.store == nil || m.loadBank == nil {
		return nil, fmt.Errorf("session resume is not configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hosts[code] != nil {
		return nil, fmt.Errorf("session code %q already active", code)
	}

	store, err := m.store.LoadSession(ctx, code)
	if err != nil {
		return nil, err
	}
	bank, err := m.loadBank(store.Options().BankRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load question bank for resume: %w", err)
	}
	return m.startLocked(ctx, store, bank), nil
}

func (m *Manager) startLocked(ctx context.Context, store *session.Store, bank *content.Bank) *Host {
	var saver Saver
	if m.store != nil {
		saver = m.store
	}
	eng := engine.New(store, bank, store.Options().Config, m.clock)
	h := New(eng, m.broadcaster, saver, m.clock)

	hostCtx, cancel := context.WithCancel(ctx)
	m.hosts[h.Code()] = &hostEntry{host: h, cancel: cancel}
	go func() {
		h.Run(hostCtx)
		m.mu.Lock()
		delete(m.hosts, h.Code())
		m.mu.Unlock()
	}()
	return h
}

// Get returns the live host for a join code.
func (m *Manager) Get(code string) (*Host, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry := m.hosts[code]
	if entry == nil {
		return nil, ErrUnknownSession
	}
	return entry.host, nil
}

// SubmitCommand routes a command to the session it targets. This is the
// action channel's entry point into the serialized host queue.
func (m *Manager) SubmitCommand(ctx context.Context, code string, cmd engine.Command) error {
	h, err := m.Get(code)
	if err != nil {
		return err
	}
	return h.Do(ctx, cmd)
}

// EndSession stops a session's host and clears its persisted record.
func (m *Manager) EndSession(ctx context.Context, code string) error {
	m.mu.Lock()
	entry := m.hosts[code]
	if entry != nil {
		delete(m.hosts, code)
	}
	m.mu.Unlock()

	if entry == nil {
		return ErrUnknownSession
	}
	entry.cancel()

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, code); err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to delete persisted session")
		}
	}
	return nil
}

// ActiveSessions returns the join codes of all live sessions.
func (m *Manager) ActiveSessions() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	codes := make([]string, 0, len(m.hosts))
	for code := range m.hosts {
		codes = append(codes, code)
	}
	return codes
}
