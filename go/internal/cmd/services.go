package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/quizchest/quizchest/go/internal/game/content"
	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/gateway"
	"github.com/quizchest/quizchest/go/internal/game/host"
	"github.com/quizchest/quizchest/go/internal/game/session"
	"github.com/rs/zerolog/log"
)

// Services holds the wired application components.
type Services struct {
	Manager        *gateway.SessionHandler
	WebSocket      *gateway.WebSocketHandler
	ConnManager    *gateway.ConnectionManager
	RelayPublisher *gateway.RelayPublisher
}

// sinkProxy breaks the construction cycle between the connection
// manager (needs an intent sink) and the host manager (needs a
// broadcaster). The target is set once during setup, before any
// connection can exist.
type sinkProxy struct {
	target *host.Manager
}

func (p *sinkProxy) SubmitCommand(ctx context.Context, code string, cmd engine.Command) error {
	return p.target.SubmitCommand(ctx, code, cmd)
}

func setupServices(cfg *Config, db *sql.DB) (*Services, error) {
	loadBank := bankLoader(cfg.Content.Dir)

	repo := session.NewRepository(db)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		return nil, err
	}

	proxy := &sinkProxy{}
	connManager := gateway.NewConnectionManager(proxy, gateway.DefaultConnectionConfig())

	var broadcaster host.Broadcaster = connManager
	var relay *gateway.RelayPublisher
	if cfg.NATS.Enabled {
		relayCfg := gateway.DefaultRelayConfig()
		if cfg.NATS.URL != "" {
			relayCfg.URL = cfg.NATS.URL
		}
		var err error
		relay, err = gateway.NewRelayPublisher(connManager, relayCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to set up snapshot relay: %w", err)
		}
		broadcaster = relay
		log.Info().Str("url", relayCfg.URL).Msg("snapshot relay enabled")
	}

	manager := host.NewManager(broadcaster, repo, loadBank, clockwork.NewRealClock())
	proxy.target = manager

	return &Services{
		Manager:        gateway.NewSessionHandler(manager, loadBank, cfg.Game),
		WebSocket:      gateway.NewWebSocketHandler(connManager),
		ConnManager:    connManager,
		RelayPublisher: relay,
	}, nil
}

// bankLoader resolves bank refs to YAML files under the content dir.
func bankLoader(dir string) host.BankLoader {
	return func(ref string) (*content.Bank, error) {
		if ref == "" {
			return nil, fmt.Errorf("question bank ref is empty")
		}
		return content.LoadBank(filepath.Join(dir, ref+".yaml"))
	}
}
