package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/quizchest/quizchest/go/internal/models"
	"github.com/rs/zerolog/log"
)

// RelayConfig holds JetStream settings for the snapshot relay. The relay
// lets spectator gateways on other instances serve a session they do not
// host: the host publishes every snapshot, remote gateways bridge them
// into their own connection pools.
type RelayConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	ConsumerName  string
	MaxReconnects int
	ReconnectWait time.Duration
	MaxAge        time.Duration
	AckWait       time.Duration
	MaxDeliver    int
}

// DefaultRelayConfig returns default relay configuration.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		StreamName:    "SESSION_EVENTS",
		SubjectPrefix: "session.events",
		ConsumerName:  "session-gateway",
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MaxAge:        time.Hour,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	}
}

func natsOptions(cfg RelayConfig) []nats.Option {
	return []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
}

// RelayPublisher mirrors every broadcast to a JetStream subject per
// session. It wraps the local connection manager so the host needs only
// one Broadcaster.
type RelayPublisher struct {
	local  *ConnectionManager
	nc     *nats.Conn
	js     jetstream.JetStream
	config RelayConfig
}

// NewRelayPublisher connects to NATS and ensures the snapshot stream.
func NewRelayPublisher(local *ConnectionManager, cfg RelayConfig) (*RelayPublisher, error) {
	nc, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	p := &RelayPublisher{local: local, nc: nc, js: js, config: cfg}

	if err := p.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

func (p *RelayPublisher) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        p.config.StreamName,
		Description: "Session snapshot stream for remote gateways",
		Subjects:    []string{fmt.Sprintf("%s.>", p.config.SubjectPrefix)},
		MaxAge:      p.config.MaxAge,
	}
	_, err := p.js.CreateOrUpdateStream(ctx, sc)
	return err
}

// BroadcastSnapshot fans out locally and mirrors to JetStream. A failed
// publish is logged and otherwise ignored: host state is authoritative
// and never rolls back because of a transport outage.
func (p *RelayPublisher) BroadcastSnapshot(code string, snapshot *models.Session) {
	p.local.BroadcastSnapshot(code, snapshot)

	msg, err := NewSnapshotMessage(snapshot)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to build relay frame")
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to marshal relay frame")
		return
	}

	subject := fmt.Sprintf("%s.%s", p.config.SubjectPrefix, code)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := p.js.Publish(ctx, subject, payload); err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to publish snapshot to relay")
	}
}

// Close shuts down the NATS connection.
func (p *RelayPublisher) Close() {
	p.nc.Close()
}

// RelayConsumer bridges relayed snapshots into a local connection
// manager, for gateway instances that do not host the session.
type RelayConsumer struct {
	local    *ConnectionManager
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   RelayConfig
}

// NewRelayConsumer connects to NATS and ensures a durable consumer on
// the snapshot stream.
func NewRelayConsumer(local *ConnectionManager, cfg RelayConfig) (*RelayConsumer, error) {
	nc, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	rc := &RelayConsumer{local: local, nc: nc, js: js, config: cfg}

	if err := rc.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return rc, nil
}

func (rc *RelayConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := rc.js.Stream(ctx, rc.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          rc.config.ConsumerName,
		Durable:       rc.config.ConsumerName,
		Description:   "Session gateway snapshot consumer",
		FilterSubject: fmt.Sprintf("%s.>", rc.config.SubjectPrefix),
		// Only the latest snapshot per session matters; each one is a
		// full state copy.
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    rc.config.MaxDeliver,
		AckWait:       rc.config.AckWait,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	rc.consumer = consumer
	return nil
}

// Start consumes relayed snapshots until ctx is canceled.
func (rc *RelayConsumer) Start(ctx context.Context) error {
	cc, err := rc.consumer.Consume(func(msg jetstream.Msg) {
		code := rc.codeFromSubject(msg.Subject())
		if code == "" {
			_ = msg.Ack()
			return
		}
		rc.local.BroadcastRaw(code, msg.Data())
		if err := msg.Ack(); err != nil {
			log.Error().Err(err).Str("code", code).Msg("failed to ack relayed snapshot")
		}
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	log.Info().
		Str("stream", rc.config.StreamName).
		Str("consumer", rc.config.ConsumerName).
		Msg("relay consumer started")

	<-ctx.Done()
	cc.Stop()
	rc.nc.Close()
	return nil
}

func (rc *RelayConsumer) codeFromSubject(subject string) string {
	prefix := rc.config.SubjectPrefix + "."
	if !strings.HasPrefix(subject, prefix) {
		return ""
	}
	return strings.TrimPrefix(subject, prefix)
}
