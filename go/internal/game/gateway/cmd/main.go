package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/quizchest/quizchest/go/internal/game/engine"
	"github.com/quizchest/quizchest/go/internal/game/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// readOnlySink rejects every intent. Spectator gateways relay
// snapshots from the hosting instance; they never apply commands
// themselves.
type readOnlySink struct{}

var errReadOnlyGateway = errors.New("session is hosted on another instance")

func (readOnlySink) SubmitCommand(ctx context.Context, code string, cmd engine.Command) error {
	return errReadOnlyGateway
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	port := getEnv("GATEWAY_PORT", "8081")

	relayCfg := gateway.DefaultRelayConfig()
	relayCfg.URL = getEnv("NATS_URL", relayCfg.URL)
	relayCfg.ConsumerName = getEnv("GATEWAY_CONSUMER", relayCfg.ConsumerName)

	log.Info().
		Str("nats_url", relayCfg.URL).
		Str("consumer", relayCfg.ConsumerName).
		Str("port", port).
		Msg("starting spectator gateway")

	connManager := gateway.NewConnectionManager(readOnlySink{}, gateway.DefaultConnectionConfig())

	consumer, err := gateway.NewRelayConsumer(connManager, relayCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create relay consumer")
	}

	wsHandler := gateway.NewWebSocketHandler(connManager)

	mux := http.NewServeMux()
	wsHandler.RegisterRoutes(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      gateway.CORSMiddleware(mux),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go connManager.Start(ctx)

	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("relay consumer failed")
		}
	}()

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()

	// Give the consumer time to drain
	time.Sleep(1 * time.Second)

	log.Info().Msg("spectator gateway shutdown complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
