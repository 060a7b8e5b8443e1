package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"Healthbite/internal/conversation"
	"Healthbite/internal/geminiservice"
	"Healthbite/internal/server"
	"Healthbite/internal/session"
	"Healthbite/internal/utility"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func gracefulShutdown(apiServer *http.Server, store *session.Store, hub *utility.Hub, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Info().Msg("shutting down gracefully, press Ctrl+C again to force")
	stop() // Allow Ctrl+C to force shutdown

	// Sockets are hijacked, Shutdown does not wait for them.
	hub.Close()

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Abandon any completion still in flight.
	store.Close()

	log.Info().Msg("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}

	provider, err := geminiservice.NewProvider(cmd.Context(), &logger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("could not initialize completion provider: %w", err)
	}

	store := session.NewStore(cfg.Sessions, func(id string) *conversation.Driver {
		return conversation.NewDriver(provider, cfg.Conversation,
			conversation.WithLogger(logger.With().Str("session_id", id).Logger()))
	}, logger)
	hub := utility.NewHub(logger, nil)

	apiServer := server.NewServer(cfg, store, hub, logger)

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, store, hub, done)

	logger.Info().Str("addr", apiServer.Addr).Str("env", cfg.AppEnv).Str("provider", providerName()).Msg("Healthbite listening")
	if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Info().Msg("Graceful shutdown complete.")
	return nil
}

func providerName() string {
	if cfg.LLM.Provider == "" {
		return geminiservice.ProviderREST
	}
	return cfg.LLM.Provider
}
