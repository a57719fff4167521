// Command mcp-mercora exposes the Mercora gateway tools to MCP clients over
// stdio. It forwards each tool call to a running gateway with the agent's
// API key.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soyeahso/mercora/internal/logging"
)

func main() {
	log, closer, err := logging.NewFromOptions(logging.Options{
		Level:        envOr("MERCORA_LOG_LEVEL", "info"),
		ConsoleStyle: "json",
		File:         os.Getenv("MERCORA_MCP_LOG"),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer closer.Close()

	opts := Options{
		GatewayURL:   envOr("MERCORA_URL", "http://127.0.0.1:18790/mcp"),
		APIKey:       os.Getenv("MERCORA_API_KEY"),
		AgentContext: os.Getenv("MERCORA_AGENT_CONTEXT"),
	}
	if opts.APIKey == "" {
		log.Error().Msg("MERCORA_API_KEY is not set")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := NewServer(opts, &http.Client{Timeout: 30 * time.Second}, os.Stdout, log)
	if err := srv.Run(ctx, os.Stdin); err != nil {
		log.Error().Err(err).Msg("reading stdin")
	}
	log.Info().Msg("server shutting down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
