// Copyright (C) 2025 StratForge AI (dev@stratforge.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command backend starts the StratForge strategy backend HTTP server.
//
// It reads configuration from environment variables (a local .env file is
// loaded when present) and starts the server.
//
// # Environment Variables
//
//   - BACKEND_PORT: HTTP server port (default: 12400)
//   - BACKEND_DB_PATH: Badger data directory (default: ./data/stratforge)
//   - BACKEND_DB_INMEMORY: "true" runs the store without persistence
//   - BACKEND_WEBHOOK_SECRET: shared HMAC secret for billing webhooks
//   - BACKEND_AUTH_TOKENS: "token:account,..." bearer token table
//   - BACKEND_REANALYZE_COST: coin price of one re-analysis (default: 2)
//   - LLM_BACKEND_TYPE: generator backend - openai, static (default: openai)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//   - LOG_FORMAT: "text" for colorized console logs, JSON otherwise
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//
// # Usage
//
//	go build -o backend ./cmd/backend
//	./backend
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/stratforge-ai/stratforge/pkg/logging"
	"github.com/stratforge-ai/stratforge/services/backend"
)

func main() {
	// Optional: a .env next to the binary keeps local runs simple.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	logging.Setup(logging.Config{
		Format:  os.Getenv("LOG_FORMAT"),
		Level:   os.Getenv("LOG_LEVEL"),
		Service: "backend",
	})

	cfg := backend.Config{
		Port:          getEnvInt("BACKEND_PORT", 12400),
		DBPath:        getEnvString("BACKEND_DB_PATH", "./data/stratforge"),
		InMemoryDB:    os.Getenv("BACKEND_DB_INMEMORY") == "true",
		WebhookSecret: os.Getenv("BACKEND_WEBHOOK_SECRET"),
		AuthTokens:    os.Getenv("BACKEND_AUTH_TOKENS"),
		ReanalyzeCost: int64(getEnvInt("BACKEND_REANALYZE_COST", 2)),
		LLMBackend:    getEnvString("LLM_BACKEND_TYPE", "openai"),
		OTelEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		GinMode:       os.Getenv("GIN_MODE"),
	}

	slog.Info("Starting backend",
		"port", cfg.Port,
		"llm_backend", cfg.LLMBackend,
		"db_path", cfg.DBPath,
		"in_memory", cfg.InMemoryDB,
	)

	svc, err := backend.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create backend: %v", err)
	}

	// Close on SIGINT/SIGTERM so in-flight generation tasks stop cleanly
	// and the store releases its lock.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutdown signal received")
		if err := svc.Close(); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		os.Exit(0)
	}()

	if err := svc.Run(); err != nil {
		log.Fatalf("Backend error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
