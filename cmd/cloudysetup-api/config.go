// Package main implements the cloudysetup HTTP service. It exposes template
// generation, resource dispatch and request polling over JSON, with
// WebSocket and Server-Sent Events streams for watching a request.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// Environment variable names.
const (
	envPort           = "CLOUDYSETUP_PORT"
	envLogLevel       = "LOG_LEVEL"
	envRateLimit      = "CLOUDYSETUP_RATE_LIMIT"
	envRateBurst      = "CLOUDYSETUP_RATE_BURST"
	envOTLPEndpoint   = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envTracingEnabled = "OTEL_TRACING_ENABLED"
)

const (
	defaultPort      = 8000
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// apiConfig holds all configuration parsed from environment variables.
// Control-plane and model settings come from the shared cloudysetup config.
type apiConfig struct {
	Port           int
	LogLevel       slog.Level
	RateLimit      rate.Limit
	RateBurst      int
	OTLPEndpoint   string
	TracingEnabled bool
}

// loadConfig reads configuration from environment variables. Every
// variable is optional.
func loadConfig() (*apiConfig, error) {
	cfg := &apiConfig{
		Port:         defaultPort,
		LogLevel:     slog.LevelInfo,
		RateLimit:    defaultRateLimit,
		RateBurst:    defaultRateBurst,
		OTLPEndpoint: os.Getenv(envOTLPEndpoint),
	}

	if portStr := os.Getenv(envPort); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envPort, portStr, err)
		}
		if port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid %s %d: must be between 1 and 65535", envPort, port)
		}
		cfg.Port = port
	}

	if levelStr := os.Getenv(envLogLevel); levelStr != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(strings.ToUpper(levelStr))); err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envLogLevel, levelStr, err)
		}
	}

	if limitStr := os.Getenv(envRateLimit); limitStr != "" {
		limit, err := strconv.ParseFloat(limitStr, 64)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive number", envRateLimit, limitStr)
		}
		cfg.RateLimit = rate.Limit(limit)
	}

	if burstStr := os.Getenv(envRateBurst); burstStr != "" {
		burst, err := strconv.Atoi(burstStr)
		if err != nil || burst <= 0 {
			return nil, fmt.Errorf("invalid %s %q: must be a positive integer", envRateBurst, burstStr)
		}
		cfg.RateBurst = burst
	}

	if tracingStr := os.Getenv(envTracingEnabled); tracingStr != "" {
		enabled, err := strconv.ParseBool(tracingStr)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", envTracingEnabled, tracingStr, err)
		}
		cfg.TracingEnabled = enabled
	}

	return cfg, nil
}
