// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"fmt"
	"time"

	"github.com/tomtom215/marquee/internal/config"
)

// DefaultRelaySubject is the NATS subject envelopes are published on.
const DefaultRelaySubject = "marquee.relay"

// ConnConfig holds NATS client connection settings.
type ConnConfig struct {
	URL             string
	Name            string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	CloseTimeout    time.Duration
}

// DefaultConnConfig returns production defaults for a client connection.
func DefaultConnConfig(url string) ConnConfig {
	return ConnConfig{
		URL:             url,
		Name:            "marquee",
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 * 1024 * 1024, // 8MB
		CloseTimeout:    10 * time.Second,
	}
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host     string
	Port     int
	StoreDir string
	// JetStream enables the JetStream subsystem. The relay does not need it;
	// the presence KV mirror does.
	JetStream       bool
	JetStreamMaxMem int64
}

// DefaultServerConfig returns defaults for the embedded NATS server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		Port:            4222,
		StoreDir:        "/data/nats",
		JetStream:       true,
		JetStreamMaxMem: 256 << 20, // 256MB
	}
}

// RelayConfig identifies this instance on the relay subject.
type RelayConfig struct {
	Subject string
	// Origin is this instance's id. Envelopes carrying it are ignored on
	// receipt because they were already delivered locally.
	Origin string
}

// Validate checks that the relay can route envelopes.
func (c RelayConfig) Validate() error {
	if c.Subject == "" {
		return fmt.Errorf("%w: relay subject is required", ErrInvalidConfig)
	}
	if c.Origin == "" {
		return fmt.Errorf("%w: relay origin is required", ErrInvalidConfig)
	}
	return nil
}

// FromConfig derives connection, server and breaker settings from the
// process configuration.
func FromConfig(cfg config.NATSConfig) (ConnConfig, ServerConfig, CircuitBreakerConfig) {
	conn := DefaultConnConfig(cfg.URL)
	conn.MaxReconnects = cfg.MaxReconnects
	if cfg.ReconnectWait > 0 {
		conn.ReconnectWait = cfg.ReconnectWait
	}

	srv := DefaultServerConfig()
	srv.Host = cfg.Host
	srv.Port = cfg.Port
	srv.StoreDir = cfg.StoreDir

	cb := DefaultCircuitBreakerConfig("nats-relay")
	if cfg.BreakerThreshold > 0 {
		cb.FailureThreshold = cfg.BreakerThreshold
	}
	if cfg.BreakerTimeout > 0 {
		cb.Timeout = cfg.BreakerTimeout
	}
	return conn, srv, cb
}
