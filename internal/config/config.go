// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package config loads Marquee configuration from defaults, an optional YAML
// file, a .env file and environment variables, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Auth      AuthConfig      `koanf:"auth"`
	WebSocket WebSocketConfig `koanf:"websocket"`
	Presence  PresenceConfig  `koanf:"presence"`
	Feed      FeedConfig      `koanf:"feed"`
	Storage   StorageConfig   `koanf:"storage"`
	NATS      NATSConfig      `koanf:"nats"`
	Async     AsyncConfig     `koanf:"async"`
	Security  SecurityConfig  `koanf:"security"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`

	// InstanceID identifies this process on the relay. Generated when empty.
	InstanceID string `koanf:"instance_id"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// AuthConfig selects how bearer credentials are verified at connect time.
type AuthConfig struct {
	// Mode is "jwt" (HMAC shared secret) or "firebase".
	Mode      string `koanf:"mode"`
	JWTSecret string `koanf:"jwt_secret"`
	JWTIssuer string `koanf:"jwt_issuer"`

	FirebaseCredentialsFile string `koanf:"firebase_credentials_file"`

	// ServiceToken guards the internal HTTP query surface. Empty disables it.
	ServiceToken string `koanf:"service_token"`

	// HandshakeTimeout bounds how long a connection may stay unauthenticated
	// while waiting for an auth frame.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
}

// WebSocketConfig tunes per-connection resources.
type WebSocketConfig struct {
	SendBufferSize int           `koanf:"send_buffer_size"`
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	InboundRate    float64       `koanf:"inbound_rate"`
	InboundBurst   int           `koanf:"inbound_burst"`
}

// PresenceConfig controls the shared presence mirror.
type PresenceConfig struct {
	// Mirror is "nats" (JetStream KV) or "memory".
	Mirror           string        `koanf:"mirror"`
	MirrorTTL        time.Duration `koanf:"mirror_ttl"`
	RefreshInterval  time.Duration `koanf:"refresh_interval"`
	KVBucket         string        `koanf:"kv_bucket"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// FeedConfig controls feed pagination and the page cache.
type FeedConfig struct {
	PageSize      int           `koanf:"page_size"`
	FeedTTL       time.Duration `koanf:"feed_ttl"`
	DiscoverTTL   time.Duration `koanf:"discover_ttl"`
	DiscoverTypes []string      `koanf:"discover_types"`

	// Cache is "memory" or "badger".
	Cache      string `koanf:"cache"`
	BadgerPath string `koanf:"badger_path"`
}

// StorageConfig selects persistence drivers.
type StorageConfig struct {
	// Driver is "memory" or "postgres" for notifications, follows, users and
	// conversations.
	Driver      string `koanf:"driver"`
	PostgresDSN string `koanf:"postgres_dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`

	// ActivityDriver is "memory" or "mongo".
	ActivityDriver string `koanf:"activity_driver"`
	MongoURI       string `koanf:"mongo_uri"`
	MongoDatabase  string `koanf:"mongo_database"`
}

// NATSConfig controls the cross-instance relay and the embedded server.
type NATSConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url"`
	EmbeddedServer   bool          `koanf:"embedded_server"`
	Host             string        `koanf:"host"`
	Port             int           `koanf:"port"`
	StoreDir         string        `koanf:"store_dir"`
	RelaySubject     string        `koanf:"relay_subject"`
	MaxReconnects    int           `koanf:"max_reconnects"`
	ReconnectWait    time.Duration `koanf:"reconnect_wait"`
	BreakerThreshold uint32        `koanf:"breaker_threshold"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
}

// AsyncConfig sizes the post-commit side-effect queue.
type AsyncConfig struct {
	Workers     int           `koanf:"workers"`
	QueueSize   int           `koanf:"queue_size"`
	TaskTimeout time.Duration `koanf:"task_timeout"`
}

// SecurityConfig covers the HTTP surface.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// IsProduction reports whether production checks apply.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DotEnvPath is the .env file read by Load when present.
var DotEnvPath = ".env"

// Load reads .env (if present) into the process environment and then loads
// the layered configuration.
func Load() (*Config, error) {
	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvPath, err)
	}
	return LoadWithKoanf()
}
