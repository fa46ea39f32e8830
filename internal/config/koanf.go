// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the config file locations searched in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/marquee/config.yaml",
	"/etc/marquee/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			Mode:             "jwt",
			HandshakeTimeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			SendBufferSize: 256,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 64 * 1024,
			InboundRate:    20,
			InboundBurst:   40,
		},
		Presence: PresenceConfig{
			Mirror:           "memory",
			MirrorTTL:        5 * time.Minute,
			RefreshInterval:  2 * time.Minute,
			KVBucket:         "PRESENCE",
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Feed: FeedConfig{
			PageSize:      20,
			FeedTTL:       2 * time.Minute,
			DiscoverTTL:   5 * time.Minute,
			DiscoverTypes: []string{"review"},
			Cache:         "memory",
			BadgerPath:    "/data/feedcache",
		},
		Storage: StorageConfig{
			Driver:         "memory",
			AutoMigrate:    true,
			ActivityDriver: "memory",
			MongoDatabase:  "marquee",
		},
		NATS: NATSConfig{
			Enabled:          false,
			URL:              "nats://127.0.0.1:4222",
			EmbeddedServer:   false,
			Host:             "127.0.0.1",
			Port:             4222,
			StoreDir:         "/data/nats",
			RelaySubject:     "marquee.relay",
			MaxReconnects:    -1,
			ReconnectWait:    2 * time.Second,
			BreakerThreshold: 5,
			BreakerTimeout:   30 * time.Second,
		},
		Async: AsyncConfig{
			Workers:     8,
			QueueSize:   1024,
			TaskTimeout: 30 * time.Second,
		},
		Security: SecurityConfig{
			CORSOrigins:     []string{"*"},
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
	}
}

// LoadWithKoanf loads configuration with layered sources:
//  1. built-in defaults
//  2. optional YAML file
//  3. environment variables
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed from comma-separated strings when set via env.
var sliceConfigPaths = []string{
	"security.cors_origins",
	"feed.discover_types",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Unmapped variables are ignored.
var envMappings = map[string]string{
	"http_port":             "server.port",
	"http_host":             "server.host",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",
	"instance_id":           "server.instance_id",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"auth_mode":                 "auth.mode",
	"jwt_secret":                "auth.jwt_secret",
	"jwt_issuer":                "auth.jwt_issuer",
	"firebase_credentials_file": "auth.firebase_credentials_file",
	"service_token":             "auth.service_token",
	"auth_handshake_timeout":    "auth.handshake_timeout",

	"ws_send_buffer":      "websocket.send_buffer_size",
	"ws_write_wait":       "websocket.write_wait",
	"ws_pong_wait":        "websocket.pong_wait",
	"ws_max_message_size": "websocket.max_message_size",
	"ws_inbound_rate":     "websocket.inbound_rate",
	"ws_inbound_burst":    "websocket.inbound_burst",

	"presence_mirror":            "presence.mirror",
	"presence_mirror_ttl":        "presence.mirror_ttl",
	"presence_refresh_interval":  "presence.refresh_interval",
	"presence_kv_bucket":         "presence.kv_bucket",
	"presence_breaker_threshold": "presence.breaker_threshold",
	"presence_breaker_timeout":   "presence.breaker_timeout",

	"feed_page_size":    "feed.page_size",
	"feed_ttl":          "feed.feed_ttl",
	"discover_ttl":      "feed.discover_ttl",
	"discover_types":    "feed.discover_types",
	"feed_cache":        "feed.cache",
	"feed_cache_badger": "feed.badger_path",

	"storage_driver":  "storage.driver",
	"database_url":    "storage.postgres_dsn",
	"db_auto_migrate": "storage.auto_migrate",
	"activity_driver": "storage.activity_driver",
	"mongo_uri":       "storage.mongo_uri",
	"mongo_database":  "storage.mongo_database",

	"nats_enabled":           "nats.enabled",
	"nats_url":               "nats.url",
	"nats_embedded":          "nats.embedded_server",
	"nats_host":              "nats.host",
	"nats_port":              "nats.port",
	"nats_store_dir":         "nats.store_dir",
	"nats_relay_subject":     "nats.relay_subject",
	"nats_max_reconnects":    "nats.max_reconnects",
	"nats_reconnect_wait":    "nats.reconnect_wait",
	"nats_breaker_threshold": "nats.breaker_threshold",
	"nats_breaker_timeout":   "nats.breaker_timeout",

	"async_workers":      "async.workers",
	"async_queue_size":   "async.queue_size",
	"async_task_timeout": "async.task_timeout",

	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
