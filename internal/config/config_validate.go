// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/marquee/internal/logging"
)

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateAuth,
		c.validateWebSocket,
		c.validatePresence,
		c.validateFeed,
		c.validateStorage,
		c.validateNATS,
		c.validateAsync,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP_SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
}

func (c *Config) validateAuth() error {
	switch c.Auth.Mode {
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters when AUTH_MODE=jwt")
		}
	case "firebase":
		if c.Auth.FirebaseCredentialsFile == "" {
			return fmt.Errorf("FIREBASE_CREDENTIALS_FILE is required when AUTH_MODE=firebase")
		}
	default:
		return fmt.Errorf("AUTH_MODE must be jwt or firebase, got %q", c.Auth.Mode)
	}
	if c.Auth.HandshakeTimeout <= 0 {
		return fmt.Errorf("AUTH_HANDSHAKE_TIMEOUT must be positive")
	}
	if c.Server.IsProduction() && c.Auth.ServiceToken == "" {
		return fmt.Errorf("SERVICE_TOKEN is required in production")
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	ws := c.WebSocket
	if ws.SendBufferSize < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be at least 1, got %d", ws.SendBufferSize)
	}
	if ws.PongWait <= 0 || ws.WriteWait <= 0 {
		return fmt.Errorf("WS_PONG_WAIT and WS_WRITE_WAIT must be positive")
	}
	if ws.MaxMessageSize < 512 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be at least 512 bytes")
	}
	if ws.InboundRate <= 0 || ws.InboundBurst < 1 {
		return fmt.Errorf("WS_INBOUND_RATE and WS_INBOUND_BURST must be positive")
	}
	return nil
}

func (c *Config) validatePresence() error {
	switch c.Presence.Mirror {
	case "memory":
	case "nats":
		if !c.NATS.Enabled {
			return fmt.Errorf("PRESENCE_MIRROR=nats requires NATS_ENABLED=true")
		}
		if c.Presence.KVBucket == "" {
			return fmt.Errorf("PRESENCE_KV_BUCKET is required when PRESENCE_MIRROR=nats")
		}
	default:
		return fmt.Errorf("PRESENCE_MIRROR must be memory or nats, got %q", c.Presence.Mirror)
	}
	if c.Presence.MirrorTTL <= 0 {
		return fmt.Errorf("PRESENCE_MIRROR_TTL must be positive")
	}
	if c.Presence.RefreshInterval <= 0 || c.Presence.RefreshInterval >= c.Presence.MirrorTTL {
		return fmt.Errorf("PRESENCE_REFRESH_INTERVAL must be positive and shorter than PRESENCE_MIRROR_TTL")
	}
	return nil
}

var activityTypes = map[string]bool{
	"review": true, "follow": true, "watchlist": true, "like": true, "comment": true,
}

func (c *Config) validateFeed() error {
	f := c.Feed
	if f.PageSize < 1 || f.PageSize > 100 {
		return fmt.Errorf("FEED_PAGE_SIZE must be between 1 and 100, got %d", f.PageSize)
	}
	if f.FeedTTL <= 0 || f.DiscoverTTL <= 0 {
		return fmt.Errorf("FEED_TTL and DISCOVER_TTL must be positive")
	}
	if len(f.DiscoverTypes) == 0 {
		return fmt.Errorf("DISCOVER_TYPES must name at least one activity type")
	}
	for _, t := range f.DiscoverTypes {
		if !activityTypes[t] {
			return fmt.Errorf("DISCOVER_TYPES contains unknown activity type %q", t)
		}
	}
	switch f.Cache {
	case "memory":
	case "badger":
		if f.BadgerPath == "" {
			return fmt.Errorf("FEED_CACHE_BADGER is required when FEED_CACHE=badger")
		}
	default:
		return fmt.Errorf("FEED_CACHE must be memory or badger, got %q", f.Cache)
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	switch s.Driver {
	case "memory":
	case "postgres":
		if s.PostgresDSN == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be memory or postgres, got %q", s.Driver)
	}
	switch s.ActivityDriver {
	case "memory":
	case "mongo":
		if !strings.HasPrefix(s.MongoURI, "mongodb://") && !strings.HasPrefix(s.MongoURI, "mongodb+srv://") {
			return fmt.Errorf("MONGO_URI must be a mongodb:// or mongodb+srv:// URI when ACTIVITY_DRIVER=mongo")
		}
		if s.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE is required when ACTIVITY_DRIVER=mongo")
		}
	default:
		return fmt.Errorf("ACTIVITY_DRIVER must be memory or mongo, got %q", s.ActivityDriver)
	}
	if s.Driver == "memory" && s.ActivityDriver == "mongo" {
		return fmt.Errorf("ACTIVITY_DRIVER=mongo requires STORAGE_DRIVER=postgres for the social graph")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil || (u.Scheme != "nats" && u.Scheme != "tls") {
		return fmt.Errorf("NATS_URL must be a nats:// or tls:// URL, got %q", c.NATS.URL)
	}
	if c.NATS.RelaySubject == "" {
		return fmt.Errorf("NATS_RELAY_SUBJECT is required when NATS_ENABLED=true")
	}
	if c.NATS.EmbeddedServer && (c.NATS.Port < 1 || c.NATS.Port > 65535) {
		return fmt.Errorf("NATS_PORT must be between 1 and 65535, got %d", c.NATS.Port)
	}
	return nil
}

func (c *Config) validateAsync() error {
	if c.Async.Workers < 1 {
		return fmt.Errorf("ASYNC_WORKERS must be at least 1, got %d", c.Async.Workers)
	}
	if c.Async.QueueSize < 1 {
		return fmt.Errorf("ASYNC_QUEUE_SIZE must be at least 1, got %d", c.Async.QueueSize)
	}
	if c.Async.TaskTimeout <= 0 {
		return fmt.Errorf("ASYNC_TASK_TIMEOUT must be positive")
	}
	return nil
}
