// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package engine wires the registries, presence tracker, notification
// dispatcher, activity service and messaging service into one process, and
// exposes the synchronous query surface the rest of the application calls.
//
// New opens every external resource named by the configuration. Assemble
// takes already-open components and is what tests use.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/activity"
	"github.com/tomtom215/marquee/internal/async"
	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/eventprocessor"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/messaging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/notification"
	"github.com/tomtom215/marquee/internal/presence"
	"github.com/tomtom215/marquee/internal/registry"
	"github.com/tomtom215/marquee/internal/websocket"
)

var (
	// ErrMissingComponent is returned by Assemble when a required
	// collaborator is nil.
	ErrMissingComponent = errors.New("engine: missing component")

	// ErrInvalidFollow is returned for a follow edge from a user to itself.
	ErrInvalidFollow = errors.New("engine: invalid follow")
)

// Directory is the user and follow-graph store.
type Directory interface {
	activity.Graph
	GetUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
	PutUser(ctx context.Context, u models.UserSummary) error
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error
}

// Stores groups the persistence the services read and write.
type Stores struct {
	Directory     Directory
	Notifications notification.Store
	Conversations messaging.Store
	Activities    activity.Store

	// Pages caches feed pages. Nil selects an in-memory TTL cache.
	Pages cache.PageStore
}

// Components are the collaborators Assemble wires together.
type Components struct {
	Stores   Stores
	Verifier auth.Verifier

	// Publisher and Subscriber carry relay envelopes between instances.
	// Both nil means local-only delivery.
	Publisher  message.Publisher
	Subscriber message.Subscriber

	// Mirror shares presence between instances. Nil selects an in-memory
	// mirror, which is only correct for a single instance.
	Mirror presence.Mirror

	// Runner schedules post-commit work. Nil selects the engine's queue.
	Runner async.Runner
}

// Check is the result of one readiness probe.
type Check struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type probe struct {
	name string
	fn   func(ctx context.Context) error
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Engine is one Marquee instance.
type Engine struct {
	cfg        *config.Config
	registries map[events.Namespace]*registry.Registry
	directory  Directory

	relay         *eventprocessor.Relay
	presence      *presence.Tracker
	notifications *notification.Dispatcher
	activity      *activity.Service
	messaging     *messaging.Service
	queue         *async.Queue
	hub           *websocket.Hub

	pageCache   *cache.Cache
	mirrorCache *cache.Cache
	badger      *cache.BadgerStore

	probes  []probe
	closers []closer
	logger  zerolog.Logger
}

// Assemble builds an engine from open components. Nothing is started; the
// caller supervises Queue, Relay and Hub.
func Assemble(cfg *config.Config, comps Components) (*Engine, error) {
	st := comps.Stores
	switch {
	case comps.Verifier == nil:
		return nil, fmt.Errorf("%w: verifier", ErrMissingComponent)
	case st.Directory == nil, st.Notifications == nil, st.Conversations == nil, st.Activities == nil:
		return nil, fmt.Errorf("%w: stores", ErrMissingComponent)
	}

	e := &Engine{
		cfg:        cfg,
		registries: make(map[events.Namespace]*registry.Registry, len(events.Namespaces)),
		directory:  st.Directory,
		logger:     logging.WithComponent("engine"),
	}

	regs := make([]*registry.Registry, 0, len(events.Namespaces))
	sources := make([]presence.Source, 0, len(events.Namespaces))
	for _, ns := range events.Namespaces {
		reg := registry.New(ns)
		e.registries[ns] = reg
		regs = append(regs, reg)
		sources = append(sources, reg)
	}

	origin := cfg.Server.InstanceID
	if origin == "" {
		origin = uuid.NewString()
	}
	subject := cfg.NATS.RelaySubject
	if subject == "" {
		subject = eventprocessor.DefaultRelaySubject
	}
	relay, err := eventprocessor.NewRelay(eventprocessor.RelayConfig{Subject: subject, Origin: origin}, comps.Publisher, comps.Subscriber, regs...)
	if err != nil {
		return nil, err
	}
	e.relay = relay

	e.queue = async.NewQueue(async.Config{
		Workers:     cfg.Async.Workers,
		QueueSize:   cfg.Async.QueueSize,
		TaskTimeout: cfg.Async.TaskTimeout,
	})
	runner := comps.Runner
	if runner == nil {
		runner = e.queue
	}

	mirror := comps.Mirror
	if mirror == nil {
		e.mirrorCache = cache.New(cfg.Presence.MirrorTTL)
		mirror = presence.NewCacheMirror(e.mirrorCache, cfg.Presence.MirrorTTL)
	}
	e.presence = presence.NewTracker(relay.For(events.NamespacePresence), mirror, sources...)

	e.notifications = notification.NewDispatcher(st.Notifications, st.Directory, relay.For(events.NamespaceNotifications), runner)

	pages := st.Pages
	if pages == nil {
		pages = cache.NewMemoryStore(cache.New(cfg.Feed.FeedTTL))
	}
	switch p := pages.(type) {
	case *cache.MemoryStore:
		e.pageCache = p.Cache()
	case *cache.BadgerStore:
		e.badger = p
	}
	e.activity = activity.NewService(feedConfig(cfg.Feed), activity.Deps{
		Store:    st.Activities,
		Graph:    st.Directory,
		Users:    st.Directory,
		Pages:    pages,
		Out:      relay.For(events.NamespaceFeed),
		Notifier: e.notifications,
		Runner:   runner,
	})

	e.messaging = messaging.NewService(st.Conversations, e.registries[events.NamespaceMessages], relay.For(events.NamespaceMessages))

	wsCfg := websocket.ConfigFrom(cfg.WebSocket, cfg.Auth)
	wsCfg.CheckOrigin = websocket.OriginChecker(cfg.Security.CORSOrigins)
	gateways := make([]*websocket.Gateway, 0, len(regs))
	for _, reg := range regs {
		gateways = append(gateways, websocket.NewGateway(reg, comps.Verifier, e, wsCfg))
	}
	e.hub = websocket.NewHub(gateways...)

	if relay.Remote() {
		e.probes = append(e.probes, probe{name: "relay", fn: e.relayReady})
	}

	e.logger.Info().
		Str("origin", origin).
		Bool("remote_relay", relay.Remote()).
		Str("auth", comps.Verifier.Name()).
		Msg("Engine assembled")
	return e, nil
}

func feedConfig(f config.FeedConfig) activity.Config {
	types := make([]models.ActivityType, 0, len(f.DiscoverTypes))
	for _, t := range f.DiscoverTypes {
		types = append(types, models.ActivityType(t))
	}
	return activity.Config{
		PageSize:      f.PageSize,
		FeedTTL:       f.FeedTTL,
		DiscoverTTL:   f.DiscoverTTL,
		DiscoverTypes: types,
	}
}

func (e *Engine) relayReady(context.Context) error {
	select {
	case <-e.relay.Ready():
		return nil
	default:
		return errors.New("relay subscription not established")
	}
}

// Registry returns the registry of ns, or nil for an unknown namespace.
func (e *Engine) Registry(ns events.Namespace) *registry.Registry {
	return e.registries[ns]
}

// Hub returns the websocket gateways.
func (e *Engine) Hub() *websocket.Hub {
	return e.hub
}

// Relay returns the cross-instance relay.
func (e *Engine) Relay() *eventprocessor.Relay {
	return e.relay
}

// Queue returns the post-commit task queue.
func (e *Engine) Queue() *async.Queue {
	return e.queue
}

// Readiness runs every probe with a short timeout.
func (e *Engine) Readiness(ctx context.Context) []Check {
	out := make([]Check, 0, len(e.probes))
	for _, p := range e.probes {
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := p.fn(pctx)
		cancel()

		c := Check{Name: p.name, Healthy: err == nil}
		if err != nil {
			c.Error = err.Error()
		}
		out = append(out, c)
	}
	return out
}

// Close releases everything New opened, in reverse order. Call it after the
// supervisor has stopped.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		c := e.closers[i]
		if err := c.fn(ctx); err != nil {
			e.logger.Warn().Err(err).Str("resource", c.name).Msg("Failed to close resource")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
