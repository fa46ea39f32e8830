// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/database"
	"github.com/tomtom215/marquee/internal/eventprocessor"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/memstore"
	"github.com/tomtom215/marquee/internal/presence"
)

// Driver names accepted by the configuration.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	CacheBadger    = "badger"
	MirrorNATS     = "nats"
)

// opener accumulates what New has opened so a failure part way through can
// release it.
type opener struct {
	probes  []probe
	closers []closer
}

func (o *opener) onClose(name string, fn func(ctx context.Context) error) {
	o.closers = append(o.closers, closer{name: name, fn: fn})
}

func (o *opener) probe(name string, fn func(ctx context.Context) error) {
	o.probes = append(o.probes, probe{name: name, fn: fn})
}

func (o *opener) abort() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		_ = o.closers[i].fn(context.Background())
	}
}

// New opens every resource the configuration names and assembles the
// engine. On error everything opened so far is closed again.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg.Server.InstanceID == "" {
		cfg.Server.InstanceID = uuid.NewString()
	}

	o := &opener{}
	e, err := o.open(ctx, cfg)
	if err != nil {
		o.abort()
		return nil, err
	}
	return e, nil
}

func (o *opener) open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		return nil, err
	}

	stores, err := o.openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	comps := Components{Stores: stores, Verifier: verifier}
	if cfg.NATS.Enabled {
		if err := o.openNATS(ctx, cfg, &comps); err != nil {
			return nil, err
		}
	}

	e, err := Assemble(cfg, comps)
	if err != nil {
		return nil, err
	}
	e.probes = append(o.probes, e.probes...)
	e.closers = o.closers
	return e, nil
}

func newVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	mode, err := auth.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	switch mode {
	case auth.ModeFirebase:
		return auth.NewFirebaseVerifier(ctx, cfg.FirebaseCredentialsFile)
	default:
		return auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
}

func (o *opener) openStores(ctx context.Context, cfg *config.Config) (Stores, error) {
	var st Stores
	var mem *memstore.Store
	memory := func() *memstore.Store {
		if mem == nil {
			mem = memstore.New()
		}
		return mem
	}

	switch cfg.Storage.Driver {
	case DriverPostgres:
		pg, err := database.OpenPostgres(ctx, cfg.Storage.PostgresDSN, cfg.Storage.AutoMigrate)
		if err != nil {
			return st, err
		}
		o.onClose("postgres", func(context.Context) error { return pg.Close() })
		o.probe("postgres", pg.Ping)
		st.Directory, st.Notifications, st.Conversations = pg, pg, pg
	default:
		m := memory()
		st.Directory, st.Notifications, st.Conversations = m, m, m
	}

	switch cfg.Storage.ActivityDriver {
	case DriverMongo:
		mg, err := database.OpenMongo(ctx, cfg.Storage.MongoURI, cfg.Storage.MongoDatabase)
		if err != nil {
			return st, err
		}
		o.onClose("mongo", mg.Close)
		o.probe("mongo", mg.Ping)
		st.Activities = mg
	default:
		st.Activities = memory()
	}

	if cfg.Feed.Cache == CacheBadger {
		bs, err := cache.OpenBadgerStore(cfg.Feed.BadgerPath)
		if err != nil {
			return st, err
		}
		o.onClose("badger", func(context.Context) error { return bs.Close() })
		st.Pages = bs
	}

	if mem != nil {
		logging.Warn().Msg("Using in-memory stores; data is lost on restart")
	}
	return st, nil
}

// openNATS starts the embedded server when configured, then creates the
// relay publisher and subscriber and, for the nats presence mirror, the KV
// bucket.
func (o *opener) openNATS(ctx context.Context, cfg *config.Config, comps *Components) error {
	connCfg, srvCfg, cbCfg := eventprocessor.FromConfig(cfg.NATS)
	connCfg.Name = "marquee-" + cfg.Server.InstanceID
	wmLogger := eventprocessor.WatermillLogger()

	if cfg.NATS.EmbeddedServer {
		srvCfg.JetStream = cfg.Presence.Mirror == MirrorNATS
		srv, err := eventprocessor.NewEmbeddedServer(&srvCfg)
		if err != nil {
			return err
		}
		o.onClose("nats-server", srv.Shutdown)
		connCfg.URL = srv.ClientURL()
		logging.Info().Str("url", connCfg.URL).Bool("jetstream", srv.JetStreamEnabled()).Msg("Embedded NATS server started")
	}

	pub, err := eventprocessor.NewNATSPublisher(connCfg, wmLogger)
	if err != nil {
		return err
	}
	publisher := eventprocessor.NewPublisher(pub, eventprocessor.NewCircuitBreaker(cbCfg))
	o.onClose("relay-publisher", func(context.Context) error { return publisher.Close() })
	comps.Publisher = publisher

	sub, err := eventprocessor.NewNATSSubscriber(connCfg, wmLogger)
	if err != nil {
		return err
	}
	o.onClose("relay-subscriber", func(context.Context) error { return sub.Close() })
	comps.Subscriber = sub

	if cfg.Presence.Mirror != MirrorNATS {
		return nil
	}

	nc, err := eventprocessor.Connect(connCfg, wmLogger)
	if err != nil {
		return err
	}
	o.onClose("presence-nats", func(context.Context) error { return nc.Drain() })
	o.probe("nats", func(context.Context) error {
		if s := nc.Status(); s != natsgo.CONNECTED {
			return fmt.Errorf("nats connection is %s", s)
		}
		return nil
	})

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}
	kv, err := presence.NewKVMirror(ctx, js, cfg.Presence.KVBucket, cfg.Presence.MirrorTTL)
	if err != nil {
		return err
	}

	mirrorCB := eventprocessor.DefaultCircuitBreakerConfig("presence-mirror")
	if cfg.Presence.BreakerThreshold > 0 {
		mirrorCB.FailureThreshold = cfg.Presence.BreakerThreshold
	}
	if cfg.Presence.BreakerTimeout > 0 {
		mirrorCB.Timeout = cfg.Presence.BreakerTimeout
	}
	comps.Mirror = presence.NewBreakerMirror(kv, eventprocessor.NewCircuitBreaker(mirrorCB))
	return nil
}
