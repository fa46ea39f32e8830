// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/registry"
)

// Envelope is one relayed frame. An empty Room means broadcast to every
// connection in Namespace.
type Envelope struct {
	Origin    string           `json:"origin"`
	Namespace events.Namespace `json:"ns"`
	Room      events.RoomID    `json:"room,omitempty"`
	Event     string           `json:"event"`
	Frame     json.RawMessage  `json:"frame"`
}

// Relay delivers frames to local registries and mirrors them to other
// instances. Use For to obtain the emitter of one namespace.
type Relay struct {
	cfg        RelayConfig
	registries map[events.Namespace]*registry.Registry
	pub        message.Publisher
	sub        message.Subscriber
	logger     zerolog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// NewRelay creates a relay over regs. pub and sub may both be nil, in which
// case the relay only delivers locally.
func NewRelay(cfg RelayConfig, pub message.Publisher, sub message.Subscriber, regs ...*registry.Registry) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	byNS := make(map[events.Namespace]*registry.Registry, len(regs))
	for _, reg := range regs {
		byNS[reg.Namespace()] = reg
	}
	return &Relay{
		cfg:        cfg,
		registries: byNS,
		pub:        pub,
		sub:        sub,
		logger:     logging.WithComponent("relay"),
		ready:      make(chan struct{}),
	}, nil
}

// Remote reports whether envelopes are exchanged with other instances.
func (r *Relay) Remote() bool {
	return r.pub != nil
}

// Origin returns this instance's relay id.
func (r *Relay) Origin() string {
	return r.cfg.Origin
}

// For returns the emitter of namespace ns. It panics if no registry was
// supplied for ns; that is a wiring bug.
func (r *Relay) For(ns events.Namespace) *Emitter {
	reg, ok := r.registries[ns]
	if !ok {
		panic(fmt.Sprintf("eventprocessor: no registry for namespace %q", ns))
	}
	return &Emitter{relay: r, reg: reg}
}

// Emitter is the relay-aware delivery path of one namespace. It satisfies
// the Emit and Broadcast contracts the domain services depend on.
type Emitter struct {
	relay *Relay
	reg   *registry.Registry
}

// Emit delivers evt to the local members of room and publishes it to other
// instances. It returns registry.ErrNoRecipients only when the relay is
// local-only and nobody here is in the room.
func (e *Emitter) Emit(ctx context.Context, room events.RoomID, evt events.Outbound) error {
	frame, err := e.encode(evt)
	if err != nil {
		return err
	}
	delivered := e.reg.DeliverFrame(ctx, room, evt.EventName(), frame)
	e.relay.publish(ctx, Envelope{
		Namespace: e.reg.Namespace(),
		Room:      room,
		Event:     evt.EventName(),
		Frame:     frame,
	})
	if delivered == 0 && !e.relay.Remote() {
		metrics.RecordDeliveryFailure(string(e.reg.Namespace()), "no_recipients")
		return registry.ErrNoRecipients
	}
	return nil
}

// Broadcast delivers evt to every local connection of the namespace and to
// every connection on other instances.
func (e *Emitter) Broadcast(ctx context.Context, evt events.Outbound) error {
	frame, err := e.encode(evt)
	if err != nil {
		return err
	}
	e.reg.BroadcastFrame(ctx, evt.EventName(), frame)
	e.relay.publish(ctx, Envelope{
		Namespace: e.reg.Namespace(),
		Event:     evt.EventName(),
		Frame:     frame,
	})
	return nil
}

func (e *Emitter) encode(evt events.Outbound) ([]byte, error) {
	frame, err := events.Encode(evt)
	if err != nil {
		metrics.RecordDeliveryFailure(string(e.reg.Namespace()), "encode")
		return nil, err
	}
	return frame, nil
}

// publish is best-effort: local delivery already happened, so a relay
// failure is logged and counted but never returned to the caller.
func (r *Relay) publish(ctx context.Context, env Envelope) {
	if r.pub == nil {
		return
	}
	env.Origin = r.cfg.Origin

	payload, err := json.Marshal(env)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("marshal").Inc()
		r.logger.Error().Err(err).Str("event", env.Event).Msg("Failed to marshal relay envelope")
		return
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("origin", r.cfg.Origin)
	msg.Metadata.Set("namespace", string(env.Namespace))
	msg.SetContext(ctx)

	if err := r.pub.Publish(r.cfg.Subject, msg); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str("namespace", string(env.Namespace)).
			Str("event", env.Event).
			Msg("Relay publish failed, delivered locally only")
	}
}

// Ready is closed once Serve has subscribed to the relay subject.
func (r *Relay) Ready() <-chan struct{} {
	return r.ready
}

// Serve consumes envelopes from other instances until ctx is canceled. On a
// local-only relay it blocks until ctx is done.
func (r *Relay) Serve(ctx context.Context) error {
	if r.sub == nil {
		r.readyOnce.Do(func() { close(r.ready) })
		<-ctx.Done()
		return ctx.Err()
	}

	messages, err := r.sub.Subscribe(ctx, r.cfg.Subject)
	if err != nil {
		metrics.RelayErrors.WithLabelValues("subscribe").Inc()
		return fmt.Errorf("subscribe to %s: %w", r.cfg.Subject, err)
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.Info().Str("subject", r.cfg.Subject).Str("origin", r.cfg.Origin).Msg("Relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("relay subscription to %s closed", r.cfg.Subject)
			}
			outcome, err := r.handle(ctx, msg.Payload)
			metrics.RelayReceived.WithLabelValues(outcome).Inc()
			if err != nil {
				r.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("Dropping relay message")
			}
			// At-most-once: a frame that failed to decode will not decode on
			// redelivery either.
			msg.Ack()
		}
	}
}

// handle delivers one envelope and returns the outcome label.
func (r *Relay) handle(ctx context.Context, payload []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return "invalid", fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.Origin == r.cfg.Origin {
		return "own", nil
	}
	reg, ok := r.registries[env.Namespace]
	if !ok || len(env.Frame) == 0 {
		return "invalid", fmt.Errorf("%w: namespace %q", ErrInvalidEnvelope, env.Namespace)
	}

	if env.Room == "" {
		reg.BroadcastFrame(ctx, env.Event, env.Frame)
	} else {
		// Zero local members is the common case for a user connected
		// elsewhere, so the count is not checked.
		reg.DeliverFrame(ctx, env.Room, env.Event, env.Frame)
	}
	return "delivered", nil
}

// String implements fmt.Stringer for suture logging.
func (r *Relay) String() string {
	return "nats-relay"
}

// WatermillLogger returns the logger adapter used for relay transports.
func WatermillLogger() watermill.LoggerAdapter {
	return logging.NewWatermillLogger("watermill")
}
