// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package eventprocessor relays encoded websocket frames between Marquee
// instances over NATS using Watermill.
//
// Each instance owns the connections that dialed it. When a domain service
// emits an event, the Relay delivers it to local room members immediately
// and publishes an Envelope on the relay subject. Every other instance
// receives the envelope and delivers the same frame to its own members:
//
//	┌────────────┐  Emit   ┌───────┐  DeliverFrame  ┌──────────────┐
//	│ notification│ ─────▶ │ Relay │ ─────────────▶ │ local registry│
//	│ activity    │        └───┬───┘                └──────────────┘
//	│ messaging   │            │ publish (breaker)
//	└────────────┘            ▼
//	                  ┌────────────────┐   subscribe   ┌─────────────────┐
//	                  │ NATS core subj │ ────────────▶ │ other instances │
//	                  │ marquee.relay  │               │ (skip own origin)│
//	                  └────────────────┘               └─────────────────┘
//
// The relay uses core NATS with no queue group, so every instance sees every
// envelope. Delivery is at-most-once; clients recover missed events by
// refetching through the query surface.
//
// When NATS is disabled the Relay has no publisher and degrades to local-only
// delivery. Publishing goes through a gobreaker circuit breaker so a NATS
// outage costs one failed call per breaker window rather than one per event.
//
// An EmbeddedServer is available for single-node deployments and tests. It
// also enables JetStream so the presence KV mirror can run without an
// external NATS cluster.
package eventprocessor
