// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package eventprocessor

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

// chanConn is a registry.Conn that exposes received frames on a channel.
type chanConn struct {
	id     string
	frames chan []byte
}

func newChanConn(id string) *chanConn {
	return &chanConn{id: id, frames: make(chan []byte, 32)}
}

func (c *chanConn) ID() string { return c.id }

func (c *chanConn) Send(frame []byte) bool {
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

func (c *chanConn) Close() {}

func (c *chanConn) expectFrame(t *testing.T, contains string) {
	t.Helper()
	select {
	case f := <-c.frames:
		if !strings.Contains(string(f), contains) {
			t.Fatalf("frame %s does not contain %q", f, contains)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("conn %s: no frame containing %q", c.id, contains)
	}
}

func (c *chanConn) expectNoFrame(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case f := <-c.frames:
		t.Fatalf("conn %s: unexpected frame %s", c.id, f)
	case <-time.After(wait):
	}
}

type instance struct {
	relay *Relay
	reg   *registry.Registry
}

func newInstance(t *testing.T, origin string, pub message.Publisher, sub message.Subscriber) *instance {
	t.Helper()
	reg := registry.New(events.NamespacePresence)
	relay, err := NewRelay(RelayConfig{Subject: DefaultRelaySubject, Origin: origin}, pub, sub, reg)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	return &instance{relay: relay, reg: reg}
}

// serve runs the relay until the test ends and waits for its subscription.
func (in *instance) serve(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = in.relay.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	select {
	case <-in.relay.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not subscribe")
	}
}

func (in *instance) connect(t *testing.T, userID, connID string) *chanConn {
	t.Helper()
	c := newChanConn(connID)
	if err := in.reg.Register(userID, c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return c
}

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

func presenceEvent(userID string, status models.PresenceStatus) events.PresenceChange {
	return events.PresenceChange{UserID: userID, Status: status, Timestamp: time.Now().UTC()}
}

func TestNewRelay_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RelayConfig
		wantErr bool
	}{
		{"valid", RelayConfig{Subject: "s", Origin: "o"}, false},
		{"missing subject", RelayConfig{Origin: "o"}, true},
		{"missing origin", RelayConfig{Subject: "s"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRelay(tt.cfg, nil, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRelay_ForUnknownNamespacePanics(t *testing.T) {
	in := newInstance(t, "a", nil, nil)
	defer func() {
		if recover() == nil {
			t.Error("For(feed) did not panic")
		}
	}()
	in.relay.For(events.NamespaceFeed)
}

func TestRelay_LocalOnly(t *testing.T) {
	in := newInstance(t, "a", nil, nil)
	if in.relay.Remote() {
		t.Fatal("relay without publisher reports Remote")
	}
	c1 := in.connect(t, "u1", "c1")
	c2 := in.connect(t, "u2", "c2")
	emitter := in.relay.For(events.NamespacePresence)
	ctx := context.Background()

	if err := emitter.Emit(ctx, events.UserRoom("u1"), presenceEvent("u9", models.StatusAway)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	c1.expectFrame(t, `"presenceChange"`)
	c2.expectNoFrame(t, 20*time.Millisecond)

	err := emitter.Emit(ctx, events.UserRoom("nobody"), presenceEvent("u9", models.StatusAway))
	if !errors.Is(err, registry.ErrNoRecipients) {
		t.Errorf("Emit to empty room = %v, want ErrNoRecipients", err)
	}

	if err := emitter.Broadcast(ctx, presenceEvent("u9", models.StatusOnline)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	c1.expectFrame(t, `"online"`)
	c2.expectFrame(t, `"online"`)
}

func TestRelay_Serve_LocalOnlyBlocksUntilCanceled(t *testing.T) {
	in := newInstance(t, "a", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- in.relay.Serve(ctx) }()

	<-in.relay.Ready()
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRelay_CrossInstanceDelivery(t *testing.T) {
	ps := newPubSub(t)
	a := newInstance(t, "instance-a", ps, ps)
	b := newInstance(t, "instance-b", ps, ps)
	a.serve(t)
	b.serve(t)

	remote := b.connect(t, "u1", "c-b1")
	other := b.connect(t, "u2", "c-b2")

	// u1 is not connected to a; the emit still succeeds because b may hold it.
	err := a.relay.For(events.NamespacePresence).Emit(context.Background(), events.UserRoom("u1"), presenceEvent("u7", models.StatusAway))
	if err != nil {
		t.Fatalf("Emit = %v, want nil on a remote relay", err)
	}
	remote.expectFrame(t, `"userId":"u7"`)
	other.expectNoFrame(t, 50*time.Millisecond)
}

func TestRelay_CrossInstanceBroadcast(t *testing.T) {
	ps := newPubSub(t)
	a := newInstance(t, "instance-a", ps, ps)
	b := newInstance(t, "instance-b", ps, ps)
	a.serve(t)
	b.serve(t)

	local := a.connect(t, "u1", "c-a1")
	remote := b.connect(t, "u2", "c-b1")

	if err := a.relay.For(events.NamespacePresence).Broadcast(context.Background(), presenceEvent("u1", models.StatusOnline)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	local.expectFrame(t, `"presenceChange"`)
	remote.expectFrame(t, `"presenceChange"`)
}

func TestRelay_SkipsOwnEnvelopes(t *testing.T) {
	ps := newPubSub(t)
	a := newInstance(t, "instance-a", ps, ps)
	a.serve(t)
	c := a.connect(t, "u1", "c-a1")

	own := metrics.RelayReceived.WithLabelValues("own")
	before := testutil.ToFloat64(own)

	if err := a.relay.For(events.NamespacePresence).Emit(context.Background(), events.UserRoom("u1"), presenceEvent("u3", models.StatusAway)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	c.expectFrame(t, `"presenceChange"`)

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(own) <= before {
		if time.Now().After(deadline) {
			t.Fatal("own envelope was never received")
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.expectNoFrame(t, 50*time.Millisecond)
}

func TestRelay_InvalidEnvelopeIsSkipped(t *testing.T) {
	ps := newPubSub(t)
	b := newInstance(t, "instance-b", ps, ps)
	b.serve(t)
	c := b.connect(t, "u1", "c-b1")

	invalid := metrics.RelayReceived.WithLabelValues("invalid")
	before := testutil.ToFloat64(invalid)

	payloads := []string{
		`not json`,
		`{"origin":"instance-a","ns":"bogus","room":"user:u1","event":"x","frame":{}}`,
	}
	for _, p := range payloads {
		if err := ps.Publish(DefaultRelaySubject, message.NewMessage(watermill.NewUUID(), []byte(p))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	a := newInstance(t, "instance-a", ps, nil)
	if err := a.relay.For(events.NamespacePresence).Emit(context.Background(), events.UserRoom("u1"), presenceEvent("u5", models.StatusAway)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	c.expectFrame(t, `"userId":"u5"`)

	// gochannel does not order deliveries across Publish calls.
	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(invalid)-before < float64(len(payloads)) {
		if time.Now().After(deadline) {
			t.Fatalf("invalid envelopes = %v, want %d", testutil.ToFloat64(invalid)-before, len(payloads))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(string, ...*message.Message) error { return errors.New("nats down") }
func (failingPublisher) Close() error                              { return nil }

func TestRelay_PublishFailureStillDeliversLocally(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "relay-failure-test",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	})
	in := newInstance(t, "a", NewPublisher(failingPublisher{}, cb), nil)
	c := in.connect(t, "u1", "c1")
	emitter := in.relay.For(events.NamespacePresence)

	publishErrors := metrics.RelayErrors.WithLabelValues("publish")
	before := testutil.ToFloat64(publishErrors)

	for i := 0; i < 4; i++ {
		if err := emitter.Emit(context.Background(), events.UserRoom("u1"), presenceEvent("u2", models.StatusAway)); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
		c.expectFrame(t, `"presenceChange"`)
	}

	if got := testutil.ToFloat64(publishErrors) - before; got != 4 {
		t.Errorf("publish errors = %v, want 4", got)
	}
	if state := CircuitBreakerState(cb); state != "open" {
		t.Errorf("breaker state = %s, want open", state)
	}
}
