// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package websocket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/registry"
	"github.com/tomtom215/marquee/internal/validation"
)

// EventAuth is the name of the optional first frame carrying the credential.
const EventAuth = "auth"

// Config tunes per-connection resources.
type Config struct {
	SendBufferSize   int
	WriteWait        time.Duration
	PongWait         time.Duration
	MaxMessageSize   int64
	InboundRate      float64
	InboundBurst     int
	HandshakeTimeout time.Duration

	// CheckOrigin is passed to the upgrader. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		SendBufferSize:   256,
		WriteWait:        10 * time.Second,
		PongWait:         60 * time.Second,
		MaxMessageSize:   64 * 1024, // 64 KB
		InboundRate:      20,
		InboundBurst:     40,
		HandshakeTimeout: 5 * time.Second,
	}
}

// ConfigFrom builds a Config from the loaded settings.
func ConfigFrom(ws config.WebSocketConfig, a config.AuthConfig) Config {
	cfg := DefaultConfig()
	if ws.SendBufferSize > 0 {
		cfg.SendBufferSize = ws.SendBufferSize
	}
	if ws.WriteWait > 0 {
		cfg.WriteWait = ws.WriteWait
	}
	if ws.PongWait > 0 {
		cfg.PongWait = ws.PongWait
	}
	if ws.MaxMessageSize > 0 {
		cfg.MaxMessageSize = ws.MaxMessageSize
	}
	if ws.InboundRate > 0 {
		cfg.InboundRate = ws.InboundRate
	}
	if ws.InboundBurst > 0 {
		cfg.InboundBurst = ws.InboundBurst
	}
	if a.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = a.HandshakeTimeout
	}
	return cfg
}

// Session identifies the connection an inbound event arrived on.
type Session struct {
	ConnID    string
	UserID    string
	Namespace events.Namespace
}

// Handler processes one inbound event. A non-nil reply is sent to the
// originating connection only; errors are reported as events.ErrorReply.
type Handler interface {
	HandleInbound(ctx context.Context, s Session, evt events.Inbound) events.Outbound
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, s Session, evt events.Inbound) events.Outbound

// HandleInbound calls f.
func (f HandlerFunc) HandleInbound(ctx context.Context, s Session, evt events.Inbound) events.Outbound {
	return f(ctx, s, evt)
}

// Gateway serves the websocket endpoint of one namespace.
type Gateway struct {
	reg      *registry.Registry
	verifier auth.Verifier
	handler  Handler
	cfg      Config
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   zerolog.Logger
}

// NewGateway creates the gateway of reg's namespace.
func NewGateway(reg *registry.Registry, verifier auth.Verifier, handler Handler, cfg Config) *Gateway {
	ns := reg.Namespace()
	return &Gateway{
		reg:      reg,
		verifier: verifier,
		handler:  handler,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      cfg.CheckOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
		now:    time.Now,
		logger: logging.WithComponent("websocket").With().Str("namespace", string(ns)).Logger(),
	}
}

// Namespace returns the namespace served.
func (g *Gateway) Namespace() events.Namespace {
	return g.reg.Namespace()
}

// ServeHTTP upgrades, authenticates and then serves the connection until it
// closes. It blocks for the lifetime of the connection.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ns := string(g.Namespace())

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error.
		g.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(g.cfg.MaxMessageSize)

	subject, err := g.authenticate(r.Context(), conn, auth.TokenFromRequest(r))
	if err != nil {
		metrics.WSAuthFailures.WithLabelValues(ns).Inc()
		g.logger.Debug().Err(err).Str("remote_addr", r.RemoteAddr).Msg("websocket authentication failed")
		g.reject(conn, websocket.ClosePolicyViolation, closeReason(err))
		return
	}

	c := newClient(conn, subject.UserID, g.cfg)
	ctx := logging.ContextWithConnection(r.Context(), c.ID(), c.UserID())

	hello, err := events.Encode(events.Connected{
		ConnectionID: c.ID(),
		UserID:       c.UserID(),
		Namespace:    g.Namespace(),
		ServerTime:   g.now().UTC(),
	})
	if err == nil {
		c.Send(hello)
	}

	if err := g.reg.Register(c.UserID(), c); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("failed to register connection")
		g.reject(conn, websocket.CloseInternalServerErr, "registration failed")
		return
	}
	logging.Ctx(ctx).Debug().Str("namespace", ns).Str("auth_method", string(subject.Method)).Msg("websocket connected")

	go c.writePump()

	sess := Session{ConnID: c.ID(), UserID: c.UserID(), Namespace: g.Namespace()}
	limiter := rate.NewLimiter(rate.Limit(g.cfg.InboundRate), g.cfg.InboundBurst)
	c.readPump(ctx, func(ctx context.Context, raw []byte) {
		g.dispatch(ctx, sess, limiter, raw)
	})

	g.reg.Unregister(c.ID())
	c.Close()
	logging.Ctx(ctx).Debug().Str("namespace", ns).Msg("websocket disconnected")
}

// authenticate verifies token, or the auth frame when token is empty.
func (g *Gateway) authenticate(ctx context.Context, conn *websocket.Conn, token string) (*auth.Subject, error) {
	if token == "" {
		var err error
		if token, err = g.readAuthFrame(conn); err != nil {
			return nil, err
		}
	}

	vctx, cancel := context.WithTimeout(ctx, g.cfg.HandshakeTimeout)
	defer cancel()
	return g.verifier.Verify(vctx, token)
}

type authData struct {
	Token string `json:"token"`
}

func (g *Gateway) readAuthFrame(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(g.cfg.HandshakeTimeout)); err != nil {
		return "", err
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("%w: no auth frame: %v", auth.ErrNoCredentials, err)
	}

	var frame events.Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event != EventAuth {
		return "", fmt.Errorf("%w: first frame is not %s", auth.ErrNoCredentials, EventAuth)
	}
	var data authData
	if len(frame.Data) > 0 {
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return "", fmt.Errorf("%w: malformed auth frame", auth.ErrInvalidCredentials)
		}
	}
	return strings.TrimSpace(data.Token), nil
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoCredentials):
		return "missing credentials"
	case errors.Is(err, auth.ErrExpiredCredentials):
		return "credentials expired"
	default:
		return "invalid credentials"
	}
}

// reject closes a connection that never got registered.
func (g *Gateway) reject(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(g.cfg.WriteWait))
	_ = conn.Close()
}

// dispatch parses one frame and runs the handler. Everything the client
// did wrong is answered with an error frame; the connection stays open.
func (g *Gateway) dispatch(ctx context.Context, sess Session, limiter *rate.Limiter, raw []byte) {
	ns := string(sess.Namespace)

	if !limiter.Allow() {
		metrics.WSInboundEvents.WithLabelValues(ns, "invalid", "rate_limited").Inc()
		g.reply(ctx, sess, events.ErrorReply{Code: events.CodeRateLimited, Message: "too many events"})
		return
	}

	evt, err := events.ParseInbound(sess.Namespace, raw)
	if err != nil {
		code := parseErrorCode(err)
		metrics.WSInboundEvents.WithLabelValues(ns, "invalid", code).Inc()
		g.reply(ctx, sess, events.ErrorReply{Code: code, Message: err.Error()})
		return
	}

	reply := g.handler.HandleInbound(ctx, sess, evt)
	outcome := "ok"
	if er, ok := reply.(events.ErrorReply); ok {
		outcome = er.Code
	}
	metrics.WSInboundEvents.WithLabelValues(ns, evt.EventName(), outcome).Inc()
	if reply != nil {
		g.reply(ctx, sess, reply)
	}
}

func (g *Gateway) reply(ctx context.Context, sess Session, evt events.Outbound) {
	err := g.reg.SendTo(ctx, sess.ConnID, evt)
	if err != nil && !errors.Is(err, registry.ErrUnknownConnection) && !errors.Is(err, registry.ErrNoRecipients) {
		logging.Ctx(ctx).Warn().Err(err).Str("event", evt.EventName()).Msg("failed to send reply")
	}
}

func parseErrorCode(err error) string {
	var verr *validation.RequestValidationError
	switch {
	case errors.Is(err, events.ErrUnknownEvent):
		return events.CodeUnknownEvent
	case errors.As(err, &verr):
		return events.CodeValidationFailed
	default:
		return events.CodeMalformedFrame
	}
}

// OriginChecker accepts requests whose Origin is in allowed, or any origin
// when allowed contains "*". Requests without an Origin header come from
// native clients and are accepted.
func OriginChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
		return false
	}
}

// sanitizeLogValue strips control characters and bounds the length of a
// client-supplied value before it is logged.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	var b strings.Builder
	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
		if b.Len() >= maxLen {
			break
		}
	}
	return b.String()
}
