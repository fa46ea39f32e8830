// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/marquee/internal/async"
	"github.com/tomtom215/marquee/internal/auth"
	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/engine"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/memstore"
	"github.com/tomtom215/marquee/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

const testServiceToken = "internal-secret"

// userIDVerifier accepts any non-empty token as the user id it names.
type userIDVerifier struct{}

func (userIDVerifier) Verify(_ context.Context, token string) (*auth.Subject, error) {
	if token == "" {
		return nil, auth.ErrInvalidCredentials
	}
	return &auth.Subject{UserID: token}, nil
}

func (userIDVerifier) Name() string { return "test" }

func testConfig(serviceToken string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{InstanceID: "api-test"},
		Auth:   config.AuthConfig{ServiceToken: serviceToken},
		Presence: config.PresenceConfig{
			MirrorTTL: time.Minute,
		},
		Feed: config.FeedConfig{
			PageSize:      10,
			FeedTTL:       time.Minute,
			DiscoverTTL:   time.Minute,
			DiscoverTypes: []string{"review"},
		},
		Async:    config.AsyncConfig{Workers: 1, QueueSize: 8, TaskTimeout: time.Second},
		Security: config.SecurityConfig{RateLimitDisabled: true},
	}
}

type testServer struct {
	engine  *engine.Engine
	handler http.Handler
}

func newTestServer(t *testing.T, serviceToken string) *testServer {
	t.Helper()
	cfg := testConfig(serviceToken)
	st := memstore.New()
	eng, err := engine.Assemble(cfg, engine.Components{
		Stores: engine.Stores{
			Directory:     st,
			Notifications: st,
			Conversations: st,
			Activities:    st,
		},
		Verifier: userIDVerifier{},
		Runner:   async.Inline{Timeout: time.Second},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	h := NewHandler(eng, eng.Hub())
	return &testServer{engine: eng, handler: NewRouter(cfg, h).SetupChi()}
}

// do sends an internal API request with the service token.
func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Authorization", "Bearer "+testServiceToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder, into interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	if into != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, into); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testServiceToken)

	tests := []struct {
		path       string
		wantStatus string
	}{
		{"/healthz/live", "alive"},
		{"/healthz/ready", "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			var body struct {
				Status string `json:"status"`
			}
			decodeEnvelope(t, rec, &body)
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if rec.Header().Get("X-Request-ID") == "" {
				t.Error("missing X-Request-ID")
			}
			if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Error("missing security headers")
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testServiceToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "marquee_") {
		t.Error("exposition lacks marquee metrics")
	}
}

func TestInternalAPI_Auth(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"valid token", testServiceToken, "Bearer " + testServiceToken, http.StatusOK},
		{"missing token", testServiceToken, "", http.StatusUnauthorized},
		{"wrong token", testServiceToken, "Bearer nope", http.StatusUnauthorized},
		{"disabled surface", "", "Bearer anything", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.token)
			req := httptest.NewRequest(http.MethodGet, "/internal/v1/presence/online", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestInternalAPI_Presence(t *testing.T) {
	ts := newTestServer(t, testServiceToken)

	rec := ts.do(t, http.MethodGet, "/internal/v1/presence/connections", nil)
	var conns ConnectionsResponse
	decodeEnvelope(t, rec, &conns)
	if rec.Code != http.StatusOK || conns.Count != 0 {
		t.Errorf("connections = %d (%d), want 0", conns.Count, rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/internal/v1/presence/u1", nil)
	var one UserPresenceResponse
	decodeEnvelope(t, rec, &one)
	if one.Status != models.StatusOffline || one.ConnectedHere {
		t.Errorf("presence of unknown user = %+v", one)
	}

	rec = ts.do(t, http.MethodPost, "/internal/v1/presence/bulk", PresenceBulkRequest{UserIDs: []string{"u2", "u1"}})
	var bulk []models.PresenceRecord
	decodeEnvelope(t, rec, &bulk)
	if len(bulk) != 2 || bulk[0].UserID != "u2" || bulk[1].UserID != "u1" {
		t.Errorf("bulk = %+v, want u2 then u1", bulk)
	}

	rec = ts.do(t, http.MethodPost, "/internal/v1/presence/bulk", PresenceBulkRequest{})
	env := decodeEnvelope(t, rec, nil)
	if rec.Code != http.StatusBadRequest || env.Error == nil || env.Error.Code != ErrCodeValidation {
		t.Errorf("empty bulk = %d %+v, want 400 VALIDATION_ERROR", rec.Code, env.Error)
	}
}

func TestInternalAPI_Notifications(t *testing.T) {
	ts := newTestServer(t, testServiceToken)

	tests := []struct {
		name       string
		body       map[string]interface{}
		wantStatus int
	}{
		{"created", map[string]interface{}{"recipientId": "u1", "actorId": "u2", "type": "follow", "message": "followed you"}, http.StatusCreated},
		{"self notification dropped", map[string]interface{}{"recipientId": "u1", "actorId": "u1", "type": "follow"}, http.StatusNoContent},
		{"unknown type", map[string]interface{}{"recipientId": "u1", "actorId": "u2", "type": "poke"}, http.StatusBadRequest},
		{"missing recipient", map[string]interface{}{"actorId": "u2", "type": "like"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/internal/v1/notifications", tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}

	rec := ts.do(t, http.MethodGet, "/internal/v1/users/u1/notifications?page=1&limit=10", nil)
	var list []models.Notification
	decodeEnvelope(t, rec, &list)
	if len(list) != 1 || list[0].ActorID != "u2" {
		t.Errorf("list = %+v, want one from u2", list)
	}

	rec = ts.do(t, http.MethodGet, "/internal/v1/users/u1/notifications/unread", nil)
	var unread UnreadCountResponse
	decodeEnvelope(t, rec, &unread)
	if unread.Count != 1 {
		t.Errorf("unread = %d, want 1", unread.Count)
	}

	rec = ts.do(t, http.MethodGet, "/internal/v1/users/u1/notifications?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/v1/notifications", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+testServiceToken)
	bad := httptest.NewRecorder()
	ts.handler.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", bad.Code)
	}
}

func TestInternalAPI_FollowAndFeed(t *testing.T) {
	ts := newTestServer(t, testServiceToken)

	for _, u := range []struct{ id, name string }{{"u1", "ada"}, {"u2", "bo"}} {
		rec := ts.do(t, http.MethodPut, "/internal/v1/users/"+u.id, map[string]string{"username": u.name})
		if rec.Code != http.StatusOK {
			t.Fatalf("PutUser %s = %d: %s", u.id, rec.Code, rec.Body.String())
		}
	}

	if rec := ts.do(t, http.MethodPut, "/internal/v1/users/u1/following/u1", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("self follow = %d, want 400", rec.Code)
	}
	if rec := ts.do(t, http.MethodPut, "/internal/v1/users/u1/following/u2", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("follow = %d, want 204", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/internal/v1/activities", RecordActivityRequest{
		ActorID: "u2",
		Type:    models.ActivityReview,
		Data:    models.ActivityData{MovieID: "m1", ReviewID: "r1", MovieTitle: "Heat", Rating: 4.5},
	})
	var act models.Activity
	decodeEnvelope(t, rec, &act)
	if rec.Code != http.StatusCreated || act.ID == "" {
		t.Fatalf("record activity = %d %+v", rec.Code, act)
	}

	rec = ts.do(t, http.MethodGet, "/internal/v1/users/u1/feed", nil)
	var page models.FeedPage
	decodeEnvelope(t, rec, &page)
	if len(page.Items) != 1 || page.Items[0].ID != act.ID {
		t.Fatalf("feed = %+v, want [%s]", page.Items, act.ID)
	}
	if page.Items[0].Actor == nil || page.Items[0].Actor.Username != "bo" {
		t.Errorf("feed actor = %+v, want bo", page.Items[0].Actor)
	}

	rec = ts.do(t, http.MethodGet, "/internal/v1/users/u3/discover?page=1", nil)
	var discover models.FeedPage
	decodeEnvelope(t, rec, &discover)
	if len(discover.Items) != 1 {
		t.Errorf("discover for a stranger has %d items, want 1", len(discover.Items))
	}

	if rec := ts.do(t, http.MethodGet, "/internal/v1/users/u1/feed?page=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("page 0 status = %d, want 400", rec.Code)
	}

	if rec := ts.do(t, http.MethodPost, "/internal/v1/activities", RecordActivityRequest{ActorID: "u2", Type: models.ActivityLike}); rec.Code != http.StatusBadRequest {
		t.Errorf("like without data = %d, want 400", rec.Code)
	}

	if rec := ts.do(t, http.MethodDelete, "/internal/v1/users/u1/following/u2", nil); rec.Code != http.StatusNoContent {
		t.Errorf("unfollow = %d, want 204", rec.Code)
	}
}

func TestWebSocketRoute(t *testing.T) {
	ts := newTestServer(t, testServiceToken)
	srv := httptest.NewServer(ts.handler)
	t.Cleanup(srv.Close)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/chat", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown namespace = %d, want 404", rec.Code)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/presence?token=u1"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f events.Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event != events.EventConnected {
		t.Fatalf("first frame = %s (%v), want connected", raw, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !ts.engine.IsUserOnline("u1") {
		if time.Now().After(deadline) {
			t.Fatal("u1 never became online")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestGetIntParam(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", 7},
		{"page=3", 3},
		{"page=abc", -1},
		{"page=-2", -2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			if got := getIntParam(r, "page", 7); got != tt.want {
				t.Errorf("getIntParam() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	if got := sanitizeLogValue("a\nb\x7f"); got != `a\x0ab\x7f` {
		t.Errorf("sanitizeLogValue() = %q", got)
	}
}
