// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package registry tracks which users are reachable on one namespace, which
// rooms their connections joined, and delivers encoded frames to rooms.
//
// A user may hold any number of connections (devices, tabs). Every
// connection joins the user's personal room on registration. The registry
// publishes EventFirstConnection and EventLastConnectionClosed so presence
// can follow the offline/online boundary without polling.
//
// # Locking
//
// The three indexes (user to connections, connection to entry, room to
// members) are split into shardCount buckets keyed by an FNV-1a hash, each
// guarded by its own RWMutex. Locks are always taken in the order user,
// connection, room. Frames are sent and listeners are called with no
// registry lock held.
package registry

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

const shardCount = 64

var (
	// ErrUnauthenticated is returned when a connection has no user identity.
	ErrUnauthenticated = errors.New("registry: connection is not authenticated")

	// ErrConnectionOwned is returned when a connection ID is already
	// registered to a different user.
	ErrConnectionOwned = errors.New("registry: connection belongs to another user")

	// ErrUnknownConnection is returned for room operations on a connection
	// that is not registered.
	ErrUnknownConnection = errors.New("registry: unknown connection")

	// ErrNoRecipients is returned by Emit when no local connection is in the
	// room. It is informational; the user may simply be offline here.
	ErrNoRecipients = errors.New("registry: no recipients")
)

// Conn is the transport side of one connection.
type Conn interface {
	ID() string
	// Send enqueues frame without blocking. It returns false when the
	// connection's send buffer is full or the connection is closed.
	Send(frame []byte) bool
	Close()
}

// closingConn is implemented by connections that can tell a closed
// connection apart from a full send buffer.
type closingConn interface {
	Closing() bool
}

// EventKind identifies a connection lifecycle transition.
type EventKind int

const (
	// EventFirstConnection fires when a user goes from zero to one connection.
	EventFirstConnection EventKind = iota + 1
	// EventLastConnectionClosed fires when a user's last connection is removed.
	EventLastConnectionClosed
)

func (k EventKind) String() string {
	switch k {
	case EventFirstConnection:
		return "first_connection"
	case EventLastConnectionClosed:
		return "last_connection_closed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is delivered to listeners registered with Subscribe.
type Event struct {
	Kind      EventKind
	Namespace events.Namespace
	UserID    string
	ConnID    string
}

type entry struct {
	userID string
	conn   Conn
	rooms  map[events.RoomID]struct{}
}

type userShard struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

type connShard struct {
	mu    sync.RWMutex
	conns map[string]*entry
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[events.RoomID]map[string]Conn
}

// Registry is the connection registry of one namespace.
type Registry struct {
	namespace events.Namespace
	users     [shardCount]*userShard
	conns     [shardCount]*connShard
	rooms     [shardCount]*roomShard

	listenersMu sync.RWMutex
	listeners   []func(Event)

	logger zerolog.Logger
}

// New creates an empty registry for ns.
func New(ns events.Namespace) *Registry {
	r := &Registry{
		namespace: ns,
		logger:    logging.WithComponent("registry").With().Str("namespace", string(ns)).Logger(),
	}
	for i := 0; i < shardCount; i++ {
		r.users[i] = &userShard{users: make(map[string]map[string]struct{})}
		r.conns[i] = &connShard{conns: make(map[string]*entry)}
		r.rooms[i] = &roomShard{rooms: make(map[events.RoomID]map[string]Conn)}
	}
	return r
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

func (r *Registry) userShard(userID string) *userShard { return r.users[shardIndex(userID)] }
func (r *Registry) connShard(connID string) *connShard { return r.conns[shardIndex(connID)] }
func (r *Registry) roomShard(room events.RoomID) *roomShard {
	return r.rooms[shardIndex(string(room))]
}

// Namespace returns the namespace this registry serves.
func (r *Registry) Namespace() events.Namespace {
	return r.namespace
}

// Subscribe registers fn for lifecycle events. Listeners run synchronously
// on the goroutine that caused the transition, after all registry locks are
// released; they must not block for long.
func (r *Registry) Subscribe(fn func(Event)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

func (r *Registry) publish(evt Event) {
	r.listenersMu.RLock()
	listeners := make([]func(Event), len(r.listeners))
	copy(listeners, r.listeners)
	r.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(evt)
	}
}

// RoomFor returns the personal room of userID. Every connection of the user
// is a member of it.
func (r *Registry) RoomFor(userID string) events.RoomID {
	return events.UserRoom(userID)
}

// Register adds conn for userID and joins it to the user's personal room.
//
// Parameters:
//   - userID: the authenticated user; empty means the handshake did not
//     authenticate and the connection is refused
//   - conn: the connection; its ID must be unique within the registry
//
// Returns:
//   - nil on success, and when the same connection is registered again for
//     the same user
//   - ErrUnauthenticated for an empty userID
//   - ErrConnectionOwned when conn's ID is already held by another user
//
// The user's first connection publishes EventFirstConnection after every
// lock is released, so subscribers may call back into the registry.
//
// Thread Safety: safe for concurrent use. The user shard lock is taken
// before the connection shard lock, the same order Unregister uses.
//
// Example:
//
//	if err := reg.Register(subject.UserID, client); err != nil {
//	    client.Close()
//	    return err
//	}
//	defer reg.Unregister(client.ID())
func (r *Registry) Register(userID string, conn Conn) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	if conn == nil || conn.ID() == "" {
		return fmt.Errorf("registry: connection without id")
	}
	connID := conn.ID()

	us := r.userShard(userID)
	cs := r.connShard(connID)

	us.mu.Lock()
	cs.mu.Lock()
	if existing, ok := cs.conns[connID]; ok {
		cs.mu.Unlock()
		us.mu.Unlock()
		if existing.userID != userID {
			return ErrConnectionOwned
		}
		return nil
	}

	room := events.UserRoom(userID)
	cs.conns[connID] = &entry{
		userID: userID,
		conn:   conn,
		rooms:  map[events.RoomID]struct{}{room: {}},
	}
	r.addMember(room, connID, conn)
	cs.mu.Unlock()

	set, ok := us.users[userID]
	if !ok {
		set = make(map[string]struct{})
		us.users[userID] = set
	}
	set[connID] = struct{}{}
	first := len(set) == 1
	us.mu.Unlock()

	metrics.WSConnections.WithLabelValues(string(r.namespace)).Inc()
	r.logger.Debug().Str("user_id", userID).Str("conn_id", connID).Bool("first", first).Msg("Connection registered")

	if first {
		r.publish(Event{Kind: EventFirstConnection, Namespace: r.namespace, UserID: userID, ConnID: connID})
	}
	return nil
}

// Unregister removes the connection and all its room memberships.
//
// Parameters:
//   - connID: the connection to remove; unknown IDs are ignored, so calling
//     Unregister twice is harmless
//
// The connection itself is not closed. When it was the user's last
// connection in this namespace, EventLastConnectionClosed is published
// once, after every lock is released.
//
// Thread Safety: safe for concurrent use, including concurrently with
// Register for the same user.
func (r *Registry) Unregister(connID string) {
	cs := r.connShard(connID)

	cs.mu.RLock()
	e, ok := cs.conns[connID]
	cs.mu.RUnlock()
	if !ok {
		return
	}
	userID := e.userID
	us := r.userShard(userID)

	us.mu.Lock()
	cs.mu.Lock()
	e, ok = cs.conns[connID]
	if !ok {
		// Lost a race with another Unregister of the same connection.
		cs.mu.Unlock()
		us.mu.Unlock()
		return
	}
	delete(cs.conns, connID)
	for room := range e.rooms {
		r.removeMember(room, connID)
	}
	cs.mu.Unlock()

	last := false
	if set, ok := us.users[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(us.users, userID)
			last = true
		}
	}
	us.mu.Unlock()

	metrics.WSConnections.WithLabelValues(string(r.namespace)).Dec()
	r.logger.Debug().Str("user_id", userID).Str("conn_id", connID).Bool("last", last).Msg("Connection unregistered")

	if last {
		r.publish(Event{Kind: EventLastConnectionClosed, Namespace: r.namespace, UserID: userID, ConnID: connID})
	}
}

// addMember must be called with the connection's shard lock held.
func (r *Registry) addMember(room events.RoomID, connID string, conn Conn) {
	rs := r.roomShard(room)
	rs.mu.Lock()
	members, ok := rs.rooms[room]
	if !ok {
		members = make(map[string]Conn)
		rs.rooms[room] = members
	}
	members[connID] = conn
	rs.mu.Unlock()
}

// removeMember must be called with the connection's shard lock held.
func (r *Registry) removeMember(room events.RoomID, connID string) {
	rs := r.roomShard(room)
	rs.mu.Lock()
	if members, ok := rs.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(rs.rooms, room)
		}
	}
	rs.mu.Unlock()
}

// IsOnline reports whether userID has at least one registered connection.
func (r *Registry) IsOnline(userID string) bool {
	us := r.userShard(userID)
	us.mu.RLock()
	defer us.mu.RUnlock()
	return len(us.users[userID]) > 0
}

// UserOf returns the user that owns connID.
func (r *Registry) UserOf(connID string) (string, bool) {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	e, ok := cs.conns[connID]
	if !ok {
		return "", false
	}
	return e.userID, true
}

// JoinRoom adds connID to room. Joining a room twice is a no-op.
func (r *Registry) JoinRoom(connID string, room events.RoomID) error {
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	e, ok := cs.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if _, joined := e.rooms[room]; joined {
		return nil
	}
	e.rooms[room] = struct{}{}
	r.addMember(room, connID, e.conn)
	return nil
}

// LeaveRoom removes connID from room. The personal room cannot be left.
func (r *Registry) LeaveRoom(connID string, room events.RoomID) error {
	cs := r.connShard(connID)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	e, ok := cs.conns[connID]
	if !ok {
		return ErrUnknownConnection
	}
	if room == events.UserRoom(e.userID) {
		return fmt.Errorf("registry: cannot leave personal room %s", room)
	}
	if _, joined := e.rooms[room]; !joined {
		return nil
	}
	delete(e.rooms, room)
	r.removeMember(room, connID)
	return nil
}

// RoomsOf returns the rooms connID has joined.
func (r *Registry) RoomsOf(connID string) []events.RoomID {
	cs := r.connShard(connID)
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	e, ok := cs.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]events.RoomID, 0, len(e.rooms))
	for room := range e.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// MemberCount returns the number of local connections in room.
func (r *Registry) MemberCount(room events.RoomID) int {
	rs := r.roomShard(room)
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.rooms[room])
}

// OnlineUserIDs returns every user with a local connection, in no
// particular order.
func (r *Registry) OnlineUserIDs() []string {
	var ids []string
	for _, us := range r.users {
		us.mu.RLock()
		for id := range us.users {
			ids = append(ids, id)
		}
		us.mu.RUnlock()
	}
	return ids
}

// OnlineUserCount returns the number of users with a local connection.
func (r *Registry) OnlineUserCount() int {
	n := 0
	for _, us := range r.users {
		us.mu.RLock()
		n += len(us.users)
		us.mu.RUnlock()
	}
	return n
}

// ConnectedCount returns the number of registered connections.
func (r *Registry) ConnectedCount() int {
	n := 0
	for _, cs := range r.conns {
		cs.mu.RLock()
		n += len(cs.conns)
		cs.mu.RUnlock()
	}
	return n
}

// Emit encodes evt once and delivers it to every local member of room.
//
// Parameters:
//   - ctx: carries the request logger; delivery itself never blocks
//   - room: target room, e.g. events.UserRoom or events.ConversationRoom
//   - evt: the outbound event; its name becomes the frame's event field
//
// Returns:
//   - nil when at least one connection accepted the frame
//   - ErrNoRecipients when no local member accepted it
//   - the encoding error when evt cannot be serialized
//
// A member whose send buffer is full is evicted and closed; one that is
// already closing is only unregistered. Neither fails the call while
// another member accepts the frame.
//
// Thread Safety: safe for concurrent use. Room membership is snapshotted
// under a read lock and frames are sent after it is released.
//
// Example:
//
//	err := reg.Emit(ctx, events.UserRoom("user-1"), events.NotificationCreated{Notification: n})
//	if errors.Is(err, registry.ErrNoRecipients) {
//	    // the user has no connection on this instance
//	}
func (r *Registry) Emit(ctx context.Context, room events.RoomID, evt events.Outbound) error {
	frame, err := events.Encode(evt)
	if err != nil {
		metrics.RecordDeliveryFailure(string(r.namespace), "encode")
		return err
	}
	if r.DeliverFrame(ctx, room, evt.EventName(), frame) == 0 {
		metrics.RecordDeliveryFailure(string(r.namespace), "no_recipients")
		return ErrNoRecipients
	}
	return nil
}

// Broadcast encodes evt once and delivers it to every local connection.
func (r *Registry) Broadcast(ctx context.Context, evt events.Outbound) error {
	frame, err := events.Encode(evt)
	if err != nil {
		metrics.RecordDeliveryFailure(string(r.namespace), "encode")
		return err
	}
	r.BroadcastFrame(ctx, evt.EventName(), frame)
	return nil
}

// DeliverFrame sends an already-encoded frame to the local members of room
// and returns how many accepted it. An empty room is not counted as a
// failure here; relayed frames routinely target users held elsewhere.
func (r *Registry) DeliverFrame(ctx context.Context, room events.RoomID, event string, frame []byte) int {
	rs := r.roomShard(room)
	rs.mu.RLock()
	members := rs.rooms[room]
	targets := make([]Conn, 0, len(members))
	for _, c := range members {
		targets = append(targets, c)
	}
	rs.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	return r.send(ctx, targets, event, frame)
}

// BroadcastFrame sends an already-encoded frame to every local connection.
func (r *Registry) BroadcastFrame(ctx context.Context, event string, frame []byte) int {
	var targets []Conn
	for _, cs := range r.conns {
		cs.mu.RLock()
		for _, e := range cs.conns {
			targets = append(targets, e.conn)
		}
		cs.mu.RUnlock()
	}
	return r.send(ctx, targets, event, frame)
}

// SendTo delivers evt to one connection only.
func (r *Registry) SendTo(ctx context.Context, connID string, evt events.Outbound) error {
	cs := r.connShard(connID)
	cs.mu.RLock()
	e, ok := cs.conns[connID]
	cs.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	frame, err := events.Encode(evt)
	if err != nil {
		metrics.RecordDeliveryFailure(string(r.namespace), "encode")
		return err
	}
	if r.send(ctx, []Conn{e.conn}, evt.EventName(), frame) == 0 {
		return ErrNoRecipients
	}
	return nil
}

func (r *Registry) send(ctx context.Context, targets []Conn, event string, frame []byte) int {
	delivered := 0
	for _, c := range targets {
		if c.Send(frame) {
			delivered++
			continue
		}
		if cc, ok := c.(closingConn); ok && cc.Closing() {
			logging.Ctx(ctx).Debug().
				Str("namespace", string(r.namespace)).
				Str("conn_id", c.ID()).
				Msg("Skipping closing connection")
			r.Unregister(c.ID())
			continue
		}
		r.evict(ctx, c, event)
	}
	if delivered > 0 {
		metrics.EventsEmitted.WithLabelValues(string(r.namespace), event).Add(float64(delivered))
	}
	return delivered
}

// evict drops a connection whose send buffer is full. A slow consumer is
// treated as gone rather than allowed to hold memory for every event.
func (r *Registry) evict(ctx context.Context, c Conn, event string) {
	metrics.RecordOverflowDisconnect(string(r.namespace))
	logging.Ctx(ctx).Warn().
		Str("namespace", string(r.namespace)).
		Str("conn_id", c.ID()).
		Str("event", event).
		Msg("Send buffer full, closing connection")
	r.Unregister(c.ID())
	c.Close()
}

// CloseAll closes every registered connection. Used during shutdown; the
// transport unregisters each connection as it winds down.
func (r *Registry) CloseAll() {
	var targets []Conn
	for _, cs := range r.conns {
		cs.mu.RLock()
		for _, e := range cs.conns {
			targets = append(targets, e.conn)
		}
		cs.mu.RUnlock()
	}
	for _, c := range targets {
		c.Close()
	}
}
