// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package activity records social-graph activity, fans it out to followers
// and serves cached feed and discovery pages.
//
// Follower feed caches are invalidated before RecordActivity returns; the
// real-time push and derived notifications run afterwards on a runner.
// Neither ever fails the write. Each follower is handled independently: a cache or delivery failure for
// one follower is logged and the loop moves on.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/async"
	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/notification"
	"github.com/tomtom215/marquee/internal/registry"
)

// ErrInvalid wraps rejected RecordActivity input.
var ErrInvalid = errors.New("activity: invalid activity")

// Store persists activities.
type Store interface {
	CreateActivity(ctx context.Context, a *models.Activity) error
	ListActivities(ctx context.Context, q models.ActivityQuery) ([]models.Activity, error)
}

// Graph answers follow relationships.
type Graph interface {
	// Followers returns the users following userID.
	Followers(ctx context.Context, userID string) ([]string, error)
	// Following returns the users userID follows.
	Following(ctx context.Context, userID string) ([]string, error)
}

// UserDirectory resolves user summaries for enrichment.
type UserDirectory interface {
	GetUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

// Emitter delivers an event to a room of the feed namespace.
type Emitter interface {
	Emit(ctx context.Context, room events.RoomID, evt events.Outbound) error
}

// Notifier creates derived notifications.
type Notifier interface {
	Notify(ctx context.Context, p notification.NotifyParams) (*models.Notification, error)
}

// Config controls pagination and cache lifetimes.
type Config struct {
	PageSize      int
	FeedTTL       time.Duration
	DiscoverTTL   time.Duration
	DiscoverTypes []models.ActivityType
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:      20,
		FeedTTL:       2 * time.Minute,
		DiscoverTTL:   5 * time.Minute,
		DiscoverTypes: []models.ActivityType{models.ActivityReview},
	}
}

// Service records activity and serves feeds.
type Service struct {
	cfg      Config
	store    Store
	graph    Graph
	users    UserDirectory
	pages    cache.PageStore
	out      Emitter
	notifier Notifier
	runner   async.Runner
	now      func() time.Time
	logger   zerolog.Logger
}

// Deps groups the collaborators of a Service. Users and Notifier are
// optional; a nil Runner runs fan-out inline.
type Deps struct {
	Store    Store
	Graph    Graph
	Users    UserDirectory
	Pages    cache.PageStore
	Out      Emitter
	Notifier Notifier
	Runner   async.Runner
}

// NewService wires a Service.
func NewService(cfg Config, deps Deps) *Service {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.FeedTTL <= 0 {
		cfg.FeedTTL = def.FeedTTL
	}
	if cfg.DiscoverTTL <= 0 {
		cfg.DiscoverTTL = def.DiscoverTTL
	}
	if len(cfg.DiscoverTypes) == 0 {
		cfg.DiscoverTypes = def.DiscoverTypes
	}
	if deps.Runner == nil {
		deps.Runner = async.Inline{}
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		graph:    deps.Graph,
		users:    deps.Users,
		pages:    deps.Pages,
		out:      deps.Out,
		notifier: deps.Notifier,
		runner:   deps.Runner,
		now:      time.Now,
		logger:   logging.WithComponent("activity"),
	}
}

// RecordActivity validates and persists an activity performed by actorID,
// invalidates the cached feed pages of every follower, and schedules the
// real-time push and derived notifications on the runner.
//
// Parameters:
//   - ctx: bounds persistence, the follower lookup and cache invalidation
//   - actorID: the user who performed the activity; must not be empty
//   - t: the activity type, which decides the required fields of data
//   - data: type-specific payload, validated with ActivityData.Validate
//
// Returns:
//   - *models.Activity: the stored activity with its generated ID and timestamp
//   - error: wraps ErrInvalid for rejected input, or the persistence error
//
// Feed invalidation happens before RecordActivity returns, so a feed page
// requested by a follower afterwards always includes the new activity.
// Failures after persistence (follower lookup, a single follower's cache,
// delivery, notifications) are logged and never fail the call.
//
// Thread Safety: safe for concurrent use.
//
// Example:
//
//	a, err := svc.RecordActivity(ctx, "user-1", models.ActivityReview, models.ActivityData{
//	    MovieID:  "m-42",
//	    ReviewID: "r-7",
//	    Rating:   4.5,
//	})
func (s *Service) RecordActivity(ctx context.Context, actorID string, t models.ActivityType, data models.ActivityData) (*models.Activity, error) {
	if actorID == "" {
		return nil, fmt.Errorf("%w: actor is required", ErrInvalid)
	}
	if err := data.Validate(t); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	a := &models.Activity{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ActorID:   actorID,
		Type:      t,
		Data:      data,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("persist activity: %w", err)
	}
	metrics.ActivitiesRecorded.WithLabelValues(string(t)).Inc()

	start := s.now()
	followers := s.invalidateFollowers(ctx, a)

	recorded := *a
	s.runner.Submit("fanout", func(ctx context.Context) error {
		s.deliver(ctx, &recorded, followers)
		metrics.RecordFanout(s.now().Sub(start), len(followers))
		return nil
	})
	return a, nil
}

// invalidateFollowers drops the feed pages of every follower of the actor
// and returns the followers it resolved. A failed lookup yields no
// followers; a failed invalidation is logged and the loop moves on.
func (s *Service) invalidateFollowers(ctx context.Context, a *models.Activity) []string {
	log := s.logger.With().Str("activity_id", a.ID).Str("actor_id", a.ActorID).Logger()

	followers, err := s.graph.Followers(ctx, a.ActorID)
	if err != nil {
		log.Error().Err(err).Msg("Follower lookup failed, skipping feed fan-out")
		return nil
	}
	for _, follower := range followers {
		if err := s.InvalidateFeed(ctx, follower); err != nil {
			log.Warn().Err(err).Str("follower_id", follower).Msg("Feed cache invalidation failed")
		}
	}
	return followers
}

// deliver pushes newActivity to each follower and to the actor's profile
// watchers, then creates derived notifications.
func (s *Service) deliver(ctx context.Context, a *models.Activity, followers []string) {
	item := s.enrich(ctx, []models.Activity{*a})[0]
	evt := events.NewActivity{FeedItem: item}
	for _, follower := range followers {
		s.emit(ctx, events.UserRoom(follower), evt)
	}
	s.emit(ctx, events.ProfileRoom(a.ActorID), evt)

	s.notifyDerived(ctx, a, item.Actor)
}

// InvalidateFeed drops every cached feed page of userID.
func (s *Service) InvalidateFeed(ctx context.Context, userID string) error {
	if s.pages == nil {
		return nil
	}
	metrics.FeedCacheInvalidations.Inc()
	if _, err := s.pages.DeletePrefix(ctx, feedPrefix(models.FeedKindFeed, userID)); err != nil {
		return err
	}
	return nil
}

func (s *Service) emit(ctx context.Context, room events.RoomID, evt events.Outbound) {
	err := s.out.Emit(ctx, room, evt)
	if err == nil || errors.Is(err, registry.ErrNoRecipients) {
		return
	}
	metrics.RecordDeliveryFailure(string(events.NamespaceFeed), "emit")
	s.logger.Warn().Err(err).Str("room", string(room)).Msg("Activity delivery failed")
}

func (s *Service) notifyDerived(ctx context.Context, a *models.Activity, actor *models.UserSummary) {
	if s.notifier == nil {
		return
	}
	name := a.ActorID
	if actor != nil {
		name = actor.Username
		if actor.DisplayName != "" {
			name = actor.DisplayName
		}
	}

	var params []notification.NotifyParams
	d := a.Data
	switch a.Type {
	case models.ActivityFollow:
		params = append(params, notification.NotifyParams{
			RecipientID: d.TargetUserID,
			Type:        models.NotificationFollow,
			ReferenceID: a.ActorID,
			Message:     name + " started following you",
			Link:        "/users/" + a.ActorID,
		})
	case models.ActivityLike:
		params = append(params, notification.NotifyParams{
			RecipientID: d.TargetUserID,
			Type:        models.NotificationLike,
			ReferenceID: d.ReviewID,
			Message:     withMovie(name+" liked your review", d.MovieTitle),
			Link:        "/reviews/" + d.ReviewID,
		})
	case models.ActivityComment:
		params = append(params, notification.NotifyParams{
			RecipientID: d.TargetUserID,
			Type:        models.NotificationComment,
			ReferenceID: d.CommentID,
			Message:     withMovie(name+" commented on your review", d.MovieTitle),
			Link:        "/reviews/" + d.ReviewID,
		})
	}

	seen := make(map[string]struct{}, len(d.Mentions))
	for _, mentioned := range d.Mentions {
		if _, dup := seen[mentioned]; dup || mentioned == "" {
			continue
		}
		seen[mentioned] = struct{}{}
		ref := d.ReviewID
		if a.Type == models.ActivityComment {
			ref = d.CommentID
		}
		params = append(params, notification.NotifyParams{
			RecipientID: mentioned,
			Type:        models.NotificationMention,
			ReferenceID: ref,
			Message:     name + " mentioned you",
			Link:        "/reviews/" + d.ReviewID,
		})
	}

	for _, p := range params {
		p.ActorID = a.ActorID
		if _, err := s.notifier.Notify(ctx, p); err != nil {
			s.logger.Warn().Err(err).
				Str("activity_id", a.ID).
				Str("recipient_id", p.RecipientID).
				Str("type", string(p.Type)).
				Msg("Derived notification failed")
		}
	}
}

func withMovie(msg, title string) string {
	if title == "" {
		return msg
	}
	return msg + " of " + title
}

// GetFeedPage returns page (1-based) of userID's feed: activity by the
// users they follow and by themselves, newest first.
func (s *Service) GetFeedPage(ctx context.Context, userID string, page int) (*models.FeedPage, error) {
	return s.page(ctx, models.FeedKindFeed, userID, page)
}

// GetDiscoverPage returns page (1-based) of high-signal activity by users
// userID neither follows nor is.
func (s *Service) GetDiscoverPage(ctx context.Context, userID string, page int) (*models.FeedPage, error) {
	return s.page(ctx, models.FeedKindDiscover, userID, page)
}

func feedPrefix(kind models.FeedKind, userID string) string {
	return string(kind) + ":" + userID + ":"
}

// FeedKey is the cache key of one feed page.
func FeedKey(kind models.FeedKind, userID string, page int) string {
	return fmt.Sprintf("%s%d", feedPrefix(kind, userID), page)
}

func (s *Service) page(ctx context.Context, kind models.FeedKind, userID string, page int) (*models.FeedPage, error) {
	if page < 1 {
		page = 1
	}
	key := FeedKey(kind, userID, page)

	if cached, ok := s.cachedPage(ctx, kind, key); ok {
		return cached, nil
	}

	following, err := s.graph.Following(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load following of %s: %w", userID, err)
	}
	actors := append(following[:len(following):len(following)], userID)

	q := models.ActivityQuery{
		Offset: (page - 1) * s.cfg.PageSize,
		Limit:  s.cfg.PageSize + 1,
	}
	ttl := s.cfg.FeedTTL
	if kind == models.FeedKindFeed {
		q.ActorIDs = actors
	} else {
		q.ExcludeActorIDs = actors
		q.Types = s.cfg.DiscoverTypes
		ttl = s.cfg.DiscoverTTL
	}

	acts, err := s.store.ListActivities(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list %s activity for %s: %w", kind, userID, err)
	}
	hasMore := len(acts) > s.cfg.PageSize
	if hasMore {
		acts = acts[:s.cfg.PageSize]
	}

	fp := &models.FeedPage{
		UserID:      userID,
		Kind:        kind,
		Page:        page,
		PageSize:    s.cfg.PageSize,
		Items:       s.enrich(ctx, acts),
		HasMore:     hasMore,
		GeneratedAt: s.now().UTC(),
	}
	s.storePage(ctx, key, fp, ttl)
	return fp, nil
}

func (s *Service) cachedPage(ctx context.Context, kind models.FeedKind, key string) (*models.FeedPage, bool) {
	if s.pages == nil {
		return nil, false
	}
	raw, ok, err := s.pages.Get(ctx, key)
	if err != nil {
		metrics.RecordFeedCache(string(kind), "error")
		s.logger.Warn().Err(err).Str("key", key).Msg("Feed cache read failed")
		return nil, false
	}
	if !ok {
		metrics.RecordFeedCache(string(kind), "miss")
		return nil, false
	}

	var fp models.FeedPage
	if err := json.Unmarshal(raw, &fp); err != nil {
		metrics.RecordFeedCache(string(kind), "error")
		s.logger.Warn().Err(err).Str("key", key).Msg("Discarding undecodable feed page")
		return nil, false
	}
	metrics.RecordFeedCache(string(kind), "hit")
	return &fp, true
}

func (s *Service) storePage(ctx context.Context, key string, fp *models.FeedPage, ttl time.Duration) {
	if s.pages == nil {
		return
	}
	raw, err := json.Marshal(fp)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Feed page encode failed")
		return
	}
	if err := s.pages.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Feed cache write failed")
	}
}

// enrich attaches actor and follow-target summaries. Lookup failures leave
// the items bare.
func (s *Service) enrich(ctx context.Context, acts []models.Activity) []models.FeedItem {
	items := make([]models.FeedItem, len(acts))
	for i := range acts {
		items[i] = models.FeedItem{Activity: acts[i]}
	}
	if s.users == nil || len(acts) == 0 {
		return items
	}

	idSet := make(map[string]struct{})
	for _, a := range acts {
		idSet[a.ActorID] = struct{}{}
		if a.Type == models.ActivityFollow {
			idSet[a.Data.TargetUserID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	users, err := s.users.GetUsers(ctx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("User lookup for feed enrichment failed")
		return items
	}
	for i := range items {
		if u, ok := users[items[i].ActorID]; ok {
			items[i].Actor = &u
		}
		if items[i].Type == models.ActivityFollow {
			if u, ok := users[items[i].Data.TargetUserID]; ok {
				items[i].Target = &u
			}
		}
	}
	return items
}
