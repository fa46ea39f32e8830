// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"errors"
	"fmt"
	"time"
)

// ActivityType is the kind of social-graph activity.
type ActivityType string

const (
	ActivityReview    ActivityType = "review"
	ActivityFollow    ActivityType = "follow"
	ActivityWatchlist ActivityType = "watchlist"
	ActivityLike      ActivityType = "like"
	ActivityComment   ActivityType = "comment"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityReview, ActivityFollow, ActivityWatchlist, ActivityLike, ActivityComment:
		return true
	}
	return false
}

// ErrInvalidActivityData is returned when an activity payload lacks the
// fields its type requires.
var ErrInvalidActivityData = errors.New("invalid activity data")

// ActivityData holds the denormalized payload captured when the activity was
// recorded. Which fields are set depends on the activity type:
//
//	review    MovieID, ReviewID (MovieTitle, PosterURL, Rating, Excerpt)
//	follow    TargetUserID (the followed user)
//	watchlist MovieID (MovieTitle, PosterURL)
//	like      ReviewID, TargetUserID (the review author)
//	comment   ReviewID, CommentID, TargetUserID (the review author), Excerpt
//
// Mentions may accompany review and comment activity.
type ActivityData struct {
	MovieID      string   `json:"movieId,omitempty" bson:"movie_id,omitempty"`
	MovieTitle   string   `json:"movieTitle,omitempty" bson:"movie_title,omitempty"`
	PosterURL    string   `json:"posterUrl,omitempty" bson:"poster_url,omitempty"`
	ReviewID     string   `json:"reviewId,omitempty" bson:"review_id,omitempty"`
	Rating       float64  `json:"rating,omitempty" bson:"rating,omitempty"`
	Excerpt      string   `json:"excerpt,omitempty" bson:"excerpt,omitempty"`
	CommentID    string   `json:"commentId,omitempty" bson:"comment_id,omitempty"`
	TargetUserID string   `json:"targetUserId,omitempty" bson:"target_user_id,omitempty"`
	Mentions     []string `json:"mentions,omitempty" bson:"mentions,omitempty"`
}

// Validate checks the fields required for activity type t.
func (d ActivityData) Validate(t ActivityType) error {
	missing := func(field string) error {
		return fmt.Errorf("%w: %s activity requires %s", ErrInvalidActivityData, t, field)
	}
	switch t {
	case ActivityReview:
		if d.MovieID == "" {
			return missing("movieId")
		}
		if d.ReviewID == "" {
			return missing("reviewId")
		}
	case ActivityFollow:
		if d.TargetUserID == "" {
			return missing("targetUserId")
		}
	case ActivityWatchlist:
		if d.MovieID == "" {
			return missing("movieId")
		}
	case ActivityLike:
		if d.ReviewID == "" {
			return missing("reviewId")
		}
		if d.TargetUserID == "" {
			return missing("targetUserId")
		}
	case ActivityComment:
		if d.ReviewID == "" {
			return missing("reviewId")
		}
		if d.CommentID == "" {
			return missing("commentId")
		}
		if d.TargetUserID == "" {
			return missing("targetUserId")
		}
	default:
		return fmt.Errorf("%w: unknown activity type %q", ErrInvalidActivityData, t)
	}
	if (t == ActivityFollow || t == ActivityWatchlist || t == ActivityLike) && len(d.Mentions) > 0 {
		return fmt.Errorf("%w: %s activity cannot carry mentions", ErrInvalidActivityData, t)
	}
	return nil
}

// Activity is an append-only record of something a user did. ID is a
// time-ordered UUID and breaks ties between equal CreatedAt values.
type Activity struct {
	ID        string       `json:"id" bson:"_id"`
	ActorID   string       `json:"actorId" bson:"actor_id"`
	Type      ActivityType `json:"type" bson:"type"`
	Data      ActivityData `json:"data" bson:"data"`
	CreatedAt time.Time    `json:"createdAt" bson:"created_at"`
}

// Before reports whether a comes before b in feed order (newest first, then
// highest ID first).
func (a *Activity) Before(b *Activity) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// FeedItem is an activity enriched for display.
type FeedItem struct {
	Activity
	Actor  *UserSummary `json:"actor,omitempty"`
	Target *UserSummary `json:"target,omitempty"`
}

// FeedKind distinguishes the personal feed from discovery.
type FeedKind string

const (
	FeedKindFeed     FeedKind = "feed"
	FeedKindDiscover FeedKind = "discover"
)

// FeedPage is one page of a feed as served to clients and cached.
type FeedPage struct {
	UserID      string     `json:"userId"`
	Kind        FeedKind   `json:"kind"`
	Page        int        `json:"page"`
	PageSize    int        `json:"pageSize"`
	Items       []FeedItem `json:"items"`
	HasMore     bool       `json:"hasMore"`
	GeneratedAt time.Time  `json:"generatedAt"`
}

// ActivityQuery selects activities for a feed page. Stores return matches in
// Before order.
type ActivityQuery struct {
	// ActorIDs restricts results to these actors. Empty means any actor.
	ActorIDs        []string
	ExcludeActorIDs []string
	// Types restricts results to these types. Empty means any type.
	Types  []ActivityType
	Offset int
	Limit  int
}
