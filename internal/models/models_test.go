// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"errors"
	"testing"
	"time"
)

func TestActivityDataValidate(t *testing.T) {
	tests := []struct {
		name    string
		typ     ActivityType
		data    ActivityData
		wantErr bool
	}{
		{"review ok", ActivityReview, ActivityData{MovieID: "m1", ReviewID: "r1"}, false},
		{"review missing review id", ActivityReview, ActivityData{MovieID: "m1"}, true},
		{"follow ok", ActivityFollow, ActivityData{TargetUserID: "u2"}, false},
		{"follow missing target", ActivityFollow, ActivityData{}, true},
		{"watchlist ok", ActivityWatchlist, ActivityData{MovieID: "m1"}, false},
		{"like missing owner", ActivityLike, ActivityData{ReviewID: "r1"}, true},
		{"like with mentions", ActivityLike, ActivityData{ReviewID: "r1", TargetUserID: "u2", Mentions: []string{"u3"}}, true},
		{"comment ok", ActivityComment, ActivityData{ReviewID: "r1", CommentID: "c1", TargetUserID: "u2", Mentions: []string{"u3"}}, false},
		{"unknown type", ActivityType("rating"), ActivityData{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.data.Validate(tt.typ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidActivityData) {
				t.Errorf("error %v should wrap ErrInvalidActivityData", err)
			}
		})
	}
}

func TestActivityBefore(t *testing.T) {
	now := time.Now()
	older := &Activity{ID: "b", CreatedAt: now.Add(-time.Second)}
	newer := &Activity{ID: "a", CreatedAt: now}
	tieLow := &Activity{ID: "x", CreatedAt: now}
	tieHigh := &Activity{ID: "y", CreatedAt: now}

	if !newer.Before(older) {
		t.Error("newer activity should sort first")
	}
	if older.Before(newer) {
		t.Error("older activity should not sort first")
	}
	if !tieHigh.Before(tieLow) {
		t.Error("equal timestamps should fall back to descending id")
	}
}

func TestDirectParticipants(t *testing.T) {
	pair, key := DirectParticipants("zed", "amy")
	if pair[0] != "amy" || pair[1] != "zed" {
		t.Errorf("pair = %v, want sorted", pair)
	}
	_, key2 := DirectParticipants("amy", "zed")
	if key != key2 || key != "3:amy:zed" {
		t.Errorf("keys %q and %q should both be 3:amy:zed", key, key2)
	}
}

func TestDirectParticipants_SeparatorInIDs(t *testing.T) {
	tests := []struct {
		name   string
		a1, b1 string
		a2, b2 string
	}{
		{"colon moves between ids", "a:b", "c", "a", "b:c"},
		{"length-like prefix", "1:a", "b", "1", "a:b"},
		{"trailing colon", "x:", "y", "x", ":y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, k1 := DirectParticipants(tt.a1, tt.b1)
			_, k2 := DirectParticipants(tt.a2, tt.b2)
			if k1 == k2 {
				t.Errorf("pairs (%q,%q) and (%q,%q) share key %q", tt.a1, tt.b1, tt.a2, tt.b2, k1)
			}
		})
	}
}

func TestPresenceStatus(t *testing.T) {
	if !StatusAway.Settable() || StatusOffline.Settable() {
		t.Error("only online and away may be set explicitly")
	}
	if PresenceStatus("busy").Valid() {
		t.Error("busy is not a valid status")
	}
}
