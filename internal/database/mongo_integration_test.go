// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

//go:build integration

package database

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/testinfra"
)

func TestMongoStore_Activities(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	mc, err := testinfra.NewMongoContainer(ctx, testinfra.WithLogger(testinfra.NewContainerLogger(t)))
	if err != nil {
		t.Fatalf("start mongo: %v", err)
	}
	t.Cleanup(func() { testinfra.CleanupContainer(t, context.Background(), mc) })

	s, err := OpenMongo(ctx, mc.URI, "marquee_test")
	if err != nil {
		t.Fatalf("OpenMongo: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for _, a := range []models.Activity{
		{ID: "a1", ActorID: "u1", Type: models.ActivityReview, CreatedAt: base, Data: models.ActivityData{MovieID: "m1", ReviewID: "r1"}},
		{ID: "a2", ActorID: "u2", Type: models.ActivityWatchlist, CreatedAt: base.Add(time.Second), Data: models.ActivityData{MovieID: "m2"}},
		{ID: "a3", ActorID: "u1", Type: models.ActivityReview, CreatedAt: base.Add(time.Second), Data: models.ActivityData{MovieID: "m3", ReviewID: "r3"}},
	} {
		if err := s.CreateActivity(ctx, &a); err != nil {
			t.Fatalf("CreateActivity: %v", err)
		}
	}

	dup := models.Activity{ID: "a1", ActorID: "u1", Type: models.ActivityReview, CreatedAt: base}
	if err := s.CreateActivity(ctx, &dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate = %v, want ErrConflict", err)
	}

	tests := []struct {
		name string
		q    models.ActivityQuery
		want []string
	}{
		{"all", models.ActivityQuery{}, []string{"a3", "a2", "a1"}},
		{"actor", models.ActivityQuery{ActorIDs: []string{"u1"}}, []string{"a3", "a1"}},
		{"exclude and type", models.ActivityQuery{ExcludeActorIDs: []string{"u2"}, Types: []models.ActivityType{models.ActivityReview}}, []string{"a3", "a1"}},
		{"page", models.ActivityQuery{Offset: 1, Limit: 1}, []string{"a2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListActivities(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListActivities: %v", err)
			}
			ids := []string{}
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}

	got, _ := s.ListActivities(ctx, models.ActivityQuery{ActorIDs: []string{"u1"}, Limit: 1})
	if got[0].Data.MovieID != "m3" || !got[0].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("round trip = %+v", got[0])
	}
}
