// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package testinfra provides test infrastructure for integration testing with containers.
//
// It starts the backing services Marquee talks to in production with
// testcontainers-go: PostgreSQL for the relational stores, MongoDB for
// activities and NATS with JetStream for the presence mirror.
//
//	func TestPostgresStore(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    pg, err := testinfra.NewPostgresContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, pg)
//
//	    store, err := database.OpenPostgres(ctx, pg.DSN, true)
//	    // ...
//	}
//
// All files carry the integration build tag:
//
//	go test -tags integration ./internal/database/... ./internal/presence/...
//
// # CI Considerations
//
// These tests require Docker and network access. Tests are skipped
// gracefully if Docker is unavailable. First run may need to download
// container images.
package testinfra
