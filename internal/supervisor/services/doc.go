// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package services adapts components without a Serve(ctx) method to
suture.Service.

HTTPServerService translates http.Server's ListenAndServe and Shutdown into
a context-aware Serve. TickerService turns a function into a periodic job;
the engine's presence refresh, cache sweep and badger value log GC run this
way.

The async queue, the relay and the websocket hub already implement
suture.Service and are added to the tree directly.
*/
package services
