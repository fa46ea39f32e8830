// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/marquee/internal/engine"
)

// LiveStatus is the body of /healthz/live.
type LiveStatus struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// ReadyStatus is the body of /healthz/ready.
type ReadyStatus struct {
	Status string         `json:"status"`
	Checks []engine.Check `json:"checks"`
}

// HealthLive reports that the process is serving HTTP. It never touches
// dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, LiveStatus{
		Status:        "alive",
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}, start)
}

// HealthReady runs every readiness probe. Any unhealthy probe makes it a
// 503.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	checks := h.engine.Readiness(r.Context())

	status, code := "ready", http.StatusOK
	for _, c := range checks {
		if !c.Healthy {
			status, code = "not_ready", http.StatusServiceUnavailable
			break
		}
	}
	respondSuccess(w, code, ReadyStatus{Status: status, Checks: checks}, start)
}
