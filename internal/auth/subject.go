// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package auth verifies the bearer credential a client presents when it
// opens a connection. Tokens are issued elsewhere; Marquee only verifies
// them, once per connection.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Mode selects the verifier.
type Mode string

const (
	// ModeJWT verifies HS256 tokens signed with a shared secret.
	ModeJWT Mode = "jwt"

	// ModeFirebase verifies Firebase Authentication ID tokens.
	ModeFirebase Mode = "firebase"
)

// ParseMode converts a string to Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeJWT, "":
		return ModeJWT, nil
	case ModeFirebase:
		return ModeFirebase, nil
	default:
		return "", errors.New("invalid auth mode: " + s)
	}
}

// Standard authentication errors
var (
	// ErrNoCredentials indicates no credentials were provided.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrInvalidCredentials indicates credentials were invalid.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrExpiredCredentials indicates credentials have expired.
	ErrExpiredCredentials = errors.New("credentials expired")
)

// Verifier turns a bearer token into a Subject.
type Verifier interface {
	// Verify returns ErrNoCredentials for an empty token,
	// ErrExpiredCredentials for an expired one and ErrInvalidCredentials for
	// anything else that fails.
	Verify(ctx context.Context, token string) (*Subject, error)

	// Name returns the verifier's name for logging.
	Name() string
}

// Subject is an authenticated user.
type Subject struct {
	// UserID is the stable user identifier ('sub' for JWT, UID for Firebase).
	UserID    string    `json:"userId"`
	Username  string    `json:"username,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	Method    Mode      `json:"method"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// TokenFromRequest extracts a bearer token from the Authorization header
// or, for browser websocket clients that cannot set headers, the token
// query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			if token := strings.TrimSpace(parts[1]); token != "" {
				return token
			}
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}
