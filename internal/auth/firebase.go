// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package auth

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	fbauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// idTokenVerifier is the part of the Firebase auth client used here.
type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*fbauth.Token, error)
}

// FirebaseVerifier validates Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	client idTokenVerifier
}

var _ Verifier = (*FirebaseVerifier)(nil)

// NewFirebaseVerifier initializes a Firebase app from a service account
// credentials file.
func NewFirebaseVerifier(ctx context.Context, credentialsFile string) (*FirebaseVerifier, error) {
	if credentialsFile == "" {
		return nil, fmt.Errorf("firebase credentials path not provided")
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("firebase credentials file: %w", err)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("get firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

// Name returns the verifier name.
func (v *FirebaseVerifier) Name() string {
	return string(ModeFirebase)
}

// Verify checks the ID token with Firebase. The subject is the Firebase UID.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*Subject, error) {
	if idToken == "" {
		return nil, ErrNoCredentials
	}

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		if fbauth.IsIDTokenExpired(err) {
			return nil, ErrExpiredCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if token.UID == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrInvalidCredentials)
	}

	s := &Subject{
		UserID:    token.UID,
		Issuer:    token.Issuer,
		Method:    ModeFirebase,
		ExpiresAt: time.Unix(token.Expires, 0),
	}
	if name, ok := token.Claims["name"].(string); ok {
		s.Username = name
	} else if email, ok := token.Claims["email"].(string); ok {
		s.Username = strings.SplitN(email, "@", 2)[0]
	}
	return s, nil
}
