// Package ratelimit throttles failed logins per username with a fixed-window counter.
package ratelimit

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrRateLimited is returned by Allow once the failure budget for the window is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps storage failures of the Redis limiter.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)

// LoginLimiter counts failed logins per username.
type LoginLimiter interface {
	// Allow returns ErrRateLimited when username has used up its failures in the current window.
	Allow(ctx context.Context, username string) error
	// Failure records one failed attempt. The first failure opens the window.
	Failure(ctx context.Context, username string) error
	// Reset clears the counter after a successful login.
	Reset(ctx context.Context, username string) error
}

// Disabled never throttles. Used when LOGIN_MAX_ATTEMPTS is 0.
type Disabled struct{}

func (Disabled) Allow(context.Context, string) error   { return nil }
func (Disabled) Failure(context.Context, string) error { return nil }
func (Disabled) Reset(context.Context, string) error   { return nil }

// keyFor normalizes the username so "Alice" and " alice" share a budget.
func keyFor(username string) string {
	return "digicheese:login_fail:" + strings.ToLower(strings.TrimSpace(username))
}
