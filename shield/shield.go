// Package shield provides the HTTP middleware stack in front of the gallery:
// security headers, body limits, request tracing, flash messages, HEAD
// handling and per-IP rate limiting of the local API.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(shield.DefaultHeaders(), rl) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"net/http"
)

type contextKey string

const (
	// LoggerKey is the context key for the per-request structured logger.
	LoggerKey contextKey = "shield_logger"

	// FlashKey is the context key for flash messages.
	FlashKey contextKey = "shield_flash"
)

// FlashMessage represents a one-time notification shown to the user.
type FlashMessage struct {
	Type    string // "success" or "error"
	Message string
}

// GetFlash retrieves the flash message from the request context.
func GetFlash(ctx context.Context) *FlashMessage {
	v, _ := ctx.Value(FlashKey).(*FlashMessage)
	return v
}

// DefaultStack returns the middleware stack for the gallery server, ordered
// HeadToGet → SecurityHeaders → MaxBody → TraceID → RateLimiter → Flash.
// A nil limiter is skipped.
func DefaultStack(headers HeaderConfig, rl *RateLimiter) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(headers),
		MaxBody(64 * 1024),
		TraceID,
	}
	if rl != nil {
		stack = append(stack, rl.Middleware)
	}
	return append(stack, Flash)
}
