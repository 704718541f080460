package utils

import (
	"context"
	"time"
)

// DefaultTimeout bounds detached persistence writes.
const DefaultTimeout = 10 * time.Second

// WithTimeout derives a context with the default operation timeout.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}
