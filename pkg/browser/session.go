// Package browser defines the disposable automation session consumed by the
// view executor and the interaction policy run inside it.
package browser

import (
	"context"
	"time"

	"github.com/samueltorres/r8views/pkg/proxies"
)

// Session is one isolated browser instance. Close must be idempotent.
type Session interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Scroll(ctx context.Context, offsetY float64) error
	Close() error
}

// Launcher creates sessions. A nil proxy means a direct connection. Failures
// are reported as SessionCreationError.
type Launcher interface {
	Create(ctx context.Context, proxy *proxies.Proxy, identity string) (Session, error)
}

// InteractionPolicy performs the engagement step of an attempt.
type InteractionPolicy interface {
	Simulate(ctx context.Context, s Session) error
}
