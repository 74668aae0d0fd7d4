// Package app provides the application composition framework described
// in spec.md §4.6: a type-indexed dependency-injection store, typed
// publishers (internal/eventbus), a priority chain (internal/core), and
// the on_start/run lifecycle.
package app

import (
	"context"

	"github.com/flowplane/p4ctl/internal/core"
)

// App is a long-lived component installed into the store and, optionally,
// the core priority chain. Name identifies it for logging and cycle
// detection.
type App interface {
	Name() string
}

// Starter is implemented by apps with one-time startup work, invoked
// once before any event reaches them, per spec.md §4.6.
type Starter interface {
	OnStart(ctx context.Context, c *core.Core) error
}

// Runner is implemented by apps with a long-lived background task. Run
// must return when ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, c *core.Core) error
}
