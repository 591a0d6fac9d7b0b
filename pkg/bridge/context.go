package bridge

import (
	"log/slog"
	"time"

	"github.com/birddigital/voicebridge/pkg/tasks"
)

// ServerContext carries the process-wide collaborators every Bridge
// needs, built once at startup and passed explicitly into each Call —
// never read from a package-level global, per the "per-server context,
// no package-level state" design point.
type ServerContext struct {
	Logger *slog.Logger

	AIEndpoint string
	AIAPIKey   string

	Executor *tasks.Executor

	// ToolCallTimeout bounds how long a single tool invocation may run
	// before it is cancelled. The timeout is sent back to the AI peer as
	// an {"error": ...} function result and the Call continues.
	ToolCallTimeout time.Duration

	// RateLimitCooldown is the minimum spacing the router keeps between
	// rate-limit errors reported by the AI peer: one that arrives sooner
	// than this after the previous one pauses the Call's dispatch loop
	// for the remainder. The first rate-limit error of a Call causes no
	// pause, and no request is retried.
	RateLimitCooldown time.Duration
}

// WithDefaults fills unset fields with the bridge's operating defaults.
func (c ServerContext) WithDefaults() ServerContext {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ToolCallTimeout == 0 {
		c.ToolCallTimeout = 10 * time.Second
	}
	if c.RateLimitCooldown == 0 {
		c.RateLimitCooldown = 2 * time.Second
	}
	return c
}
