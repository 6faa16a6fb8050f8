package agent

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cognipeer/smartagent-go/pkg/debuglog"
	"github.com/cognipeer/smartagent-go/pkg/events"
)

// runContext is the shared, owned side channel of one Invoke call: the live
// state pointer plus the session-scoped collaborators. It is created per
// invocation and handed by reference to the loop and, via context.Context,
// to the context tools, never through package-level state.
type runContext struct {
	state   *State
	emitter *events.Emitter
	debug   *debuglog.Session
	logger  zerolog.Logger

	// mu guards state access from tool handlers, which may run
	// concurrently within one tools step.
	mu sync.Mutex
}

type runContextKey struct{}

// withRunContext attaches the run context for tool handlers.
func withRunContext(ctx context.Context, rc *runContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// runContextFrom retrieves the run context inside a tool handler. Context
// tools invoked outside an agent loop (e.g. directly in tests) get nothing.
func runContextFrom(ctx context.Context) (*runContext, bool) {
	rc, ok := ctx.Value(runContextKey{}).(*runContext)
	return rc, ok
}
