// Package events defines the typed event stream emitted during an agent
// invocation. Events are purely observational: handlers cannot alter loop
// behavior, and a panicking handler never aborts the session.
package events

import (
	"sync"

	"github.com/cognipeer/smartagent-go/pkg/usage"
)

// Tool call phases.
const (
	PhaseStart   = "start"
	PhaseSuccess = "success"
	PhaseError   = "error"
	PhaseSkipped = "skipped"
)

// Event is implemented by every event type.
type Event interface {
	Type() string
}

// ToolCall reports one phase of a tool invocation.
type ToolCall struct {
	Phase      string
	Name       string
	ID         string
	Args       map[string]any
	Result     string
	Err        string
	DurationMs int64
	FromCache  bool
}

func (ToolCall) Type() string { return "tool_call" }

// PlanStep mirrors one entry of the agent's todo list.
type PlanStep struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Plan reports a read or write of the todo list.
type Plan struct {
	Source    string
	Operation string
	Steps     []PlanStep
	Version   int
}

func (Plan) Type() string { return "plan" }

// Summarization reports one archival pass.
type Summarization struct {
	Summary       string
	ArchivedCount int
}

func (Summarization) Type() string { return "summarization" }

// FinalAnswer carries the final textual content of the session.
type FinalAnswer struct {
	Content string
}

func (FinalAnswer) Type() string { return "finalAnswer" }

// Metadata reports session accounting at termination.
type Metadata struct {
	Usage     usage.Log
	ModelName string
}

func (Metadata) Type() string { return "metadata" }

// Handoff reports a runtime transfer to another agent.
type Handoff struct {
	From     string
	To       string
	ToolName string
}

func (Handoff) Type() string { return "handoff" }

// Handler receives events during an invocation.
type Handler func(Event)

// Emitter fans events out to an optional handler. A nil Emitter and an
// Emitter with a nil handler are both safe to emit on. Delivery is
// serialized: the handler never runs concurrently with itself, even when
// events originate from parallel tool executions.
type Emitter struct {
	mu      sync.Mutex
	handler Handler
}

// NewEmitter wraps a handler, which may be nil.
func NewEmitter(handler Handler) *Emitter {
	return &Emitter{handler: handler}
}

// Emit delivers an event, absorbing handler panics.
func (e *Emitter) Emit(event Event) {
	if e == nil || e.handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() {
		_ = recover()
	}()
	e.handler(event)
}
