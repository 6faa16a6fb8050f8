package agent

import (
	"time"

	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/usage"
)

// Plan step statuses.
const (
	StepPending    = "pending"
	StepInProgress = "in_progress"
	StepCompleted  = "completed"
	StepSkipped    = "skipped"
)

// PlanStep is one entry of the agent's todo list.
type PlanStep struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// Plan is the agent's current todo list. Writes replace it wholesale.
type Plan struct {
	Steps       []PlanStep `json:"steps"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

// ToolRecord is the persisted result of one tool call, addressable by its
// execution id. A record moves from ToolHistory to ToolHistoryArchived when
// summarized; it is never deleted, which is what keeps recovery by id
// possible for the whole session.
type ToolRecord struct {
	ExecutionID        string         `json:"executionId"`
	ToolName           string         `json:"toolName"`
	Args               map[string]any `json:"args"`
	Output             string         `json:"output"`
	RawOutput          string         `json:"rawOutput,omitempty"`
	Timestamp          time.Time      `json:"timestamp"`
	Summarized         bool           `json:"summarized"`
	OriginalTokenCount int            `json:"originalTokenCount"`
	ToolCallID         string         `json:"tool_call_id"`
	FromCache          bool           `json:"fromCache,omitempty"`
}

// CachedResult is the reusable outcome of a previously executed tool call.
type CachedResult struct {
	Output             string `json:"output"`
	RawOutput          string `json:"rawOutput,omitempty"`
	OriginalTokenCount int    `json:"originalTokenCount"`
}

// State is the full session value threaded through one Invoke call. It is
// serializable except for the side-channel fields (Ctx, Runtime), which are
// session-scoped and rebuilt per invocation.
type State struct {
	Messages            []model.Message         `json:"messages"`
	Summaries           []string                `json:"summaries,omitempty"`
	ToolCallCount       int                     `json:"toolCallCount"`
	ToolCache           map[string]CachedResult `json:"toolCache,omitempty"`
	ToolHistory         []ToolRecord            `json:"toolHistory,omitempty"`
	ToolHistoryArchived []ToolRecord            `json:"toolHistoryArchived,omitempty"`
	Plan                *Plan                   `json:"plan,omitempty"`
	PlanVersion         int                     `json:"planVersion"`
	Usage               usage.Log               `json:"usage"`

	// Ctx holds transient per-session flags. Never serialized.
	Ctx map[string]any `json:"-"`
	// Runtime is the active agent runtime, swapped wholesale on handoff.
	Runtime *RuntimeConfig `json:"-"`
}

// Side-channel flag keys.
const (
	ctxFinalizedToolLimit  = "finalizedDueToToolLimit"
	ctxFinalizedStructured = "finalizedDueToStructuredOutput"
	ctxStructuredParsed    = "structuredOutputParsed"
)

// normalize fills zero-value collections so the loop can assume presence.
func (s *State) normalize() {
	if s.Messages == nil {
		s.Messages = []model.Message{}
	}
	if s.ToolCache == nil {
		s.ToolCache = map[string]CachedResult{}
	}
	if s.Ctx == nil {
		s.Ctx = map[string]any{}
	}
	if s.Usage.Totals == nil {
		s.Usage = usage.NewLog()
	}
}

func (s *State) flag(key string) bool {
	v, ok := s.Ctx[key].(bool)
	return ok && v
}

func (s *State) setFlag(key string) {
	s.Ctx[key] = true
}

// lastMessage returns the most recent message, or a zero message.
func (s *State) lastMessage() model.Message {
	if len(s.Messages) == 0 {
		return model.Message{}
	}
	return s.Messages[len(s.Messages)-1]
}

// lookupRecord resolves an execution id across live and archived history.
func (s *State) lookupRecord(executionID string) (ToolRecord, bool) {
	for i := range s.ToolHistory {
		if s.ToolHistory[i].ExecutionID == executionID {
			return s.ToolHistory[i], true
		}
	}
	for i := range s.ToolHistoryArchived {
		if s.ToolHistoryArchived[i].ExecutionID == executionID {
			return s.ToolHistoryArchived[i], true
		}
	}
	return ToolRecord{}, false
}
