package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cognipeer/smartagent-go/pkg/debuglog"
	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
	"github.com/cognipeer/smartagent-go/pkg/usage"
)

// Agent drives conversational sessions against a frozen runtime
// configuration. An Agent is cheap to share; all mutable session state
// lives in the State value threaded through Invoke.
type Agent struct {
	runtime         *RuntimeConfig
	summarizer      Summarizer
	summarizationOn bool
	debugCfg        debuglog.Config
	logger          zerolog.Logger
}

// New builds an agent from options. The built-in context tools are merged
// into the tool set: get_tool_response always, manage_todo_list when
// planning is enabled, submit_output when an output schema is configured,
// plus one tool per handoff descriptor.
func New(opts Options) (*Agent, error) {
	extra := []*tool.Tool{newGetToolResponseTool()}
	if opts.UseTodoList {
		extra = append(extra, newManageTodoListTool())
	}
	if opts.OutputSchema != nil {
		submit := newSubmitOutputTool(opts.OutputSchema)
		extra = append(extra, submit)
	}
	for _, h := range opts.Handoffs {
		t, err := handoffTool(h)
		if err != nil {
			return nil, err
		}
		extra = append(extra, t)
	}

	runtime, err := buildRuntime(opts, extra)
	if err != nil {
		return nil, err
	}

	summarizer := opts.Summarizer
	if summarizer == nil {
		summarizer = newDigestSummarizer()
	}

	return &Agent{
		runtime:         runtime,
		summarizer:      summarizer,
		summarizationOn: !opts.DisableSummarization,
		debugCfg:        opts.Debug,
		logger:          opts.Logger,
	}, nil
}

// Runtime returns the frozen runtime descriptor.
func (a *Agent) Runtime() *RuntimeConfig {
	return a.runtime
}

// Metadata accompanies a session result.
type Metadata struct {
	Usage usage.Log `json:"usage"`
}

// Result is the outcome of one Invoke call.
type Result struct {
	// Content is the final textual answer.
	Content string
	// Output holds the schema-validated structured output, when an output
	// schema is configured and validation succeeded.
	Output any
	// Messages is the full conversation including this session's turns.
	Messages []model.Message
	// Metadata carries session accounting.
	Metadata Metadata
	// State is the final session state, ready to be passed to a
	// subsequent Invoke to continue the conversation.
	State State
}

type invokeConfig struct {
	onEvent events.Handler
}

// InvokeOption customizes one Invoke call.
type InvokeOption func(*invokeConfig)

// WithEventHandler subscribes a handler to this invocation's event stream.
func WithEventHandler(handler events.Handler) InvokeOption {
	return func(cfg *invokeConfig) { cfg.onEvent = handler }
}

// Invoke runs the execution loop over the given state until the model
// produces a final answer, a limit finalizes the session, or the iteration
// ceiling is reached. The evolved state is returned in the result; pass it
// back to a later Invoke to continue the same conversation.
func (a *Agent) Invoke(ctx context.Context, initial State, opts ...InvokeOption) (*Result, error) {
	cfg := invokeConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	state := initial
	state.normalize()
	state.Runtime = a.runtime

	rc := &runContext{
		state:   &state,
		emitter: events.NewEmitter(cfg.onEvent),
		debug:   debuglog.NewSession(a.debugCfg, a.runtime.Name),
		logger:  a.logger.With().Str("agent", a.displayName()).Logger(),
	}

	if err := a.runLoop(ctx, rc); err != nil {
		return nil, fmt.Errorf("agent invocation failed: %w", err)
	}

	content := finalContent(&state)
	output := a.structuredOutput(&state, content)

	rc.emitter.Emit(events.Metadata{Usage: state.Usage, ModelName: state.Runtime.Model.Name()})
	rc.emitter.Emit(events.FinalAnswer{Content: content})

	return &Result{
		Content:  content,
		Output:   output,
		Messages: state.Messages,
		Metadata: Metadata{Usage: state.Usage},
		State:    state,
	}, nil
}

// finalContent returns the last assistant text in the conversation. The
// structured-output path can end the session on a tool response, so the
// scan walks backwards to the newest assistant message.
func finalContent(state *State) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == model.RoleAssistant {
			return state.Messages[i].Content
		}
	}
	return ""
}

// structuredOutput resolves the session's structured output: the value the
// finalize tool validated, or a best-effort parse of the final content.
// Validation failure is not fatal; the caller still gets raw content.
func (a *Agent) structuredOutput(state *State, content string) any {
	rt := state.Runtime
	if rt.outputSchema == nil {
		return nil
	}
	if parsed, ok := state.Ctx[ctxStructuredParsed]; ok {
		return parsed
	}
	if content == "" {
		return nil
	}

	jsonText := extractJSON(content)
	if jsonText == "" {
		return nil
	}
	var value any
	if err := json.Unmarshal([]byte(jsonText), &value); err != nil {
		return nil
	}
	result, err := rt.outputSchema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil || !result.Valid() {
		return nil
	}
	return value
}

var fencedJSON = regexp.MustCompile("(?is)```(?:json)?\\s*(.*?)```")

// extractJSON pulls a candidate JSON payload from free-form content:
// fenced block first, then the suffix starting at the first brace or
// bracket.
func extractJSON(content string) string {
	if match := fencedJSON.FindStringSubmatch(content); len(match) == 2 {
		return strings.TrimSpace(match[1])
	}
	braceIdx := strings.IndexAny(content, "{[")
	if braceIdx < 0 {
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(content[braceIdx:])
}
