package agent

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/cognipeer/smartagent-go/pkg/debuglog"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

// Limits bound the resources one session may consume.
type Limits struct {
	// MaxToolCalls is the tool-call budget per session. Default 10.
	MaxToolCalls int `json:"maxToolCalls,omitempty"`
	// ToolOutputTokenLimit truncates individual tool outputs in the
	// conversation; the full output stays on the execution record.
	// Default 5000.
	ToolOutputTokenLimit int `json:"toolOutputTokenLimit,omitempty"`
	// ContextTokenLimit triggers summarization when the estimated
	// conversation size exceeds it. Default 60000.
	ContextTokenLimit int `json:"contextTokenLimit,omitempty"`
	// SummaryTokenLimit is the target context size summarization archives
	// down to. Default 50000.
	SummaryTokenLimit int `json:"summaryTokenLimit,omitempty"`
	// MaxToken, when set, is a hard pre-turn gate: contexts estimated above
	// it are summarized before the next model call. Default off.
	MaxToken int `json:"maxToken,omitempty"`
	// MaxParallelTools caps concurrent tool invocations within one turn.
	// Default 1.
	MaxParallelTools int `json:"maxParallelTools,omitempty"`
}

// DefaultLimits returns the default resource bounds.
func DefaultLimits() Limits {
	return Limits{
		MaxToolCalls:         10,
		ToolOutputTokenLimit: 5000,
		ContextTokenLimit:    60000,
		SummaryTokenLimit:    50000,
		MaxParallelTools:     1,
	}
}

// withDefaults fills unset fields from DefaultLimits.
func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxToolCalls <= 0 {
		l.MaxToolCalls = def.MaxToolCalls
	}
	if l.ToolOutputTokenLimit <= 0 {
		l.ToolOutputTokenLimit = def.ToolOutputTokenLimit
	}
	if l.ContextTokenLimit <= 0 {
		l.ContextTokenLimit = def.ContextTokenLimit
	}
	if l.SummaryTokenLimit <= 0 {
		l.SummaryTokenLimit = def.SummaryTokenLimit
	}
	if l.MaxParallelTools <= 0 {
		l.MaxParallelTools = def.MaxParallelTools
	}
	return l
}

// Options configures an agent factory call.
type Options struct {
	// Name is a human-friendly agent name used in prompts and logging.
	Name string
	// Model is the language model driving the agent. Required.
	Model model.Model
	// Tools the model may call.
	Tools []*tool.Tool
	// Handoffs are delegation edges materialized as tools.
	Handoffs []Handoff
	// Limits bound resource use; zero fields take defaults.
	Limits Limits
	// SystemPrompt is appended to the built-in base instructions.
	SystemPrompt string
	// DisableSummarization turns off token-aware context summarization.
	DisableSummarization bool
	// UseTodoList enables the planning workflow (manage_todo_list tool
	// plus prompt hints).
	UseTodoList bool
	// OutputSchema, when set, is a JSON-Schema object the final output must
	// satisfy. The validated value is returned as Result.Output.
	OutputSchema map[string]any
	// Summarizer overrides the summarization policy. Defaults to a
	// deterministic digest; use NewModelSummarizer for model-backed
	// summaries.
	Summarizer Summarizer
	// Debug enables per-turn debug artifacts.
	Debug debuglog.Config
	// Logger receives structured loop telemetry. Defaults to a nop logger.
	Logger zerolog.Logger
}

// RuntimeConfig is the immutable per-agent descriptor the loop executes
// against. It is created once per New call, shared by reference across
// invocations, and swapped wholesale (never mutated) on handoff.
type RuntimeConfig struct {
	Name         string
	Model        model.Model
	Registry     *tool.Registry
	SystemPrompt string
	Limits       Limits
	UseTodoList  bool
	OutputSchema map[string]any

	outputSchema *gojsonschema.Schema
}

// buildRuntime validates options and freezes the runtime descriptor.
func buildRuntime(opts Options, extraTools []*tool.Tool) (*RuntimeConfig, error) {
	if opts.Model == nil {
		return nil, fmt.Errorf("model is required")
	}

	all := append([]*tool.Tool{}, opts.Tools...)
	all = append(all, extraTools...)
	registry, err := tool.NewRegistry(all...)
	if err != nil {
		return nil, fmt.Errorf("invalid tool set: %w", err)
	}

	rt := &RuntimeConfig{
		Name:         opts.Name,
		Model:        opts.Model,
		Registry:     registry,
		SystemPrompt: opts.SystemPrompt,
		Limits:       opts.Limits.withDefaults(),
		UseTodoList:  opts.UseTodoList,
		OutputSchema: opts.OutputSchema,
	}

	if opts.OutputSchema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(opts.OutputSchema))
		if err != nil {
			return nil, fmt.Errorf("invalid output schema: %w", err)
		}
		rt.outputSchema = compiled
	}

	return rt, nil
}
