package agent

import "strings"

const basePrompt = "You are a capable assistant that solves tasks step by step, " +
	"calling tools when they help and answering directly when they do not."

const planningPrompt = "Maintain a todo list for multi-step work using the " +
	"manage_todo_list tool: write the plan before acting, update step statuses " +
	"as you progress, and keep exactly one step in_progress at a time."

const structuredOutputPrompt = "When you are ready to answer, call the " +
	"submit_output tool with a payload matching the required output schema. " +
	"If you answer in plain text instead, output ONLY a valid JSON value " +
	"matching the schema, with no code fences and no surrounding prose."

const recoveryPrompt = "Older tool outputs may be replaced by summaries to " +
	"keep the context small. Use get_tool_response with an execution id to " +
	"retrieve any original output verbatim."

// buildSystemPrompt assembles the ephemeral per-turn system prompt. It is
// rebuilt every turn from the active runtime and never persisted into the
// conversation state.
func buildSystemPrompt(rt *RuntimeConfig, summarizationEnabled bool) string {
	parts := []string{basePrompt}
	if rt.Name != "" {
		parts = append(parts, "Your name is "+rt.Name+".")
	}
	if rt.SystemPrompt != "" {
		parts = append(parts, rt.SystemPrompt)
	}
	if rt.UseTodoList {
		parts = append(parts, planningPrompt)
	}
	if rt.OutputSchema != nil {
		parts = append(parts, structuredOutputPrompt)
	}
	if summarizationEnabled {
		parts = append(parts, recoveryPrompt)
	}
	return strings.Join(parts, "\n\n")
}
