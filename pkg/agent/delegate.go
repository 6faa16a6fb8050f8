package agent

import (
	"context"
	"fmt"

	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

// Handoff describes a delegation edge to another agent. When its tool is
// exercised, the loop replaces the active runtime with the target's and
// keeps driving the same conversation; no nested session is started.
type Handoff struct {
	ToolName    string
	Description string
	// Schema validates the handoff arguments; defaults to {reason: string}.
	Schema map[string]any
	Target *Agent
}

// AsToolOptions configures AsTool.
type AsToolOptions struct {
	ToolName         string
	Description      string
	InputDescription string
}

// AsTool wraps this agent as a callable tool. Invoking it runs a complete
// nested session seeded with the input text and returns only the final
// textual content; the nested session's state is not merged into the
// caller's.
func (a *Agent) AsTool(opts AsToolOptions) (*tool.Tool, error) {
	if opts.ToolName == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("Delegate a task to agent %s", a.displayName())
	}
	inputDescription := opts.InputDescription
	if inputDescription == "" {
		inputDescription = "Input message for the delegated agent"
	}

	return tool.New(tool.Tool{
		Name:        opts.ToolName,
		Description: description,
		Parameters: []tool.Parameter{
			{Name: "input", Type: "string", Description: inputDescription, Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			input, _ := args["input"].(string)
			result, err := a.Invoke(ctx, State{Messages: []model.Message{model.UserMessage(input)}})
			if err != nil {
				return nil, fmt.Errorf("delegated agent failed: %w", err)
			}
			return result.Content, nil
		},
	})
}

// AsHandoffOptions configures AsHandoff.
type AsHandoffOptions struct {
	ToolName    string
	Description string
	Schema      map[string]any
}

// AsHandoff produces a descriptor another agent can list in its Handoffs.
func (a *Agent) AsHandoff(opts AsHandoffOptions) Handoff {
	toolName := opts.ToolName
	if toolName == "" {
		toolName = "handoff_to_" + a.displayName()
	}
	description := opts.Description
	if description == "" {
		description = fmt.Sprintf("Hand control of the conversation to agent %s", a.displayName())
	}
	return Handoff{
		ToolName:    toolName,
		Description: description,
		Schema:      opts.Schema,
		Target:      a,
	}
}

// handoffTool materializes a descriptor as a registerable tool.
func handoffTool(h Handoff) (*tool.Tool, error) {
	if h.Target == nil {
		return nil, fmt.Errorf("handoff %q has no target", h.ToolName)
	}
	schema := h.Schema
	if schema == nil {
		schema = map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"reason": map[string]any{
					"type":        "string",
					"description": "Reason for handing off",
				},
			},
		}
	}
	target := h.Target
	toolName := h.ToolName
	return tool.New(tool.Tool{
		Name:        toolName,
		Description: h.Description,
		Schema:      schema,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return &handoffSignal{runtime: target.runtime, toolName: toolName}, nil
		},
	})
}

func (a *Agent) displayName() string {
	if a.runtime.Name != "" {
		return a.runtime.Name
	}
	return "agent"
}
