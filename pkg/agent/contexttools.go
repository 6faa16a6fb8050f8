package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

// Names of the built-in context tools.
const (
	ToolManageTodoList  = "manage_todo_list"
	ToolGetToolResponse = "get_tool_response"
	ToolSubmitOutput    = "submit_output"
)

// newGetToolResponseTool exposes archived-output recovery to the model.
// Unknown ids come back as a "not found" result, not an error, keeping the
// model's recovery path uniform with ordinary tool failures.
func newGetToolResponseTool() *tool.Tool {
	return tool.MustNew(tool.Tool{
		Name: ToolGetToolResponse,
		Description: "Retrieve the original, pre-summarization output of an " +
			"earlier tool call by its execution id.",
		Parameters: []tool.Parameter{
			{Name: "executionId", Type: "string", Description: "Execution id of the tool call to recover", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rc, ok := runContextFrom(ctx)
			if !ok {
				return "not found: no active session", nil
			}
			executionID, _ := args["executionId"].(string)

			rc.mu.Lock()
			record, found := rc.state.lookupRecord(executionID)
			rc.mu.Unlock()

			if !found {
				return fmt.Sprintf("not found: no tool execution with id %s", executionID), nil
			}
			if record.RawOutput != "" {
				return record.RawOutput, nil
			}
			return record.Output, nil
		},
	})
}

// newManageTodoListTool exposes plan read/write when planning is enabled.
// A write replaces the plan wholesale and bumps the version counter.
func newManageTodoListTool() *tool.Tool {
	return tool.MustNew(tool.Tool{
		Name: ToolManageTodoList,
		Description: "Read or replace the todo list for the current task. " +
			"Writes replace the whole list; statuses are pending, in_progress, completed or skipped.",
		Schema: map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"operation": map[string]any{
					"type":        "string",
					"enum":        []string{"read", "write"},
					"description": "Whether to read the current list or replace it",
				},
				"steps": map[string]any{
					"type":        "array",
					"description": "Replacement steps, in execution order (write only)",
					"items": map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"properties": map[string]any{
							"title":  map[string]any{"type": "string", "description": "Short step title"},
							"status": map[string]any{"type": "string", "enum": []string{StepPending, StepInProgress, StepCompleted, StepSkipped}},
						},
						"required": []string{"title", "status"},
					},
				},
			},
			"required": []string{"operation"},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rc, ok := runContextFrom(ctx)
			if !ok {
				return nil, fmt.Errorf("no active session")
			}
			operation, _ := args["operation"].(string)

			switch operation {
			case "read":
				rc.mu.Lock()
				plan := rc.state.Plan
				version := rc.state.PlanVersion
				rc.mu.Unlock()

				rc.emitter.Emit(events.Plan{
					Source:    ToolManageTodoList,
					Operation: "read",
					Steps:     planEventSteps(plan),
					Version:   version,
				})
				if plan == nil || len(plan.Steps) == 0 {
					return "The todo list is empty.", nil
				}
				return renderPlan(plan, version), nil

			case "write":
				steps, err := decodeSteps(args["steps"])
				if err != nil {
					return nil, err
				}
				plan := &Plan{Steps: steps, LastUpdated: time.Now()}

				rc.mu.Lock()
				rc.state.Plan = plan
				rc.state.PlanVersion++
				version := rc.state.PlanVersion
				rc.mu.Unlock()

				rc.emitter.Emit(events.Plan{
					Source:    ToolManageTodoList,
					Operation: "write",
					Steps:     planEventSteps(plan),
					Version:   version,
				})
				return fmt.Sprintf("Todo list updated to version %d (%d steps).", version, len(steps)), nil

			default:
				return nil, fmt.Errorf("unknown operation: %s", operation)
			}
		},
	})
}

// newSubmitOutputTool is the structured-output finalize path: arguments are
// validated against the configured output schema by the executor, so a
// reaching handler already holds a schema-valid payload. It stashes the
// parsed value and sets the finalize flag that short-circuits the loop.
func newSubmitOutputTool(schema map[string]any) *tool.Tool {
	return tool.MustNew(tool.Tool{
		Name: ToolSubmitOutput,
		Description: "Submit the final answer as a structured payload " +
			"matching the required output schema. Call exactly once, as the last action.",
		Schema: schema,
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			rc, ok := runContextFrom(ctx)
			if !ok {
				return nil, fmt.Errorf("no active session")
			}
			rc.mu.Lock()
			rc.state.Ctx[ctxStructuredParsed] = args
			rc.state.setFlag(ctxFinalizedStructured)
			rc.mu.Unlock()
			return "Final output accepted.", nil
		},
	})
}

func decodeSteps(raw any) ([]PlanStep, error) {
	if raw == nil {
		return nil, fmt.Errorf("write requires steps")
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	var decoded []struct {
		Title  string `json:"title"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("invalid steps: %w", err)
	}
	steps := make([]PlanStep, len(decoded))
	for i, step := range decoded {
		steps[i] = PlanStep{Index: i + 1, Title: step.Title, Status: step.Status}
	}
	return steps, nil
}

func renderPlan(plan *Plan, version int) string {
	out := fmt.Sprintf("Todo list (version %d):\n", version)
	for _, step := range plan.Steps {
		out += fmt.Sprintf("%d. [%s] %s\n", step.Index, step.Status, step.Title)
	}
	return out
}

func planEventSteps(plan *Plan) []events.PlanStep {
	if plan == nil {
		return nil
	}
	steps := make([]events.PlanStep, len(plan.Steps))
	for i, step := range plan.Steps {
		steps[i] = events.PlanStep{Index: step.Index, Title: step.Title, Status: step.Status}
	}
	return steps
}
