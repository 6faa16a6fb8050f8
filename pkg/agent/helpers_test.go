package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

// scriptedModel replays a fixed sequence of responses. The final response
// repeats if the loop asks for more turns than scripted. Requests are
// recorded for assertions.
type scriptedModel struct {
	name      string
	responses []model.Response
	respond   func(turn int, req model.Request) *model.Response

	mu       sync.Mutex
	requests []model.Request
}

func (m *scriptedModel) Name() string {
	if m.name == "" {
		return "scripted"
	}
	return m.name
}

func (m *scriptedModel) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	turn := len(m.requests)
	m.mu.Unlock()

	if m.respond != nil {
		return m.respond(turn, req), nil
	}
	idx := turn - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	resp := m.responses[idx]
	return &resp, nil
}

func (m *scriptedModel) turnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func textResponse(content string) model.Response {
	return model.Response{
		Message: model.AssistantMessage(content),
		Usage:   map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	}
}

func toolCallResponse(calls ...model.ToolCall) model.Response {
	msg := model.AssistantMessage("")
	msg.ToolCalls = calls
	return model.Response{
		Message: msg,
		Usage:   map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
	}
}

func newEchoTool(t *testing.T) *tool.Tool {
	t.Helper()
	return newCountingEchoTool(t, nil)
}

// newCountingEchoTool builds an echo tool that bumps *calls per execution.
func newCountingEchoTool(t *testing.T, calls *int) *tool.Tool {
	t.Helper()
	var mu sync.Mutex
	built, err := tool.New(tool.Tool{
		Name:        "echo",
		Description: "Echo back",
		Parameters: []tool.Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			if calls != nil {
				mu.Lock()
				*calls++
				mu.Unlock()
			}
			return map[string]any{"echoed": args["text"]}, nil
		},
	})
	require.NoError(t, err)
	return built
}

func invoke(t *testing.T, ag *Agent, prompt string, opts ...InvokeOption) *Result {
	t.Helper()
	res, err := ag.Invoke(context.Background(), State{
		Messages: []model.Message{model.UserMessage(prompt)},
	}, opts...)
	require.NoError(t, err)
	return res
}

// toolMessages filters the conversation down to tool responses.
func toolMessages(msgs []model.Message) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if m.Role == model.RoleTool {
			out = append(out, m)
		}
	}
	return out
}
