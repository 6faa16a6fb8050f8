package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

func TestNew_RequiresModel(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_MergesContextTools(t *testing.T) {
	t.Run("should always include get_tool_response", func(t *testing.T) {
		ag, err := New(Options{Model: &scriptedModel{responses: []model.Response{textResponse("hi")}}})
		require.NoError(t, err)
		assert.NotNil(t, ag.Runtime().Registry.Get(ToolGetToolResponse))
		assert.Nil(t, ag.Runtime().Registry.Get(ToolManageTodoList))
		assert.Nil(t, ag.Runtime().Registry.Get(ToolSubmitOutput))
	})

	t.Run("should include manage_todo_list when planning is on", func(t *testing.T) {
		ag, err := New(Options{
			Model:       &scriptedModel{responses: []model.Response{textResponse("hi")}},
			UseTodoList: true,
		})
		require.NoError(t, err)
		assert.NotNil(t, ag.Runtime().Registry.Get(ToolManageTodoList))
	})

	t.Run("should include submit_output when an output schema is set", func(t *testing.T) {
		ag, err := New(Options{
			Model:        &scriptedModel{responses: []model.Response{textResponse("hi")}},
			OutputSchema: map[string]any{"type": "object"},
		})
		require.NoError(t, err)
		assert.NotNil(t, ag.Runtime().Registry.Get(ToolSubmitOutput))
	})

	t.Run("should reject user tools clashing with context tools", func(t *testing.T) {
		clash := tool.MustNew(tool.Tool{
			Name:        ToolGetToolResponse,
			Description: "clash",
			Handler:     func(ctx context.Context, args map[string]any) (any, error) { return nil, nil },
		})
		_, err := New(Options{
			Model: &scriptedModel{responses: []model.Response{textResponse("hi")}},
			Tools: []*tool.Tool{clash},
		})
		assert.Error(t, err)
	})
}

func TestInvoke_DirectAnswer(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{textResponse("four")}}
	ag, err := New(Options{Model: m})
	require.NoError(t, err)

	var fired []events.Event
	res := invoke(t, ag, "what is 2+2?", WithEventHandler(func(e events.Event) {
		fired = append(fired, e)
	}))

	assert.Equal(t, "four", res.Content)
	assert.Equal(t, 1, m.turnCount())
	assert.Equal(t, 0, res.State.ToolCallCount)

	// Terminal events: metadata then final answer
	require.Len(t, fired, 2)
	assert.Equal(t, "metadata", fired[0].Type())
	final, ok := fired[1].(events.FinalAnswer)
	require.True(t, ok)
	assert.Equal(t, "four", final.Content)
}

func TestInvoke_ToolRoundTrip(t *testing.T) {
	calls := 0
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse(model.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "hi"}}),
		textResponse("echoed hi"),
	}}
	ag, err := New(Options{Model: m, Tools: []*tool.Tool{newCountingEchoTool(t, &calls)}})
	require.NoError(t, err)

	res := invoke(t, ag, "say hi via echo")

	assert.Equal(t, "echoed hi", res.Content)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.State.ToolCallCount)

	require.Len(t, res.State.ToolHistory, 1)
	record := res.State.ToolHistory[0]
	assert.Equal(t, "echo", record.ToolName)
	assert.Equal(t, "c1", record.ToolCallID)
	assert.NotEmpty(t, record.ExecutionID)
	assert.Contains(t, record.Output, `"echoed":"hi"`)

	tms := toolMessages(res.Messages)
	require.Len(t, tms, 1)
	assert.Equal(t, "c1", tms[0].ToolCallID)
	assert.Contains(t, tms[0].Content, `"echoed":"hi"`)
}

func TestInvoke_EveryToolCallGetsAResponse(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse(
			model.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "a"}},
			model.ToolCall{ID: "c2", Name: "echo", Args: map[string]any{"text": "b"}},
		),
		textResponse("done"),
	}}
	ag, err := New(Options{Model: m, Tools: []*tool.Tool{newEchoTool(t)}})
	require.NoError(t, err)

	res := invoke(t, ag, "echo twice")

	tms := toolMessages(res.Messages)
	require.Len(t, tms, 2)
	assert.Equal(t, "c1", tms[0].ToolCallID)
	assert.Equal(t, "c2", tms[1].ToolCallID)
}

func TestInvoke_ModelErrorIsFatal(t *testing.T) {
	boom := &failingModel{err: errors.New("provider down")}
	ag, err := New(Options{Model: boom})
	require.NoError(t, err)

	_, err = ag.Invoke(context.Background(), State{
		Messages: []model.Message{model.UserMessage("hi")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")
}

type failingModel struct{ err error }

func (m *failingModel) Name() string { return "failing" }
func (m *failingModel) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	return nil, m.err
}

func TestInvoke_ContinuesConversationFromReturnedState(t *testing.T) {
	m := &scriptedModel{respond: func(turn int, req model.Request) *model.Response {
		resp := textResponse("answer")
		return &resp
	}}
	ag, err := New(Options{Model: m})
	require.NoError(t, err)

	first := invoke(t, ag, "first question")
	assert.Len(t, first.State.Messages, 2)

	next := first.State
	next.Messages = append(next.Messages, model.UserMessage("second question"))
	res, err := ag.Invoke(context.Background(), next)
	require.NoError(t, err)

	assert.Len(t, res.State.Messages, 4)
	assert.Len(t, res.State.Usage.PerRequest, 2)
}

func TestInvoke_UsageAccounting(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse(model.ToolCall{ID: "c1", Name: "echo", Args: map[string]any{"text": "x"}}),
		textResponse("done"),
	}}
	ag, err := New(Options{Model: m, Tools: []*tool.Tool{newEchoTool(t)}})
	require.NoError(t, err)

	res := invoke(t, ag, "go")

	require.Len(t, res.Metadata.Usage.PerRequest, 2)
	assert.Equal(t, 1, res.Metadata.Usage.PerRequest[0].Turn)
	assert.Equal(t, 2, res.Metadata.Usage.PerRequest[1].Turn)

	totals := res.Metadata.Usage.Totals["scripted"]
	assert.Equal(t, 20, totals.Input)
	assert.Equal(t, 10, totals.Output)
}

func TestInvoke_EventHandlerPanicDoesNotAbort(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{textResponse("fine")}}
	ag, err := New(Options{Model: m})
	require.NoError(t, err)

	res := invoke(t, ag, "hi", WithEventHandler(func(events.Event) {
		panic("observer bug")
	}))
	assert.Equal(t, "fine", res.Content)
}

func TestInvoke_TerminatesWhenModelNeverStopsCallingTools(t *testing.T) {
	// A model that proposes a tool call on every turn must still terminate
	// through the budget finalize path.
	m := &scriptedModel{respond: func(turn int, req model.Request) *model.Response {
		resp := toolCallResponse(model.ToolCall{
			ID: "c", Name: "echo", Args: map[string]any{"text": "again"},
		})
		return &resp
	}}
	ag, err := New(Options{
		Model:  m,
		Tools:  []*tool.Tool{newEchoTool(t)},
		Limits: Limits{MaxToolCalls: 3},
	})
	require.NoError(t, err)

	res := invoke(t, ag, "loop forever")
	assert.Equal(t, 3, res.State.ToolCallCount)
	assert.True(t, res.State.flag(ctxFinalizedToolLimit))
}
