package agent

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tool"
)

func newDumpTool(t *testing.T, size int) *tool.Tool {
	t.Helper()
	built, err := tool.New(tool.Tool{
		Name:        "dump",
		Description: "Return a large payload",
		Parameters: []tool.Parameter{
			{Name: "topic", Type: "string", Description: "What to dump", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return strings.Repeat("payload ", size/8), nil
		},
	})
	require.NoError(t, err)
	return built
}

func TestInvoke_SummarizesOversizedContext(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse(model.ToolCall{ID: "c1", Name: "dump", Args: map[string]any{"topic": "logs"}}),
		textResponse("done after summary"),
	}}
	ag, err := New(Options{
		Model: m,
		Tools: []*tool.Tool{newDumpTool(t, 40000)},
		Limits: Limits{
			MaxToken:             2000,
			ToolOutputTokenLimit: 100000,
		},
	})
	require.NoError(t, err)

	var sums []events.Summarization
	res := invoke(t, ag, "dump the logs", WithEventHandler(func(e events.Event) {
		if s, ok := e.(events.Summarization); ok {
			sums = append(sums, s)
		}
	}))

	assert.Equal(t, "done after summary", res.Content)

	// The record moved to the archive, marked summarized
	assert.Empty(t, res.State.ToolHistory)
	require.Len(t, res.State.ToolHistoryArchived, 1)
	archived := res.State.ToolHistoryArchived[0]
	assert.True(t, archived.Summarized)

	// The tool message became a recovery stub pointing at the record
	tms := toolMessages(res.Messages)
	require.Len(t, tms, 1)
	assert.Contains(t, tms[0].Content, "[Summarized.")
	assert.Contains(t, tms[0].Content, archived.ExecutionID)

	// One summary message was injected and recorded
	require.Len(t, res.State.Summaries, 1)
	assert.Contains(t, res.State.Summaries[0], archived.ExecutionID)

	require.Len(t, sums, 1)
	assert.Equal(t, 1, sums[0].ArchivedCount)
}

func TestInvoke_RecoverArchivedOutputByExecutionID(t *testing.T) {
	// The model reads the execution id out of the recovery stub and asks
	// get_tool_response for the original payload.
	idPattern := regexp.MustCompile(`executionId=([^\]\s]+)`)
	m := &scriptedModel{respond: func(turn int, req model.Request) *model.Response {
		switch turn {
		case 1:
			resp := toolCallResponse(model.ToolCall{ID: "c1", Name: "dump", Args: map[string]any{"topic": "logs"}})
			return &resp
		case 2:
			for _, msg := range req.Messages {
				if msg.Role == model.RoleTool {
					if match := idPattern.FindStringSubmatch(msg.Content); len(match) == 2 {
						resp := toolCallResponse(model.ToolCall{
							ID: "c2", Name: ToolGetToolResponse,
							Args: map[string]any{"executionId": match[1]},
						})
						return &resp
					}
				}
			}
			resp := textResponse("no stub found")
			return &resp
		default:
			resp := textResponse("recovered")
			return &resp
		}
	}}
	ag, err := New(Options{
		Model: m,
		Tools: []*tool.Tool{newDumpTool(t, 40000)},
		Limits: Limits{
			MaxToken:             2000,
			ToolOutputTokenLimit: 100000,
		},
	})
	require.NoError(t, err)

	var recoveries []events.ToolCall
	res, err := ag.Invoke(context.Background(),
		State{Messages: []model.Message{model.UserMessage("dump then recover")}},
		WithEventHandler(func(e events.Event) {
			tc, ok := e.(events.ToolCall)
			if ok && tc.Name == ToolGetToolResponse && tc.Phase == events.PhaseSuccess {
				recoveries = append(recoveries, tc)
			}
		}),
	)
	require.NoError(t, err)
	require.Equal(t, "recovered", res.Content)

	// The recovery call returned the original payload verbatim
	require.Len(t, recoveries, 1)
	assert.Contains(t, recoveries[0].Result, "payload payload")
	assert.Greater(t, len(recoveries[0].Result), 30000)
}

func TestInvoke_SummarizationCanBeDisabled(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{
		toolCallResponse(model.ToolCall{ID: "c1", Name: "dump", Args: map[string]any{"topic": "logs"}}),
		textResponse("done"),
	}}
	ag, err := New(Options{
		Model:                m,
		Tools:                []*tool.Tool{newDumpTool(t, 40000)},
		Limits:               Limits{MaxToken: 2000, ToolOutputTokenLimit: 100000},
		DisableSummarization: true,
	})
	require.NoError(t, err)

	res := invoke(t, ag, "dump")
	assert.Empty(t, res.State.Summaries)
	assert.Empty(t, res.State.ToolHistoryArchived)
	require.Len(t, res.State.ToolHistory, 1)
	assert.False(t, res.State.ToolHistory[0].Summarized)
}

func TestSummarize_SecondPassArchivesNothing(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{textResponse("x")}}
	ag, err := New(Options{Model: m, Limits: Limits{MaxToken: 2000}})
	require.NoError(t, err)

	payload := strings.Repeat("payload ", 5000)
	assistant := model.AssistantMessage("")
	assistant.ToolCalls = []model.ToolCall{{ID: "c1", Name: "dump", Args: map[string]any{"topic": "logs"}}}

	state := &State{
		Messages: []model.Message{
			model.UserMessage("dump the logs"),
			assistant,
			model.ToolMessage("c1", "dump", payload),
		},
		ToolHistory: []ToolRecord{
			{ExecutionID: "ex-1", ToolName: "dump", ToolCallID: "c1", Output: payload},
		},
	}
	state.normalize()
	state.Runtime = ag.Runtime()

	var sums []events.Summarization
	rc := &runContext{state: state, emitter: events.NewEmitter(func(e events.Event) {
		if s, ok := e.(events.Summarization); ok {
			sums = append(sums, s)
		}
	})}

	require.NoError(t, ag.summarize(context.Background(), rc))
	require.Len(t, state.ToolHistoryArchived, 1)
	require.Empty(t, state.ToolHistory)
	require.Len(t, sums, 1)

	// Nothing new to archive: the second pass must be a no-op
	require.NoError(t, ag.summarize(context.Background(), rc))
	assert.Len(t, state.ToolHistoryArchived, 1)
	assert.Empty(t, state.ToolHistory)
	assert.Len(t, sums, 1)
	assert.Len(t, state.Summaries, 1)
	assert.False(t, ag.needsSummarization(state))
}

func TestDigestSummarizer(t *testing.T) {
	d := newDigestSummarizer()
	records := []ToolRecord{
		{ExecutionID: "ex-1", ToolName: "search", Args: map[string]any{"q": "go"}, Output: strings.Repeat("r", 500)},
		{ExecutionID: "ex-2", ToolName: "echo", Args: map[string]any{"text": "hi"}, Output: "short"},
	}

	summary, err := d.Summarize(context.Background(), records)
	require.NoError(t, err)

	assert.Contains(t, summary, "2 archived tool calls")
	assert.Contains(t, summary, "ex-1")
	assert.Contains(t, summary, "ex-2")
	assert.Contains(t, summary, "search")
	// Previews are clipped
	assert.NotContains(t, summary, strings.Repeat("r", 300))
}

func TestDigestSummarizer_ClipsOnRuneBoundaries(t *testing.T) {
	d := newDigestSummarizer()
	records := []ToolRecord{
		{ExecutionID: "ex-1", ToolName: "dump", Args: map[string]any{}, Output: strings.Repeat("日本語", 100)},
	}

	summary, err := d.Summarize(context.Background(), records)
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(summary))
}

func TestModelSummarizer_FallsBackToDigestOnError(t *testing.T) {
	s := NewModelSummarizer(&failingModel{err: assert.AnError})
	records := []ToolRecord{
		{ExecutionID: "ex-1", ToolName: "search", Args: map[string]any{}, Output: "result"},
	}

	summary, err := s.Summarize(context.Background(), records)
	require.NoError(t, err)
	assert.Contains(t, summary, "ex-1")
}

func TestModelSummarizer_UsesModelContent(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{textResponse("condensed summary")}}
	s := NewModelSummarizer(m)

	summary, err := s.Summarize(context.Background(), []ToolRecord{
		{ExecutionID: "ex-1", ToolName: "search", Output: "result"},
	})
	require.NoError(t, err)
	assert.Equal(t, "condensed summary", summary)
}

func TestNeedsSummarization(t *testing.T) {
	m := &scriptedModel{responses: []model.Response{textResponse("x")}}
	ag, err := New(Options{Model: m, Limits: Limits{MaxToken: 100}})
	require.NoError(t, err)

	state := &State{}
	state.normalize()
	state.Runtime = ag.Runtime()

	t.Run("should stay quiet without tool history", func(t *testing.T) {
		state.Messages = []model.Message{model.UserMessage(strings.Repeat("w", 4000))}
		assert.False(t, ag.needsSummarization(state))
	})

	t.Run("should trigger above the maxToken gate", func(t *testing.T) {
		state.ToolHistory = []ToolRecord{{ExecutionID: "ex-1", Output: "big"}}
		assert.True(t, ag.needsSummarization(state))
	})

	t.Run("should stay quiet under the gate", func(t *testing.T) {
		state.Messages = []model.Message{model.UserMessage("small")}
		assert.False(t, ag.needsSummarization(state))
	})
}
