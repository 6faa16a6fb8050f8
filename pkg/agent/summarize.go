package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tokens"
)

// Summarizer condenses a batch of tool execution records into one compact
// textual summary. Implementations may call a model or reduce
// deterministically, but the summary must estimate smaller than the batch
// it replaces; the loop enforces that bound by falling back to the digest
// policy when an implementation overshoots.
type Summarizer interface {
	Summarize(ctx context.Context, records []ToolRecord) (string, error)
}

// digestSummarizer is the default deterministic policy: one line per
// record with the tool name, arguments and a clipped output preview.
type digestSummarizer struct {
	previewChars int
}

func newDigestSummarizer() *digestSummarizer {
	return &digestSummarizer{previewChars: 200}
}

func (d *digestSummarizer) Summarize(_ context.Context, records []ToolRecord) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Summary of %d archived tool calls (retrieve originals with get_tool_response):\n", len(records))
	for _, record := range records {
		preview := record.Output
		if len(preview) > d.previewChars {
			preview = clipRunes(preview, d.previewChars) + "..."
		}
		preview = strings.ReplaceAll(preview, "\n", " ")
		fmt.Fprintf(&b, "- [%s] %s(%s): %s\n", record.ExecutionID, record.ToolName, argsPreview(record.Args), preview)
	}
	return b.String(), nil
}

func argsPreview(args map[string]any) string {
	rendered := model.ToolCall{Args: args}.ArgsJSON()
	if len(rendered) > 80 {
		rendered = clipRunes(rendered, 80) + "..."
	}
	return rendered
}

// modelSummarizer asks a model to compact the batch, falling back to the
// digest policy on failure.
type modelSummarizer struct {
	model  model.Model
	digest *digestSummarizer
}

// NewModelSummarizer returns a summarization policy backed by a model call.
func NewModelSummarizer(m model.Model) Summarizer {
	return &modelSummarizer{model: m, digest: newDigestSummarizer()}
}

func (s *modelSummarizer) Summarize(ctx context.Context, records []ToolRecord) (string, error) {
	digest, _ := s.digest.Summarize(ctx, records)

	var b strings.Builder
	b.WriteString("Condense the following tool call results into a short summary. " +
		"Keep every execution id, tool name and the facts needed to continue the task. Plain text only.\n\n")
	for _, record := range records {
		fmt.Fprintf(&b, "executionId=%s tool=%s args=%s\noutput:\n%s\n\n",
			record.ExecutionID, record.ToolName, argsPreview(record.Args), record.Output)
	}

	resp, err := s.model.Invoke(ctx, model.Request{
		Messages: []model.Message{model.UserMessage(b.String())},
	})
	if err != nil || resp.Message.Content == "" {
		return digest, nil
	}
	return resp.Message.Content, nil
}

// needsSummarization reports whether the estimated pending context exceeds
// the configured thresholds.
func (a *Agent) needsSummarization(state *State) bool {
	if !a.summarizationOn {
		return false
	}
	if !hasUnsummarized(state) {
		return false
	}
	limits := state.Runtime.Limits
	est := tokens.EstimateMessages(state.Messages)
	if limits.MaxToken > 0 && est > limits.MaxToken {
		return true
	}
	return est > limits.ContextTokenLimit
}

func hasUnsummarized(state *State) bool {
	return len(state.ToolHistory) > 0
}

// summarize archives the oldest unsummarized tool records (FIFO) until the
// estimated context fits under SummaryTokenLimit, replaces their
// conversation messages with recovery stubs and injects one summary
// message. Idempotent per record: archived records are never reselected.
func (a *Agent) summarize(ctx context.Context, rc *runContext) error {
	state := rc.state
	limits := state.Runtime.Limits

	target := limits.SummaryTokenLimit
	if limits.MaxToken > 0 && limits.MaxToken < target {
		target = limits.MaxToken
	}

	est := tokens.EstimateMessages(state.Messages)
	var batch []ToolRecord
	for _, record := range state.ToolHistory {
		if est <= target {
			break
		}
		batch = append(batch, record)
		est -= tokens.Estimate(record.Output)
	}
	if len(batch) == 0 {
		return nil
	}

	summary, err := a.summarizer.Summarize(ctx, batch)
	if err != nil || summary == "" {
		summary, _ = newDigestSummarizer().Summarize(ctx, batch)
	}
	// Size bound: the summary must be smaller than what it replaces.
	if tokens.Estimate(summary) >= batchTokens(batch) {
		summary, _ = newDigestSummarizer().Summarize(ctx, batch)
	}

	archived := map[string]ToolRecord{}
	for _, record := range batch {
		record.Summarized = true
		archived[record.ToolCallID] = record
		state.ToolHistoryArchived = append(state.ToolHistoryArchived, record)
	}
	state.ToolHistory = state.ToolHistory[len(batch):]

	// Rewrite the archived tool messages to short recovery stubs so the
	// context actually shrinks.
	for i := range state.Messages {
		msg := &state.Messages[i]
		if msg.Role != model.RoleTool {
			continue
		}
		if record, ok := archived[msg.ToolCallID]; ok {
			msg.Content = fmt.Sprintf(
				"[Summarized. Retrieve the original with get_tool_response executionId=%s]",
				record.ExecutionID)
		}
	}

	state.Summaries = append(state.Summaries, summary)
	state.Messages = append(state.Messages, model.SystemMessage("Context summary of earlier tool calls:\n"+summary))

	rc.emitter.Emit(events.Summarization{Summary: summary, ArchivedCount: len(batch)})
	rc.logger.Info().
		Int("archived", len(batch)).
		Int("estimatedTokens", tokens.EstimateMessages(state.Messages)).
		Msg("Context summarized")

	return nil
}

func batchTokens(batch []ToolRecord) int {
	total := 0
	for _, record := range batch {
		total += tokens.Estimate(record.Output)
	}
	return total
}
