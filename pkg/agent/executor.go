package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/cognipeer/smartagent-go/pkg/events"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/tokens"
)

// handoffSignal is returned by handoff tool handlers. The executor detects
// it after the call completes and swaps the active runtime on the main
// loop goroutine.
type handoffSignal struct {
	runtime  *RuntimeConfig
	toolName string
}

// callOutcome is the buffered result of one tool invocation, reinserted
// positionally so response messages keep the request order regardless of
// completion order.
type callOutcome struct {
	record    ToolRecord
	message   model.Message
	handoff   *handoffSignal
	cacheKey  string
	cacheable bool
	skipped   bool
}

// runTools executes the tool calls requested by the latest model turn,
// honoring the concurrency cap and the remaining tool-call budget. Calls
// beyond the budget are answered with a skip notice instead of executing.
func (a *Agent) runTools(ctx context.Context, rc *runContext) {
	state := rc.state
	rt := state.Runtime
	calls := state.lastMessage().ToolCalls
	if len(calls) == 0 {
		return
	}

	remaining := rt.Limits.MaxToolCalls - state.ToolCallCount
	if remaining < 0 {
		remaining = 0
	}

	outcomes := make([]callOutcome, len(calls))
	sem := make(chan struct{}, rt.Limits.MaxParallelTools)
	done := make(chan int, len(calls))

	toolCtx := withRunContext(ctx, rc)

	dispatched := 0
	for i, call := range calls {
		if i >= remaining {
			// Budget exhausted mid-batch: answer the call without
			// executing it so every tool_call id still gets a response.
			outcomes[i] = a.skipCall(rc, call)
			done <- i
			continue
		}
		dispatched++

		go func(index int, call model.ToolCall) {
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[index] = a.executeCall(toolCtx, rc, call)
			done <- index
		}(i, call)
	}

	for range calls {
		<-done
	}

	// Apply results in request order on the loop goroutine.
	for _, outcome := range outcomes {
		state.Messages = append(state.Messages, outcome.message)
		if outcome.skipped {
			continue
		}
		state.ToolHistory = append(state.ToolHistory, outcome.record)
		state.ToolCallCount++
		if outcome.cacheable {
			state.ToolCache[outcome.cacheKey] = CachedResult{
				Output:             outcome.record.Output,
				RawOutput:          outcome.record.RawOutput,
				OriginalTokenCount: outcome.record.OriginalTokenCount,
			}
		}
		if outcome.handoff != nil {
			from := state.Runtime.Name
			state.Runtime = outcome.handoff.runtime
			rc.emitter.Emit(events.Handoff{
				From:     from,
				To:       outcome.handoff.runtime.Name,
				ToolName: outcome.handoff.toolName,
			})
			rc.logger.Info().
				Str("from", from).
				Str("to", outcome.handoff.runtime.Name).
				Msg("Runtime handoff")
		}
	}

	rc.logger.Debug().
		Int("requested", len(calls)).
		Int("dispatched", dispatched).
		Int("toolCallCount", state.ToolCallCount).
		Msg("Tools step completed")
}

// executeCall runs one tool call end to end: cache check, validation,
// handler execution, truncation and record construction. A failing call
// produces an error-bearing record, never an error return; sibling calls
// are unaffected.
func (a *Agent) executeCall(ctx context.Context, rc *runContext, call model.ToolCall) callOutcome {
	start := time.Now()
	rt := rc.state.Runtime
	cacheKey := call.Name + ":" + call.ArgsJSON()

	rc.emitter.Emit(events.ToolCall{
		Phase: events.PhaseStart,
		Name:  call.Name,
		ID:    call.ID,
		Args:  call.Args,
	})

	// Cache hit: reuse the prior result under a fresh execution id. It
	// still counts against the budget since it occupies a turn.
	rc.mu.Lock()
	cached, hit := rc.state.ToolCache[cacheKey]
	rc.mu.Unlock()
	if hit {
		raw := cached.RawOutput
		if raw == "" {
			raw = cached.Output
		}
		record := a.newRecord(call, cached.Output, raw, cached.OriginalTokenCount)
		record.FromCache = true
		rc.emitter.Emit(events.ToolCall{
			Phase:      events.PhaseSuccess,
			Name:       call.Name,
			ID:         call.ID,
			Args:       call.Args,
			Result:     record.Output,
			DurationMs: time.Since(start).Milliseconds(),
			FromCache:  true,
		})
		return callOutcome{
			record:  record,
			message: model.ToolMessage(call.ID, call.Name, record.Output),
		}
	}

	impl := rt.Registry.Get(call.Name)
	if impl == nil {
		return a.errorOutcome(rc, call, start, fmt.Errorf("tool not found: %s", call.Name))
	}
	if err := impl.ValidateArgs(call.Args); err != nil {
		return a.errorOutcome(rc, call, start, fmt.Errorf("parameter validation failed: %w", err))
	}

	result, err := safeCall(ctx, impl.Handler, call.Args)
	if err != nil {
		return a.errorOutcome(rc, call, start, err)
	}

	if h, ok := result.(*handoffSignal); ok {
		output := fmt.Sprintf("Handoff accepted: control transferred to %s.", h.runtime.Name)
		record := a.newRecord(call, output, output, tokens.Estimate(output))
		rc.emitter.Emit(events.ToolCall{
			Phase:      events.PhaseSuccess,
			Name:       call.Name,
			ID:         call.ID,
			Args:       call.Args,
			Result:     output,
			DurationMs: time.Since(start).Milliseconds(),
		})
		return callOutcome{
			record:  record,
			message: model.ToolMessage(call.ID, call.Name, output),
			handoff: h,
		}
	}

	raw := renderOutput(result)
	output, truncated := truncate(raw, rt.Limits.ToolOutputTokenLimit)
	record := a.newRecord(call, output, raw, tokens.Estimate(raw))

	rc.emitter.Emit(events.ToolCall{
		Phase:      events.PhaseSuccess,
		Name:       call.Name,
		ID:         call.ID,
		Args:       call.Args,
		Result:     output,
		DurationMs: time.Since(start).Milliseconds(),
	})
	rc.logger.Debug().
		Str("tool", call.Name).
		Bool("truncated", truncated).
		Dur("duration", time.Since(start)).
		Msg("Tool execution completed")

	return callOutcome{
		record:    record,
		message:   model.ToolMessage(call.ID, call.Name, output),
		cacheKey:  cacheKey,
		cacheable: true,
	}
}

// errorOutcome converts a failed call into an error-bearing tool response
// visible to the model.
func (a *Agent) errorOutcome(rc *runContext, call model.ToolCall, start time.Time, err error) callOutcome {
	output := "Error: " + err.Error()
	record := a.newRecord(call, output, output, tokens.Estimate(output))

	rc.emitter.Emit(events.ToolCall{
		Phase:      events.PhaseError,
		Name:       call.Name,
		ID:         call.ID,
		Args:       call.Args,
		Err:        err.Error(),
		DurationMs: time.Since(start).Milliseconds(),
	})
	rc.logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool execution failed")

	return callOutcome{
		record:  record,
		message: model.ToolMessage(call.ID, call.Name, output),
	}
}

// skipCall answers a budget-excess call without dispatching it.
func (a *Agent) skipCall(rc *runContext, call model.ToolCall) callOutcome {
	notice := "Tool call skipped: the tool-call limit was reached before this call could run."
	rc.emitter.Emit(events.ToolCall{
		Phase: events.PhaseSkipped,
		Name:  call.Name,
		ID:    call.ID,
		Args:  call.Args,
	})
	return callOutcome{
		message: model.ToolMessage(call.ID, call.Name, notice),
		skipped: true,
	}
}

func (a *Agent) newRecord(call model.ToolCall, output, raw string, tokenCount int) ToolRecord {
	id, err := gonanoid.New()
	if err != nil {
		id = fmt.Sprintf("exec-%d", time.Now().UnixNano())
	}
	record := ToolRecord{
		ExecutionID:        id,
		ToolName:           call.Name,
		Args:               call.Args,
		Output:             output,
		Timestamp:          time.Now(),
		OriginalTokenCount: tokenCount,
		ToolCallID:         call.ID,
	}
	if raw != output {
		record.RawOutput = raw
	}
	return record
}

// safeCall shields the loop from panicking tool handlers.
func safeCall(ctx context.Context, handler func(context.Context, map[string]any) (any, error), args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return handler(ctx, args)
}

// renderOutput converts a handler result to message content. Strings pass
// through; everything else is JSON.
func renderOutput(result any) string {
	switch v := result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

// truncate bounds output to a token budget, keeping the head.
func truncate(output string, tokenLimit int) (string, bool) {
	if tokenLimit <= 0 {
		return output, false
	}
	maxChars := tokenLimit * 4
	if len(output) <= maxChars {
		return output, false
	}
	return clipRunes(output, maxChars) + "\n... [output truncated]", true
}

// clipRunes cuts s to at most max bytes without splitting a UTF-8 rune.
func clipRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
