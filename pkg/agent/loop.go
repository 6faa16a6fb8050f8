package agent

import (
	"context"

	"github.com/cognipeer/smartagent-go/pkg/model"
)

// loopAction tags the step the loop just completed; the next transition is
// computed fresh each iteration from this tag plus the current state.
type loopAction int

const (
	actionResolver loopAction = iota
	actionAgent
	actionTools
	actionSummarize
	actionFinalize
)

const finalizeNotice = "Tool-call limit reached. Produce the best possible " +
	"final answer using the available context and prior tool outputs. Do not " +
	"call any more tools."

// runLoop is the execution state machine:
//
//	resolver → agent ⇄ {contextSummarize, tools} → toolLimitFinalize → agent → terminal
//
// It owns termination: the loop exits on a final answer, on a finalize
// flag, or on the hard iteration ceiling, whichever comes first.
func (a *Agent) runLoop(ctx context.Context, rc *runContext) error {
	state := rc.state

	// The ceiling is computed from the entry runtime; handoffs cannot
	// extend it.
	maxToolCalls := state.Runtime.Limits.MaxToolCalls
	iterationLimit := 4*maxToolCalls + 10
	if iterationLimit < 60 {
		iterationLimit = 60
	}

	lastAction := actionResolver
	justSummarized := false

	for iteration := 0; iteration < iterationLimit; iteration++ {
		// Summarization gate: checked on entry and after tools or
		// finalize, never immediately after an agent turn or a pass that
		// just summarized.
		if !justSummarized && lastAction != actionAgent && a.needsSummarization(state) {
			if err := a.summarize(ctx, rc); err != nil {
				return err
			}
			lastAction = actionSummarize
			justSummarized = true
			continue
		}

		if err := a.turn(ctx, rc); err != nil {
			return err
		}
		lastAction = actionAgent
		justSummarized = false

		// The finalize flag ends the session regardless of whether the
		// finalize turn proposed more tools; those calls never execute.
		if state.flag(ctxFinalizedToolLimit) {
			return nil
		}

		toolCalls := state.lastMessage().ToolCalls
		if len(toolCalls) == 0 {
			return nil
		}

		if state.ToolCallCount >= state.Runtime.Limits.MaxToolCalls {
			a.finalize(rc)
			lastAction = actionFinalize
			continue
		}

		a.runTools(ctx, rc)
		if state.flag(ctxFinalizedStructured) {
			return nil
		}
		lastAction = actionTools

		if state.ToolCallCount >= state.Runtime.Limits.MaxToolCalls {
			a.finalize(rc)
			lastAction = actionFinalize
			continue
		}
	}

	rc.logger.Warn().
		Int("iterationLimit", iterationLimit).
		Msg("Iteration ceiling reached; terminating session")
	return nil
}

// finalize injects the system notice instructing the model to answer
// without further tools and sets the flag that ends the loop after the
// next agent turn.
func (a *Agent) finalize(rc *runContext) {
	rc.state.Messages = append(rc.state.Messages, model.SystemMessage(finalizeNotice))
	rc.state.setFlag(ctxFinalizedToolLimit)
	rc.logger.Info().
		Int("toolCallCount", rc.state.ToolCallCount).
		Msg("Tool-call limit reached; finalizing")
}
