package agent

import (
	"context"
	"time"

	"github.com/cognipeer/smartagent-go/pkg/debuglog"
	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/usage"
)

// turn produces the next model response: it assembles the ephemeral system
// prompt, invokes the active runtime's model with its tool set bound,
// appends the raw response and records usage. Model failures propagate to
// the loop uncaught; they are fatal for the session.
func (a *Agent) turn(ctx context.Context, rc *runContext) error {
	state := rc.state
	rt := state.Runtime

	req := model.Request{
		System:   buildSystemPrompt(rt, a.summarizationOn),
		Messages: state.Messages,
		Tools:    rt.Registry.Specs(),
	}

	start := time.Now()
	resp, err := rt.Model.Invoke(ctx, req)
	if err != nil {
		rc.logger.Error().Err(err).Str("model", rt.Model.Name()).Msg("Model invocation failed")
		return err
	}

	state.Messages = append(state.Messages, resp.Message)

	turnIndex := len(state.Usage.PerRequest) + 1
	state.Usage.Append(rt.Model.Name(), resp.Usage, turnIndex)

	rc.logger.Debug().
		Str("model", rt.Model.Name()).
		Int("turn", turnIndex).
		Int("toolCalls", len(resp.Message.ToolCalls)).
		Dur("duration", time.Since(start)).
		Msg("Agent turn completed")

	rc.debug.WriteStep(debuglog.Step{
		ModelName: rt.Model.Name(),
		Date:      time.Now(),
		Limits:    rt.Limits,
		Usage:     sessionUsage(state),
		Tools:     req.Tools,
		Messages:  append([]model.Message{model.SystemMessage(req.System)}, state.Messages...),
	})

	return nil
}

// sessionUsage returns the current aggregate for the active model.
func sessionUsage(state *State) usage.Usage {
	if state.Runtime == nil {
		return usage.Usage{}
	}
	return state.Usage.Totals[state.Runtime.Model.Name()]
}
