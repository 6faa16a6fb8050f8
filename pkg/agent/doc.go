// Package agent implements the execution state machine driving a
// conversational reasoning agent: repeated rounds of model invocation,
// tool execution and context summarization until a final answer, a
// resource-limit finalize, or the iteration ceiling.
//
// Invariants:
// - Loop steps never overlap; only tool invocations within one tools step run concurrently.
// - Every tool-call reference in a message has exactly one execution record, live or archived.
// - Execution ids stay resolvable for the whole session; summarization relocates records, never erases them.
// - The iteration ceiling max(4*maxToolCalls+10, 60) bounds every session.
//
// Usage:
//
//	ag, _ := agent.New(agent.Options{
//		Model: model.NewOpenAI(apiKey, "gpt-4o-mini"),
//		Tools: []*tool.Tool{searchTool},
//	})
//	res, _ := ag.Invoke(ctx, agent.State{
//		Messages: []model.Message{model.UserMessage("look it up")},
//	})
//	_ = res.Content
package agent
