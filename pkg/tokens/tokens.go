// Package tokens provides a fast, model-agnostic token estimator used for
// context-size threshold decisions. Accuracy is deliberately approximate;
// the only guarantee is monotonicity under concatenation, which is all the
// summarization gates need.
package tokens

import "github.com/cognipeer/smartagent-go/pkg/model"

// charsPerToken is the usual heuristic for English-ish text.
const charsPerToken = 4

// Estimate returns an approximate token count for a block of text.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessages estimates the combined token size of a conversation.
// Tool-call metadata is counted through the argument payloads so that
// tool-heavy turns register as larger than their visible text alone.
func EstimateMessages(messages []model.Message) int {
	total := 0
	for _, msg := range messages {
		total += Estimate(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += Estimate(tc.Name)
			total += Estimate(tc.ArgsJSON())
		}
	}
	return total
}
