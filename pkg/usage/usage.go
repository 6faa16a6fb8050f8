// Package usage converts provider-specific accounting objects into one
// canonical shape and folds per-call usage into running per-model totals.
package usage

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Usage is the canonical token accounting shape.
type Usage struct {
	Input       int `json:"input"`
	Output      int `json:"output"`
	Total       int `json:"total"`
	CachedInput int `json:"cachedInput"`
}

// Add folds another usage value into this one.
func (u *Usage) Add(other Usage) {
	u.Input += other.Input
	u.Output += other.Output
	u.Total += other.Total
	u.CachedInput += other.CachedInput
}

// PerRequest is one model call's accounting entry.
type PerRequest struct {
	ID        string    `json:"id"`
	ModelName string    `json:"modelName"`
	Usage     Usage     `json:"usage"`
	Timestamp time.Time `json:"timestamp"`
	Turn      int       `json:"turn"`
}

// Log is an append-only usage log plus its derived per-model aggregate.
// Totals always equals the fold of PerRequest grouped by model name.
type Log struct {
	PerRequest []PerRequest     `json:"perRequest"`
	Totals     map[string]Usage `json:"totals"`
}

// NewLog returns an empty usage log.
func NewLog() Log {
	return Log{Totals: map[string]Usage{}}
}

// Append records one model call and updates the aggregate.
func (l *Log) Append(modelName string, raw map[string]any, turn int) PerRequest {
	id, err := gonanoid.New()
	if err != nil {
		id = time.Now().Format("20060102150405.000000000")
	}
	entry := PerRequest{
		ID:        id,
		ModelName: modelName,
		Usage:     Normalize(raw),
		Timestamp: time.Now(),
		Turn:      turn,
	}
	l.PerRequest = append(l.PerRequest, entry)
	l.recompute()
	return entry
}

// recompute rebuilds Totals from PerRequest.
func (l *Log) recompute() {
	totals := map[string]Usage{}
	for _, entry := range l.PerRequest {
		t := totals[entry.ModelName]
		t.Add(entry.Usage)
		totals[entry.ModelName] = t
	}
	l.Totals = totals
}

// Normalize converts a raw provider usage object into the canonical shape.
// Recognized key families: Anthropic (input_tokens/output_tokens,
// cache_read_input_tokens), OpenAI (prompt_tokens/completion_tokens/
// total_tokens, cached_tokens) and camelCase variants of both.
func Normalize(raw map[string]any) Usage {
	if raw == nil {
		return Usage{}
	}

	u := Usage{
		Input:       pick(raw, "input_tokens", "prompt_tokens", "inputTokens", "promptTokens"),
		Output:      pick(raw, "output_tokens", "completion_tokens", "outputTokens", "completionTokens"),
		Total:       pick(raw, "total_tokens", "totalTokens"),
		CachedInput: pick(raw, "cached_tokens", "cache_read_input_tokens", "cachedTokens", "cachedInput"),
	}
	if u.Total == 0 {
		u.Total = u.Input + u.Output
	}
	return u
}

// pick returns the first present key coerced to int.
func pick(raw map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := raw[key]; ok {
			if n, ok := asInt(v); ok {
				return n
			}
		}
	}
	return 0
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
