// Package debuglog writes per-turn debug artifacts: one markdown document
// per agent turn containing the model name, limits, usage, tool inventory
// and full transcript. Artifacts are purely observational; nothing in the
// loop ever reads them back.
package debuglog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cognipeer/smartagent-go/pkg/model"
	"github.com/cognipeer/smartagent-go/pkg/usage"
)

// Config enables debug artifacts for an agent.
type Config struct {
	Enabled bool
	// Path is the base directory for artifacts; defaults to "logs".
	Path string
	// Callback, when set, receives every artifact in addition to (or, if
	// Path writing fails, instead of) the on-disk copy.
	Callback func(Entry)
}

// Entry is one written artifact, as delivered to the callback.
type Entry struct {
	SessionID string
	StepIndex int
	FileName  string
	Markdown  string
}

// Step is the observable content of one agent turn.
type Step struct {
	ModelName string
	Date      time.Time
	Limits    any
	Usage     usage.Usage
	Tools     []model.ToolSpec
	Messages  []model.Message
}

// Session groups the artifacts of one invocation under a distinct
// directory. A nil Session is valid and writes nothing.
type Session struct {
	id       string
	dir      string
	callback func(Entry)
	step     int
	mu       sync.Mutex
}

// NewSession creates a debug session, or nil when disabled. Directory
// creation failures degrade to callback-only delivery rather than failing
// the invocation.
func NewSession(cfg Config, agentName string) *Session {
	if !cfg.Enabled {
		return nil
	}

	id := uuid.NewString()
	base := cfg.Path
	if base == "" {
		base = "logs"
	}
	name := agentName
	if name == "" {
		name = "agent"
	}
	dir := filepath.Join(base, fmt.Sprintf("%s-%s-%s", name, time.Now().Format("20060102-150405"), id[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		dir = ""
	}

	return &Session{id: id, dir: dir, callback: cfg.Callback}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// WriteStep renders and records one turn artifact.
func (s *Session) WriteStep(step Step) {
	if s == nil {
		return
	}

	s.mu.Lock()
	s.step++
	index := s.step
	s.mu.Unlock()

	fileName := fmt.Sprintf("%02d.md", index)
	markdown := formatMarkdown(step)

	if s.dir != "" {
		// Best effort: debug output never fails the session.
		_ = os.WriteFile(filepath.Join(s.dir, fileName), []byte(markdown), 0o644)
	}
	if s.callback != nil {
		s.callback(Entry{SessionID: s.id, StepIndex: index, FileName: fileName, Markdown: markdown})
	}
}

func formatMarkdown(step Step) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Agent Turn\n\n")
	fmt.Fprintf(&b, "- Model: %s\n", step.ModelName)
	fmt.Fprintf(&b, "- Date: %s\n", step.Date.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Limits: %s\n", compactJSON(step.Limits))
	fmt.Fprintf(&b, "- Usage: input=%d output=%d total=%d cached=%d\n\n",
		step.Usage.Input, step.Usage.Output, step.Usage.Total, step.Usage.CachedInput)

	b.WriteString("## Tools\n\n")
	if len(step.Tools) == 0 {
		b.WriteString("(none)\n\n")
	} else {
		for _, spec := range step.Tools {
			fmt.Fprintf(&b, "- `%s`: %s\n", spec.Name, spec.Description)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n\n")
	for _, msg := range step.Messages {
		fmt.Fprintf(&b, "### %s\n\n", msg.Role)
		if msg.Content != "" {
			fmt.Fprintf(&b, "%s\n\n", msg.Content)
		}
		for _, tc := range msg.ToolCalls {
			fmt.Fprintf(&b, "- tool call `%s` (%s): %s\n", tc.Name, tc.ID, tc.ArgsJSON())
		}
		if len(msg.ToolCalls) > 0 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

func compactJSON(v any) string {
	if v == nil {
		return "{}"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
