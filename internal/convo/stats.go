package convo

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// countTokens estimates the token footprint of text. Uses the cl100k_base
// encoding when available; falls back to the len/4 heuristic when the
// encoding data cannot be loaded (offline runs).
func countTokens(text string) int {
	if text == "" {
		return 0
	}
	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})
	if encoding == nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}

// ToolUsage is the per-tool invocation count in a stats snapshot.
type ToolUsage struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsSnapshot is a point-in-time view of usage statistics.
type StatsSnapshot struct {
	ModelCalls   int         `json:"modelCalls"`
	InputTokens  int         `json:"inputTokens"`
	OutputTokens int         `json:"outputTokens"`
	TotalTokens  int         `json:"totalTokens"`
	MaxContext   int         `json:"maxContext"` // largest single-call context observed
	ToolUsage    []ToolUsage `json:"toolUsage,omitempty"`
	Estimated    bool        `json:"estimated"` // totals include estimated turns
}

// Stats accumulates model-call and token counts for a session. Tool counts
// are not stored here; they are derived from the tracker at snapshot time so
// the two can never drift apart.
type Stats struct {
	modelCalls   int
	inputTokens  int
	outputTokens int
	totalTokens  int
	maxContext   int // monotonic peak of per-call context size
	estimated    bool

	// usage observed since the turn started; a turn with no reported usage
	// gets an estimate from the final text at turn end
	turnSawUsage bool
}

// NewStats creates zeroed statistics.
func NewStats() *Stats {
	return &Stats{}
}

// OnModelRequest counts one model invocation.
func (s *Stats) OnModelRequest() {
	s.modelCalls++
}

// OnUsage accumulates reported token usage and advances the context peak:
// the largest context any single call has reported, never decreasing until
// Reset.
func (s *Stats) OnUsage(u stream.UsageMetadata) {
	s.inputTokens += u.InputTokens
	s.outputTokens += u.OutputTokens
	s.totalTokens += u.TotalTokens
	size := u.TotalTokens
	if size == 0 {
		size = u.InputTokens + u.OutputTokens
	}
	if size > s.maxContext {
		s.maxContext = size
	}
	s.turnSawUsage = true
}

// OnTurnEnd closes the turn. When the upstream never reported usage, the
// final assistant text is token-counted locally and marked as an estimate.
func (s *Stats) OnTurnEnd(finalText string) {
	if !s.turnSawUsage && finalText != "" {
		n := countTokens(finalText)
		s.outputTokens += n
		s.totalTokens += n
		if n > s.maxContext {
			s.maxContext = n
		}
		s.estimated = true
	}
	s.turnSawUsage = false
}

// Snapshot derives a point-in-time view, pulling per-tool counts from the
// tracker.
func (s *Stats) Snapshot(tracker *ToolCallTracker) StatsSnapshot {
	snap := StatsSnapshot{
		ModelCalls:   s.modelCalls,
		InputTokens:  s.inputTokens,
		OutputTokens: s.outputTokens,
		TotalTokens:  s.totalTokens,
		MaxContext:   s.maxContext,
		Estimated:    s.estimated,
	}
	if tracker == nil {
		return snap
	}
	counts := map[string]int{}
	var order []string
	for _, call := range tracker.All() {
		if _, ok := counts[call.Name]; !ok {
			order = append(order, call.Name)
		}
		counts[call.Name]++
	}
	for _, name := range order {
		snap.ToolUsage = append(snap.ToolUsage, ToolUsage{Name: name, Count: counts[name]})
	}
	return snap
}

// Reset zeroes all counters (scenario switch).
func (s *Stats) Reset() {
	*s = Stats{}
}
