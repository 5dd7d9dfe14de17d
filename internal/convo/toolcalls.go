package convo

import (
	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// placeholderToolName is shown for a tool result whose originating call was
// never observed (result-before-call ordering).
const placeholderToolName = "unknown"

// ToolResult is the outcome of one tool execution.
type ToolResult struct {
	Status  string // success | error
	Content string // raw string, frequently JSON-encoded
}

// ToolCallState is the merged lifecycle record of one tool call id.
type ToolCallState struct {
	ID                  string
	Name                string
	Args                map[string]any
	Result              *ToolResult
	AssociatedMessageID string
	Errored             bool // turn failed before a result arrived
}

// ToolCallTracker correlates tool-call stubs, authoritative argument sets
// and results by call id, regardless of arrival order. Later fragments only
// ever add information; they never regress a field that is already known.
type ToolCallTracker struct {
	calls map[string]*ToolCallState
	order []string
}

// NewToolCallTracker creates an empty tracker.
func NewToolCallTracker() *ToolCallTracker {
	return &ToolCallTracker{calls: map[string]*ToolCallState{}}
}

// OnCallSighted records a tool-call stub from a streaming assistant message.
// Early stubs may carry empty args or even an empty name; a later sighting
// upgrades the placeholder name but never overwrites args that were already
// finalized.
func (t *ToolCallTracker) OnCallSighted(messageID string, call stream.ToolCall) {
	if call.ID == "" {
		return
	}
	state, ok := t.calls[call.ID]
	if !ok {
		name := call.Name
		if name == "" {
			name = placeholderToolName
		}
		t.calls[call.ID] = &ToolCallState{
			ID:                  call.ID,
			Name:                name,
			Args:                call.Args,
			AssociatedMessageID: messageID,
		}
		t.order = append(t.order, call.ID)
		return
	}
	if state.Name == placeholderToolName && call.Name != "" {
		state.Name = call.Name
	}
	if state.AssociatedMessageID == "" {
		state.AssociatedMessageID = messageID
	}
	if state.Args == nil && call.Args != nil {
		state.Args = call.Args
	}
}

// OnArgsFinalized applies the authoritative argument set for a call, as
// carried by a model_request event. Replacement is wholesale, not merged:
// stub args observed during streaming are superseded entirely.
func (t *ToolCallTracker) OnArgsFinalized(call stream.ToolCall) {
	if call.ID == "" {
		return
	}
	state, ok := t.calls[call.ID]
	if !ok {
		t.OnCallSighted("", call)
		state = t.calls[call.ID]
		if state == nil {
			return
		}
	}
	if call.Args != nil {
		state.Args = call.Args
	}
	if state.Name == placeholderToolName && call.Name != "" {
		state.Name = call.Name
	}
}

// OnResult attaches a tool result to its call id. An unseen id gets a
// synthesized call record under the placeholder name so the result is never
// dropped. A call holds at most one result; duplicates are ignored.
func (t *ToolCallTracker) OnResult(callID, status, content string) {
	if callID == "" {
		return
	}
	state, ok := t.calls[callID]
	if !ok {
		state = &ToolCallState{ID: callID, Name: placeholderToolName}
		t.calls[callID] = state
		t.order = append(t.order, callID)
	}
	if state.Result != nil {
		return
	}
	if status == "" {
		status = "success"
	}
	state.Result = &ToolResult{Status: status, Content: content}
	state.Errored = false
}

// OnTurnFailed marks the resultless calls owned by the failing assistant
// message as errored. Calls belonging to earlier messages and calls that
// already carry a result are untouched. Idempotent.
func (t *ToolCallTracker) OnTurnFailed(messageID string) {
	for _, id := range t.order {
		state := t.calls[id]
		if state.AssociatedMessageID != messageID {
			continue
		}
		if state.Result == nil {
			state.Errored = true
		}
	}
}

// Get returns the state for a call id, or nil.
func (t *ToolCallTracker) Get(callID string) *ToolCallState {
	return t.calls[callID]
}

// All returns every tracked call in first-sighted order.
func (t *ToolCallTracker) All() []*ToolCallState {
	out := make([]*ToolCallState, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.calls[id])
	}
	return out
}

// ForMessage returns the calls associated with one assistant message id,
// in first-sighted order.
func (t *ToolCallTracker) ForMessage(messageID string) []*ToolCallState {
	var out []*ToolCallState
	for _, id := range t.order {
		if state := t.calls[id]; state.AssociatedMessageID == messageID {
			out = append(out, state)
		}
	}
	return out
}

// Reset drops all tracked calls (scenario switch).
func (t *ToolCallTracker) Reset() {
	t.calls = map[string]*ToolCallState{}
	t.order = nil
}
