package convo

import (
	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/errors"
)

// DecisionPayload is the resumption body sent back to the agent runtime
// after a human decision. The wire shape is a decisions array even though
// the sandbox only ever surfaces one action at a time.
type DecisionPayload struct {
	Decisions []DecisionEntry `json:"decisions"`
}

// DecisionEntry is one decision inside a resumption payload.
type DecisionEntry struct {
	Type         stream.Decision `json:"type"`
	Message      string          `json:"message,omitempty"`
	EditedAction *EditedAction   `json:"editedAction,omitempty"`
}

// EditedAction carries the operator-modified action for an edit decision.
type EditedAction struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// InterruptCoordinator holds at most one pending approval request and turns
// operator decisions into resumption payloads. Decisions are gated by the
// request's allowed-decision config; an ungated decision type is rejected
// rather than silently forwarded.
type InterruptCoordinator struct {
	pending *stream.InterruptRequest
}

// NewInterruptCoordinator creates an idle coordinator.
func NewInterruptCoordinator() *InterruptCoordinator {
	return &InterruptCoordinator{}
}

// Set installs a new pending request. Requests with no action are ignored:
// there is nothing to decide on and the stream continues.
func (c *InterruptCoordinator) Set(req *stream.InterruptRequest) {
	if req == nil || req.First() == nil {
		return
	}
	c.pending = req
}

// Pending returns the first action awaiting decision, or nil when idle.
func (c *InterruptCoordinator) Pending() *stream.ActionRequest {
	if c.pending == nil {
		return nil
	}
	return c.pending.First()
}

// AllowedDecisions lists the decisions the operator may take on the pending
// action. Empty when idle.
func (c *InterruptCoordinator) AllowedDecisions() []stream.Decision {
	action := c.Pending()
	if action == nil {
		return nil
	}
	return c.pending.Allowed(action.Name)
}

// Approve resolves the pending request with an approval.
func (c *InterruptCoordinator) Approve() (*DecisionPayload, error) {
	return c.resolve(stream.DecisionApprove, DecisionEntry{Type: stream.DecisionApprove})
}

// Reject resolves the pending request with a rejection and an optional
// operator message explaining why.
func (c *InterruptCoordinator) Reject(message string) (*DecisionPayload, error) {
	return c.resolve(stream.DecisionReject, DecisionEntry{Type: stream.DecisionReject, Message: message})
}

// Edit resolves the pending request with modified arguments. The action name
// is carried over from the pending request; only args change.
func (c *InterruptCoordinator) Edit(args map[string]any) (*DecisionPayload, error) {
	action := c.Pending()
	if action == nil {
		return nil, errors.ErrNoPendingInterrupt
	}
	return c.resolve(stream.DecisionEdit, DecisionEntry{
		Type:         stream.DecisionEdit,
		EditedAction: &EditedAction{Name: action.Name, Args: args},
	})
}

// Clear drops any pending request without producing a payload (stream reset,
// scenario switch).
func (c *InterruptCoordinator) Clear() {
	c.pending = nil
}

func (c *InterruptCoordinator) resolve(decision stream.Decision, entry DecisionEntry) (*DecisionPayload, error) {
	action := c.Pending()
	if action == nil {
		return nil, errors.ErrNoPendingInterrupt
	}
	if !decisionAllowed(c.pending.Allowed(action.Name), decision) {
		return nil, errors.Wrapf(errors.ErrDecisionNotAllowed, "InterruptCoordinator.resolve", "decision %q not allowed for action %q", decision, action.Name)
	}
	c.pending = nil
	return &DecisionPayload{Decisions: []DecisionEntry{entry}}, nil
}

func decisionAllowed(allowed []stream.Decision, d stream.Decision) bool {
	for _, a := range allowed {
		if a == d {
			return true
		}
	}
	return false
}
