package convo

import (
	"encoding/json"
	"testing"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/errors"
)

func pendingEmail(allowed ...stream.Decision) *stream.InterruptRequest {
	req := &stream.InterruptRequest{
		ActionRequests: []stream.ActionRequest{{
			Name: "send_email",
			Args: map[string]any{"to": "jane@example.com", "body": "hi"},
		}},
		ReviewConfigs: map[string][]stream.Decision{},
	}
	if len(allowed) > 0 {
		req.ReviewConfigs["send_email"] = allowed
	}
	return req
}

func TestInterruptCoordinator_ApprovePayload(t *testing.T) {
	c := NewInterruptCoordinator()
	c.Set(pendingEmail())

	payload, err := c.Approve()
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	raw, _ := json.Marshal(payload)
	if string(raw) != `{"decisions":[{"type":"approve"}]}` {
		t.Errorf("payload = %s", raw)
	}
	if c.Pending() != nil {
		t.Error("pending must clear after resolution")
	}
}

func TestInterruptCoordinator_RejectWithMessage(t *testing.T) {
	c := NewInterruptCoordinator()
	c.Set(pendingEmail())

	payload, err := c.Reject("wrong recipient")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	entry := payload.Decisions[0]
	if entry.Type != stream.DecisionReject || entry.Message != "wrong recipient" {
		t.Errorf("entry = %+v", entry)
	}
}

func TestInterruptCoordinator_EditCarriesActionName(t *testing.T) {
	c := NewInterruptCoordinator()
	c.Set(pendingEmail(stream.DecisionApprove, stream.DecisionReject, stream.DecisionEdit))

	payload, err := c.Edit(map[string]any{"to": "ops@example.com", "body": "hi"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	entry := payload.Decisions[0]
	if entry.EditedAction == nil || entry.EditedAction.Name != "send_email" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.EditedAction.Args["to"] != "ops@example.com" {
		t.Errorf("edited args = %v", entry.EditedAction.Args)
	}
}

func TestInterruptCoordinator_EditRejectedWhenNotAllowed(t *testing.T) {
	c := NewInterruptCoordinator()
	c.Set(pendingEmail()) // default allows only approve/reject

	if _, err := c.Edit(map[string]any{"to": "x"}); !errors.Is(err, errors.ErrDecisionNotAllowed) {
		t.Errorf("err = %v, want ErrDecisionNotAllowed", err)
	}
	if c.Pending() == nil {
		t.Error("rejected decision must keep the request pending")
	}
}

func TestInterruptCoordinator_NoPending(t *testing.T) {
	c := NewInterruptCoordinator()
	if _, err := c.Approve(); !errors.Is(err, errors.ErrNoPendingInterrupt) {
		t.Errorf("err = %v, want ErrNoPendingInterrupt", err)
	}
}

func TestInterruptCoordinator_EmptyRequestIgnored(t *testing.T) {
	c := NewInterruptCoordinator()
	c.Set(&stream.InterruptRequest{ReviewConfigs: map[string][]stream.Decision{}})
	if c.Pending() != nil {
		t.Error("actionless interrupt must not enter pending state")
	}
}

func TestInterruptCoordinator_OnlyFirstActionSurfaced(t *testing.T) {
	req := pendingEmail()
	req.ActionRequests = append(req.ActionRequests, stream.ActionRequest{Name: "delete_account"})
	c := NewInterruptCoordinator()
	c.Set(req)

	if got := c.Pending().Name; got != "send_email" {
		t.Errorf("Pending = %q, want first action", got)
	}
}
