package scenario

import (
	"context"
	"testing"

	"github.com/agent-sandbox/go-sandbox/internal/convo"
	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// runScenario drives a runtime and folds the frames through the normalizer
// into a conversation, the same path the real client takes.
func runScenario(t *testing.T, rt Runtime, req Request) (*convo.Conversation, []stream.Frame) {
	t.Helper()
	var frames []stream.Frame
	c := convo.NewConversation()
	err := rt.Run(context.Background(), req, func(f stream.Frame) error {
		frames = append(frames, f)
		c.Apply(stream.Normalize(f.Label, f.Data))
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	c.Apply(stream.Event{Kind: stream.KindEnd})
	return c, frames
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry("")
	names := []string{}
	for _, sc := range r.List() {
		names = append(names, sc.Name)
	}
	want := []string{"chat", "customer-support", "email-approval", "summarization"}
	if len(names) != len(want) {
		t.Fatalf("scenarios = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("scenario[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if _, err := r.Lookup("nope"); err == nil {
		t.Error("Lookup of unknown scenario must fail")
	}
}

func TestRegistry_LiveScenarioWithEndpoint(t *testing.T) {
	r := DefaultRegistry("http://localhost:2024/chat")
	if !r.Has("live") {
		t.Error("endpoint-configured registry must expose the live scenario")
	}
}

func TestChatRuntime_StreamsReply(t *testing.T) {
	c, frames := runScenario(t, newChatRuntime(), Request{Message: "hello"})
	if len(frames) < 2 {
		t.Fatalf("frames = %d, want word-level deltas", len(frames))
	}
	vm := c.View()
	if len(vm.Messages) != 1 {
		t.Fatalf("messages = %d", len(vm.Messages))
	}
	if got := vm.Messages[0].Message.Content; got == "" {
		t.Error("assistant reply empty")
	}
}

func TestToolRuntime_FullRoundTrip(t *testing.T) {
	c, _ := runScenario(t, newToolRuntime(), Request{Message: "look up customer 1234567890"})
	vm := c.View()

	if len(vm.AvailableTools) != 1 {
		t.Errorf("available tools = %d", len(vm.AvailableTools))
	}
	var calls []convo.ToolCallView
	for _, mv := range vm.Messages {
		calls = append(calls, mv.ToolCalls...)
	}
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d", len(calls))
	}
	if calls[0].Name != "get_customer_information" || calls[0].Status != "success" {
		t.Errorf("call = %+v", calls[0])
	}
	if calls[0].Args["customerId"] != "1234567890" {
		t.Errorf("args not finalized: %v", calls[0].Args)
	}
	stats := c.StatsSnapshot()
	if stats.TotalTokens == 0 {
		t.Error("usage metadata missing from final chunk")
	}
	// the authoritative-args frame must reach the model_request branch
	if stats.ModelCalls == 0 {
		t.Error("model call never counted; authoritative args did not normalize to model_request")
	}
}

func TestApprovalRuntime_InterruptThenApprove(t *testing.T) {
	rt := newApprovalRuntime()

	c, _ := runScenario(t, rt, Request{Message: "email jane about her account"})
	vm := c.View()
	if vm.PendingApprove == nil {
		t.Fatal("first turn must surface a pending approval")
	}
	if vm.PendingApprove.Action.Name != "send_email" {
		t.Errorf("action = %+v", vm.PendingApprove.Action)
	}
	if len(vm.PendingApprove.AllowedDecisions) != 3 {
		t.Errorf("allowed = %v, want approve/reject/edit", vm.PendingApprove.AllowedDecisions)
	}

	payload, err := c.Interrupts().Approve()
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	c2, _ := runScenario(t, rt, Request{InterruptResponse: payload})
	last := lastMessage(t, c2)
	if last.Content != "The email was sent as drafted." {
		t.Errorf("resume reply = %q", last.Content)
	}
}

func TestApprovalRuntime_Reject(t *testing.T) {
	rt := newApprovalRuntime()
	c, _ := runScenario(t, rt, Request{InterruptResponse: &convo.DecisionPayload{
		Decisions: []convo.DecisionEntry{{Type: stream.DecisionReject, Message: "wrong recipient"}},
	}})
	last := lastMessage(t, c)
	if last.Content != "Understood, I won't send the email: wrong recipient." {
		t.Errorf("reply = %q", last.Content)
	}
}

func TestApprovalRuntime_EditUsesEditedArgs(t *testing.T) {
	rt := newApprovalRuntime()
	c, _ := runScenario(t, rt, Request{InterruptResponse: &convo.DecisionPayload{
		Decisions: []convo.DecisionEntry{{
			Type:         stream.DecisionEdit,
			EditedAction: &convo.EditedAction{Name: "send_email", Args: map[string]any{"to": "ops@example.com"}},
		}},
	}})
	var calls []convo.ToolCallView
	for _, mv := range c.View().Messages {
		calls = append(calls, mv.ToolCalls...)
	}
	if len(calls) != 1 || calls[0].Args["to"] != "ops@example.com" {
		t.Errorf("calls = %+v, want edited args", calls)
	}
}

func TestSummaryRuntime_ProducesAnchoredSummary(t *testing.T) {
	c, _ := runScenario(t, newSummaryRuntime(), Request{Message: "continue"})
	vm := c.View()
	if len(vm.Summaries) != 1 {
		t.Fatalf("summaries = %d", len(vm.Summaries))
	}
	if vm.Summaries[0].Summary.Summary == "" {
		t.Error("summary text empty")
	}
	// summary text must stay out of the message list
	for _, mv := range vm.Messages {
		if mv.Message.Content == vm.Summaries[0].Summary.Summary {
			t.Error("summary rendered as a regular message")
		}
	}
}

func lastMessage(t *testing.T, c *convo.Conversation) *convo.Message {
	t.Helper()
	vm := c.View()
	if len(vm.Messages) == 0 {
		t.Fatal("no messages")
	}
	return vm.Messages[len(vm.Messages)-1].Message
}
