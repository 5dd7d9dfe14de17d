package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// sseHandler replays canned frames for each request and records the decoded
// request bodies it saw.
type sseHandler struct {
	requests []chatRequest
	frames   func(req chatRequest) []string
}

func (h *sseHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	h.requests = append(h.requests, req)

	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range h.frames(req) {
		fmt.Fprint(w, frame)
	}
}

func frame(label, data string) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", label, data)
}

func TestSession_SendConsumesStream(t *testing.T) {
	h := &sseHandler{frames: func(chatRequest) []string {
		return []string{
			frame("update", `[{"type":"ai","id":"m1","content":"Hello"},{"langgraph_node":"model"}]`),
			frame("update", `[{"type":"ai","id":"m1","content":" world"},{"langgraph_node":"model"}]`),
			frame("end", `{}`),
		}
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	vm := s.Conversation().View()
	if len(vm.Messages) != 2 {
		t.Fatalf("messages = %d", len(vm.Messages))
	}
	if got := vm.Messages[1].Message.Content; got != "Hello world" {
		t.Errorf("content = %q", got)
	}
	if vm.Loading {
		t.Error("loading must clear after the stream ends")
	}
	if len(h.requests) != 1 || h.requests[0].Message != "hi" {
		t.Errorf("requests = %+v", h.requests)
	}
}

func TestSession_ThreadIDStableAcrossSends(t *testing.T) {
	h := &sseHandler{frames: func(chatRequest) []string {
		return []string{frame("end", `{}`)}
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	_ = s.Send(context.Background(), "one")
	_ = s.Send(context.Background(), "two")

	if len(h.requests) != 2 {
		t.Fatalf("requests = %d", len(h.requests))
	}
	if h.requests[0].ThreadID == "" || h.requests[0].ThreadID != h.requests[1].ThreadID {
		t.Errorf("thread ids = %q, %q", h.requests[0].ThreadID, h.requests[1].ThreadID)
	}
}

func TestSession_ApproveResumesWithDecisionPayload(t *testing.T) {
	h := &sseHandler{}
	h.frames = func(req chatRequest) []string {
		if req.InterruptResponse == nil {
			return []string{
				frame("update", `{"__interrupt__":[{"value":{"actionRequests":[{"name":"send_email","args":{"to":"a@b.c"}}]}}]}`),
				frame("end", `{}`),
			}
		}
		return []string{
			frame("update", `[{"type":"ai","id":"m2","content":"Email sent."},{"langgraph_node":"model"}]`),
			frame("end", `{}`),
		}
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	if err := s.Send(context.Background(), "send the email"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if s.Conversation().View().PendingApprove == nil {
		t.Fatal("interrupt must be pending after first stream")
	}

	if err := s.Approve(context.Background()); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if len(h.requests) != 2 {
		t.Fatalf("requests = %d", len(h.requests))
	}
	resume := h.requests[1]
	if resume.Message != "" {
		t.Errorf("resume message = %q, want empty", resume.Message)
	}
	if resume.InterruptResponse == nil || len(resume.InterruptResponse.Decisions) != 1 {
		t.Fatalf("interruptResponse = %+v", resume.InterruptResponse)
	}
	if resume.InterruptResponse.Decisions[0].Type != stream.DecisionApprove {
		t.Errorf("decision = %+v", resume.InterruptResponse.Decisions[0])
	}
	if resume.ThreadID != h.requests[0].ThreadID {
		t.Error("resume must reuse the thread id")
	}

	vm := s.Conversation().View()
	if vm.PendingApprove != nil {
		t.Error("pending approval must clear after resolution")
	}
	last := vm.Messages[len(vm.Messages)-1].Message
	if last.Content != "Email sent." {
		t.Errorf("last message = %+v", last)
	}
}

func TestSession_UpstreamErrorStatusFailsTurn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	if err := s.Send(context.Background(), "hi"); err == nil {
		t.Fatal("Send must fail on non-200 status")
	}

	vm := s.Conversation().View()
	last := vm.Messages[len(vm.Messages)-1].Message
	if last.Role != RoleAssistant || last.Error == "" {
		t.Errorf("last = %+v, want assistant error message", last)
	}
	if vm.Loading {
		t.Error("loading must clear after failure")
	}
}

func TestSession_ResetClearsThreadAndState(t *testing.T) {
	h := &sseHandler{frames: func(chatRequest) []string {
		return []string{frame("end", `{}`)}
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	_ = s.Send(context.Background(), "one")
	first := s.ThreadID()
	s.Reset()

	if s.ThreadID() != "" {
		t.Error("thread id must clear on reset")
	}
	if got := len(s.Conversation().View().Messages); got != 0 {
		t.Errorf("messages after reset = %d", got)
	}

	_ = s.Send(context.Background(), "two")
	if s.ThreadID() == first {
		t.Error("new thread id must differ after reset")
	}
}

func TestSession_SynthesizedEndWhenUpstreamOmitsIt(t *testing.T) {
	h := &sseHandler{frames: func(chatRequest) []string {
		// upstream closes without a terminal frame
		return []string{frame("update", `[{"type":"ai","id":"m1","content":"partial"},{"langgraph_node":"model"}]`)}
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := NewSession(SessionConfig{Endpoint: srv.URL})
	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if s.Conversation().View().Loading {
		t.Error("synthesized end must clear loading")
	}
}
