package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/go-sandbox/internal/config"
	"github.com/agent-sandbox/go-sandbox/internal/convo"
	"github.com/agent-sandbox/go-sandbox/internal/scenario"
	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

var errAny = errors.New("scenario failed")

func testServer() *Server {
	cfg := &config.Config{Port: 8080, Model: "gpt-4o", SSEHeartbeatSec: 30, TranscriptLimit: 500}
	return NewServer(cfg, scenario.DefaultRegistry(""), nil)
}

func TestHealth(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestListScenarios(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scenarios", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	for _, name := range []string{"chat", "customer-support", "email-approval", "summarization"} {
		if !strings.Contains(w.Body.String(), name) {
			t.Errorf("scenario %q missing from listing", name)
		}
	}
}

func TestChat_UnknownScenario(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/nope/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestChat_EmptyMessageRejected(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/chat/chat", strings.NewReader(`{"message":""}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestChat_SSEEndToEnd(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/chat/chat", strings.NewReader(`{"message":"hello sandbox"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Thread-Id") == "" {
		t.Error("X-Thread-Id header missing")
	}

	// 把响应体当客户端流消费: Reader → Normalize → Conversation
	c := convo.NewConversation()
	r := stream.NewReader(strings.NewReader(w.Body.String()))
	ends := 0
	for {
		frame, err := r.Next()
		if err != nil {
			break
		}
		ev := stream.Normalize(frame.Label, frame.Data)
		if ev.Kind == stream.KindEnd {
			ends++
		}
		c.Apply(ev)
	}
	if ends != 1 {
		t.Errorf("end events = %d, want exactly 1", ends)
	}
	vm := c.View()
	if len(vm.Messages) != 1 || vm.Messages[0].Message.Content == "" {
		t.Errorf("messages = %+v", vm.Messages)
	}
}

func TestChat_InterruptScenarioPausesWithPendingApproval(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/email-approval/chat",
		strings.NewReader(`{"message":"email jane"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)

	c := convo.NewConversation()
	r := stream.NewReader(strings.NewReader(w.Body.String()))
	for {
		frame, err := r.Next()
		if err != nil {
			break
		}
		c.Apply(stream.Normalize(frame.Label, frame.Data))
	}
	if c.View().PendingApprove == nil {
		t.Fatal("pending approval missing after interrupt scenario")
	}
}

func TestDeleteThread_WithoutPersistence(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/threads/t-1", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when no store is configured", w.Code)
	}
}

func TestTurnOutcome(t *testing.T) {
	cases := []struct {
		name        string
		runErr      error
		canceled    bool
		interrupted bool
		status      string
		lastKind    string
	}{
		{"clean turn", nil, false, false, "idle", "end"},
		{"run failure", errAny, false, false, "error", "error"},
		{"client disconnect", errAny, true, false, "idle", "canceled"},
		{"interrupt pause", nil, false, true, "interrupted", "interrupt"},
		{"failure after interrupt", errAny, false, true, "error", "error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, lastKind := turnOutcome(tc.runErr, tc.canceled, tc.interrupted)
			if status != tc.status || lastKind != tc.lastKind {
				t.Errorf("turnOutcome = (%q, %q), want (%q, %q)", status, lastKind, tc.status, tc.lastKind)
			}
		})
	}
}

// TestChat_InterruptDetectedInEmittedFrames 确认 interrupt 包装在服务端
// 帧侦测中被识别 (线程状态以此落库为 interrupted)。
func TestChat_InterruptDetectedInEmittedFrames(t *testing.T) {
	s := testServer()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/scenarios/email-approval/chat",
		strings.NewReader(`{"message":"email jane"}`))
	req.Header.Set("Content-Type", "application/json")
	s.Engine().ServeHTTP(w, req)

	r := stream.NewReader(strings.NewReader(w.Body.String()))
	sawInterrupt := false
	for {
		frame, err := r.Next()
		if err != nil {
			break
		}
		if stream.Normalize(frame.Label, frame.Data).Kind == stream.KindInterrupt {
			sawInterrupt = true
		}
	}
	if !sawInterrupt {
		t.Error("approval scenario stream carried no detectable interrupt frame")
	}
}

func TestFrameHub_PublishSubscribe(t *testing.T) {
	h := NewFrameHub()
	ch, unsub := h.Subscribe("t1")

	h.Publish("t1", stream.Frame{Label: "update"})
	h.Publish("other", stream.Frame{Label: "update"})

	select {
	case f := <-ch:
		if f.Label != "update" {
			t.Errorf("frame = %+v", f)
		}
	default:
		t.Fatal("subscriber did not receive the frame")
	}
	select {
	case f := <-ch:
		t.Fatalf("received frame for foreign thread: %+v", f)
	default:
	}

	unsub()
	if h.SubscriberCount("t1") != 0 {
		t.Error("unsubscribe did not remove the subscriber")
	}
}

func TestFrameHub_SlowSubscriberDropsFrames(t *testing.T) {
	h := NewFrameHub()
	_, unsub := h.Subscribe("t1")
	defer unsub()

	// 超出缓冲也不阻塞
	for i := 0; i < 200; i++ {
		h.Publish("t1", stream.Frame{Label: "update"})
	}
}
