package server

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

func TestWSMirror_ReceivesPublishedFrames(t *testing.T) {
	s := testServer()
	srv := httptest.NewServer(s.Engine())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/threads/t1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// 订阅注册是异步的, 等到 hub 可见
	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().SubscriberCount("t1") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	s.Hub().Publish("t1", stream.Frame{Label: "update", Data: []byte(`{"x":1}`)})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got wsFrame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Label != "update" {
		t.Errorf("label = %q", got.Label)
	}
	raw, _ := json.Marshal(got.Data)
	if string(raw) != `{"x":1}` {
		t.Errorf("data = %s", raw)
	}
}

func TestCheckLocalOrigin(t *testing.T) {
	cases := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://evil.example.com", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/api/threads/t1/ws", nil)
		if tc.origin != "" {
			req.Header.Set("Origin", tc.origin)
		}
		if got := checkLocalOrigin(req); got != tc.want {
			t.Errorf("checkLocalOrigin(%q) = %v, want %v", tc.origin, got, tc.want)
		}
	}
}
