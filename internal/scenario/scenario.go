// Package scenario hosts the runnable demo scenarios exposed by the sandbox.
//
// A scenario is a named agent behavior: plain chat, tool calling, human
// approval, context summarization. Each one is backed by a Runtime that
// turns a chat request into an ordered frame stream; the server layer only
// forwards frames, it never interprets them.
package scenario

import (
	"context"
	"encoding/json"

	"github.com/agent-sandbox/go-sandbox/internal/convo"
	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// Scenario describes one selectable sandbox scenario.
type Scenario struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Request is one chat turn against a scenario. A resumption after an
// interrupt carries an empty Message plus the InterruptResponse.
type Request struct {
	ThreadID          string                 `json:"threadId"`
	Message           string                 `json:"message"`
	Model             string                 `json:"model,omitempty"`
	APIKey            string                 `json:"apiKey,omitempty"`
	InterruptResponse *convo.DecisionPayload `json:"interruptResponse,omitempty"`
}

// EmitFunc receives one frame for the client. Implementations must be safe
// to call from the runtime goroutine only.
type EmitFunc func(frame stream.Frame) error

// Runtime produces the frame stream for one chat turn. Run blocks until the
// turn is finished; it should not emit a terminal end frame, the transport
// layer appends one.
type Runtime interface {
	Run(ctx context.Context, req Request, emit EmitFunc) error
}

// jsonFrame builds a frame with a JSON-encoded payload.
func jsonFrame(label string, payload any) stream.Frame {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	return stream.Frame{Label: label, Data: data}
}
