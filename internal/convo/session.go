package convo

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/errors"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
)

// chatRequest is the JSON body posted to the upstream chat endpoint.
// A resumption after an interrupt carries an empty message plus the
// interruptResponse payload under the same thread id.
type chatRequest struct {
	Message           string           `json:"message"`
	APIKey            string           `json:"apiKey,omitempty"`
	ThreadID          string           `json:"threadId"`
	Model             string           `json:"model,omitempty"`
	InterruptResponse *DecisionPayload `json:"interruptResponse,omitempty"`
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Endpoint string // upstream chat URL
	APIKey   string
	Model    string
	Client   *http.Client // optional; a streaming-safe default is used when nil
}

// Session drives one conversation thread against an upstream agent endpoint:
// it posts messages, consumes the SSE response through Reader + Normalize,
// and folds every event into its Conversation. One request may be in flight
// at a time; a second Send while loading returns ErrStreamBusy.
type Session struct {
	mu sync.Mutex

	client   *http.Client
	endpoint string
	apiKey   string
	model    string

	threadID string
	conv     *Conversation
	loading  bool
	cancel   context.CancelFunc
}

// NewSession creates a Session with a fresh Conversation.
func NewSession(cfg SessionConfig) *Session {
	client := cfg.Client
	if client == nil {
		// no overall timeout: SSE responses stay open for the whole turn
		client = &http.Client{Timeout: 0}
	}
	return &Session{
		client:   client,
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		conv:     NewConversation(),
	}
}

// Conversation exposes the session's conversation state.
func (s *Session) Conversation() *Conversation {
	return s.conv
}

// ThreadID returns the upstream thread id ("" before the first send).
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Send posts an operator message and consumes the response stream to
// completion. Blocks until the stream terminates or ctx is canceled.
func (s *Session) Send(ctx context.Context, message string) error {
	if err := s.begin(); err != nil {
		return err
	}
	s.conv.AddUserMessage(message)
	return s.run(ctx, chatRequest{Message: message})
}

// Approve resolves the pending interrupt with an approval and resumes the
// stream.
func (s *Session) Approve(ctx context.Context) error {
	payload, err := s.conv.Interrupts().Approve()
	if err != nil {
		return err
	}
	return s.resume(ctx, payload)
}

// Reject resolves the pending interrupt with a rejection and resumes.
func (s *Session) Reject(ctx context.Context, message string) error {
	payload, err := s.conv.Interrupts().Reject(message)
	if err != nil {
		return err
	}
	return s.resume(ctx, payload)
}

// Edit resolves the pending interrupt with modified arguments and resumes.
func (s *Session) Edit(ctx context.Context, args map[string]any) error {
	payload, err := s.conv.Interrupts().Edit(args)
	if err != nil {
		return err
	}
	return s.resume(ctx, payload)
}

// Reset cancels any in-flight stream and clears all session state, including
// the thread id. Used on scenario switch.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.threadID = ""
	s.loading = false
	s.mu.Unlock()
	s.conv.Reset()
}

// begin claims the in-flight slot.
func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return errors.ErrStreamBusy
	}
	if s.threadID == "" {
		s.threadID = uuid.NewString()
	}
	s.loading = true
	return nil
}

func (s *Session) resume(ctx context.Context, payload *DecisionPayload) error {
	if err := s.begin(); err != nil {
		return err
	}
	return s.run(ctx, chatRequest{InterruptResponse: payload})
}

// run posts the request and drives the stream loop. The in-flight slot is
// released when the stream terminates.
func (s *Session) run(ctx context.Context, req chatRequest) error {
	s.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	req.ThreadID = s.threadID
	req.APIKey = s.apiKey
	req.Model = s.model
	s.mu.Unlock()

	s.conv.SetLoading(true)
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.cancel = nil
		s.mu.Unlock()
		s.conv.SetLoading(false)
		cancel()
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "Session.run", "encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "Session.run", "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.conv.Apply(stream.Event{Kind: stream.KindError, Err: err})
		return errors.Wrap(err, "Session.run", "post chat request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := errors.Newf("Session.run", "upstream status %d", resp.StatusCode)
		s.conv.Apply(stream.Event{Kind: stream.KindError, Err: err})
		return err
	}

	s.processStream(ctx, resp.Body)
	logger.FromContext(ctx).Info("turn finished",
		logger.FieldThreadID, req.ThreadID,
		logger.FieldLatencyMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// processStream reads frames until terminal end, normalizing and applying
// each one. Reader guarantees exactly one end frame, so the loop always
// terminates when the body closes.
func (s *Session) processStream(ctx context.Context, body io.Reader) {
	r := stream.NewReader(body)
	for {
		frame, err := r.Next()
		if err != nil {
			// io.EOF after the terminal end frame
			return
		}
		ev := stream.Normalize(frame.Label, frame.Data)
		s.conv.Apply(ev)
		if ev.Kind == stream.KindEnd {
			return
		}
		if ctx.Err() != nil {
			s.conv.Apply(stream.Event{Kind: stream.KindEnd})
			return
		}
	}
}
