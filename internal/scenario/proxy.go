package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/errors"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
)

// ProxyRuntime forwards chat turns to a live upstream agent endpoint and
// relays its SSE frames unmodified. The sandbox stays protocol-agnostic:
// whatever the upstream emits is what the client normalizes.
type ProxyRuntime struct {
	endpoint string
	client   *http.Client
}

// NewProxyRuntime creates a proxy against the given chat endpoint.
func NewProxyRuntime(endpoint string, client *http.Client) *ProxyRuntime {
	if client == nil {
		client = &http.Client{Timeout: 0}
	}
	return &ProxyRuntime{endpoint: endpoint, client: client}
}

// Run posts the request upstream and relays every frame until the upstream
// stream closes. Terminal end frames are dropped; the transport layer owns
// stream termination.
func (p *ProxyRuntime) Run(ctx context.Context, req Request, emit EmitFunc) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "ProxyRuntime.Run", "encode request")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "ProxyRuntime.Run", "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return errors.Wrap(err, "ProxyRuntime.Run", "post upstream")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logger.Warn("upstream rejected chat request",
			logger.FieldStatus, resp.StatusCode,
			logger.FieldThreadID, req.ThreadID,
		)
		return errors.Newf("ProxyRuntime.Run", "upstream status %d: %s", resp.StatusCode, string(payload))
	}

	r := stream.NewReader(resp.Body)
	for {
		frame, err := r.Next()
		if err != nil {
			// io.EOF after the reader's own terminal frame
			return nil
		}
		if frame.Label == "end" {
			return nil
		}
		if err := emit(frame); err != nil {
			return err
		}
	}
}
