package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// chunkDelay paces scripted streaming so the client sees real deltas.
const chunkDelay = 40 * time.Millisecond

// scripted runtimes emit the same wire shapes a live agent runtime does, so
// the client-side normalizer exercises every branch without an upstream.

// ========================================
// chat — plain streaming
// ========================================

type chatRuntime struct{}

func newChatRuntime() Runtime { return &chatRuntime{} }

func (c *chatRuntime) Run(ctx context.Context, req Request, emit EmitFunc) error {
	reply := fmt.Sprintf("You said: %q. This sandbox scenario has no tools; it simply streams a reply back word by word.", req.Message)
	return streamText(ctx, emit, uuid.NewString(), "model", reply, true)
}

// ========================================
// customer-support — tool-call round trip
// ========================================

type toolRuntime struct{}

func newToolRuntime() Runtime { return &toolRuntime{} }

func (t *toolRuntime) Run(ctx context.Context, req Request, emit EmitFunc) error {
	if err := emit(jsonFrame("tools", map[string]any{
		"tools": []any{map[string]any{
			"name":        "get_customer_information",
			"description": "Look up a customer record by id",
			"parameters": map[string]any{
				"type":       "object",
				"properties": map[string]any{"customerId": map[string]any{"type": "string"}},
			},
		}},
	})); err != nil {
		return err
	}

	callID := "call_" + uuid.NewString()[:8]
	msgID := uuid.NewString()

	// streaming stub: the call id appears before its args are complete
	if err := emit(updateFrame(map[string]any{
		"type": "ai", "id": msgID, "content": "",
		"tool_calls": []any{map[string]any{"id": callID, "name": "get_customer_information"}},
	}, "model")); err != nil {
		return err
	}
	if err := pause(ctx); err != nil {
		return err
	}

	// authoritative args arrive through model_request
	if err := emit(jsonFrame("update", map[string]any{
		"model_request": map[string]any{
			"messages": []any{map[string]any{
				"type": "ai", "id": msgID,
				"tool_calls": []any{map[string]any{
					"id": callID, "name": "get_customer_information",
					"args": map[string]any{"customerId": "1234567890"},
				}},
			}},
		},
	})); err != nil {
		return err
	}
	if err := pause(ctx); err != nil {
		return err
	}

	if err := emit(updateFrame(map[string]any{
		"type": "tool", "tool_call_id": callID, "status": "success",
		"content": `{"name":"Jane Doe","plan":"pro","status":"active"}`,
	}, "tools")); err != nil {
		return err
	}

	return streamText(ctx, emit, uuid.NewString(), "model",
		"I looked up the account: Jane Doe is on the pro plan and the subscription is active.", true)
}

// ========================================
// email-approval — human-in-the-loop interrupt
// ========================================

type approvalRuntime struct{}

func newApprovalRuntime() Runtime { return &approvalRuntime{} }

func (a *approvalRuntime) Run(ctx context.Context, req Request, emit EmitFunc) error {
	if req.InterruptResponse != nil {
		return a.resume(ctx, req, emit)
	}

	if err := streamText(ctx, emit, uuid.NewString(), "model",
		"I have drafted the email. Sending requires your approval.", false); err != nil {
		return err
	}

	return emit(updateFrame2(map[string]any{
		"__interrupt__": []any{map[string]any{"value": map[string]any{
			"actionRequests": []any{map[string]any{
				"name":        "send_email",
				"args":        map[string]any{"to": "jane@example.com", "subject": "Your account", "body": "Hi Jane, following up on your request."},
				"description": "Review the outgoing email before it is sent.",
			}},
			"reviewConfigs": []any{map[string]any{
				"actionName":       "send_email",
				"allowedDecisions": []any{"approve", "reject", "edit"},
			}},
		}}},
	}))
}

func (a *approvalRuntime) resume(ctx context.Context, req Request, emit EmitFunc) error {
	decisions := req.InterruptResponse.Decisions
	if len(decisions) == 0 {
		return streamText(ctx, emit, uuid.NewString(), "model", "No decision was provided, so nothing was sent.", true)
	}

	switch d := decisions[0]; d.Type {
	case stream.DecisionApprove:
		return a.sendFlow(ctx, emit, map[string]any{"to": "jane@example.com"}, "The email was sent as drafted.")
	case stream.DecisionEdit:
		args := map[string]any{}
		if d.EditedAction != nil {
			args = d.EditedAction.Args
		}
		return a.sendFlow(ctx, emit, args, "The email was sent with your edits.")
	case stream.DecisionReject:
		msg := "Understood, I won't send the email."
		if d.Message != "" {
			msg = fmt.Sprintf("Understood, I won't send the email: %s.", d.Message)
		}
		return streamText(ctx, emit, uuid.NewString(), "model", msg, true)
	default:
		return streamText(ctx, emit, uuid.NewString(), "model", "That decision type is not supported here.", true)
	}
}

// sendFlow emits the tool execution that follows an approved/edited send.
func (a *approvalRuntime) sendFlow(ctx context.Context, emit EmitFunc, args map[string]any, closing string) error {
	callID := "call_" + uuid.NewString()[:8]
	msgID := uuid.NewString()
	if err := emit(updateFrame(map[string]any{
		"type": "ai", "id": msgID, "content": "",
		"tool_calls": []any{map[string]any{"id": callID, "name": "send_email", "args": args}},
	}, "model")); err != nil {
		return err
	}
	if err := emit(updateFrame(map[string]any{
		"type": "tool", "tool_call_id": callID, "status": "success",
		"content": `{"delivered":true}`,
	}, "tools")); err != nil {
		return err
	}
	return streamText(ctx, emit, uuid.NewString(), "model", closing, true)
}

// ========================================
// summarization — inline context compaction
// ========================================

type summaryRuntime struct{}

func newSummaryRuntime() Runtime { return &summaryRuntime{} }

func (s *summaryRuntime) Run(ctx context.Context, req Request, emit EmitFunc) error {
	if err := streamText(ctx, emit, uuid.NewString(), "summarization",
		"Earlier discussion compacted: the user asked about account setup and billing; all questions were resolved.", false); err != nil {
		return err
	}
	return streamText(ctx, emit, uuid.NewString(), "model",
		"I compacted the earlier part of our conversation to stay within the context window. What would you like to do next?", true)
}

// ========================================
// shared emit helpers
// ========================================

// updateFrame wraps an item in the [item, meta] tuple shape.
func updateFrame(item map[string]any, node string) stream.Frame {
	return jsonFrame("update", []any{item, map[string]any{"langgraph_node": node}})
}

// updateFrame2 emits a bare object under the update label (interrupt wrapper).
func updateFrame2(payload map[string]any) stream.Frame {
	return jsonFrame("update", payload)
}

// streamText emits text as word-level deltas under one message id. When
// withUsage is set the final chunk carries usage metadata.
func streamText(ctx context.Context, emit EmitFunc, msgID, node, text string, withUsage bool) error {
	words := strings.SplitAfter(text, " ")
	for i, w := range words {
		item := map[string]any{"type": "ai", "id": msgID, "content": w}
		if withUsage && i == len(words)-1 {
			item["usage_metadata"] = map[string]any{
				"input_tokens":  len(text) / 4,
				"output_tokens": len(text) / 4,
				"total_tokens":  len(text) / 2,
			}
		}
		if err := emit(updateFrame(item, node)); err != nil {
			return err
		}
		if err := pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(chunkDelay):
		return nil
	}
}
