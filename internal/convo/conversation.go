package convo

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// Role of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one rendered conversation entry.
type Message struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Error   string `json:"error,omitempty"` // friendly text when the turn failed
}

// SummarizationEvent is a context-compaction annotation anchored between two
// messages. AfterMessageIndex is the index of the message it follows; the
// view places it at AfterMessageIndex + 0.5 so message indices stay stable.
type SummarizationEvent struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	Summary           string    `json:"summary"`
	AfterMessageIndex int       `json:"afterMessageIndex"`
	IsStreaming       bool      `json:"isStreaming"`
}

// PendingApproval is the interrupt surface exposed to the view.
type PendingApproval struct {
	Action           stream.ActionRequest `json:"action"`
	AllowedDecisions []stream.Decision    `json:"allowedDecisions"`
}

// ToolCallView is a tool call as rendered under its assistant message.
type ToolCallView struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Args    map[string]any `json:"args,omitempty"`
	Status  string         `json:"status"` // pending | success | error
	Content string         `json:"content,omitempty"`
}

// MessageView is a message plus its fractional ordering position.
type MessageView struct {
	Position  float64        `json:"position"`
	Message   *Message       `json:"message"`
	ToolCalls []ToolCallView `json:"toolCalls,omitempty"`
}

// SummaryView is a summarization annotation plus its fractional position.
type SummaryView struct {
	Position float64             `json:"position"`
	Summary  *SummarizationEvent `json:"summary"`
}

// ViewModel is a render-ready snapshot of the conversation.
type ViewModel struct {
	Messages       []MessageView    `json:"messages"`
	Summaries      []SummaryView    `json:"summaries"`
	PendingApprove *PendingApproval `json:"pendingApproval,omitempty"`
	AvailableTools []any            `json:"availableTools,omitempty"`
	Loading        bool             `json:"loading"`
	Stats          StatsSnapshot    `json:"stats"`
}

// Conversation is the single consumption point for normalized events. Every
// event flows through Apply's exhaustive kind switch; nothing else mutates
// conversation state. Safe for concurrent Apply/View.
type Conversation struct {
	mu sync.RWMutex

	messages  []*Message
	summaries []*SummarizationEvent

	acc       *TextAccumulator
	tracker   *ToolCallTracker
	interrupt *InterruptCoordinator
	stats     *Stats

	// assistant message the current turn is streaming into
	currentAssistantID string
	availableTools     []any
	loading            bool
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{
		acc:       NewTextAccumulator(),
		tracker:   NewToolCallTracker(),
		interrupt: NewInterruptCoordinator(),
		stats:     NewStats(),
	}
}

// AddUserMessage appends the operator's outgoing message and returns its id.
func (c *Conversation) AddUserMessage(content string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.NewString()
	c.messages = append(c.messages, &Message{ID: id, Role: RoleUser, Content: content})
	return id
}

// SetLoading flips the in-flight flag exposed through the view.
func (c *Conversation) SetLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// Interrupts exposes the decision coordinator. Callers resolve decisions
// through it and send the payload back over the transport.
func (c *Conversation) Interrupts() *InterruptCoordinator {
	return c.interrupt
}

// StatsSnapshot returns the current usage statistics.
func (c *Conversation) StatsSnapshot() StatsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.Snapshot(c.tracker)
}

// Apply folds one normalized event into conversation state.
func (c *Conversation) Apply(ev stream.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case stream.KindUpdate:
		c.applyFragments(ev.Fragments, ev.Node)

	case stream.KindAgent, stream.KindAgentState:
		c.applyFragments(ev.Fragments, ev.Node)

	case stream.KindModelRequest:
		// model_request carries the authoritative tool-call argument sets
		for _, frag := range ev.Fragments {
			for _, call := range frag.ToolCalls {
				c.tracker.OnArgsFinalized(call)
			}
			c.noteUsage(frag)
		}
		c.stats.OnModelRequest()

	case stream.KindTools:
		if ev.Payload != nil {
			if list, ok := ev.Payload["tools"].([]any); ok {
				c.availableTools = list
			}
		}

	case stream.KindInterrupt:
		c.interrupt.Set(ev.Interrupt)

	case stream.KindError:
		c.failTurn(ev.Err)

	case stream.KindEnd:
		c.finishTurn()
	}
}

// applyFragments routes message fragments by author type.
func (c *Conversation) applyFragments(frags []stream.MessageFragment, node string) {
	for _, frag := range frags {
		switch frag.Type {
		case stream.FragmentAI:
			c.applyAssistant(frag, node)
		case stream.FragmentTool:
			status := frag.Status
			if status == "" {
				status = "success"
			}
			c.tracker.OnResult(frag.ToolCallID, status, frag.Content)
		case stream.FragmentHuman, stream.FragmentSystem:
			// echoed inputs and system prompts are not re-rendered
		}
	}
}

// applyAssistant folds one assistant fragment: text accumulation, tool-call
// sightings, usage, and summarization-node detection.
func (c *Conversation) applyAssistant(frag stream.MessageFragment, node string) {
	if isSummarizationNode(node) {
		c.applySummary(frag)
		return
	}

	id := frag.ID
	if id == "" {
		// id-less chunks continue the current assistant message
		if c.currentAssistantID == "" {
			c.currentAssistantID = uuid.NewString()
		}
		id = c.currentAssistantID
	} else {
		c.currentAssistantID = id
	}

	msg := c.findMessage(id)
	if msg == nil {
		msg = &Message{ID: id, Role: RoleAssistant}
		c.messages = append(c.messages, msg)
	}
	if frag.Content != "" {
		if text, changed := c.acc.Append(id, frag.Content); changed {
			msg.Content = text
		}
	}
	for _, call := range frag.ToolCalls {
		c.tracker.OnCallSighted(id, call)
	}
	c.noteUsage(frag)
}

// applySummary folds a summarization-node fragment into a summary annotation
// anchored after the latest message.
func (c *Conversation) applySummary(frag stream.MessageFragment) {
	id := frag.ID
	if id == "" {
		id = uuid.NewString()
	}
	for _, s := range c.summaries {
		if s.ID == id {
			if frag.Content != "" {
				if text, changed := c.acc.Append("summary:"+id, frag.Content); changed {
					s.Summary = text
				}
			}
			return
		}
	}
	text, _ := c.acc.Append("summary:"+id, frag.Content)
	c.summaries = append(c.summaries, &SummarizationEvent{
		ID:                id,
		Timestamp:         time.Now(),
		Summary:           text,
		AfterMessageIndex: len(c.messages) - 1,
		IsStreaming:       true,
	})
}

// failTurn attaches a friendly error to the current assistant message
// (synthesizing one if the turn had produced no assistant output) and marks
// that message's in-flight tool calls as errored.
func (c *Conversation) failTurn(cause error) {
	friendly := friendlyError(cause)
	id := c.currentAssistantID
	if id == "" {
		id = uuid.NewString()
		c.messages = append(c.messages, &Message{ID: id, Role: RoleAssistant})
	}
	if msg := c.findMessage(id); msg != nil {
		msg.Error = friendly
	}
	c.tracker.OnTurnFailed(id)
	c.currentAssistantID = ""
	c.loading = false
}

// finishTurn closes out the turn on a terminal end event.
func (c *Conversation) finishTurn() {
	for _, s := range c.summaries {
		s.IsStreaming = false
	}
	c.stats.OnTurnEnd(c.currentText())
	c.currentAssistantID = ""
	c.loading = false
}

func (c *Conversation) currentText() string {
	if c.currentAssistantID == "" {
		return ""
	}
	return c.acc.Get(c.currentAssistantID)
}

func (c *Conversation) noteUsage(frag stream.MessageFragment) {
	if frag.Usage != nil {
		c.stats.OnUsage(*frag.Usage)
	}
}

func (c *Conversation) findMessage(id string) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].ID == id {
			return c.messages[i]
		}
	}
	return nil
}

// Reset clears all state for a scenario switch.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.summaries = nil
	c.acc.Reset()
	c.tracker.Reset()
	c.interrupt.Clear()
	c.stats.Reset()
	c.currentAssistantID = ""
	c.availableTools = nil
	c.loading = false
}

// View builds a render-ready snapshot. Messages occupy integer positions;
// summaries sit at afterIndex + 0.5 so they interleave without renumbering.
func (c *Conversation) View() ViewModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	vm := ViewModel{
		Loading:        c.loading,
		AvailableTools: c.availableTools,
		Stats:          c.stats.Snapshot(c.tracker),
	}
	for i, msg := range c.messages {
		mv := MessageView{Position: float64(i), Message: msg}
		for _, call := range c.tracker.ForMessage(msg.ID) {
			mv.ToolCalls = append(mv.ToolCalls, toolCallView(call))
		}
		vm.Messages = append(vm.Messages, mv)
	}
	for _, s := range c.summaries {
		vm.Summaries = append(vm.Summaries, SummaryView{
			Position: float64(s.AfterMessageIndex) + 0.5,
			Summary:  s,
		})
	}
	if action := c.interrupt.Pending(); action != nil {
		vm.PendingApprove = &PendingApproval{
			Action:           *action,
			AllowedDecisions: c.interrupt.AllowedDecisions(),
		}
	}
	return vm
}

func toolCallView(call *ToolCallState) ToolCallView {
	v := ToolCallView{ID: call.ID, Name: call.Name, Args: call.Args, Status: "pending"}
	switch {
	case call.Result != nil:
		v.Status = call.Result.Status
		v.Content = call.Result.Content
	case call.Errored:
		v.Status = "error"
	}
	return v
}

// isSummarizationNode reports whether a node name denotes context compaction.
func isSummarizationNode(node string) bool {
	return node != "" && strings.Contains(strings.ToLower(node), "summar")
}

// friendlyError maps raw upstream errors to operator-facing text.
func friendlyError(cause error) string {
	if cause == nil {
		return "Something went wrong while generating the response."
	}
	msg := strings.ToLower(cause.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "The model is receiving too many requests right now. Please wait a moment and try again."
	case strings.Contains(msg, "quota") || strings.Contains(msg, "billing"):
		return "The configured API key has run out of quota. Check the account's usage limits."
	case strings.Contains(msg, "api key") || strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized"):
		return "The API key was rejected. Double-check the key in settings."
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "The model took too long to respond. Try sending the message again."
	default:
		return cause.Error()
	}
}
