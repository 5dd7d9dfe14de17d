// Package stream 将上游 agent 运行时的 SSE 事件流归一化为封闭的事件联合类型。
//
// 上游协议同时存在多个历史载荷形态 (裸数组元组 / 原生对象字段 / 遗留 kwargs
// 包装), 本包负责把它们收敛为同一套下游字段, 渲染层只消费 Event。
package stream

import "encoding/json"

// Kind 归一化后的事件种类 (封闭集合, 消费端穷举匹配)。
type Kind string

const (
	KindUpdate       Kind = "update"
	KindTools        Kind = "tools"
	KindModelRequest Kind = "model_request"
	KindAgentState   Kind = "agent_state"
	KindInterrupt    Kind = "interrupt"
	KindAgent        Kind = "agent"
	KindEnd          Kind = "end"
	KindError        Kind = "error"
)

// knownLabels 协议自有的标签集合; 其余标签按载荷形态嗅探。
var knownLabels = map[string]Kind{
	"update":        KindUpdate,
	"tools":         KindTools,
	"model_request": KindModelRequest,
	"agent_state":   KindAgentState,
	"agent":         KindAgent,
	"interrupt":     KindInterrupt,
	"end":           KindEnd,
	"error":         KindError,
}

// Frame 传输层帧: 标签 + 原始 JSON 载荷。由 Reader 产出, Normalize 消费。
type Frame struct {
	Label string
	Data  json.RawMessage
}

// Event 归一化事件。Kind 决定哪些字段有效:
//
//	KindUpdate / KindAgent / KindAgentState / KindModelRequest → Fragments (+Node)
//	KindInterrupt → Interrupt
//	KindError     → Err
//	KindTools     → Payload (工具定义原样透传)
//	KindEnd       → 无附加数据
type Event struct {
	Kind      Kind
	Fragments []MessageFragment
	Node      string // 产生本事件的上游节点名 (元组 meta), 用于摘要识别
	Interrupt *InterruptRequest
	Err       error
	Payload   map[string]any
}

// FragmentType 消息片段的作者类型。
type FragmentType string

const (
	FragmentAI      FragmentType = "ai"
	FragmentTool    FragmentType = "tool"
	FragmentHuman   FragmentType = "human"
	FragmentSystem  FragmentType = "system"
	FragmentUnknown FragmentType = "unknown"
)

// MessageFragment 归一化后的单条消息片段。
//
// 两种历史形态 (扁平对象 / kwargs 包装) 均收敛到这些字段;
// 下游不再感知来源形态。
type MessageFragment struct {
	Type       FragmentType
	ID         string
	Content    string // 纯文本内容 (仅 text 类型 part 参与)
	ToolCalls  []ToolCall
	ToolCallID string // tool 结果片段引用的调用 id
	Status     string // tool 结果状态: success | error
	Usage      *UsageMetadata
}

// ToolCall 助手消息携带的工具调用 (可能仅为占位 stub, 参数不完整)。
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// UsageMetadata 模型调用的 token 统计。
type UsageMetadata struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Decision 人工审批决策类型。
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionEdit    Decision = "edit"
)

// ActionRequest interrupt 中等待决策的单个动作。
type ActionRequest struct {
	Name        string         `json:"name"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description,omitempty"`
}

// InterruptRequest 归一化后的人工决策请求。
//
// 字段命名已统一为 camelCase; 上游的 snake_case 变体在归一化时转换。
type InterruptRequest struct {
	ActionRequests []ActionRequest       `json:"actionRequests"`
	ReviewConfigs  map[string][]Decision `json:"reviewConfigs"` // action name → 允许的决策
}

// First 返回首个动作请求; 无动作时返回 nil。
// 多动作 interrupt 仅首个被呈现决策 (与上游沙箱行为一致)。
func (r *InterruptRequest) First() *ActionRequest {
	if r == nil || len(r.ActionRequests) == 0 {
		return nil
	}
	return &r.ActionRequests[0]
}

// Allowed 返回动作名允许的决策集合; 未配置时默认仅 approve/reject。
func (r *InterruptRequest) Allowed(action string) []Decision {
	if r != nil {
		if ds, ok := r.ReviewConfigs[action]; ok && len(ds) > 0 {
			return ds
		}
	}
	return []Decision{DecisionApprove, DecisionReject}
}
