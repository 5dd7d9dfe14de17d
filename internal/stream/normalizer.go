// normalizer.go — 事件归一化: (标签, 原始 JSON) → 封闭的 Event 联合。
package stream

import (
	"encoding/json"
	"errors"
	"strings"
)

// fallbackErrorMessage 上游 error 帧缺失 message/error 字段时的兜底文案。
const fallbackErrorMessage = "unknown stream error"

// Normalize 将一帧归一化为 Event。
//
// 规则按序应用:
//  1. 协议自有标签直接映射 kind (interrupt/update 等仍需形态处理);
//  2. 外来标签按载荷形态嗅探 (__interrupt__ / messages / model_request /
//     tools / [item, meta] 元组 / 助手消息数组);
//  3. 兜底: kind=update 且无片段 (no-op 安全)。
//
// 纯函数, 无状态。解析失败不会中断流: 返回 KindError 事件。
func Normalize(label string, data json.RawMessage) Event {
	label = strings.TrimSpace(label)

	if label == "end" {
		return Event{Kind: KindEnd}
	}
	if label == "error" {
		return normalizeError(data)
	}

	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			// 畸形帧: 转为 error 事件, 继续处理后续帧
			return Event{Kind: KindError, Err: errors.New("malformed event payload: " + err.Error())}
		}
	}

	if kind, ok := knownLabels[label]; ok {
		return normalizeKnown(kind, payload)
	}
	return sniffForeign(payload)
}

// normalizeKnown 处理协议自有标签。
func normalizeKnown(kind Kind, payload any) Event {
	switch kind {
	case KindInterrupt:
		return interruptEvent(payload)
	case KindUpdate:
		return updateEvent(payload)
	case KindAgent:
		return Event{Kind: KindAgent, Fragments: fragmentsFromAny(payload)}
	case KindAgentState:
		return Event{Kind: KindAgentState, Fragments: fragmentsFromAny(payload)}
	case KindModelRequest:
		return modelRequestEvent(payload)
	case KindTools:
		return toolsEvent(payload)
	default:
		m, _ := asMap(payload)
		return Event{Kind: kind, Payload: m}
	}
}

// sniffForeign 对外来标签按载荷形态决定 kind。
func sniffForeign(payload any) Event {
	switch p := payload.(type) {
	case map[string]any:
		if _, ok := p["__interrupt__"]; ok {
			return interruptEvent(p)
		}
		if len(p) == 1 {
			if _, ok := p["messages"]; ok {
				return Event{Kind: KindAgentState, Fragments: fragmentsFromAny(p)}
			}
			if inner, ok := p["model_request"]; ok {
				return modelRequestEvent(inner)
			}
			if inner, ok := p["tools"]; ok {
				return toolsEvent(inner)
			}
		}
		return updateEvent(p)

	case []any:
		// [item, meta] 元组: item 为模型输出/工具结果片段, meta 带节点元数据
		if item, node, ok := splitUpdateTuple(p); ok {
			return Event{Kind: KindUpdate, Fragments: fragmentsFromAny(item), Node: node}
		}
		frags := fragmentsFromAny(p)
		for _, f := range frags {
			if f.Type == FragmentAI {
				return Event{Kind: KindAgent, Fragments: frags}
			}
		}
		return Event{Kind: KindUpdate, Fragments: frags}
	}
	// 兜底: no-op 安全的 update
	return Event{Kind: KindUpdate}
}

// updateEvent 处理 update 载荷 (对象或元组均可能)。
// __interrupt__ 包装与单键 model_request 包装也可能出现在 update 标签下,
// 此处同样识别, 规则与外来标签嗅探一致。
func updateEvent(payload any) Event {
	if list, ok := payload.([]any); ok {
		if item, node, ok := splitUpdateTuple(list); ok {
			return Event{Kind: KindUpdate, Fragments: fragmentsFromAny(item), Node: node}
		}
	}
	if m, ok := asMap(payload); ok {
		if _, has := m["__interrupt__"]; has {
			return interruptEvent(m)
		}
		if inner, has := m["model_request"]; has && len(m) == 1 {
			return modelRequestEvent(inner)
		}
	}
	return Event{Kind: KindUpdate, Fragments: fragmentsFromAny(payload)}
}

// modelRequestEvent 处理 model_request: 内层 messages 携带权威工具参数。
func modelRequestEvent(payload any) Event {
	if m, ok := asMap(payload); ok {
		if inner, ok := asMap(m["model_request"]); ok {
			m = inner
		}
		return Event{Kind: KindModelRequest, Fragments: fragmentsFromAny(m), Payload: m}
	}
	return Event{Kind: KindModelRequest, Fragments: fragmentsFromAny(payload)}
}

// toolsEvent 工具定义透传。
func toolsEvent(payload any) Event {
	if m, ok := asMap(payload); ok {
		if inner, ok := m["tools"]; ok && len(m) == 1 {
			return Event{Kind: KindTools, Payload: map[string]any{"tools": inner}}
		}
		return Event{Kind: KindTools, Payload: m}
	}
	return Event{Kind: KindTools, Payload: map[string]any{"tools": payload}}
}

// normalizeError 提取错误消息: message 字段 > error 字段 > 兜底文案。
func normalizeError(data json.RawMessage) Event {
	msg := fallbackErrorMessage
	var payload map[string]any
	if len(data) > 0 && json.Unmarshal(data, &payload) == nil {
		if s := firstString(payload, "message", "error"); s != "" {
			msg = s
		}
	} else if len(data) > 0 {
		// error 帧本身也可能是裸字符串
		var s string
		if json.Unmarshal(data, &s) == nil && s != "" {
			msg = s
		}
	}
	return Event{Kind: KindError, Err: errors.New(msg)}
}

// splitUpdateTuple 识别 [item, meta] 形态: meta 为携带节点/触发元数据的对象。
func splitUpdateTuple(list []any) (item any, node string, ok bool) {
	if len(list) != 2 {
		return nil, "", false
	}
	meta, isMap := asMap(list[1])
	if !isMap {
		return nil, "", false
	}
	node = firstString(meta, "langgraph_node", "node", "name")
	if node == "" {
		if _, hasTriggers := meta["langgraph_triggers"]; !hasTriggers {
			return nil, "", false
		}
	}
	if !containsFragment(list[0]) {
		return nil, "", false
	}
	return list[0], node, true
}

// containsFragment 判断值里是否能识别出至少一个消息片段。
func containsFragment(v any) bool {
	return len(fragmentsFromAny(v)) > 0
}

// fragmentsFromAny 从任意载荷收集消息片段:
// 单个对象、对象数组、或带 messages 字段的对象均可。
func fragmentsFromAny(v any) []MessageFragment {
	switch p := v.(type) {
	case map[string]any:
		if frag, ok := parseFragment(p); ok {
			return []MessageFragment{frag}
		}
		if inner, ok := p["messages"]; ok {
			return fragmentsFromAny(inner)
		}
		// 单键包装 (如 {"agent": {...}}) 下钻一层
		if len(p) == 1 {
			for _, inner := range p {
				return fragmentsFromAny(inner)
			}
		}
		return nil
	case []any:
		var frags []MessageFragment
		for _, raw := range p {
			if item, ok := asMap(raw); ok {
				if frag, ok := parseFragment(item); ok {
					frags = append(frags, frag)
				}
			}
		}
		return frags
	default:
		return nil
	}
}

// ========================================
// Interrupt 归一化
// ========================================

// interruptEvent 从载荷提取人工决策请求。
//
// 接受 __interrupt__ 包装 (取首个条目的 value) 或已解包的 value 对象;
// actionRequests/reviewConfigs 的 snake_case 变体一并归一。
func interruptEvent(payload any) Event {
	value, ok := interruptValue(payload)
	if !ok {
		return Event{Kind: KindInterrupt, Interrupt: &InterruptRequest{ReviewConfigs: map[string][]Decision{}}}
	}

	req := &InterruptRequest{ReviewConfigs: map[string][]Decision{}}
	for _, raw := range listOrSingle(firstPresent(value, "actionRequests", "action_requests", "actionRequest", "action_request")) {
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		name := firstString(item, "name", "action")
		if name == "" {
			continue
		}
		args, _ := asMap(firstPresent(item, "args", "arguments"))
		req.ActionRequests = append(req.ActionRequests, ActionRequest{
			Name:        name,
			Args:        args,
			Description: asString(item["description"]),
		})
	}
	for _, raw := range listOrSingle(firstPresent(value, "reviewConfigs", "review_configs")) {
		item, ok := asMap(raw)
		if !ok {
			continue
		}
		name := firstString(item, "actionName", "action_name", "action", "name")
		if name == "" {
			continue
		}
		req.ReviewConfigs[name] = parseDecisions(firstPresent(item, "allowedDecisions", "allowed_decisions"))
	}
	return Event{Kind: KindInterrupt, Interrupt: req}
}

// interruptValue 定位 interrupt 的 value 对象。
func interruptValue(payload any) (map[string]any, bool) {
	m, ok := asMap(payload)
	if !ok {
		return nil, false
	}
	wrapped, has := m["__interrupt__"]
	if !has {
		return m, true
	}
	entries := listOrSingle(wrapped)
	if len(entries) == 0 {
		return nil, false
	}
	entry, ok := asMap(entries[0])
	if !ok {
		return nil, false
	}
	if value, ok := asMap(entry["value"]); ok {
		return value, true
	}
	// value 本身也可能是数组 (多 interrupt), 取首个
	if list, ok := entry["value"].([]any); ok && len(list) > 0 {
		if value, ok := asMap(list[0]); ok {
			return value, true
		}
	}
	return entry, true
}

// parseDecisions 解析 allowedDecisions, 仅保留已知决策类型。
func parseDecisions(v any) []Decision {
	var out []Decision
	for _, raw := range listOrSingle(v) {
		switch Decision(strings.ToLower(asString(raw))) {
		case DecisionApprove:
			out = append(out, DecisionApprove)
		case DecisionReject:
			out = append(out, DecisionReject)
		case DecisionEdit:
			out = append(out, DecisionEdit)
		}
	}
	return out
}

// listOrSingle 将值视为数组; 单个对象包装为单元素数组。
func listOrSingle(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		return []any{t}
	case nil:
		return nil
	default:
		return []any{t}
	}
}
