// fragment.go — 消息片段的形态适配: 扁平对象 + 遗留 kwargs 包装。
package stream

import "strings"

// parseFragment 尝试把原始对象识别为消息片段。
//
// 接受两种历史形态:
//
//	(a) 扁平: {"type": "ai", "content": ..., "tool_calls": [...], "id": "..."}
//	(b) 遗留: {"id": ["langchain_core","messages","AIMessageChunk"],
//	           "kwargs": {"content": ..., "tool_calls": [...], "id": "..."}}
//
// 两者归一化为同一组 MessageFragment 字段。无法识别时返回 ok=false。
func parseFragment(raw map[string]any) (MessageFragment, bool) {
	if raw == nil {
		return MessageFragment{}, false
	}
	if kwargs, ok := asMap(raw["kwargs"]); ok {
		if ft, ok := legacyFragmentType(raw["id"]); ok {
			return buildFragment(ft, kwargs), true
		}
		// kwargs 无类型标签数组 → 不可识别
		return MessageFragment{}, false
	}

	ft, ok := flatFragmentType(asString(raw["type"]))
	if !ok {
		return MessageFragment{}, false
	}
	return buildFragment(ft, raw), true
}

// flatFragmentType 映射扁平形态的 type 判别值。
func flatFragmentType(t string) (FragmentType, bool) {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case "ai", "assistant", "aimessagechunk":
		return FragmentAI, true
	case "tool":
		return FragmentTool, true
	case "human", "user":
		return FragmentHuman, true
	case "system":
		return FragmentSystem, true
	default:
		return FragmentUnknown, false
	}
}

// legacyFragmentType 从遗留形态的类型标签数组推断片段类型。
// 标签数组形如 ["langchain_core", "messages", "AIMessageChunk"], 取末位类名。
func legacyFragmentType(idTag any) (FragmentType, bool) {
	tags, ok := idTag.([]any)
	if !ok || len(tags) == 0 {
		return FragmentUnknown, false
	}
	class := asString(tags[len(tags)-1])
	switch {
	case strings.HasPrefix(class, "AIMessage"):
		return FragmentAI, true
	case strings.HasPrefix(class, "ToolMessage"):
		return FragmentTool, true
	case strings.HasPrefix(class, "HumanMessage"):
		return FragmentHuman, true
	case strings.HasPrefix(class, "SystemMessage"):
		return FragmentSystem, true
	default:
		return FragmentUnknown, false
	}
}

// buildFragment 从字段容器 (扁平对象本身或 kwargs) 构建片段。
func buildFragment(ft FragmentType, fields map[string]any) MessageFragment {
	frag := MessageFragment{
		Type:       ft,
		ID:         asString(fields["id"]),
		Content:    extractTextContent(fields["content"]),
		ToolCalls:  extractToolCalls(fields),
		ToolCallID: firstString(fields, "tool_call_id", "toolCallId"),
		Status:     asString(fields["status"]),
		Usage:      extractUsage(fields),
	}
	if frag.Type == FragmentTool && frag.Status == "" {
		frag.Status = "success"
	}
	return frag
}

// extractTextContent 从 content 字段提取纯文本。
//
// content 可能是裸字符串, 或类型化 part 列表 — 仅 text 类型 part 参与文本;
// 结构化 / 工具参数增量 part 在这里被忽略 (由工具跟踪消费)。
func extractTextContent(content any) string {
	switch c := content.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, part := range c {
			switch p := part.(type) {
			case string:
				b.WriteString(p)
			case map[string]any:
				if asString(p["type"]) == "text" {
					b.WriteString(asString(p["text"]))
				}
			}
		}
		return b.String()
	default:
		return ""
	}
}

// extractToolCalls 收集工具调用: tool_calls/toolCalls 字段优先,
// content 中的 tool_use part 作为补充 (按 id 去重)。
func extractToolCalls(fields map[string]any) []ToolCall {
	var calls []ToolCall
	seen := map[string]bool{}

	appendCall := func(item map[string]any, argKeys ...string) {
		id := asString(item["id"])
		if id == "" || seen[id] {
			return
		}
		args, _ := asMap(firstPresent(item, argKeys...))
		calls = append(calls, ToolCall{
			ID:   id,
			Name: asString(item["name"]),
			Args: args,
		})
		seen[id] = true
	}

	for _, key := range []string{"tool_calls", "toolCalls"} {
		list, ok := fields[key].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			if item, ok := asMap(raw); ok {
				appendCall(item, "args", "arguments", "input")
			}
		}
	}

	if parts, ok := fields["content"].([]any); ok {
		for _, raw := range parts {
			item, ok := asMap(raw)
			if !ok || asString(item["type"]) != "tool_use" {
				continue
			}
			appendCall(item, "input", "args")
		}
	}
	return calls
}

// extractUsage 提取 token 统计 (snake_case 与 camelCase 均接受)。
func extractUsage(fields map[string]any) *UsageMetadata {
	raw, ok := asMap(firstPresent(fields, "usage_metadata", "usageMetadata"))
	if !ok {
		return nil
	}
	u := &UsageMetadata{
		InputTokens:  asInt(firstPresent(raw, "input_tokens", "inputTokens")),
		OutputTokens: asInt(firstPresent(raw, "output_tokens", "outputTokens")),
		TotalTokens:  asInt(firstPresent(raw, "total_tokens", "totalTokens")),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

// ========================================
// 类型提取小工具
// ========================================

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asInt 宽容提取整数 (JSON 数字在泛型 map 中是 float64)。
func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// firstString 按优先级提取第一个非空字符串字段。
func firstString(fields map[string]any, keys ...string) string {
	for _, key := range keys {
		if s := asString(fields[key]); s != "" {
			return s
		}
	}
	return ""
}

// firstPresent 返回第一个存在的字段值。
func firstPresent(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return v
		}
	}
	return nil
}
