// hub.go — 按线程分发帧的广播器 (WebSocket 镜像客户端订阅用)。
package server

import (
	"sync"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
)

// FrameHub 将聊天流的帧同时广播给同线程的镜像订阅者。
// 慢订阅者不阻塞聊天流: channel 满时丢帧。
type FrameHub struct {
	mu   sync.RWMutex
	subs map[string]map[int]chan stream.Frame // thread id → sub id → ch
	next int
}

// NewFrameHub 创建空广播器。
func NewFrameHub() *FrameHub {
	return &FrameHub{subs: map[string]map[int]chan stream.Frame{}}
}

// Publish 向线程的所有订阅者广播一帧。
func (h *FrameHub) Publish(threadID string, frame stream.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[threadID] {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe 订阅线程的帧流, 返回 channel 与退订函数。
func (h *FrameHub) Subscribe(threadID string) (<-chan stream.Frame, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan stream.Frame, 64)
	if h.subs[threadID] == nil {
		h.subs[threadID] = map[int]chan stream.Frame{}
	}
	h.subs[threadID][id] = ch

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		// 不关闭 ch — 订阅方通过 ctx 退出, GC 回收
		delete(h.subs[threadID], id)
		if len(h.subs[threadID]) == 0 {
			delete(h.subs, threadID)
		}
	}
}

// SubscriberCount 返回线程当前订阅数 (测试用)。
func (h *FrameHub) SubscriberCount(threadID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[threadID])
}
