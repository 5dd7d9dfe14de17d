// chat.go — SSE 聊天 handler: 场景运行时帧 → text/event-stream。
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agent-sandbox/go-sandbox/internal/scenario"
	"github.com/agent-sandbox/go-sandbox/internal/store"
	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
	"github.com/agent-sandbox/go-sandbox/pkg/util"
)

// sseWriter 串行化 SSE 写入: 运行时 emit 与心跳 goroutine 共用一个 writer。
type sseWriter struct {
	mu      sync.Mutex
	w       gin.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(c *gin.Context) (*sseWriter, bool) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &sseWriter{w: c.Writer, flusher: flusher}, true
}

// writeFrame 写一帧: event: 行 + data: 行 + 空行边界。
func (sw *sseWriter) writeFrame(frame stream.Frame) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	data := frame.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", frame.Label, data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// writeComment 写注释行 (心跳, 客户端忽略)。
func (sw *sseWriter) writeComment(text string) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	fmt.Fprintf(sw.w, ": %s\n\n", text)
	sw.flusher.Flush()
}

// chatHandler 处理一轮聊天: 解析请求 → 运行场景 → 帧转发 → 终止 end 帧。
func (s *Server) chatHandler(c *gin.Context) {
	name := c.Param("name")
	rt, err := s.registry.Lookup(name)
	if err != nil {
		notFound(c, "unknown scenario: "+name)
		return
	}

	var req scenario.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "bad_json", "request body is not valid JSON")
		return
	}
	// 常规轮必须有消息; resume 轮以 interruptResponse 代替
	if req.Message == "" && req.InterruptResponse == nil {
		badRequest(c, "empty_message", "message or interruptResponse is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	req.Model = util.FirstNonEmpty(req.Model, s.cfg.Model)

	sw, ok := newSSEWriter(c)
	if !ok {
		serverError(c, fmt.Errorf("response writer does not support streaming"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Thread-Id", req.ThreadID)

	ctx := c.Request.Context()
	s.registerThread(ctx, name, req)

	// 心跳: 长工具调用期间保持连接
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	util.SafeGo(func() {
		ticker := time.NewTicker(time.Duration(s.cfg.SSEHeartbeatSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sw.writeComment("ping")
			case <-heartbeatDone:
				return
			case <-ctx.Done():
				return
			}
		}
	})

	seq := s.nextSeq(ctx, req.ThreadID)
	interrupted := false
	emit := func(frame stream.Frame) error {
		// 归一化仅用于侦测 interrupt (包装可能藏在 update 标签下)
		if ev := stream.Normalize(frame.Label, frame.Data); ev.Kind == stream.KindInterrupt {
			interrupted = true
		}
		s.recordFrame(ctx, req.ThreadID, &seq, frame)
		s.hub.Publish(req.ThreadID, frame)
		return sw.writeFrame(frame)
	}

	runErr := rt.Run(ctx, req, emit)

	status, lastKind := turnOutcome(runErr, runErr != nil && ctx.Err() != nil, interrupted)
	if status == "error" {
		logger.Error("scenario run failed",
			logger.FieldScenario, name,
			logger.FieldThreadID, req.ThreadID,
			logger.FieldError, runErr,
		)
		data, _ := json.Marshal(map[string]string{"message": runErr.Error()})
		_ = emit(stream.Frame{Label: "error", Data: data})
	}
	// 终止帧: 每轮恰好一个 end
	endFrame := stream.Frame{Label: "end", Data: []byte("{}")}
	if ctx.Err() == nil {
		_ = emit(endFrame)
	} else {
		s.hub.Publish(req.ThreadID, endFrame)
	}

	s.finishThread(name, req, status, lastKind, runErr)
}

// turnOutcome 由运行结果决定线程收尾状态与最后事件种类。
// 以 interrupt 收束的轮次记为 interrupted, 等待人工决策后 resume。
func turnOutcome(runErr error, canceled, interrupted bool) (status, lastKind string) {
	switch {
	case canceled:
		// 客户端断开: 不再写帧
		return "idle", "canceled"
	case runErr != nil:
		return "error", "error"
	case interrupted:
		return "interrupted", "interrupt"
	default:
		return "idle", "end"
	}
}

// registerThread 线程注册 (可选持久化)。
func (s *Server) registerThread(ctx context.Context, name string, req scenario.Request) {
	if s.stores.Thread == nil {
		return
	}
	err := s.stores.Thread.Upsert(ctx, &store.Thread{
		ThreadID: req.ThreadID,
		Scenario: name,
		Model:    req.Model,
		Status:   "running",
	})
	if err != nil {
		logger.Warn("thread upsert failed", logger.FieldThreadID, req.ThreadID, logger.FieldError, err)
	}
}

// nextSeq 取线程转录的下一序号 (无持久化时从 0 开始)。
func (s *Server) nextSeq(ctx context.Context, threadID string) int {
	if s.stores.Transcript == nil {
		return 0
	}
	events, err := s.stores.Transcript.ListByThread(ctx, threadID, s.cfg.TranscriptLimit)
	if err != nil || len(events) == 0 {
		return 0
	}
	return events[len(events)-1].Seq + 1
}

// recordFrame 追加转录 (持久化失败仅告警, 不中断流)。
func (s *Server) recordFrame(ctx context.Context, threadID string, seq *int, frame stream.Frame) {
	if s.stores.Transcript == nil {
		return
	}
	if err := s.stores.Transcript.Append(ctx, threadID, *seq, frame.Label, frame.Data); err != nil {
		logger.Warn("transcript append failed", logger.FieldThreadID, threadID, logger.FieldError, err)
	}
	*seq++
}

// finishThread 收尾: 状态落库 + 转录裁剪。
func (s *Server) finishThread(name string, req scenario.Request, status, lastKind string, runErr error) {
	if s.stores.Thread == nil {
		return
	}
	errMsg := ""
	if runErr != nil {
		errMsg = runErr.Error()
	}
	// 请求 ctx 已随响应结束, 用独立短超时落库
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.stores.Thread.UpdateStatus(ctx, req.ThreadID, status, lastKind, errMsg); err != nil {
		logger.Warn("thread status update failed", logger.FieldThreadID, req.ThreadID, logger.FieldError, err)
	}
	if s.stores.Transcript != nil {
		if err := s.stores.Transcript.Trim(ctx, req.ThreadID, s.cfg.TranscriptLimit); err != nil {
			logger.Warn("transcript trim failed", logger.FieldThreadID, req.ThreadID, logger.FieldError, err)
		}
	}
	logger.Info("chat turn finished",
		logger.FieldScenario, name,
		logger.FieldThreadID, req.ThreadID,
		logger.FieldStatus, status,
	)
}
