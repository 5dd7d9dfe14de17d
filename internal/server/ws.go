// ws.go — WebSocket 镜像: 实时旁观某线程的帧流 (只读)。
package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/agent-sandbox/go-sandbox/internal/stream"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
	"github.com/agent-sandbox/go-sandbox/pkg/util"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: checkLocalOrigin}

// checkLocalOrigin 仅放行本机来源 (或无 Origin 的非浏览器客户端)。
func checkLocalOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true // 无 Origin = 非浏览器客户端
	}
	origin = strings.ToLower(origin)
	for _, allowed := range []string{
		"http://localhost", "https://localhost",
		"http://127.0.0.1", "https://127.0.0.1",
		"http://[::1]", "https://[::1]",
	} {
		if strings.HasPrefix(origin, allowed) {
			return true
		}
	}
	logger.Warn("ws: rejected non-local origin", "origin", origin)
	return false
}

// wsFrame WebSocket 下发的帧镜像。
type wsFrame struct {
	Label string `json:"label"`
	Data  any    `json:"data"`
}

// wsHandler 升级连接并转发该线程的帧流, 直到客户端断开。
func (s *Server) wsHandler(c *gin.Context) {
	threadID := c.Param("id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已写入错误响应
		logger.Warn("ws upgrade failed", logger.FieldThreadID, threadID, logger.FieldError, err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.hub.Subscribe(threadID)
	defer unsubscribe()
	logger.Info("ws mirror connected", logger.FieldThreadID, threadID)

	// 读取泵: 镜像为只读, 仅消费关闭帧
	done := make(chan struct{})
	util.SafeGo(func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	for {
		select {
		case frame := <-ch:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(mirrorFrame(frame)); err != nil {
				return
			}
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// mirrorFrame 将帧载荷尽量作为 JSON 下发, 非 JSON 时退化为字符串。
func mirrorFrame(frame stream.Frame) wsFrame {
	out := wsFrame{Label: frame.Label}
	if len(frame.Data) > 0 {
		out.Data = json.RawMessage(frame.Data)
	}
	return out
}
