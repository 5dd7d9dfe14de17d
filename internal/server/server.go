// Package server 提供沙箱 HTTP 服务 (场景列表 / SSE 聊天 / WebSocket 镜像)。
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/agent-sandbox/go-sandbox/internal/config"
	"github.com/agent-sandbox/go-sandbox/internal/scenario"
	"github.com/agent-sandbox/go-sandbox/internal/store"
)

// Server 沙箱 HTTP 服务。
type Server struct {
	router   *gin.Engine
	cfg      *config.Config
	registry *scenario.Registry
	stores   *Stores
	hub      *FrameHub
}

// Stores 聚合持久化依赖。字段可为 nil (未配置 Postgres 时仅内存运行)。
type Stores struct {
	Thread     *store.ThreadStore
	Transcript *store.TranscriptStore
}

// NewServer 创建服务。
func NewServer(cfg *config.Config, registry *scenario.Registry, stores *Stores) *Server {
	if stores == nil {
		stores = &Stores{}
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	s := &Server{
		router:   r,
		cfg:      cfg,
		registry: registry,
		stores:   stores,
		hub:      NewFrameHub(),
	}
	s.registerRoutes()
	return s
}

// Engine 返回 Gin 引擎 (测试与 main 共用)。
func (s *Server) Engine() *gin.Engine { return s.router }

// Hub 返回帧广播器。
func (s *Server) Hub() *FrameHub { return s.hub }

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api")
	api.GET("/scenarios", s.listScenariosHandler)
	api.POST("/scenarios/:name/chat", s.chatHandler)
	api.GET("/threads", s.listThreadsHandler)
	api.DELETE("/threads/:id", s.deleteThreadHandler)
	api.GET("/threads/:id/transcript", s.transcriptHandler)
	api.GET("/threads/:id/ws", s.wsHandler)
}

// listScenariosHandler 场景列表。
func (s *Server) listScenariosHandler(c *gin.Context) {
	success(c, gin.H{"scenarios": s.registry.List()})
}

// listThreadsHandler 线程列表 (需要 Postgres)。
func (s *Server) listThreadsHandler(c *gin.Context) {
	if s.stores.Thread == nil {
		success(c, gin.H{"threads": []any{}})
		return
	}
	threads, err := s.stores.Thread.List(c.Request.Context(), c.Query("scenario"), 100)
	if err != nil {
		serverError(c, err)
		return
	}
	success(c, gin.H{"threads": threads})
}

// deleteThreadHandler 删除线程及其转录 (需要 Postgres)。
func (s *Server) deleteThreadHandler(c *gin.Context) {
	if s.stores.Thread == nil {
		notFound(c, "thread persistence is not configured")
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	thread, err := s.stores.Thread.Get(ctx, id)
	if err != nil {
		serverError(c, err)
		return
	}
	if thread == nil {
		notFound(c, "unknown thread: "+id)
		return
	}
	if s.stores.Transcript != nil {
		if err := s.stores.Transcript.DeleteByThread(ctx, id); err != nil {
			serverError(c, err)
			return
		}
	}
	if err := s.stores.Thread.Delete(ctx, id); err != nil {
		serverError(c, err)
		return
	}
	success(c, gin.H{"deleted": id})
}

// transcriptHandler 线程转录回放 (需要 Postgres)。
func (s *Server) transcriptHandler(c *gin.Context) {
	if s.stores.Transcript == nil {
		notFound(c, "transcript persistence is not configured")
		return
	}
	events, err := s.stores.Transcript.ListByThread(c.Request.Context(), c.Param("id"), s.cfg.TranscriptLimit)
	if err != nil {
		serverError(c, err)
		return
	}
	if len(events) == 0 {
		notFound(c, "no transcript for thread")
		return
	}
	success(c, gin.H{"events": events})
}
