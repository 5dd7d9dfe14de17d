// Package config 全局配置加载与管理。
//
// 所有字段通过 struct tag 声明环境变量映射:
//
//	`env:"VAR_NAME" default:"value" min:"0"`
//
// Load() 使用反射自动填充，无需手动逐行赋值。
package config

import (
	"github.com/agent-sandbox/go-sandbox/pkg/util"
)

// Config 应用全局配置，字段名与 .env 变量一一对应。
type Config struct {
	// 服务
	Port        int    `env:"PORT" default:"8080" min:"1"`
	Env         string `env:"APP_ENV" default:"production"`
	LogDir      string `env:"LOG_DIR" default:"logs"`
	ShutdownSec int    `env:"SHUTDOWN_TIMEOUT_SEC" default:"10" min:"1"`

	// LLM (透传给场景运行时)
	Model         string  `env:"LLM_MODEL" default:"gpt-4o"`
	Temperature   float64 `env:"LLM_TEMPERATURE" default:"0.7" min:"0"`
	OpenAIAPIKey  string  `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `env:"OPENAI_BASE_URL"`

	// 上游 agent 端点 (代理模式; 为空时走内置脚本场景)
	AgentEndpoint   string `env:"AGENT_ENDPOINT"`
	AgentTimeoutSec int    `env:"AGENT_TIMEOUT_SEC" default:"240" min:"1"`

	// SSE
	SSEHeartbeatSec int `env:"SSE_HEARTBEAT_SEC" default:"15" min:"1"`

	// PostgreSQL (会话与转录持久化; 为空时仅内存)
	PostgresConnStr        string `env:"POSTGRES_CONNECTION_STRING"`
	PostgresSchema         string `env:"POSTGRES_SCHEMA" default:"public"`
	PostgresPoolMinSize    int    `env:"POSTGRES_POOL_MIN_SIZE" default:"1" min:"1"`
	PostgresPoolMaxSize    int    `env:"POSTGRES_POOL_MAX_SIZE" default:"10" min:"1"`
	PostgresPoolTimeoutSec int    `env:"POSTGRES_POOL_TIMEOUT_SEC" default:"10" min:"1"`

	// 转录保留
	TranscriptLimit int `env:"TRANSCRIPT_LIMIT" default:"500" min:"1"`

	// 日志
	LogLevel string `env:"LOG_LEVEL" default:"INFO"`
}

// Load 从环境变量加载配置 (通过反射读取 struct tag)。
func Load() *Config {
	var cfg Config
	util.LoadFromEnv(&cfg)
	return &cfg
}
