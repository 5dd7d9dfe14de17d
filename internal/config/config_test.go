// config_test.go — 配置加载默认值 + 环境变量覆盖测试。
package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// 确保关键环境变量未设置
	os.Unsetenv("PORT")
	os.Unsetenv("LLM_MODEL")
	os.Unsetenv("POSTGRES_SCHEMA")
	os.Unsetenv("SSE_HEARTBEAT_SEC")

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Port", cfg.Port, 8080},
		{"Env", cfg.Env, "production"},
		{"LogDir", cfg.LogDir, "logs"},
		{"ShutdownSec", cfg.ShutdownSec, 10},
		{"Model", cfg.Model, "gpt-4o"},
		{"Temperature", cfg.Temperature, 0.7},
		{"AgentTimeoutSec", cfg.AgentTimeoutSec, 240},
		{"SSEHeartbeatSec", cfg.SSEHeartbeatSec, 15},
		{"PostgresSchema", cfg.PostgresSchema, "public"},
		{"PostgresPoolMinSize", cfg.PostgresPoolMinSize, 1},
		{"PostgresPoolMaxSize", cfg.PostgresPoolMaxSize, 10},
		{"TranscriptLimit", cfg.TranscriptLimit, 500},
		{"LogLevel", cfg.LogLevel, "INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")
	t.Setenv("POSTGRES_SCHEMA", "test_schema")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("AGENT_ENDPOINT", "http://localhost:2024/chat")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q", cfg.Model)
	}
	if cfg.PostgresSchema != "test_schema" {
		t.Errorf("PostgresSchema = %q", cfg.PostgresSchema)
	}
	if cfg.LogLevel != "DEBUG" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.AgentEndpoint != "http://localhost:2024/chat" {
		t.Errorf("AgentEndpoint = %q", cfg.AgentEndpoint)
	}
}

func TestLoadReturnsNonNil(t *testing.T) {
	cfg := Load()
	if cfg == nil {
		t.Fatal("Load() returned nil")
	}
}
