// 独立迁移入口: 不启动服务, 仅执行 migrations/ 下的 SQL。
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/agent-sandbox/go-sandbox/internal/config"
	"github.com/agent-sandbox/go-sandbox/internal/database"
	"github.com/agent-sandbox/go-sandbox/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger.Init(cfg.Env)

	ctx := context.Background()
	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		logger.Error("connect postgres failed", logger.FieldError, err)
		os.Exit(1)
	}
	defer pool.Close()

	dir := "migrations"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}
	if err := database.Migrate(ctx, pool, dir); err != nil {
		logger.Error("migrate failed", logger.FieldError, err)
		os.Exit(1)
	}
	logger.Info("migration complete")
}
