// thread.go — threads 表 CRUD (会话线程注册与状态)。
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Thread 一条会话线程的注册信息。
type Thread struct {
	ThreadID      string `json:"thread_id"`
	Scenario      string `json:"scenario"`
	Model         string `json:"model"`
	Status        string `json:"status"` // running | idle | interrupted | error
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
	LastEventKind string `json:"last_event_kind,omitempty"` // end | interrupt | error | canceled
	ErrorMessage  string `json:"error_message,omitempty"`
}

// ThreadStore threads 存储。
type ThreadStore struct{ BaseStore }

// NewThreadStore 创建。
func NewThreadStore(pool *pgxpool.Pool) *ThreadStore {
	return &ThreadStore{NewBaseStore(pool)}
}

const threadCols = "thread_id, scenario, model, status, created_at, updated_at, last_event_kind, error_message"

// Upsert 注册或刷新线程 (首条消息到达时调用)。
func (s *ThreadStore) Upsert(ctx context.Context, t *Thread) error {
	now := time.Now().Unix()
	t.UpdatedAt = now
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.Status == "" {
		t.Status = "running"
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO threads (thread_id, scenario, model, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (thread_id) DO UPDATE SET
		   scenario=EXCLUDED.scenario, model=EXCLUDED.model, status=EXCLUDED.status, updated_at=EXCLUDED.updated_at`,
		t.ThreadID, t.Scenario, t.Model, t.Status, t.CreatedAt, t.UpdatedAt)
	return err
}

// Get 按 id 查找线程，不存在返回 nil。
func (s *ThreadStore) Get(ctx context.Context, threadID string) (*Thread, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+threadCols+" FROM threads WHERE thread_id = $1", threadID)
	if err != nil {
		return nil, err
	}
	return collectOne[Thread](rows)
}

// List 列出线程，可按场景过滤，按更新时间倒序。
func (s *ThreadStore) List(ctx context.Context, scenario string, limit int) ([]Thread, error) {
	sql, params := NewQueryBuilder().
		Eq("scenario", scenario).
		Build("SELECT "+threadCols+" FROM threads", "updated_at DESC", limit)
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	return collectRows[Thread](rows)
}

// UpdateStatus 更新线程状态与最后事件种类。
func (s *ThreadStore) UpdateStatus(ctx context.Context, threadID, status, lastEventKind, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE threads SET status=$1, last_event_kind=$2, error_message=$3, updated_at=$4 WHERE thread_id=$5`,
		status, lastEventKind, errMsg, time.Now().Unix(), threadID)
	return err
}

// Delete 删除线程及其转录 (级联由外键处理)。
func (s *ThreadStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM threads WHERE thread_id=$1", threadID)
	return err
}
