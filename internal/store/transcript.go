// transcript.go — transcript_events 表 (每线程的事件转录, 重放/调试用)。
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TranscriptEvent 转录中的一条归一化事件。
type TranscriptEvent struct {
	ID        int64           `json:"id"`
	ThreadID  string          `json:"thread_id"`
	Seq       int             `json:"seq"`
	Label     string          `json:"label"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt int64           `json:"created_at"`
}

// TranscriptStore transcript_events 存储。
type TranscriptStore struct{ BaseStore }

// NewTranscriptStore 创建。
func NewTranscriptStore(pool *pgxpool.Pool) *TranscriptStore {
	return &TranscriptStore{NewBaseStore(pool)}
}

// Append 追加一条事件。seq 为线程内单调序号，由调用方维护。
func (s *TranscriptStore) Append(ctx context.Context, threadID string, seq int, label string, payload json.RawMessage) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO transcript_events (thread_id, seq, label, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		threadID, seq, label, payload, time.Now().Unix())
	return err
}

// ListByThread 按序号升序列出线程转录。
func (s *TranscriptStore) ListByThread(ctx context.Context, threadID string, limit int) ([]TranscriptEvent, error) {
	sql, params := NewQueryBuilder().
		Eq("thread_id", threadID).
		Build("SELECT id, thread_id, seq, label, payload, created_at FROM transcript_events", "seq ASC", limit)
	rows, err := s.pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, err
	}
	return collectRows[TranscriptEvent](rows)
}

// Trim 仅保留线程最近 keep 条转录，裁剪更早的。
func (s *TranscriptStore) Trim(ctx context.Context, threadID string, keep int) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM transcript_events
		 WHERE thread_id = $1 AND seq < (
		   SELECT COALESCE(MAX(seq), 0) - $2 FROM transcript_events WHERE thread_id = $1
		 )`,
		threadID, keep)
	return err
}

// DeleteByThread 删除线程全部转录。
func (s *TranscriptStore) DeleteByThread(ctx context.Context, threadID string) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM transcript_events WHERE thread_id=$1", threadID)
	return err
}
