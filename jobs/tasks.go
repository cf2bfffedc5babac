package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionPrune removes expired session rows. Ban expiry is
	// checked lazily at session-creation time; this task is storage
	// hygiene only.
	TaskSessionPrune = "session:prune"
)

// SessionPrunePayload bounds a single prune run.
type SessionPrunePayload struct {
	BatchSize int `json:"batch_size"`
}

// NewSessionPruneTask constructs an Asynq task.
func NewSessionPruneTask(payload SessionPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionPrune, data), nil
}

// NewSessionPruneHandler returns the handler for TaskSessionPrune.
func NewSessionPruneHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SessionPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.BatchSize <= 0 {
			payload.BatchSize = 1000
		}
		tag, err := pool.Exec(ctx, `
			DELETE FROM sessions WHERE token IN (
				SELECT token FROM sessions WHERE expires_at < NOW() LIMIT $1
			)`, payload.BatchSize)
		if err != nil {
			return err
		}
		if logger != nil && tag.RowsAffected() > 0 {
			logger.Info("pruned expired sessions", slog.Int64("count", tag.RowsAffected()))
		}
		return nil
	}
}
