// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SessionCleanupJob は期限切れセッションを削除するジョブ。
// 冪等で、削除対象がなくてもエラーにならない。
type SessionCleanupJob struct {
	db     Executor
	logger *slog.Logger
	// Grace は有効期限からこの時間が経過したセッションのみ削除する。
	Grace time.Duration
}

// NewSessionCleanupJob は新しいSessionCleanupJobを生成する。
func NewSessionCleanupJob(db Executor, logger *slog.Logger) *SessionCleanupJob {
	return &SessionCleanupJob{db: db, logger: logger}
}

// Run は期限切れセッションを削除し、削除件数を返す。
func (j *SessionCleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	grace := fmt.Sprintf("%d seconds", int64(j.Grace/time.Second))
	result, err := j.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at < now() - $1::interval`,
		grace,
	)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はintervalごとにRunを実行する。起動直後にも1回実行する。
// ctxが終了するまでブロックする。
func (j *SessionCleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
			j.logger.Warn("次回のクリーンアップで再試行します", slog.Duration("interval", interval))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
