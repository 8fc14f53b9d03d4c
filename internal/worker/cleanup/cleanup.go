// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// スケジュールはrobfig/cronの式（@hourlyなど）で指定する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout は1回の削除処理の上限時間。
const runTimeout = time.Minute

// SessionPurger は期限切れセッションを一括削除するインターフェース。
// repository.PostgresSessionRepoが実装する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れセッションを削除するジョブ。
// 冪等: 削除対象がない場合でもエラーにならない。
type CleanupJob struct {
	sessions SessionPurger
	logger   *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
	}
}

// Run はexpires_atを過ぎたセッションを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("session cleanup: %w", err)
	}

	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行したあと、scheduleに従ってジョブを実行する。
// ctxがキャンセルされるまでブロックし、実行中のジョブの完了を待ってから戻る。
func (j *CleanupJob) Start(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithLocation(time.UTC))

	if _, err := c.AddFunc(schedule, func() { j.runOnce(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	j.runOnce(ctx)

	c.Start()
	j.logger.Info("session cleanup scheduled", slog.String("schedule", schedule))

	<-ctx.Done()
	<-c.Stop().Done()
	j.logger.Info("session cleanup stopped")
	return nil
}

// runOnce はタイムアウト付きで1回実行する。失敗はログに記録済みのため返さない。
func (j *CleanupJob) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	_ = j.Run(runCtx)
}
