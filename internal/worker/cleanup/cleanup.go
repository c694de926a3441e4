// Package cleanup は保持期間を過ぎたアプリ内通知レコードの削除ジョブを提供する。
// 削除対象はcreated_atが保持日数より古いレコードのみで、再通知判定に使う直近の履歴は残る。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/deprenotify/internal/metrics"
)

const (
	// DefaultRetentionDays は通知レコードのデフォルト保持日数。
	DefaultRetentionDays = 180
	// minRetentionDays は保持日数の下限。最大の通知間隔（30日）を下回らないようにする。
	minRetentionDays = 30
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は保持期間を超過した通知レコードの削除ジョブ。
// 冪等であり、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	db            Executor
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	retentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが下限未満の場合は下限に切り上げる。
func NewCleanupJob(db Executor, m metrics.MetricsCollector, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays < minRetentionDays {
		retentionDays = minRetentionDays
	}
	return &CleanupJob{
		db:            db,
		logger:        logger,
		metrics:       m,
		retentionDays: retentionDays,
	}
}

// RetentionDays は適用される保持日数を返す。
func (j *CleanupJob) RetentionDays() int {
	return j.retentionDays
}

// Run はcreated_atが保持日数より古い通知レコードを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	interval := fmt.Sprintf("%d days", j.retentionDays)

	query := `DELETE FROM notifications WHERE created_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.retentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}

	deletedCount, err := result.RowsAffected()
	if err != nil {
		j.logger.Error("削除件数の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	j.metrics.RecordNotificationsPurged(deletedCount)

	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.retentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
