package notify

import (
	"context"
	"log/slog"
	"time"
)

// defaultPastDueGrace はティックが遅延したとみなすまでの猶予。
const defaultPastDueGrace = time.Minute

// JobRunner は通知ジョブの実行インターフェース。
type JobRunner interface {
	Run(ctx context.Context) (*RunReport, error)
}

// Maintenance は通知ジョブの後に実行する保守処理のインターフェース。
type Maintenance interface {
	Run(ctx context.Context) error
}

// Scheduler は一定間隔で通知ジョブを実行する。
type Scheduler struct {
	job         JobRunner
	maintenance []Maintenance
	logger      *slog.Logger
	grace       time.Duration
}

// NewScheduler はSchedulerを生成する。
// maintenanceは通知ジョブの後に順に実行される（通知レコードのクリーンアップなど）。
func NewScheduler(job JobRunner, logger *slog.Logger, maintenance ...Maintenance) *Scheduler {
	return &Scheduler{
		job:         job,
		maintenance: maintenance,
		logger:      logger,
		grace:       defaultPastDueGrace,
	}
}

// Start はinterval間隔のティッカーでジョブを実行する。
// runOnStartupがtrueの場合は起動直後に1回実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, runOnStartup bool) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("通知スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Bool("run_on_startup", runOnStartup),
	)

	if runOnStartup {
		s.RunOnce(ctx)
	}

	expected := time.Now().Add(interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("通知スケジューラを停止しました")
			return
		case tick := <-ticker.C:
			// 前回の実行が長引いた場合、受信時刻は予定時刻より遅れる
			if delay, late := s.pastDue(time.Now(), expected); late {
				s.logger.Warn("通知ジョブの実行が予定時刻より遅れています（past due）",
					slog.Duration("delay", delay),
				)
			}
			s.RunOnce(ctx)
			expected = tick.Add(interval)
		}
	}
}

// RunOnce は通知ジョブと保守処理を1回実行する。エラーはログに記録する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	if _, err := s.job.Run(ctx); err != nil {
		s.logger.Error("通知ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for _, m := range s.maintenance {
		if err := m.Run(ctx); err != nil {
			s.logger.Error("保守処理の実行に失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}
}

// pastDue はatが予定時刻expectedから猶予を超えて遅れているかを返す。
func (s *Scheduler) pastDue(at, expected time.Time) (time.Duration, bool) {
	delay := at.Sub(expected)
	return delay, delay > s.grace
}
