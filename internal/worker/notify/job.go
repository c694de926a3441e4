// Package notify は廃止予定リソースの通知ジョブを提供する。
// 1回の実行で全ユーザーを順に処理し、ユーザー単位の失敗は記録して次のユーザーへ進む。
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/deprenotify/internal/digest"
	"github.com/hitoshi/deprenotify/internal/metrics"
	"github.com/hitoshi/deprenotify/internal/model"
	"github.com/hitoshi/deprenotify/internal/repository"
	"github.com/hitoshi/deprenotify/internal/runlock"
	"github.com/hitoshi/deprenotify/internal/scanner"
	"github.com/hitoshi/deprenotify/internal/urgency"
)

// Renderer はティア分けされた候補からダイジェストを生成するインターフェース。
type Renderer interface {
	Render(tiers urgency.Tiers) (*digest.Digest, error)
}

// Dispatcher はダイジェスト送信と通知レコード保存のインターフェース。
type Dispatcher interface {
	Dispatch(ctx context.Context, beginner repository.TxBeginner, user *model.User, dg *digest.Digest, candidates []model.NotificationCandidate) error
}

// RunReport は1回の実行結果。
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Users     int  // 処理対象ユーザー数
	Notified  int  // メール送信と通知レコード保存が完了したユーザー数
	Skipped   int  // 通知対象がなかったユーザー数
	Failed    int  // エラーでスキップしたユーザー数
	Records   int  // 保存した通知レコード数
	Locked    bool // 他の実行がロックを保持していたため何もしなかった
}

// Job は通知ジョブ本体。
type Job struct {
	store      repository.Store
	renderer   Renderer
	dispatcher Dispatcher
	locker     runlock.Locker
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	now        func() time.Time
}

// NewJob はJobを生成する。lockerがnilの場合はロックを取らない。
func NewJob(
	store repository.Store,
	renderer Renderer,
	dispatcher Dispatcher,
	locker runlock.Locker,
	m metrics.MetricsCollector,
	logger *slog.Logger,
	now func() time.Time,
) *Job {
	if locker == nil {
		locker = runlock.NopLocker{}
	}
	if now == nil {
		now = time.Now
	}
	return &Job{
		store:      store,
		renderer:   renderer,
		dispatcher: dispatcher,
		locker:     locker,
		metrics:    m,
		logger:     logger,
		now:        now,
	}
}

// Run は全ユーザーを1回処理する。
// ユーザー一覧の取得失敗とセッション確保の失敗だけが実行全体のエラーになる。
// ストアのセッションは結果にかかわらず必ず閉じる。
func (j *Job) Run(ctx context.Context) (*RunReport, error) {
	now := j.now()
	report := &RunReport{RunID: uuid.NewString(), StartedAt: now}
	logger := j.logger.With(slog.String("run_id", report.RunID))
	start := time.Now()

	release, err := j.locker.Acquire(ctx)
	if errors.Is(err, runlock.ErrLocked) {
		logger.Warn("他の実行が進行中のためスキップします")
		report.Locked = true
		return report, nil
	}
	if err != nil {
		return report, j.fail(logger, start, model.NewUnexpectedError("acquire run lock", err))
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("実行ロックの解放に失敗しました", slog.String("error", err.Error()))
		}
	}()

	logger.Info("通知ジョブを開始します", slog.Time("now", now.UTC()))

	session, err := j.store.OpenSession(ctx)
	if err != nil {
		return report, j.fail(logger, start, model.NewDataAccessError("open session", err))
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("ストア接続のクローズに失敗しました", slog.String("error", err.Error()))
		}
	}()

	users, err := session.Users().ListAll(ctx)
	if err != nil {
		return report, j.fail(logger, start, model.NewDataAccessError("list users", err))
	}
	report.Users = len(users)

	sc := scanner.NewScanner(session.Resources(), logger)

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			logger.Warn("通知ジョブが中断されました",
				slog.Int("processed", report.Notified+report.Skipped+report.Failed),
				slog.Int("users", report.Users),
			)
			return report, j.fail(logger, start, err)
		}

		n, err := j.processUser(ctx, sc, session, user, now)
		switch {
		case err != nil:
			report.Failed++
			j.metrics.RecordUserOutcome(metrics.OutcomeFailed)
			logger.Error("ユーザーの処理に失敗しました",
				slog.Int64("user_id", user.ID),
				slog.String("kind", string(model.KindOf(err))),
				slog.String("error", err.Error()),
			)
		case n == 0:
			report.Skipped++
			j.metrics.RecordUserOutcome(metrics.OutcomeSkipped)
		default:
			report.Notified++
			report.Records += n
			j.metrics.RecordUserOutcome(metrics.OutcomeNotified)
			logger.Info("通知を送信しました",
				slog.Int64("user_id", user.ID),
				slog.Int("resources", n),
			)
		}
	}

	duration := time.Since(start)
	j.metrics.RecordRun(true, duration)
	logger.Info("通知ジョブが完了しました",
		slog.Int("users", report.Users),
		slog.Int("notified", report.Notified),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("records", report.Records),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return report, nil
}

// processUser はユーザー1人分の走査・分類・描画・送信を行い、保存した通知レコード数を返す。
// panicはUnexpectedErrorに変換し、他のユーザーの処理に影響させない。
func (j *Job) processUser(ctx context.Context, sc *scanner.Scanner, session repository.Session, user *model.User, now time.Time) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
			err = model.NewUnexpectedError("process user", fmt.Errorf("panic: %v", r))
		}
	}()

	candidates, err := sc.Scan(ctx, user.ID, now)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	tiers := urgency.Classify(candidates)
	for _, tier := range tiers.NonEmpty() {
		j.metrics.RecordCandidates(string(tier), len(tiers[tier]))
	}

	dg, err := j.renderer.Render(tiers)
	if err != nil {
		return 0, model.NewUnexpectedError("render digest", err)
	}

	if err := j.dispatcher.Dispatch(ctx, session, user, dg, candidates); err != nil {
		return 0, err
	}
	return len(candidates), nil
}

// fail は実行全体の失敗を記録してerrを返す。
func (j *Job) fail(logger *slog.Logger, start time.Time, err error) error {
	j.metrics.RecordRun(false, time.Since(start))
	logger.Error("通知ジョブが失敗しました",
		slog.String("kind", string(model.KindOf(err))),
		slog.String("error", err.Error()),
	)
	return err
}
