// Package dispatch はダイジェストメールの送信とアプリ内通知レコードの保存を行う。
// メール送信とレコード保存は1つのトランザクションにまとめ、両方が成功した場合のみコミットする。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/hitoshi/deprenotify/internal/digest"
	"github.com/hitoshi/deprenotify/internal/email"
	"github.com/hitoshi/deprenotify/internal/metrics"
	"github.com/hitoshi/deprenotify/internal/model"
	"github.com/hitoshi/deprenotify/internal/repository"
)

// MessageBuilder は候補1件分のアプリ内通知文面を生成するインターフェース。
type MessageBuilder interface {
	Message(c model.NotificationCandidate) string
}

// Options はDispatcherの設定。
type Options struct {
	From          string           // 送信元アドレス
	RatePerSecond float64          // メール送信の上限（0以下は無制限）
	Now           func() time.Time // 通知レコードの作成日時に使う時計
}

// Dispatcher はユーザー1人分のダイジェストを送信し、通知レコードを保存する。
type Dispatcher struct {
	sender   email.Sender
	messages MessageBuilder
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
	validate *validator.Validate
	limiter  *rate.Limiter
	from     string
	now      func() time.Time
}

// NewDispatcher はDispatcherを生成する。
func NewDispatcher(sender email.Sender, messages MessageBuilder, m metrics.MetricsCollector, logger *slog.Logger, opts Options) *Dispatcher {
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		sender:   sender,
		messages: messages,
		metrics:  m,
		logger:   logger,
		validate: validator.New(),
		limiter:  rate.NewLimiter(limit, 1),
		from:     opts.From,
		now:      now,
	}
}

// Dispatch はダイジェストメールを送信し、候補ごとに通知レコードを1件作成する。
//
// 手順:
//  1. 候補が0件の場合は何もしない（送信もトランザクションも行わない）
//  2. 宛先アドレスを検証する
//  3. トランザクションを開始し、メールを送信する
//  4. 候補ごとにUnreadの通知レコードを挿入する
//  5. コミットする
//
// 3〜5のいずれかが失敗した場合はロールバックし、レコードは1件も残らない。
func (d *Dispatcher) Dispatch(ctx context.Context, beginner repository.TxBeginner, user *model.User, dg *digest.Digest, candidates []model.NotificationCandidate) error {
	if len(candidates) == 0 {
		return nil
	}

	if err := d.validate.Var(user.Email, "required,email"); err != nil {
		return model.NewDispatchError("validate recipient", fmt.Errorf("invalid recipient address %q: %w", user.Email, err))
	}

	tx, err := beginner.BeginNotificationTx(ctx)
	if err != nil {
		return model.NewDataAccessError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := d.limiter.Wait(ctx); err != nil {
		return model.NewDispatchError("wait for send slot", err)
	}

	start := time.Now()
	if err := d.sender.Send(ctx, email.Message{
		From:    d.from,
		To:      user.Email,
		Subject: dg.Subject,
		HTML:    dg.HTML,
		Text:    dg.Text,
	}); err != nil {
		d.metrics.RecordEmailFailed()
		return d.rollback(tx, model.NewDispatchError("send email", err))
	}
	d.metrics.RecordEmailSent(time.Since(start))

	createdAt := d.now().UTC()
	repo := tx.Notifications()
	for _, c := range candidates {
		record := &model.NotificationRecord{
			UserID:     user.ID,
			ResourceID: c.ResourceID,
			Message:    d.messages.Message(c),
			Status:     model.NotificationStatusUnread,
			CreatedAt:  createdAt,
		}
		if err := repo.Create(ctx, record); err != nil {
			return d.rollback(tx, model.NewDataAccessError("insert notification", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return model.NewDataAccessError("commit notifications", err)
	}
	d.metrics.RecordNotificationsStored(len(candidates))

	d.logger.Debug("digest dispatched",
		slog.Int64("user_id", user.ID),
		slog.Int("resources", len(candidates)),
	)
	return nil
}

// rollback はトランザクションを明示的にロールバックし、causeを返す。
// ロールバック自体の失敗はcauseに併記する。
func (d *Dispatcher) rollback(tx repository.NotificationTx, cause error) error {
	if err := tx.Rollback(); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback failed: %w", err))
	}
	return cause
}
