// Package scanner はユーザーごとに廃止予定リソースを走査し、
// 今回の実行で通知すべき候補を組み立てる。
package scanner

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/deprenotify/internal/cadence"
	"github.com/hitoshi/deprenotify/internal/model"
	"github.com/hitoshi/deprenotify/internal/repository"
)

// HorizonDays は通知対象とする廃止予定日の先読み日数。
const HorizonDays = 90

// Scanner は廃止予定リソースから通知候補を抽出する。
type Scanner struct {
	resources repository.ResourceRepository
	logger    *slog.Logger
}

// NewScanner はScannerの新しいインスタンスを生成する。
func NewScanner(resources repository.ResourceRepository, logger *slog.Logger) *Scanner {
	return &Scanner{
		resources: resources,
		logger:    logger,
	}
}

// Scan は指定ユーザーの通知候補を返す。
// nowのUTC日付を「今日」とし、廃止予定日が [今日, 今日+90日] のリソースを対象とする。
// 同一リソースIDの重複行は最初の1行のみ採用し、ケイデンスポリシーで再通知の要否を判定する。
// クエリの失敗はDataAccessErrorとして返す。
func (s *Scanner) Scan(ctx context.Context, userID int64, now time.Time) ([]model.NotificationCandidate, error) {
	today := Today(now)

	rows, err := s.resources.ListUpcoming(ctx, userID, today, HorizonDays)
	if err != nil {
		return nil, model.NewDataAccessError("list upcoming resources", err)
	}

	seen := make(map[int64]struct{}, len(rows))
	candidates := make([]model.NotificationCandidate, 0, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.ID]; dup {
			continue
		}
		seen[row.ID] = struct{}{}

		days := DaysUntil(row.DeprecationDate, today)
		if days < 0 || days > HorizonDays {
			continue
		}
		if !cadence.ShouldNotify(row.LastNotifiedAt, days, now) {
			continue
		}

		candidates = append(candidates, model.NotificationCandidate{
			ResourceID:           row.ID,
			Name:                 row.Name,
			Type:                 row.CombinedType(),
			DeprecationDate:      row.DeprecationDate,
			ReplacementService:   row.ReplacementService,
			DaysUntilDeprecation: days,
		})
	}

	s.logger.Debug("リソースの走査が完了しました",
		slog.Int64("user_id", userID),
		slog.Int("row_count", len(rows)),
		slog.Int("candidate_count", len(candidates)),
	)

	return candidates, nil
}

// Today はtのUTC暦日の0時を返す。
func Today(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil はtodayからdeprecationDateまでの日数を返す。
// どちらもUTC暦日として比較する。
func DaysUntil(deprecationDate, today time.Time) int {
	d := Today(deprecationDate)
	return int(d.Sub(Today(today)).Hours() / 24)
}
