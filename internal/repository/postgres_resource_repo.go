package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/deprenotify/internal/model"
)

// PostgresResourceRepo はPostgreSQLを使用した廃止予定リソースリポジトリ。
type PostgresResourceRepo struct {
	db DBTX
}

// NewPostgresResourceRepo はPostgresResourceRepoを生成する。
func NewPostgresResourceRepo(db DBTX) *PostgresResourceRepo {
	return &PostgresResourceRepo{db: db}
}

// listUpcomingQuery は期間内に廃止予定のリソースと、同一リソース・同一ユーザーへの
// 直近の通知日時を取得する。created_atはUTCのタイムゾーンなしタイムスタンプとして返す。
const listUpcomingQuery = `
SELECT
    r.id,
    r.resource_name,
    r.resource_type,
    r.provider,
    r.deprecation_date::date,
    r.replacement_service,
    (
        SELECT MAX(n.created_at AT TIME ZONE 'UTC')
        FROM notifications n
        WHERE n.resource_id = r.id
          AND n.user_id = $1
    ) AS last_notification_date
FROM cloud_resources r
WHERE r.user_id = $1
  AND r.deprecation_date IS NOT NULL
  AND r.deprecation_date::date BETWEEN $2::date AND ($2::date + $3::int)
ORDER BY r.deprecation_date, r.id`

// ListUpcoming は指定ユーザーの期間内に廃止予定のリソースを取得する。
// todayはUTCの日付として扱う。
func (r *PostgresResourceRepo) ListUpcoming(ctx context.Context, userID int64, today time.Time, horizonDays int) ([]model.UpcomingResource, error) {
	rows, err := r.db.QueryContext(ctx, listUpcomingQuery,
		userID, today.UTC().Format("2006-01-02"), horizonDays,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query upcoming resources: %w", err)
	}
	defer rows.Close()

	var resources []model.UpcomingResource
	for rows.Next() {
		var (
			res          model.UpcomingResource
			replacement  sql.NullString
			lastNotified sql.NullTime
		)
		if err := rows.Scan(
			&res.ID, &res.Name, &res.Type, &res.Provider,
			&res.DeprecationDate, &replacement, &lastNotified,
		); err != nil {
			return nil, fmt.Errorf("failed to scan upcoming resource: %w", err)
		}

		res.UserID = userID
		res.DeprecationDate = asUTCDate(res.DeprecationDate)
		if replacement.Valid {
			s := replacement.String
			res.ReplacementService = &s
		}
		if lastNotified.Valid {
			t := asUTC(lastNotified.Time)
			res.LastNotifiedAt = &t
		}
		resources = append(resources, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate upcoming resources: %w", err)
	}

	return resources, nil
}

// asUTC はタイムゾーンなしで保存された時刻の壁時計をUTCとして解釈し直す。
func asUTC(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// asUTCDate は日付成分のみを残したUTCの時刻を返す。
func asUTCDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// compile-time interface check
var _ ResourceRepository = (*PostgresResourceRepo)(nil)
