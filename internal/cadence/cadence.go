// Package cadence は同一リソースへの再通知間隔（ケイデンス）を決定する。
// 廃止予定日が近いほど短い間隔で再通知する。
package cadence

import (
	"math"
	"time"
)

const (
	// 廃止までの残日数の区切り
	criticalWindowDays = 14
	urgentWindowDays   = 30
	warningWindowDays  = 90

	// 区切りごとの最小再通知間隔（日）
	dailyIntervalDays    = 1
	weeklyIntervalDays   = 7
	biweeklyIntervalDays = 14
	monthlyIntervalDays  = 30
)

// IntervalDays は廃止までの残日数に応じた最小再通知間隔（日）を返す。
//   - 14日以内: 1日（毎日）
//   - 30日以内: 7日（毎週）
//   - 90日以内: 14日（隔週）
//   - それ以外: 30日（毎月）
func IntervalDays(daysUntilDeprecation int) int {
	switch {
	case daysUntilDeprecation <= criticalWindowDays:
		return dailyIntervalDays
	case daysUntilDeprecation <= urgentWindowDays:
		return weeklyIntervalDays
	case daysUntilDeprecation <= warningWindowDays:
		return biweeklyIntervalDays
	default:
		return monthlyIntervalDays
	}
}

// ShouldNotify は新しい通知を送るべきかを判定する。
// lastNotifiedAtがnilの場合（通知履歴なし）は常にtrueを返す。
// それ以外は前回通知からの経過日数（切り捨て）がIntervalDays以上の場合にtrueを返す。
// 現在時刻nowは呼び出し側から注入する。副作用はない。
func ShouldNotify(lastNotifiedAt *time.Time, daysUntilDeprecation int, now time.Time) bool {
	if lastNotifiedAt == nil {
		return true
	}
	return ElapsedDays(*lastNotifiedAt, now) >= IntervalDays(daysUntilDeprecation)
}

// ElapsedDays はsinceからnowまでの経過日数を床関数で返す。
// 未来の時刻が渡された場合は負の値になる。
func ElapsedDays(since, now time.Time) int {
	return int(math.Floor(now.Sub(since).Hours() / 24))
}
