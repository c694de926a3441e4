// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// TrackedResource は廃止予定日が登録されたクラウドリソースを表す。
// 1回の実行中は不変として扱う。
type TrackedResource struct {
	ID                 int64
	Name               string
	Type               string
	Provider           string
	DeprecationDate    time.Time // UTCの日付（時刻成分なし）
	ReplacementService *string
	UserID             int64
}

// CombinedType は "provider/type" 形式のリソース種別を返す。
func (r TrackedResource) CombinedType() string {
	return fmt.Sprintf("%s/%s", r.Provider, r.Type)
}

// UpcomingResource はスキャンクエリの1行を表す。
// 同一リソース・同一ユーザーに対する直近の通知日時をLEFT JOINして取得する。
type UpcomingResource struct {
	TrackedResource
	LastNotifiedAt *time.Time
}

// NotificationCandidate は今回の実行で通知対象となったリソース。
// スキャン時に生成され、ユーザー単位の処理が終わると破棄される。
type NotificationCandidate struct {
	ResourceID           int64
	Name                 string
	Type                 string // "provider/type"
	DeprecationDate      time.Time
	ReplacementService   *string
	DaysUntilDeprecation int
}

// Replacement は代替サービス名を返す。未設定の場合はfallbackを返す。
func (c NotificationCandidate) Replacement(fallback string) string {
	if c.ReplacementService == nil || *c.ReplacementService == "" {
		return fallback
	}
	return *c.ReplacementService
}
