package model

import "time"

// NotificationStatus はアプリ内通知の既読状態を表す。
type NotificationStatus string

const (
	// NotificationStatusUnread は作成直後の未読状態。
	NotificationStatusUnread NotificationStatus = "Unread"
	// NotificationStatusRead はポータル上で既読にされた状態。
	// このジョブが設定することはない。
	NotificationStatusRead NotificationStatus = "Read"
)

// NotificationRecord はポータルに表示するアプリ内通知レコード。
// 通知が必要な場合に (リソース, 実行) ごとに1回だけ作成され、以降このジョブからは更新しない。
type NotificationRecord struct {
	ID         int64 // ストア側で採番
	UserID     int64
	ResourceID int64
	Message    string
	Status     NotificationStatus
	CreatedAt  time.Time // UTC
}
